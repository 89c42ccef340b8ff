package store

import (
	"fmt"
	"time"
)

// RequestRecord is one completed request's telemetry row.
type RequestRecord struct {
	RequestID    string
	OccurredAt   time.Time
	ProviderType string
	CredentialID string
	Model        string
	ClientType   string
	StatusCode   int
	LatencyMS    int64
	InputTokens  int64
	OutputTokens int64
	ErrorKind    string
	Streamed     bool
}

// InsertRequestRecord appends one telemetry row. Telemetry is append-only;
// callers are expected to run Cleanup periodically to bound table growth.
func (s *Store) InsertRequestRecord(r RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO request_telemetry (
			request_id, occurred_at, provider_type, credential_id, model,
			client_type, status_code, latency_ms, input_tokens, output_tokens,
			error_kind, streamed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RequestID, r.OccurredAt.Unix(), r.ProviderType, r.CredentialID, r.Model,
		r.ClientType, r.StatusCode, r.LatencyMS, r.InputTokens, r.OutputTokens,
		r.ErrorKind, r.Streamed)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// RecentRequestRecords returns up to limit telemetry rows, most recent first.
func (s *Store) RecentRequestRecords(limit int) ([]RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT request_id, occurred_at, provider_type, credential_id, model,
			client_type, status_code, latency_ms, input_tokens, output_tokens,
			error_kind, streamed
		FROM request_telemetry
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var r RequestRecord
		var occurredAt int64
		if err := rows.Scan(&r.RequestID, &occurredAt, &r.ProviderType, &r.CredentialID, &r.Model,
			&r.ClientType, &r.StatusCode, &r.LatencyMS, &r.InputTokens, &r.OutputTokens,
			&r.ErrorKind, &r.Streamed); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		r.OccurredAt = time.Unix(occurredAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanupTelemetry deletes rows older than the given time, returning how
// many were removed.
func (s *Store) CleanupTelemetry(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM request_telemetry WHERE occurred_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup telemetry: %w", err)
	}
	return result.RowsAffected()
}
