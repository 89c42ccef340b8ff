package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/localgw/gatewaycore/internal/credpool"
)

func dataKindString(k credpool.DataKind) string {
	if k == credpool.DataKindOAuth {
		return "oauth"
	}
	return "api_key"
}

func parseDataKind(s string) credpool.DataKind {
	if s == "oauth" {
		return credpool.DataKindOAuth
	}
	return credpool.DataKindAPIKey
}

func statusString(s credpool.Status) string {
	switch s {
	case credpool.StatusCooldown:
		return "cooldown"
	case credpool.StatusUnhealthy:
		return "unhealthy"
	case credpool.StatusDisabled:
		return "disabled"
	default:
		return "active"
	}
}

func parseStatus(s string) credpool.Status {
	switch s {
	case "cooldown":
		return credpool.StatusCooldown
	case "unhealthy":
		return credpool.StatusUnhealthy
	case "disabled":
		return credpool.StatusDisabled
	default:
		return credpool.StatusActive
	}
}

// SaveCredential upserts one credential row plus its stats row.
func (s *Store) SaveCredential(c *credpool.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	models, err := json.Marshal(c.Models)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO credentials (
			id, provider_type, name, data_kind, api_key, base_url,
			access_token, refresh_token, token_expires_at, proxy_url, models,
			status, cooldown_until, unhealthy_reason, created_at, last_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_type = excluded.provider_type,
			name = excluded.name,
			data_kind = excluded.data_kind,
			api_key = excluded.api_key,
			base_url = excluded.base_url,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			proxy_url = excluded.proxy_url,
			models = excluded.models,
			status = excluded.status,
			cooldown_until = excluded.cooldown_until,
			unhealthy_reason = excluded.unhealthy_reason,
			last_used = excluded.last_used
	`,
		c.ID, c.ProviderType, c.Name, dataKindString(c.Data.Kind), c.Data.Key, c.Data.BaseURL,
		c.Data.AccessToken, c.Data.RefreshToken, unixOrZero(c.Data.ExpiresAt), c.ProxyURL, string(models),
		statusString(c.State.Status), unixOrZero(c.State.CooldownUntil), c.State.UnhealthyReason,
		c.CreatedAt.Unix(), unixOrZero(c.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO credential_stats (credential_id, total_requests, successful_requests, consecutive_failures, avg_latency_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(credential_id) DO UPDATE SET
			total_requests = excluded.total_requests,
			successful_requests = excluded.successful_requests,
			consecutive_failures = excluded.consecutive_failures,
			avg_latency_ms = excluded.avg_latency_ms
	`, c.ID, c.Stats.TotalRequests, c.Stats.SuccessfulRequests, c.Stats.ConsecutiveFailures, c.Stats.AvgLatencyMS)
	if err != nil {
		return fmt.Errorf("upsert credential stats: %w", err)
	}

	return tx.Commit()
}

// DeleteCredential removes a credential and its stats row.
func (s *Store) DeleteCredential(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// LoadCredentialsByProvider returns every persisted credential for one
// provider type, reconstructed in the Active/Cooldown/Unhealthy/Disabled
// state it was last saved in.
func (s *Store) LoadCredentialsByProvider(providerType string) ([]*credpool.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.id, c.provider_type, c.name, c.data_kind, c.api_key, c.base_url,
			c.access_token, c.refresh_token, c.token_expires_at, c.proxy_url, c.models,
			c.status, c.cooldown_until, c.unhealthy_reason, c.created_at, c.last_used,
			COALESCE(s.total_requests, 0), COALESCE(s.successful_requests, 0),
			COALESCE(s.consecutive_failures, 0), COALESCE(s.avg_latency_ms, 0)
		FROM credentials c
		LEFT JOIN credential_stats s ON s.credential_id = c.id
		WHERE c.provider_type = ?
	`, providerType)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []*credpool.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadAllCredentials returns every persisted credential across all providers.
func (s *Store) LoadAllCredentials() ([]*credpool.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.id, c.provider_type, c.name, c.data_kind, c.api_key, c.base_url,
			c.access_token, c.refresh_token, c.token_expires_at, c.proxy_url, c.models,
			c.status, c.cooldown_until, c.unhealthy_reason, c.created_at, c.last_used,
			COALESCE(s.total_requests, 0), COALESCE(s.successful_requests, 0),
			COALESCE(s.consecutive_failures, 0), COALESCE(s.avg_latency_ms, 0)
		FROM credentials c
		LEFT JOIN credential_stats s ON s.credential_id = c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	var out []*credpool.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCredential(rows *sql.Rows) (*credpool.Credential, error) {
	var (
		c                       credpool.Credential
		dataKind, modelsJSON    string
		status                  string
		tokenExpiresAt          sql.NullInt64
		cooldownUntil           sql.NullInt64
		createdAt               int64
		lastUsed                sql.NullInt64
	)
	err := rows.Scan(
		&c.ID, &c.ProviderType, &c.Name, &dataKind, &c.Data.Key, &c.Data.BaseURL,
		&c.Data.AccessToken, &c.Data.RefreshToken, &tokenExpiresAt, &c.ProxyURL, &modelsJSON,
		&status, &cooldownUntil, &c.State.UnhealthyReason, &createdAt, &lastUsed,
		&c.Stats.TotalRequests, &c.Stats.SuccessfulRequests, &c.Stats.ConsecutiveFailures, &c.Stats.AvgLatencyMS,
	)
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	c.Data.Kind = parseDataKind(dataKind)
	c.Data.ExpiresAt = timeFromNull(tokenExpiresAt)
	c.State.Status = parseStatus(status)
	c.State.CooldownUntil = timeFromNull(cooldownUntil)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.LastUsed = timeFromNull(lastUsed)

	if modelsJSON != "" {
		if err := json.Unmarshal([]byte(modelsJSON), &c.Models); err != nil {
			return nil, fmt.Errorf("unmarshal models: %w", err)
		}
	}

	return &c, nil
}
