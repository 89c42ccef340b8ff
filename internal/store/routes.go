package store

import (
	"encoding/json"
	"fmt"

	"github.com/localgw/gatewaycore/internal/routeregistry"
)

func routeTypeString(t routeregistry.RouteType) string {
	switch t {
	case routeregistry.RouteTypeProviderNamespace:
		return "provider_namespace"
	case routeregistry.RouteTypeCredentialSelector:
		return "credential_selector"
	default:
		return "default"
	}
}

func parseRouteType(s string) routeregistry.RouteType {
	switch s {
	case "provider_namespace":
		return routeregistry.RouteTypeProviderNamespace
	case "credential_selector":
		return routeregistry.RouteTypeCredentialSelector
	default:
		return routeregistry.RouteTypeDefault
	}
}

// SaveRoute upserts one route row.
func (s *Store) SaveRoute(r routeregistry.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	protocols, err := json.Marshal(r.Protocols)
	if err != nil {
		return fmt.Errorf("marshal protocols: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO endpoint_providers (
			path_pattern, route_type, provider_type, credential_uuid,
			credential_name, protocols, enabled, priority
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path_pattern) DO UPDATE SET
			route_type = excluded.route_type,
			provider_type = excluded.provider_type,
			credential_uuid = excluded.credential_uuid,
			credential_name = excluded.credential_name,
			protocols = excluded.protocols,
			enabled = excluded.enabled,
			priority = excluded.priority
	`, r.PathPattern, routeTypeString(r.Type), r.ProviderType, r.CredentialUUID,
		r.CredentialName, string(protocols), r.Enabled, r.Priority)
	if err != nil {
		return fmt.Errorf("upsert route: %w", err)
	}
	return nil
}

// DeleteRouteByCredential removes the route bound to a credential uuid.
func (s *Store) DeleteRouteByCredential(credentialUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM endpoint_providers WHERE credential_uuid = ?`, credentialUUID)
	if err != nil {
		return fmt.Errorf("delete route: %w", err)
	}
	return nil
}

// LoadRoutes returns every persisted route.
func (s *Store) LoadRoutes() ([]routeregistry.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT path_pattern, route_type, provider_type, credential_uuid,
			credential_name, protocols, enabled, priority
		FROM endpoint_providers
	`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var out []routeregistry.Route
	for rows.Next() {
		var (
			r            routeregistry.Route
			routeType    string
			protocolJSON string
		)
		if err := rows.Scan(&r.PathPattern, &routeType, &r.ProviderType, &r.CredentialUUID,
			&r.CredentialName, &protocolJSON, &r.Enabled, &r.Priority); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		r.Type = parseRouteType(routeType)
		if protocolJSON != "" {
			if err := json.Unmarshal([]byte(protocolJSON), &r.Protocols); err != nil {
				return nil, fmt.Errorf("unmarshal protocols: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
