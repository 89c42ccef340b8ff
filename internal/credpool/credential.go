// Package credpool implements the credential pool: the in-memory collection
// of credentials for one provider family, their Active/Cooldown/Unhealthy/
// Disabled state machine, and round-robin selection.
package credpool

import (
	"time"

	"github.com/google/uuid"
)

// Status identifies which state a credential currently occupies. Only
// StatusActive is selectable by NextAvailable.
type Status int

const (
	StatusActive Status = iota
	StatusCooldown
	StatusUnhealthy
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCooldown:
		return "cooldown"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// CredentialState carries the data attached to whichever Status is current.
// CooldownUntil is meaningful only for StatusCooldown; UnhealthyReason only
// for StatusUnhealthy.
type CredentialState struct {
	Status        Status
	CooldownUntil time.Time
	UnhealthyReason string
}

// DataKind distinguishes the two credential data variants.
type DataKind int

const (
	DataKindAPIKey DataKind = iota
	DataKindOAuth
)

// Data is the tagged-union credential payload: either an API key or an
// OAuth token set. Only the fields matching Kind are meaningful.
type Data struct {
	Kind DataKind

	// API key variant.
	Key     string
	BaseURL string

	// OAuth variant.
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Stats holds the running counters for a credential. AvgLatencyMS is the
// running mean over successful requests only.
type Stats struct {
	TotalRequests      uint64
	SuccessfulRequests uint64
	ConsecutiveFailures uint64
	AvgLatencyMS       float64
}

// RecordSuccess updates the running-mean latency the same way the ported
// reference implementation does: avg = avg*(n-1)/n + latency/n, where n is
// the post-increment successful-request count.
func (s *Stats) RecordSuccess(latencyMS uint64) {
	s.TotalRequests++
	s.SuccessfulRequests++
	s.ConsecutiveFailures = 0
	n := float64(s.SuccessfulRequests)
	s.AvgLatencyMS = s.AvgLatencyMS*(n-1)/n + float64(latencyMS)/n
}

// RecordFailure increments the failure counters without touching latency.
func (s *Stats) RecordFailure() {
	s.TotalRequests++
	s.ConsecutiveFailures++
}

// Credential is one authenticated identity belonging to a single upstream
// provider family.
type Credential struct {
	ID           string
	ProviderType string
	Name         string
	Data         Data
	CreatedAt    time.Time
	LastUsed     time.Time
	State        CredentialState
	Stats        Stats

	// ProxyURL overrides the global proxy for this credential only, when set.
	ProxyURL string

	// Models is the cached list of model IDs this credential is known to
	// serve. Empty means "unknown" and is never treated as a hard filter
	// (see balancer.Select).
	Models []string
}

// NewCredential constructs a credential in the Active state with a
// generated ID if id is empty.
func NewCredential(id, providerType string, data Data) *Credential {
	if id == "" {
		id = uuid.NewString()
	}
	return &Credential{
		ID:           id,
		ProviderType: providerType,
		Data:         data,
		CreatedAt:    time.Now(),
		State:        CredentialState{Status: StatusActive},
	}
}

// IsAvailable reports whether the credential is currently selectable.
func (c *Credential) IsAvailable() bool {
	return c.State.Status == StatusActive
}

func (c *Credential) markUsed() {
	c.LastUsed = time.Now()
}
