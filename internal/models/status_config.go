package models

import "strings"

// Default status vocabulary used when a tenant has not configured one.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// StatusConfig is the tenant-wide enrollment status vocabulary. Allowed is the
// full set of valid values; Approved is the subset that occupies a seat and
// counts against capacity.
type StatusConfig struct {
	Allowed  []string `json:"allowed"`
	Approved []string `json:"approved"`
}

// DefaultStatusConfig returns the safe fallback vocabulary.
func DefaultStatusConfig() *StatusConfig {
	return &StatusConfig{
		Allowed:  []string{StatusPending, StatusApproved, StatusRejected},
		Approved: []string{StatusApproved},
	}
}

// NormalizeStatus canonicalizes a status value for comparison.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// Normalize canonicalizes the vocabulary in place and drops approved entries
// that are not members of the allowed set.
func (c *StatusConfig) Normalize() {
	allowed := make([]string, 0, len(c.Allowed))
	seen := make(map[string]struct{}, len(c.Allowed))
	for _, s := range c.Allowed {
		n := NormalizeStatus(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		allowed = append(allowed, n)
	}
	c.Allowed = allowed

	approved := make([]string, 0, len(c.Approved))
	approvedSeen := make(map[string]struct{}, len(c.Approved))
	for _, s := range c.Approved {
		n := NormalizeStatus(s)
		if _, ok := seen[n]; !ok {
			continue
		}
		if _, ok := approvedSeen[n]; ok {
			continue
		}
		approvedSeen[n] = struct{}{}
		approved = append(approved, n)
	}
	c.Approved = approved
}

// IsAllowed reports whether the status belongs to the vocabulary.
func (c *StatusConfig) IsAllowed(status string) bool {
	n := NormalizeStatus(status)
	for _, s := range c.Allowed {
		if s == n {
			return true
		}
	}
	return false
}

// IsOccupying reports whether the status holds a seat.
func (c *StatusConfig) IsOccupying(status string) bool {
	n := NormalizeStatus(status)
	for _, s := range c.Approved {
		if s == n {
			return true
		}
	}
	return false
}

// PendingStatus returns the initial status for self-service requests: PENDING
// when present, otherwise the first allowed status that does not hold a seat.
func (c *StatusConfig) PendingStatus() string {
	for _, s := range c.Allowed {
		if s == StatusPending {
			return s
		}
	}
	for _, s := range c.Allowed {
		if !c.IsOccupying(s) {
			return s
		}
	}
	return ""
}

// FirstApproved returns the status used for direct administrative grants.
func (c *StatusConfig) FirstApproved() string {
	if len(c.Approved) == 0 {
		return ""
	}
	return c.Approved[0]
}
