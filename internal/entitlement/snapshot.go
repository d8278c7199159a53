package entitlement

import (
	"fmt"
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
)

// TrialWindowDays is the length of the free-tier trial, counted in whole days
// from account creation.
const TrialWindowDays = 30

// Snapshot is the access profile of one account at one instant. It is
// recomputed on every evaluation and must not be cached across requests.
type Snapshot struct {
	// Tier is the effective tier after trial promotion.
	Tier domain.Tier `json:"tier"`
	// PersistedTier is the tier on record, before trial promotion.
	PersistedTier domain.Tier `json:"persisted_tier"`

	IsLimitedOrAbove bool `json:"is_limited_or_above"`
	IsFullAccess     bool `json:"is_full_access"`
	IsAdmin          bool `json:"is_admin"`
	IsInTrial        bool `json:"is_in_trial"`

	TrialDaysRemaining int `json:"trial_days_remaining"`
	// TrialEndsAt is zero when the account has no creation time.
	TrialEndsAt time.Time `json:"trial_ends_at,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Capability is an access requirement checked against a Snapshot.
type Capability int

const (
	// CapabilityAccount is met by any existing account.
	CapabilityAccount Capability = iota
	// CapabilityLimited requires limited-or-above access.
	CapabilityLimited
	// CapabilityFull requires full access.
	CapabilityFull
	// CapabilityAdmin requires the administrative flag.
	CapabilityAdmin
)

// String returns the capability name used in logs and metrics.
func (c Capability) String() string {
	switch c {
	case CapabilityAccount:
		return "account"
	case CapabilityLimited:
		return "limited"
	case CapabilityFull:
		return "full"
	case CapabilityAdmin:
		return "admin"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Satisfies reports whether the snapshot meets the capability. Admins meet
// every tier requirement; only admins meet CapabilityAdmin. Unknown
// capabilities are never met.
func (s Snapshot) Satisfies(c Capability) bool {
	switch c {
	case CapabilityAccount:
		return true
	case CapabilityLimited:
		return s.IsAdmin || s.IsLimitedOrAbove
	case CapabilityFull:
		return s.IsAdmin || s.IsFullAccess
	case CapabilityAdmin:
		return s.IsAdmin
	default:
		return false
	}
}

// Unmetered reports whether feature trial counters should be bypassed for
// this snapshot: paying full-access accounts, trial accounts and admins use
// metered features without consuming them.
func (s Snapshot) Unmetered() bool {
	return s.IsAdmin || s.IsFullAccess
}
