package entitlement

import (
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
)

const day = 24 * time.Hour

// Derive computes the Snapshot of account at now.
//
// Missing data resolves to the least privileged value: a nil account is a
// free account without admin rights, and an account without a creation time
// has no trial days left.
func Derive(account *domain.Account, now time.Time) Snapshot {
	var a domain.Account
	if account != nil {
		a = *account
	}
	persisted := a.SubscriptionTier
	if !persisted.IsValid() {
		persisted = domain.TierFree
	}

	s := Snapshot{
		PersistedTier: persisted,
		IsAdmin:       a.IsAdmin,
		EvaluatedAt:   now,
	}

	if !a.CreatedAt.IsZero() {
		s.TrialDaysRemaining = TrialDaysRemaining(a.CreatedAt, now)
		s.TrialEndsAt = a.CreatedAt.Add(TrialWindowDays * day)
	}

	s.IsInTrial = persisted == domain.TierFree && s.TrialDaysRemaining > 0
	s.IsFullAccess = persisted == domain.TierFull || s.IsInTrial
	s.IsLimitedOrAbove = persisted.AtLeast(domain.TierLimited) || s.IsFullAccess

	switch {
	case s.IsFullAccess:
		s.Tier = domain.TierFull
	case s.IsLimitedOrAbove:
		s.Tier = domain.TierLimited
	default:
		s.Tier = domain.TierFree
	}
	return s
}

// DaysSince returns the number of whole days elapsed from start to now,
// floored at zero when now precedes start.
func DaysSince(start, now time.Time) int {
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / day)
}

// TrialDaysRemaining returns the whole trial days left for an account
// created at createdAt. The day on which DaysSince reaches TrialWindowDays
// already counts as ended.
func TrialDaysRemaining(createdAt, now time.Time) int {
	remaining := TrialWindowDays - DaysSince(createdAt, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
