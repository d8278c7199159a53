package domain

import (
	"strings"
	"time"
)

// Account is the persisted subscription and trial state of one end user.
type Account struct {
	// ID is the opaque, immutable identifier of the account.
	ID string `json:"id"`

	// CreatedAt is set once when the account is provisioned. The zero value
	// means the store holds no creation time.
	CreatedAt time.Time `json:"created_at"`

	// SubscriptionTier is the paid tier on record. Zero value is TierFree.
	SubscriptionTier Tier `json:"subscription_tier"`

	// SubscriptionDate is when the tier was last upgraded, if ever.
	SubscriptionDate time.Time `json:"subscription_date,omitempty"`

	// IsAdmin grants full-access-equivalent rights regardless of tier.
	IsAdmin bool `json:"is_admin"`

	// FeatureTrialCounters holds the remaining uses per metered feature.
	FeatureTrialCounters map[Feature]int `json:"feature_trial_counters"`
}

// Validate checks the fields a store must be able to persist.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyAccountID
	}
	if !a.SubscriptionTier.IsValid() {
		return ErrInvalidTier
	}
	for f, n := range a.FeatureTrialCounters {
		if !f.IsValid() {
			return ErrUnknownFeature
		}
		if n < 0 {
			return ErrNegativeCounter
		}
	}
	return nil
}

// TrialRemaining returns the remaining uses of feature. A missing counter
// counts as zero.
func (a *Account) TrialRemaining(feature Feature) int {
	if a == nil || a.FeatureTrialCounters == nil {
		return 0
	}
	n := a.FeatureTrialCounters[feature]
	if n < 0 {
		return 0
	}
	return n
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.FeatureTrialCounters != nil {
		c.FeatureTrialCounters = make(map[Feature]int, len(a.FeatureTrialCounters))
		for f, n := range a.FeatureTrialCounters {
			c.FeatureTrialCounters[f] = n
		}
	}
	return &c
}

// AccountPatch is a partial account document for merge writes. Nil fields are
// left untouched.
//
// Stores apply two restrictions: CreatedAt is only written when the stored
// value is absent, and FeatureTrialCounters entries only initialize counters
// that do not exist yet. Neither can be used to extend a trial.
type AccountPatch struct {
	CreatedAt            *time.Time
	SubscriptionTier     *Tier
	SubscriptionDate     *time.Time
	IsAdmin              *bool
	FeatureTrialCounters map[Feature]int
}

// Validate checks the patch before it reaches a store.
func (p AccountPatch) Validate() error {
	if p.SubscriptionTier != nil && !p.SubscriptionTier.IsValid() {
		return ErrInvalidTier
	}
	for f, n := range p.FeatureTrialCounters {
		if !f.IsValid() {
			return ErrUnknownFeature
		}
		if n < 0 {
			return ErrNegativeCounter
		}
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.CreatedAt == nil &&
		p.SubscriptionTier == nil &&
		p.SubscriptionDate == nil &&
		p.IsAdmin == nil &&
		len(p.FeatureTrialCounters) == 0
}

// Apply merges the patch into a following the store restrictions documented
// on AccountPatch. It is used by stores that hold whole documents in memory.
func (p AccountPatch) Apply(a *Account) {
	if p.CreatedAt != nil && a.CreatedAt.IsZero() {
		a.CreatedAt = p.CreatedAt.UTC()
	}
	if p.SubscriptionTier != nil {
		a.SubscriptionTier = *p.SubscriptionTier
	}
	if p.SubscriptionDate != nil {
		a.SubscriptionDate = p.SubscriptionDate.UTC()
	}
	if p.IsAdmin != nil {
		a.IsAdmin = *p.IsAdmin
	}
	if len(p.FeatureTrialCounters) > 0 && a.FeatureTrialCounters == nil {
		a.FeatureTrialCounters = make(map[Feature]int, len(p.FeatureTrialCounters))
	}
	for f, n := range p.FeatureTrialCounters {
		if _, exists := a.FeatureTrialCounters[f]; !exists {
			a.FeatureTrialCounters[f] = n
		}
	}
}
