package domain

import (
	"fmt"
	"strings"
)

// Tier is a subscription capability tier. Tiers are totally ordered:
// TierFree < TierLimited < TierFull. The zero value is TierFree.
type Tier int

const (
	// TierFree is the default tier for every account.
	TierFree Tier = iota
	// TierLimited unlocks the limited feature set.
	TierLimited
	// TierFull unlocks everything.
	TierFull
)

var tierNames = [...]string{
	TierFree:    "free",
	TierLimited: "limited",
	TierFull:    "full",
}

// String returns the persisted name of the tier.
func (t Tier) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// IsValid reports whether t is one of the declared tiers.
func (t Tier) IsValid() bool {
	return t >= TierFree && t <= TierFull
}

// AtLeast reports whether t is ranked at or above min.
func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

// ParseTier parses a persisted tier name. It is case-insensitive and
// returns ErrInvalidTier for unknown names.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return TierFree, nil
	case "limited":
		return TierLimited, nil
	case "full":
		return TierFull, nil
	default:
		return TierFree, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// TierFromStored converts a stored value to a Tier. Absent or unrecognized
// values resolve to TierFree.
func TierFromStored(s string) Tier {
	t, err := ParseTier(s)
	if err != nil {
		return TierFree
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
