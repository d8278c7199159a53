package entitlement

import (
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}

func account(tier domain.Tier, createdAt time.Time) *domain.Account {
	return &domain.Account{ID: "u1", SubscriptionTier: tier, CreatedAt: createdAt}
}

func TestDeriveTrialWindow(t *testing.T) {
	tests := []struct {
		name          string
		createdAt     time.Time
		wantRemaining int
		wantInTrial   bool
	}{
		{"created now", now, 30, true},
		{"created 5 days ago", daysAgo(5), 25, true},
		{"one second before the window closes", daysAgo(30).Add(time.Second), 1, true},
		{"exactly 30 days ago", daysAgo(30), 0, false},
		{"31 days ago", daysAgo(31), 0, false},
		{"400 days ago", daysAgo(400), 0, false},
		{"created in the future", now.Add(72 * time.Hour), 30, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Derive(account(domain.TierFree, tc.createdAt), now)

			assert.Equal(t, tc.wantRemaining, s.TrialDaysRemaining)
			assert.Equal(t, tc.wantInTrial, s.IsInTrial)
			assert.Equal(t, tc.wantInTrial, s.IsFullAccess)
			assert.Equal(t, tc.wantInTrial, s.IsLimitedOrAbove)
			assert.Equal(t, domain.TierFree, s.PersistedTier)
			assert.GreaterOrEqual(t, s.TrialDaysRemaining, 0)
		})
	}
}

func TestDeriveFullTierIsNeverInTrial(t *testing.T) {
	for _, created := range []time.Time{now, daysAgo(5), daysAgo(30), daysAgo(365)} {
		s := Derive(account(domain.TierFull, created), now)

		assert.False(t, s.IsInTrial)
		assert.True(t, s.IsFullAccess)
		assert.True(t, s.IsLimitedOrAbove)
		assert.Equal(t, domain.TierFull, s.Tier)
	}
}

func TestDeriveLimitedTier(t *testing.T) {
	s := Derive(account(domain.TierLimited, daysAgo(2)), now)

	assert.False(t, s.IsInTrial, "only free accounts are promoted by the trial")
	assert.False(t, s.IsFullAccess)
	assert.True(t, s.IsLimitedOrAbove)
	assert.Equal(t, domain.TierLimited, s.Tier)
	assert.Equal(t, 28, s.TrialDaysRemaining)
}

func TestDeriveAdminOverride(t *testing.T) {
	a := account(domain.TierFree, daysAgo(90))
	a.IsAdmin = true

	s := Derive(a, now)

	assert.True(t, s.IsAdmin)
	assert.False(t, s.IsFullAccess, "admin flag is reported separately from paid access")
	assert.True(t, s.Satisfies(CapabilityFull))
	assert.True(t, s.Satisfies(CapabilityLimited))
	assert.True(t, s.Satisfies(CapabilityAdmin))
	assert.True(t, s.Unmetered())
}

func TestDeriveMissingData(t *testing.T) {
	t.Run("nil account", func(t *testing.T) {
		s := Derive(nil, now)
		assert.Equal(t, domain.TierFree, s.Tier)
		assert.False(t, s.IsAdmin)
		assert.False(t, s.IsInTrial)
		assert.Equal(t, 0, s.TrialDaysRemaining)
	})

	t.Run("absent created at", func(t *testing.T) {
		s := Derive(&domain.Account{ID: "u1"}, now)
		assert.Equal(t, 0, s.TrialDaysRemaining)
		assert.False(t, s.IsInTrial)
		assert.True(t, s.TrialEndsAt.IsZero())
	})

	t.Run("invalid stored tier", func(t *testing.T) {
		s := Derive(account(domain.Tier(42), daysAgo(100)), now)
		assert.Equal(t, domain.TierFree, s.PersistedTier)
		assert.False(t, s.IsLimitedOrAbove)
	})
}

func TestDeriveTrialEndsAt(t *testing.T) {
	created := daysAgo(3)
	s := Derive(account(domain.TierFree, created), now)
	assert.Equal(t, created.Add(30*24*time.Hour), s.TrialEndsAt)
	assert.Equal(t, now, s.EvaluatedAt)
}

func TestSnapshotSatisfies(t *testing.T) {
	free := Derive(account(domain.TierFree, daysAgo(40)), now)
	limited := Derive(account(domain.TierLimited, daysAgo(40)), now)
	trial := Derive(account(domain.TierFree, daysAgo(5)), now)

	tests := []struct {
		name     string
		snapshot Snapshot
		cap      Capability
		want     bool
	}{
		{"free meets account", free, CapabilityAccount, true},
		{"free fails limited", free, CapabilityLimited, false},
		{"free fails full", free, CapabilityFull, false},
		{"limited meets limited", limited, CapabilityLimited, true},
		{"limited fails full", limited, CapabilityFull, false},
		{"trial meets full", trial, CapabilityFull, true},
		{"trial fails admin", trial, CapabilityAdmin, false},
		{"unknown capability", trial, Capability(99), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.snapshot.Satisfies(tc.cap))
		})
	}
}

func TestDeriveIsDeterministicUnderConcurrency(t *testing.T) {
	a := account(domain.TierFree, daysAgo(12))
	want := Derive(a, now)

	var wg sync.WaitGroup
	results := make([]Snapshot, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Derive(a, now)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.Equal(t, want, got)
	}
}

func TestDaysSince(t *testing.T) {
	assert.Equal(t, 0, DaysSince(now, now))
	assert.Equal(t, 0, DaysSince(now, now.Add(23*time.Hour)))
	assert.Equal(t, 1, DaysSince(now, now.Add(24*time.Hour)))
	assert.Equal(t, 0, DaysSince(now, now.Add(-48*time.Hour)))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "full", CapabilityFull.String())
	assert.Equal(t, "account", CapabilityAccount.String())
	assert.Equal(t, "capability(9)", Capability(9).String())
}
