// Package trial manages per-feature trial allowances. Capabilities that are
// metered for non-full accounts read the remaining count and consume one use
// before doing their work; the store performs the consume as one atomic
// conditional update.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/redact"
	"github.com/phrazzld/studypal-api/internal/store"
)

// Recorder receives one observation per decrement attempt.
type Recorder interface {
	ObserveTrialConsumption(feature, result string)
}

// Counter reads and consumes feature trial counters.
type Counter struct {
	store    store.TrialDecrementer
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Counter.
type Option func(*Counter)

// WithLogger sets the counter logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Counter) { c.logger = l }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(c *Counter) { c.recorder = r }
}

// NewCounter creates a Counter that decrements through s. A nil s makes every
// decrement fail with store.ErrUnavailable.
func NewCounter(s store.TrialDecrementer, opts ...Option) *Counter {
	c := &Counter{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "trial_counter"))
	return c
}

// Remaining returns the uses of feature left on account. Unknown features and
// missing counters report zero.
func (c *Counter) Remaining(account *domain.Account, feature domain.Feature) int {
	if !feature.IsValid() {
		return 0
	}
	return account.TrialRemaining(feature)
}

// RemainingAll returns the remaining uses of every known feature.
func (c *Counter) RemainingAll(account *domain.Account) map[domain.Feature]int {
	out := make(map[domain.Feature]int, len(domain.Features))
	for _, f := range domain.Features {
		out[f] = c.Remaining(account, f)
	}
	return out
}

// Decrement consumes one use of feature and returns the count left.
// It returns domain.ErrTrialExhausted when nothing is left; the caller must
// deny the action. Exhaustion is final for the request and is not retried.
func (c *Counter) Decrement(ctx context.Context, accountID string, feature domain.Feature) (int, error) {
	if !feature.IsValid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownFeature, string(feature))
	}
	if accountID == "" {
		return 0, domain.ErrEmptyAccountID
	}
	if c.store == nil {
		return 0, store.ErrUnavailable
	}

	n, err := c.store.ConditionalDecrement(ctx, accountID, feature)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTrialExhausted):
		result = "exhausted"
	case errors.Is(err, store.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
		c.logger.ErrorContext(ctx, "trial decrement failed",
			slog.String("account_id", accountID),
			slog.String("feature", string(feature)),
			redact.Attr(err))
	}
	if c.recorder != nil {
		c.recorder.ObserveTrialConsumption(string(feature), result)
	}
	if err != nil {
		return 0, err
	}

	c.logger.DebugContext(ctx, "trial use consumed",
		slog.String("account_id", accountID),
		slog.String("feature", string(feature)),
		slog.Int("remaining", n))
	return n, nil
}

// Usage describes what Consume did.
type Usage struct {
	// Metered is false when the account was not charged a use.
	Metered bool `json:"metered"`
	// Remaining is the count left after the charge; zero when not metered.
	Remaining int `json:"remaining"`
}

// Consume charges one use of feature unless snapshot is unmetered. A nil
// snapshot, which the guard produces when enforcement is disabled, is not
// metered either.
func (c *Counter) Consume(
	ctx context.Context,
	accountID string,
	feature domain.Feature,
	snapshot *entitlement.Snapshot,
) (Usage, error) {
	if snapshot == nil || snapshot.Unmetered() {
		if !feature.IsValid() {
			return Usage{}, fmt.Errorf("%w: %q", domain.ErrUnknownFeature, string(feature))
		}
		return Usage{}, nil
	}

	n, err := c.Decrement(ctx, accountID, feature)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Metered: true, Remaining: n}, nil
}
