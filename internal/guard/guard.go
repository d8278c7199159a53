// Package guard decides whether a request for an account may proceed. It
// loads the account, derives its entitlement snapshot at the current time and
// compares it with the capability the caller requires. The guard never
// writes to the store.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/redact"
	"github.com/phrazzld/studypal-api/internal/store"
)

// DefaultStoreTimeout bounds the account read when no timeout is configured.
const DefaultStoreTimeout = 2 * time.Second

// Reason is the machine-readable cause of a rejection.
type Reason string

const (
	ReasonIdentifierMissing Reason = "identifier missing"
	ReasonAccountNotFound   Reason = "account not found"
	ReasonInsufficientTier  Reason = "insufficient tier"
	ReasonStoreUnavailable  Reason = "store unavailable"
)

// Decision is the result of one authorization.
type Decision struct {
	Allowed bool
	// Reason is empty when Allowed is true.
	Reason Reason
	// Account and Snapshot are set whenever the account was loaded.
	Account  *domain.Account
	Snapshot *entitlement.Snapshot
	// EnforcementDisabled marks an Allow granted without consulting the store.
	EnforcementDisabled bool
}

// Outcome returns "allow" or "reject".
func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "reject"
}

// DecisionRecorder receives one observation per decision.
type DecisionRecorder interface {
	ObserveGuardDecision(capability, outcome, reason string)
}

// Guard evaluates access for accounts.
type Guard struct {
	reader              store.AccountReader
	clock               clock.Clock
	timeout             time.Duration
	enforcementDisabled bool
	logger              *slog.Logger
	recorder            DecisionRecorder
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock sets the time source used for derivation.
func WithClock(c clock.Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// WithStoreTimeout bounds each account read. Non-positive values are ignored.
func WithStoreTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithEnforcementDisabled makes every request carrying an identifier pass
// without a store read. Configuration forbids it in production.
func WithEnforcementDisabled(disabled bool) Option {
	return func(g *Guard) { g.enforcementDisabled = disabled }
}

// WithLogger sets the logger for decisions.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithRecorder sets the metrics sink for decisions.
func WithRecorder(r DecisionRecorder) Option {
	return func(g *Guard) { g.recorder = r }
}

// New creates a Guard reading accounts from reader. A nil reader is allowed;
// every authorization then fails with ReasonStoreUnavailable unless
// enforcement is disabled.
func New(reader store.AccountReader, opts ...Option) *Guard {
	g := &Guard{
		reader:  reader,
		clock:   clock.System(),
		timeout: DefaultStoreTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "access_guard"))
	return g
}

// EnforcementDisabled reports whether the guard lets everything through.
func (g *Guard) EnforcementDisabled() bool {
	return g.enforcementDisabled
}

// Authorize decides whether accountID may use required.
func (g *Guard) Authorize(ctx context.Context, accountID string, required entitlement.Capability) Decision {
	d := g.authorize(ctx, strings.TrimSpace(accountID), required)

	if g.recorder != nil {
		g.recorder.ObserveGuardDecision(required.String(), d.Outcome(), string(d.Reason))
	}

	attrs := []any{
		slog.String("account_id", accountID),
		slog.String("capability", required.String()),
		slog.String("outcome", d.Outcome()),
	}
	if d.Allowed {
		if d.EnforcementDisabled {
			attrs = append(attrs, slog.Bool("enforcement_disabled", true))
		}
		g.logger.DebugContext(ctx, "access granted", attrs...)
	} else {
		attrs = append(attrs, slog.String("reason", string(d.Reason)))
		g.logger.InfoContext(ctx, "access rejected", attrs...)
	}
	return d
}

func (g *Guard) authorize(ctx context.Context, accountID string, required entitlement.Capability) Decision {
	if accountID == "" {
		return reject(ReasonIdentifierMissing)
	}

	if g.enforcementDisabled {
		return Decision{Allowed: true, EnforcementDisabled: true}
	}

	if g.reader == nil {
		return reject(ReasonStoreUnavailable)
	}

	account, err := g.load(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reject(ReasonAccountNotFound)
		}
		g.logger.WarnContext(ctx, "account read failed",
			slog.String("account_id", accountID),
			redact.Attr(err))
		return reject(ReasonStoreUnavailable)
	}

	snapshot := entitlement.Derive(account, g.clock.Now())
	d := Decision{Account: account, Snapshot: &snapshot}
	if !snapshot.Satisfies(required) {
		d.Reason = ReasonInsufficientTier
		return d
	}
	d.Allowed = true
	return d
}

func (g *Guard) load(ctx context.Context, accountID string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		account *domain.Account
		err     error
	}
	// Buffered so an abandoned read can still complete and exit.
	done := make(chan result, 1)
	go func() {
		a, err := g.reader.Get(ctx, accountID)
		done <- result{a, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.account == nil {
			return nil, store.ErrAccountNotFound
		}
		return r.account, nil
	}
}

func reject(reason Reason) Decision {
	return Decision{Reason: reason}
}
