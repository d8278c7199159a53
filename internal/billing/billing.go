// Package billing turns verified payment-provider webhooks into subscription
// upgrades. Payment creation and verification of the charge itself belong to
// the provider; this package only authenticates the notification and
// records the resulting tier.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/studypal-api/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// EventPaymentSucceeded is the only event that changes an account.
const EventPaymentSucceeded = "payment.succeeded"

var (
	// ErrInvalidSignature is returned for a missing or mismatched signature.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when the body is not a valid event.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)

// Event is the webhook body.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"event"`
	AccountID string `json:"account_id"`
	Tier      string `json:"tier"`
}

// Upgrader records a paid tier. service.AccountService satisfies it.
type Upgrader interface {
	Upgrade(ctx context.Context, accountID string, tier domain.Tier) (bool, error)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Processor verifies and applies webhook events.
type Processor struct {
	secret   string
	upgrader Upgrader
	logger   *slog.Logger
}

// NewProcessor creates a Processor. The secret must be non-empty.
func NewProcessor(secret string, upgrader Upgrader, logger *slog.Logger) (*Processor, error) {
	if secret == "" {
		return nil, errors.New("billing webhook secret is empty")
	}
	if upgrader == nil {
		return nil, errors.New("billing upgrader is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		secret:   secret,
		upgrader: upgrader,
		logger:   logger.With(slog.String("component", "billing")),
	}, nil
}

// Verify checks signature against body in constant time.
func (p *Processor) Verify(body []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(p.secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// Handle verifies body and applies the event it carries. Events other than
// payment.succeeded are acknowledged and ignored; applied reports whether the
// account changed.
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) (applied bool, err error) {
	if err := p.Verify(body, signature); err != nil {
		return false, err
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if !strings.EqualFold(ev.Type, EventPaymentSucceeded) {
		p.logger.InfoContext(ctx, "ignored webhook event",
			slog.String("event", ev.Type),
			slog.String("event_id", ev.ID))
		return false, nil
	}

	if ev.AccountID == "" {
		return false, fmt.Errorf("%w: account_id is required", ErrInvalidPayload)
	}
	tier, err := domain.ParseTier(ev.Tier)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	applied, err = p.upgrader.Upgrade(ctx, ev.AccountID, tier)
	if err != nil {
		return false, err
	}
	if !applied {
		p.logger.InfoContext(ctx, "payment below current tier ignored",
			slog.String("event_id", ev.ID),
			slog.String("account_id", ev.AccountID),
			slog.String("tier", tier.String()))
		return false, nil
	}

	p.logger.InfoContext(ctx, "payment applied",
		slog.String("event_id", ev.ID),
		slog.String("account_id", ev.AccountID),
		slog.String("tier", tier.String()))
	return true, nil
}
