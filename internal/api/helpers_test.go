package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/studypal-api/internal/api/middleware"
	"github.com/phrazzld/studypal-api/internal/billing"
	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/generation"
	"github.com/phrazzld/studypal-api/internal/guard"
	"github.com/phrazzld/studypal-api/internal/mocks"
	"github.com/phrazzld/studypal-api/internal/service"
	"github.com/phrazzld/studypal-api/internal/trial"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	identityHeader = "X-Account-ID"
	webhookSecret  = "whsec_test"
)

// fakeAssistant records calls and returns canned output.
type fakeAssistant struct {
	answer    string
	cards     []generation.Flashcard
	err       error
	calls     int
	lastCount int
}

func (f *fakeAssistant) Answer(context.Context, string) (string, error) {
	f.calls++
	return f.answer, f.err
}

func (f *fakeAssistant) Flashcards(_ context.Context, _ string, count int) ([]generation.Flashcard, error) {
	f.calls++
	f.lastCount = count
	return f.cards, f.err
}

type testEnv struct {
	store     *mocks.MockAccountStore
	assistant *fakeAssistant
	router    http.Handler
}

func freshCounters() map[domain.Feature]int {
	return domain.DefaultTrialAllowances()
}

// standardAccounts covers every entitlement shape the handlers distinguish.
func standardAccounts() []*domain.Account {
	return []*domain.Account{
		{ID: "trial", CreatedAt: testNow.AddDate(0, 0, -2), FeatureTrialCounters: freshCounters()},
		{ID: "free", CreatedAt: testNow.AddDate(0, 0, -60), FeatureTrialCounters: freshCounters()},
		{ID: "free-empty", CreatedAt: testNow.AddDate(0, 0, -60), FeatureTrialCounters: map[domain.Feature]int{
			domain.FeatureQuiz: 0, domain.FeatureFlashcards: 0, domain.FeatureAssistant: 0,
		}},
		{ID: "limited", CreatedAt: testNow.AddDate(0, 0, -60), SubscriptionTier: domain.TierLimited, FeatureTrialCounters: freshCounters()},
		{ID: "full", CreatedAt: testNow.AddDate(0, 0, -60), SubscriptionTier: domain.TierFull, FeatureTrialCounters: freshCounters()},
		{ID: "admin", CreatedAt: testNow.AddDate(0, 0, -60), IsAdmin: true},
	}
}

func newTestEnv(t *testing.T, guardOpts ...guard.Option) *testEnv {
	t.Helper()

	assistant := &fakeAssistant{
		answer: "Mitochondria make ATP.",
		cards:  []generation.Flashcard{{Front: "Q", Back: "A"}},
	}
	env := newTestEnvWithAssistant(t, assistant, guardOpts...)
	env.assistant = assistant
	return env
}

// newTestEnvWithAssistant builds the router around an arbitrary assistant.
// The returned env has a nil fake assistant.
func newTestEnvWithAssistant(t *testing.T, assistant generation.Assistant, guardOpts ...guard.Option) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fixed(testNow)
	st := mocks.NewMockAccountStore(standardAccounts()...)

	opts := append([]guard.Option{guard.WithClock(clk), guard.WithLogger(logger)}, guardOpts...)
	g := guard.New(st, opts...)
	counter := trial.NewCounter(st, trial.WithLogger(logger))
	accounts := service.NewAccountService(st, clk, logger)
	processor, err := billing.NewProcessor(webhookSecret, accounts, logger)
	require.NoError(t, err)

	accountHandler := NewAccountHandler(accounts, counter, clk)
	studyHandler := NewStudyHandler(assistant, counter)
	billingHandler := NewBillingHandler(processor)
	em := middleware.NewEntitlementMiddleware(g)

	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(logger))
	r.Post("/api/billing/webhook", billingHandler.Webhook)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewHeaderIdentity(identityHeader).Authenticate)
		r.Post("/api/accounts", accountHandler.ProvisionAccount)

		r.With(em.Require(entitlement.CapabilityAccount)).Get("/api/entitlements", accountHandler.GetEntitlements)
		r.With(em.Require(entitlement.CapabilityAccount)).Get("/api/trials", accountHandler.GetTrials)
		r.With(em.Require(entitlement.CapabilityAccount)).Post("/api/assistant/ask", studyHandler.Ask)
		r.With(em.Require(entitlement.CapabilityAccount)).Post("/api/flashcards/generate", studyHandler.GenerateFlashcards)
		r.With(em.Require(entitlement.CapabilityAccount)).Post("/api/quiz/attempts", studyHandler.RecordQuizAttempt)
		r.With(em.Require(entitlement.CapabilityLimited)).Get("/api/limited-probe", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(em.Require(entitlement.CapabilityAdmin))
			r.Get("/accounts/{id}", accountHandler.GetAccount)
			r.Post("/accounts/{id}/tier", accountHandler.UpdateTier)
		})
	})

	return &testEnv{store: st, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, accountID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, path, reader)
	if accountID != "" {
		r.Header.Set(identityHeader, accountID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
