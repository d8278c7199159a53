package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/generation"
	"github.com/phrazzld/studypal-api/internal/platform/logger"
	"github.com/phrazzld/studypal-api/internal/trial"
)

// AskRequest is the body of POST /api/assistant/ask.
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

// AskResponse carries the assistant's answer.
type AskResponse struct {
	Answer string      `json:"answer"`
	Usage  trial.Usage `json:"usage"`
}

// FlashcardsRequest is the body of POST /api/flashcards/generate.
type FlashcardsRequest struct {
	Text  string `json:"text" validate:"required,max=20000"`
	Count int    `json:"count" validate:"gte=0,lte=20"`
}

// FlashcardsResponse carries generated flashcards.
type FlashcardsResponse struct {
	Flashcards []generation.Flashcard `json:"flashcards"`
	Usage      trial.Usage            `json:"usage"`
}

// QuizAttemptRequest is the body of POST /api/quiz/attempts.
type QuizAttemptRequest struct {
	QuizID string `json:"quiz_id" validate:"required,max=128"`
}

// QuizAttemptResponse acknowledges a recorded attempt.
type QuizAttemptResponse struct {
	AttemptID string      `json:"attempt_id"`
	QuizID    string      `json:"quiz_id"`
	StartedAt time.Time   `json:"started_at"`
	Usage     trial.Usage `json:"usage"`
}

// StudyHandler serves the metered study features.
type StudyHandler struct {
	assistant generation.Assistant
	counter   *trial.Counter
	now       func() time.Time
}

// NewStudyHandler creates a new StudyHandler. A nil assistant answers every
// assistant request with 503.
func NewStudyHandler(assistant generation.Assistant, counter *trial.Counter) *StudyHandler {
	if assistant == nil {
		assistant = generation.Disabled{}
	}
	return &StudyHandler{assistant: assistant, counter: counter, now: time.Now}
}

// requireAssistant writes a 503 and returns false when no assistant is
// configured. It runs before consume so unavailable features are never charged.
func (h *StudyHandler) requireAssistant(w http.ResponseWriter, r *http.Request) bool {
	if generation.Available(h.assistant) {
		return true
	}
	HandleAPIError(w, r, generation.ErrDisabled, "Assistant is not available")
	return false
}

// consume charges one use of feature for the caller. It writes the error
// response and returns false when the charge fails.
func (h *StudyHandler) consume(w http.ResponseWriter, r *http.Request, feature domain.Feature) (trial.Usage, bool) {
	decision, ok := requestDecision(w, r)
	if !ok {
		return trial.Usage{}, false
	}

	usage, err := h.counter.Consume(r.Context(), shared.AccountID(r.Context()), feature, decision.Snapshot)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record usage")
		return trial.Usage{}, false
	}
	return usage, true
}

// Ask handles POST /api/assistant/ask.
func (h *StudyHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !h.requireAssistant(w, r) {
		return
	}

	usage, ok := h.consume(w, r, domain.FeatureAssistant)
	if !ok {
		return
	}

	answer, err := h.assistant.Answer(r.Context(), req.Question)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to answer question")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AskResponse{Answer: answer, Usage: usage})
}

// GenerateFlashcards handles POST /api/flashcards/generate.
func (h *StudyHandler) GenerateFlashcards(w http.ResponseWriter, r *http.Request) {
	var req FlashcardsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if !h.requireAssistant(w, r) {
		return
	}

	usage, ok := h.consume(w, r, domain.FeatureFlashcards)
	if !ok {
		return
	}

	cards, err := h.assistant.Flashcards(r.Context(), req.Text, generation.ClampCount(req.Count))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate flashcards")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, FlashcardsResponse{Flashcards: cards, Usage: usage})
}

// RecordQuizAttempt handles POST /api/quiz/attempts. Question content is
// served elsewhere; this endpoint only charges and acknowledges the attempt.
func (h *StudyHandler) RecordQuizAttempt(w http.ResponseWriter, r *http.Request) {
	var req QuizAttemptRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	usage, ok := h.consume(w, r, domain.FeatureQuiz)
	if !ok {
		return
	}

	resp := QuizAttemptResponse{
		AttemptID: uuid.NewString(),
		QuizID:    req.QuizID,
		StartedAt: h.now().UTC(),
		Usage:     usage,
	}
	logger.FromContextOrDefault(r.Context(), slog.Default()).Info("quiz attempt recorded",
		slog.String("attempt_id", resp.AttemptID),
		slog.String("quiz_id", resp.QuizID),
		slog.Bool("metered", usage.Metered))

	shared.RespondWithJSON(w, r, http.StatusCreated, resp)
}
