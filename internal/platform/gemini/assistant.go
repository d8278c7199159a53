package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/generation"
	"github.com/phrazzld/studypal-api/internal/redact"
	"google.golang.org/genai"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "gemini-2.0-flash"

// contentGenerator is the subset of *genai.Models used by the assistant.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Assistant implements generation.Assistant using the Gemini API.
type Assistant struct {
	models     contentGenerator
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
	rng        *rand.Rand
}

var _ generation.Assistant = (*Assistant)(nil)

// NewAssistant creates a Gemini-backed assistant from the LLM configuration.
func NewAssistant(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Assistant, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %s",
			generation.ErrInvalidConfig, redact.Error(err))
	}

	return newAssistant(client.Models, cfg, logger), nil
}

func newAssistant(models contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.ModelName
	if model == "" {
		model = DefaultModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := cfg.RetryDelay
	if delay < 0 {
		delay = 0
	}

	return &Assistant{
		models:     models,
		model:      model,
		maxRetries: maxRetries,
		baseDelay:  delay,
		logger:     logger.With(slog.String("component", "gemini_assistant"), slog.String("model", model)),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Answer replies to a free-form study question.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", generation.ErrEmptyInput
	}

	prompt, err := answerPrompt(question)
	if err != nil {
		return "", err
	}

	text, err := a.generateWithRetry(ctx, prompt, &genai.GenerateContentConfig{
		SystemInstruction: systemContent(),
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Flashcards writes up to count flashcards covering text.
func (a *Assistant) Flashcards(ctx context.Context, text string, count int) ([]generation.Flashcard, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, generation.ErrEmptyInput
	}
	count = generation.ClampCount(count)

	prompt, err := flashcardsPrompt(text, count)
	if err != nil {
		return nil, err
	}

	raw, err := a.generateWithRetry(ctx, prompt, &genai.GenerateContentConfig{
		SystemInstruction: systemContent(),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, err
	}

	cards, err := parseFlashcards(raw)
	if err != nil {
		a.logger.WarnContext(ctx, "discarding malformed flashcard response",
			slog.String("error", redact.Error(err)),
			slog.Int("response_length", len(raw)))
		return nil, err
	}
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards, nil
}

func systemContent() *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
}

// parseFlashcards decodes the model's JSON array, tolerating a markdown fence.
func parseFlashcards(raw string) ([]generation.Flashcard, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var cards []generation.Flashcard
	if err := json.Unmarshal([]byte(raw), &cards); err != nil {
		return nil, fmt.Errorf("%w: decoding flashcards: %v", generation.ErrInvalidResponse, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards returned", generation.ErrInvalidResponse)
	}
	for i := range cards {
		cards[i].Front = strings.TrimSpace(cards[i].Front)
		cards[i].Back = strings.TrimSpace(cards[i].Back)
		cards[i].Hint = strings.TrimSpace(cards[i].Hint)
		if err := cards[i].Validate(); err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
	}
	return cards, nil
}

// generateWithRetry calls the model, retrying transient failures with
// delay = baseDelay * 2^attempt * jitter(0.5..1.0).
func (a *Assistant) generateWithRetry(
	ctx context.Context,
	prompt string,
	cfg *genai.GenerateContentConfig,
) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		text, err := a.generate(ctx, prompt, cfg)
		if err == nil {
			if attempt > 0 {
				a.logger.InfoContext(ctx, "gemini call succeeded after retry", slog.Int("attempt", attempt+1))
			}
			return text, nil
		}
		lastErr = err

		if !retryable(err) {
			a.logger.WarnContext(ctx, "permanent gemini error, not retrying",
				slog.Int("attempt", attempt+1),
				slog.String("error", redact.Error(err)))
			return "", err
		}
		if attempt == a.maxRetries {
			break
		}

		delay := a.backoff(attempt)
		a.logger.InfoContext(ctx, "retrying gemini call",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", redact.Error(err)))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			}
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	a.logger.WarnContext(ctx, "gemini retries exhausted",
		slog.Int("max_retries", a.maxRetries),
		slog.String("error", redact.Error(lastErr)))
	return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d): %v",
		generation.ErrTransientFailure, a.maxRetries, lastErr)
}

func (a *Assistant) backoff(attempt int) time.Duration {
	if a.baseDelay == 0 {
		return 0
	}
	factor := math.Pow(2, float64(attempt)) * (0.5 + a.rng.Float64()*0.5)
	return time.Duration(float64(a.baseDelay) * factor)
}

func (a *Assistant) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s", generation.ErrGenerationFailed, redact.Error(err))
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: response stopped by safety filter", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: candidate has no content", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: candidate has no text", generation.ErrInvalidResponse)
	}
	return text, nil
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, generation.ErrContentBlocked), errors.Is(err, generation.ErrInvalidResponse):
		return false
	default:
		return true
	}
}
