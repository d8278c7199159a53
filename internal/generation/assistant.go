package generation

import (
	"context"
	"fmt"
	"strings"
)

// MaxFlashcards bounds a single flashcard request.
const MaxFlashcards = 20

// Flashcard is one generated question/answer pair.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
	Hint  string `json:"hint,omitempty"`
}

// Validate checks that both sides have content.
func (f Flashcard) Validate() error {
	if strings.TrimSpace(f.Front) == "" || strings.TrimSpace(f.Back) == "" {
		return fmt.Errorf("%w: flashcard requires front and back", ErrInvalidResponse)
	}
	return nil
}

// Assistant answers study questions and writes flashcards.
type Assistant interface {
	// Answer replies to a free-form study question.
	Answer(ctx context.Context, question string) (string, error)

	// Flashcards writes up to count flashcards covering text.
	Flashcards(ctx context.Context, text string, count int) ([]Flashcard, error)
}

// Disabled is the Assistant used when no LLM is configured.
type Disabled struct{}

var _ Assistant = Disabled{}

// Answer always returns ErrDisabled.
func (Disabled) Answer(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// Flashcards always returns ErrDisabled.
func (Disabled) Flashcards(context.Context, string, int) ([]Flashcard, error) {
	return nil, ErrDisabled
}

// Available reports whether a can serve requests. It is false for nil and
// for Disabled.
func Available(a Assistant) bool {
	switch a.(type) {
	case nil, Disabled, *Disabled:
		return false
	}
	return true
}

// ClampCount limits a requested flashcard count to [1, MaxFlashcards],
// defaulting non-positive values to 5.
func ClampCount(n int) int {
	switch {
	case n <= 0:
		return 5
	case n > MaxFlashcards:
		return MaxFlashcards
	default:
		return n
	}
}
