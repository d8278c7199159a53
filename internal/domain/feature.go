package domain

import "fmt"

// Feature names a capability whose use on a non-full account is limited by a
// per-account trial counter.
type Feature string

const (
	FeatureQuiz       Feature = "quiz"
	FeatureFlashcards Feature = "flashcards"
	FeatureAssistant  Feature = "assistant"
)

// Features lists every metered feature in a stable order.
var Features = []Feature{FeatureQuiz, FeatureFlashcards, FeatureAssistant}

// IsValid reports whether f is a known feature.
func (f Feature) IsValid() bool {
	switch f {
	case FeatureQuiz, FeatureFlashcards, FeatureAssistant:
		return true
	default:
		return false
	}
}

// String returns the feature name.
func (f Feature) String() string {
	return string(f)
}

// ParseFeature validates a feature name.
func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
	return f, nil
}

// DefaultTrialAllowances returns the per-feature use counts granted to a new
// account. The map is freshly allocated on every call.
func DefaultTrialAllowances() map[Feature]int {
	return map[Feature]int{
		FeatureQuiz:       5,
		FeatureFlashcards: 5,
		FeatureAssistant:  10,
	}
}
