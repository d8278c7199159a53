// Package gemini implements generation.Assistant on top of Google's Gemini API
// via the google.golang.org/genai client.
//
// Prompts are rendered from text/template definitions embedded in the binary.
// Flashcard requests ask the model for a JSON array and validate every card
// before returning it. Transient API failures are retried with exponential
// backoff and jitter; blocked or malformed responses are returned immediately.
package gemini
