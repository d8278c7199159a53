// Package generation defines the AI study assistant used by the metered
// assistant and flashcard endpoints. Implementations talk to an LLM (Gemini in
// production); the HTTP layer depends only on the Assistant interface.
package generation
