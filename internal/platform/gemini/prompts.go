package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/phrazzld/studypal-api/internal/generation"
)

const systemInstruction = `You are StudyPal, a patient study assistant for students.
Keep answers accurate and concise. Decline requests unrelated to studying.`

var answerTemplate = template.Must(template.New("answer").Parse(
	`Answer the following study question clearly. Use short paragraphs and, where helpful, a worked example.

Question:
{{.Question}}`))

var flashcardsTemplate = template.Must(template.New("flashcards").Parse(
	`Create exactly {{.Count}} flashcards that help a student learn the material below.
Respond with a JSON array only. Each element must be an object with the string fields
"front" (a question), "back" (its answer) and optionally "hint".

Material:
{{.Text}}`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: rendering %s prompt: %v", generation.ErrGenerationFailed, tmpl.Name(), err)
	}
	return buf.String(), nil
}

func answerPrompt(question string) (string, error) {
	return render(answerTemplate, struct{ Question string }{question})
}

func flashcardsPrompt(text string, count int) (string, error) {
	return render(flashcardsTemplate, struct {
		Text  string
		Count int
	}{text, count})
}
