// Package intent scores the social-engineering intent of an email's text with
// a language model.
package intent

import (
	"context"
	"fmt"

	"github.com/mikey/threat-scorer/internal/utils"
)

const (
	// MaxSubjectChars is how much of the subject is sent to the classifier
	MaxSubjectChars = 200
	// MaxBodyChars is how much of the body is sent to the classifier
	MaxBodyChars = 3000
)

// Classifier sends a prompt to a text model and returns its raw answer
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
	Name() string
}

// SystemInstruction is sent as the system role where the backend supports one
const SystemInstruction = "You are an email security analyst. Respond only with JSON."

const promptFormat = `Assess whether the following email is trying to manipulate its reader,
for example through phishing, credential theft, payment fraud, fake urgency or impersonation.

Respond with a single JSON object containing:
- suspicion_score: integer from 0 (harmless) to 10 (certainly malicious)
- reasoning: one sentence explaining the score
- tactics: array of short strings naming the manipulation tactics detected (empty if none)

Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// BuildPrompt renders the classification prompt with truncated subject and body
func BuildPrompt(tp *utils.TextProcessor, subject, body string) string {
	return fmt.Sprintf(promptFormat,
		tp.ProcessText(subject, MaxSubjectChars),
		tp.ProcessText(body, MaxBodyChars))
}
