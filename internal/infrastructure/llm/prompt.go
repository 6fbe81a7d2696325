package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"ApplicationScanner/internal/domain"
)

const defaultMaxBodyChars = 4000

const extractionPrompt = `Extract job application information from the following email.

Extract these fields:
1. company_name: the name of the company/employer (e.g. "Google", "Acme Corp")
2. role: the job title or position (e.g. "Software Engineer", "Data Scientist")
3. status: the application status, one of:
   - "submitted" - application was received/confirmed
   - "rejected" - application was declined
   - "interview" - interview invitation or scheduling
   - "oa_invite" - online assessment or coding challenge invitation
   - "n/a" - cannot determine status

EMAIL:
%s

Respond with ONLY valid JSON in this exact format:
{"company_name": "...", "role": "...", "status": "..."}

If you cannot determine a field, use "Unknown" for company_name/role or "n/a" for status.`

// BuildPrompt renders the user prompt for msg, truncating the body to maxChars runes.
func BuildPrompt(msg domain.Message, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxBodyChars
	}

	var b strings.Builder
	if msg.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	}
	if msg.Sender != "" {
		fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(truncate(strings.TrimSpace(msg.Body), maxChars))

	return fmt.Sprintf(extractionPrompt, b.String())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

type extractionPayload struct {
	Company *string `json:"company_name"`
	Role    *string `json:"role"`
	Status  *string `json:"status"`
}

// ParseResponse reads the model's JSON answer. Markdown code fences are stripped; text
// that is not a JSON object yields Unknown defaults instead of an error.
func ParseResponse(text string) (domain.Extraction, bool) {
	out := domain.Extraction{Company: "Unknown", Role: "Unknown", Status: "n/a"}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return out, false
	}
	if payload.Company != nil {
		out.Company = *payload.Company
	}
	if payload.Role != nil {
		out.Role = *payload.Role
	}
	if payload.Status != nil {
		out.Status = *payload.Status
	}
	return out, true
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// some models wrap the object in prose
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start > 0 && end > start {
		text = text[start : end+1]
	}
	return text
}
