package demographics

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pario-ai/fairlens/pkg/models"
)

// SanitizeOptions control Sanitize.
type SanitizeOptions struct {
	// MaxLength caps the output in runes; zero means unlimited.
	MaxLength int
	RedactPII bool
	StripHTML bool
}

// DefaultSanitizeOptions strips markup, redacts PII and caps text at 32 KiB worth of runes.
func DefaultSanitizeOptions() SanitizeOptions {
	return SanitizeOptions{MaxLength: 32 * 1024, RedactPII: true, StripHTML: true}
}

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ssnPattern     = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phonePattern   = regexp.MustCompile(`(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)
)

// Sanitize prepares free text for analysis: markup and control characters are
// removed, PII is replaced with placeholders, whitespace is collapsed and the
// result is truncated on a rune boundary.
func Sanitize(text string, opts SanitizeOptions) string {
	if opts.StripHTML {
		text = htmlTagPattern.ReplaceAllString(text, " ")
	}
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if opts.RedactPII {
		text = emailPattern.ReplaceAllString(text, "[EMAIL]")
		text = ssnPattern.ReplaceAllString(text, "[SSN]")
		text = phonePattern.ReplaceAllString(text, "[PHONE]")
	}
	text = strings.Join(strings.Fields(text), " ")
	if opts.MaxLength > 0 {
		if runes := []rune(text); len(runes) > opts.MaxLength {
			text = strings.TrimSpace(string(runes[:opts.MaxLength]))
		}
	}
	return text
}

// ExtractText joins every free-text field of a subject: session content,
// model responses with their reasoning, and transcripts. Empty parts are skipped.
func ExtractText(s *models.Subject) string {
	if s == nil {
		return ""
	}
	parts := []string{s.Content.PatientPresentation}
	parts = append(parts, s.Content.TherapeuticInterventions...)
	parts = append(parts, s.Content.PatientResponses...)
	parts = append(parts, s.Content.SessionNotes)
	for _, r := range s.Responses {
		parts = append(parts, r.Content, r.Reasoning)
	}
	for _, t := range s.Transcripts {
		parts = append(parts, t.Content)
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
