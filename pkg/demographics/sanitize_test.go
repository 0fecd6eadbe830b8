package demographics

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/pario-ai/fairlens/pkg/models"
)

func TestSanitize(t *testing.T) {
	opts := DefaultSanitizeOptions()
	tests := []struct {
		name, in, want string
	}{
		{"html", "<p>Hello <b>there</b></p>", "Hello there"},
		{"whitespace", "  a \n\n b\t c ", "a b c"},
		{"control", "a\x00b\x07c", "abc"},
		{"email", "write to jane.doe@example.org today", "write to [EMAIL] today"},
		{"ssn", "ssn 123-45-6789 on file", "ssn [SSN] on file"},
		{"phone", "call (555) 123-4567 now", "call [PHONE] now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, opts))
		})
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	out := Sanitize("héllo wörld", SanitizeOptions{MaxLength: 4})
	assert.Equal(t, "héll", out)
	assert.True(t, utf8.ValidString(out))
}

func TestSanitizeKeepsPIIWhenDisabled(t *testing.T) {
	assert.Equal(t, "a@b.co", Sanitize("a@b.co", SanitizeOptions{}))
}

func TestExtractText(t *testing.T) {
	s := &models.Subject{
		Content: models.Content{
			PatientPresentation:      "presents",
			TherapeuticInterventions: []string{"cbt", ""},
			SessionNotes:             "notes",
		},
		Responses:   []models.ModelResponse{{Content: "reply", Reasoning: "because"}},
		Transcripts: []models.Transcript{{Content: "hi"}},
	}
	assert.Equal(t, "presents cbt notes reply because hi", ExtractText(s))
	assert.Equal(t, "", ExtractText(nil))
}
