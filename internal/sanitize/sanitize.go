// Package sanitize rejects empty, oversized and adversarial free text before
// it is forwarded to any paid upstream.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	MaxDestinationLength = 100
	MaxFieldLength       = 50
	MaxMessageLength     = 500

	previewLength = 40
)

type Reason string

const (
	ReasonEmptyInput        Reason = "empty_input"
	ReasonTooLong           Reason = "too_long"
	ReasonSuspiciousPattern Reason = "suspicious_pattern"
)

var (
	ErrEmptyInput        = errors.New("sanitize: empty input")
	ErrTooLong           = errors.New("sanitize: input too long")
	ErrSuspiciousPattern = errors.New("sanitize: input not allowed")
)

// RejectionError reports why a value was refused. It never carries the
// pattern that matched.
type RejectionError struct {
	Field  string
	Reason Reason
	Max    int
}

func (e *RejectionError) Error() string {
	if e.Reason == ReasonTooLong {
		return fmt.Sprintf("sanitize: %s rejected (%s, max %d)", e.Field, e.Reason, e.Max)
	}
	return fmt.Sprintf("sanitize: %s rejected (%s)", e.Field, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	switch e.Reason {
	case ReasonEmptyInput:
		return ErrEmptyInput
	case ReasonTooLong:
		return ErrTooLong
	default:
		return ErrSuspiciousPattern
	}
}

type family struct {
	name     string
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Patterns run against lower-cased text with whitespace runs collapsed.
var families = []family{
	{
		name: "instruction_override",
		patterns: compile(
			`\b(ignore|ignora|ignorar|forget|olvida|olvidar|disregard|override|omite|omitir|anula|anular)\b.{0,40}\b(instructions?|instrucciones|prompt)\b`,
			`\b(ignore|forget|disregard|override)\b.{0,40}\b(your|all|previous|prior|above|earlier)\s+rules\b`,
			`\b(ignora|ignorar|olvida|olvidar|omite|omitir|anula|anular)\b.{0,40}\b((tus|sus)\s+reglas|reglas\s+(anteriores|previas|del\s+sistema))\b`,
			`\b(ignore|forget|disregard)\s+(everything|all)\s+(you\s+(were|have\s+been)\s+told|above|before)\b`,
			`\b(ignora|olvida)\s+todo\s+lo\s+(anterior|que\s+te\s+(dijeron|han\s+dicho|indicaron))\b`,
		),
	},
	{
		name: "role_reassignment",
		patterns: compile(
			`\byou\s+are\s+now\b`,
			`\bact\s+as\b`,
			`\bpretend\s+(to\s+be|you\s+are)\b`,
			`\bfrom\s+now\s+on\s+you\b`,
			`\bahora\s+eres\b`,
			`\bact[uú]a\s+como\b`,
			`\bfinge\s+(ser|que)\b`,
			`\ba\s+partir\s+de\s+ahora\s+eres\b`,
		),
	},
	{
		name: "prompt_extraction",
		patterns: compile(
			`\bsystem\s*:`,
			`\bsistema\s*:`,
			`\bsystem\s+prompt\b`,
			`\bprompt\s+del\s+sistema\b`,
			`\b(show|reveal|tell|print|give|display|repeat)\b.{0,20}\b(your|the)\s+(system\s+)?(prompt|instructions)\b`,
			`\b(muestra|muéstrame|muestrame|revela|dime|dame|repite)\b.{0,20}\b(tu|tus)\s+(prompt|instrucciones)\b`,
		),
	},
	{
		name: "code_injection",
		patterns: compile(
			`\bexecute\s*:`,
			`\bejecuta(r)?\s*:`,
			`<\s*/?\s*script`,
			`\bimport\s+(os|sys|subprocess|socket)\b`,
			`__import__`,
			`\bsubprocess\b`,
			`\bos\.(system|popen)\b`,
			`\b(eval|exec)\s*\(`,
			`\brm\s+-rf\b`,
			`\$\(`,
		),
	},
}

// Check trims text and validates it against maxLength and the adversarial
// signatures. Length is counted in characters, not bytes.
func Check(text string, maxLength int) (string, Reason, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ReasonEmptyInput, false
	}
	if maxLength > 0 && utf8.RuneCountInString(trimmed) > maxLength {
		return "", ReasonTooLong, false
	}
	if matchFamily(trimmed) != "" {
		return "", ReasonSuspiciousPattern, false
	}
	return trimmed, "", true
}

func matchFamily(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	for _, f := range families {
		for _, p := range f.patterns {
			if p.MatchString(normalized) {
				return f.name
			}
		}
	}
	return ""
}

// Sanitizer wraps Check with security logging.
type Sanitizer struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// Required validates a mandatory field.
func (s *Sanitizer) Required(field, text string, maxLength int) (string, error) {
	clean, reason, ok := Check(text, maxLength)
	if ok {
		return clean, nil
	}
	s.logRejection(field, text, reason)
	return "", &RejectionError{Field: field, Reason: reason, Max: maxLength}
}

// Optional validates a field that may be left blank. Blank yields "".
func (s *Sanitizer) Optional(field, text string, maxLength int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return s.Required(field, text, maxLength)
}

func (s *Sanitizer) logRejection(field, text string, reason Reason) {
	evt := s.logger.Warn().
		Str("event", "security").
		Str("field", field).
		Str("reason", string(reason)).
		Str("preview", preview(text))
	if reason == ReasonSuspiciousPattern {
		evt = evt.Str("family", matchFamily(text))
	}
	evt.Msg("input rejected")
}

func preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	r := []rune(text)
	return string(r[:previewLength]) + "..."
}
