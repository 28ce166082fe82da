package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input bounds for the free-text symptom description. The lower bound keeps
// one-word inputs from producing garbage retrievals; the upper bound keeps a
// single request from saturating the prompt budget.
const (
	MinSymptomsLength = 10
	MaxSymptomsLength = 2000
	MaxPatientAge     = 120
)

// SQL and template fragments that should never appear in a symptom
// description.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

// ValidateTriageRequest checks a request before it reaches retrieval and
// generation. The core itself tolerates empty queries (they short-circuit to
// an empty match list); this boundary check exists so route handlers can
// reject junk with a 400 instead of burning a generation call on it.
func ValidateTriageRequest(req TriageRequest) error {
	text := strings.TrimSpace(req.Symptoms)

	if text == "" {
		return NewValidationError("symptoms", text, ErrSymptomsEmpty)
	}
	if n := utf8.RuneCountInString(text); n < MinSymptomsLength {
		return NewValidationError("symptoms", text, ErrSymptomsTooShort)
	} else if n > MaxSymptomsLength {
		return NewValidationError("symptoms", fmt.Sprintf("%d chars", n), ErrSymptomsTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("symptoms", text, ErrQueryInjection)
		}
	}

	if req.Age < 0 || req.Age > MaxPatientAge {
		return NewValidationError("age", fmt.Sprintf("%d", req.Age), ErrAgeOutOfRange)
	}

	return nil
}
