// Package remote talks to the language identification and translation
// services. Every call is a single attempt; callers decide what a failure
// means for them.
package remote

import (
	"context"
	"errors"
)

// ErrUnknown marks an identification that produced no usable scores.
var ErrUnknown = errors.New("language unknown")

// LanguageScores maps language codes to confidence in [0,1]. Scores need not
// sum to one.
type LanguageScores map[string]float64

// Best returns the highest scoring language. Ties resolve to the
// lexicographically smallest code so the answer is deterministic.
func (s LanguageScores) Best() (string, float64, bool) {
	var (
		code  string
		score float64
		found bool
	)
	for c, v := range s {
		if !found || v > score || (v == score && c < code) {
			code, score, found = c, v, true
		}
	}
	return code, score, found
}

// Score returns the score for code, or -1 when it is absent.
func (s LanguageScores) Score(code string) float64 {
	if v, ok := s[code]; ok {
		return v
	}
	return -1
}

// CorrectionResult is one corrected text unit.
type CorrectionResult struct {
	Original  string
	Corrected string
	// Unchanged is set when the sanitized correction equals the original.
	Unchanged bool
}

// NewResult sanitizes corrected and compares it against original. Marker
// characters that were already part of original survive sanitizing, so an
// echoed input always comes back Unchanged.
func NewResult(original, corrected string) CorrectionResult {
	clean := sanitizeAgainst(corrected, original)
	return CorrectionResult{
		Original:  original,
		Corrected: clean,
		Unchanged: clean == normalize(original),
	}
}

// Identifier scores the languages of a text sample.
type Identifier interface {
	Identify(ctx context.Context, text string) (LanguageScores, error)
}

// Corrector rewrites one text unit into the target form.
type Corrector interface {
	Correct(ctx context.Context, text string) (CorrectionResult, error)
}
