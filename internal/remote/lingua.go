package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// LinguaIdentifier scores languages locally with lingua-go. It only
// identifies; correction always goes through a Corrector.
type LinguaIdentifier struct {
	detector lingua.LanguageDetector
}

// NewLinguaIdentifier restricts detection to the Scandinavian languages and
// English, which keeps the model small and the nno/nob split sharp.
func NewLinguaIdentifier() *LinguaIdentifier {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.Nynorsk, lingua.Bokmal, lingua.Danish, lingua.Swedish, lingua.English).
		Build()
	return &LinguaIdentifier{detector: detector}
}

func (l *LinguaIdentifier) Identify(ctx context.Context, text string) (LanguageScores, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	scores := LanguageScores{}
	for _, v := range l.detector.ComputeLanguageConfidenceValues(text) {
		if v.Value() <= 0 {
			continue
		}
		code := strings.ToLower(v.Language().IsoCode639_3().String())
		scores[code] = v.Value()
	}
	if len(scores) == 0 {
		return nil, ErrUnknown
	}
	return scores, nil
}
