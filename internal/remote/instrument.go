package remote

import (
	"context"

	"github.com/hyperifyio/nnfix/internal/metrics"
)

// CountedIdentifier records identification outcomes.
type CountedIdentifier struct{ Inner Identifier }

func (c CountedIdentifier) Identify(ctx context.Context, text string) (LanguageScores, error) {
	scores, err := c.Inner.Identify(ctx, text)
	if err != nil {
		metrics.IdentifyCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.IdentifyCalls.WithLabelValues("ok").Inc()
	return scores, nil
}

// CountedCorrector records correction outcomes and in-flight calls.
type CountedCorrector struct{ Inner Corrector }

func (c CountedCorrector) Correct(ctx context.Context, text string) (CorrectionResult, error) {
	metrics.CorrectInFlight.Inc()
	defer metrics.CorrectInFlight.Dec()
	res, err := c.Inner.Correct(ctx, text)
	switch {
	case err != nil:
		metrics.CorrectCalls.WithLabelValues("error").Inc()
	case res.Unchanged:
		metrics.CorrectCalls.WithLabelValues("unchanged").Inc()
	default:
		metrics.CorrectCalls.WithLabelValues("changed").Inc()
	}
	return res, err
}
