package remote

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoCorrector remembers successful corrections by input text so repeated
// fragments (menus, footers) cost one remote call per process. Failures are
// never remembered.
type MemoCorrector struct {
	Inner Corrector
	cache *lru.Cache[string, CorrectionResult]
}

// NewMemoCorrector wraps inner with an LRU of size entries.
func NewMemoCorrector(inner Corrector, size int) (*MemoCorrector, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, CorrectionResult](size)
	if err != nil {
		return nil, err
	}
	return &MemoCorrector{Inner: inner, cache: c}, nil
}

func (m *MemoCorrector) Correct(ctx context.Context, text string) (CorrectionResult, error) {
	if res, ok := m.cache.Get(text); ok {
		return res, nil
	}
	res, err := m.Inner.Correct(ctx, text)
	if err != nil {
		return CorrectionResult{}, err
	}
	m.cache.Add(text, res)
	return res, nil
}

// Len reports the number of remembered corrections.
func (m *MemoCorrector) Len() int { return m.cache.Len() }
