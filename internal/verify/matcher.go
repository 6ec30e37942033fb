// ABOUTME: AnswerMatcher scores submitted answer-sets against the challenge questions.
// ABOUTME: Policy: a position matches when any submitted answer equals an accepted one.

package verify

import (
	"crypto/subtle"
	"fmt"

	"github.com/2389/lizi-tools/internal/apperr"
)

// Score reports whether every submitted answer-set matches its question.
// submitted is position-aligned with questions; a length mismatch is
// ErrMalformedAnswer. Every position is evaluated so the time taken does not
// depend on which position failed.
func Score(questions []Question, submitted [][]string) (bool, error) {
	if len(submitted) != len(questions) {
		return false, fmt.Errorf("%w: expected %d answer sets, got %d", apperr.ErrMalformedAnswer, len(questions), len(submitted))
	}

	all := 1
	for i, q := range questions {
		all &= matchOne(q.Answers, submitted[i])
	}
	return all == 1, nil
}

// matchOne returns 1 if any normalized candidate equals any accepted answer.
func matchOne(accepted, candidates []string) int {
	hit := 0
	for _, c := range normalizeSet(candidates) {
		for _, a := range accepted {
			hit |= subtle.ConstantTimeCompare([]byte(c), []byte(a))
		}
	}
	return hit
}
