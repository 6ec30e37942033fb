// ABOUTME: ChallengeSelector draws a random, non-repeating subset of questions.
// ABOUTME: Randomness comes from a ChaCha8 stream seeded by crypto/rand, never from bank order.

package verify

import (
	crand "crypto/rand"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/dedupe"
)

// Selector picks challenge questions. The zero value is not usable; call NewSelector.
type Selector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	recent *dedupe.Cache // nil disables repeat avoidance
}

// NewSelector returns a selector seeded from the operating system's CSPRNG.
// recent, when non-nil, makes the selector prefer questions not asked lately.
func NewSelector(recent *dedupe.Cache) *Selector {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(fmt.Sprintf("seeding selector: %v", err))
	}
	return newSeededSelector(seed, recent)
}

func newSeededSelector(seed [32]byte, recent *dedupe.Cache) *Selector {
	return &Selector{
		rng:    rand.New(rand.NewChaCha8(seed)),
		recent: recent,
	}
}

// Select returns n distinct questions in random order.
func (s *Selector) Select(questions []Question, n int) ([]Question, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive", apperr.ErrValidation)
	}
	if len(questions) < n {
		return nil, fmt.Errorf("%w: requested %d, bank holds %d", apperr.ErrInsufficientQuestions, n, len(questions))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh, stale := s.partition(questions)
	picked := s.sample(fresh, min(n, len(fresh)))
	if len(picked) < n {
		picked = append(picked, s.sample(stale, n-len(picked))...)
	}
	s.shuffle(picked)

	if s.recent != nil {
		ids := make([]string, len(picked))
		for i, q := range picked {
			ids[i] = q.ID
		}
		s.recent.Mark(ids...)
	}
	return picked, nil
}

// partition splits questions into not-recently-asked and recently-asked.
func (s *Selector) partition(questions []Question) (fresh, stale []Question) {
	if s.recent == nil {
		return questions, nil
	}
	for _, q := range questions {
		if s.recent.Check(q.ID) {
			stale = append(stale, q)
		} else {
			fresh = append(fresh, q)
		}
	}
	return fresh, stale
}

// sample draws k items without replacement using a partial Fisher-Yates shuffle
// over a copy, so the input order is never observable in the result.
func (s *Selector) sample(pool []Question, k int) []Question {
	if k <= 0 {
		return nil
	}
	work := make([]Question, len(pool))
	copy(work, pool)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(len(work)-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:k]
}

func (s *Selector) shuffle(qs []Question) {
	s.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

// Options builds the multiple-choice list shown with a question: the
// unknown option plus up to two decoys that match none of the accepted answers.
// Callers may always type a custom answer instead.
func (s *Selector) Options(q Question, decoys []string, unknown string) []string {
	accepted := make(map[string]struct{}, len(q.Answers))
	for _, a := range q.Answers {
		accepted[a] = struct{}{}
	}
	var pool []string
	for _, d := range decoys {
		if _, ok := accepted[Normalize(d)]; ok || Normalize(d) == "" {
			continue
		}
		pool = append(pool, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	options := make([]string, 0, 3)
	if unknown != "" {
		options = append(options, unknown)
	}
	options = append(options, pool[:min(2, len(pool))]...)
	s.rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options
}
