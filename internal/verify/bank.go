// ABOUTME: QuestionBank: the persisted, sealed collection of challenge questions.
// ABOUTME: Mutations reload and rewrite the document under the store lock; a failed write keeps the previous bank.

package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/lizi-tools/internal/apperr"
	"github.com/2389/lizi-tools/internal/seal"
	"github.com/2389/lizi-tools/internal/store"
)

// BankDocument is the store name of the question bank.
const BankDocument = "question-bank"

const (
	bankVersion       = 1
	maxPromptLength   = 1000
	maxAnswerCount    = 32
	maxQuestionsTotal = 500
)

// Question is one challenge question. Answers are stored normalized.
type Question struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Answers   []string  `json:"answers"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionInput is the caller-supplied shape of a new question.
type QuestionInput struct {
	Prompt          string   `json:"prompt"`
	AcceptedAnswers []string `json:"accepted_answers"`
}

// bankEnvelope is the on-disk form: a salt plus the sealed question list.
type bankEnvelope struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Sealed  []byte `json:"sealed"`
}

type bankPayload struct {
	Questions []Question `json:"questions"`
}

// Bank holds the questions in memory and persists every change.
// A bank that failed to load refuses every operation with the load error.
type Bank struct {
	mu        sync.RWMutex
	store     store.DocumentStore
	keys      seal.KeySource
	cipher    *seal.Cipher
	salt      []byte
	questions []Question
	err       error
	logger    *slog.Logger
	now       func() time.Time
}

// OpenBank loads the bank from ds. It always returns a usable *Bank; when the
// document cannot be read back the bank is failed closed and the same error
// is returned here and from every later call.
func OpenBank(ctx context.Context, ds store.DocumentStore, keys seal.KeySource, logger *slog.Logger) (*Bank, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bank{
		store:  ds,
		keys:   keys,
		logger: logger.With("component", "bank"),
		now:    time.Now,
	}
	b.err = b.load(ctx)
	if b.err != nil {
		b.logger.Error("question bank unavailable", "error", b.err)
	}
	return b, b.err
}

// load reads the persisted bank into memory. A bank that was never saved
// keeps its in-memory salt. The derived cipher is reused while the salt is unchanged.
func (b *Bank) load(ctx context.Context) error {
	data, err := b.store.Load(ctx, BankDocument)
	if errors.Is(err, store.ErrNotFound) {
		if b.cipher != nil {
			return nil
		}
		salt, err := seal.NewSalt()
		if err != nil {
			return err
		}
		b.salt = salt
		b.cipher, err = seal.Derive(b.keys, salt, BankDocument)
		return err
	}
	if err != nil {
		return fmt.Errorf("loading question bank: %w", err)
	}

	var env bankEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: question bank is not valid JSON", apperr.ErrCorrupted)
	}
	if env.Version != bankVersion {
		return fmt.Errorf("%w: unsupported question bank version %d", apperr.ErrCorrupted, env.Version)
	}
	c := b.cipher
	if c == nil || !bytes.Equal(env.Salt, b.salt) {
		c, err = seal.Derive(b.keys, env.Salt, BankDocument)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrCorrupted, err)
		}
	}
	plain, err := c.OpenBlob(env.Sealed, []byte(BankDocument))
	if err != nil {
		return fmt.Errorf("%w: question bank cannot be opened (damaged file or wrong master key)", apperr.ErrCorrupted)
	}
	var payload bankPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return fmt.Errorf("%w: question bank payload is not valid JSON", apperr.ErrCorrupted)
	}
	for _, q := range payload.Questions {
		if q.ID == "" || len(q.Answers) == 0 {
			return fmt.Errorf("%w: question bank holds an invalid question", apperr.ErrCorrupted)
		}
	}

	b.salt = env.Salt
	b.cipher = c
	b.questions = payload.Questions
	b.logger.Debug("question bank loaded", "count", len(b.questions))
	return nil
}

// Refresh rereads the document so changes saved by another process become
// visible. A refresh error is returned but does not fail the bank closed.
func (b *Bank) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	return b.load(ctx)
}

// lockAndReload takes the document lock and rereads the bank. Must be called with mu held.
func (b *Bank) lockAndReload(ctx context.Context) (func(), error) {
	unlock, err := b.store.Lock(ctx, BankDocument)
	if err != nil {
		return nil, fmt.Errorf("locking question bank: %w", err)
	}
	if err := b.load(ctx); err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// Err returns the load error that failed the bank closed, if any.
func (b *Bank) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Size returns the number of questions.
func (b *Bank) Size() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return 0, b.err
	}
	return len(b.questions), nil
}

// All returns a copy of every question in bank order. Internal use only:
// the result carries answers and must never reach a caller.
func (b *Bank) All() ([]Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out, nil
}

// Lookup returns the questions with the given IDs in the given order.
// ok is false if any ID is no longer in the bank.
func (b *Bank) Lookup(ids []string) ([]Question, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return nil, false, b.err
	}
	byID := make(map[string]Question, len(b.questions))
	for _, q := range b.questions {
		byID[q.ID] = q
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, false, nil
		}
		out = append(out, q)
	}
	return out, true, nil
}

// Add appends one question with a fresh ID and persists the bank.
func (b *Bank) Add(ctx context.Context, in QuestionInput) (Question, error) {
	q, err := b.newQuestion(in)
	if err != nil {
		return Question{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Question{}, b.err
	}
	unlock, err := b.lockAndReload(ctx)
	if err != nil {
		return Question{}, err
	}
	defer unlock()
	if len(b.questions) >= maxQuestionsTotal {
		return Question{}, fmt.Errorf("%w: question bank is full (%d)", apperr.ErrValidation, maxQuestionsTotal)
	}

	next := make([]Question, len(b.questions), len(b.questions)+1)
	copy(next, b.questions)
	next = append(next, q)
	if err := b.saveLocked(ctx, next); err != nil {
		return Question{}, err
	}
	b.questions = next

	b.logger.Info("question added", "id", q.ID, "count", len(next))
	return q, nil
}

// Replace atomically swaps the whole bank. Any malformed entry rejects the batch.
func (b *Bank) Replace(ctx context.Context, inputs []QuestionInput) (int, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("%w: questions must not be empty", apperr.ErrValidation)
	}
	if len(inputs) > maxQuestionsTotal {
		return 0, fmt.Errorf("%w: at most %d questions", apperr.ErrValidation, maxQuestionsTotal)
	}
	next := make([]Question, 0, len(inputs))
	for i, in := range inputs {
		q, err := b.newQuestion(in)
		if err != nil {
			return 0, fmt.Errorf("question %d: %w", i+1, err)
		}
		next = append(next, q)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	unlock, err := b.lockAndReload(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()
	if err := b.saveLocked(ctx, next); err != nil {
		return 0, err
	}
	b.questions = next

	b.logger.Info("question bank replaced", "count", len(next))
	return len(next), nil
}

func (b *Bank) newQuestion(in QuestionInput) (Question, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return Question{}, fmt.Errorf("%w: prompt is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(prompt) > maxPromptLength {
		return Question{}, fmt.Errorf("%w: prompt exceeds %d characters", apperr.ErrValidation, maxPromptLength)
	}
	answers := normalizeSet(in.AcceptedAnswers)
	if len(answers) == 0 {
		return Question{}, fmt.Errorf("%w: accepted_answers must contain at least one non-blank answer", apperr.ErrValidation)
	}
	if len(answers) > maxAnswerCount {
		return Question{}, fmt.Errorf("%w: at most %d accepted answers", apperr.ErrValidation, maxAnswerCount)
	}
	return Question{
		ID:        uuid.New().String(),
		Prompt:    prompt,
		Answers:   answers,
		CreatedAt: b.now().UTC(),
	}, nil
}

// saveLocked seals and writes questions. Must be called with mu and the document lock held.
func (b *Bank) saveLocked(ctx context.Context, questions []Question) error {
	plain, err := json.Marshal(bankPayload{Questions: questions})
	if err != nil {
		return fmt.Errorf("encoding question bank: %w", err)
	}
	sealed, err := b.cipher.SealBlob(plain, []byte(BankDocument))
	if err != nil {
		return fmt.Errorf("sealing question bank: %w", err)
	}
	data, err := json.Marshal(bankEnvelope{Version: bankVersion, Salt: b.salt, Sealed: sealed})
	if err != nil {
		return fmt.Errorf("encoding question bank envelope: %w", err)
	}
	if err := b.store.Save(ctx, BankDocument, data); err != nil {
		return fmt.Errorf("saving question bank: %w", err)
	}
	return nil
}
