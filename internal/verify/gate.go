// ABOUTME: Gate controller: routes status, pick, check, add and setup to the bank, selector and session.
// ABOUTME: It is the only component that turns a correct answer into a vault authorization.

package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/lizi-tools/internal/apperr"
)

// GateConfig tunes the gate.
type GateConfig struct {
	// DefaultPick is the challenge size when a pick names none.
	DefaultPick int
	// Decoys are the wrong answers offered as options next to each prompt.
	Decoys []string
	// UnknownOption is always offered; empty disables it.
	UnknownOption string
}

// Gate serializes every operation on one session.
type Gate struct {
	bank     *Bank
	selector *Selector
	session  *Session
	cfg      GateConfig
	logger   *slog.Logger

	mu sync.Mutex
}

// NewGate wires a gate around its collaborators.
func NewGate(bank *Bank, selector *Selector, session *Session, cfg GateConfig, logger *slog.Logger) *Gate {
	if cfg.DefaultPick <= 0 {
		cfg.DefaultPick = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		bank:     bank,
		selector: selector,
		session:  session,
		cfg:      cfg,
		logger:   logger.With("component", "gate"),
	}
}

// Authorize reports whether vault reads are currently allowed.
func (g *Gate) Authorize() error { return g.session.Authorize() }

// StatusResult is the status response.
type StatusResult struct {
	State            State  `json:"state"`
	BankSize         int    `json:"bank_size"`
	Authorized       bool   `json:"authorized"`
	Ready            bool   `json:"ready"`
	ExpiresInMinutes int    `json:"expires_in_minutes,omitempty"`
	BankError        string `json:"bank_error,omitempty"`
}

// PickedQuestion is one prompt of an issued challenge. It never carries answers.
type PickedQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// PickResult is the pick response.
type PickResult struct {
	Prompts   []string         `json:"prompts"`
	Questions []PickedQuestion `json:"questions"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// CheckResult is the response to a correct check.
type CheckResult struct {
	Authorized bool      `json:"authorized"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AddResult is the add response.
type AddResult struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// SetupResult is the setup response.
type SetupResult struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// Dispatch runs req and returns its result struct.
func (g *Gate) Dispatch(ctx context.Context, req Request) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch r := req.(type) {
	case StatusRequest:
		return g.status(ctx), nil
	case PickRequest:
		return g.pick(ctx, r)
	case CheckRequest:
		return g.check(ctx, r)
	case AddRequest:
		return g.add(ctx, r)
	case SetupRequest:
		return g.setup(ctx, r)
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", apperr.ErrValidation, req)
	}
}

func (g *Gate) status(ctx context.Context) StatusResult {
	snap := g.session.Snapshot()
	res := StatusResult{
		State:      snap.State,
		Authorized: snap.State == StateAuthorized,
	}
	if res.Authorized {
		res.ExpiresInMinutes = int(snap.Remaining / time.Minute)
	}
	if err := g.bank.Refresh(ctx); err != nil {
		res.BankError = string(apperr.KindOf(err))
		return res
	}
	size, err := g.bank.Size()
	if err != nil {
		res.BankError = string(apperr.KindOf(err))
		return res
	}
	res.BankSize = size
	res.Ready = size >= g.cfg.DefaultPick
	return res
}

func (g *Gate) pick(ctx context.Context, r PickRequest) (PickResult, error) {
	n := r.N
	if n == 0 {
		n = g.cfg.DefaultPick
	}
	if err := g.bank.Refresh(ctx); err != nil {
		return PickResult{}, err
	}
	questions, err := g.bank.All()
	if err != nil {
		return PickResult{}, err
	}
	picked, err := g.selector.Select(questions, n)
	if err != nil {
		return PickResult{}, err
	}

	ids := make([]string, len(picked))
	res := PickResult{
		Prompts:   make([]string, len(picked)),
		Questions: make([]PickedQuestion, len(picked)),
	}
	for i, q := range picked {
		ids[i] = q.ID
		res.Prompts[i] = q.Prompt
		res.Questions[i] = PickedQuestion{
			Prompt:  q.Prompt,
			Options: g.selector.Options(q, g.cfg.Decoys, g.cfg.UnknownOption),
		}
	}
	ch := g.session.Begin(ids)
	res.ExpiresAt = ch.ExpiresAt.UTC()

	g.logger.Info("challenge issued", "questions", len(ids))
	return res, nil
}

func (g *Gate) check(ctx context.Context, r CheckRequest) (CheckResult, error) {
	ch, err := g.session.Pending()
	if err != nil {
		return CheckResult{}, err
	}
	// Another process may have replaced the bank since pick.
	if err := g.bank.Refresh(ctx); err != nil {
		return CheckResult{}, err
	}
	if len(r.Answers) != len(ch.QuestionIDs) {
		return CheckResult{}, fmt.Errorf("%w: expected %d answer sets, got %d",
			apperr.ErrMalformedAnswer, len(ch.QuestionIDs), len(r.Answers))
	}
	if !g.session.Consume(ch) {
		return CheckResult{}, fmt.Errorf("%w: call pick first", apperr.ErrNoChallenge)
	}

	questions, ok, err := g.bank.Lookup(ch.QuestionIDs)
	if err != nil {
		return CheckResult{}, err
	}
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: question bank changed since pick", apperr.ErrChallengeExpired)
	}
	passed, err := Score(questions, r.Answers)
	if err != nil {
		return CheckResult{}, err
	}
	if !passed {
		g.logger.Warn("verification failed")
		return CheckResult{}, apperr.ErrVerificationFailed
	}

	auth := g.session.Grant()
	g.logger.Info("verification passed", "expires_at", auth.ExpiresAt)
	return CheckResult{Authorized: true, ExpiresAt: auth.ExpiresAt.UTC()}, nil
}

func (g *Gate) add(ctx context.Context, r AddRequest) (AddResult, error) {
	q, err := g.bank.Add(ctx, QuestionInput(r))
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{OK: true, ID: q.ID}, nil
}

func (g *Gate) setup(ctx context.Context, r SetupRequest) (SetupResult, error) {
	n, err := g.bank.Replace(ctx, r.Questions)
	if err != nil {
		return SetupResult{}, err
	}
	g.session.Cancel()
	return SetupResult{OK: true, Count: n}, nil
}
