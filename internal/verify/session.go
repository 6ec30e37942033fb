// ABOUTME: VerificationSession: the in-memory IDLE / CHALLENGE_PENDING / AUTHORIZED state machine.
// ABOUTME: Expiry is checked lazily against an injectable clock; nothing is persisted.

package verify

import (
	"fmt"
	"sync"
	"time"

	"github.com/2389/lizi-tools/internal/apperr"
)

// State is the externally visible session state.
type State string

// Session states.
const (
	StateIdle             State = "IDLE"
	StateChallengePending State = "CHALLENGE_PENDING"
	StateAuthorized       State = "AUTHORIZED"
)

// Challenge is one outstanding set of selected questions.
type Challenge struct {
	IssuedAt    time.Time
	ExpiresAt   time.Time
	QuestionIDs []string

	seq uint64
}

// Authorization is a time-bounded grant allowing vault reads.
type Authorization struct {
	GrantedAt time.Time
	ExpiresAt time.Time
}

// Session tracks at most one challenge and at most one authorization.
// It is process-local: a restart always comes back IDLE.
type Session struct {
	mu           sync.Mutex
	challengeTTL time.Duration
	authTTL      time.Duration
	now          func() time.Time

	challenge *Challenge
	auth      *Authorization
	seq       uint64
}

// NewSession creates an IDLE session.
func NewSession(challengeTTL, authTTL time.Duration) *Session {
	return &Session{
		challengeTTL: challengeTTL,
		authTTL:      authTTL,
		now:          time.Now,
	}
}

// SetClock replaces the session's time source.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Begin records a new challenge, discarding any pending one and revoking
// any live authorization.
func (s *Session) Begin(questionIDs []string) Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := make([]string, len(questionIDs))
	copy(ids, questionIDs)
	s.seq++
	s.challenge = &Challenge{
		seq:         s.seq,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.challengeTTL),
		QuestionIDs: ids,
	}
	s.auth = nil
	return *s.challenge
}

// Pending returns the outstanding challenge without consuming it.
// An expired challenge is cleared and reported as ErrChallengeExpired.
func (s *Session) Pending() (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.challenge == nil {
		return Challenge{}, fmt.Errorf("%w: call pick first", apperr.ErrNoChallenge)
	}
	if !s.now().Before(s.challenge.ExpiresAt) {
		s.challenge = nil
		return Challenge{}, apperr.ErrChallengeExpired
	}
	return *s.challenge, nil
}

// Consume clears the given challenge. It returns false if that challenge was
// already replaced or cleared.
func (s *Session) Consume(issued Challenge) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.challenge == nil || s.challenge.seq != issued.seq {
		return false
	}
	s.challenge = nil
	return true
}

// Cancel drops any pending challenge. The authorization is kept.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = nil
}

// Grant starts a fresh authorization window, replacing any previous one.
func (s *Session) Grant() Authorization {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.auth = &Authorization{GrantedAt: now, ExpiresAt: now.Add(s.authTTL)}
	return *s.auth
}

// Authorize returns nil while an authorization window is live and
// ErrNotAuthorized otherwise. It does not consume or extend the window.
func (s *Session) Authorize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveAuthLocked() == nil {
		return apperr.ErrNotAuthorized
	}
	return nil
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State State
	// Remaining is the authorization time left rounded up to whole minutes.
	Remaining time.Duration
}

// Snapshot reports the current state without changing it.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.liveAuthLocked(); a != nil {
		left := a.ExpiresAt.Sub(s.now())
		return Snapshot{State: StateAuthorized, Remaining: ceilMinute(left)}
	}
	if s.challenge != nil && s.now().Before(s.challenge.ExpiresAt) {
		return Snapshot{State: StateChallengePending}
	}
	return Snapshot{State: StateIdle}
}

// liveAuthLocked returns the authorization if it has not expired. Must be called with mu held.
func (s *Session) liveAuthLocked() *Authorization {
	if s.auth == nil {
		return nil
	}
	if !s.now().Before(s.auth.ExpiresAt) {
		s.auth = nil
		return nil
	}
	return s.auth
}

func ceilMinute(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Minute - 1) / time.Minute) * time.Minute
}
