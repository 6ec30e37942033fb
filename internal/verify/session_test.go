// ABOUTME: Tests for the session state machine and its expiry rules.

package verify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/lizi-tools/internal/apperr"
)

func newTestSession() (*Session, *fakeClock) {
	clock := newFakeClock()
	s := NewSession(10*time.Minute, 5*time.Minute)
	s.SetClock(clock.Now)
	return s, clock
}

func TestSession_StartsIdle(t *testing.T) {
	s, _ := newTestSession()
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.True(t, errors.Is(s.Authorize(), apperr.ErrNotAuthorized))

	_, err := s.Pending()
	assert.True(t, errors.Is(err, apperr.ErrNoChallenge))
}

func TestSession_BeginConsume(t *testing.T) {
	s, _ := newTestSession()
	ch := s.Begin([]string{"a", "b"})
	assert.Equal(t, StateChallengePending, s.Snapshot().State)

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pending.QuestionIDs)

	assert.True(t, s.Consume(ch))
	assert.False(t, s.Consume(ch), "a challenge is consumed once")
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_RepickReplacesChallenge(t *testing.T) {
	s, _ := newTestSession()
	old := s.Begin([]string{"a"})
	s.Begin([]string{"b"})

	assert.False(t, s.Consume(old))
	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, pending.QuestionIDs)
}

func TestSession_ChallengeExpires(t *testing.T) {
	s, clock := newTestSession()
	s.Begin([]string{"a"})

	clock.Advance(10 * time.Minute)
	assert.Equal(t, StateIdle, s.Snapshot().State)

	_, err := s.Pending()
	assert.True(t, errors.Is(err, apperr.ErrChallengeExpired))

	// The expired challenge is gone afterwards
	_, err = s.Pending()
	assert.True(t, errors.Is(err, apperr.ErrNoChallenge))
}

func TestSession_GrantAndExpire(t *testing.T) {
	s, clock := newTestSession()
	s.Grant()
	require.NoError(t, s.Authorize())

	snap := s.Snapshot()
	assert.Equal(t, StateAuthorized, snap.State)
	assert.Equal(t, 5*time.Minute, snap.Remaining)

	clock.Advance(90 * time.Second)
	assert.Equal(t, 4*time.Minute, s.Snapshot().Remaining, "remaining rounds up")

	clock.Advance(3*time.Minute + 29*time.Second)
	require.NoError(t, s.Authorize())
	assert.Equal(t, time.Minute, s.Snapshot().Remaining)

	clock.Advance(time.Second)
	assert.True(t, errors.Is(s.Authorize(), apperr.ErrNotAuthorized), "expiry is strict")
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestSession_BeginRevokesAuthorization(t *testing.T) {
	s, _ := newTestSession()
	s.Grant()
	s.Begin([]string{"a"})

	assert.True(t, errors.Is(s.Authorize(), apperr.ErrNotAuthorized))
	assert.Equal(t, StateChallengePending, s.Snapshot().State)
}

func TestSession_CancelKeepsAuthorization(t *testing.T) {
	s, _ := newTestSession()
	s.Grant()
	s.Cancel()
	assert.NoError(t, s.Authorize())

	// A new pick ends the window
	s.Begin([]string{"q1"})
	assert.True(t, errors.Is(s.Authorize(), apperr.ErrNotAuthorized))
}
