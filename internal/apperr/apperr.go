// ABOUTME: Error taxonomy shared by the verification gate, the vault and the tool packs.
// ABOUTME: Packages wrap these sentinels with %w; callers map them back with KindOf.

package apperr

import (
	"errors"
)

// Kind names an error category as reported to tool callers.
type Kind string

// Error kinds.
const (
	KindValidation            Kind = "ValidationError"
	KindInsufficientQuestions Kind = "InsufficientQuestionsError"
	KindChallengeExpired      Kind = "ChallengeExpiredError"
	KindVerificationFailed    Kind = "VerificationFailedError"
	KindMalformedAnswer       Kind = "MalformedAnswerError"
	KindNoChallenge           Kind = "NoChallengeError"
	KindNotAuthorized         Kind = "NotAuthorizedError"
	KindNotFound              Kind = "NotFoundError"
	KindDecryption            Kind = "DecryptionError"
	KindCorrupted             Kind = "CorruptedError"
	KindInternal              Kind = "InternalError"
)

var (
	// ErrValidation indicates a malformed request payload.
	ErrValidation = errors.New("invalid input")
	// ErrInsufficientQuestions indicates the bank is smaller than the requested challenge.
	ErrInsufficientQuestions = errors.New("not enough questions")
	// ErrChallengeExpired indicates the outstanding challenge outlived its TTL.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrVerificationFailed indicates a wrong answer. Never carries detail.
	ErrVerificationFailed = errors.New("verification failed")
	// ErrMalformedAnswer indicates the answer count does not match the challenge.
	ErrMalformedAnswer = errors.New("malformed answer")
	// ErrNoChallenge indicates check was called with no outstanding challenge.
	ErrNoChallenge = errors.New("no challenge outstanding")
	// ErrNotAuthorized indicates no live authorization window.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound indicates a missing vault entry.
	ErrNotFound = errors.New("not found")
	// ErrDecryption indicates ciphertext that fails authentication.
	ErrDecryption = errors.New("decryption failed")
	// ErrCorrupted indicates a persisted document that cannot be read back.
	ErrCorrupted = errors.New("document corrupted")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrInsufficientQuestions, KindInsufficientQuestions},
	{ErrChallengeExpired, KindChallengeExpired},
	{ErrVerificationFailed, KindVerificationFailed},
	{ErrMalformedAnswer, KindMalformedAnswer},
	{ErrNoChallenge, KindNoChallenge},
	{ErrNotAuthorized, KindNotAuthorized},
	{ErrNotFound, KindNotFound},
	{ErrDecryption, KindDecryption},
	{ErrCorrupted, KindCorrupted},
}

// KindOf returns the kind of err, or KindInternal when err matches no sentinel.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Recoverable reports whether the caller can fix the request and resubmit
// without starting a new verification attempt.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInsufficientQuestions, KindMalformedAnswer:
		return true
	default:
		return false
	}
}
