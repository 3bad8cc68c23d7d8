package teamaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// State is the verification progress reported to interactive callers.
type State string

const (
	StateChecking State = "checking"
	StateVerified State = "verified"
	StateFailed   State = "failed"
)

const (
	// DefaultVerifyAttempts is how many times Verify calls the checker
	DefaultVerifyAttempts = 3
	// DefaultVerifyStep is the linear delay unit: attempt n waits n*step before retrying
	DefaultVerifyStep = time.Second
)

// errUnresolved marks a result that came back with ReasonError
var errUnresolved = errors.New("team access could not be resolved")

// Update is one progress notification. While checking, Result is the
// optimistic placeholder so callers never flash a denial mid-retry.
type Update struct {
	State   State
	Attempt int
	Result  *Result
	Err     error
}

// VerificationError is returned once every attempt has failed.
type VerificationError struct {
	TeamDeleted bool
	Attempts    int
	Err         error
}

func (e *VerificationError) Error() string {
	if e.TeamDeleted {
		return "team was deleted"
	}
	return fmt.Sprintf("could not verify membership after %d attempts: %v", e.Attempts, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// linearBackOff waits step, 2*step, 3*step... between attempts.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// Verifier retries a whole team access check for interactive callers.
type Verifier struct {
	checker  Checker
	attempts int
	step     time.Duration
	newTimer func() backoff.Timer
	logger   *logrus.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifyAttempts sets the total number of attempts.
func WithVerifyAttempts(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.attempts = n
		}
	}
}

// WithVerifyStep sets the linear delay unit.
func WithVerifyStep(step time.Duration) VerifierOption {
	return func(v *Verifier) {
		if step >= 0 {
			v.step = step
		}
	}
}

// WithVerifyTimerFactory overrides the timer used between attempts.
func WithVerifyTimerFactory(newTimer func() backoff.Timer) VerifierOption {
	return func(v *Verifier) {
		v.newTimer = newTimer
	}
}

// WithVerifyLogger sets the verifier logger.
func WithVerifyLogger(logger *logrus.Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier wraps checker with linear retries.
func NewVerifier(checker Checker, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		checker:  checker,
		attempts: DefaultVerifyAttempts,
		step:     DefaultVerifyStep,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks team access, retrying failures sequentially. onUpdate may be
// nil. A denial is a successful verification; only errors and ReasonError
// results are retried. The returned error is always a *VerificationError.
func (v *Verifier) Verify(ctx context.Context, userID, teamID string, onUpdate func(Update)) (*Result, error) {
	emit := func(u Update) {
		if onUpdate != nil {
			onUpdate(u)
		}
	}

	var (
		attempt int
		result  *Result
	)
	op := func() error {
		attempt++
		emit(Update{State: StateChecking, Attempt: attempt, Result: &Result{HasAccess: true, IsMember: true, AccessReason: ReasonErrorAssumedAccess}})

		res, err := v.checker.CheckTeamAccess(ctx, userID, teamID)
		if err != nil {
			return err
		}
		if res == nil || res.AccessReason == ReasonError {
			return errUnresolved
		}
		result = res
		return nil
	}

	var timer backoff.Timer
	if v.newTimer != nil {
		timer = v.newTimer()
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: v.step}, uint64(v.attempts-1)),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		v.logger.WithError(err).WithFields(logrus.Fields{
			"team_id":  teamID,
			"attempt":  attempt,
			"retry_in": next,
		}).Warn("Team membership verification failed, retrying")
	}

	if err := backoff.RetryNotifyWithTimer(op, policy, notify, timer); err != nil {
		verr := &VerificationError{
			TeamDeleted: errors.Is(err, ErrTeamNotFound),
			Attempts:    attempt,
			Err:         err,
		}
		failed := &Result{AccessReason: ReasonError}
		if verr.TeamDeleted {
			failed.AccessReason = ReasonTeamNotFound
		}
		emit(Update{State: StateFailed, Attempt: attempt, Result: failed, Err: verr})
		return failed, verr
	}

	emit(Update{State: StateVerified, Attempt: attempt, Result: result})
	return result, nil
}
