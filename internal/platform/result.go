package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"go.uber.org/zap"
)

// Op names an adapter operation
type Op string

const (
	OpAuthenticate Op = "authenticate"
	OpPost         Op = "post"
	OpUnseenCount  Op = "unseen_count"
	OpList         Op = "list_notifications"
	OpMarkSeen     Op = "mark_seen"
	OpReply        Op = "reply"
)

// DefaultCallTimeout bounds a single adapter call when no timeout is configured
const DefaultCallTimeout = 30 * time.Second

// ErrTimeout is returned when an adapter call exceeds its time limit
var ErrTimeout = errors.New("platform: call timed out")

// Result is the outcome of one adapter call
type Result struct {
	Platform string
	Op       Op
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the call succeeded
func (r Result) OK() bool { return r.Err == nil }

// Status returns "success" or "failure", used as a metrics label
func (r Result) Status() string {
	if r.Err != nil {
		return "failure"
	}
	return "success"
}

// Call runs fn under a time limit. A panic in fn is recovered and turned
// into a failed Result so nothing raises past the adapter boundary.
// There are no retries.
func Call(ctx context.Context, name string, op Op, limit time.Duration, fn func(ctx context.Context) error) (res Result) {
	if limit <= 0 {
		limit = DefaultCallTimeout
	}
	res = Result{Platform: name, Op: op}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("platform: %s %s panicked: %v", name, op, r)
		}
		res.Elapsed = time.Since(start)
	}()

	exec := failsafe.With[any](timeout.New[any](limit)).WithContext(ctx)
	err := exec.RunWithExecution(func(e failsafe.Execution[any]) error {
		return fn(e.Context())
	})
	if errors.Is(err, timeout.ErrExceeded) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, limit)
	}
	res.Err = err
	return res
}

// Report logs r at a level matching its outcome
func Report(log *zap.Logger, r Result, fields ...zap.Field) {
	fields = append(fields,
		zap.String("platform", r.Platform),
		zap.String("op", string(r.Op)),
		zap.Duration("elapsed", r.Elapsed),
	)
	if r.Err != nil {
		log.Warn("platform call failed", append(fields, zap.Error(r.Err))...)
		return
	}
	log.Info("platform call ok", fields...)
}
