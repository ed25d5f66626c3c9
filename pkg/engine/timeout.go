package engine

import (
	"errors"
	"fmt"
	"time"
)

// EvalTimeout is the default limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a script runs past the engine's timeout.
	ErrTimeout = errors.New("evaluation timed out")

	// ErrSuperseded is returned to an Evaluate call whose result arrived
	// after a later call had started.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

type evalResult struct {
	design *Design
	errors []EvalError
	err    error
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return EvalTimeout
}

// await returns the result of evaluation gen. The evaluating goroutine is
// abandoned on timeout; it writes to a buffered channel and exits.
func (e *Engine) await(ch <-chan evalResult, gen uint64) (*Design, []EvalError, error) {
	limit := e.timeout()
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		e.mu.Lock()
		stale := gen != e.generation
		e.mu.Unlock()
		if stale {
			return nil, nil, ErrSuperseded
		}
		return res.design, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, limit)
	}
}
