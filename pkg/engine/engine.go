// Package engine evaluates phantom grain scripts. It wraps zygomys in a
// sandboxed environment and builds kernel solids from user source code.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/grainhull/pkg/kernel"
	"github.com/chazu/grainhull/pkg/pointcloud"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Grain is one solid declared with (grain ...), with the tensor value
// assigned to every point sampled from it.
type Grain struct {
	Name   string
	Solid  kernel.Solid
	Tensor pointcloud.Tensor

	// Spacing overrides the sampling spacing when positive.
	Spacing float64
}

// Design is the output of one evaluation: the grains in declaration order.
type Design struct {
	Grains []Grain
}

// Lookup returns the grain called name.
func (d *Design) Lookup(name string) (Grain, bool) {
	for _, g := range d.Grains {
		if g.Name == name {
			return g, true
		}
	}
	return Grain{}, false
}

// Engine wraps the zygomys interpreter for grain scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	// Timeout bounds one evaluation. Zero means EvalTimeout.
	Timeout time.Duration

	k          kernel.Kernel
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates an Engine that builds solids with k.
func NewEngine(k kernel.Kernel) *Engine {
	return &Engine{k: k}
}

// Evaluate runs source and returns the grains it declares.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns design + nil errors + nil error
//   - On parse/eval failure: returns nil design + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Design, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		d, evalErrs, err := e.evaluate(source)
		ch <- evalResult{design: d, errors: evalErrs, err: err}
	}()

	return e.await(ch, gen)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Design, []EvalError, error) {
	d := &Design{}

	// Empty source is a valid program that declares nothing.
	if strings.TrimSpace(source) == "" {
		return d, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	st := &evalState{design: d}
	registerBuiltins(env, e.k, st)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		evalErrs := parseZygomysError(err)
		if st.firstErr != nil {
			evalErrs[0].Message = st.firstErr.Error()
		}
		return nil, evalErrs, nil
	}
	return d, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
