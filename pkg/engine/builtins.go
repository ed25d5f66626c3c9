package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/grainhull/pkg/kernel"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites grain script source before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: outer-shell -> outer_shell
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpSolid wraps a kernel.Solid so it can be passed between builtins.
type sexpSolid struct {
	solid kernel.Solid
	desc  string
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return "(" + s.desc + ")"
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps an r3.Vec.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// number returns the float named by keyword kw, or else the positional
// argument at pos. ok is false when neither is present.
func (a kwArgs) number(kw string, pos int) (v float64, ok bool, err error) {
	s, found := a.kw[kw]
	if !found {
		if pos < 0 || pos >= len(a.positional) {
			return 0, false, nil
		}
		s = a.positional[pos]
	}
	v, err = toFloat64(s)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts an r3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toSolid extracts the solid from a sexpSolid.
func toSolid(s zygo.Sexp) (*sexpSolid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// positive rejects sizes the kernel cannot build.
func positive(what string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be positive, got %g", what, v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builtin is the zygomys user function signature.
type builtin func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error)

// evalState is the per-evaluation output of the builtins.
type evalState struct {
	design *Design

	// firstErr is the first error a builtin returned. zygomys folds it
	// into a longer runtime error, so it is kept for reporting.
	firstErr error
}

func (st *evalState) add(env *zygo.Zlisp, name string, fn builtin) {
	env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		out, err := fn(env, name, args)
		if err != nil && st.firstErr == nil {
			st.firstErr = err
		}
		return out, err
	})
}

// registerBuiltins installs the grain script builtins into a zygomys
// environment. Solids are built with k; (grain ...) appends to st.design.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, k kernel.Kernel, st *evalState) {
	d := st.design

	// -----------------------------------------------------------------------
	// (vec3 x y z)
	// -----------------------------------------------------------------------
	st.add(env, "vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: component %d: %w", i, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: r3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box 100 50 25) or (box :size (vec3 100 50 25))
	// -----------------------------------------------------------------------
	st.add(env, "box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var size r3.Vec
		if v, ok := pa.kw["size"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
			}
			size = vec
		} else {
			if len(pa.positional) != 3 {
				return zygo.SexpNull, fmt.Errorf("box requires :size or 3 dimensions")
			}
			var c [3]float64
			for i := range c {
				f, _, err := pa.number("", i)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("box: dimension %d: %w", i, err)
				}
				c[i] = f
			}
			size = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
		}
		for _, c := range []float64{size.X, size.Y, size.Z} {
			if err := positive("box: dimension", c); err != nil {
				return zygo.SexpNull, err
			}
		}
		return &sexpSolid{
			solid: k.Box(size.X, size.Y, size.Z),
			desc:  fmt.Sprintf("box %g %g %g", size.X, size.Y, size.Z),
		}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere 40) or (sphere :radius 40)
	// -----------------------------------------------------------------------
	st.add(env, "sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		r, ok, err := parseArgs(args).number("radius", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("sphere requires a radius")
		}
		if err := positive("sphere: radius", r); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Sphere(r), desc: fmt.Sprintf("sphere %g", r)}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 100 :radius 20), axis along z
	// -----------------------------------------------------------------------
	st.add(env, "cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, okH, err := pa.number("height", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		r, okR, err := pa.number("radius", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		if !okH || !okR {
			return zygo.SexpNull, fmt.Errorf("cylinder requires a height and a radius")
		}
		if err := positive("cylinder: height", h); err != nil {
			return zygo.SexpNull, err
		}
		if err := positive("cylinder: radius", r); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpSolid{solid: k.Cylinder(h, r), desc: fmt.Sprintf("cylinder %g %g", h, r)}, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...), (difference a b ...), (intersection a b ...)
	// -----------------------------------------------------------------------
	booleans := map[string]func(a, b kernel.Solid) kernel.Solid{
		"union":        k.Union,
		"difference":   k.Difference,
		"intersection": k.Intersection,
	}
	for op, fn := range booleans {
		st.add(env, op, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least 2 solids, got %d", op, len(args))
			}
			acc, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: operand 0: %w", op, err)
			}
			out := acc.solid
			for i := 1; i < len(args); i++ {
				s, err := toSolid(args[i])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", op, i, err)
				}
				out = fn(out, s.solid)
			}
			return &sexpSolid{solid: out, desc: fmt.Sprintf("%s of %d", op, len(args))}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (translate solid (vec3 x y z)), (rotate solid (vec3 x y z)) in degrees
	// -----------------------------------------------------------------------
	transforms := map[string]func(s kernel.Solid, x, y, z float64) kernel.Solid{
		"translate": k.Translate,
		"rotate":    k.Rotate,
	}
	for op, fn := range transforms {
		st.add(env, op, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a solid and a vec3", op)
			}
			s, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", op, err)
			}
			v, err := toVec3(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", op, err)
			}
			return &sexpSolid{
				solid: fn(s.solid, v.X, v.Y, v.Z),
				desc:  fmt.Sprintf("%s (%s) %g %g %g", op, s.desc, v.X, v.Y, v.Z),
			}, nil
		})
	}

	// -----------------------------------------------------------------------
	// (grain "name" solid :xx 1 :yy 0 :zz -3 :yz 0 :xz 0 :xy 0 :spacing 10)
	// -----------------------------------------------------------------------
	st.add(env, "grain", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("grain requires a name and a solid")
		}
		grainName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grain: name: %w", err)
		}
		if _, dup := d.Lookup(grainName); dup {
			return zygo.SexpNull, fmt.Errorf("grain %q already declared", grainName)
		}
		s, err := toSolid(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grain %q: %w", grainName, err)
		}

		g := Grain{Name: grainName, Solid: s.solid}
		fields := []struct {
			kw  string
			dst *float64
		}{
			{"xx", &g.Tensor.XX}, {"yy", &g.Tensor.YY}, {"zz", &g.Tensor.ZZ},
			{"yz", &g.Tensor.YZ}, {"xz", &g.Tensor.XZ}, {"xy", &g.Tensor.XY},
			{"spacing", &g.Spacing},
		}
		for _, f := range fields {
			v, ok := pa.kw[f.kw]
			if !ok {
				continue
			}
			x, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("grain %q: %s: %w", grainName, f.kw, err)
			}
			*f.dst = x
		}
		if _, ok := pa.kw["spacing"]; ok {
			if err := positive("grain: spacing", g.Spacing); err != nil {
				return zygo.SexpNull, err
			}
		}

		d.Grains = append(d.Grains, g)
		return s, nil
	})
}
