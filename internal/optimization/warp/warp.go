// Package warp holds the transforms between a parameter's raw domain and the
// continuous domain numeric optimizers work in.
package warp

import (
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

// Kind names a warp.
type Kind string

const (
	Linear Kind = "linear"
	Log    Kind = "log"
	Logit  Kind = "logit"
	Bilog  Kind = "bilog"
)

// Func is a forward transform paired with its exact inverse.
type Func struct {
	kind    Kind
	forward func(float64) float64
	inverse func(float64) float64
}

// registry is populated once and never mutated.
var registry = map[Kind]Func{
	Linear: {kind: Linear, forward: identity, inverse: identity},
	Log:    {kind: Log, forward: math.Log, inverse: math.Exp},
	Logit:  {kind: Logit, forward: logit, inverse: logistic},
	Bilog:  {kind: Bilog, forward: bilog, inverse: biexp},
}

// Lookup returns the warp registered under name. An empty name selects
// Linear.
func Lookup(name string) (Func, error) {
	if name == "" {
		return registry[Linear], nil
	}
	f, ok := registry[Kind(name)]
	if !ok {
		return Func{}, optimization.Configurationf("unknown warp %q, allowed: %v", name, Kinds()).
			WithComponent("warp").WithOperation("Lookup")
	}
	return f, nil
}

// MustLookup is Lookup for package-level initialisation of known kinds.
func MustLookup(k Kind) Func {
	f, err := Lookup(string(k))
	if err != nil {
		panic(err)
	}
	return f
}

// Kinds returns the registered warp names in a stable order.
func Kinds() []Kind {
	return []Kind{Linear, Log, Logit, Bilog}
}

// Kind returns the name of the warp.
func (f Func) Kind() Kind { return f.kind }

// Forward maps a raw value into warped space.
func (f Func) Forward(x float64) float64 { return f.forward(x) }

// Inverse maps a warped value back to raw space.
func (f Func) Inverse(y float64) float64 { return f.inverse(y) }

// ForwardSlice applies Forward elementwise into a new slice.
func (f Func) ForwardSlice(xs []float64) []float64 {
	return apply(f.forward, xs)
}

// InverseSlice applies Inverse elementwise into a new slice.
func (f Func) InverseSlice(ys []float64) []float64 {
	return apply(f.inverse, ys)
}

// ForwardMatrix applies Forward elementwise; the result has the shape of m.
func (f Func) ForwardMatrix(m mat.Matrix) *mat.Dense {
	return applyMatrix(f.forward, m)
}

// InverseMatrix applies Inverse elementwise; the result has the shape of m.
func (f Func) InverseMatrix(m mat.Matrix) *mat.Dense {
	return applyMatrix(f.inverse, m)
}

func apply(fn func(float64) float64, xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = fn(x)
	}
	return out
}

func applyMatrix(fn func(float64) float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return fn(v) }, m)
	return &out
}

func identity(x float64) float64 { return x }

func logit(p float64) float64 {
	return math.Log(p) - math.Log1p(-p)
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// bilog extends log to negative values; bilog(0) == 0.
func bilog(x float64) float64 {
	return sign(x) * math.Log1p(math.Abs(x))
}

func biexp(y float64) float64 {
	return sign(y) * math.Expm1(math.Abs(y))
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Clip limits x to [lo, hi].
func Clip[T constraints.Integer | constraints.Float](x, lo, hi T) T {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
