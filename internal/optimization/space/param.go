// Package space defines the parameter spaces an optimizer searches over and
// their encoding into a continuous array.
//
// A Param is one of four variants (real, int, bool, categorical). Every
// variant exposes the same capabilities: Warp, Unwarp, Bounds, Grid and
// Sample. Raw values are float64 for real, int64 for int, bool for bool and
// string for categorical parameters.
package space

import (
	"encoding/json"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/warp"
)

// DefaultGridPoints is the number of grid points used when none is given.
const DefaultGridPoints = 8

// MaxInteger bounds the magnitude of integer parameter values. Integers up
// to 2^53 are exact in the float64 encoding.
const MaxInteger = 1 << 53

// Type tags a Param variant.
type Type string

const (
	TypeReal        Type = "real"
	TypeInt         Type = "int"
	TypeBool        Type = "bool"
	TypeCategorical Type = "cat"
)

// Dtype is the Go type of a parameter's raw values.
type Dtype string

const (
	DtypeFloat  Dtype = "float64"
	DtypeInt    Dtype = "int64"
	DtypeBool   Dtype = "bool"
	DtypeString Dtype = "string"
)

// Param is a single dimension of a search space. The zero value is not
// usable; build one with NewReal, NewRealValues, NewInteger,
// NewIntegerValues, NewBoolean or NewCategorical.
type Param struct {
	typ  Type
	warp warp.Func

	// raw and warped bounds of numeric variants
	lower, upper   float64
	lowerW, upperW float64

	// sorted value set of numeric variants, nil when a range was given
	values []float64

	categories []string
}

// NewReal builds a real parameter over [lower, upper].
func NewReal(warpName string, lower, upper float64) (Param, error) {
	return newNumeric(TypeReal, warpName, lower, upper, nil)
}

// NewRealValues builds a real parameter restricted to values.
func NewRealValues(warpName string, values []float64) (Param, error) {
	if values == nil {
		values = []float64{}
	}
	return newNumeric(TypeReal, warpName, 0, 0, values)
}

// NewInteger builds an integer parameter over [lower, upper].
func NewInteger(warpName string, lower, upper int64) (Param, error) {
	if err := checkInteger("NewInteger", lower, upper); err != nil {
		return Param{}, err
	}
	return newNumeric(TypeInt, warpName, float64(lower), float64(upper), nil)
}

// NewIntegerValues builds an integer parameter restricted to values.
func NewIntegerValues(warpName string, values []int64) (Param, error) {
	if err := checkInteger("NewIntegerValues", values...); err != nil {
		return Param{}, err
	}
	vs := make([]float64, len(values))
	for i, v := range values {
		vs[i] = float64(v)
	}
	return newNumeric(TypeInt, warpName, 0, 0, vs)
}

// NewBoolean builds a boolean parameter.
func NewBoolean() Param {
	return Param{
		typ:    TypeBool,
		warp:   warp.MustLookup(warp.Linear),
		lower:  0,
		upper:  1,
		lowerW: 0,
		upperW: 1,
	}
}

// NewCategorical builds a categorical parameter. The order of values fixes
// the position of each category in the one-hot encoding.
func NewCategorical(values []string) (Param, error) {
	if len(values) < 2 {
		return Param{}, validation("NewCategorical", "categorical needs at least 2 values, got %d", len(values))
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			return Param{}, validation("NewCategorical", "duplicate categorical value %q", v)
		}
		seen[v] = struct{}{}
	}
	return Param{
		typ:        TypeCategorical,
		warp:       warp.MustLookup(warp.Linear),
		categories: append([]string(nil), values...),
	}, nil
}

func newNumeric(typ Type, warpName string, lower, upper float64, values []float64) (Param, error) {
	const op = "newNumeric"

	f, err := warp.Lookup(warpName)
	if err != nil {
		return Param{}, err
	}
	if typ == TypeInt && f.Kind() == warp.Logit {
		return Param{}, validation(op, "logit warp is not defined for integer parameters")
	}

	p := Param{typ: typ, warp: f}

	if values != nil {
		if len(values) < 2 {
			return Param{}, validation(op, "value set needs at least 2 values, got %d", len(values))
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		for i, v := range sorted {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Param{}, validation(op, "value set must be finite, got %v", v)
			}
			if typ == TypeInt && v != math.Trunc(v) {
				return Param{}, validation(op, "integer value set contains non-integer %v", v)
			}
			if i > 0 && sorted[i-1] == v {
				return Param{}, validation(op, "duplicate value %v in value set", v)
			}
		}
		for i, v := range sorted {
			if v == 0 {
				sorted[i] = 0
			}
		}
		p.values = sorted
		lower, upper = sorted[0], sorted[len(sorted)-1]
	}

	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return Param{}, validation(op, "range must be finite, got [%v, %v]", lower, upper)
	}
	if typ == TypeInt && (math.Abs(lower) > MaxInteger || math.Abs(upper) > MaxInteger) {
		return Param{}, validation(op, "integer range [%v, %v] exceeds ±2^53", lower, upper)
	}
	if !(lower < upper) {
		return Param{}, validation(op, "range lower %v must be less than upper %v", lower, upper)
	}
	p.lower, p.upper = lower, upper

	lw, uw := f.Forward(lower), f.Forward(upper)
	for _, w := range []float64{lw, uw} {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return Param{}, validation(op, "%s warp of range [%v, %v] is not finite", f.Kind(), lower, upper)
		}
	}
	if uw < lw {
		return Param{}, validation(op, "%s warp is not increasing on [%v, %v]", f.Kind(), lower, upper)
	}
	// keep the warped interval non-empty when the transform collapses it
	p.lowerW = lw
	p.upperW = math.Max(uw, math.Nextafter(lw, math.Inf(1)))

	return p, nil
}

// Type returns the variant tag.
func (p Param) Type() Type { return p.typ }

// WarpKind returns the warp kind; categorical and boolean parameters report
// linear.
func (p Param) WarpKind() warp.Kind { return p.warp.Kind() }

// Dtype returns the Go type of raw values.
func (p Param) Dtype() Dtype {
	switch p.typ {
	case TypeReal:
		return DtypeFloat
	case TypeInt:
		return DtypeInt
	case TypeBool:
		return DtypeBool
	case TypeCategorical:
		return DtypeString
	}
	return ""
}

// Dim returns the width of the encoded representation.
func (p Param) Dim() int {
	if p.typ == TypeCategorical {
		return len(p.categories)
	}
	return 1
}

// Range returns the raw bounds of a numeric parameter.
func (p Param) Range() (lower, upper float64) { return p.lower, p.upper }

// Values returns the explicit value set of a numeric parameter, the
// categories of a categorical one, and nil otherwise.
func (p Param) Values() []interface{} {
	switch p.typ {
	case TypeCategorical:
		out := make([]interface{}, len(p.categories))
		for i, c := range p.categories {
			out[i] = c
		}
		return out
	case TypeReal, TypeInt:
		if p.values == nil {
			return nil
		}
		out := make([]interface{}, len(p.values))
		for i, v := range p.values {
			out[i] = p.rawNumber(v)
		}
		return out
	}
	return nil
}

// Bounds returns the encoded lower and upper bounds, one entry per encoded
// dimension.
func (p Param) Bounds() (lower, upper []float64) {
	if p.typ == TypeCategorical {
		lower = make([]float64, len(p.categories))
		upper = make([]float64, len(p.categories))
		for i := range upper {
			upper[i] = 1
		}
		return lower, upper
	}
	return []float64{p.lowerW}, []float64{p.upperW}
}

// Normalize converts raw into this parameter's dtype and domain. Numeric
// input outside the range is clipped to the nearest bound; value sets and
// integers are rounded to the nearest valid value.
func (p Param) Normalize(raw interface{}) (interface{}, error) {
	const op = "Normalize"

	switch p.typ {
	case TypeReal, TypeInt:
		x, ok := toFloat(raw)
		if !ok {
			return nil, validation(op, "expected a number for %s parameter, got %T", p.typ, raw)
		}
		if math.IsNaN(x) {
			return nil, validation(op, "NaN is not a valid %s value", p.typ)
		}
		return p.rawNumber(p.snap(x)), nil
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, validation(op, "expected a bool, got %T", raw)
		}
		return b, nil
	case TypeCategorical:
		s, ok := raw.(string)
		if !ok {
			return nil, validation(op, "expected a string category, got %T", raw)
		}
		if p.categoryIndex(s) < 0 {
			return nil, validation(op, "unknown category %q", s)
		}
		return s, nil
	}
	return nil, validation(op, "uninitialised parameter")
}

// Warp encodes a raw value.
func (p Param) Warp(raw interface{}) ([]float64, error) {
	v, err := p.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return p.encode(v), nil
}

// encode expects a value already produced by Normalize.
func (p Param) encode(v interface{}) []float64 {
	switch p.typ {
	case TypeReal:
		return []float64{p.clipWarped(p.warp.Forward(v.(float64)))}
	case TypeInt:
		return []float64{p.clipWarped(p.warp.Forward(float64(v.(int64))))}
	case TypeBool:
		if v.(bool) {
			return []float64{1}
		}
		return []float64{0}
	case TypeCategorical:
		out := make([]float64, len(p.categories))
		out[p.categoryIndex(v.(string))] = 1
		return out
	}
	return nil
}

// Unwarp decodes an encoded vector. Entries are clipped to the encoded
// bounds first, so any finite vector of the right width decodes. A
// categorical vector need not be one-hot: the largest entry wins, the first
// one on ties.
func (p Param) Unwarp(encoded []float64) (interface{}, error) {
	const op = "Unwarp"

	if p.typ == "" {
		return nil, validation(op, "uninitialised parameter")
	}
	if len(encoded) != p.Dim() {
		return nil, validation(op, "expected %d encoded values, got %d", p.Dim(), len(encoded))
	}
	for _, y := range encoded {
		if math.IsNaN(y) {
			return nil, validation(op, "NaN in encoded input")
		}
	}

	switch p.typ {
	case TypeReal, TypeInt:
		y := p.clipWarped(encoded[0])
		return p.rawNumber(p.snap(p.warp.Inverse(y))), nil
	case TypeBool:
		return warp.Clip(encoded[0], 0, 1) > 0.5, nil
	default:
		clipped := make([]float64, len(encoded))
		for i, y := range encoded {
			clipped[i] = warp.Clip(y, 0, 1)
		}
		return p.categories[floats.MaxIdx(clipped)], nil
	}
}

// Grid returns raw values spanning the parameter in ascending order. An
// explicit value set is returned as is; a range is covered by maxPoints
// equally spaced encoded points, unwarped and deduplicated.
func (p Param) Grid(maxPoints int) []interface{} {
	switch p.typ {
	case TypeBool:
		return []interface{}{false, true}
	case TypeCategorical:
		return p.Values()
	}
	if p.values != nil {
		return p.Values()
	}
	if maxPoints <= 0 {
		return nil
	}

	var ws []float64
	if maxPoints == 1 {
		ws = []float64{p.lowerW}
	} else {
		ws = floats.Span(make([]float64, maxPoints), p.lowerW, p.upperW)
	}

	xs := make([]float64, 0, len(ws))
	for _, w := range ws {
		xs = append(xs, p.snap(p.warp.Inverse(w)))
	}
	sort.Float64s(xs)

	out := make([]interface{}, 0, len(xs))
	for i, x := range xs {
		if i > 0 && x == xs[i-1] {
			continue
		}
		out = append(out, p.rawNumber(x))
	}
	return out
}

// Sample draws a raw value uniformly from the raw domain.
func (p Param) Sample(rng *rand.Rand) interface{} {
	switch p.typ {
	case TypeBool:
		return rng.Intn(2) == 1
	case TypeCategorical:
		return p.categories[rng.Intn(len(p.categories))]
	}
	if p.values != nil {
		return p.rawNumber(p.values[rng.Intn(len(p.values))])
	}
	if p.typ == TypeInt {
		// |lower|, |upper| <= 2^53, so the span fits in an int64
		lo, hi := int64(p.lower), int64(p.upper)
		return lo + rng.Int63n(hi-lo+1)
	}
	return p.lower + rng.Float64()*(p.upper-p.lower)
}

// snap clips x to the raw range and rounds it to the nearest valid value.
// Ties go to the lower value and -0 becomes 0.
func (p Param) snap(x float64) float64 {
	x = warp.Clip(x, p.lower, p.upper)
	switch {
	case p.values != nil:
		x = nearest(p.values, x)
	case p.typ == TypeInt:
		x = warp.Clip(roundHalfDown(x), p.lower, p.upper)
	}
	if x == 0 {
		return 0
	}
	return x
}

// roundHalfDown rounds x to the nearest integer, ties toward -Inf.
func roundHalfDown(x float64) float64 {
	r := math.Round(x)
	if r-x == 0.5 {
		r--
	}
	return r
}

func checkInteger(op string, values ...int64) error {
	for _, v := range values {
		if v > MaxInteger || v < -MaxInteger {
			return validation(op, "integer %d exceeds ±2^53", v)
		}
	}
	return nil
}

func (p Param) clipWarped(y float64) float64 {
	return warp.Clip(y, p.lowerW, p.upperW)
}

func (p Param) rawNumber(x float64) interface{} {
	if p.typ == TypeInt {
		return int64(x)
	}
	return x
}

func (p Param) categoryIndex(s string) int {
	for i, c := range p.categories {
		if c == s {
			return i
		}
	}
	return -1
}

// nearest returns the member of sorted closest to x; ties go to the lower
// member.
func nearest(sorted []float64, x float64) float64 {
	i := sort.SearchFloat64s(sorted, x)
	if i == 0 {
		return sorted[0]
	}
	if i == len(sorted) {
		return sorted[len(sorted)-1]
	}
	lo, hi := sorted[i-1], sorted[i]
	if x-lo <= hi-x {
		return lo
	}
	return hi
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func validation(op, format string, args ...interface{}) *optimization.Error {
	return optimization.Validationf(format, args...).WithComponent("space").WithOperation(op)
}
