package space

import (
	"math/rand"
	"sort"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

// Named pairs a parameter with its name.
type Named struct {
	Name  string
	Param Param
}

// IndexEntry locates one parameter inside the encoded array.
type IndexEntry struct {
	Dtype Dtype `json:"dtype"`
	Start int   `json:"start"`
	End   int   `json:"end"`
}

// IndexMap maps parameter names to their dtype and encoded slice. A Space
// and any FeatureSpace paired with it share the same map.
type IndexMap map[string]IndexEntry

// Equal reports whether both maps describe the same layout.
func (m IndexMap) Equal(o IndexMap) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		if w, ok := o[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func (m IndexMap) clone() IndexMap {
	out := make(IndexMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Space is the joint space of several named parameters.
type Space struct {
	names  []string
	params map[string]Param
	index  IndexMap
	dim    int
}

// New builds a Space from a name to parameter map. Parameters are laid out
// in name order.
func New(params map[string]Param) (*Space, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]Named, len(names))
	for i, name := range names {
		list[i] = Named{Name: name, Param: params[name]}
	}
	return NewFromList(list)
}

// NewFromList builds a Space laid out in the order of params. Two entries
// with the same name are a configuration error.
func NewFromList(params []Named) (*Space, error) {
	const op = "NewFromList"

	if len(params) == 0 {
		return nil, validation(op, "space must declare at least one parameter")
	}

	s := &Space{
		names:  make([]string, 0, len(params)),
		params: make(map[string]Param, len(params)),
		index:  make(IndexMap, len(params)),
	}
	for _, np := range params {
		if np.Name == "" {
			return nil, validation(op, "parameter name must not be empty")
		}
		if _, dup := s.params[np.Name]; dup {
			return nil, optimization.Configurationf("duplicate parameter name %q", np.Name).
				WithComponent("space").WithOperation(op)
		}
		if np.Param.typ == "" {
			return nil, validation(op, "parameter %q is uninitialised", np.Name)
		}
		s.names = append(s.names, np.Name)
		s.params[np.Name] = np.Param
		s.index[np.Name] = IndexEntry{
			Dtype: np.Param.Dtype(),
			Start: s.dim,
			End:   s.dim + np.Param.Dim(),
		}
		s.dim += np.Param.Dim()
	}
	return s, nil
}

// Names returns the parameter names in layout order.
func (s *Space) Names() []string {
	return append([]string(nil), s.names...)
}

// Param returns the named parameter.
func (s *Space) Param(name string) (Param, bool) {
	p, ok := s.params[name]
	return p, ok
}

// Dimensions returns the width of the joint encoded array.
func (s *Space) Dimensions() int {
	return s.dim
}

// IndexMap returns a copy of the dtype index map.
func (s *Space) IndexMap() IndexMap {
	return s.index.clone()
}

// Bounds returns the encoded [lower, upper] pair of every joint dimension.
func (s *Space) Bounds() [][2]float64 {
	bounds := make([][2]float64, 0, s.dim)
	for _, name := range s.names {
		lo, hi := s.params[name].Bounds()
		for i := range lo {
			bounds = append(bounds, [2]float64{lo[i], hi[i]})
		}
	}
	return bounds
}

// SampleConfiguration draws n configurations, each parameter independently
// from its own sampling rule.
func (s *Space) SampleConfiguration(rng *rand.Rand, n int) []*Configuration {
	out := make([]*Configuration, 0, n)
	for i := 0; i < n; i++ {
		values := make(map[string]interface{}, len(s.names))
		for _, name := range s.names {
			values[name] = s.params[name].Sample(rng)
		}
		out = append(out, s.build(values))
	}
	return out
}

// Encode builds a Configuration from raw values. Every parameter must be
// present and no unknown name may appear. Values are normalized first (see
// Param.Normalize).
func (s *Space) Encode(values map[string]interface{}) (*Configuration, error) {
	const op = "Encode"

	for name := range values {
		if _, ok := s.params[name]; !ok {
			return nil, validation(op, "unknown parameter %q", name)
		}
	}
	normalized := make(map[string]interface{}, len(s.names))
	for _, name := range s.names {
		raw, ok := values[name]
		if !ok {
			return nil, validation(op, "missing parameter %q", name)
		}
		v, err := s.params[name].Normalize(raw)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "parameter %q", name)
		}
		normalized[name] = v
	}
	return s.build(normalized), nil
}

// Decode unwarps an encoded array into a Configuration. The returned
// configuration carries the canonical encoding of its decoded values, which
// can differ from array when rounding or arg-max decoding applied.
func (s *Space) Decode(array []float64) (*Configuration, error) {
	const op = "Decode"

	if len(array) != s.dim {
		return nil, validation(op, "expected array of length %d, got %d", s.dim, len(array))
	}
	values := make(map[string]interface{}, len(s.names))
	for _, name := range s.names {
		e := s.index[name]
		v, err := s.params[name].Unwarp(array[e.Start:e.End])
		if err != nil {
			return nil, optimization.WrapErrorf(err, "parameter %q", name)
		}
		values[name] = v
	}
	return s.build(values), nil
}

// Grid returns the Cartesian product of every parameter's grid.
func (s *Space) Grid(maxPoints int) []*Configuration {
	grids := make([][]interface{}, len(s.names))
	total := 1
	for i, name := range s.names {
		grids[i] = s.params[name].Grid(maxPoints)
		total *= len(grids[i])
	}
	if total == 0 {
		return nil
	}

	out := make([]*Configuration, 0, total)
	idx := make([]int, len(s.names))
	for {
		values := make(map[string]interface{}, len(s.names))
		for i, name := range s.names {
			values[name] = grids[i][idx[i]]
		}
		out = append(out, s.build(values))

		// odometer increment, last parameter fastest
		k := len(idx) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(grids[k]) {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return out
		}
	}
}

// build assumes values holds normalized raw values for every parameter.
func (s *Space) build(values map[string]interface{}) *Configuration {
	array := make([]float64, 0, s.dim)
	for _, name := range s.names {
		array = append(array, s.params[name].encode(values[name])...)
	}
	return &Configuration{
		names:  s.names,
		values: values,
		array:  array,
		index:  s.index,
		key:    configurationKey(s.names, values),
	}
}
