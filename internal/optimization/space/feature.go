package space

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

// FeatureSpace turns configurations into feature vectors for numeric
// backends. It must carry the same IndexMap as the Space whose
// configurations it reads; an optimizer binds it at construction.
type FeatureSpace struct {
	index IndexMap
	dim   int
}

// NewFeatureSpace returns an unbound feature space.
func NewFeatureSpace() *FeatureSpace {
	return &FeatureSpace{}
}

// Bind attaches an index map. Binding an equal map again is a no-op;
// binding a different one is a configuration error.
func (f *FeatureSpace) Bind(m IndexMap) error {
	if f.index != nil {
		if !f.index.Equal(m) {
			return optimization.Configurationf("feature space is bound to a different index map").
				WithComponent("space").WithOperation("FeatureSpace.Bind")
		}
		return nil
	}
	f.index = m.clone()
	f.dim = 0
	for _, e := range m {
		if e.End > f.dim {
			f.dim = e.End
		}
	}
	return nil
}

// Bound reports whether an index map is attached.
func (f *FeatureSpace) Bound() bool {
	return f.index != nil
}

// IndexMap returns a copy of the bound index map, nil when unbound.
func (f *FeatureSpace) IndexMap() IndexMap {
	if f.index == nil {
		return nil
	}
	return f.index.clone()
}

// Dimensions returns the feature width.
func (f *FeatureSpace) Dimensions() int {
	return f.dim
}

// Features returns the feature vector of c.
func (f *FeatureSpace) Features(c *Configuration) (*mat.VecDense, error) {
	if err := f.check(c); err != nil {
		return nil, err
	}
	return mat.NewVecDense(f.dim, c.Array()), nil
}

// FeatureMatrix stacks the feature vectors of cs, one row each.
func (f *FeatureSpace) FeatureMatrix(cs []*Configuration) (*mat.Dense, error) {
	if len(cs) == 0 {
		return nil, optimization.Validationf("no configurations").
			WithComponent("space").WithOperation("FeatureSpace.FeatureMatrix")
	}
	m := mat.NewDense(len(cs), f.dim, nil)
	for i, c := range cs {
		if err := f.check(c); err != nil {
			return nil, err
		}
		m.SetRow(i, c.array)
	}
	return m, nil
}

// Slice returns the part of a feature vector that encodes the named
// parameter.
func (f *FeatureSpace) Slice(name string, features mat.Vector) (*mat.VecDense, error) {
	e, ok := f.index[name]
	if !ok {
		return nil, optimization.Validationf("unknown parameter %q", name).
			WithComponent("space").WithOperation("FeatureSpace.Slice")
	}
	if features.Len() != f.dim {
		return nil, optimization.Validationf("expected %d features, got %d", f.dim, features.Len()).
			WithComponent("space").WithOperation("FeatureSpace.Slice")
	}
	out := mat.NewVecDense(e.End-e.Start, nil)
	for i := e.Start; i < e.End; i++ {
		out.SetVec(i-e.Start, features.AtVec(i))
	}
	return out, nil
}

func (f *FeatureSpace) check(c *Configuration) error {
	if f.index == nil {
		return optimization.Configurationf("feature space is not bound").
			WithComponent("space").WithOperation("FeatureSpace.Features")
	}
	if !f.index.Equal(c.index) {
		return optimization.Configurationf("configuration layout does not match the feature space").
			WithComponent("space").WithOperation("FeatureSpace.Features")
	}
	return nil
}
