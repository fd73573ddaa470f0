// Package design provides initial designs: fixed batches of configurations
// an optimizer drains before it starts adaptive sampling.
package design

import (
	"math/rand"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

const (
	Random = "random"
	LHS    = "lhs"
)

// Design produces the initial configurations of a run.
type Design interface {
	// Select returns at most Budget distinct configurations.
	Select() []*space.Configuration
	// Budget is the number of configurations the design may spend.
	Budget() int
}

// Options bound an initial design.
type Options struct {
	// NInitialPoints is the requested design size; zero selects
	// dimensions+1.
	NInitialPoints int
	// TotalLimit is the evaluation budget of the whole run; zero means
	// unbounded.
	TotalLimit int
}

// Budget returns the number of initial configurations for s under opts.
func Budget(s *space.Space, opts Options) int {
	n := opts.NInitialPoints
	if n <= 0 {
		n = s.Dimensions() + 1
	}
	if opts.TotalLimit > 0 && opts.TotalLimit < n {
		n = opts.TotalLimit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New returns the named design. An empty name selects Random.
func New(name string, s *space.Space, rng *rand.Rand, opts Options) (Design, error) {
	budget := Budget(s, opts)
	switch name {
	case "", Random:
		return &randomDesign{space: s, rng: rng, budget: budget}, nil
	case LHS:
		return &latinHypercube{space: s, rng: rng, budget: budget}, nil
	}
	return nil, optimization.Configurationf("unknown initial design %q", name).
		WithComponent("design").WithOperation("New")
}

// Names lists the available designs.
func Names() []string {
	return []string{Random, LHS}
}

type randomDesign struct {
	space  *space.Space
	rng    *rand.Rand
	budget int
}

func (d *randomDesign) Budget() int { return d.budget }

func (d *randomDesign) Select() []*space.Configuration {
	// small spaces may hold fewer distinct points than the budget
	maxDraws := 10 * d.budget
	return dedupe(d.budget, maxDraws, func() *space.Configuration {
		return d.space.SampleConfiguration(d.rng, 1)[0]
	})
}

type latinHypercube struct {
	space  *space.Space
	rng    *rand.Rand
	budget int
}

func (d *latinHypercube) Budget() int { return d.budget }

// Select stratifies every encoded dimension into budget bins, draws one
// point per bin, shuffles the bins independently per dimension and decodes
// each row.
func (d *latinHypercube) Select() []*space.Configuration {
	n := d.budget
	bounds := d.space.Bounds()
	nDims := len(bounds)

	samples := make([][]float64, n)
	for j := range samples {
		samples[j] = make([]float64, nDims)
	}
	for i := 0; i < nDims; i++ {
		strata := make([]float64, n)
		for j := 0; j < n; j++ {
			strata[j] = (float64(j) + d.rng.Float64()) / float64(n)
		}
		d.rng.Shuffle(n, func(k, l int) {
			strata[k], strata[l] = strata[l], strata[k]
		})
		lo, hi := bounds[i][0], bounds[i][1]
		for j := 0; j < n; j++ {
			samples[j][i] = lo + strata[j]*(hi-lo)
		}
	}

	next := 0
	return dedupe(n, n, func() *space.Configuration {
		row := samples[next]
		next++
		cfg, err := d.space.Decode(row)
		if err != nil {
			// rows are built inside the encoded bounds
			panic(err)
		}
		return cfg
	})
}

func dedupe(want, maxDraws int, draw func() *space.Configuration) []*space.Configuration {
	out := make([]*space.Configuration, 0, want)
	seen := make(map[string]struct{}, want)
	for i := 0; i < maxDraws && len(out) < want; i++ {
		c := draw()
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		out = append(out, c)
	}
	return out
}
