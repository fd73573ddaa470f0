// Package trials records suggested configurations and their observed
// outcomes for one optimization run.
package trials

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

// Trial is a suggested configuration and the outcomes observed for it.
type Trial struct {
	ID            string
	Configuration *space.Configuration
	Array         []float64
	Observations  []float64
	CreatedAt     time.Time
}

// New wraps cfg in a fresh trial with its encoded array attached.
func New(cfg *space.Configuration) *Trial {
	return &Trial{
		ID:            uuid.New().String(),
		Configuration: cfg,
		Array:         cfg.Array(),
		CreatedAt:     time.Now(),
	}
}

// Observe records an outcome.
func (t *Trial) Observe(y float64) {
	t.Observations = append(t.Observations, y)
}

// Observed reports whether at least one outcome was recorded.
func (t *Trial) Observed() bool {
	return len(t.Observations) > 0
}

// Last returns the most recent outcome.
func (t *Trial) Last() (float64, bool) {
	if len(t.Observations) == 0 {
		return 0, false
	}
	return t.Observations[len(t.Observations)-1], true
}

// Trials is the append-only history of a run.
type Trials struct {
	dim     int
	history []*Trial
	byKey   map[string]struct{}
	byID    map[string]*Trial
}

// NewTrials returns an empty history for arrays of width dim.
func NewTrials(dim int) *Trials {
	return &Trials{
		dim:   dim,
		byKey: make(map[string]struct{}),
		byID:  make(map[string]*Trial),
	}
}

// Add appends t and registers its configuration for Contains.
func (ts *Trials) Add(t *Trial) error {
	if t == nil || t.Configuration == nil {
		return optimization.Validationf("trial has no configuration").
			WithComponent("trials").WithOperation("Add")
	}
	if len(t.Array) != ts.dim {
		return optimization.Validationf("trial array has length %d, want %d", len(t.Array), ts.dim).
			WithComponent("trials").WithOperation("Add")
	}
	ts.history = append(ts.history, t)
	ts.byKey[t.Configuration.Key()] = struct{}{}
	if t.ID != "" {
		ts.byID[t.ID] = t
	}
	return nil
}

// Contains reports whether a configuration equal to cfg in the raw domain
// was added.
func (ts *Trials) Contains(cfg *space.Configuration) bool {
	_, ok := ts.byKey[cfg.Key()]
	return ok
}

// Get returns the trial with the given ID.
func (ts *Trials) Get(id string) (*Trial, bool) {
	t, ok := ts.byID[id]
	return t, ok
}

// Len returns the number of trials added.
func (ts *Trials) Len() int {
	return len(ts.history)
}

// All returns the history in insertion order.
func (ts *Trials) All() []*Trial {
	return append([]*Trial(nil), ts.history...)
}

// Best returns the observed trial with the lowest last outcome.
func (ts *Trials) Best() (*Trial, bool) {
	var best *Trial
	var bestY float64
	for _, t := range ts.history {
		y, ok := t.Last()
		if !ok {
			continue
		}
		if best == nil || y < bestY {
			best, bestY = t, y
		}
	}
	return best, best != nil
}

// TrainingData returns the encoded arrays of observed trials, one per row,
// and their last outcomes. It returns nil, nil when nothing was observed.
func (ts *Trials) TrainingData() (*mat.Dense, *mat.VecDense) {
	n := 0
	for _, t := range ts.history {
		if t.Observed() {
			n++
		}
	}
	if n == 0 || ts.dim == 0 {
		return nil, nil
	}

	X := mat.NewDense(n, ts.dim, nil)
	y := mat.NewVecDense(n, nil)
	i := 0
	for _, t := range ts.history {
		last, ok := t.Last()
		if !ok {
			continue
		}
		X.SetRow(i, t.Array)
		y.SetVec(i, last)
		i++
	}
	return X, y
}
