package search

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/design"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/trials"
)

// State is the lifecycle stage of a RandomOptimizer.
type State int

const (
	StateUninitialized State = iota
	StateDrainingDesign
	StateSampling
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateDrainingDesign:
		return "draining_design"
	case StateSampling:
		return "sampling"
	case StateExhausted:
		return "exhausted"
	}
	return "uninitialized"
}

// RandomOptimizer drains an initial design, then draws uniformly random
// configurations, rejecting any that were already suggested or observed.
type RandomOptimizer struct {
	space        *space.Space
	featureSpace *space.FeatureSpace
	opts         Options
	rng          *rand.Rand
	logger       *zap.Logger

	pending []*space.Configuration
	history *trials.Trials
	issued  map[string]*trials.Trial
	known   map[string]struct{}
	state   State
}

// NewRandomOptimizer builds the optimizer for s. A feature space in opts is
// bound to s's index map.
func NewRandomOptimizer(s *space.Space, opts Options) (*RandomOptimizer, error) {
	if s == nil {
		return nil, optimization.Configurationf("space is required").
			WithComponent("search").WithOperation("NewRandomOptimizer")
	}
	opts = opts.withDefaults()

	if opts.FeatureSpace != nil {
		if err := opts.FeatureSpace.Bind(s.IndexMap()); err != nil {
			return nil, err
		}
	}

	rng := newRand(opts.Seed)
	d, err := design.New(opts.InitialDesign, s, rng, design.Options{
		NInitialPoints: opts.NInitialPoints,
		TotalLimit:     opts.TotalLimit,
	})
	if err != nil {
		return nil, err
	}

	o := &RandomOptimizer{
		space:        s,
		featureSpace: opts.FeatureSpace,
		opts:         opts,
		rng:          rng,
		logger:       opts.Logger.Named(opts.Name),
		pending:      d.Select(),
		history:      trials.NewTrials(s.Dimensions()),
		issued:       make(map[string]*trials.Trial),
		known:        make(map[string]struct{}),
		state:        StateDrainingDesign,
	}
	o.logger.Debug("optimizer initialised",
		zap.Int("dimensions", s.Dimensions()),
		zap.Int("initial_design", len(o.pending)),
		zap.Int("design_budget", d.Budget()),
	)
	return o, nil
}

// Suggest returns n trials. Each slot first takes the next initial design
// configuration; afterwards it samples the space up to MaxSampleAttempts
// times for a configuration not suggested before. Running out of attempts
// fails the whole call with an error matching
// optimization.ErrSamplingExhausted and leaves the optimizer exhausted.
func (o *RandomOptimizer) Suggest(n int) ([]*trials.Trial, error) {
	if n < 1 {
		return nil, optimization.Validationf("n must be positive, got %d", n).
			WithComponent("search").WithOperation("Suggest")
	}
	if o.state == StateExhausted {
		return nil, optimization.Exhaustedf("no more configurations can be suggested").
			WithComponent("search").WithOperation("Suggest")
	}

	out := make([]*trials.Trial, 0, n)
	for len(out) < n {
		cfg, ok := o.nextFromDesign()
		if !ok {
			var err error
			cfg, err = o.SampleNew()
			if err != nil {
				o.Retract(out)
				return nil, err
			}
		}
		out = append(out, o.Issue(cfg))
	}

	o.opts.Recorder.Suggested(o.opts.Name, len(out))
	return out, nil
}

// Observe adds each trial to the history. Only trials issued by this
// optimizer are accepted; a trial observed again is not re-added.
func (o *RandomOptimizer) Observe(ts []*trials.Trial) error {
	// the batch is checked in full before any trial is recorded
	for _, t := range ts {
		if t == nil {
			return optimization.Validationf("nil trial").
				WithComponent("search").WithOperation("Observe")
		}
		if _, seen := o.history.Get(t.ID); seen {
			continue
		}
		if _, ok := o.issued[t.ID]; !ok {
			return optimization.Validationf("trial %s was not suggested by this optimizer", t.ID).
				WithComponent("search").WithOperation("Observe")
		}
	}

	for _, t := range ts {
		if _, seen := o.history.Get(t.ID); seen {
			continue
		}
		if err := o.history.Add(t); err != nil {
			return err
		}
		delete(o.issued, t.ID)
	}

	o.opts.Recorder.Observed(o.opts.Name, len(ts))
	o.logger.Debug("observed trials",
		zap.Int("count", len(ts)),
		zap.Int("history", o.history.Len()),
	)
	return nil
}

// Version implements Optimizer.
func (o *RandomOptimizer) Version() string {
	return Version
}

// State returns the lifecycle stage.
func (o *RandomOptimizer) State() State {
	return o.state
}

// Options returns the options with defaults applied.
func (o *RandomOptimizer) Options() Options {
	return o.opts
}

// Space returns the searched space.
func (o *RandomOptimizer) Space() *space.Space {
	return o.space
}

// FeatureSpace returns the bound feature space, nil if none was given.
func (o *RandomOptimizer) FeatureSpace() *space.FeatureSpace {
	return o.featureSpace
}

// Trials returns the observed history.
func (o *RandomOptimizer) Trials() *trials.Trials {
	return o.history
}

// Rand returns the optimizer's random source.
func (o *RandomOptimizer) Rand() *rand.Rand {
	return o.rng
}

// Pending returns the number of initial design configurations not yet
// suggested.
func (o *RandomOptimizer) Pending() int {
	return len(o.pending)
}

// Known reports whether cfg was already suggested or observed.
func (o *RandomOptimizer) Known(cfg *space.Configuration) bool {
	if o.history.Contains(cfg) {
		return true
	}
	_, ok := o.known[cfg.Key()]
	return ok
}

// Issue wraps cfg in a new trial and records it as suggested.
func (o *RandomOptimizer) Issue(cfg *space.Configuration) *trials.Trial {
	t := trials.New(cfg)
	o.issued[t.ID] = t
	o.known[cfg.Key()] = struct{}{}
	return t
}

// SampleNew draws configurations until one is not Known.
func (o *RandomOptimizer) SampleNew() (*space.Configuration, error) {
	if o.state == StateExhausted {
		return nil, optimization.Exhaustedf("no more configurations can be suggested").
			WithComponent("search").WithOperation("SampleNew")
	}
	o.state = StateSampling

	for attempt := 1; attempt <= MaxSampleAttempts; attempt++ {
		cfg := o.space.SampleConfiguration(o.rng, 1)[0]
		if !o.Known(cfg) {
			o.opts.Recorder.SampleAttempts(o.opts.Name, attempt)
			return cfg, nil
		}
	}

	o.state = StateExhausted
	o.opts.Recorder.SampleAttempts(o.opts.Name, MaxSampleAttempts)
	o.opts.Recorder.Exhausted(o.opts.Name)
	o.logger.Error("rejection sampling exhausted",
		zap.Int("attempts", MaxSampleAttempts),
		zap.Int("history", o.history.Len()),
	)
	return nil, optimization.Exhaustedf("no new configuration after %d attempts", MaxSampleAttempts).
		WithComponent("search").WithOperation("SampleNew")
}

func (o *RandomOptimizer) nextFromDesign() (*space.Configuration, bool) {
	for len(o.pending) > 0 {
		cfg := o.pending[0]
		o.pending = o.pending[1:]
		if !o.Known(cfg) {
			return cfg, true
		}
	}
	if o.state == StateDrainingDesign {
		o.state = StateSampling
	}
	return nil, false
}

// Retract forgets trials issued by a failed Suggest call.
func (o *RandomOptimizer) Retract(ts []*trials.Trial) {
	for _, t := range ts {
		delete(o.issued, t.ID)
		delete(o.known, t.Configuration.Key())
	}
}
