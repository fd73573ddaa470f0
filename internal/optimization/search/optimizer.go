// Package search contains the optimizer contract, the random optimizer and
// the registry strategies are installed into.
package search

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/trials"
)

// Version is reported by every optimizer in this module.
const Version = "1.0.0"

// MaxSampleAttempts caps rejection sampling per requested suggestion.
const MaxSampleAttempts = 1000

// Optimizer suggests configurations and learns from observed trials.
// Implementations are not safe for concurrent use; callers alternate
// Suggest and Observe.
type Optimizer interface {
	// Suggest returns exactly n new trials, or an error.
	Suggest(n int) ([]*trials.Trial, error)

	// Observe feeds back trials previously returned by Suggest.
	Observe(ts []*trials.Trial) error

	// Version identifies the optimizer implementation.
	Version() string
}

// Recorder receives optimizer activity, typically for metrics.
type Recorder interface {
	Suggested(optimizer string, n int)
	Observed(optimizer string, n int)
	SampleAttempts(optimizer string, attempts int)
	Exhausted(optimizer string)
}

type nopRecorder struct{}

func (nopRecorder) Suggested(string, int)      {}
func (nopRecorder) Observed(string, int)       {}
func (nopRecorder) SampleAttempts(string, int) {}
func (nopRecorder) Exhausted(string)           {}

// Options configure an optimizer.
type Options struct {
	// Name labels logs and metrics; registries fill it in.
	Name string

	// Seed for the random number generator; zero seeds from the clock.
	Seed int64

	// InitialDesign names the design drained before sampling
	// (see package design).
	InitialDesign string

	// NInitialPoints is the initial design size; zero selects
	// dimensions+1.
	NInitialPoints int

	// TotalLimit is the evaluation budget of the run.
	TotalLimit int

	// FeatureSpace, if set, is bound to the space's index map.
	FeatureSpace *space.FeatureSpace

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Recorder defaults to a no-op recorder.
	Recorder Recorder
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "rs"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
