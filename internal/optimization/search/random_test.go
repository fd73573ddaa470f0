package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/trials"
)

func newSpace(t *testing.T, params map[string]space.Param) *space.Space {
	t.Helper()
	s, err := space.New(params)
	require.NoError(t, err)
	return s
}

func boolSpace(t *testing.T) *space.Space {
	return newSpace(t, map[string]space.Param{"flag": space.NewBoolean()})
}

func realSpace(t *testing.T) *space.Space {
	x, err := space.NewReal("log", 1e-4, 1)
	require.NoError(t, err)
	return newSpace(t, map[string]space.Param{"lr": x})
}

type countingRecorder struct {
	suggested, observed, exhausted int
	attempts                       []int
}

func (r *countingRecorder) Suggested(_ string, n int)      { r.suggested += n }
func (r *countingRecorder) Observed(_ string, n int)       { r.observed += n }
func (r *countingRecorder) SampleAttempts(_ string, a int) { r.attempts = append(r.attempts, a) }
func (r *countingRecorder) Exhausted(string)               { r.exhausted++ }

func observeAll(t *testing.T, o Optimizer, ts []*trials.Trial, value float64) {
	t.Helper()
	for _, tr := range ts {
		tr.Observe(value)
	}
	require.NoError(t, o.Observe(ts))
}

func TestSuggestRejectsNonPositive(t *testing.T) {
	o, err := NewRandomOptimizer(realSpace(t), Options{Seed: 1})
	require.NoError(t, err)

	for _, n := range []int{0, -3} {
		_, err := o.Suggest(n)
		assert.True(t, errors.Is(err, optimization.ErrValidation), "n=%d", n)
	}
}

func TestBooleanSpaceExhausts(t *testing.T) {
	rec := &countingRecorder{}
	o, err := NewRandomOptimizer(boolSpace(t), Options{Seed: 3, NInitialPoints: 1, Recorder: rec})
	require.NoError(t, err)

	seen := map[bool]bool{}
	for i := 0; i < 2; i++ {
		ts, err := o.Suggest(1)
		require.NoError(t, err)
		require.Len(t, ts, 1)
		v, _ := ts[0].Configuration.Get("flag")
		assert.False(t, seen[v.(bool)], "flag=%v suggested twice", v)
		seen[v.(bool)] = true
		observeAll(t, o, ts, 1)
	}
	assert.Equal(t, 2, o.Trials().Len())

	_, err = o.Suggest(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrSamplingExhausted))
	assert.Equal(t, optimization.KindSamplingExhausted, optimization.KindOf(err))
	assert.Equal(t, StateExhausted, o.State())
	assert.Equal(t, 1, rec.exhausted)
	assert.Equal(t, MaxSampleAttempts, rec.attempts[len(rec.attempts)-1])

	// exhaustion is terminal
	_, err = o.Suggest(1)
	assert.True(t, errors.Is(err, optimization.ErrSamplingExhausted))
	assert.Equal(t, 1, rec.exhausted)
}

func TestSequentialRealSuggestionsAreDistinct(t *testing.T) {
	o, err := NewRandomOptimizer(realSpace(t), Options{Seed: 42})
	require.NoError(t, err)

	keys := map[string]bool{}
	for i := 0; i < 50; i++ {
		ts, err := o.Suggest(1)
		require.NoError(t, err)
		require.Len(t, ts, 1)

		key := ts[0].Configuration.Key()
		assert.False(t, keys[key], "duplicate suggestion %s", key)
		keys[key] = true

		lr := ts[0].Configuration.Values()["lr"].(float64)
		assert.True(t, lr >= 1e-4 && lr <= 1, "lr=%v", lr)
		observeAll(t, o, ts, lr)
	}
	assert.Equal(t, 50, o.Trials().Len())
}

func TestValueSetRunsDryWithoutRepeats(t *testing.T) {
	k, err := space.NewIntegerValues("linear", []int64{1, 2, 4, 8})
	require.NoError(t, err)
	s := newSpace(t, map[string]space.Param{"k": k, "flag": space.NewBoolean()})
	o, err := NewRandomOptimizer(s, Options{Seed: 9})
	require.NoError(t, err)

	keys := map[string]bool{}
	for {
		ts, err := o.Suggest(1)
		if err != nil {
			assert.True(t, errors.Is(err, optimization.ErrSamplingExhausted))
			break
		}
		key := ts[0].Configuration.Key()
		require.False(t, keys[key], "duplicate suggestion %s", key)
		keys[key] = true
		observeAll(t, o, ts, 0)
	}
	assert.Len(t, keys, 8)
}

func TestBatchSuggestionsAreDistinct(t *testing.T) {
	k, err := space.NewInteger("linear", 0, 9)
	require.NoError(t, err)
	o, err := NewRandomOptimizer(newSpace(t, map[string]space.Param{"k": k}), Options{Seed: 5})
	require.NoError(t, err)

	ts, err := o.Suggest(10)
	require.NoError(t, err)
	require.Len(t, ts, 10)

	keys := map[string]bool{}
	for _, tr := range ts {
		keys[tr.Configuration.Key()] = true
	}
	assert.Len(t, keys, 10)

	// every value is pending, so the next request cannot be served
	_, err = o.Suggest(1)
	assert.True(t, errors.Is(err, optimization.ErrSamplingExhausted))
}

func TestFailedBatchReturnsNothing(t *testing.T) {
	o, err := NewRandomOptimizer(boolSpace(t), Options{Seed: 2})
	require.NoError(t, err)

	ts, err := o.Suggest(3)
	assert.Nil(t, ts)
	assert.True(t, errors.Is(err, optimization.ErrSamplingExhausted))
}

func TestInitialDesignIsDrainedFirst(t *testing.T) {
	for _, name := range []string{"random", "lhs"} {
		t.Run(name, func(t *testing.T) {
			o, err := NewRandomOptimizer(realSpace(t), Options{
				Seed:           7,
				InitialDesign:  name,
				NInitialPoints: 4,
			})
			require.NoError(t, err)
			assert.Equal(t, StateDrainingDesign, o.State())
			assert.Equal(t, 4, o.Pending())

			ts, err := o.Suggest(3)
			require.NoError(t, err)
			assert.Len(t, ts, 3)
			assert.Equal(t, 1, o.Pending())
			assert.Equal(t, StateDrainingDesign, o.State())

			ts, err = o.Suggest(2)
			require.NoError(t, err)
			assert.Len(t, ts, 2)
			assert.Equal(t, 0, o.Pending())
			assert.Equal(t, StateSampling, o.State())
		})
	}
}

func TestUnknownInitialDesign(t *testing.T) {
	_, err := NewRandomOptimizer(realSpace(t), Options{InitialDesign: "sobol"})
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))
}

func TestObserveRejectsForeignTrials(t *testing.T) {
	s := realSpace(t)
	o, err := NewRandomOptimizer(s, Options{Seed: 1})
	require.NoError(t, err)

	cfg, err := s.Encode(map[string]interface{}{"lr": 0.01})
	require.NoError(t, err)
	foreign := trials.New(cfg)
	foreign.Observe(1)

	err = o.Observe([]*trials.Trial{foreign})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
	assert.Equal(t, 0, o.Trials().Len())

	err = o.Observe([]*trials.Trial{nil})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
}

func TestObserveBatchIsAllOrNothing(t *testing.T) {
	s := realSpace(t)
	o, err := NewRandomOptimizer(s, Options{Seed: 5})
	require.NoError(t, err)

	ts, err := o.Suggest(2)
	require.NoError(t, err)
	for _, tr := range ts {
		tr.Observe(1)
	}

	cfg, err := s.Encode(map[string]interface{}{"lr": 0.5})
	require.NoError(t, err)
	foreign := trials.New(cfg)
	foreign.Observe(0)

	err = o.Observe([]*trials.Trial{ts[0], foreign, ts[1]})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
	assert.Equal(t, 0, o.Trials().Len())

	require.NoError(t, o.Observe(ts))
	assert.Equal(t, 2, o.Trials().Len())
}

func TestObserveTwiceKeepsOneEntry(t *testing.T) {
	o, err := NewRandomOptimizer(realSpace(t), Options{Seed: 1})
	require.NoError(t, err)

	ts, err := o.Suggest(1)
	require.NoError(t, err)
	observeAll(t, o, ts, 2)
	observeAll(t, o, ts, 1)

	assert.Equal(t, 1, o.Trials().Len())
	best, ok := o.Trials().Best()
	require.True(t, ok)
	assert.Equal(t, []float64{2, 1}, best.Observations)
}

func TestFeatureSpaceBinding(t *testing.T) {
	s := realSpace(t)
	fs := space.NewFeatureSpace()
	o, err := NewRandomOptimizer(s, Options{Seed: 1, FeatureSpace: fs})
	require.NoError(t, err)
	assert.True(t, fs.Bound())
	assert.Same(t, fs, o.FeatureSpace())

	ts, err := o.Suggest(1)
	require.NoError(t, err)
	f, err := fs.Features(ts[0].Configuration)
	require.NoError(t, err)
	assert.Equal(t, ts[0].Array, f.RawVector().Data)

	// the same feature space cannot be bound to a different layout
	_, err = NewRandomOptimizer(boolSpace(t), Options{FeatureSpace: fs})
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))
}

func TestSeedIsReproducible(t *testing.T) {
	run := func() []string {
		o, err := NewRandomOptimizer(realSpace(t), Options{Seed: 77, InitialDesign: "lhs"})
		require.NoError(t, err)
		ts, err := o.Suggest(6)
		require.NoError(t, err)
		keys := make([]string, len(ts))
		for i, tr := range ts {
			keys[i] = tr.Configuration.Key()
		}
		return keys
	}
	assert.Equal(t, run(), run())
}
