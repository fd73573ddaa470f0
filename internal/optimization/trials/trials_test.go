package trials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

func gridSpace(t *testing.T) *space.Space {
	t.Helper()
	k, err := space.NewIntegerValues("linear", []int64{1, 2, 3})
	require.NoError(t, err)
	s, err := space.New(map[string]space.Param{
		"flag": space.NewBoolean(),
		"k":    k,
	})
	require.NoError(t, err)
	return s
}

func encode(t *testing.T, s *space.Space, values map[string]interface{}) *space.Configuration {
	t.Helper()
	c, err := s.Encode(values)
	require.NoError(t, err)
	return c
}

func TestAddAndContains(t *testing.T) {
	s := gridSpace(t)
	ts := NewTrials(s.Dimensions())

	a := encode(t, s, map[string]interface{}{"flag": true, "k": 2})
	b := encode(t, s, map[string]interface{}{"flag": true, "k": 3})

	assert.False(t, ts.Contains(a))
	require.NoError(t, ts.Add(New(a)))
	assert.True(t, ts.Contains(a))
	assert.False(t, ts.Contains(b))

	// equality is on raw values, not on the configuration pointer
	again := encode(t, s, map[string]interface{}{"k": int64(2), "flag": true})
	assert.True(t, ts.Contains(again))

	// an explicit re-add of the same point is kept in history
	require.NoError(t, ts.Add(New(again)))
	assert.Equal(t, 2, ts.Len())
}

func TestAddRejectsMalformed(t *testing.T) {
	s := gridSpace(t)
	ts := NewTrials(s.Dimensions())

	err := ts.Add(&Trial{})
	assert.True(t, errors.Is(err, optimization.ErrValidation))

	tr := New(encode(t, s, map[string]interface{}{"flag": false, "k": 1}))
	tr.Array = tr.Array[:1]
	err = ts.Add(tr)
	assert.True(t, errors.Is(err, optimization.ErrValidation))
	assert.Equal(t, 0, ts.Len())
}

func TestTrialAttachesArray(t *testing.T) {
	s := gridSpace(t)
	cfg := encode(t, s, map[string]interface{}{"flag": true, "k": 3})
	tr := New(cfg)

	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, cfg.Array(), tr.Array)
	assert.False(t, tr.Observed())

	tr.Observe(1.5)
	tr.Observe(0.5)
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, 0.5, last)
}

func TestBestAndTrainingData(t *testing.T) {
	s := gridSpace(t)
	ts := NewTrials(s.Dimensions())

	X, y := ts.TrainingData()
	assert.Nil(t, X)
	assert.Nil(t, y)
	_, ok := ts.Best()
	assert.False(t, ok)

	outcomes := []struct {
		k     int
		value float64
		seen  bool
	}{
		{1, 3.0, true},
		{2, -1.0, true},
		{3, 0, false},
	}
	var ids []string
	for _, o := range outcomes {
		tr := New(encode(t, s, map[string]interface{}{"flag": false, "k": o.k}))
		if o.seen {
			tr.Observe(o.value)
		}
		require.NoError(t, ts.Add(tr))
		ids = append(ids, tr.ID)
	}

	best, ok := ts.Best()
	require.True(t, ok)
	assert.Equal(t, ids[1], best.ID)

	got, ok := ts.Get(ids[2])
	require.True(t, ok)
	assert.False(t, got.Observed())

	X, y = ts.TrainingData()
	require.NotNil(t, X)
	r, c := X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, s.Dimensions(), c)
	assert.Equal(t, []float64{3.0, -1.0}, y.RawVector().Data)
	assert.Equal(t, []float64{0, 2}, X.RawRowView(1))
}
