package space

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	s, err := New(map[string]Param{
		"lr":     mustParam(t)(NewReal("log", 1e-4, 1)),
		"layers": mustParam(t)(NewInteger("linear", 1, 8)),
		"bn":     NewBoolean(),
		"act":    mustParam(t)(NewCategorical([]string{"relu", "tanh", "gelu"})),
	})
	require.NoError(t, err)
	return s
}

func TestSpaceLayout(t *testing.T) {
	s := testSpace(t)

	assert.Equal(t, []string{"act", "bn", "layers", "lr"}, s.Names())
	assert.Equal(t, 6, s.Dimensions())

	want := IndexMap{
		"act":    {Dtype: DtypeString, Start: 0, End: 3},
		"bn":     {Dtype: DtypeBool, Start: 3, End: 4},
		"layers": {Dtype: DtypeInt, Start: 4, End: 5},
		"lr":     {Dtype: DtypeFloat, Start: 5, End: 6},
	}
	assert.Equal(t, want, s.IndexMap())

	bounds := s.Bounds()
	require.Len(t, bounds, 6)
	for _, b := range bounds {
		assert.Less(t, b[0], b[1])
	}
}

func TestDuplicateNames(t *testing.T) {
	_, err := NewFromList([]Named{
		{Name: "x", Param: NewBoolean()},
		{Name: "x", Param: NewBoolean()},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))

	_, err = NewFromList(nil)
	assert.True(t, errors.Is(err, optimization.ErrValidation))

	_, err = NewFromList([]Named{{Name: "zero", Param: Param{}}})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
}

func TestEncodeDecode(t *testing.T) {
	s := testSpace(t)

	cfg, err := s.Encode(map[string]interface{}{
		"lr":     0.01,
		"layers": 3.0, // JSON numbers arrive as float64
		"bn":     true,
		"act":    "tanh",
	})
	require.NoError(t, err)

	v, ok := cfg.Get("layers")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)

	arr := cfg.Array()
	require.Len(t, arr, s.Dimensions())
	assert.Equal(t, []float64{0, 1, 0, 1, 3}, arr[:5])

	back, err := s.Decode(arr)
	require.NoError(t, err)
	assert.Equal(t, "tanh", back.Values()["act"])
	assert.Equal(t, true, back.Values()["bn"])
	assert.Equal(t, int64(3), back.Values()["layers"])
	assert.InDelta(t, 0.01, back.Values()["lr"].(float64), 1e-12)

	_, err = s.Encode(map[string]interface{}{"lr": 0.1})
	assert.True(t, errors.Is(err, optimization.ErrValidation))

	_, err = s.Encode(map[string]interface{}{
		"lr": 0.1, "layers": 1, "bn": false, "act": "relu", "extra": 1,
	})
	assert.True(t, errors.Is(err, optimization.ErrValidation))

	_, err = s.Decode([]float64{1, 2})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
}

func TestDecodeSoftAssignment(t *testing.T) {
	s := testSpace(t)

	cfg, err := s.Decode([]float64{0.2, 0.3, 0.5, 0.7, 4.4, -2})
	require.NoError(t, err)

	assert.Equal(t, "gelu", cfg.Values()["act"])
	assert.Equal(t, true, cfg.Values()["bn"])
	assert.Equal(t, int64(4), cfg.Values()["layers"])
	// the attached array is the canonical encoding, not the input
	assert.Equal(t, []float64{0, 0, 1, 1, 4}, cfg.Array()[:5])
}

func TestSampleConfiguration(t *testing.T) {
	s := testSpace(t)
	rng := rand.New(rand.NewSource(1))

	cfgs := s.SampleConfiguration(rng, 20)
	require.Len(t, cfgs, 20)
	for _, c := range cfgs {
		require.Len(t, c.Array(), s.Dimensions())
		back, err := s.Decode(c.Array())
		require.NoError(t, err)
		assert.Equal(t, c.Values()["act"], back.Values()["act"])
		assert.Equal(t, c.Values()["layers"], back.Values()["layers"])
		assert.Equal(t, c.Values()["bn"], back.Values()["bn"])
	}
}

func TestConfigurationKey(t *testing.T) {
	s := testSpace(t)

	a, err := s.Encode(map[string]interface{}{"lr": 0.5, "layers": 2, "bn": false, "act": "relu"})
	require.NoError(t, err)
	b, err := s.Encode(map[string]interface{}{"act": "relu", "bn": false, "layers": int64(2), "lr": 0.5})
	require.NoError(t, err)
	c, err := s.Encode(map[string]interface{}{"lr": 0.5000001, "layers": 2, "bn": false, "act": "relu"})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.Equal(t, `act="relu", bn=false, layers=2, lr=0.5`, a.Key())
}

func TestConfigurationKeyNegativeZero(t *testing.T) {
	s, err := New(map[string]Param{"x": mustParam(t)(NewReal("linear", -1, 1))})
	require.NoError(t, err)

	pos, err := s.Encode(map[string]interface{}{"x": 0.0})
	require.NoError(t, err)
	neg, err := s.Encode(map[string]interface{}{"x": math.Copysign(0, -1)})
	require.NoError(t, err)

	assert.True(t, pos.Equal(neg))
	assert.Equal(t, "x=0", neg.Key())
}

func TestSpaceGrid(t *testing.T) {
	s, err := New(map[string]Param{
		"flag": NewBoolean(),
		"k":    mustParam(t)(NewIntegerValues("linear", []int64{1, 2, 3})),
	})
	require.NoError(t, err)

	grid := s.Grid(DefaultGridPoints)
	require.Len(t, grid, 6)

	keys := map[string]bool{}
	for _, c := range grid {
		keys[c.Key()] = true
	}
	assert.Len(t, keys, 6)
	assert.Equal(t, "flag=false, k=1", grid[0].Key())
	assert.Equal(t, "flag=true, k=3", grid[5].Key())
}

func TestFeatureSpace(t *testing.T) {
	s := testSpace(t)
	fs := NewFeatureSpace()

	cfg := s.SampleConfiguration(rand.New(rand.NewSource(3)), 1)[0]
	_, err := fs.Features(cfg)
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))

	require.NoError(t, fs.Bind(s.IndexMap()))
	require.NoError(t, fs.Bind(s.IndexMap()))
	assert.True(t, fs.Bound())
	assert.Equal(t, s.Dimensions(), fs.Dimensions())

	vec, err := fs.Features(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Array(), vec.RawVector().Data)

	act, err := fs.Slice("act", vec)
	require.NoError(t, err)
	assert.Equal(t, 3, act.Len())
	assert.Equal(t, 1.0, mat.Sum(act))

	m, err := fs.FeatureMatrix(s.SampleConfiguration(rand.New(rand.NewSource(4)), 3))
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 6, c)

	other, err := New(map[string]Param{"x": NewBoolean()})
	require.NoError(t, err)
	err = fs.Bind(other.IndexMap())
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))

	_, err = fs.Features(other.SampleConfiguration(rand.New(rand.NewSource(5)), 1)[0])
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))
}
