package strategies

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/bayesian"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

func TestRegister(t *testing.T) {
	r := search.NewRegistry()
	require.NoError(t, Register(r, bayesian.Options{}))
	assert.Equal(t, []string{"gp", "rs"}, r.Names())

	x, err := space.NewReal("linear", 0, 1)
	require.NoError(t, err)
	s, err := space.New(map[string]space.Param{"x": x})
	require.NoError(t, err)

	for _, name := range r.Names() {
		o, err := r.New(name, s, search.Options{Seed: 1})
		require.NoError(t, err, name)
		ts, err := o.Suggest(2)
		require.NoError(t, err, name)
		assert.Len(t, ts, 2)
	}

	// registering twice fails without touching the first registration
	err = Register(r, bayesian.Options{})
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))
	assert.Len(t, r.Names(), 2)
}
