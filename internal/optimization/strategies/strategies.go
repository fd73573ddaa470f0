// Package strategies installs the built-in optimizers into a registry.
package strategies

import (
	"github.com/copyleftdev/warpbench/internal/optimization/bayesian"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
)

// Random is the registry name of the random optimizer.
const Random = "rs"

// Register installs "rs" and "gp" into r.
func Register(r *search.Registry, gpOpts bayesian.Options) error {
	if err := r.Register(Random, search.NewRandom); err != nil {
		return err
	}
	return r.Register(bayesian.Name, bayesian.Constructor(gpOpts))
}
