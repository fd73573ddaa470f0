// Package acquisition scores surrogate predictions for the next suggestion.
package acquisition

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// minSigma is the predictive spread below which a prediction is treated as
// certain.
const minSigma = 1e-10

// ExpectedImprovement implements the Expected Improvement acquisition
// function. Lower objective values are better unless Maximize is set.
type ExpectedImprovement struct {
	bestObserved float64
	xi           float64
	maximize     bool
}

// NewExpectedImprovement returns EI for minimization around bestObserved
// with exploration parameter xi.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{
		bestObserved: bestObserved,
		xi:           xi,
	}
}

// Maximize switches the direction of improvement.
func (ei *ExpectedImprovement) Maximize() *ExpectedImprovement {
	ei.maximize = true
	return ei
}

func (ei *ExpectedImprovement) improvement(mu float64) float64 {
	if ei.maximize {
		return mu - ei.bestObserved - ei.xi
	}
	return ei.bestObserved - mu - ei.xi
}

// Compute returns the expected improvement of a prediction with mean mu and
// standard deviation sigma. The result is never negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.improvement(mu)
	if sigma <= minSigma {
		return math.Max(improvement, 0)
	}

	z := improvement / sigma
	// EI = improvement * Φ(z) + sigma * φ(z)
	v := improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Gradient computes the directional derivative of EI given the derivatives
// dmu and dsigma of the prediction.
func (ei *ExpectedImprovement) Gradient(mu, dmu float64, sigma, dsigma float64) float64 {
	sign := -1.0
	if ei.maximize {
		sign = 1.0
	}
	improvement := ei.improvement(mu)

	if sigma <= minSigma {
		if improvement <= 0 {
			return 0
		}
		return sign * dmu
	}

	z := improvement / sigma
	pdf := distuv.UnitNormal.Prob(z)
	cdf := distuv.UnitNormal.CDF(z)
	return sign*cdf*dmu + pdf*dsigma
}

// UpdateBest updates the best observed value
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// SetXi sets the exploration-exploitation trade-off parameter
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best observed value
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
