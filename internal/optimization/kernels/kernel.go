// Package kernels provides covariance functions for the Gaussian process
// surrogate. Inputs are encoded configuration arrays scaled to the unit
// cube.
package kernels

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/warpbench/internal/optimization"
)

const (
	RBF      = "rbf"
	Matern52 = "matern52"
)

// Kernel represents a kernel function for Gaussian Processes
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters
	SetHyperparameters(params []float64) error

	// Name identifies the kernel in configuration and logs.
	Name() string
}

// New returns the named kernel. An empty name selects Matern52.
func New(name string, lengthScale, signalVar float64) (Kernel, error) {
	if err := checkHyperparameters([]float64{lengthScale, signalVar}); err != nil {
		return nil, err.WithOperation("New")
	}
	switch name {
	case "", Matern52:
		return &Matern52Kernel{lengthScale: lengthScale, signalVar: signalVar}, nil
	case RBF:
		return &RBFKernel{lengthScale: lengthScale, signalVar: signalVar}, nil
	}
	return nil, optimization.Configurationf("unknown kernel %q", name).
		WithComponent("kernels").WithOperation("New")
}

// RBFKernel implements the Radial Basis Function (squared exponential) kernel
type RBFKernel struct {
	lengthScale float64
	signalVar   float64
}

// NewRBFKernel creates a new RBF kernel with the given parameters.
// It panics on non-positive parameters; use New for checked construction.
func NewRBFKernel(lengthScale, signalVar float64) *RBFKernel {
	mustPositive(lengthScale, signalVar)
	return &RBFKernel{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the RBF kernel value between x1 and x2
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	d := floats.Distance(x1, x2, 2)
	r2 := d * d / (2.0 * k.lengthScale * k.lengthScale)
	return k.signalVar * math.Exp(-r2)
}

func (k *RBFKernel) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

func (k *RBFKernel) SetHyperparameters(params []float64) error {
	if err := checkHyperparameters(params); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}

func (k *RBFKernel) Name() string { return RBF }

// Matern52Kernel implements the Matérn 5/2 kernel
type Matern52Kernel struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52Kernel creates a new Matérn 5/2 kernel with the given
// parameters. It panics on non-positive parameters.
func NewMatern52Kernel(lengthScale, signalVar float64) *Matern52Kernel {
	mustPositive(lengthScale, signalVar)
	return &Matern52Kernel{lengthScale: lengthScale, signalVar: signalVar}
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := floats.Distance(x1, x2, 2) / k.lengthScale
	polyTerm := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	expTerm := math.Exp(-math.Sqrt(5) * r)
	return k.signalVar * polyTerm * expTerm
}

func (k *Matern52Kernel) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

func (k *Matern52Kernel) SetHyperparameters(params []float64) error {
	if err := checkHyperparameters(params); err != nil {
		return err
	}
	k.lengthScale, k.signalVar = params[0], params[1]
	return nil
}

func (k *Matern52Kernel) Name() string { return Matern52 }

func checkHyperparameters(params []float64) *optimization.Error {
	if len(params) != 2 {
		return optimization.Configurationf("expected 2 hyperparameters, got %d", len(params)).
			WithComponent("kernels").WithOperation("SetHyperparameters")
	}
	for _, p := range params {
		if !(p > 0) || math.IsInf(p, 1) {
			return optimization.Configurationf("hyperparameters must be positive, got %v", params).
				WithComponent("kernels").WithOperation("SetHyperparameters")
		}
	}
	return nil
}

func mustPositive(lengthScale, signalVar float64) {
	if err := checkHyperparameters([]float64{lengthScale, signalVar}); err != nil {
		panic(err)
	}
}
