package bayesian

import (
	"math/rand"
	"strconv"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/warpbench/internal/optimization/acquisition"
	"github.com/copyleftdev/warpbench/internal/optimization/kernels"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
)

func randomData(rng *rand.Rand, nSamples, nFeatures int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(nSamples, nFeatures, nil)
	y := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		for j := 0; j < nFeatures; j++ {
			X.Set(i, j, rng.Float64())
		}
		y.SetVec(i, rng.NormFloat64())
	}
	return X, y
}

// BenchmarkGPFit measures the performance of fitting a Gaussian Process model
func BenchmarkGPFit(b *testing.B) {
	for _, n := range []int{10, 50, 100} {
		b.Run(sizeName(n), func(b *testing.B) {
			X, y := randomData(rand.New(rand.NewSource(42)), n, 5)
			gp := NewGP(kernels.NewMatern52Kernel(0.3, 1.0), 1e-6, nil)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := gp.Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkGPSample measures the performance of sampling from a fitted GP
func BenchmarkGPSample(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	X, y := randomData(rng, 100, 5)
	XTest, _ := randomData(rng, 256, 5)

	gp := NewGP(kernels.NewMatern52Kernel(0.3, 1.0), 1e-6, nil)
	if err := gp.Fit(X, y); err != nil {
		b.Fatalf("Failed to fit GP: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = gp.Sample(XTest, 1, rng)
	}
}

// BenchmarkKernelComparison compares kernel evaluation cost.
func BenchmarkKernelComparison(b *testing.B) {
	x1 := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	x2 := []float64{0.5, 0.4, 0.3, 0.2, 0.1}
	for _, k := range []kernels.Kernel{kernels.NewRBFKernel(0.3, 1), kernels.NewMatern52Kernel(0.3, 1)} {
		b.Run(k.Name(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = k.Eval(x1, x2)
			}
		})
	}
}

// BenchmarkAcquisitionFunction measures EI evaluation.
func BenchmarkAcquisitionFunction(b *testing.B) {
	ei := acquisition.NewExpectedImprovement(0, 0.01)
	for i := 0; i < b.N; i++ {
		_ = ei.Compute(0.1, 0.5)
	}
}

// BenchmarkSuggest measures a full suggest/observe round once the
// surrogate is active.
func BenchmarkSuggest(b *testing.B) {
	for _, acq := range []string{ExpectedImprovement, ThompsonSampling} {
		b.Run(acq, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				o, err := New(benchSpace(b), search.Options{Seed: int64(i + 1)}, Options{Acquisition: acq})
				if err != nil {
					b.Fatal(err)
				}
				for j := 0; j < 10; j++ {
					ts, err := o.Suggest(1)
					if err != nil {
						b.Fatal(err)
					}
					ts[0].Observe(rand.Float64())
					if err := o.Observe(ts); err != nil {
						b.Fatal(err)
					}
				}
				b.StartTimer()

				if _, err := o.Suggest(1); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func sizeName(n int) string {
	return "n=" + strconv.Itoa(n)
}

func benchSpace(b *testing.B) *space.Space {
	b.Helper()
	x, err := space.NewReal("linear", -2, 2)
	if err != nil {
		b.Fatal(err)
	}
	lr, err := space.NewReal("log", 1e-4, 1)
	if err != nil {
		b.Fatal(err)
	}
	s, err := space.New(map[string]space.Param{"x": x, "lr": lr})
	if err != nil {
		b.Fatal(err)
	}
	return s
}
