package bayesian

import (
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/kernels"
)

const (
	initialJitter     = 1e-10
	maxJitterAttempts = 10
)

// GP is a Gaussian process regressor over encoded configurations.
// Targets are standardized internally; predictions are reported on the
// original scale.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64

	X     *mat.Dense
	y     *mat.VecDense
	yMean float64
	yStd  float64

	alpha  *mat.VecDense
	chol   *mat.Cholesky
	jitter float64

	matrixPool *MatrixPool
	logger     *zap.Logger
}

// NewGP creates a Gaussian process with the given kernel and observation
// noise variance. A nil logger disables logging.
func NewGP(kernel kernels.Kernel, noiseVar float64, logger *zap.Logger) *GP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:     kernel,
		noiseVar:   noiseVar,
		matrixPool: NewMatrixPool(),
		logger:     logger.Named("gaussian_process"),
	}
}

// Fitted reports whether Fit succeeded at least once.
func (gp *GP) Fitted() bool {
	return gp.alpha != nil && gp.chol != nil
}

// Fit conditions the process on rows of X and targets y.
func (gp *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		return gpError(op, "input matrices must not be nil")
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return gpError(op, "input matrix X must not be empty")
	}
	if nSamples != y.Len() {
		return gpError(op, "dimension mismatch: X has %d samples but y has length %d", nSamples, y.Len())
	}

	targets := mat.Col(nil, 0, y)
	for _, v := range targets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return gpError(op, "targets must be finite")
		}
	}
	mean, std := stat.MeanStdDev(targets, nil)
	if !(std > 1e-12) {
		std = 1
	}
	standardized := mat.NewVecDense(nSamples, nil)
	for i, v := range targets {
		standardized.SetVec(i, (v-mean)/std)
	}

	gp.logger.Debug("fitting GP model",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", gp.noiseVar),
	)

	K := gp.computeKernelMatrix(X)
	defer gp.matrixPool.PutSymDense(K)

	chol, jitter, err := gp.factorize(K)
	if err != nil {
		return err
	}

	alpha := mat.NewVecDense(nSamples, nil)
	if err := chol.SolveVecTo(alpha, standardized); err != nil && !isCondition(err) {
		return optimization.WrapError(err, "failed to solve linear system").
			WithComponent("gaussian_process").WithOperation(op)
	}

	gp.X = mat.DenseCopyOf(X)
	gp.y = standardized
	gp.yMean, gp.yStd = mean, std
	gp.alpha = alpha
	gp.chol = chol
	gp.jitter = jitter

	gp.logger.Debug("fitted GP model",
		zap.Int("samples", nSamples),
		zap.Float64("jitter", jitter),
		zap.Float64("condition_number", chol.Cond()),
	)
	return nil
}

// computeKernelMatrix evaluates the kernel over all pairs of rows of X.
func (gp *GP) computeKernelMatrix(X *mat.Dense) *mat.SymDense {
	n, _ := X.Dims()
	K := gp.matrixPool.GetSymDense(n)
	for i := 0; i < n; i++ {
		x1 := X.RawRowView(i)
		for j := i; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(x1, X.RawRowView(j)))
		}
	}
	return K
}

// factorize adds the noise variance to the diagonal of K and factorizes
// it, growing a jitter term tenfold on each failure.
func (gp *GP) factorize(K *mat.SymDense) (*mat.Cholesky, float64, error) {
	const op = "GP.factorize"

	n := K.SymmetricDim()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, K.At(i, i))
	}
	if scale <= 0 {
		scale = 1
	}

	Kj := mat.NewSymDense(n, nil)
	jitter := 0.0
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		Kj.CopySym(K)
		for i := 0; i < n; i++ {
			Kj.SetSym(i, i, K.At(i, i)+gp.noiseVar+jitter)
		}

		var chol mat.Cholesky
		if chol.Factorize(Kj) {
			return &chol, jitter, nil
		}

		if jitter == 0 {
			jitter = initialJitter * scale
		} else {
			jitter *= 10
		}
		gp.logger.Debug("cholesky factorization failed, increasing jitter",
			zap.Int("attempt", attempt+1),
			zap.Float64("jitter", jitter),
		)
	}
	return nil, 0, optimization.NewErrorf("kernel matrix is not positive definite after %d attempts", maxJitterAttempts).
		WithComponent("gaussian_process").WithOperation(op)
}

// Predict returns the posterior mean and variance of the latent function at
// each row of X.
func (gp *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if X == nil {
		return nil, nil, gpError(op, "input matrix X is nil")
	}
	if !gp.Fitted() {
		return nil, nil, gpError(op, "model not trained")
	}

	nTest, nFeatures := X.Dims()
	nTrain, trainFeatures := gp.X.Dims()
	if nFeatures != trainFeatures {
		return nil, nil, gpError(op, "expected %d features, got %d", trainFeatures, nFeatures)
	}

	Kstar := gp.matrixPool.GetDense(nTest, nTrain)
	defer gp.matrixPool.PutDense(Kstar)

	Kss := make([]float64, nTest)
	for i := 0; i < nTest; i++ {
		xStar := X.RawRowView(i)
		Kss[i] = gp.kernel.Eval(xStar, xStar)
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, gp.kernel.Eval(xStar, gp.X.RawRowView(j)))
		}
	}

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.alpha)

	// var = k(x,x) - k*ᵀ K⁻¹ k*
	var W mat.Dense
	if err := gp.chol.SolveTo(&W, Kstar.T()); err != nil && !isCondition(err) {
		return nil, nil, optimization.WrapError(err, "failed to solve linear system").
			WithComponent("gaussian_process").WithOperation(op)
	}

	variance := mat.NewVecDense(nTest, nil)
	for i := 0; i < nTest; i++ {
		var quad float64
		for j := 0; j < nTrain; j++ {
			quad += Kstar.At(i, j) * W.At(j, i)
		}
		v := Kss[i] - quad
		if v < 0 {
			v = 0
		}
		variance.SetVec(i, v*gp.yStd*gp.yStd)
		mean.SetVec(i, mean.AtVec(i)*gp.yStd+gp.yMean)
	}

	return mean, variance, nil
}

// Sample draws nSamples independent posterior samples at the rows of X.
// Column j of the result is sample j.
func (gp *GP) Sample(X *mat.Dense, nSamples int, rng *rand.Rand) (*mat.Dense, error) {
	const op = "GP.Sample"

	if nSamples <= 0 {
		return nil, gpError(op, "number of samples must be positive")
	}
	mean, variance, err := gp.Predict(X)
	if err != nil {
		return nil, err
	}

	nTest := mean.Len()
	samples := mat.NewDense(nTest, nSamples, nil)
	for i := 0; i < nTest; i++ {
		sd := math.Sqrt(variance.AtVec(i))
		for j := 0; j < nSamples; j++ {
			samples.Set(i, j, mean.AtVec(i)+sd*rng.NormFloat64())
		}
	}
	return samples, nil
}

// BestObserved returns the lowest training target on the original scale.
func (gp *GP) BestObserved() (float64, bool) {
	if gp.y == nil || gp.y.Len() == 0 {
		return 0, false
	}
	best := math.Inf(1)
	for i := 0; i < gp.y.Len(); i++ {
		best = math.Min(best, gp.y.AtVec(i))
	}
	return best*gp.yStd + gp.yMean, true
}

func gpError(op, format string, args ...interface{}) *optimization.Error {
	return optimization.Validationf(format, args...).
		WithComponent("gaussian_process").WithOperation(op)
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}
