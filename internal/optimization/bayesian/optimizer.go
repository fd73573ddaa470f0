// Package bayesian implements the "gp" optimizer: a Gaussian process
// surrogate fitted to observed trials proposes the next configurations,
// with the random optimizer as fallback.
package bayesian

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/acquisition"
	"github.com/copyleftdev/warpbench/internal/optimization/kernels"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/trials"
)

// Name is the registry name of the optimizer.
const Name = "gp"

// Acquisition strategies.
const (
	ExpectedImprovement = "ei"
	ThompsonSampling    = "ts"
)

// minObservations is the number of observed trials needed before the
// surrogate is used.
const minObservations = 2

// Options tune the surrogate. Zero values select defaults.
type Options struct {
	// Kernel is "matern52" (default) or "rbf".
	Kernel string
	// LengthScale of the kernel on the unit cube.
	LengthScale float64
	// SignalVariance of the kernel on standardized targets.
	SignalVariance float64
	// NoiseVariance is added to the kernel diagonal.
	NoiseVariance float64
	// Xi is the EI exploration margin in standard deviations of the
	// observed targets.
	Xi float64
	// Acquisition is "ei" (default) or "ts".
	Acquisition string
	// Restarts of the EI maximizer; zero selects 5+5·√d.
	Restarts int
	// Candidates scored per Thompson sampling round.
	Candidates int
}

func (o Options) withDefaults() Options {
	if o.LengthScale == 0 {
		o.LengthScale = 0.3
	}
	if o.SignalVariance == 0 {
		o.SignalVariance = 1
	}
	if o.NoiseVariance == 0 {
		o.NoiseVariance = 1e-6
	}
	if o.Xi == 0 {
		o.Xi = 0.01
	}
	if o.Acquisition == "" {
		o.Acquisition = ExpectedImprovement
	}
	if o.Candidates == 0 {
		o.Candidates = 256
	}
	return o
}

// Optimizer proposes configurations from a Gaussian process surrogate.
// The initial design, deduplication, observation bookkeeping and the
// exhaustion rule are those of the embedded random optimizer.
type Optimizer struct {
	*search.RandomOptimizer

	gp     *GP
	ei     *acquisition.ExpectedImprovement
	opts   Options
	bounds [][2]float64
	logger *zap.Logger
}

// New builds a GP optimizer over s.
func New(s *space.Space, opts search.Options, gpOpts Options) (*Optimizer, error) {
	gpOpts = gpOpts.withDefaults()
	switch gpOpts.Acquisition {
	case ExpectedImprovement, ThompsonSampling:
	default:
		return nil, optimization.Configurationf("unknown acquisition %q", gpOpts.Acquisition).
			WithComponent("bayesian").WithOperation("New")
	}
	if gpOpts.NoiseVariance < 0 || gpOpts.Restarts < 0 || gpOpts.Candidates < 0 {
		return nil, optimization.Configurationf("surrogate options must not be negative").
			WithComponent("bayesian").WithOperation("New")
	}

	kernel, err := kernels.New(gpOpts.Kernel, gpOpts.LengthScale, gpOpts.SignalVariance)
	if err != nil {
		return nil, err
	}

	if opts.Name == "" {
		opts.Name = Name
	}
	base, err := search.NewRandomOptimizer(s, opts)
	if err != nil {
		return nil, err
	}
	logger := base.Options().Logger.Named(Name)

	return &Optimizer{
		RandomOptimizer: base,
		gp:              NewGP(kernel, gpOpts.NoiseVariance, logger),
		ei:              acquisition.NewExpectedImprovement(math.Inf(1), gpOpts.Xi),
		opts:            gpOpts,
		bounds:          s.Bounds(),
		logger:          logger,
	}, nil
}

// Constructor returns a search.Constructor building GP optimizers with
// gpOpts.
func Constructor(gpOpts Options) search.Constructor {
	return func(s *space.Space, opts search.Options) (search.Optimizer, error) {
		o, err := New(s, opts, gpOpts)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
}

// Suggest returns n trials. While the initial design is pending, or too few
// trials are observed, it behaves as the random optimizer. Afterwards each
// slot takes the best-scoring surrogate proposal not yet suggested, and
// falls back to rejection sampling when proposals run out.
func (o *Optimizer) Suggest(n int) ([]*trials.Trial, error) {
	if n < 1 || o.State() == search.StateExhausted || o.Pending() > 0 {
		return o.RandomOptimizer.Suggest(n)
	}

	proposals, err := o.propose()
	if err != nil {
		o.logger.Warn("surrogate proposal failed, sampling at random", zap.Error(err))
		proposals = nil
	}

	out := make([]*trials.Trial, 0, n)
	for len(out) < n {
		var cfg *space.Configuration
		for len(proposals) > 0 && cfg == nil {
			if !o.Known(proposals[0]) {
				cfg = proposals[0]
			}
			proposals = proposals[1:]
		}
		if cfg == nil {
			cfg, err = o.SampleNew()
			if err != nil {
				o.Retract(out)
				return nil, err
			}
		}
		out = append(out, o.Issue(cfg))
	}

	opts := o.Options()
	opts.Recorder.Suggested(opts.Name, len(out))
	return out, nil
}

// propose fits the surrogate and returns decoded proposals, best first.
// It returns nothing while fewer than minObservations trials are observed.
func (o *Optimizer) propose() ([]*space.Configuration, error) {
	X, y := o.Trials().TrainingData()
	if X == nil {
		return nil, nil
	}
	if rows, _ := X.Dims(); rows < minObservations {
		return nil, nil
	}

	Xu := o.toUnit(X)
	if err := o.gp.Fit(Xu, y); err != nil {
		return nil, err
	}

	var points [][]float64
	switch o.opts.Acquisition {
	case ThompsonSampling:
		var err error
		points, err = o.thompson(Xu, y)
		if err != nil {
			return nil, err
		}
	default:
		points = o.maximizeEI(Xu, y)
	}

	out := make([]*space.Configuration, 0, len(points))
	for _, u := range points {
		cfg, err := o.Space().Decode(o.fromUnit(u))
		if err != nil {
			o.logger.Debug("dropping undecodable proposal", zap.Error(err))
			continue
		}
		out = append(out, cfg)
	}
	o.logger.Debug("surrogate proposals",
		zap.String("acquisition", o.opts.Acquisition),
		zap.Int("observed", y.Len()),
		zap.Int("proposals", len(out)),
	)
	return out, nil
}

type scored struct {
	x     []float64
	score float64
}

// maximizeEI runs Nelder-Mead on -EI from the incumbent and from random
// starts in the unit cube. Results are ordered by EI, highest first.
func (o *Optimizer) maximizeEI(Xu *mat.Dense, y *mat.VecDense) [][]float64 {
	_, nDims := Xu.Dims()

	best, _ := o.gp.BestObserved()
	o.ei.UpdateBest(best)
	o.ei.SetXi(o.opts.Xi * o.gp.yStd)

	objective := func(x []float64) float64 {
		u := clampUnit(x)
		mu, sigmaSq, err := o.gp.Predict(mat.NewDense(1, nDims, u))
		if err != nil {
			return math.Inf(1)
		}
		return -o.ei.Compute(mu.AtVec(0), math.Sqrt(sigmaSq.AtVec(0)))
	}

	nStarts := o.opts.Restarts
	if nStarts == 0 {
		nStarts = 5 + int(5*math.Sqrt(float64(nDims)))
	}
	starts := make([][]float64, 0, nStarts)
	starts = append(starts, append([]float64(nil), Xu.RawRowView(argmin(y))...))
	for len(starts) < nStarts {
		starts = append(starts, o.randomUnit(nDims))
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		FuncEvaluations: 100 * nDims,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 50,
		},
	}

	results := make([]scored, 0, nStarts)
	for _, start := range starts {
		method := &optimize.NelderMead{
			Reflection:  1.0,
			Expansion:   2.0,
			Contraction: 0.5,
			Shrink:      0.5,
			SimplexSize: 0.2,
		}
		result, err := optimize.Minimize(problem, start, settings, method)
		if err != nil || result == nil {
			continue
		}
		results = append(results, scored{x: clampUnit(result.X), score: -result.F})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	points := make([][]float64, len(results))
	for i, r := range results {
		points[i] = r.x
	}
	return points
}

// thompson draws one posterior sample over random candidates plus the
// incumbent and orders the candidates by sampled value, lowest first.
func (o *Optimizer) thompson(Xu *mat.Dense, y *mat.VecDense) ([][]float64, error) {
	_, nDims := Xu.Dims()

	C := mat.NewDense(o.opts.Candidates+1, nDims, nil)
	C.SetRow(0, Xu.RawRowView(argmin(y)))
	for i := 1; i <= o.opts.Candidates; i++ {
		C.SetRow(i, o.randomUnit(nDims))
	}

	samples, err := o.gp.Sample(C, 1, o.Rand())
	if err != nil {
		return nil, err
	}

	rows, _ := C.Dims()
	results := make([]scored, rows)
	for i := range results {
		results[i] = scored{x: mat.Row(nil, i, C), score: samples.At(i, 0)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score < results[j].score
	})
	points := make([][]float64, len(results))
	for i, r := range results {
		points[i] = r.x
	}
	return points, nil
}

func (o *Optimizer) toUnit(X *mat.Dense) *mat.Dense {
	r, c := X.Dims()
	U := mat.NewDense(r, c, nil)
	U.Apply(func(_, j int, v float64) float64 {
		lo, hi := o.bounds[j][0], o.bounds[j][1]
		return (v - lo) / (hi - lo)
	}, X)
	return U
}

func (o *Optimizer) fromUnit(u []float64) []float64 {
	x := make([]float64, len(u))
	for j, v := range u {
		lo, hi := o.bounds[j][0], o.bounds[j][1]
		x[j] = lo + v*(hi-lo)
	}
	return x
}

func (o *Optimizer) randomUnit(n int) []float64 {
	u := make([]float64, n)
	for j := range u {
		u[j] = o.Rand().Float64()
	}
	return u
}

func clampUnit(x []float64) []float64 {
	u := make([]float64, len(x))
	for i, v := range x {
		u[i] = math.Max(0, math.Min(v, 1))
	}
	return u
}

func argmin(y *mat.VecDense) int {
	idx := 0
	for i := 1; i < y.Len(); i++ {
		if y.AtVec(i) < y.AtVec(idx) {
			idx = i
		}
	}
	return idx
}
