package server

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/warpbench/internal/errors"
	"github.com/copyleftdev/warpbench/internal/optimization"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/trials"
)

// Study is one optimizer run driven by a client: the client asks for
// trials, evaluates them and reports the values back. All access goes
// through mu.
type Study struct {
	ID        string
	Optimizer string
	Budget    int
	CreatedAt time.Time

	mu      sync.Mutex
	space   *space.Space
	opt     search.Optimizer
	issued  map[string]*trials.Trial
	history *trials.Trials
	count   int
}

// StudyParams select the optimizer of a new study. Zero values fall back
// to the service configuration.
type StudyParams struct {
	ID            string `json:"id,omitempty"`
	Optimizer     string `json:"optimizer,omitempty"`
	Design        string `json:"design,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	Budget        int    `json:"budget,omitempty"`
	InitialPoints int    `json:"initial_points,omitempty"`
}

// Observation reports the objective value of a suggested trial.
type Observation struct {
	TrialID string   `json:"trial_id"`
	Value   *float64 `json:"value"`
}

// TrialView is the wire form of a trial.
type TrialView struct {
	ID         string               `json:"trial_id"`
	Parameters *space.Configuration `json:"parameters"`
	Value      *float64             `json:"value,omitempty"`
}

// StudyStatus summarizes a study.
type StudyStatus struct {
	ID         string     `json:"id"`
	Optimizer  string     `json:"optimizer"`
	Version    string     `json:"version"`
	State      string     `json:"state,omitempty"`
	Parameters []string   `json:"parameters"`
	Dimensions int        `json:"dimensions"`
	Budget     int        `json:"budget,omitempty"`
	Suggested  int        `json:"suggested"`
	Observed   int        `json:"observed"`
	Pending    []string   `json:"pending"`
	Best       *TrialView `json:"best,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func view(t *trials.Trial) *TrialView {
	v := &TrialView{ID: t.ID, Parameters: t.Configuration}
	if y, ok := t.Last(); ok {
		v.Value = &y
	}
	return v
}

// CreateStudy builds an optimizer over sp and stores the study.
func (s *Server) CreateStudy(sp *space.Space, p StudyParams) (*StudyStatus, error) {
	if sp == nil {
		return nil, apperrors.BadRequestf("space is required")
	}
	if p.Budget < 0 || p.InitialPoints < 0 {
		return nil, apperrors.BadRequestf("budget and initial_points must not be negative")
	}

	opts := s.cfg.Optimization
	if p.Optimizer == "" {
		p.Optimizer = opts.DefaultOptimizer
	}
	if p.Design == "" {
		p.Design = opts.DefaultDesign
	}
	if p.Budget == 0 {
		p.Budget = opts.TotalLimit
	}
	if p.InitialPoints == 0 {
		p.InitialPoints = opts.InitialPoints
	}
	if p.Seed == 0 {
		p.Seed = opts.Seed
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if !s.registry.Has(p.Optimizer) {
		return nil, optimization.Configurationf("unknown optimizer %q, have %v", p.Optimizer, s.registry.Names())
	}

	// reserve the id before the possibly slow optimizer construction
	s.studiesMu.Lock()
	if _, exists := s.studies[p.ID]; exists {
		s.studiesMu.Unlock()
		return nil, apperrors.Conflictf("study %q already exists", p.ID)
	}
	if len(s.studies) >= opts.MaxStudies {
		s.studiesMu.Unlock()
		return nil, apperrors.Conflictf("study limit of %d reached", opts.MaxStudies)
	}
	s.studies[p.ID] = nil
	s.studiesMu.Unlock()

	created := false
	defer func() {
		if !created {
			s.studiesMu.Lock()
			delete(s.studies, p.ID)
			s.studiesMu.Unlock()
		}
	}()

	opt, err := s.registry.New(p.Optimizer, sp, search.Options{
		Seed:           p.Seed,
		InitialDesign:  p.Design,
		NInitialPoints: p.InitialPoints,
		TotalLimit:     p.Budget,
		Logger:         s.zap.With(zap.String("study", p.ID)),
		Recorder:       s.recorder,
	})
	if err != nil {
		return nil, err
	}

	st := &Study{
		ID:        p.ID,
		Optimizer: p.Optimizer,
		Budget:    p.Budget,
		CreatedAt: time.Now().UTC(),
		space:     sp,
		opt:       opt,
		issued:    make(map[string]*trials.Trial),
		history:   trials.NewTrials(sp.Dimensions()),
	}

	s.studiesMu.Lock()
	s.studies[p.ID] = st
	created = true
	s.studiesMu.Unlock()
	s.recorder.StudyCreated()

	s.logger.Info("study created", map[string]interface{}{
		"study":      st.ID,
		"optimizer":  st.Optimizer,
		"design":     p.Design,
		"budget":     st.Budget,
		"dimensions": sp.Dimensions(),
	})

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status(), nil
}

// LoadStudy creates a study with default parameters over the space
// declared in a YAML or JSON file.
func (s *Server) LoadStudy(id, path string) (*StudyStatus, error) {
	sp, err := space.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return s.CreateStudy(sp, StudyParams{ID: id})
}

// study returns the stored study or a not-found error.
func (s *Server) study(id string) (*Study, error) {
	s.studiesMu.RLock()
	st := s.studies[id]
	s.studiesMu.RUnlock()
	if st == nil {
		return nil, apperrors.NotFoundf("study %q not found", id)
	}
	return st, nil
}

// Suggest asks the study's optimizer for n trials. Requests beyond the
// remaining budget fail as exhausted.
func (s *Server) Suggest(id string, n int) ([]*TrialView, error) {
	if n > s.cfg.Optimization.MaxSuggestions {
		return nil, apperrors.BadRequestf("n must be at most %d, got %d", s.cfg.Optimization.MaxSuggestions, n)
	}
	st, err := s.study(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.Budget > 0 && n > 0 && st.count+n > st.Budget {
		return nil, optimization.Exhaustedf("budget of %d trials allows %d more, %d requested",
			st.Budget, st.Budget-st.count, n).WithComponent("server").WithOperation("Suggest")
	}

	ts, err := st.opt.Suggest(n)
	if err != nil {
		return nil, err
	}
	out := make([]*TrialView, len(ts))
	for i, t := range ts {
		st.issued[t.ID] = t
		out[i] = view(t)
	}
	st.count += len(ts)
	return out, nil
}

// Observe records objective values for issued trials. The whole batch is
// validated before anything is recorded.
func (s *Server) Observe(id string, obs []Observation) (*StudyStatus, error) {
	if len(obs) == 0 {
		return nil, apperrors.BadRequestf("observations are required")
	}
	st, err := s.study(id)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	batch := make([]*trials.Trial, 0, len(obs))
	seen := make(map[string]bool, len(obs))
	for _, o := range obs {
		t, ok := st.issued[o.TrialID]
		if !ok || seen[o.TrialID] {
			return nil, optimization.Validationf("trial %q is not awaiting an observation", o.TrialID)
		}
		if o.Value == nil || math.IsNaN(*o.Value) || math.IsInf(*o.Value, 0) {
			return nil, optimization.Validationf("trial %q: value must be a finite number", o.TrialID)
		}
		seen[o.TrialID] = true
		batch = append(batch, t)
	}

	for i, t := range batch {
		t.Observe(*obs[i].Value)
	}
	if err := st.opt.Observe(batch); err != nil {
		return nil, err
	}
	for _, t := range batch {
		delete(st.issued, t.ID)
		if err := st.history.Add(t); err != nil {
			return nil, err
		}
	}
	return st.status(), nil
}

// Status reports the study's progress.
func (s *Server) Status(id string) (*StudyStatus, error) {
	st, err := s.study(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status(), nil
}

// DeleteStudy drops a study. Trials still pending are discarded.
func (s *Server) DeleteStudy(id string) error {
	s.studiesMu.Lock()
	st := s.studies[id]
	if st == nil {
		s.studiesMu.Unlock()
		return apperrors.NotFoundf("study %q not found", id)
	}
	delete(s.studies, id)
	s.studiesMu.Unlock()

	s.recorder.StudyDeleted()
	s.logger.Info("study deleted", map[string]interface{}{"study": id})
	return nil
}

// status must be called with st.mu held.
func (st *Study) status() *StudyStatus {
	pending := make([]string, 0, len(st.issued))
	for id := range st.issued {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	out := &StudyStatus{
		ID:         st.ID,
		Optimizer:  st.Optimizer,
		Version:    st.opt.Version(),
		Parameters: st.space.Names(),
		Dimensions: st.space.Dimensions(),
		Budget:     st.Budget,
		Suggested:  st.count,
		Observed:   st.history.Len(),
		Pending:    pending,
		CreatedAt:  st.CreatedAt,
	}
	if sm, ok := st.opt.(interface{ State() search.State }); ok {
		out.State = sm.State().String()
	}
	if best, ok := st.history.Best(); ok {
		out.Best = view(best)
	}
	return out
}
