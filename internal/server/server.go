// Package server exposes optimizer studies over HTTP and JSON-RPC 2.0.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/warpbench/internal/config"
	apperrors "github.com/copyleftdev/warpbench/internal/errors"
	"github.com/copyleftdev/warpbench/internal/logging"
	"github.com/copyleftdev/warpbench/internal/optimization/bayesian"
	"github.com/copyleftdev/warpbench/internal/optimization/search"
	"github.com/copyleftdev/warpbench/internal/optimization/space"
	"github.com/copyleftdev/warpbench/internal/optimization/strategies"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Recorder receives optimizer and study activity.
type Recorder interface {
	search.Recorder
	StudyCreated()
	StudyDeleted()
}

type nopRecorder struct{}

func (nopRecorder) Suggested(string, int)      {}
func (nopRecorder) Observed(string, int)       {}
func (nopRecorder) SampleAttempts(string, int) {}
func (nopRecorder) Exhausted(string)           {}
func (nopRecorder) StudyCreated()              {}
func (nopRecorder) StudyDeleted()              {}

// Option configures a Server.
type Option func(*Server)

// WithRecorder reports activity to r.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRegistry builds optimizers from r instead of a registry holding the
// built-in strategies.
func WithRegistry(r *search.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It holds the studies and serializes access to each of them.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	zap      *zap.Logger
	registry *search.Registry
	recorder Recorder

	studies   map[string]*Study
	studiesMu sync.RWMutex // Protects the studies map
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		zap:      logging.NewZapLogger(logger),
		recorder: nopRecorder{},
		studies:  make(map[string]*Study),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = search.NewRegistry()
		err := strategies.Register(s.registry, bayesian.Options{
			Kernel:         cfg.Surrogate.Kernel,
			LengthScale:    cfg.Surrogate.LengthScale,
			SignalVariance: cfg.Surrogate.SignalVariance,
			NoiseVariance:  cfg.Surrogate.NoiseVariance,
			Xi:             cfg.Surrogate.Xi,
			Acquisition:    cfg.Surrogate.Acquisition,
			Candidates:     cfg.Surrogate.Candidates,
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Optimizers lists the optimizer names studies can use.
func (s *Server) Optimizers() []string {
	return s.registry.Names()
}

func (s *Server) RegisterRoutes(r chi.Router) {
	handle := func(fn apperrors.HandlerFunc) http.HandlerFunc {
		return apperrors.ErrorHandler(s.logger, fn)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/optimizers", handle(s.handleOptimizers))
		r.Route("/studies", func(r chi.Router) {
			r.Post("/", handle(s.handleCreate))
			r.Get("/{id}", handle(s.handleStatus))
			r.Delete("/{id}", handle(s.handleDelete))
			r.Post("/{id}/suggest", handle(s.handleSuggest))
			r.Post("/{id}/observe", handle(s.handleObserve))
		})
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// CreateStudyRequest is the body of POST /api/v1/studies and the params of
// study.create. Space holds the parameter declarations.
type CreateStudyRequest struct {
	Space json.RawMessage `json:"space"`
	StudyParams
}

func (s *Server) createFromRequest(req CreateStudyRequest) (*StudyStatus, error) {
	if len(req.Space) == 0 || strings.TrimSpace(string(req.Space)) == "null" {
		return nil, apperrors.BadRequestf("space is required")
	}
	decls, err := space.ParseJSON(req.Space)
	if err != nil {
		return nil, err
	}
	sp, err := decls.Space()
	if err != nil {
		return nil, err
	}
	return s.CreateStudy(sp, req.StudyParams)
}

type suggestRequest struct {
	N *int `json:"n"`
}

func (r suggestRequest) count() int {
	if r.N == nil {
		return 1
	}
	return *r.N
}

type observeRequest struct {
	Observations []Observation `json:"observations"`
}

// decode reads a JSON body into v. An empty body is an error unless
// optional is set, in which case v is left untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return apperrors.BadRequestf("request body is required")
	default:
		return apperrors.BadRequestf("invalid request body: %v", err)
	}
}

// respond writes v as JSON. Once the header is out, encoding failures can
// no longer change the response and are dropped.
func respond(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return nil
}

// handleOptimizers handles GET /api/v1/optimizers
func (s *Server) handleOptimizers(w http.ResponseWriter, r *http.Request) error {
	return respond(w, http.StatusOK, map[string]interface{}{
		"optimizers": s.Optimizers(),
		"default":    s.cfg.Optimization.DefaultOptimizer,
	})
}

// handleCreate handles POST /api/v1/studies
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) error {
	var req CreateStudyRequest
	if err := decode(w, r, &req, false); err != nil {
		return err
	}
	status, err := s.createFromRequest(req)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/api/v1/studies/"+status.ID)
	return respond(w, http.StatusCreated, status)
}

// handleStatus handles GET /api/v1/studies/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, status)
}

// handleDelete handles DELETE /api/v1/studies/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := s.DeleteStudy(chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// handleSuggest handles POST /api/v1/studies/{id}/suggest. An empty body
// asks for one trial.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) error {
	var req suggestRequest
	if err := decode(w, r, &req, true); err != nil {
		return err
	}
	ts, err := s.Suggest(chi.URLParam(r, "id"), req.count())
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, map[string]interface{}{"trials": ts})
}

// handleObserve handles POST /api/v1/studies/{id}/observe
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) error {
	var req observeRequest
	if err := decode(w, r, &req, false); err != nil {
		return err
	}
	status, err := s.Observe(chi.URLParam(r, "id"), req.Observations)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, status)
}

// Close drops all studies.
func (s *Server) Close() error {
	s.studiesMu.Lock()
	defer s.studiesMu.Unlock()

	n := 0
	for id, st := range s.studies {
		if st != nil {
			s.recorder.StudyDeleted()
			n++
		}
		delete(s.studies, id)
	}
	s.logger.Info("studies closed", map[string]interface{}{"count": n})
	return s.zap.Sync()
}
