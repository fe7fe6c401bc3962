package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/inference"
	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/models"
	"github.com/liamcoop/studentrisk/students"
)

type Server struct {
	svc            *inference.Service
	ping           func(context.Context) error
	allowedOrigins []string
	router         *chi.Mux
}

type ServerOption func(*Server)

// WithPing makes the health check report unhealthy when ping fails.
func WithPing(ping func(context.Context) error) ServerOption {
	return func(s *Server) { s.ping = ping }
}

// WithAllowedOrigins restricts CORS to the given origins. "*" allows any.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func NewServer(svc *inference.Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:            svc,
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors(s.allowedOrigins))

	r.Get("/api/v1/health", s.handleHealth)

	r.Post("/api/v1/predict", s.handlePredict)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Route("/api/v1/students/{rollNo}", func(r chi.Router) {
		r.Get("/", s.handleGetStudent)
		r.Post("/predict", s.handlePredictStudent)
	})

	r.Get("/api/v1/models/{selector}/explanation", s.handleModelExplanation)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg := s.svc.Registry()
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Error:  err.Error(),
				Models: reg.Selectors(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:            "healthy",
		Models:            reg.Selectors(),
		UnknownSelector:   reg.Policy().String(),
		SchemaFingerprint: reg.Schema().Fingerprint(),
		Counters:          logger.Counters(),
	})
}

// handlePredict accepts {"features": {...}, "model": "..."} or a bare
// attribute map with the selector in the model query parameter.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	req, err := parsePredictRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Model == "" {
		req.Model = r.URL.Query().Get("model")
	}

	result, err := s.svc.Predict(r.Context(), req.Features, req.Model)
	if err != nil {
		respondServiceError(w, "prediction failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := s.svc.Metrics(r.Context(), q.Get("model"), inference.MetricsQuery{
		Group:     q.Get("group"),
		GroupExpr: q.Get("group_expr"),
	})
	if err != nil {
		respondServiceError(w, "metrics failed", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	rollNo := chi.URLParam(r, "rollNo")

	st, err := s.svc.Student(r.Context(), rollNo)
	if err != nil {
		respondServiceError(w, "failed to get student", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handlePredictStudent(w http.ResponseWriter, r *http.Request) {
	rollNo := chi.URLParam(r, "rollNo")

	result, err := s.svc.PredictStudent(r.Context(), rollNo, r.URL.Query().Get("model"))
	if err != nil {
		respondServiceError(w, "prediction failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleModelExplanation(w http.ResponseWriter, r *http.Request) {
	selector := chi.URLParam(r, "selector")

	top := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "top must be a positive integer", err)
			return
		}
		top = n
	}

	summary, err := s.svc.ModelSummary(selector, top)
	if err != nil {
		respondServiceError(w, "failed to explain model", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// statusFor maps service errors onto HTTP status codes. Anything unknown is
// a server fault. A bad reference record wraps a SchemaError but is checked
// first: the dataset is server data.
func statusFor(err error) int {
	var (
		recordErr    *fairness.RecordError
		schemaErr    *features.SchemaError
		dimensionErr *features.DimensionMismatchError
		queryErr     *inference.QueryError
	)
	switch {
	case errors.As(err, &recordErr):
		return http.StatusInternalServerError
	case errors.As(err, &schemaErr),
		errors.As(err, &queryErr),
		errors.Is(err, fairness.ErrMetricsDataUnavailable),
		errors.Is(err, models.ErrUnknownSelector),
		errors.Is(err, students.ErrInvalidRollNo):
		return http.StatusBadRequest
	case errors.Is(err, students.ErrStudentNotFound):
		return http.StatusNotFound
	case errors.Is(err, inference.ErrNoStudentStore):
		return http.StatusServiceUnavailable
	case errors.As(err, &dimensionErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, "error", err, "status", status)
	}
	respondError(w, status, message, err)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}
