// Package inference is the entry point for predictions and fairness
// metrics. It wires the aligner, the model registry, the explainer and the
// fairness evaluator together.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/liamcoop/studentrisk/explain"
	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/models"
	"github.com/liamcoop/studentrisk/students"
)

// QueryError is a malformed metrics query.
type QueryError struct {
	Reason string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid metrics query: %s: %v", e.Reason, e.Err)
	}
	return "invalid metrics query: " + e.Reason
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrNoStudentStore is returned by PredictStudent when no store is wired.
var ErrNoStudentStore = errors.New("student store is not configured")

// PredictionResult is the response to a single prediction.
type PredictionResult struct {
	ID         string  `json:"id"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	// OverallAccuracy is the serving model's recorded held-out accuracy as
	// a percentage, or null when its artifact records none.
	OverallAccuracy *float64              `json:"overall_accuracy"`
	Explanation     []string              `json:"explanation"`
	Attributions    []explain.Attribution `json:"attributions"`
	Model           string                `json:"model"`
	ServedBy        string                `json:"served_by"`
}

// MetricsQuery selects how the reference dataset is grouped. At most one of
// Group and GroupExpr may be set.
type MetricsQuery struct {
	Group     string
	GroupExpr string
}

// ModelSummary is the instance independent explanation of a model.
type ModelSummary struct {
	Model   string          `json:"model"`
	Kind    models.Kind     `json:"kind"`
	Weights []models.Weight `json:"weights"`
}

// Service is safe for concurrent use; it only reads shared state.
type Service struct {
	aligner   *features.Aligner
	registry  *models.Registry
	evaluator *fairness.Evaluator
	dataset   fairness.Source
	store     students.Store
	topN      int
}

type Option func(*Service)

// WithDatasetSource sets where Metrics reads the labeled dataset.
func WithDatasetSource(src fairness.Source) Option {
	return func(s *Service) { s.dataset = src }
}

// WithStudentStore enables PredictStudent.
func WithStudentStore(store students.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithTopN sets the explanation length.
func WithTopN(n int) Option {
	return func(s *Service) { s.topN = n }
}

// NewService builds a service over the registry's shared schema.
func NewService(registry *models.Registry, opts ...Option) *Service {
	aligner := features.NewAligner(registry.Schema())
	s := &Service{
		aligner:   aligner,
		registry:  registry,
		evaluator: fairness.NewEvaluator(aligner),
		topN:      explain.DefaultTopN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the model registry.
func (s *Service) Registry() *models.Registry { return s.registry }

func normalizeSelector(selector string) string {
	if selector == "" {
		return string(models.Baseline)
	}
	return selector
}

// Predict validates a raw attribute map, then aligns, scales, classifies and
// explains it.
func (s *Service) Predict(ctx context.Context, raw map[string]any, selector string) (*PredictionResult, error) {
	selector = normalizeSelector(selector)

	rec, err := features.ParseStudentRecord(raw)
	if err != nil {
		return nil, err
	}

	bundle, err := s.registry.Resolve(selector)
	if err != nil {
		return nil, err
	}

	v, err := s.aligner.Align(rec)
	if err != nil {
		return nil, err
	}
	scaled, err := bundle.Scale(v)
	if err != nil {
		return nil, err
	}
	label, p, err := bundle.Predict(scaled)
	if err != nil {
		return nil, err
	}
	exp, err := explain.Explain(bundle, scaled, label, s.topN)
	if err != nil {
		return nil, err
	}

	logger.Predictions.Add(1)
	result := &PredictionResult{
		ID:              uuid.New().String(),
		Prediction:      label.String(),
		Confidence:      Confidence(label, p),
		OverallAccuracy: overallAccuracy(bundle),
		Explanation:     exp.Strings(),
		Attributions:    exp.Attributions,
		Model:           selector,
		ServedBy:        string(bundle.Selector),
	}
	logger.Debug("prediction",
		"id", result.ID,
		"model", result.ServedBy,
		"prediction", result.Prediction,
		"confidence", result.Confidence,
	)
	return result, nil
}

// PredictStudent looks a student up by roll number and predicts from the
// stored record.
func (s *Service) PredictStudent(ctx context.Context, rollNo, selector string) (*PredictionResult, error) {
	st, err := s.Student(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	return s.Predict(ctx, st.Record(), selector)
}

// Student returns a stored student.
func (s *Service) Student(ctx context.Context, rollNo string) (*students.Student, error) {
	if s.store == nil {
		return nil, ErrNoStudentStore
	}
	if err := students.ValidateRollNo(rollNo); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, rollNo)
}

// Metrics evaluates the selected model on the reference dataset.
func (s *Service) Metrics(ctx context.Context, selector string, q MetricsQuery) (*fairness.Report, error) {
	selector = normalizeSelector(selector)

	if q.Group != "" && q.GroupExpr != "" {
		return nil, &QueryError{Reason: "group and group_expr are mutually exclusive"}
	}

	var grouping fairness.Grouping
	switch {
	case q.Group != "":
		grouping = fairness.ByAttribute(q.Group)
	case q.GroupExpr != "":
		g, err := fairness.CompileExpression(q.GroupExpr)
		if err != nil {
			return nil, &QueryError{Reason: "group_expr does not compile", Err: err}
		}
		grouping = g
	}

	if s.dataset == nil {
		return nil, fairness.ErrMetricsDataUnavailable
	}
	ds, err := s.dataset.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	bundle, err := s.registry.Resolve(selector)
	if err != nil {
		return nil, err
	}

	report, err := s.evaluator.Evaluate(ctx, ds, bundle, grouping)
	if err != nil {
		return nil, err
	}
	report.Model = selector
	return report, nil
}

// ModelSummary ranks the selected model's attribution weights.
func (s *Service) ModelSummary(selector string, topN int) (*ModelSummary, error) {
	bundle, err := s.registry.Resolve(normalizeSelector(selector))
	if err != nil {
		return nil, err
	}
	if topN <= 0 {
		topN = s.topN
	}
	return &ModelSummary{
		Model:   string(bundle.Selector),
		Kind:    bundle.Model.Kind(),
		Weights: explain.Summarize(bundle, topN),
	}, nil
}

// Confidence is the probability of the predicted class as a percentage
// rounded to two decimals.
func Confidence(label models.Label, p float64) float64 {
	if label == models.Graduate {
		p = 1 - p
	}
	return math.Round(p*100*100) / 100
}

func overallAccuracy(b *models.Bundle) *float64 {
	if b.Metadata.Accuracy == nil {
		return nil
	}
	pct := math.Round(*b.Metadata.Accuracy*100*100) / 100
	return &pct
}
