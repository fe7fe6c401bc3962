package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/internal/logger"
)

// Selector chooses a model bundle.
type Selector string

const (
	Baseline  Selector = "baseline"
	Mitigated Selector = "mitigated"
)

// Selectors lists every selector a registry can serve.
var Selectors = []Selector{Baseline, Mitigated}

const (
	SchemaFile = "feature_columns.yaml"
	ModelFile  = "model.yaml"
	ScalerFile = "scaler.yaml"
)

// ErrUnknownSelector is returned for unrecognized selectors when the
// registry rejects them instead of falling back.
var ErrUnknownSelector = errors.New("unknown model selector")

// ModelNotLoadedError reports a required artifact that could not be loaded.
// The process must not serve when it sees one.
type ModelNotLoadedError struct {
	Selector Selector
	Path     string
	Err      error
}

func (e *ModelNotLoadedError) Error() string {
	return fmt.Sprintf("model %q not loaded from %s: %v", e.Selector, e.Path, e.Err)
}

func (e *ModelNotLoadedError) Unwrap() error { return e.Err }

// UnknownSelectorPolicy decides what Resolve does with an unknown selector.
type UnknownSelectorPolicy int

const (
	// FallbackToBaseline serves the baseline bundle and logs a warning.
	FallbackToBaseline UnknownSelectorPolicy = iota
	// RejectUnknown returns ErrUnknownSelector.
	RejectUnknown
)

// ParseUnknownSelectorPolicy accepts "fallback" and "reject".
func ParseUnknownSelectorPolicy(s string) (UnknownSelectorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fallback":
		return FallbackToBaseline, nil
	case "reject":
		return RejectUnknown, nil
	default:
		return FallbackToBaseline, fmt.Errorf("unknown selector policy %q", s)
	}
}

func (p UnknownSelectorPolicy) String() string {
	if p == RejectUnknown {
		return "reject"
	}
	return "fallback"
}

// Bundle pairs a model with its scaler and the schema both were trained on.
// Bundles are never mutated after load.
type Bundle struct {
	Selector Selector
	Model    Classifier
	Scaler   *features.ScalerParams
	Schema   *features.Schema
	Metadata Metadata
}

// NewBundle checks that model, scaler and schema agree column for column.
func NewBundle(sel Selector, model Classifier, scaler *features.ScalerParams, schema *features.Schema) (*Bundle, error) {
	if model == nil || scaler == nil || schema == nil {
		return nil, fmt.Errorf("bundle %q is incomplete", sel)
	}

	trained, err := features.NewSchema(model.Columns(), nil)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: invalid model columns: %w", sel, err)
	}
	if !trained.Equal(schema) {
		return nil, fmt.Errorf("bundle %q: model columns do not match feature schema %s", sel, schema.Fingerprint()[:12])
	}
	if scaler.Len() != schema.Len() {
		return nil, &features.DimensionMismatchError{Got: scaler.Len(), Want: schema.Len(), What: "scaler"}
	}

	return &Bundle{Selector: sel, Model: model, Scaler: scaler, Schema: schema}, nil
}

// Scale standardizes an aligned vector with the bundle's scaler.
func (b *Bundle) Scale(v features.Vector) (features.Vector, error) {
	if v.Schema() != nil && !v.Schema().Equal(b.Schema) {
		return features.Vector{}, fmt.Errorf("vector schema does not match bundle %q", b.Selector)
	}
	return b.Scaler.Transform(v)
}

// Predict classifies a scaled vector.
func (b *Bundle) Predict(scaled features.Vector) (Label, float64, error) {
	if scaled.Len() != b.Schema.Len() {
		return Graduate, 0, &features.DimensionMismatchError{Got: scaled.Len(), Want: b.Schema.Len(), What: "feature vector"}
	}
	p, err := b.Model.PredictProba(scaled.Values())
	if err != nil {
		return Graduate, 0, err
	}
	return LabelFor(p), p, nil
}

// Registry maps selectors to bundles. It is immutable after construction and
// safe for concurrent use.
type Registry struct {
	bundles map[Selector]*Bundle
	schema  *features.Schema
	policy  UnknownSelectorPolicy
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	policy   UnknownSelectorPolicy
	required []Selector
}

// WithUnknownSelectorPolicy sets the unknown selector policy.
func WithUnknownSelectorPolicy(p UnknownSelectorPolicy) Option {
	return func(o *registryOptions) { o.policy = p }
}

// WithRequired sets the selectors whose artifacts must load. The default is
// every selector.
func WithRequired(sels ...Selector) Option {
	return func(o *registryOptions) { o.required = sels }
}

func buildOptions(opts []Option) registryOptions {
	o := registryOptions{policy: FallbackToBaseline, required: Selectors}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRegistry builds a registry from already loaded bundles. A baseline
// bundle is mandatory since it is the fallback target.
func NewRegistry(schema *features.Schema, bundles []*Bundle, opts ...Option) (*Registry, error) {
	o := buildOptions(opts)

	r := &Registry{
		bundles: make(map[Selector]*Bundle, len(bundles)),
		schema:  schema,
		policy:  o.policy,
	}
	for _, b := range bundles {
		if !b.Schema.Equal(schema) {
			return nil, fmt.Errorf("bundle %q uses a different feature schema", b.Selector)
		}
		if _, dup := r.bundles[b.Selector]; dup {
			return nil, fmt.Errorf("duplicate bundle %q", b.Selector)
		}
		r.bundles[b.Selector] = b
	}
	if _, ok := r.bundles[Baseline]; !ok {
		return nil, &ModelNotLoadedError{Selector: Baseline, Err: errors.New("baseline bundle is required")}
	}
	return r, nil
}

// LoadRegistry reads <dir>/<selector>/model.yaml and scaler.yaml for every
// selector. Missing optional selectors are skipped; a missing or invalid
// required artifact yields *ModelNotLoadedError.
func LoadRegistry(dir string, schema *features.Schema, opts ...Option) (*Registry, error) {
	o := buildOptions(opts)

	required := make(map[Selector]bool, len(o.required))
	for _, s := range o.required {
		required[s] = true
	}
	required[Baseline] = true

	var bundles []*Bundle
	for _, sel := range Selectors {
		b, err := loadBundle(dir, sel, schema)
		if err != nil {
			var nl *ModelNotLoadedError
			if !required[sel] && errors.As(err, &nl) && errors.Is(nl.Err, os.ErrNotExist) {
				logger.Info("optional model not present", "selector", sel, "path", nl.Path)
				continue
			}
			return nil, err
		}
		logger.Info("model loaded",
			"selector", sel,
			"kind", b.Model.Kind(),
			"columns", schema.Len(),
		)
		bundles = append(bundles, b)
	}

	return NewRegistry(schema, bundles, opts...)
}

// LoadArtifacts reads the shared schema from <dir>/feature_columns.yaml and
// then every selector's bundle.
func LoadArtifacts(dir string, opts ...Option) (*Registry, error) {
	path := filepath.Join(dir, SchemaFile)
	schema, err := features.LoadSchema(path)
	if err != nil {
		return nil, &ModelNotLoadedError{Selector: Baseline, Path: path, Err: err}
	}
	return LoadRegistry(dir, schema, opts...)
}

func loadBundle(dir string, sel Selector, schema *features.Schema) (*Bundle, error) {
	modelPath := filepath.Join(dir, string(sel), ModelFile)
	scalerPath := filepath.Join(dir, string(sel), ScalerFile)

	model, meta, err := loadModelFile(modelPath)
	if err != nil {
		return nil, &ModelNotLoadedError{Selector: sel, Path: modelPath, Err: err}
	}
	scaler, err := features.LoadScalerParams(scalerPath)
	if err != nil {
		return nil, &ModelNotLoadedError{Selector: sel, Path: scalerPath, Err: err}
	}
	b, err := NewBundle(sel, model, scaler, schema)
	if err != nil {
		return nil, &ModelNotLoadedError{Selector: sel, Path: filepath.Join(dir, string(sel)), Err: err}
	}
	b.Metadata = meta
	return b, nil
}

// Resolve returns the bundle for a selector, applying the unknown selector
// policy. A known selector whose artifacts are not loaded is treated as
// unknown.
func (r *Registry) Resolve(selector string) (*Bundle, error) {
	if b, ok := r.bundles[Selector(selector)]; ok {
		return b, nil
	}
	if r.policy == RejectUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelector, selector)
	}
	logger.Warn("unknown model selector, using baseline", "selector", selector)
	return r.bundles[Baseline], nil
}

// Predict classifies an already scaled vector with the selected model.
func (r *Registry) Predict(scaled features.Vector, selector string) (Label, float64, error) {
	b, err := r.Resolve(selector)
	if err != nil {
		return Graduate, 0, err
	}
	return b.Predict(scaled)
}

// Selectors returns the loaded selectors in sorted order.
func (r *Registry) Selectors() []string {
	out := make([]string, 0, len(r.bundles))
	for s := range r.bundles {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}

// Schema returns the shared feature schema.
func (r *Registry) Schema() *features.Schema { return r.schema }

// Policy returns the unknown selector policy.
func (r *Registry) Policy() UnknownSelectorPolicy { return r.policy }
