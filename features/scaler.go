package features

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ScalerParams holds persisted standardization parameters, one (mean, scale)
// pair per schema column. The parameters are immutable after construction.
type ScalerParams struct {
	mean  []float64
	scale []float64
}

// scalerFile is the on-disk form of ScalerParams.
type scalerFile struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

// NewScalerParams validates and copies mean and scale.
func NewScalerParams(mean, scale []float64) (*ScalerParams, error) {
	if len(mean) != len(scale) {
		return nil, &DimensionMismatchError{Got: len(scale), Want: len(mean), What: "scale"}
	}
	for i, s := range scale {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("scale[%d] = %v, must be positive and finite", i, s)
		}
		if math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, fmt.Errorf("mean[%d] = %v, must be finite", i, mean[i])
		}
	}
	return &ScalerParams{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}, nil
}

// LoadScalerParams reads scaler parameters from a YAML file.
func LoadScalerParams(path string) (*ScalerParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scaler: %w", err)
	}

	var f scalerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode scaler %s: %w", path, err)
	}

	p, err := NewScalerParams(f.Mean, f.Scale)
	if err != nil {
		return nil, fmt.Errorf("invalid scaler %s: %w", path, err)
	}
	return p, nil
}

// Len returns the number of columns the parameters cover.
func (p *ScalerParams) Len() int { return len(p.mean) }

// Mean returns a copy of the per-column means.
func (p *ScalerParams) Mean() []float64 { return append([]float64(nil), p.mean...) }

// Scale returns a copy of the per-column scales.
func (p *ScalerParams) Scale() []float64 { return append([]float64(nil), p.scale...) }

// Transform standardizes v as (x - mean) / scale. No fitting happens here.
func (p *ScalerParams) Transform(v Vector) (Vector, error) {
	if v.Len() != p.Len() {
		return Vector{}, &DimensionMismatchError{Got: v.Len(), Want: p.Len(), What: "feature vector"}
	}

	out := make([]float64, v.Len())
	for i, x := range v.values {
		out[i] = (x - p.mean[i]) / p.scale[i]
	}
	return Vector{schema: v.schema, values: out}, nil
}
