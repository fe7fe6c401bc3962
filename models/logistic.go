package models

import (
	"fmt"
	"math"
)

// Logistic is a binary logistic regression model.
type Logistic struct {
	columns      []string
	coefficients []float64
	intercept    float64
}

// NewLogistic builds a logistic model from trained parameters.
func NewLogistic(columns []string, coefficients []float64, intercept float64) (*Logistic, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("logistic model has no columns")
	}
	if len(coefficients) != len(columns) {
		return nil, fmt.Errorf("logistic model has %d coefficients for %d columns", len(coefficients), len(columns))
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d (%s) is not finite", i, columns[i])
		}
	}
	if math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return nil, fmt.Errorf("intercept is not finite")
	}

	return &Logistic{
		columns:      append([]string(nil), columns...),
		coefficients: append([]float64(nil), coefficients...),
		intercept:    intercept,
	}, nil
}

func (m *Logistic) Kind() Kind { return KindLogistic }

func (m *Logistic) Columns() []string { return append([]string(nil), m.columns...) }

// Intercept returns the bias term.
func (m *Logistic) Intercept() float64 { return m.intercept }

// PredictProba returns sigmoid(w·x + b).
func (m *Logistic) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(x, len(m.coefficients)); err != nil {
		return 0, err
	}
	sum := m.intercept
	for j, v := range x {
		sum += m.coefficients[j] * v
	}
	return sigmoid(sum), nil
}

// AttributionWeights returns the signed coefficients.
func (m *Logistic) AttributionWeights() []Weight {
	return weightsFor(m.columns, m.coefficients)
}
