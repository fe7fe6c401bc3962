package models

import (
	"fmt"
	"math"
)

// Label is a predicted or true outcome class.
type Label int

const (
	Graduate Label = 0
	Dropout  Label = 1
)

func (l Label) String() string {
	if l == Dropout {
		return "Dropout"
	}
	return "Graduate"
}

// Threshold is the positive-class probability a prediction must exceed to be
// labelled Dropout. A probability of exactly 0.5 is Graduate.
const Threshold = 0.5

// LabelFor converts a positive-class probability to a label.
func LabelFor(p float64) Label {
	if p > Threshold {
		return Dropout
	}
	return Graduate
}

// Kind names the attribution source a classifier exposes.
type Kind string

const (
	// KindLogistic models attribute through signed linear coefficients.
	KindLogistic Kind = "logistic"
	// KindForest models attribute through non-negative importance weights.
	KindForest Kind = "forest"
)

// Weight is one feature's attribution weight.
type Weight struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"weight"`
}

// Attributor exposes per-feature attribution weights in column order.
type Attributor interface {
	AttributionWeights() []Weight
}

// Classifier is a trained binary classifier over scaled feature vectors.
type Classifier interface {
	Attributor
	Kind() Kind
	// Columns returns the feature names the classifier was trained on.
	Columns() []string
	// PredictProba returns the probability of the Dropout class.
	PredictProba(x []float64) (float64, error)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func checkWidth(x []float64, want int) error {
	if len(x) != want {
		return fmt.Errorf("input has %d features, model expects %d", len(x), want)
	}
	return nil
}

func weightsFor(columns []string, values []float64) []Weight {
	out := make([]Weight, len(columns))
	for i, c := range columns {
		out[i] = Weight{Feature: c, Value: values[i]}
	}
	return out
}
