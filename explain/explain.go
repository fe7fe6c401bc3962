// Package explain ranks per-feature attributions for a single prediction and
// for a model as a whole.
package explain

import (
	"fmt"
	"math"
	"sort"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

// DefaultTopN is the number of attributions returned when topN <= 0.
const DefaultTopN = 6

// StrongThreshold separates "strongly" from "slightly". It is fixed, not
// learned.
const StrongThreshold = 0.5

type Direction string

const (
	Increased Direction = "increased"
	Decreased Direction = "decreased"
)

type Strength string

const (
	Strongly Strength = "strongly"
	Slightly Strength = "slightly"
)

// Attribution is one ranked feature effect on the Dropout likelihood.
type Attribution struct {
	Feature      string    `json:"feature"`
	Direction    Direction `json:"direction"`
	Strength     Strength  `json:"strength"`
	Contribution float64   `json:"contribution"`
}

func (a Attribution) String() string {
	return fmt.Sprintf("%s %s %s the likelihood of dropout.", a.Feature, a.Strength, a.Direction)
}

// Explanation is an ordered attribution list for one prediction.
type Explanation struct {
	Label        models.Label  `json:"-"`
	Attributions []Attribution `json:"attributions"`
}

// Strings renders every attribution as a sentence.
func (e Explanation) Strings() []string {
	out := make([]string, len(e.Attributions))
	for i, a := range e.Attributions {
		out[i] = a.String()
	}
	return out
}

// Explain attributes a prediction to its top features. Contribution is the
// attribution weight times the scaled value; ranking is a stable sort on
// descending |contribution| so ties keep schema order.
func Explain(b *models.Bundle, scaled features.Vector, label models.Label, topN int) (Explanation, error) {
	weights := b.Model.AttributionWeights()
	if len(weights) != scaled.Len() {
		return Explanation{}, &features.DimensionMismatchError{Got: scaled.Len(), Want: len(weights), What: "scaled vector"}
	}

	attrs := make([]Attribution, len(weights))
	for i, w := range weights {
		c := w.Value * scaled.At(i)
		attrs[i] = Attribution{
			Feature:      w.Feature,
			Direction:    directionOf(c),
			Strength:     strengthOf(c),
			Contribution: c,
		}
	}

	sort.SliceStable(attrs, func(i, j int) bool {
		return math.Abs(attrs[i].Contribution) > math.Abs(attrs[j].Contribution)
	})

	return Explanation{Label: label, Attributions: attrs[:limit(topN, len(attrs))]}, nil
}

// Summarize ranks the model's attribution weights by magnitude alone,
// independent of any instance.
func Summarize(b *models.Bundle, topN int) []models.Weight {
	weights := b.Model.AttributionWeights()
	sort.SliceStable(weights, func(i, j int) bool {
		return math.Abs(weights[i].Value) > math.Abs(weights[j].Value)
	})
	return weights[:limit(topN, len(weights))]
}

func directionOf(c float64) Direction {
	if c > 0 {
		return Increased
	}
	return Decreased
}

func strengthOf(c float64) Strength {
	if math.Abs(c) > StrongThreshold {
		return Strongly
	}
	return Slightly
}

func limit(topN, n int) int {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if topN > n {
		return n
	}
	return topN
}
