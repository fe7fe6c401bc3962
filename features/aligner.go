package features

import (
	"fmt"
	"strings"
)

// Age buckets. The first bucket is the reference level and has no column.
var (
	AgeBuckets          = []string{"18-20", "21-23", "24-26", "27+"}
	ReferenceAgeBucket  = AgeBuckets[0]
	indicatorAgeBuckets = AgeBuckets[1:]
)

// AgeBucket maps an enrollment age to its bucket label.
func AgeBucket(age float64) string {
	switch {
	case age <= 20:
		return "18-20"
	case age <= 23:
		return "21-23"
	case age <= 26:
		return "24-26"
	default:
		return "27+"
	}
}

// AgeBinColumns returns the indicator column names, one per non-reference bucket.
func AgeBinColumns() []string {
	cols := make([]string, len(indicatorAgeBuckets))
	for i, b := range indicatorAgeBuckets {
		cols[i] = AgeBinPrefix + b
	}
	return cols
}

// Vector is a numeric feature vector in schema column order.
type Vector struct {
	schema *Schema
	values []float64
}

// NewVector pairs values with a schema.
func NewVector(schema *Schema, values []float64) (Vector, error) {
	if len(values) != schema.Len() {
		return Vector{}, &DimensionMismatchError{Got: len(values), Want: schema.Len(), What: "feature vector"}
	}
	return Vector{schema: schema, values: append([]float64(nil), values...)}, nil
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.values) }

// Schema returns the schema the vector is laid out against.
func (v Vector) Schema() *Schema { return v.schema }

// At returns feature i.
func (v Vector) At(i int) float64 { return v.values[i] }

// Values returns a copy of the raw values.
func (v Vector) Values() []float64 { return append([]float64(nil), v.values...) }

// Get returns the value of a named column.
func (v Vector) Get(name string) (float64, bool) {
	i, ok := v.schema.Index(name)
	if !ok {
		return 0, false
	}
	return v.values[i], true
}

// Record returns the vector as a named record, so an aligned vector can be
// fed back through Align.
func (v Vector) Record() Record {
	rec := make(Record, len(v.values))
	for i, val := range v.values {
		rec[v.schema.Column(i)] = val
	}
	return rec
}

// Aligner encodes raw records into the vector layout of one schema.
type Aligner struct {
	schema *Schema
}

// NewAligner returns an aligner bound to schema.
func NewAligner(schema *Schema) *Aligner {
	return &Aligner{schema: schema}
}

// Schema returns the schema the aligner encodes against.
func (a *Aligner) Schema() *Schema { return a.schema }

// Align encodes rec: age buckets become indicator columns, protected
// attributes are dropped, categorical values are one-hot encoded without
// their reference level, and the result is reconciled to the schema
// (missing columns zero, unknown columns dropped, schema order).
func (a *Aligner) Align(rec Record) (Vector, error) {
	encoded := make(map[string]float64, len(rec)+len(indicatorAgeBuckets))

	ageValue, hasAge := rec[AgeAttribute]
	switch {
	case hasAge:
		age, ok := toFloat(ageValue)
		if !ok {
			return Vector{}, &SchemaError{Attribute: AgeAttribute, Reason: fmt.Sprintf("must be numeric, got %T", ageValue)}
		}
		bucket := AgeBucket(age)
		for _, b := range indicatorAgeBuckets {
			if bucket == b {
				encoded[AgeBinPrefix+b] = 1
			} else {
				encoded[AgeBinPrefix+b] = 0
			}
		}
	case !hasAgeBins(rec):
		return Vector{}, &SchemaError{Attribute: AgeAttribute, Reason: "is missing"}
	}

	for name, value := range rec {
		if IsProtected(name) || value == nil {
			continue
		}
		if hasAge && isAgeBin(name) {
			continue
		}

		if f, ok := toFloat(value); ok {
			encoded[name] = f
			continue
		}

		level, ok := value.(string)
		if !ok {
			return Vector{}, &SchemaError{Attribute: name, Reason: fmt.Sprintf("has unsupported type %T", value)}
		}
		if level != a.referenceLevel(name, level) {
			encoded[name+"_"+level] = 1
		}
	}

	values := make([]float64, a.schema.Len())
	for i := range values {
		values[i] = encoded[a.schema.Column(i)]
	}
	return Vector{schema: a.schema, values: values}, nil
}

// referenceLevel returns the dropped level of a categorical attribute. An
// attribute without declared levels has only the observed one, which is
// therefore its own reference.
func (a *Aligner) referenceLevel(attr, observed string) string {
	if levels := a.schema.Categories(attr); len(levels) > 0 {
		return levels[0]
	}
	return observed
}

func hasAgeBins(rec Record) bool {
	for _, col := range AgeBinColumns() {
		if _, ok := rec[col]; !ok {
			return false
		}
	}
	return true
}

func isAgeBin(name string) bool {
	return strings.HasPrefix(name, AgeBinPrefix)
}
