package features

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Record is a raw named-attribute student record. Values are float64 for
// numeric attributes and string for categorical ones.
type Record map[string]any

// Attribute names that the aligner treats specially.
const (
	AgeAttribute    = "Age at enrollment"
	RollNoAttribute = "Roll_No"
	AgeBinPrefix    = "AgeBin_"
)

// Attribute describes one field of the fixed student record.
type Attribute struct {
	Name      string
	Protected bool
	// Rule is a validator tag applied to the numeric value. Empty means any number.
	Rule string
}

// Attributes is the enumerated field set accepted at the boundary.
var Attributes = []Attribute{
	{Name: "Marital Status", Rule: "gte=0"},
	{Name: "Application mode", Rule: "gte=0"},
	{Name: "Application order", Rule: "gte=0"},
	{Name: "Course", Rule: "gte=0"},
	{Name: "Daytime/evening attendance", Rule: "min=0,max=1"},
	{Name: "Previous qualification", Rule: "gte=0"},
	{Name: "Previous qualification (grade)", Rule: "gte=0,lte=200"},
	{Name: "Nacionality", Protected: true},
	{Name: "Mother's qualification", Protected: true},
	{Name: "Father's qualification", Protected: true},
	{Name: "Mother's occupation", Protected: true},
	{Name: "Father's occupation", Protected: true},
	{Name: "Admission grade", Rule: "gte=0,lte=200"},
	{Name: "Displaced", Rule: "min=0,max=1"},
	{Name: "Educational special needs", Protected: true},
	{Name: "Debtor", Rule: "min=0,max=1"},
	{Name: "Tuition fees up to date", Protected: true},
	{Name: "Gender", Protected: true},
	{Name: "Scholarship holder", Rule: "min=0,max=1"},
	{Name: AgeAttribute, Protected: true, Rule: "gte=0,lte=120"},
	{Name: "International", Rule: "min=0,max=1"},
	{Name: "Curricular units 1st sem (credited)", Rule: "gte=0"},
	{Name: "Curricular units 1st sem (enrolled)", Rule: "gte=0"},
	{Name: "Curricular units 1st sem (evaluations)", Rule: "gte=0"},
	{Name: "Curricular units 1st sem (approved)", Rule: "gte=0"},
	{Name: "Curricular units 1st sem (grade)", Rule: "gte=0,lte=20"},
	{Name: "Curricular units 1st sem (without evaluations)", Rule: "gte=0"},
	{Name: "Curricular units 2nd sem (credited)", Rule: "gte=0"},
	{Name: "Curricular units 2nd sem (enrolled)", Rule: "gte=0"},
	{Name: "Curricular units 2nd sem (evaluations)", Rule: "gte=0"},
	{Name: "Curricular units 2nd sem (approved)", Rule: "gte=0"},
	{Name: "Curricular units 2nd sem (grade)", Rule: "gte=0,lte=20"},
	{Name: "Curricular units 2nd sem (without evaluations)", Rule: "gte=0"},
	{Name: "Unemployment rate", Rule: "gte=0"},
	{Name: "Inflation rate"},
	{Name: "GDP"},
	{Name: RollNoAttribute, Protected: true},
}

// ModelColumns is the column order the shipped models were trained on.
var ModelColumns = []string{
	"Marital Status", "Application mode", "Application order", "Course",
	"Daytime/evening attendance", "Previous qualification",
	"Previous qualification (grade)", "Admission grade", "Displaced",
	"Debtor", "Scholarship holder", "International",
	"Curricular units 1st sem (credited)",
	"Curricular units 1st sem (enrolled)",
	"Curricular units 1st sem (evaluations)",
	"Curricular units 1st sem (approved)",
	"Curricular units 1st sem (grade)",
	"Curricular units 1st sem (without evaluations)",
	"Curricular units 2nd sem (credited)",
	"Curricular units 2nd sem (enrolled)",
	"Curricular units 2nd sem (evaluations)",
	"Curricular units 2nd sem (approved)",
	"Curricular units 2nd sem (grade)",
	"Curricular units 2nd sem (without evaluations)",
	"Unemployment rate", "Inflation rate", "GDP",
	"AgeBin_21-23", "AgeBin_24-26", "AgeBin_27+",
}

var (
	attributeIndex = make(map[string]Attribute, len(Attributes))

	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	for _, a := range Attributes {
		attributeIndex[a.Name] = a
	}

	validate = validator.New()
	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
}

// IsProtected reports whether name is a protected or identifier attribute.
func IsProtected(name string) bool {
	return attributeIndex[name].Protected
}

// ProtectedAttributes returns the protected attribute names in sorted order.
func ProtectedAttributes() []string {
	var out []string
	for _, a := range Attributes {
		if a.Protected {
			out = append(out, a.Name)
		}
	}
	sort.Strings(out)
	return out
}

// ParseStudentRecord validates a loosely-typed attribute map into a Record.
// Unknown attribute names, non-numeric values and out-of-range values are
// rejected with a *SchemaError. The enrollment age is required; other
// attributes may be omitted and are zero-filled by the aligner.
func ParseStudentRecord(raw map[string]any) (Record, error) {
	if len(raw) == 0 {
		return nil, &SchemaError{Reason: "record is empty"}
	}

	rec := make(Record, len(raw))
	for name, value := range raw {
		attr, known := attributeIndex[name]
		if !known {
			return nil, &SchemaError{Attribute: name, Reason: "is not a recognised student attribute"}
		}

		if name == RollNoAttribute {
			rec[name] = value
			continue
		}

		if value == nil {
			continue
		}

		f, ok := toFloat(value)
		if !ok {
			return nil, &SchemaError{Attribute: name, Reason: fmt.Sprintf("must be numeric, got %T", value)}
		}

		if attr.Rule != "" {
			if err := validate.Var(f, attr.Rule); err != nil {
				return nil, &SchemaError{Attribute: name, Reason: translateValidation(err)}
			}
		}

		rec[name] = f
	}

	if _, ok := rec[AgeAttribute]; !ok {
		return nil, &SchemaError{Attribute: AgeAttribute, Reason: "is required"}
	}

	return rec, nil
}

func translateValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, strings.TrimSpace(fe.Translate(translator)))
	}
	return strings.Join(msgs, "; ")
}

// toFloat converts the numeric representations produced by JSON, YAML and
// CSV decoding. Strings are not numbers here: they are categorical levels.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// ParseCell converts a CSV cell into a record value: a float when the cell
// parses as a number, the trimmed string otherwise, nil when empty.
func ParseCell(cell string) any {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}
