package features

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxColumns bounds the width of a feature schema.
const MaxColumns = 1000

// Schema is the ordered set of feature columns fixed at training time.
// A Schema is immutable once built and is shared by the aligner, every
// model bundle and the fairness evaluator.
type Schema struct {
	columns     []string
	index       map[string]int
	categories  map[string][]string
	fingerprint string
}

// schemaFile is the on-disk form of a Schema.
type schemaFile struct {
	Columns    []string            `yaml:"columns"`
	Categories map[string][]string `yaml:"categories,omitempty"`
}

// NewSchema validates columns and builds a Schema. categories optionally
// declares the level set of categorical attributes; the first level after
// sorting is the reference level dropped by one-hot encoding.
func NewSchema(columns []string, categories map[string][]string) (*Schema, error) {
	if err := ValidateSchema(columns); err != nil {
		return nil, err
	}

	s := &Schema{
		columns:    append([]string(nil), columns...),
		index:      make(map[string]int, len(columns)),
		categories: make(map[string][]string, len(categories)),
	}
	for i, c := range s.columns {
		s.index[c] = i
	}
	for attr, levels := range categories {
		if len(levels) == 0 {
			return nil, fmt.Errorf("categorical %q declares no levels", attr)
		}
		sorted := append([]string(nil), levels...)
		sort.Strings(sorted)
		s.categories[attr] = sorted
	}

	sum := sha256.Sum256([]byte(strings.Join(s.columns, "\n")))
	s.fingerprint = hex.EncodeToString(sum[:])
	return s, nil
}

// MustSchema is NewSchema for package-level literals and tests.
func MustSchema(columns []string) *Schema {
	s, err := NewSchema(columns, nil)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSchema reads a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", path, err)
	}

	s, err := NewSchema(f.Columns, f.Categories)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", path, err)
	}
	return s, nil
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Columns returns a copy of the ordered column names.
func (s *Schema) Columns() []string { return append([]string(nil), s.columns...) }

// Column returns the name of column i.
func (s *Schema) Column(i int) string { return s.columns[i] }

// Index returns the position of a column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Categories returns the sorted declared levels of a categorical attribute.
func (s *Schema) Categories(attr string) []string { return s.categories[attr] }

// Fingerprint identifies the exact column list, byte for byte.
func (s *Schema) Fingerprint() string { return s.fingerprint }

// Equal reports whether two schemas have identical columns in identical order.
func (s *Schema) Equal(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	return s.fingerprint == other.fingerprint
}

// ValidateSchema checks a column list. Columns must be non-empty, unique,
// free of surrounding whitespace and must not name a protected attribute.
func ValidateSchema(columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("schema cannot be empty, must contain at least one column")
	}

	if len(columns) > MaxColumns {
		return fmt.Errorf("schema contains %d columns, maximum allowed is %d", len(columns), MaxColumns)
	}

	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c == "" {
			return fmt.Errorf("column %d has an empty name", i)
		}
		if strings.TrimSpace(c) != c {
			return fmt.Errorf("column %q has leading/trailing whitespace", c)
		}
		if seen[c] {
			return fmt.Errorf("column %q appears more than once", c)
		}
		if IsProtected(c) {
			return fmt.Errorf("column %q is a protected attribute and cannot be a model feature", c)
		}
		seen[c] = true
	}

	return nil
}
