package fairness

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

// TargetColumn is the label column of a reference dataset.
const TargetColumn = "Target"

// ErrMetricsDataUnavailable is returned when no labeled dataset is loaded.
var ErrMetricsDataUnavailable = errors.New("no metrics data available")

// Example is one labeled raw record. The record keeps its protected
// attributes so they can be used for grouping.
type Example struct {
	Record features.Record
	Target models.Label
}

// Dataset is a labeled reference dataset. It is read-only once built.
type Dataset struct {
	examples []Example
}

// NewDataset copies examples into a Dataset.
func NewDataset(examples []Example) *Dataset {
	return &Dataset{examples: append([]Example(nil), examples...)}
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.examples)
}

// Examples returns the examples. Callers must not modify them.
func (d *Dataset) Examples() []Example { return d.examples }

// Source supplies the current reference dataset.
type Source interface {
	Dataset(ctx context.Context) (*Dataset, error)
}

// StaticSource serves a dataset loaded once at startup. A nil dataset means
// no metrics data is available.
type StaticSource struct {
	ds *Dataset
}

func NewStaticSource(ds *Dataset) *StaticSource { return &StaticSource{ds: ds} }

func (s *StaticSource) Dataset(ctx context.Context) (*Dataset, error) {
	if s == nil || s.ds.Len() == 0 {
		return nil, ErrMetricsDataUnavailable
	}
	return s.ds, nil
}

// ParseTarget accepts "Dropout"/"Graduate" or 1/0.
func ParseTarget(s string) (models.Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "dropout":
		return models.Dropout, nil
	case "0", "0.0", "graduate":
		return models.Graduate, nil
	default:
		return models.Graduate, fmt.Errorf("invalid target %q", s)
	}
}

// RecordError is a reference dataset row that could not be scored. The
// dataset is server data, so this is never the caller's fault.
type RecordError struct {
	Row int
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("reference record %d: %v", e.Row, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// ReadCSV parses a header-first CSV file with one column per raw attribute
// plus the Target column. Empty cells are treated as missing and rows with no
// Target are skipped. Every row must be a valid student record, as accepted
// by features.ParseStudentRecord; protected attributes are kept.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	target := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == TargetColumn {
			target = i
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("dataset has no %s column", TargetColumn)
	}

	var examples []Example
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if strings.TrimSpace(row[target]) == "" {
			continue
		}
		label, err := ParseTarget(row[target])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		raw := make(map[string]any, len(header)-1)
		for i, cell := range row {
			if i == target || strings.TrimSpace(cell) == "" {
				continue
			}
			raw[header[i]] = features.ParseCell(cell)
		}
		rec, err := features.ParseStudentRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		examples = append(examples, Example{Record: rec, Target: label})
	}

	return &Dataset{examples: examples}, nil
}

// LoadCSV reads a dataset file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", path, err)
	}
	return ds, nil
}
