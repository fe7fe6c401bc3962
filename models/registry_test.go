package models

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/liamcoop/studentrisk/features"
)

const testArtifacts = "testdata/artifacts"

func loadTestSchema(t *testing.T) *features.Schema {
	t.Helper()
	schema, err := features.LoadSchema(filepath.Join(testArtifacts, "feature_columns.yaml"))
	if err != nil {
		t.Fatalf("LoadSchema() failed: %v", err)
	}
	return schema
}

func scaledVector(t *testing.T, schema *features.Schema, values ...float64) features.Vector {
	t.Helper()
	v, err := features.NewVector(schema, values)
	if err != nil {
		t.Fatalf("NewVector() failed: %v", err)
	}
	return v
}

// TestLoadRegistry verifies both selectors load from artifacts on disk
func TestLoadRegistry(t *testing.T) {
	schema := loadTestSchema(t)

	reg, err := LoadRegistry(testArtifacts, schema)
	if err != nil {
		t.Fatalf("LoadRegistry() failed: %v", err)
	}

	if diff := cmp.Diff([]string{"baseline", "mitigated"}, reg.Selectors()); diff != "" {
		t.Errorf("Selectors() mismatch (-want +got):\n%s", diff)
	}

	base, err := reg.Resolve("baseline")
	if err != nil {
		t.Fatalf("Resolve(baseline) failed: %v", err)
	}
	if base.Model.Kind() != KindLogistic {
		t.Errorf("baseline kind = %s, want logistic", base.Model.Kind())
	}

	mit, err := reg.Resolve("mitigated")
	if err != nil {
		t.Fatalf("Resolve(mitigated) failed: %v", err)
	}
	if mit.Model.Kind() != KindForest {
		t.Errorf("mitigated kind = %s, want forest", mit.Model.Kind())
	}
	if !mit.Schema.Equal(reg.Schema()) {
		t.Error("bundle schema should be the shared schema")
	}

	if base.Metadata.Accuracy == nil || *base.Metadata.Accuracy != 0.87 {
		t.Errorf("baseline accuracy = %v, want 0.87", base.Metadata.Accuracy)
	}
	if mit.Metadata.Accuracy != nil {
		t.Errorf("mitigated accuracy = %v, want none recorded", *mit.Metadata.Accuracy)
	}
}

func TestRegistryPredict(t *testing.T) {
	schema := loadTestSchema(t)
	reg, err := LoadRegistry(testArtifacts, schema)
	if err != nil {
		t.Fatalf("LoadRegistry() failed: %v", err)
	}

	label, p, err := reg.Predict(scaledVector(t, schema, 0, 0, 0), "baseline")
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}
	if label != Graduate || p >= 0.5 {
		t.Errorf("baseline at the mean = (%v, %v), want Graduate below 0.5", label, p)
	}

	label, p, err = reg.Predict(scaledVector(t, schema, -1, 1, 0), "mitigated")
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}
	if label != Dropout || math.Abs(p-0.85) > 1e-12 {
		t.Errorf("mitigated = (%v, %v), want (Dropout, 0.85)", label, p)
	}

	short := scaledVector(t, features.MustSchema([]string{"a", "b"}), 0, 0)
	_, _, err = reg.Predict(short, "baseline")
	var dimErr *features.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Errorf("expected *DimensionMismatchError, got %v", err)
	}
}

func TestResolveUnknownSelector(t *testing.T) {
	schema := loadTestSchema(t)

	t.Run("fallback", func(t *testing.T) {
		reg, err := LoadRegistry(testArtifacts, schema)
		if err != nil {
			t.Fatalf("LoadRegistry() failed: %v", err)
		}
		b, err := reg.Resolve("champion")
		if err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
		if b.Selector != Baseline {
			t.Errorf("fallback selector = %s, want baseline", b.Selector)
		}
	})

	t.Run("reject", func(t *testing.T) {
		reg, err := LoadRegistry(testArtifacts, schema, WithUnknownSelectorPolicy(RejectUnknown))
		if err != nil {
			t.Fatalf("LoadRegistry() failed: %v", err)
		}
		if _, err := reg.Resolve("champion"); !errors.Is(err, ErrUnknownSelector) {
			t.Errorf("expected ErrUnknownSelector, got %v", err)
		}
		if _, err := reg.Resolve("mitigated"); err != nil {
			t.Errorf("known selector should resolve: %v", err)
		}
	})
}

func TestParseUnknownSelectorPolicy(t *testing.T) {
	testCases := []struct {
		in      string
		want    UnknownSelectorPolicy
		wantErr bool
	}{
		{"", FallbackToBaseline, false},
		{"fallback", FallbackToBaseline, false},
		{"REJECT", RejectUnknown, false},
		{"panic", FallbackToBaseline, true},
	}

	for _, tc := range testCases {
		got, err := ParseUnknownSelectorPolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseUnknownSelectorPolicy(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseUnknownSelectorPolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func copyArtifact(t *testing.T, dst, sel, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testArtifacts, sel, name))
	if err != nil {
		t.Fatalf("read %s/%s: %v", sel, name, err)
	}
	if err := os.MkdirAll(filepath.Join(dst, sel), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dst, sel, name), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// TestLoadRegistryMissingArtifact verifies a missing required artifact is fatal
func TestLoadRegistryMissingArtifact(t *testing.T) {
	schema := loadTestSchema(t)
	dir := t.TempDir()
	copyArtifact(t, dir, "baseline", ModelFile)
	copyArtifact(t, dir, "baseline", ScalerFile)
	copyArtifact(t, dir, "mitigated", ModelFile)

	_, err := LoadRegistry(dir, schema)
	var nl *ModelNotLoadedError
	if !errors.As(err, &nl) {
		t.Fatalf("expected *ModelNotLoadedError, got %v", err)
	}
	if nl.Selector != Mitigated || filepath.Base(nl.Path) != ScalerFile {
		t.Errorf("error names %s %s", nl.Selector, nl.Path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap os.ErrNotExist: %v", err)
	}
}

func TestLoadRegistryOptionalSelector(t *testing.T) {
	schema := loadTestSchema(t)
	dir := t.TempDir()
	copyArtifact(t, dir, "baseline", ModelFile)
	copyArtifact(t, dir, "baseline", ScalerFile)

	reg, err := LoadRegistry(dir, schema, WithRequired(Baseline))
	if err != nil {
		t.Fatalf("LoadRegistry() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"baseline"}, reg.Selectors()); diff != "" {
		t.Errorf("Selectors() mismatch (-want +got):\n%s", diff)
	}

	// Baseline is required even when the caller leaves it out.
	if _, err := LoadRegistry(t.TempDir(), schema, WithRequired()); err == nil {
		t.Error("expected error when baseline is absent")
	}
}

func TestLoadRegistrySchemaDrift(t *testing.T) {
	drifted := features.MustSchema([]string{"Debtor", "Curricular units 1st sem (grade)", "Scholarship holder"})

	_, err := LoadRegistry(testArtifacts, drifted)
	var nl *ModelNotLoadedError
	if !errors.As(err, &nl) {
		t.Fatalf("expected *ModelNotLoadedError for reordered columns, got %v", err)
	}
}

// TestLoadArtifacts verifies the schema is read from the artifacts directory
func TestLoadArtifacts(t *testing.T) {
	reg, err := LoadArtifacts(testArtifacts)
	if err != nil {
		t.Fatalf("LoadArtifacts() failed: %v", err)
	}
	if reg.Schema().Len() != 3 {
		t.Errorf("schema has %d columns, want 3", reg.Schema().Len())
	}

	_, err = LoadArtifacts(t.TempDir())
	var nl *ModelNotLoadedError
	if !errors.As(err, &nl) {
		t.Fatalf("expected *ModelNotLoadedError, got %v", err)
	}
	if filepath.Base(nl.Path) != SchemaFile {
		t.Errorf("error path = %s, want the schema file", nl.Path)
	}
}
