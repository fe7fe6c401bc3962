package students

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/studentrisk/features"
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(20, 7)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	b, err := Generate(20, 7)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("Generate() with the same seed differs (-first +second):\n%s", diff)
	}
}

func TestGenerateRecords(t *testing.T) {
	generated, err := Generate(DefaultGenerateCount, 42)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(generated) != DefaultGenerateCount {
		t.Fatalf("Generate() returned %d students", len(generated))
	}

	seen := make(map[string]bool)
	dropouts := 0
	for _, st := range generated {
		if seen[st.RollNo] {
			t.Fatalf("duplicate roll number %s", st.RollNo)
		}
		seen[st.RollNo] = true

		if err := ValidateRollNo(st.RollNo); err != nil || len(st.RollNo) != 6 {
			t.Errorf("roll number %q is not six digits", st.RollNo)
		}

		if _, err := features.ParseStudentRecord(st.Record()); err != nil {
			t.Fatalf("generated record for %s is invalid: %v", st.RollNo, err)
		}

		age := st.Attributes[features.AgeAttribute].(float64)
		if age < 18 || age >= 30 {
			t.Errorf("age %v out of range", age)
		}
		for _, col := range []string{"Curricular units 1st sem (grade)", "Curricular units 2nd sem (grade)"} {
			g := st.Attributes[col].(float64)
			if g < 10 || g > 20 {
				t.Errorf("%s = %v, want within [10, 20]", col, g)
			}
		}
		if st.Attributes["Debtor"] == 0.0 && st.Attributes["Tuition fees up to date"] != 1.0 {
			t.Errorf("non-debtor %s is behind on tuition", st.RollNo)
		}

		if !st.Labeled() {
			t.Fatalf("student %s has no target", st.RollNo)
		}
		if *st.Target == 1 {
			dropouts++
		}
	}

	if dropouts == 0 || dropouts == len(generated) {
		t.Errorf("expected both outcomes, got %d dropouts of %d", dropouts, len(generated))
	}
}

// TestGenerateCountBounds verifies counts with no unique roll numbers left
// are rejected instead of looping
func TestGenerateCountBounds(t *testing.T) {
	for _, n := range []int{0, -1, MaxGenerateCount + 1} {
		if _, err := Generate(n, 1); err == nil {
			t.Errorf("Generate(%d) should fail", n)
		}
	}
}
