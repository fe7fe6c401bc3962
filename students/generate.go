package students

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

const (
	// DefaultGenerateCount is the size of a seeded synthetic dataset.
	DefaultGenerateCount = 100

	// MaxGenerateCount is the number of distinct six digit roll numbers.
	MaxGenerateCount = 900000
)

// Generate returns n synthetic students with unique six digit roll numbers.
// Admission grade follows the previous qualification grade, semester grades
// follow admission grade and tuition status is only ever behind for
// debtors. Every student is labeled; the outcome is drawn from a risk score
// driven by grades, debt, tuition status and scholarship. n must be between
// 1 and MaxGenerateCount.
func Generate(n int, seed int64) ([]*Student, error) {
	if n <= 0 || n > MaxGenerateCount {
		return nil, fmt.Errorf("cannot generate %d students: count must be between 1 and %d", n, MaxGenerateCount)
	}

	rng := rand.New(rand.NewSource(seed))
	intn := func(lo, hi int) float64 { return float64(lo + rng.Intn(hi-lo)) }
	uniform := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	seen := make(map[string]bool, n)
	out := make([]*Student, 0, n)
	for len(out) < n {
		rollNo := strconv.Itoa(100000 + rng.Intn(900000))
		if seen[rollNo] {
			continue
		}
		seen[rollNo] = true

		prevGrade := round(uniform(100, 180), 1)
		admission := round(prevGrade*0.7+uniform(20, 60), 1)
		debtor := intn(0, 2)
		tuition := 1.0
		if debtor == 1 {
			tuition = intn(0, 2)
		}
		scholarship := intn(0, 2)
		grade1 := round(clamp(admission/10+rng.NormFloat64()*1.5, 10, 20), 3)
		grade2 := round(clamp(admission/10+rng.NormFloat64()*1.5, 10, 20), 3)

		attrs := features.Record{
			"Marital Status":                                 intn(0, 2),
			"Application mode":                               intn(0, 2),
			"Application order":                              intn(1, 20),
			"Course":                                         intn(9000, 10000),
			"Daytime/evening attendance":                     intn(0, 2),
			"Previous qualification":                         intn(0, 2),
			"Previous qualification (grade)":                 prevGrade,
			"Nacionality":                                    intn(0, 2),
			"Mother's qualification":                         intn(0, 5),
			"Father's qualification":                         intn(0, 5),
			"Mother's occupation":                            intn(0, 5),
			"Father's occupation":                            intn(0, 5),
			"Admission grade":                                admission,
			"Displaced":                                      intn(0, 2),
			"Educational special needs":                      intn(0, 2),
			"Debtor":                                         debtor,
			"Tuition fees up to date":                        tuition,
			"Gender":                                         intn(0, 2),
			"Scholarship holder":                             scholarship,
			features.AgeAttribute:                            intn(18, 30),
			"International":                                  intn(0, 2),
			"Curricular units 1st sem (credited)":            intn(1, 8),
			"Curricular units 1st sem (enrolled)":            intn(1, 8),
			"Curricular units 1st sem (evaluations)":         intn(1, 8),
			"Curricular units 1st sem (approved)":            intn(1, 8),
			"Curricular units 1st sem (grade)":               grade1,
			"Curricular units 1st sem (without evaluations)": intn(0, 3),
			"Curricular units 2nd sem (credited)":            intn(1, 8),
			"Curricular units 2nd sem (enrolled)":            intn(1, 8),
			"Curricular units 2nd sem (evaluations)":         intn(1, 8),
			"Curricular units 2nd sem (approved)":            intn(1, 8),
			"Curricular units 2nd sem (grade)":               grade2,
			"Curricular units 2nd sem (without evaluations)": intn(0, 3),
			"Unemployment rate":                              round(uniform(5, 15), 2),
			"Inflation rate":                                 round(uniform(0, 10), 2),
			"GDP":                                            round(uniform(1, 5), 2),
		}

		z := 0.6*(13.5-(grade1+grade2)/2) + 1.2*debtor + 1.5*(1-tuition) - 0.8*scholarship
		target := models.Graduate
		if rng.Float64() < 1/(1+math.Exp(-z)) {
			target = models.Dropout
		}

		out = append(out, &Student{RollNo: rollNo, Attributes: attrs, Target: labelPtr(target)})
	}
	return out, nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
