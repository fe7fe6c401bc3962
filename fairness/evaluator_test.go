package fairness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// signalModel predicts Dropout exactly when the signal column is positive.
type signalModel struct {
	columns []string
}

func (m signalModel) Kind() models.Kind { return models.KindLogistic }

func (m signalModel) Columns() []string { return m.columns }

func (m signalModel) AttributionWeights() []models.Weight {
	return []models.Weight{{Feature: m.columns[0], Value: 1}}
}

func (m signalModel) PredictProba(x []float64) (float64, error) {
	if x[0] > 0 {
		return 0.9, nil
	}
	return 0.1, nil
}

func signalBundle(t *testing.T) (*features.Aligner, *models.Bundle) {
	t.Helper()

	schema := features.MustSchema([]string{"signal"})
	scaler, err := features.NewScalerParams([]float64{0}, []float64{1})
	require.NoError(t, err)
	b, err := models.NewBundle(models.Baseline, signalModel{columns: schema.Columns()}, scaler, schema)
	require.NoError(t, err)
	return features.NewAligner(schema), b
}

type builder struct {
	examples []Example
}

func (bl *builder) add(n int, gender any, age, signal float64, target models.Label) {
	for i := 0; i < n; i++ {
		rec := features.Record{
			features.AgeAttribute: age,
			"signal":              signal,
		}
		if gender != nil {
			rec["Gender"] = gender
		}
		bl.examples = append(bl.examples, Example{Record: rec, Target: target})
	}
}

// twoGroupDataset has group 0 at selection rate 0.8 / recall 0.9 and group 1
// at selection rate 0.5 / recall 0.7.
func twoGroupDataset() *Dataset {
	var bl builder
	bl.add(9, 0.0, 19, 1, models.Dropout)
	bl.add(1, 0.0, 19, 0, models.Dropout)
	bl.add(7, 0.0, 19, 1, models.Graduate)
	bl.add(3, 0.0, 19, 0, models.Graduate)

	bl.add(7, 1.0, 25, 1, models.Dropout)
	bl.add(3, 1.0, 25, 0, models.Dropout)
	bl.add(3, 1.0, 25, 1, models.Graduate)
	bl.add(7, 1.0, 25, 0, models.Graduate)
	return NewDataset(bl.examples)
}

// TestEvaluateDisparities verifies SPD = 0.3 and EOD = 0.2 for two groups
func TestEvaluateDisparities(t *testing.T) {
	aligner, b := signalBundle(t)
	ev := NewEvaluator(aligner)

	report, err := ev.Evaluate(context.Background(), twoGroupDataset(), b, ByAttribute("Gender"))
	require.NoError(t, err)

	require.Len(t, report.GroupMetrics, 2)
	assert.Equal(t, "0", report.GroupMetrics[0].Group)
	assert.Equal(t, 20, report.GroupMetrics[0].Size)
	assert.InDelta(t, 0.8, report.GroupMetrics[0].SelectionRate, 1e-9)
	assert.InDelta(t, 0.9, report.GroupMetrics[0].Recall, 1e-9)
	assert.Equal(t, "1", report.GroupMetrics[1].Group)
	assert.InDelta(t, 0.5, report.GroupMetrics[1].SelectionRate, 1e-9)
	assert.InDelta(t, 0.7, report.GroupMetrics[1].Recall, 1e-9)

	require.NotNil(t, report.SPD)
	require.NotNil(t, report.EOD)
	assert.InDelta(t, 0.3, *report.SPD, 1e-9)
	assert.InDelta(t, 0.2, *report.EOD, 1e-9)

	assert.Equal(t, [2][2]int{{10, 10}, {4, 16}}, report.ConfusionMatrix)
	assert.InDelta(t, 0.65, report.Overall.Accuracy, 1e-9)
	assert.InDelta(t, 16.0/26.0, report.Overall.Precision, 1e-9)
	assert.InDelta(t, 0.8, report.Overall.Recall, 1e-9)
	assert.Equal(t, "baseline", report.Model)
	assert.Equal(t, 40, report.Size)
}

func TestEvaluateWithoutGrouping(t *testing.T) {
	aligner, b := signalBundle(t)

	report, err := NewEvaluator(aligner).Evaluate(context.Background(), twoGroupDataset(), b, nil)
	require.NoError(t, err)

	assert.Empty(t, report.GroupMetrics)
	assert.NotNil(t, report.GroupMetrics, "group_metrics should encode as an empty list")
	assert.Nil(t, report.SPD)
	assert.Nil(t, report.EOD)
}

func TestEvaluateExpressionGrouping(t *testing.T) {
	aligner, b := signalBundle(t)
	grouping, err := CompileExpression(`record["Age at enrollment"] > 23 ? "mature" : "young"`)
	require.NoError(t, err)

	report, err := NewEvaluator(aligner).Evaluate(context.Background(), twoGroupDataset(), b, grouping)
	require.NoError(t, err)

	require.Len(t, report.GroupMetrics, 2)
	assert.Equal(t, "mature", report.GroupMetrics[0].Group)
	assert.InDelta(t, 0.5, report.GroupMetrics[0].SelectionRate, 1e-9)
	assert.Equal(t, "young", report.GroupMetrics[1].Group)
	assert.InDelta(t, 0.3, *report.SPD, 1e-9)
}

// TestEvaluateMissingGroupValue verifies ungrouped rows count only overall
func TestEvaluateMissingGroupValue(t *testing.T) {
	aligner, b := signalBundle(t)

	var bl builder
	bl.add(2, "F", 20, 1, models.Dropout)
	bl.add(3, nil, 20, 0, models.Graduate)

	report, err := NewEvaluator(aligner).Evaluate(context.Background(), NewDataset(bl.examples), b, ByAttribute("Gender"))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Size)
	require.Len(t, report.GroupMetrics, 1)
	assert.Equal(t, 2, report.GroupMetrics[0].Size)
	assert.Equal(t, 0.0, *report.SPD)
	assert.Equal(t, 0.0, *report.EOD)
}

func TestEvaluateNoData(t *testing.T) {
	aligner, b := signalBundle(t)

	_, err := NewEvaluator(aligner).Evaluate(context.Background(), nil, b, nil)
	assert.ErrorIs(t, err, ErrMetricsDataUnavailable)

	_, err = NewEvaluator(aligner).Evaluate(context.Background(), NewDataset(nil), b, nil)
	assert.ErrorIs(t, err, ErrMetricsDataUnavailable)
}

func TestEvaluateSchemaMismatch(t *testing.T) {
	_, b := signalBundle(t)
	other := features.NewAligner(features.MustSchema([]string{"other"}))

	_, err := NewEvaluator(other).Evaluate(context.Background(), twoGroupDataset(), b, nil)
	assert.Error(t, err)
}

// TestEvaluateRecordError verifies a reference row that cannot be scored is
// reported as a RecordError rather than a bare schema error
func TestEvaluateRecordError(t *testing.T) {
	aligner, b := signalBundle(t)
	ds := NewDataset([]Example{
		{Record: features.Record{features.AgeAttribute: 20.0, "signal": 1.0}, Target: models.Dropout},
		{Record: features.Record{"signal": 1.0}, Target: models.Dropout},
	})

	_, err := NewEvaluator(aligner).Evaluate(context.Background(), ds, b, nil)
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 1, recErr.Row)

	var schemaErr *features.SchemaError
	assert.True(t, errors.As(err, &schemaErr), "RecordError should unwrap to the cause, got %v", err)
}

func TestEvaluateCancelled(t *testing.T) {
	aligner, b := signalBundle(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEvaluator(aligner).Evaluate(ctx, twoGroupDataset(), b, ByAttribute("Gender"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisparitiesEqualGroups(t *testing.T) {
	groups := []GroupMetrics{
		{Group: "a", SelectionRate: 0.4, Recall: 0.6},
		{Group: "b", SelectionRate: 0.4, Recall: 0.6},
		{Group: "c", SelectionRate: 0.4, Recall: 0.6},
	}
	spd, eod := Disparities(groups)
	assert.Equal(t, 0.0, *spd)
	assert.Equal(t, 0.0, *eod)

	spd, eod = Disparities(nil)
	assert.Nil(t, spd)
	assert.Nil(t, eod)
}

// TestDisparitiesOrderInvariant verifies the aggregate ignores group order
func TestDisparitiesOrderInvariant(t *testing.T) {
	a := GroupMetrics{Group: "A", SelectionRate: 0.8, Recall: 0.9}
	b := GroupMetrics{Group: "B", SelectionRate: 0.5, Recall: 0.7}

	spd1, eod1 := Disparities([]GroupMetrics{a, b})
	spd2, eod2 := Disparities([]GroupMetrics{b, a})
	assert.Equal(t, *spd1, *spd2)
	assert.Equal(t, *eod1, *eod2)
	assert.GreaterOrEqual(t, *spd1, 0.0)
}

func TestConfusionZeroDenominators(t *testing.T) {
	var c Confusion
	assert.Equal(t, Metrics{}, c.Metrics())
	assert.Equal(t, 0.0, c.SelectionRate())

	c.Add(models.Graduate, models.Graduate)
	assert.Equal(t, 1.0, c.Accuracy())
	assert.Equal(t, 0.0, c.Precision())
	assert.Equal(t, 0.0, c.Recall())
}

func TestSortGroups(t *testing.T) {
	numeric := []string{"10", "2", "1", "1.5"}
	sortGroups(numeric)
	assert.Equal(t, []string{"1", "1.5", "2", "10"}, numeric)

	mixed := []string{"b", "10", "a", "2"}
	sortGroups(mixed)
	assert.Equal(t, []string{"10", "2", "a", "b"}, mixed)
}

func TestFormatGroup(t *testing.T) {
	testCases := []struct {
		in   any
		want string
	}{
		{1.0, "1"},
		{0.0, "0"},
		{2.5, "2.5"},
		{int64(3), "3"},
		{7, "7"},
		{"Male", "Male"},
		{true, "true"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, FormatGroup(tc.in), "FormatGroup(%v)", tc.in)
	}
}

func TestCompileExpressionErrors(t *testing.T) {
	_, err := CompileExpression(`record[`)
	assert.Error(t, err)

	g, err := CompileExpression(`record["Debtor"]`)
	require.NoError(t, err)

	_, ok, err := g.GroupOf(features.Record{"Gender": 1.0})
	require.NoError(t, err)
	assert.False(t, ok, "a missing key yields no group")

	grp, ok, err := g.GroupOf(features.Record{"Debtor": 1.0})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", grp)

	list, err := CompileExpression(`[1, 2]`)
	require.NoError(t, err)
	_, _, err = list.GroupOf(features.Record{})
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"Roll_No,Age at enrollment,Gender,Debtor,Course,Target",
		"240001,19,1,0,9254,Dropout",
		"240002,24, 0 ,1,,Graduate",
		"240003,30,1,0,9500,1",
		"240004,22,0,0,9500,",
	}, "\n")

	ds, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len(), "the unlabeled row is skipped")

	first := ds.Examples()[0]
	assert.Equal(t, models.Dropout, first.Target)
	assert.Equal(t, 19.0, first.Record[features.AgeAttribute])
	assert.Equal(t, 9254.0, first.Record["Course"])
	assert.Equal(t, 1.0, first.Record["Gender"], "protected attributes are kept for grouping")
	assert.Contains(t, first.Record, features.RollNoAttribute)
	assert.NotContains(t, first.Record, TargetColumn)

	second := ds.Examples()[1]
	assert.Equal(t, models.Graduate, second.Target)
	assert.Equal(t, 0.0, second.Record["Gender"])
	assert.NotContains(t, second.Record, "Course")

	assert.Equal(t, models.Dropout, ds.Examples()[2].Target)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"))
	assert.ErrorContains(t, err, "Target")

	_, err = ReadCSV(strings.NewReader("Age at enrollment,Target\n20,Enrolled\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = LoadCSV("testdata/does-not-exist.csv")
	assert.Error(t, err)
}

// TestReadCSVValidatesRows verifies reference rows get the same validation as
// live prediction input
func TestReadCSVValidatesRows(t *testing.T) {
	testCases := []struct {
		name   string
		header string
		row    string
		reason string
	}{
		{"age out of range", "Age at enrollment,Debtor", "500,0", "120"},
		{"binary out of range", "Age at enrollment,Debtor", "20,7", "Debtor"},
		{"unknown column", "Age at enrollment,Bogus column", "20,1", "Bogus column"},
		{"non-numeric age", "Age at enrollment,Debtor", "abc,0", "must be numeric"},
		{"string level", "Age at enrollment,Course", "20,Nursing", "Course"},
		{"missing age", "Age at enrollment,Debtor", ",1", "is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.header + ",Target\n" + tc.row + ",Dropout\n"

			_, err := ReadCSV(strings.NewReader(input))
			require.Error(t, err)
			var schemaErr *features.SchemaError
			assert.ErrorAs(t, err, &schemaErr)
			assert.ErrorContains(t, err, "line 2")
			assert.ErrorContains(t, err, tc.reason)
		})
	}
}

func TestStaticSource(t *testing.T) {
	_, err := NewStaticSource(nil).Dataset(context.Background())
	assert.ErrorIs(t, err, ErrMetricsDataUnavailable)

	ds := twoGroupDataset()
	got, err := NewStaticSource(ds).Dataset(context.Background())
	require.NoError(t, err)
	assert.Same(t, ds, got)
}
