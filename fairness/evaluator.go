// Package fairness computes overall and per-group classification metrics
// and the disparities between groups over a labeled reference dataset.
package fairness

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/studentrisk/features"
	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/models"
)

// Evaluator runs a dataset through the same alignment and scaling used for
// live predictions. It holds no mutable state.
type Evaluator struct {
	aligner *features.Aligner
}

func NewEvaluator(aligner *features.Aligner) *Evaluator {
	return &Evaluator{aligner: aligner}
}

type outcome struct {
	truth models.Label
	pred  models.Label
}

// Evaluate scores every example with the bundle and computes the report.
// grouping may be nil, in which case no group metrics, SPD or EOD are
// produced. Examples without a group value still count toward the overall
// metrics.
func (e *Evaluator) Evaluate(ctx context.Context, ds *Dataset, b *models.Bundle, grouping Grouping) (*Report, error) {
	if ds.Len() == 0 {
		return nil, ErrMetricsDataUnavailable
	}
	if !e.aligner.Schema().Equal(b.Schema) {
		return nil, fmt.Errorf("bundle %q was trained on a different feature schema", b.Selector)
	}

	outcomes, err := e.predictAll(ds, b)
	if err != nil {
		return nil, err
	}

	var overall Confusion
	for _, o := range outcomes {
		overall.Add(o.truth, o.pred)
	}

	report := &Report{
		Model:           string(b.Selector),
		Size:            len(outcomes),
		Overall:         overall.Metrics(),
		ConfusionMatrix: overall.Matrix(),
		GroupMetrics:    []GroupMetrics{},
	}

	if grouping != nil {
		report.Grouping = grouping.Name()
		groups, err := e.groupMetrics(ctx, ds, outcomes, grouping)
		if err != nil {
			return nil, err
		}
		report.GroupMetrics = groups
		report.SPD, report.EOD = Disparities(groups)
	}

	logger.Evaluations.Add(1)
	logger.Debug("fairness evaluation complete",
		"model", report.Model,
		"size", report.Size,
		"groups", len(report.GroupMetrics),
	)
	return report, nil
}

func (e *Evaluator) predictAll(ds *Dataset, b *models.Bundle) ([]outcome, error) {
	outcomes := make([]outcome, ds.Len())
	for i, ex := range ds.Examples() {
		v, err := e.aligner.Align(ex.Record)
		if err != nil {
			return nil, &RecordError{Row: i, Err: err}
		}
		scaled, err := b.Scale(v)
		if err != nil {
			return nil, &RecordError{Row: i, Err: err}
		}
		pred, _, err := b.Predict(scaled)
		if err != nil {
			return nil, &RecordError{Row: i, Err: err}
		}
		outcomes[i] = outcome{truth: ex.Target, pred: pred}
	}
	return outcomes, nil
}

// groupMetrics partitions the outcomes and computes each group's metrics in
// its own goroutine. The result slice is ordered before the fan-out so the
// report does not depend on scheduling.
func (e *Evaluator) groupMetrics(ctx context.Context, ds *Dataset, outcomes []outcome, grouping Grouping) ([]GroupMetrics, error) {
	members := make(map[string][]int)
	for i, ex := range ds.Examples() {
		g, ok, err := grouping.GroupOf(ex.Record)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		if !ok {
			continue
		}
		members[g] = append(members[g], i)
	}

	names := make([]string, 0, len(members))
	for g := range members {
		names = append(names, g)
	}
	sortGroups(names)

	results := make([]GroupMetrics, len(names))
	eg, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c Confusion
			for _, idx := range members[name] {
				c.Add(outcomes[idx].truth, outcomes[idx].pred)
			}
			results[i] = GroupMetrics{
				Group:         name,
				Size:          c.Total(),
				Accuracy:      c.Accuracy(),
				Precision:     c.Precision(),
				Recall:        c.Recall(),
				SelectionRate: c.SelectionRate(),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
