package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/liamcoop/studentrisk/fairness"
	"github.com/liamcoop/studentrisk/inference"
	"github.com/liamcoop/studentrisk/internal/config"
	"github.com/liamcoop/studentrisk/models"
	"github.com/liamcoop/studentrisk/students"
)

const referenceFile = "reference.csv"

func (c *cli) service(opts ...inference.Option) (*inference.Service, error) {
	registry, err := models.LoadArtifacts(c.cfg.ArtifactsDir,
		models.WithUnknownSelectorPolicy(c.cfg.UnknownSelector),
		models.WithRequired(c.cfg.Required...),
	)
	if err != nil {
		return nil, err
	}
	opts = append([]inference.Option{inference.WithTopN(c.cfg.TopN)}, opts...)
	return inference.NewService(registry, opts...), nil
}

func newPredictCmd(c *cli) *cobra.Command {
	var (
		model  string
		file   string
		rollNo string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the outcome of one student",
		Long: `Predicts Dropout or Graduate for a student and explains the decision.

The record is a JSON object of raw attributes read from --file (or stdin),
or a stored student looked up with --roll-no.

Example:
  studentctl predict --model mitigated --file student.json
  studentctl predict --roll-no 240001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context()
			defer cancel()

			if rollNo != "" {
				db, err := c.connect()
				if err != nil {
					return err
				}
				defer db.Close()

				svc, err := c.service(inference.WithStudentStore(students.NewPostgresStore(db)))
				if err != nil {
					return err
				}
				result, err := svc.PredictStudent(ctx, rollNo, model)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			raw, err := readRecord(cmd, file)
			if err != nil {
				return err
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			result, err := svc.Predict(ctx, raw, model)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&model, "model", string(models.Baseline), "model selector")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON record file (default stdin)")
	cmd.Flags().StringVar(&rollNo, "roll-no", "", "predict a stored student")
	return cmd
}

func readRecord(cmd *cobra.Command, path string) (map[string]any, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open record: %w", err)
		}
		defer f.Close()
		r = f
	}

	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	// Accept the HTTP request shape as well as a bare record.
	if inner, ok := raw["features"].(map[string]any); ok {
		return inner, nil
	}
	return raw, nil
}

func newMetricsCmd(c *cli) *cobra.Command {
	var (
		model     string
		group     string
		groupExpr string
		dataset   string
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Evaluate accuracy and fairness on the reference dataset",
		Long: `Evaluates a model on the labeled reference dataset and reports accuracy,
precision, recall, the confusion matrix and, when grouped, per-group metrics
with statistical parity and equal opportunity differences.

Example:
  studentctl metrics --group Gender
  studentctl metrics --model mitigated --group-expr 'record["Age at enrollment"] > 23 ? "mature" : "young"'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context()
			defer cancel()

			if dataset == "" {
				dataset = c.cfg.MetricsDataset
			}
			if dataset == "" {
				dataset = filepath.Join(c.cfg.ArtifactsDir, referenceFile)
			}

			var source fairness.Source
			if dataset == config.DatasetPostgres {
				db, err := c.connect()
				if err != nil {
					return err
				}
				defer db.Close()
				source = students.NewCachedStore(
					students.NewPostgresStore(db),
					students.NewInMemoryDatasetCache(students.CacheConfig{TTL: c.cfg.CacheTTL}),
				)
			} else {
				ds, err := fairness.LoadCSV(dataset)
				if err != nil {
					return err
				}
				source = fairness.NewStaticSource(ds)
			}

			svc, err := c.service(inference.WithDatasetSource(source))
			if err != nil {
				return err
			}
			report, err := svc.Metrics(ctx, model, inference.MetricsQuery{Group: group, GroupExpr: groupExpr})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&model, "model", string(models.Baseline), "model selector")
	cmd.Flags().StringVar(&group, "group", "", "group by a raw attribute")
	cmd.Flags().StringVar(&groupExpr, "group-expr", "", "group by a CEL expression over record")
	cmd.Flags().StringVar(&dataset, "dataset", "", `reference CSV path or "postgres"`)
	cmd.MarkFlagsMutuallyExclusive("group", "group-expr")
	return cmd
}

func newExplainModelCmd(c *cli) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "explain-model [selector]",
		Short: "Rank a model's most influential features",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := string(models.Baseline)
			if len(args) == 1 {
				selector = args[0]
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			summary, err := svc.ModelSummary(selector, top)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "number of features (default explain.top_n)")
	return cmd
}
