package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/students"
)

func newSeedCmd(c *cli) *cobra.Command {
	var (
		count      int
		seed       int64
		reset      bool
		runMigrate bool
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic labeled students",
		Long: `Generates synthetic students with realistic, correlated attributes and a
risk-driven outcome label. Students are written to the database, or to a
reference CSV with --out (use "-" for stdout).

Example:
  studentctl seed --count 500 --seed 7 --reset
  studentctl seed --out artifacts/reference.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 || count > students.MaxGenerateCount {
				return fmt.Errorf("--count must be between 1 and %d, got %d", students.MaxGenerateCount, count)
			}
			generated, err := students.Generate(count, seed)
			if err != nil {
				return err
			}

			if outputPath != "" {
				return writeSeedCSV(cmd, outputPath, generated)
			}

			db, err := c.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			if runMigrate {
				if err := students.Migrate(db); err != nil {
					return err
				}
			}

			ctx, cancel := c.context()
			defer cancel()

			store := students.NewPostgresStore(db)
			if reset {
				if err := store.DeleteAll(ctx); err != nil {
					return err
				}
				logger.Info("Existing students deleted")
			}
			if err := store.PutMany(ctx, generated); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d students\n", len(generated))
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", students.DefaultGenerateCount, "number of students to generate")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing students first")
	cmd.Flags().BoolVar(&runMigrate, "migrate", false, "apply migrations before seeding")
	cmd.Flags().StringVar(&outputPath, "out", "", "write a reference CSV instead of using the database")
	return cmd
}

func writeSeedCSV(cmd *cobra.Command, path string, generated []*students.Student) error {
	if path == "-" {
		return students.WriteCSV(cmd.OutOrStdout(), generated)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := students.WriteCSV(f, generated); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("Reference dataset written", "path", path, "students", len(generated))
	return nil
}
