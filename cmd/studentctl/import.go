package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/studentrisk/internal/logger"
	"github.com/liamcoop/studentrisk/students"
)

func newImportCmd(c *cli) *cobra.Command {
	var (
		reset      bool
		runMigrate bool
	)

	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Load students from a CSV file into the database",
		Long: `Imports an existing student CSV with a Roll_No column, one column per
raw attribute and an optional Target column. Every row is validated before
anything is written; the import is all or nothing. Use "-" to read stdin.

Example:
  studentctl import --reset students.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imported, err := readStudentsFile(cmd, args[0])
			if err != nil {
				return err
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
			if err := store.PutMany(ctx, imported); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d students\n", len(imported))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "delete existing students first")
	cmd.Flags().BoolVar(&runMigrate, "migrate", false, "apply migrations before importing")
	return cmd
}

func readStudentsFile(cmd *cobra.Command, path string) ([]*students.Student, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	imported, err := students.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("invalid student file %s: %w", path, err)
	}
	return imported, nil
}
