package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/liamcoop/studentrisk/internal/config"
	"github.com/liamcoop/studentrisk/internal/logger"
)

// cli carries the resolved configuration to every subcommand.
type cli struct {
	v          *viper.Viper
	cfg        *config.Config
	configFile string
	envFile    string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "studentctl",
		Short: "Manage student records, model artifacts and fairness reports",
		Long: `studentctl operates the student dropout risk service offline.

It applies database migrations, seeds synthetic students, and runs
predictions, fairness metrics and model explanations against the same
artifacts the HTTP server loads.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(c.v, c.configFile, c.envFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
				logger.SetLevel(level)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "optional YAML config file")
	flags.StringVar(&c.envFile, "env-file", ".env", "optional .env file")
	flags.DurationVar(&c.timeout, "timeout", 5*time.Minute, "operation timeout")
	flags.String("artifacts", "", "model artifacts directory (default from config)")
	flags.String("database", "", "PostgreSQL URL (default DATABASE_URL)")
	_ = c.v.BindPFlag("artifacts.dir", flags.Lookup("artifacts"))
	_ = c.v.BindPFlag("database.url", flags.Lookup("database"))

	root.AddCommand(
		newMigrateCmd(c),
		newSeedCmd(c),
		newImportCmd(c),
		newPredictCmd(c),
		newMetricsCmd(c),
		newExplainModelCmd(c),
	)
	return root
}

// context returns a context bounded by --timeout and cancelled on SIGINT or
// SIGTERM.
func (c *cli) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
