package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"fcmsim/internal/config"
	"fcmsim/internal/logging"
	"fcmsim/pkg/fcmsim"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fcmsimctl",
		Short:         "What-if simulation over fuzzy cognitive maps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML run configuration file")
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(
		newInferCmd(),
		newWhatIfCmd(),
		newExperimentCmd(),
		newRunsCmd(),
		newHistoryCmd(),
		newScaleCmd(),
	)
	return root
}

// addConfigFlags mirrors the RunConfig keys; only flags set on the command
// line override the file and environment.
func addConfigFlags(fs *pflag.FlagSet) {
	d := config.Defaults()
	fs.String("model-dir", d.ModelDir, "directory holding <i>_wm.csv and <i>_desc.yaml|json")
	fs.String("cases-dir", d.CasesDir, "directory holding one sub-directory per case")
	fs.String("case", d.Case, "case name or directory")
	fs.String("aggregator", d.Aggregator, "aggregator map name, empty for the highest-numbered map, none to disable")
	fs.String("combiner", d.Combiner, "combination policy: aggregator|mean")
	fs.StringSlice("excluded", d.Excluded, "sub-maps whose genes stay fixed")
	fs.String("scale-file", d.ScaleFile, "YAML linguistic scale, default deciles")
	fs.String("target", d.Target, "target term of the objective concept")
	fs.Int("population-size", d.PopulationSize, "individuals per generation")
	fs.Int("generations", d.Generations, "generation cap per run")
	fs.Int("runs", d.Runs, "independent GA runs")
	fs.Float64("crossover-prob", d.CrossoverProb, "crossover probability")
	fs.Int("retain", d.Retain, "percentage of the population kept as parents")
	fs.Int64("seed", d.Seed, "seed of run 0; run k uses seed+k")
	fs.Int("workers", d.Workers, "parallel runs, 0 for one per run")
	fs.String("mutator", d.Mutator, "mutation kind: scale|decile")
	fs.Int("max-iterations", d.MaxIterations, "inference iteration cap")
	fs.Float64("threshold", d.Threshold, "inference convergence threshold")
	fs.String("store", d.Store, "store backend: memory|sqlite")
	fs.String("db-path", d.DBPath, "sqlite database path")
	fs.String("output-dir", d.OutputDir, "run artifacts directory")
	fs.String("log-mode", d.LogMode, "log encoder: dev|prod")
	fs.String("log-level", d.LogLevel, "log level: debug|info|warn|error")
}

// loadClient resolves the run configuration of cmd and opens a client.
func loadClient(cmd *cobra.Command) (*fcmsim.Client, func(), error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	client, err := fcmsim.New(fcmsim.Options{Config: cfg, Logger: logger})
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
		logger.Sync()
	}
	return client, cleanup, nil
}
