package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fcmsim/internal/fcm"
	"fcmsim/internal/report"
	"fcmsim/pkg/fcmsim"
)

func newInferCmd() *cobra.Command {
	var (
		docPath        string
		activationPath string
		objective      int
		decay          float64
		steepness      float64
		squash         string
	)
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run one inference loop over a JSON graph document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if docPath == "" {
				return errors.New("infer requires --doc")
			}
			var doc fcm.GraphDocument
			if err := readJSONFile(docPath, &doc); err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			activation := map[int]string{}
			if activationPath != "" {
				if err := readJSONFile(activationPath, &activation); err != nil {
					return fmt.Errorf("read activation: %w", err)
				}
			}

			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := client.Infer(cmd.Context(), fcmsim.InferRequest{
				Document:   doc,
				Activation: activation,
				Options: fcm.DocumentOptions{
					Decay:       decay,
					Steepness:   steepness,
					Squash:      squash,
					ObjectiveID: objective,
				},
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				fcm.GraphDocument
				Iterations int  `json:"iterations"`
				Converged  bool `json:"converged"`
			}{res.Document, res.Result.Iterations, res.Result.Converged})
		},
	}
	cmd.Flags().StringVar(&docPath, "doc", "", "graph document JSON {nodes, links}")
	cmd.Flags().StringVar(&activationPath, "activation", "", "JSON object of node id to term")
	cmd.Flags().IntVar(&objective, "objective", 0, "node id of the objective concept")
	cmd.Flags().Float64Var(&decay, "decay", fcm.DefaultDocumentDecay, "weight of neighbour influence against self memory")
	cmd.Flags().Float64Var(&steepness, "steepness", fcm.DefaultSteepness, "squash steepness")
	cmd.Flags().StringVar(&squash, "squash", fcm.DefaultSquash, "squash function")
	return cmd
}

func newWhatIfCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "whatif",
		Short: "Search the initial activation levels that reach the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := client.WhatIf(cmd.Context(), fcmsim.WhatIfRequest{})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary.Record)
			}
			if err := report.WriteText(cmd.OutOrStdout(), summary.Record, client.Scale()); err != nil {
				return err
			}
			if summary.ArtifactsDir != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nartifacts: %s\n", summary.ArtifactsDir)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the run record as JSON")
	return cmd
}

func newExperimentCmd() *cobra.Command {
	var (
		id      string
		cases   []string
		probs   []float64
		retains []int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Sweep cases, crossover probabilities and retain percentages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			exp, err := client.Experiment(cmd.Context(), fcmsim.ExperimentRequest{
				ID:             id,
				Cases:          cases,
				CrossoverProbs: probs,
				Retains:        retains,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), exp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "experiment %s\n", exp.ID)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "case\tcrossover\tretain\tbest_fitness\tmean_gens\tchanged\telapsed_ms\trun_id")
			for _, c := range exp.Cells {
				fmt.Fprintf(tw, "%s\t%.2f\t%d\t%.3f\t%.1f\t%d\t%d\t%s\n",
					c.Case, c.CrossoverProb, c.Retain, c.BestFitness, c.MeanGens, c.ChangedGenes, c.ElapsedMS, c.RunID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "experiment id, random when empty")
	cmd.Flags().StringSliceVar(&cases, "cases", nil, "cases to sweep, default the configured ones")
	cmd.Flags().Float64SliceVar(&probs, "crossover-probs", nil, "crossover probabilities to sweep")
	cmd.Flags().IntSliceVar(&retains, "retains", nil, "retain percentages to sweep")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the experiment as JSON")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed what-if runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := client.Runs(cmd.Context(), fcmsim.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				type runsItem struct {
					RunID        string  `json:"run_id"`
					CreatedAtUTC string  `json:"created_at_utc"`
					Case         string  `json:"case"`
					Target       string  `json:"target"`
					Runs         int     `json:"runs"`
					BestRun      int     `json:"best_run"`
					BestFitness  float64 `json:"best_fitness"`
					ChangedGenes int     `json:"changed_genes"`
				}
				out := make([]runsItem, 0, len(items))
				for _, it := range items {
					out = append(out, runsItem(it))
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs found")
				return nil
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s created_at=%s case=%s target=%s runs=%d best_run=%d best_fitness=%.3f changed=%d\n",
					it.RunID, it.CreatedAtUTC, it.Case, it.Target, it.Runs, it.BestRun, it.BestFitness, it.ChangedGenes)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		runID   string
		latest  bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the per-generation mean and best fitness of a what-if",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			history, err := client.FitnessHistory(cmd.Context(), fcmsim.FitnessHistoryRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), history)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "run\tgeneration\tmean\tbest")
			for _, h := range history {
				for gen, mean := range h.Mean {
					best := "-"
					if gen < len(h.Best) {
						best = fmt.Sprintf("%.3f", h.Best[gen])
					}
					fmt.Fprintf(tw, "%d\t%d\t%.3f\t%s\n", h.Run, gen, mean, best)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "what-if run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the newest indexed run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit history as JSON")
	return cmd
}

func newScaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale",
		Short: "Print the linguistic scale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := loadClient(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, term := range client.Scale().Terms() {
				fmt.Fprintf(tw, "%s\t%.2f\n", term.Label, term.Value)
			}
			return tw.Flush()
		},
	}
}

func readJSONFile(path string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, value)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
