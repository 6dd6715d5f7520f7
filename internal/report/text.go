package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"fcmsim/internal/fuzzy"
	"fcmsim/internal/model"
)

// WriteText renders the best individual of run node by node, grouped by
// sub-map, with the initial and suggested terms side by side.
func WriteText(w io.Writer, run model.RunRecord, scale *fuzzy.Scale) error {
	fmt.Fprintf(w, "what-if %s  case=%s  target=%s (%.3g)\n", run.ID, run.Case, run.Target, run.TargetValue)
	for _, r := range run.Runs {
		marker := " "
		if r.Run == run.BestRun {
			marker = "*"
		}
		fmt.Fprintf(w, "%s run %d  seed=%d  generations=%d  best_fitness=%.3f  done=%t\n",
			marker, r.Run, r.Seed, r.Generations, r.BestFitness, r.Done)
	}
	fmt.Fprintf(w, "best run %d: fitness %.3f, %d of %d genes changed\n\n", run.BestRun, run.BestFitness, len(run.Diff), len(run.BestGenes))

	initial := scale.Decode(run.Baseline)
	final := run.BestTerms
	if len(final) != len(run.BestGenes) {
		final = scale.Decode(run.BestGenes)
	}
	changed := make(map[int]bool, len(run.Diff))
	for _, i := range run.Diff {
		changed[i] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	current := ""
	for i := range run.BestGenes {
		subMap, node := splitLabel(run.GeneLabels, i)
		if subMap != current {
			if current != "" {
				fmt.Fprintln(tw)
			}
			fmt.Fprintf(tw, "FCM %s\n", subMap)
			fmt.Fprintln(tw, "\tnode\tinitial\tfinal\t")
			current = subMap
		}
		mark := ""
		if changed[i] {
			mark = "*"
		}
		fmt.Fprintf(tw, "\t%s\t%s\t%s\t%s\n", node, termAt(initial, i), termAt(final, i), mark)
	}
	return tw.Flush()
}

func splitLabel(labels []string, i int) (string, string) {
	if i >= len(labels) {
		return "genes", fmt.Sprintf("gene %d", i)
	}
	subMap, node, ok := strings.Cut(labels[i], "/")
	if !ok {
		return "genes", labels[i]
	}
	return subMap, node
}

func termAt(terms []string, i int) string {
	if i < len(terms) {
		return terms[i]
	}
	return "?"
}
