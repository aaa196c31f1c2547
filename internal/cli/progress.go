package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/ekocloudsec/ctfctl/pkg/engine"
)

// printProgress returns an OnProgress callback that logs one line per
// state change.
func printProgress(w io.Writer, operation string) func(engine.ProgressEvent) {
	return func(e engine.ProgressEvent) {
		switch e.Type {
		case engine.EventResolving:
			fmt.Fprintf(w, "[%s] %s: resolving variables\n", operation, e.Challenge)
		case engine.EventApplying:
			fmt.Fprintf(w, "[%s] %s: applying\n", operation, e.Challenge)
		case engine.EventDeployed:
			fmt.Fprintf(w, "[success] %s deployed\n", e.Challenge)
		case engine.EventReused:
			fmt.Fprintf(w, "[skip] %s unchanged, reusing outputs\n", e.Challenge)
		case engine.EventDestroying:
			fmt.Fprintf(w, "[%s] %s: destroying\n", operation, e.Challenge)
		case engine.EventDestroyed:
			fmt.Fprintf(w, "[success] %s destroyed\n", e.Challenge)
		case engine.EventFailed:
			fmt.Fprintf(w, "[error] %s failed: %v\n", e.Challenge, e.Err)
		case engine.EventSkipped:
			fmt.Fprintf(w, "[skip] %s: %v\n", e.Challenge, e.Err)
		}
	}
}

// printSummary renders the per-challenge outcome table after a run.
func printSummary(w io.Writer, result *engine.RunResult) {
	names := make([]string, 0, len(result.Results))
	for name := range result.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHALLENGE\tSTATE\tDURATION\tERROR")
	for _, name := range names {
		res := result.Results[name]
		errMsg := ""
		if res.Error != nil {
			errMsg = res.Error.Error()
		}
		state := string(res.State)
		if res.Reused {
			state = "deployed (reused)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, state, res.Duration.Round(10*time.Millisecond), errMsg)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nDone in %s: %d deployed, %d reused, %d destroyed, %d failed, %d skipped\n",
		result.Duration.Round(10*time.Millisecond),
		result.Deployed, result.Reused, result.Destroyed, result.Failed, result.Skipped)
}

// printPreview renders the planned changes of a dry run, one row per
// challenge in dependency order.
func printPreview(w io.Writer, result *engine.PreviewResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHALLENGE\tCREATE\tUPDATE\tDELETE\tREPLACE\tNOTE")
	for _, name := range result.Order {
		p := result.Challenges[name]
		if p.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", name, p.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t\n", name,
			p.Summary.Create, p.Summary.Update, p.Summary.Delete, p.Summary.Replace)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nPlan: %d to create, %d to update, %d to delete, %d to replace\n",
		result.Summary.Create, result.Summary.Update, result.Summary.Delete, result.Summary.Replace)
}
