package output

import (
	"fmt"
	"os"

	"github.com/13rac1/bucketsync/internal/engine"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// PrintPlan formats and prints a dry-run plan as an ASCII table followed by
// per-action totals.
func PrintPlan(dir types.Direction, items []engine.PlanItem) {
	if len(items) == 0 {
		fmt.Println("Nothing to sync.")
		return
	}

	fmt.Printf("Plan (%s)\n", dir)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Key", "Action", "Reason", "Size")

	for _, it := range items {
		table.Append(it.Key, string(it.Action), formatReason(it), formatSize(it.Size))
	}

	table.Render()

	counts := countActions(items)
	fmt.Printf("%s: %d, Skipped: %d, Deleted: %d\n",
		transferLabel(dir), counts[transferAction(dir)], counts[engine.ActionSkip], counts[engine.ActionDelete])
}

// formatReason formats the decision reason, using "-" for in-sync items.
func formatReason(it engine.PlanItem) string {
	switch {
	case it.Action == engine.ActionDelete:
		return "extraneous"
	case it.Reason == "":
		return "-"
	default:
		return string(it.Reason)
	}
}

// formatSize formats a byte count for display, using "-" for zero values.
func formatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(size))
}

// countActions tallies plan items per action.
func countActions(items []engine.PlanItem) map[engine.Action]int {
	counts := make(map[engine.Action]int)
	for _, it := range items {
		counts[it.Action]++
	}
	return counts
}

func transferAction(dir types.Direction) engine.Action {
	if dir == types.Down {
		return engine.ActionDownload
	}
	return engine.ActionUpload
}

// transferLabel is the verb used in summaries for dir.
func transferLabel(dir types.Direction) string {
	if dir == types.Down {
		return "Downloaded"
	}
	return "Uploaded"
}
