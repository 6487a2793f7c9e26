package output

import (
	"fmt"
	"time"

	"github.com/13rac1/bucketsync/internal/types"
	"github.com/dustin/go-humanize"
)

// FormatSummary renders the one-line run summary, e.g.
// "Uploaded: 3, Skipped: 10, Deleted: 1". Failures are appended only when
// there were any.
func FormatSummary(s types.Summary) string {
	line := fmt.Sprintf("%s: %d, Skipped: %d, Deleted: %d", transferLabel(s.Direction), s.Transferred, s.Skipped, s.Deleted)
	if s.Failed > 0 {
		line += fmt.Sprintf(", Failed: %d", s.Failed)
	}
	return line
}

// PrintSummary prints the run summary to stdout. When verbose, transferred
// bytes and elapsed time follow on a second line.
func PrintSummary(s types.Summary, verbose bool) {
	fmt.Println(FormatSummary(s))
	if verbose {
		fmt.Printf("Transferred %s in %s\n", humanize.IBytes(uint64(s.Bytes)), s.Duration.Round(time.Millisecond))
	}
}
