package output

import (
	"fmt"
	"time"

	"github.com/13rac1/bucketsync/internal/engine"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/goccy/go-json"
)

// JSONOutput represents the complete JSON output of a sync run.
type JSONOutput struct {
	GeneratedAt string        `json:"generatedAt"`
	Config      ConfigInfo    `json:"config"`
	Summary     types.Summary `json:"summary"`
}

// JSONPlanOutput represents the complete JSON output of a dry run.
type JSONPlanOutput struct {
	GeneratedAt string         `json:"generatedAt"`
	Config      ConfigInfo     `json:"config"`
	Direction   string         `json:"direction"`
	Items       []JSONPlanItem `json:"items"`
}

// ConfigInfo holds configuration details for JSON output.
type ConfigInfo struct {
	Bucket      string `json:"bucket"`
	Prefix      string `json:"prefix"`
	Endpoint    string `json:"endpoint,omitempty"`
	LocalDir    string `json:"localDir"`
	Fingerprint string `json:"fingerprint"`
	Mirror      bool   `json:"mirror"`
}

// JSONPlanItem is one plan row in JSON output.
type JSONPlanItem struct {
	Key    string `json:"key"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Size   int64  `json:"size"`
}

// PrintJSON formats and prints a run summary as JSON to stdout.
func PrintJSON(summary types.Summary, cfg *types.Config) error {
	return printJSON(JSONOutput{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Config:      buildConfigInfo(cfg),
		Summary:     summary,
	})
}

// PrintPlanJSON formats and prints a dry-run plan as JSON to stdout.
func PrintPlanJSON(dir types.Direction, items []engine.PlanItem, cfg *types.Config) error {
	out := JSONPlanOutput{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Config:      buildConfigInfo(cfg),
		Direction:   string(dir),
		Items:       make([]JSONPlanItem, 0, len(items)),
	}
	for _, it := range items {
		out.Items = append(out.Items, JSONPlanItem{
			Key:    it.Key,
			Action: string(it.Action),
			Reason: string(it.Reason),
			Size:   it.Size,
		})
	}
	return printJSON(out)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// buildConfigInfo extracts config information for JSON output.
func buildConfigInfo(cfg *types.Config) ConfigInfo {
	return ConfigInfo{
		Bucket:      cfg.S3.Bucket,
		Prefix:      cfg.S3.Prefix,
		Endpoint:    cfg.S3.Endpoint,
		LocalDir:    cfg.Local.Dir,
		Fingerprint: string(cfg.Sync.Fingerprint),
		Mirror:      cfg.Sync.DeleteExtraneous,
	}
}
