package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/13rac1/bucketsync/internal/discover"
	"github.com/13rac1/bucketsync/internal/store"
	"github.com/13rac1/bucketsync/internal/types"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorReset = "\033[0m"
)

func checkmark() string {
	return colorGreen + "✓" + colorReset
}

func crossmark() string {
	return colorRed + "✗" + colorReset
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// RunChecks performs all doctor checks and returns whether all passed.
// A nil buckets skips the connectivity check.
func RunChecks(ctx context.Context, cfg *types.Config, configPath string, buckets store.BucketManager) bool {
	fmt.Println("bucketsync doctor - Configuration and connectivity check")
	fmt.Println()

	allPassed := true

	// Configuration checks
	fmt.Println("Configuration:")
	fmt.Printf("  %s Config file loaded: %s\n", checkmark(), configPath)

	if cfg.S3.Bucket == "" || cfg.S3.Bucket == "YOUR-BUCKET-NAME" {
		fmt.Printf("  %s S3 bucket not configured (still set to placeholder)\n", crossmark())
		fmt.Printf("    → Edit %s and set s3.bucket\n", configPath)
		allPassed = false
	} else {
		fmt.Printf("  %s S3 bucket configured: %s\n", checkmark(), cfg.S3.Bucket)
	}

	if cfg.S3.Prefix == "" {
		fmt.Printf("  %s S3 prefix configured: (empty)\n", checkmark())
	} else {
		fmt.Printf("  %s S3 prefix configured: %s\n", checkmark(), cfg.S3.Prefix)
	}

	fmt.Printf("  %s Strategy: %s, backend: %s, fingerprint: %s\n",
		checkmark(), cfg.Sync.Strategy, cfg.S3.Backend, cfg.Sync.Fingerprint)

	matcher, err := discover.NewMatcher(cfg.Local.Include, cfg.Local.Exclude)
	if err != nil {
		fmt.Printf("  %s Invalid filter pattern: %v\n", crossmark(), err)
		fmt.Printf("    → Fix local.include / local.exclude in %s\n", configPath)
		allPassed = false
	}

	if cfg.Sync.Strategy == types.StrategyMc {
		if path, err := lookPath(cfg.Mc.Path); err != nil {
			fmt.Printf("  %s mc binary not found: %s\n", crossmark(), cfg.Mc.Path)
			fmt.Printf("    → Install the MinIO client or set mc.path\n")
			allPassed = false
		} else {
			fmt.Printf("  %s mc binary found: %s\n", checkmark(), path)
		}
	}

	fmt.Println()

	// Local filesystem checks
	fmt.Println("Local filesystem:")
	if !checkLocal(cfg.Local.Dir, matcher) {
		allPassed = false
	}

	fmt.Println()

	// Remote checks
	fmt.Println("Remote storage:")
	if !checkRemote(ctx, cfg.S3.Bucket, buckets) {
		allPassed = false
	}

	fmt.Println()
	printSummary(allPassed)
	return allPassed
}

func checkLocal(dir string, matcher *discover.Matcher) bool {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("  %s Local directory does not exist: %s\n", crossmark(), dir)
			fmt.Printf("    → Create the directory, update local.dir, or run a download first\n")
			return false
		}
		fmt.Printf("  %s Cannot access local directory: %s\n", crossmark(), dir)
		fmt.Printf("    → Error: %v\n", err)
		return false
	}

	if !info.IsDir() {
		fmt.Printf("  %s Local path is not a directory: %s\n", crossmark(), dir)
		fmt.Printf("    → Ensure local.dir points to a directory\n")
		return false
	}

	fmt.Printf("  %s Local directory exists: %s\n", checkmark(), dir)

	if matcher == nil {
		return false
	}

	keys, err := discover.NewLocalEnumerator(afero.NewOsFs(), dir, matcher).Keys()
	if err != nil {
		fmt.Printf("  %s Local directory is not readable\n", crossmark())
		fmt.Printf("    → Error: %v\n", err)
		return false
	}

	fileWord := "files"
	if len(keys) == 1 {
		fileWord = "file"
	}
	fmt.Printf("  %s Found %d local %s matching filters\n", checkmark(), len(keys), fileWord)

	if groups := lookalikeNames(keys); len(groups) > 0 {
		groupWord := "groups"
		if len(groups) == 1 {
			groupWord = "group"
		}
		fmt.Printf("  ! Names differing only by Unicode normalization (%d %s):\n", len(groups), groupWord)
		for _, g := range groups {
			fmt.Printf("    %s\n", strings.Join(quoteAll(g), ", "))
		}
		fmt.Printf("    → They sync as separate objects but collide on filesystems that normalize names\n")
	}
	return true
}

// lookalikeNames groups keys whose NFC forms are equal. Groups and their
// members are sorted.
func lookalikeNames(keys map[string]string) [][]string {
	byForm := make(map[string][]string)
	for k := range keys {
		nfc := norm.NFC.String(k)
		byForm[nfc] = append(byForm[nfc], k)
	}

	var groups [][]string
	for _, g := range byForm {
		if len(g) > 1 {
			sort.Strings(g)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strconv.QuoteToASCII(n)
	}
	return out
}

func checkRemote(ctx context.Context, bucket string, buckets store.BucketManager) bool {
	if buckets == nil {
		fmt.Printf("  %s Connectivity check skipped\n", checkmark())
		return true
	}

	exists, err := buckets.BucketExists(ctx, bucket)
	if err != nil {
		fmt.Printf("  %s Cannot reach bucket: %s\n", crossmark(), bucket)
		fmt.Printf("    → Error: %v\n", err)
		return false
	}

	if !exists {
		// Uploads create it when s3.create_bucket allows.
		fmt.Printf("  %s Bucket does not exist yet: %s\n", checkmark(), bucket)
		return true
	}

	fmt.Printf("  %s Bucket is reachable: %s\n", checkmark(), bucket)
	return true
}

func printSummary(allPassed bool) {
	if allPassed {
		fmt.Println("All checks passed! Ready to use bucketsync.")
	} else {
		fmt.Println("Some checks failed. Please fix the issues above.")
	}
}
