package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimdesk/internal/report"
	"github.com/ppiankov/claimdesk/internal/review"
	"github.com/ppiankov/claimdesk/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <claims-dir|list-file>",
	Short: "Review many claim folders in parallel",
	Long: `Batch reviews several claims concurrently:
- A directory argument reviews each of its subdirectories as one claim
- A file argument lists claim folders, one per line (# starts a comment)
- Each claim gets a JSON and a Markdown report in the output directory

Example:
  claimdesk batch ./claims
  claimdesk batch claims.txt --concurrency 8 --output-dir ./reviews
  claimdesk batch ./claims --accept-recommended --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent reviews (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./claimdesk-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	addReviewFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	input := args[0]
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Concurrency.Workers
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  claimdesk Batch Review\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input:        %s\n", input)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  Backend:      %s\n", cfg.Backend.Mode)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	runner := review.NewRunner(a.backend, a.wizard, reviewOptions())
	processor := worker.NewBatchProcessor(runner, concurrency)

	results, err := processor.ProcessPath(ctx, input)
	if err != nil {
		return fmt.Errorf("process %s: %w", input, err)
	}

	renderer := report.NewRenderer(!noFooter)
	var completed, needsAdjuster, failed int
	for _, result := range results {
		if result.View == nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Dir, result.Error)
			continue
		}

		slug := sanitizeFilename(result.Dir)
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")
		if err := renderer.RenderJSON(*result.View, jsonPath); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Dir, err)
			continue
		}
		if err := renderer.RenderMarkdown(*result.View, mdPath); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Dir, err)
			continue
		}

		switch {
		case errors.Is(result.Error, review.ErrNeedsAdjuster):
			needsAdjuster++
			fmt.Fprintf(os.Stderr, "! %s: %d conflict(s) need an adjuster\n", result.Dir, len(result.View.Conflicts))
		case result.Error != nil:
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: stopped at %s: %v\n", result.Dir, result.View.CurrentStep, result.Error)
		default:
			completed++
			fmt.Fprintf(os.Stderr, "✓ %s (%s, %d%%)\n", result.Dir, result.View.CurrentStep, result.View.Progress)
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:           %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Completed:       %d\n", completed)
	fmt.Fprintf(os.Stderr, "  Needs adjuster:  %d\n", needsAdjuster)
	fmt.Fprintf(os.Stderr, "  Failures:        %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:          %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// sanitizeFilename turns a claim folder path into a report file name.
func sanitizeFilename(s string) string {
	s = filepath.Base(filepath.Clean(s))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		case ' ':
			return '-'
		}
		return r
	}, s)
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" || s == "." {
		s = "claim"
	}
	return s
}
