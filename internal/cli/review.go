package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimdesk/internal/report"
	"github.com/ppiankov/claimdesk/internal/review"
	"github.com/ppiankov/claimdesk/internal/wizard"
)

var (
	outJSON           string
	outMD             string
	reviewTimeout     time.Duration
	acceptRecommended bool
	checkEvidence     bool
	noRationale       bool
	noFooter          bool
	termWidth         int
)

var reviewCmd = &cobra.Command{
	Use:   "review <claim-dir>",
	Short: "Review one claim folder without the wizard UI",
	Long: `Review loads every supported document in a claim folder (text, HTML,
images and pre-parsed JSON documents), extracts the fact matrix and runs the
wizard as far as it can go without an adjuster.

Conflicting facts stop the review unless --accept-recommended is set, in
which case each conflict is resolved with the backend's recommended version.

Example:
  claimdesk review ./claims/CLM-1042
  claimdesk review ./claims/CLM-1042 --json review.json --md review.md
  claimdesk review ./claims/CLM-1042 --accept-recommended --evidence`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	reviewCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	reviewCmd.Flags().DurationVar(&reviewTimeout, "timeout", 10*time.Minute, "overall review timeout")
	reviewCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	reviewCmd.Flags().IntVar(&termWidth, "width", 100, "terminal word wrap width")
	addReviewFlags(reviewCmd)
}

// addReviewFlags registers the flags shared by review and batch.
func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&acceptRecommended, "accept-recommended", false, "resolve conflicts with the backend's recommended version")
	cmd.Flags().BoolVar(&checkEvidence, "evidence", false, "run the evidence completeness check")
	cmd.Flags().BoolVar(&noRationale, "no-rationale", false, "stop before drafting the claim rationale")
}

func reviewOptions() review.Options {
	return review.Options{
		AcceptRecommended: acceptRecommended,
		Evidence:          checkEvidence,
		Rationale:         !noRationale,
	}
}

func runReview(cmd *cobra.Command, args []string) error {
	dir := args[0]
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), reviewTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Reviewing: %s\n", dir)
		fmt.Fprintf(os.Stderr, "Backend: %s\n", cfg.Backend.Mode)
		fmt.Fprintln(os.Stderr)
	}

	runner := review.NewRunner(a.backend, a.wizard, reviewOptions())
	view, reviewErr := runner.Review(ctx, dir)
	if view == nil {
		return reviewErr
	}

	if err := writeReport(*view); err != nil {
		return err
	}

	if errors.Is(reviewErr, review.ErrNeedsAdjuster) {
		unresolved := 0
		for _, c := range view.Conflicts {
			if !c.Resolved {
				unresolved++
			}
		}
		return fmt.Errorf("%d conflict(s) need adjuster review; rerun with --accept-recommended or resolve them in claimdesk serve", unresolved)
	}
	return reviewErr
}

func writeReport(v wizard.View) error {
	renderer := report.NewRenderer(!noFooter)

	if outJSON != "" {
		if err := renderer.RenderJSON(v, outJSON); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(v, outMD); err != nil {
			return fmt.Errorf("write Markdown: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}
	if outJSON == "" && outMD == "" {
		return report.Print(os.Stdout, renderer.Markdown(v), termWidth)
	}
	return nil
}
