package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/claimdesk/internal/wizard"
)

// Reviewer reviews the claim documents in one folder
type Reviewer interface {
	Review(ctx context.Context, dir string) (*wizard.View, error)
}

// ReviewJob reviews one claim folder
type ReviewJob struct {
	Dir      string
	Reviewer Reviewer
}

// Execute runs the review.
func (j *ReviewJob) Execute(ctx context.Context) Result {
	view, err := j.Reviewer.Review(ctx, j.Dir)
	return &ReviewResult{Dir: j.Dir, View: view, Error: err}
}

// ReviewResult is the outcome of one claim review. View may be set even when
// Error is, carrying whatever the review got through.
type ReviewResult struct {
	Dir   string
	View  *wizard.View
	Error error
}

// GetError returns the review error.
func (r *ReviewResult) GetError() error {
	return r.Error
}

// BatchProcessor reviews many claim folders concurrently
type BatchProcessor struct {
	reviewer    Reviewer
	concurrency int
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(reviewer Reviewer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		reviewer:    reviewer,
		concurrency: concurrency,
	}
}

// ProcessDirs reviews dirs and returns one result per dir, in order.
func (b *BatchProcessor) ProcessDirs(ctx context.Context, dirs []string) []*ReviewResult {
	if len(dirs) == 0 {
		return []*ReviewResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	for _, dir := range dirs {
		pool.Submit(&ReviewJob{Dir: dir, Reviewer: b.reviewer})
	}
	results := pool.Wait()

	out := make([]*ReviewResult, len(dirs))
	for i, dir := range dirs {
		if i >= len(results) {
			// never submitted, the context ended first
			out[i] = &ReviewResult{Dir: dir, Error: context.Cause(ctx)}
			continue
		}
		if r, ok := results[i].(*ReviewResult); ok {
			out[i] = r
		} else {
			out[i] = &ReviewResult{Dir: dir, Error: results[i].GetError()}
		}
	}
	return out
}

// ProcessPath reviews the claim folders listed by path (see ClaimDirs).
func (b *BatchProcessor) ProcessPath(ctx context.Context, path string) ([]*ReviewResult, error) {
	dirs, err := ClaimDirs(path)
	if err != nil {
		return nil, err
	}
	return b.ProcessDirs(ctx, dirs), nil
}

// ClaimDirs resolves the batch input. A directory yields its non-hidden
// subdirectories; a file is read as a list of folders.
func ClaimDirs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat batch input: %w", err)
	}
	if !info.IsDir() {
		return ReadClaimDirs(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadClaimDirs reads claim folders from a file, one per line. Blank lines
// and # comments are skipped, duplicates dropped, and relative paths resolved
// against the list file's directory.
func ReadClaimDirs(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(listPath)
	var dirs []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		line = filepath.Clean(line)
		if !seen[line] {
			seen[line] = true
			dirs = append(dirs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return dirs, nil
}
