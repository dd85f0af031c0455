package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/claimdesk/internal/wizard"
)

type mockReviewer struct {
	failDirs map[string]bool
}

func (m *mockReviewer) Review(ctx context.Context, dir string) (*wizard.View, error) {
	time.Sleep(5 * time.Millisecond)
	if m.failDirs[dir] {
		return &wizard.View{ID: filepath.Base(dir)}, errors.New("review failed")
	}
	return &wizard.View{ID: filepath.Base(dir)}, nil
}

func TestBatchProcessor_ProcessDirs(t *testing.T) {
	reviewer := &mockReviewer{failDirs: map[string]bool{"claims/b": true}}
	processor := NewBatchProcessor(reviewer, 2)

	dirs := []string{"claims/a", "claims/b", "claims/c"}
	results := processor.ProcessDirs(context.Background(), dirs)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Dir != dirs[i] {
			t.Errorf("result %d is for %s, want %s", i, res.Dir, dirs[i])
		}
		if res.View == nil {
			t.Errorf("expected a view for %s", res.Dir)
		}
	}
	if results[1].Error == nil {
		t.Error("expected the failing claim to report its error")
	}
	if results[0].Error != nil || results[2].Error != nil {
		t.Error("unexpected error for a passing claim")
	}
}

func TestBatchProcessor_ProcessDirs_Empty(t *testing.T) {
	results := NewBatchProcessor(&mockReviewer{}, 2).ProcessDirs(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessDirs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := NewBatchProcessor(&mockReviewer{}, 1).ProcessDirs(ctx, []string{"a", "b"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Error, context.Canceled) {
			t.Errorf("%s: expected context.Canceled, got %v", r.Dir, r.Error)
		}
	}
}

func TestReadClaimDirs(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "claims.txt")
	content := strings.Join([]string{
		"claim-1",
		"# comment",
		"",
		"  claim-2  ",
		"/abs/claim-3",
		"claim-1",
	}, "\n")
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	dirs, err := ReadClaimDirs(list)
	if err != nil {
		t.Fatalf("ReadClaimDirs() error = %v", err)
	}

	want := []string{filepath.Join(dir, "claim-1"), filepath.Join(dir, "claim-2"), "/abs/claim-3"}
	if !reflect.DeepEqual(dirs, want) {
		t.Errorf("ReadClaimDirs() = %v, want %v", dirs, want)
	}
}

func TestReadClaimDirs_NonExistent(t *testing.T) {
	if _, err := ReadClaimDirs("no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestClaimDirs_Directory(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"claim-b", "claim-a", ".hidden"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dirs, err := ClaimDirs(root)
	if err != nil {
		t.Fatalf("ClaimDirs() error = %v", err)
	}
	want := []string{filepath.Join(root, "claim-a"), filepath.Join(root, "claim-b")}
	if !reflect.DeepEqual(dirs, want) {
		t.Errorf("ClaimDirs() = %v, want %v", dirs, want)
	}
}

func TestBatchProcessor_ProcessPath(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "claims.txt")
	if err := os.WriteFile(list, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := NewBatchProcessor(&mockReviewer{}, 2).ProcessPath(context.Background(), list)
	if err != nil {
		t.Fatalf("ProcessPath() error = %v", err)
	}
	if len(results) != 2 || results[0].View.ID != "a" {
		t.Errorf("unexpected results: %+v", results)
	}

	if _, err := NewBatchProcessor(&mockReviewer{}, 2).ProcessPath(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing batch input")
	}
}

func TestReviewResult_GetError(t *testing.T) {
	want := errors.New("boom")
	if (&ReviewResult{Error: want}).GetError() != want {
		t.Error("GetError should return the review error")
	}
}
