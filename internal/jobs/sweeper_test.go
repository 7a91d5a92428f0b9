package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSweepRemovesExpiredEntries(t *testing.T) {
	root := t.TempDir()
	outputs := filepath.Join(root, "outputs")
	thumbs := filepath.Join(root, "thumbs")

	oldBatch := filepath.Join(outputs, "old-batch")
	newBatch := filepath.Join(outputs, "new-batch")
	oldThumb := filepath.Join(thumbs, "abc.jpg")
	for _, dir := range []string{oldBatch, newBatch, thumbs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(oldBatch, "a.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(oldThumb, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour)
	for _, p := range []string{oldBatch, oldThumb} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	sweeper := NewSweeper([]string{outputs, thumbs, filepath.Join(root, "missing")}, 24*time.Hour, zerolog.Nop())
	removed, err := sweeper.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
	for _, p := range []string{oldBatch, oldThumb} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", p)
		}
	}
	if _, err := os.Stat(newBatch); err != nil {
		t.Fatalf("expected recent batch to survive: %v", err)
	}
}

func TestSweeperStartStop(t *testing.T) {
	sweeper := NewSweeper(nil, time.Hour, zerolog.Nop())
	if err := sweeper.Start("not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := sweeper.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sweeper.Stop(ctx)
}
