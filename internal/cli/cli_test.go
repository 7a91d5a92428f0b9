package cli

import (
	"archive/zip"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dunamismax/pixelbatch/internal/auth"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

func TestProcessWritesOutputsAndArchive(t *testing.T) {
	dir := isolateConfig(t)
	a := writePNG(t, dir, "a.png", 40, 20)
	b := writePNG(t, dir, "b.png", 40, 20)
	archive := filepath.Join(dir, "bundle.zip")

	stdout, _, err := execute(t, "process", "--width", "20", "--lock-aspect", "--format", "png", "--archive", archive, a, b)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for _, want := range []string{"OK    a.png", "OK    b.png", "a_20x10.png", "archive " + archive} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, stdout)
		}
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 archive entries, got %d", len(zr.File))
	}
}

func TestProcessSingleFileSkipsArchive(t *testing.T) {
	dir := isolateConfig(t)
	a := writePNG(t, dir, "a.png", 40, 20)
	archive := filepath.Join(dir, "bundle.zip")

	stdout, _, err := execute(t, "process", "--compress-only", "--archive", archive, a)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(stdout, "a_40x20.jpg") {
		t.Fatalf("expected compress-only output at source size, got:\n%s", stdout)
	}
	if _, err := os.Stat(archive); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no archive for a single file, stat err=%v", err)
	}
}

func TestProcessRejectsMissingSize(t *testing.T) {
	dir := isolateConfig(t)
	a := writePNG(t, dir, "a.png", 10, 10)

	_, _, err := execute(t, "process", a)
	if !errors.Is(err, domain.ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestProcessFailsWhenNothingSucceeds(t *testing.T) {
	dir := isolateConfig(t)
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	stdout, _, err := execute(t, "process", "--width", "10", bad)
	if err == nil {
		t.Fatal("expected error when every file fails")
	}
	if !strings.Contains(stdout, "FAIL  bad.png") {
		t.Fatalf("expected failure line, got:\n%s", stdout)
	}
}

func TestTokenCommand(t *testing.T) {
	isolateConfig(t)
	t.Setenv("PIXELBATCH_AUTH_JWTSECRET", "s3cret")

	stdout, _, err := execute(t, "token", "--user", "user-7")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseToken("s3cret", strings.TrimSpace(stdout))
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.UserID != "user-7" {
		t.Fatalf("expected user-7, got %q", claims.UserID)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	isolateConfig(t)

	if _, _, err := execute(t, "token", "--user", "user-7"); err == nil {
		t.Fatal("expected error without a configured secret")
	}
}

func TestHistoryCommandPrintsHeader(t *testing.T) {
	isolateConfig(t)

	stdout, _, err := execute(t, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.HasPrefix(stdout, "WHEN") {
		t.Fatalf("expected table header, got %q", stdout)
	}
}

func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PIXELBATCH_PIPELINE_STAGINGDIR", filepath.Join(dir, "uploads"))
	t.Setenv("PIXELBATCH_PIPELINE_OUTPUTDIR", filepath.Join(dir, "outputs"))
	t.Setenv("PIXELBATCH_DATABASE_DSN", "")
	t.Setenv("PIXELBATCH_STORAGE_ENDPOINT", "")
	t.Setenv("PIXELBATCH_MODEL_ENDPOINT", "")
	t.Setenv("PIXELBATCH_AUTH_JWTSECRET", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 9), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
