package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/dunamismax/pixelbatch/internal/store"
	"github.com/dunamismax/pixelbatch/internal/transform"
	"github.com/rs/zerolog"
)

func TestCoordinatorRejectsDisallowedExtension(t *testing.T) {
	coord, history, opts := newTestCoordinator(t, Deps{})

	files := []SourceFile{
		{Name: "a.png", Data: buildTestPNG(t, 20, 10)},
		{Name: "b.exe", Data: []byte("MZ")},
		{Name: "c.jpg", Data: buildTestPNG(t, 20, 10)},
	}
	_, err := coord.Run(context.Background(), files, domain.TransformRequest{Width: 10})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	assertNoRows(t, history)
	for _, dir := range []string{opts.StagingDir, opts.OutputDir} {
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s to be untouched, stat err=%v", dir, err)
		}
	}
}

func TestCoordinatorRejectsEmptyBatchAndMissingSize(t *testing.T) {
	coord, history, _ := newTestCoordinator(t, Deps{})

	if _, err := coord.Run(context.Background(), nil, domain.TransformRequest{Width: 10}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty batch, got %v", err)
	}

	files := []SourceFile{{Name: "a.png", Data: buildTestPNG(t, 20, 10)}}
	if _, err := coord.Run(context.Background(), files, domain.TransformRequest{}); !errors.Is(err, domain.ErrInvalidDimensions) {
		t.Fatalf("expected ErrInvalidDimensions, got %v", err)
	}
	if _, err := coord.Run(context.Background(), files, domain.TransformRequest{Width: -4}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative width, got %v", err)
	}
	assertNoRows(t, history)
}

func TestCoordinatorNamesFitOutputByTargetBox(t *testing.T) {
	coord, history, _ := newTestCoordinator(t, Deps{})

	files := []SourceFile{{Name: "a.png", Data: buildTestPNG(t, 200, 100)}}
	out, err := coord.Run(context.Background(), files, domain.TransformRequest{Width: 100, Height: 100, ResizeMode: domain.ResizeFit, Format: "png"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	res := out.Results[0]
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.OutputName != "a_100x100.png" {
		t.Fatalf("expected a_100x100.png, got %s", res.OutputName)
	}
	if res.Width != 100 || res.Height != 50 {
		t.Fatalf("expected fitted image 100x50, got %dx%d", res.Width, res.Height)
	}

	rows, err := history.Recent(context.Background(), domain.HistoryQuery{})
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 1 || rows[0].Width != 100 || rows[0].Height != 100 || rows[0].OutputName != "a_100x100.png" {
		t.Fatalf("expected history row for the 100x100 target, got %+v", rows)
	}
}

func TestCoordinatorCompressOnlyOverridesPreset(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Deps{})

	files := []SourceFile{{Name: "a.png", Data: buildTestPNG(t, 200, 100)}}
	out, err := coord.Run(context.Background(), files, domain.TransformRequest{Preset: "instagram_story", CompressOnly: true, Format: "png"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	res := out.Results[0]
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.OutputName != "a_200x100.png" || res.Width != 200 || res.Height != 100 {
		t.Fatalf("expected source-sized a_200x100.png, got %s at %dx%d", res.OutputName, res.Width, res.Height)
	}
	if res.Stages[0].Stage != transform.StageResize || res.Stages[0].Status != transform.StatusNotRequested {
		t.Fatalf("expected resize not requested, got %+v", res.Stages[0])
	}
}

func TestCoordinatorCorruptFileIsolated(t *testing.T) {
	coord, history, _ := newTestCoordinator(t, Deps{})

	files := []SourceFile{
		{Name: "good.png", Data: buildTestPNG(t, 40, 20)},
		{Name: "bad.png", Data: []byte("this is not a png")},
	}
	out, err := coord.Run(context.Background(), files, domain.TransformRequest{Width: 20, LockAspect: true, Format: "png"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	good, bad := out.Results[0], out.Results[1]
	if !good.Success() || good.OriginalName != "good.png" {
		t.Fatalf("expected first result to be good.png success, got %+v", good)
	}
	if good.OutputName != "good_20x10.png" {
		t.Fatalf("expected good_20x10.png, got %s", good.OutputName)
	}
	if !errors.Is(bad.Err, domain.ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage for bad.png, got %v", bad.Err)
	}
	if bad.Reason == "" || bad.OutputPath != "" || bad.OriginalPath != "" {
		t.Fatalf("expected failure-shaped result without paths, got %+v", bad)
	}

	entries := readArchive(t, out.Archive)
	if len(entries) != 1 || entries[0].name != "good_20x10.png" {
		t.Fatalf("expected archive with only good_20x10.png, got %+v", entries)
	}
	onDisk, err := os.ReadFile(good.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(onDisk, entries[0].data) {
		t.Fatal("expected archive entry to match output bytes")
	}
	if filepath.Base(out.ArchivePath) != ArchiveName {
		t.Fatalf("expected archive saved as %s, got %q", ArchiveName, out.ArchivePath)
	}

	rows, err := history.Recent(context.Background(), domain.HistoryQuery{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 1 || rows[0].OriginalName != "good.png" || rows[0].Format != "PNG" {
		t.Fatalf("expected one PNG history row for good.png, got %+v", rows)
	}
}

func TestCoordinatorSingleFilePreset(t *testing.T) {
	coord, _, _ := newTestCoordinator(t, Deps{})

	for _, lock := range []bool{false, true} {
		out, err := coord.Run(context.Background(), []SourceFile{{Name: "story.png", Data: buildTestPNG(t, 30, 30)}}, domain.TransformRequest{
			Preset:     "instagram_story",
			LockAspect: lock,
		})
		if err != nil {
			t.Fatalf("run batch: %v", err)
		}
		res := out.Results[0]
		if !res.Success() {
			t.Fatalf("expected success, got %v", res.Err)
		}
		if res.Width != 1080 || res.Height != 1920 {
			t.Fatalf("lock=%v: expected 1080x1920, got %dx%d", lock, res.Width, res.Height)
		}
		if out.Archive != nil || out.ArchivePath != "" {
			t.Fatal("expected no archive for a single file")
		}
	}
}

func TestCoordinatorPreservesSubmissionOrder(t *testing.T) {
	// Earlier files take longer, so completion order is the reverse of
	// submission order.
	slow := segmenterFunc(func(_ context.Context, img image.Image) (image.Image, error) {
		time.Sleep(time.Duration(img.Bounds().Dx()) * time.Millisecond)
		return img, nil
	})
	coord, _, _ := newTestCoordinator(t, Deps{Segmenter: slow})

	var files []SourceFile
	for i, w := range []int{60, 45, 30, 15, 5} {
		files = append(files, SourceFile{Name: string(rune('a'+i)) + ".png", Data: buildTestPNG(t, w, 5)})
	}

	out, err := coord.Run(context.Background(), files, domain.TransformRequest{CompressOnly: true, RemoveBackground: true, Format: "png"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(out.Results) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(out.Results))
	}
	for i, res := range out.Results {
		if res.Index != i || res.OriginalName != files[i].Name {
			t.Fatalf("result %d: expected %s, got index=%d name=%s", i, files[i].Name, res.Index, res.OriginalName)
		}
		if !res.Success() {
			t.Fatalf("result %d failed: %v", i, res.Err)
		}
	}

	entries := readArchive(t, out.Archive)
	if len(entries) != len(files) {
		t.Fatalf("expected %d archive entries, got %d", len(files), len(entries))
	}
	for i, e := range entries {
		if e.name != out.Results[i].OutputName {
			t.Fatalf("archive entry %d: expected %s, got %s", i, out.Results[i].OutputName, e.name)
		}
	}
}

func TestRunnerFileTooLarge(t *testing.T) {
	history := store.NewMemoryStore()
	opts := testOptions(t)
	opts.MaxFileBytes = 64
	runner := NewRunner(opts, Deps{History: history, Logger: zerolog.Nop()})

	res := runner.Run(context.Background(), "b1", 0, SourceFile{Name: "big.png", Data: buildTestPNG(t, 50, 50)}, normalized(domain.TransformRequest{Width: 10}))
	if !errors.Is(res.Err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", res.Err)
	}
	assertNoRows(t, history)
}

func TestRunnerFlattensTransparencyForJPEG(t *testing.T) {
	runner := NewRunner(testOptions(t), Deps{Logger: zerolog.Nop()})

	transparent := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := png.Encode(&buf, transparent); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	res := runner.Run(context.Background(), "b1", 0, SourceFile{Name: "ghost.png", Data: buf.Bytes()}, normalized(domain.TransformRequest{CompressOnly: true}))
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.OutputName != "ghost_16x16.jpg" || res.Format != "JPG" {
		t.Fatalf("unexpected output %s format %s", res.OutputName, res.Format)
	}
	img, format, err := transform.Decode(res.Data())
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" {
		t.Fatalf("expected jpeg output, got %s", format)
	}
	if c := img.NRGBAAt(8, 8); c.R < 245 || c.G < 245 || c.B < 245 {
		t.Fatalf("expected white fill, got %+v", c)
	}
}

func TestRunnerRecordsStageOutcomes(t *testing.T) {
	runner := NewRunner(testOptions(t), Deps{Logger: zerolog.Nop()})

	req := normalized(domain.TransformRequest{
		Width:            20,
		Height:           20,
		ResizeMode:       domain.ResizePad,
		RemoveBackground: true,
		Filter:           domain.FilterSepia,
		WatermarkPath:    filepath.Join(t.TempDir(), "missing.png"),
		WatermarkText:    "hi",
		Format:           "png",
	})
	res := runner.Run(context.Background(), "b1", 0, SourceFile{Name: "x.png", Data: buildTestPNG(t, 40, 20)}, req)
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}

	want := []struct {
		stage  string
		status transform.Status
	}{
		{transform.StageResize, transform.StatusApplied},
		{transform.StageBackground, transform.StatusFellBack},
		{transform.StageFilter, transform.StatusApplied},
		{transform.StageWatermarkMark, transform.StatusSkipped},
		{transform.StageWatermarkText, transform.StatusApplied},
		{transform.StageMetadata, transform.StatusSkipped},
	}
	if len(res.Stages) != len(want) {
		t.Fatalf("expected %d stage outcomes, got %+v", len(want), res.Stages)
	}
	for i, w := range want {
		got := res.Stages[i]
		if got.Stage != w.stage || got.Status != w.status {
			t.Fatalf("stage %d: expected %s/%s, got %s/%s (%s)", i, w.stage, w.status, got.Stage, got.Status, got.Reason)
		}
	}
	if res.Width != 20 || res.Height != 20 {
		t.Fatalf("expected pad output 20x20, got %dx%d", res.Width, res.Height)
	}
}

func TestRunnerHistoryFailureDoesNotFailFile(t *testing.T) {
	runner := NewRunner(testOptions(t), Deps{History: failingHistory{}, Logger: zerolog.Nop()})

	res := runner.Run(context.Background(), "b1", 0, SourceFile{Name: "ok.png", Data: buildTestPNG(t, 10, 10)}, normalized(domain.TransformRequest{Width: 5, Format: "png"}))
	if !res.Success() {
		t.Fatalf("expected success despite history failure, got %v", res.Err)
	}
}

func TestRunnerMirrorsOutput(t *testing.T) {
	writer := &memoryWriter{objects: make(map[string][]byte)}
	runner := NewRunner(testOptions(t), Deps{
		Publisher: ObjectStorePublisher{Storage: writer, Prefix: "mirror"},
		Logger:    zerolog.Nop(),
	})

	res := runner.Run(context.Background(), "b1", 2, SourceFile{Name: "m.png", Data: buildTestPNG(t, 10, 10)}, normalized(domain.TransformRequest{Width: 5, Format: "webp"}))
	if !res.Success() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.RemoteKey != "mirror/b1/2/m_5x10.webp" {
		t.Fatalf("unexpected remote key %q", res.RemoteKey)
	}
	if !bytes.Equal(writer.objects[res.RemoteKey], res.Data()) {
		t.Fatal("expected mirrored bytes to match output")
	}
	if writer.contentTypes[res.RemoteKey] != "image/webp" {
		t.Fatalf("expected image/webp, got %s", writer.contentTypes[res.RemoteKey])
	}
}

func newTestCoordinator(t *testing.T, deps Deps) (*Coordinator, *store.MemoryStore, Options) {
	t.Helper()

	history := store.NewMemoryStore()
	deps.History = history
	deps.Logger = zerolog.Nop()
	opts := testOptions(t)
	return NewCoordinator(opts, deps), history, opts
}

func testOptions(t *testing.T) Options {
	t.Helper()

	root := t.TempDir()
	opts := DefaultOptions()
	opts.StagingDir = filepath.Join(root, "uploads")
	opts.OutputDir = filepath.Join(root, "outputs")
	opts.Workers = 4
	opts.ModelTimeout = 2 * time.Second
	return opts
}

func normalized(req domain.TransformRequest) domain.TransformRequest {
	return req.Normalize()
}

func assertNoRows(t *testing.T, history store.HistoryStore) {
	t.Helper()

	rows, err := history.Recent(context.Background(), domain.HistoryQuery{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no history rows, got %d", len(rows))
	}
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

type segmenterFunc func(ctx context.Context, img image.Image) (image.Image, error)

func (f segmenterFunc) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	return f(ctx, img)
}

type failingHistory struct{}

func (failingHistory) Record(context.Context, domain.HistoryEntry) error {
	return domain.ErrPersistenceFailure
}

func (failingHistory) Recent(context.Context, domain.HistoryQuery) ([]domain.HistoryEntry, error) {
	return nil, nil
}

type memoryWriter struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func (w *memoryWriter) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.contentTypes == nil {
		w.contentTypes = make(map[string]string)
	}
	w.objects[key] = append([]byte(nil), data...)
	w.contentTypes[key] = contentType
	return nil
}
