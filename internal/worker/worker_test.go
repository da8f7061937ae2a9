package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextbysam/cinetune-render/internal/design"
	"github.com/nextbysam/cinetune-render/internal/engine"
)

func TestResolveCompositionFrameCount(t *testing.T) {
	d := &design.Design{
		Size:     &design.Size{Width: 1080, Height: 1920},
		FPS:      30,
		Duration: 10000,
	}
	comp := ResolveComposition(d)
	if comp.DurationInFrames != 300 {
		t.Fatalf("frames = %d, want 300", comp.DurationInFrames)
	}
}

func TestResolveCompositionZeroDuration(t *testing.T) {
	d := &design.Design{
		Size:     &design.Size{Width: 100, Height: 100},
		FPS:      30,
		Duration: 0,
	}
	comp := ResolveComposition(d)
	if comp.DurationInFrames < 1 {
		t.Fatalf("frames = %d, want at least 1", comp.DurationInFrames)
	}
}

func TestResolveCompositionRoundsUp(t *testing.T) {
	d := &design.Design{
		Size:     &design.Size{Width: 100, Height: 100},
		FPS:      30,
		Duration: 5001,
	}
	comp := ResolveComposition(d)
	if comp.DurationInFrames != 151 {
		t.Fatalf("frames = %d, want 151", comp.DurationInFrames)
	}
}

type fakeEngine struct {
	probeErr  error
	renderErr error
	events    []engine.FrameEvent
	writeFile bool
	comp      engine.Composition
}

func (f *fakeEngine) Probe(ctx context.Context, designPath string) error {
	return f.probeErr
}

func (f *fakeEngine) Render(ctx context.Context, designPath string, comp engine.Composition, outputPath string, progressFn func(engine.FrameEvent)) error {
	f.comp = comp
	if f.renderErr != nil {
		return f.renderErr
	}
	for _, e := range f.events {
		if progressFn != nil {
			progressFn(e)
		}
	}
	if f.writeFile {
		return os.WriteFile(outputPath, []byte("video"), 0o640)
	}
	return nil
}

func writeTestDesign(t *testing.T) string {
	t.Helper()
	d := &design.Design{
		Size: &design.Size{Width: 1080, Height: 1920},
		FPS:  30,
		TrackItems: []design.TrackItem{
			{ID: "v1", Type: design.ItemTypeVideo, Display: design.Window{From: 0, To: 5000}},
			{ID: "t1", Type: design.ItemTypeText, Display: design.Window{From: 1000, To: 4000}},
		},
	}
	d.Normalize()
	path, err := design.WriteScratch(t.TempDir(), "render-test", d)
	if err != nil {
		t.Fatalf("WriteScratch returned error: %v", err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	designPath := writeTestDesign(t)
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	rendersDir := t.TempDir()

	eng := &fakeEngine{
		writeFile: true,
		events: []engine.FrameEvent{
			{RenderedFrames: 75, EncodedFrames: 50},
			{RenderedFrames: 150, EncodedFrames: 150},
		},
	}

	outputPath, err := Run(context.Background(), Options{
		DesignPath:   designPath,
		SessionID:    "sess-1",
		ProgressPath: progressPath,
		RendersDir:   rendersDir,
		Engine:       eng,
		Now:          func() time.Time { return time.Date(2025, 8, 26, 18, 21, 41, 878_000_000, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// duration 5000ms / fps 30 → 150 フレーム
	if eng.comp.DurationInFrames != 150 {
		t.Fatalf("frames = %d, want 150", eng.comp.DurationInFrames)
	}

	if filepath.Base(outputPath) != "export_2025-08-26T18-21-41-878Z.mp4" {
		t.Fatalf("unexpected output filename: %s", outputPath)
	}
	if filepath.Base(filepath.Dir(outputPath)) != "sess-1" {
		t.Fatalf("output not under session dir: %s", outputPath)
	}
	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty output file: %v", err)
	}

	data, err := os.ReadFile(progressPath)
	if err != nil {
		t.Fatalf("failed to read progress: %v", err)
	}
	var record struct {
		Progress int `json:"progress"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("failed to parse progress: %v", err)
	}
	if record.Progress != 100 {
		t.Fatalf("final progress = %d, want 100", record.Progress)
	}
}

func TestRunProbeFailure(t *testing.T) {
	designPath := writeTestDesign(t)
	eng := &fakeEngine{probeErr: errors.New("composition probe timeout")}

	_, err := Run(context.Background(), Options{
		DesignPath:   designPath,
		SessionID:    "sess-1",
		ProgressPath: filepath.Join(t.TempDir(), "progress.json"),
		RendersDir:   t.TempDir(),
		Engine:       eng,
	})
	if err == nil {
		t.Fatal("expected error from probe failure")
	}
}

func TestRunMissingOutput(t *testing.T) {
	designPath := writeTestDesign(t)
	// エンジンが成功を返してもファイルが無ければ失敗させる
	eng := &fakeEngine{writeFile: false}

	_, err := Run(context.Background(), Options{
		DesignPath:   designPath,
		SessionID:    "sess-1",
		ProgressPath: filepath.Join(t.TempDir(), "progress.json"),
		RendersDir:   t.TempDir(),
		Engine:       eng,
	})
	if err == nil {
		t.Fatal("expected error for missing output file")
	}
}

func TestRunInvalidDesign(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "design.json")
	if err := os.WriteFile(path, []byte(`{"size":{"width":100,"height":100}}`), 0o640); err != nil {
		t.Fatalf("failed to write design: %v", err)
	}

	_, err := Run(context.Background(), Options{
		DesignPath:   path,
		SessionID:    "sess-1",
		ProgressPath: filepath.Join(dir, "progress.json"),
		RendersDir:   t.TempDir(),
		Engine:       &fakeEngine{},
	})
	if err == nil {
		t.Fatal("expected error for design without trackItems")
	}
}
