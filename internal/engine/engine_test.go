package engine

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func TestRenderArgsIncludeConstraints(t *testing.T) {
	var captured []string
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string{name}, args...)
		// 即終了する実在コマンドに差し替えて引数だけ検証する
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = orig }()

	cli := NewCLI(Options{Binary: "compositor-test", MaxHeapMB: 256})
	comp := Composition{Width: 1080, Height: 1920, FPS: 30, DurationInFrames: 150}
	err := cli.Render(context.Background(), "/tmp/design.json", comp, "/tmp/out.mp4", nil)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	joined := strings.Join(captured, " ")
	for _, want := range []string{
		"compositor-test render",
		"--design /tmp/design.json",
		"--output /tmp/out.mp4",
		"--width 1080",
		"--height 1920",
		"--fps 30",
		"--frames 150",
		"--concurrency 1",
		"--disable-gpu",
		"--max-heap-mb 256",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
}

func TestProbeFailure(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	}
	defer func() { commandContext = orig }()

	cli := NewCLI(Options{})
	if err := cli.Probe(context.Background(), "/tmp/design.json"); err == nil {
		t.Fatal("expected error from failing probe")
	}
}

func TestProbeRequiresDesign(t *testing.T) {
	cli := NewCLI(Options{})
	if err := cli.Probe(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty design path")
	}
}

func TestRenderParsesFrameEvents(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		script := `printf '%s\n' '{"renderedFrames":10,"encodedFrames":5}' 'not json' '{"renderedFrames":20,"encodedFrames":18}'`
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	defer func() { commandContext = orig }()

	var events []FrameEvent
	cli := NewCLI(Options{})
	err := cli.Render(context.Background(), "/tmp/design.json", Composition{Width: 1, Height: 1, FPS: 30, DurationInFrames: 30}, "/tmp/out.mp4", func(e FrameEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if events[1].EncodedFrames != 18 {
		t.Fatalf("unexpected last event: %+v", events[1])
	}
}
