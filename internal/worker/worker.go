// Package worker はレンダーワーカープロセスの実行本体を提供します。
// 1つのデザインドキュメントを1本の動画ファイルへ変換し、進捗を
// ファイルチャネルへ書き込みます。呼び出し元プロセスとはスクラッチ
// ファイル・進捗ファイル・終了コード以外の共有を持ちません。
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nextbysam/cinetune-render/internal/design"
	"github.com/nextbysam/cinetune-render/internal/engine"
	"github.com/nextbysam/cinetune-render/internal/exports"
	"github.com/nextbysam/cinetune-render/internal/progress"
	"github.com/nextbysam/cinetune-render/internal/session"
)

// Engine はワーカーが利用するコンポジタの振る舞いを定義します。
type Engine interface {
	Probe(ctx context.Context, designPath string) error
	Render(ctx context.Context, designPath string, comp engine.Composition, outputPath string, progressFn func(engine.FrameEvent)) error
}

// Options はワーカー実行の設定です。
type Options struct {
	DesignPath   string
	SessionID    string
	ProgressPath string

	RendersDir         string
	Engine             Engine
	CompositionTimeout time.Duration
	RenderTimeout      time.Duration

	Logger *log.Logger
	Now    func() time.Time
}

// Run はデザインを読み込み、レンダリングを実行して出力ファイルの絶対パスを返します。
func Run(ctx context.Context, opts Options) (string, error) {
	if opts.DesignPath == "" {
		return "", errors.New("design path is required")
	}
	if opts.ProgressPath == "" {
		return "", errors.New("progress path is required")
	}
	if opts.Engine == nil {
		return "", errors.New("engine is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	compositionTimeout := opts.CompositionTimeout
	if compositionTimeout <= 0 {
		compositionTimeout = 30 * time.Second
	}
	renderTimeout := opts.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = 10 * time.Minute
	}

	d, err := design.LoadScratch(opts.DesignPath)
	if err != nil {
		return "", err
	}
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("design validation failed: %w", err)
	}

	comp := ResolveComposition(d)
	logger.Printf("resolved composition: %dx%d fps=%v frames=%d", comp.Width, comp.Height, comp.FPS, comp.DurationInFrames)

	probeCtx, cancelProbe := context.WithTimeout(ctx, compositionTimeout)
	defer cancelProbe()
	if err := opts.Engine.Probe(probeCtx, opts.DesignPath); err != nil {
		return "", err
	}

	outputDir := session.OutputDir(opts.RendersDir, opts.SessionID)
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	outputPath, err := filepath.Abs(filepath.Join(outputDir, exports.Filename(now())))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}

	writer := progress.NewWriter(opts.ProgressPath)
	totalFrames := comp.DurationInFrames

	renderCtx, cancelRender := context.WithTimeout(ctx, renderTimeout)
	defer cancelRender()
	err = opts.Engine.Render(renderCtx, opts.DesignPath, comp, outputPath, func(event engine.FrameEvent) {
		percent := event.EncodedFrames * 100 / totalFrames
		if writeErr := writer.Write(percent, event.RenderedFrames, event.EncodedFrames); writeErr != nil {
			logger.Printf("failed to write progress: %v", writeErr)
		}
	})
	if err != nil {
		return "", err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("output file missing after render: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("output file is empty: %s", outputPath)
	}

	if err := writer.Write(100, totalFrames, totalFrames); err != nil {
		logger.Printf("failed to write final progress: %v", err)
	}

	logger.Printf("render complete: %s (%d bytes)", outputPath, info.Size())
	return outputPath, nil
}
