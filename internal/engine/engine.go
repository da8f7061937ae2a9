// Package engine は外部コンポジタCLIへのアダプタを提供します。
// コンポジタはブラックボックスとして扱い、起動引数と標準出力の
// 行単位JSONイベントだけを契約とします。
package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// FrameEvent はコンポジタが標準出力へ流すフレーム進捗イベントです。
type FrameEvent struct {
	RenderedFrames int `json:"renderedFrames"`
	EncodedFrames  int `json:"encodedFrames"`
}

// Composition はレンダリング対象のコンポジション定義です。
type Composition struct {
	Width            int
	Height           int
	FPS              float64
	DurationInFrames int
}

// Options は CLI クライアントの設定です。
type Options struct {
	Binary    string // コンポジタ実行ファイル
	MaxHeapMB int    // ヒープ上限（MB）
}

// CLI はコンポジタのコマンドラインクライアントです。
// ホスト環境を不安定にしないため、常に単一並列・GPU無効で起動します。
type CLI struct {
	binary    string
	maxHeapMB int
}

// NewCLI は CLI クライアントを作成します。
func NewCLI(opts Options) *CLI {
	binary := opts.Binary
	if binary == "" {
		binary = "cinetune-compositor"
	}
	maxHeap := opts.MaxHeapMB
	if maxHeap <= 0 {
		maxHeap = 512
	}
	return &CLI{binary: binary, maxHeapMB: maxHeap}
}

// Probe はデザインを読み込めるかをコンポジタに確認させます。
// メディアの解決やデコーダ初期化を含むため、呼び出し側でタイムアウトを設定します。
func (c *CLI) Probe(ctx context.Context, designPath string) error {
	if designPath == "" {
		return errors.New("design path required")
	}

	args := append([]string{"probe", "--design", designPath}, c.constraintArgs()...)
	cmd := commandContext(ctx, c.binary, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("composition probe timeout: %w", ctx.Err())
		}
		return fmt.Errorf("composition probe failed: %s: %w", strings.TrimSpace(output.String()), err)
	}
	return nil
}

// Render はデザインを1本の動画ファイルへレンダリングします。
// フレームイベントごとに progress コールバックを呼びます。
func (c *CLI) Render(ctx context.Context, designPath string, comp Composition, outputPath string, progress func(FrameEvent)) error {
	if designPath == "" {
		return errors.New("design path required")
	}
	if outputPath == "" {
		return errors.New("output path required")
	}

	args := []string{
		"render",
		"--design", designPath,
		"--output", outputPath,
		"--width", strconv.Itoa(comp.Width),
		"--height", strconv.Itoa(comp.Height),
		"--fps", strconv.FormatFloat(comp.FPS, 'f', -1, 64),
		"--frames", strconv.Itoa(comp.DurationInFrames),
		"--progress-json",
	}
	args = append(args, c.constraintArgs()...)

	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start compositor: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var event FrameEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if progress != nil {
			progress(event)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("read compositor output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("render timeout: %w", ctx.Err())
		}
		return fmt.Errorf("compositor failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// リソース制約下のホストを守るための固定フラグ
func (c *CLI) constraintArgs() []string {
	return []string{
		"--concurrency", "1",
		"--disable-gpu",
		"--max-heap-mb", strconv.Itoa(c.maxHeapMB),
	}
}
