package design

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const scratchFilename = "design.json"

// WriteScratch は正規化済みデザインをレンダーIDごとのスクラッチディレクトリへ保存し、
// 保存先ファイルのパスを返します。ワーカープロセスへの入力はこのファイルだけです。
func WriteScratch(scratchDir, renderID string, d *Design) (string, error) {
	if d == nil {
		return "", fmt.Errorf("design is nil")
	}
	if renderID == "" {
		return "", fmt.Errorf("renderID is required")
	}

	dir := filepath.Join(scratchDir, renderID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}

	path := filepath.Join(dir, scratchFilename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to open scratch file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	return path, nil
}

// LoadScratch はスクラッチファイルからデザインを読み込み、正規化して返します。
func LoadScratch(path string) (*Design, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design file: %w", err)
	}
	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse design file: %w", err)
	}
	d.Normalize()
	return &d, nil
}

// ScratchDirFor はレンダーIDに対応するスクラッチディレクトリを返します。
func ScratchDirFor(scratchDir, renderID string) string {
	return filepath.Join(scratchDir, renderID)
}
