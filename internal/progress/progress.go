// Package progress はファイルベースの進捗チャネルを提供します。
// ワーカープロセスが書き込み、オーケストレーターが読み取る一方向の経路で、
// 毎回ドキュメント全体を上書きするため読み手は常に完全なJSONを観測します。
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record は進捗ファイルの内容を表します。
type Record struct {
	Progress       int   `json:"progress"`
	Timestamp      int64 `json:"timestamp"`
	RenderedFrames int   `json:"renderedFrames,omitempty"`
	EncodedFrames  int   `json:"encodedFrames,omitempty"`
}

// Path はレンダーIDに対応する進捗ファイルのパスを返します。
func Path(renderID string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("render-progress-%s.json", renderID))
}

// Init はワーカー起動前に進捗0のファイルを作成します。
// 起動直後のポーリングが「ファイルなし」を観測しないための前準備です。
func Init(renderID string) error {
	return write(Path(renderID), Record{Progress: 0, Timestamp: time.Now().UnixMilli()})
}

// Read は最後に書き込まれた進捗を返します。
// ファイルが存在しない、または読めない場合は ok=false を返します。
func Read(renderID string) (Record, bool) {
	data, err := os.ReadFile(Path(renderID))
	if err != nil {
		return Record{}, false
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false
	}
	return record, true
}

// Dispose は進捗ファイルをベストエフォートで削除します。
// 削除の失敗は呼び出し元へ伝播させません。
func Dispose(renderID string) {
	_ = os.Remove(Path(renderID))
}

// Writer はワーカープロセス側の進捗書き込みを担います。
// progress は単調非減少で [0,100] に収めて書き込みます。
type Writer struct {
	path string
	last int
}

// NewWriter は進捗ファイルへの Writer を作成します。
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write は進捗を書き込みます。前回より小さい値は前回値に切り上げます。
func (w *Writer) Write(percent, renderedFrames, encodedFrames int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < w.last {
		percent = w.last
	}
	w.last = percent

	return write(w.path, Record{
		Progress:       percent,
		Timestamp:      time.Now().UnixMilli(),
		RenderedFrames: renderedFrames,
		EncodedFrames:  encodedFrames,
	})
}

// 1回の書き込みで完全なドキュメントを出すことが読み手側の整合性の前提
func write(path string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o640); err != nil {
		return fmt.Errorf("failed to write progress file: %w", err)
	}
	return nil
}
