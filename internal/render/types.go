package render

import "time"

// Status はレンダーの実行状態を表します。
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRendering Status = "rendering"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ErrorInfo はレンダー失敗時のエラー情報を保持します。
// Stderr はワーカーの標準エラー出力の末尾（切り詰め済み）です。
type ErrorInfo struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	ExitCode int    `json:"exitCode,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Record はレンダーの現在状態を表します。
type Record struct {
	RenderID  string     `json:"renderId"`
	SessionID string     `json:"sessionId"`
	Status    Status     `json:"status"`
	OutputURL string     `json:"outputUrl,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// StatusView は status 操作の呼び出し元へ返す表現です。
// 進捗チャネルの最新値をマージした結果を含みます。
type StatusView struct {
	RenderID       string     `json:"renderId"`
	Status         Status     `json:"status"`
	Progress       int        `json:"progress"`
	ElapsedMS      int64      `json:"elapsed"`
	RenderedFrames int        `json:"renderedFrames,omitempty"`
	EncodedFrames  int        `json:"encodedFrames,omitempty"`
	URL            string     `json:"url,omitempty"`
	Error          *ErrorInfo `json:"error,omitempty"`
}
