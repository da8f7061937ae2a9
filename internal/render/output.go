package render

import (
	"encoding/json"
	"fmt"
	"strings"
)

// workerOutput はワーカーが成功時に標準出力へ書く唯一の行です。
type workerOutput struct {
	URL string `json:"url"`
}

// ParseWorkerOutput はワーカーの標準出力から成果物パスを取り出します。
// 契約は「JSONオブジェクト1行のみ」で、余分なバイトは破損として扱います。
func ParseWorkerOutput(stdout []byte) (string, error) {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return "", fmt.Errorf("worker produced no output")
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("worker produced more than one output line")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var out workerOutput
	if err := dec.Decode(&out); err != nil {
		return "", fmt.Errorf("worker output is not valid JSON: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("worker output contains trailing data")
	}
	if out.URL == "" {
		return "", fmt.Errorf("worker output is missing url")
	}
	return out.URL, nil
}
