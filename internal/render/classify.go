package render

import "strings"

// エラーカテゴリ。ワーカーの標準エラー出力からの推定であり、ベストエフォートです。
const (
	CategoryTimeout           = "WORKER_TIMEOUT"
	CategoryResourceExhausted = "RESOURCE_EXHAUSTED"
	CategoryMediaFormat       = "MEDIA_FORMAT"
	CategoryCanceled          = "RENDER_CANCELED"
	CategoryOutputIntegrity   = "OUTPUT_INTEGRITY"
	CategorySpawn             = "SPAWN_ERROR"
	CategoryRenderFailed      = "RENDER_FAILED"
)

// 既知の失敗シグネチャ。判定順に意味があり、先にマッチしたものを採用します。
var errorSignatures = []struct {
	category   string
	substrings []string
}{
	{CategoryTimeout, []string{"timeout", "timeouterror"}},
	{CategoryResourceExhausted, []string{"enomem", "out of memory", "protocol error", "target closed"}},
	{CategoryMediaFormat, []string{"codec", "format", "encodingerror", "decoding failed"}},
}

// Classify はワーカーの診断出力からエラーカテゴリを推定します。
// 自由形式テキストへの部分文字列マッチであり、分類に失敗しても
// 呼び出し元には必ず生の診断末尾が別途渡ります。
func Classify(stderr string) string {
	lower := strings.ToLower(stderr)
	for _, sig := range errorSignatures {
		for _, sub := range sig.substrings {
			if strings.Contains(lower, sub) {
				return sig.category
			}
		}
	}
	return CategoryRenderFailed
}
