// Package session は呼び出し元セッションの識別子導出と出力パスの名前空間化を提供します。
package session

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CookieName はセッションクッキーの名前です。
	CookieName = "ct_session"

	sessionKeyID = "session_id"

	// HeaderName は非ブラウザクライアント向けのセッションIDヘッダーです。
	// 指定された場合はクッキーより優先されます。
	HeaderName = "X-Session-Id"

	// AnonymousID はセッショントークンを導出できない場合の名前空間です。
	AnonymousID = "anonymous"

	maxIDLength = 64
)

// ErrOutsideBase はベースディレクトリ外へのアクセス要求を表します。
var ErrOutsideBase = errors.New("path is outside the output directory")

// Sanitize はセッショントークンをディレクトリ名として安全な形へ変換します。
// 英数字とハイフン・アンダースコア以外はハイフンに置換し、長さを制限します。
func Sanitize(token string) string {
	token = strings.TrimSpace(token)

	var b strings.Builder
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	sanitized := b.String()
	if len(sanitized) > maxIDLength {
		sanitized = sanitized[:maxIDLength]
	}
	if strings.Trim(sanitized, "-") == "" {
		return AnonymousID
	}
	return sanitized
}

// OutputDir はセッションごとの出力ディレクトリを返します。
func OutputDir(baseDir, token string) string {
	return filepath.Join(baseDir, Sanitize(token))
}

// Confine は path がベースディレクトリ配下に収まることを検証し、
// 絶対パスに解決して返します。パストラバーサルはここで遮断します。
func Confine(baseDir, path string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base dir: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil {
		return "", ErrOutsideBase
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideBase
	}
	return absPath, nil
}

// Middleware は訪問者にセッションIDを割り当てるミドルウェアを返します。
// クッキーセッションに session_id が無ければ UUID を発行して保存します。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if id, ok := s.Get(sessionKeyID).(string); !ok || id == "" {
			s.Set(sessionKeyID, uuid.NewString())
			_ = s.Save()
		}
		c.Next()
	}
}

// FromContext はリクエストからサニタイズ済みセッションIDを取り出します。
func FromContext(c *gin.Context) string {
	if header := c.GetHeader(HeaderName); strings.TrimSpace(header) != "" {
		return Sanitize(header)
	}
	s := sessions.Default(c)
	if id, ok := s.Get(sessionKeyID).(string); ok && id != "" {
		return Sanitize(id)
	}
	return AnonymousID
}
