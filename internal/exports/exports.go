// Package exports は完成したレンダー成果物の一覧と取得を提供します。
package exports

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nextbysam/cinetune-render/internal/session"
)

// Entry は成果物一覧の1件を表します。
type Entry struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	DownloadURL string    `json:"downloadUrl"`
}

// ファイル名形式: export_2025-08-26T18-21-41-878Z.mp4
// ファイルシステム安全のため ":" と "." を "-" に置換したISO8601を埋め込む
var stampPattern = regexp.MustCompile(`^export_(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z)\.mp4$`)

const stampLayout = "2006-01-02T15:04:05.000Z"

// Stamp は出力ファイル名に埋め込むタイムスタンプ文字列を返します。
func Stamp(t time.Time) string {
	s := t.UTC().Format(stampLayout)
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, ".", "-")
}

// Filename はタイムスタンプ入りの出力ファイル名を返します。
func Filename(t time.Time) string {
	return fmt.Sprintf("export_%s.mp4", Stamp(t))
}

// ParseStamp はファイル名から作成時刻を復元します。
// 形式が一致しない場合は ok=false を返し、呼び出し元は更新時刻へフォールバックします。
func ParseStamp(filename string) (time.Time, bool) {
	m := stampPattern.FindStringSubmatch(filename)
	if m == nil {
		return time.Time{}, false
	}
	b := []byte(m[1])
	b[13] = ':'
	b[16] = ':'
	b[19] = '.'
	t, err := time.Parse(stampLayout, string(b))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Service は成果物ディレクトリへの読み取り専用アクセスを提供します。
type Service struct {
	baseDir string
	scope   string
}

// NewService は Service を作成します。scope は "all" または "session" です。
func NewService(baseDir, scope string) *Service {
	return &Service{baseDir: baseDir, scope: scope}
}

// BaseDir は出力ベースディレクトリを返します。
func (s *Service) BaseDir() string {
	return s.baseDir
}

// List は成果物を新しい順に列挙します。
// scope が "session" の場合は呼び出し元セッションのディレクトリに限定します。
func (s *Service) List(sessionID string) ([]Entry, error) {
	root := s.baseDir
	if s.scope == "session" {
		root = session.OutputDir(s.baseDir, sessionID)
	}

	entries := []Entry{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".mp4") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		createdAt, ok := ParseStamp(d.Name())
		if !ok {
			createdAt = info.ModTime().UTC()
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return nil
		}

		entries = append(entries, Entry{
			ID:          strings.TrimSuffix(d.Name(), ".mp4"),
			Filename:    d.Name(),
			Path:        rel,
			Size:        info.Size(),
			CreatedAt:   createdAt,
			ModifiedAt:  info.ModTime().UTC(),
			DownloadURL: "/api/exports/download?file=" + url.QueryEscape(rel),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Open は ベース相対パスの成果物を開きます。ベース外のパスは拒否します。
func (s *Service) Open(relPath string) (*os.File, os.FileInfo, error) {
	if strings.TrimSpace(relPath) == "" {
		return nil, nil, fmt.Errorf("file path is required")
	}

	abs, err := session.Confine(s.baseDir, filepath.Join(s.baseDir, relPath))
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(abs)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("path is a directory")
	}
	return file, info, nil
}
