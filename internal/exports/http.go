package exports

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/nextbysam/cinetune-render/internal/session"
)

// ListHandler は GET /api/exports のハンドラーを返します。
func ListHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := svc.List(session.FromContext(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "成果物一覧の取得に失敗しました。",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exports": entries})
	}
}

// DownloadHandler は GET /api/exports/download のハンドラーを返します。
// file クエリにベース相対パスを受け取り、ベース外のパスは拒否します。
func DownloadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		relPath := c.Query("file")
		if strings.TrimSpace(relPath) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "file パラメータを指定してください。",
			})
			return
		}

		file, info, err := svc.Open(relPath)
		if err != nil {
			if errors.Is(err, session.ErrOutsideBase) {
				c.JSON(http.StatusForbidden, gin.H{
					"code":    "ACCESS_DENIED",
					"message": "指定されたパスへのアクセスは許可されていません。",
				})
				return
			}
			if os.IsNotExist(err) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "EXPORT_NOT_FOUND",
					"message": "指定された成果物が見つかりませんでした。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "成果物の取得に失敗しました。",
			})
			return
		}
		defer file.Close()

		filename := info.Name()
		contentType := "video/mp4"
		if !strings.HasSuffix(filename, ".mp4") {
			if mt, err := mimetype.DetectFile(file.Name()); err == nil {
				contentType = mt.String()
			} else {
				contentType = "application/octet-stream"
			}
		}

		encodedName := url.PathEscape(filename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", filename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}
