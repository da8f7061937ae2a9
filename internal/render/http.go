package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nextbysam/cinetune-render/internal/design"
	"github.com/nextbysam/cinetune-render/internal/session"
)

// Starter はレンダーを開始できるサービスが実装します。
type Starter interface {
	Start(ctx context.Context, d *design.Design, sessionID string) (string, error)
}

// Canceler は実行中のレンダーを中止できるサービスが実装します。
type Canceler interface {
	Cancel(renderID string) error
}

// StartRequest は POST /api/renders のリクエストボディです。
type StartRequest struct {
	Design *design.Design `json:"design"`
}

// StartHandler は POST /api/renders のハンドラーを返します。
// 受理した時点でレスポンスを返し、レンダーの完了は status のポーリングで観測します。
func StartHandler(svc Starter, maxBodyBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}

		var req StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"code":    "LIMIT_EXCEEDED",
					"message": "デザインJSONのサイズが上限を超えています。",
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "design を含むJSONボディを送信してください。",
			})
			return
		}

		renderID, err := svc.Start(c.Request.Context(), req.Design, session.FromContext(c))
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"renderId": renderID,
			"status":   "started",
		})
	}
}

// CancelHandler は POST /api/renders/:id/cancel のハンドラーを返します。
func CancelHandler(svc Canceler) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderID := c.Param("id")
		if renderID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "renderId を指定してください。",
			})
			return
		}

		if err := svc.Cancel(renderID); err != nil {
			if errors.Is(err, ErrNotRunning) {
				c.JSON(http.StatusConflict, gin.H{
					"code":    "RENDER_NOT_RUNNING",
					"message": "指定されたレンダーは実行中ではありません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "レンダーの中止に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"renderId": renderID,
			"status":   "canceling",
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	var designErr *design.Error
	var jsonErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &designErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    designErr.Code,
			"message": designErr.Message,
		})
	case errors.As(err, &jsonErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "デザインJSONの形式が正しくありません。",
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
