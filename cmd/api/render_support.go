package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nextbysam/cinetune-render/internal/config"
	"github.com/nextbysam/cinetune-render/internal/exports"
	"github.com/nextbysam/cinetune-render/internal/render"
)

// setupRoutes はレンダー関連の依存を組み立ててルーティングを登録します。
func setupRoutes(router *gin.Engine, cfg *config.Config) (*render.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	ttl := time.Duration(cfg.RenderExpireMinutes) * time.Minute
	store := render.NewStore(rdb, ttl)

	logger := log.New(os.Stderr, "[render] ", log.LstdFlags)
	manager, err := render.NewManager(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize render manager: %w", err)
	}

	exportSvc := exports.NewService(cfg.RendersDir, cfg.ExportListingScope)

	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		renders := api.Group("/renders")
		{
			renders.POST("", render.StartHandler(manager, cfg.MaxDesignBytes))
			renders.GET("/:id", statusHandler(manager))
			renders.POST("/:id/cancel", render.CancelHandler(manager))
		}

		ex := api.Group("/exports")
		{
			ex.GET("", exports.ListHandler(exportSvc))
			ex.GET("/download", exports.DownloadHandler(exportSvc))
		}
	}

	return manager, nil
}

// statusHandler は GET /api/renders/:id のハンドラーを返します。
func statusHandler(manager *render.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderID := c.Param("id")

		view, err := manager.Status(c.Request.Context(), renderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "レンダー状態の取得に失敗しました。",
			})
			return
		}
		if view == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "RENDER_NOT_FOUND",
				"message": "指定されたレンダーが見つかりませんでした。",
				"status":  "not_found",
			})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}
