// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// セッション設定
	SessionSecret string // セッション署名用の秘密鍵

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// レンダリング設定
	RendersDir          string // 完成動画の出力ベースディレクトリ
	ScratchDir          string // デザインJSONの一時保存ディレクトリ
	WorkerPath          string // renderworker 実行ファイルのパス
	EnginePath          string // コンポジタ実行ファイルのパス
	EngineMaxHeapMB     int    // コンポジタのヒープ上限（MB）
	CompositionTimeoutS int    // コンポジション解決フェーズのタイムアウト（秒）
	RenderTimeoutMin    int    // レンダリング全体のタイムアウト（分）
	MaxDesignBytes      int64  // 受け付けるデザインJSONの最大サイズ（バイト）

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL
	RenderConcurrency   int    // 同時に起動するワーカープロセス数の上限
	RenderExpireMinutes int    // レンダー記録の有効期限（分）

	// 成果物一覧設定
	ExportListingScope string // "all" または "session"
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// セッション設定
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// レンダリング設定
		RendersDir:          getEnv("RENDERS_DIR", "renders"),
		ScratchDir:          getEnv("SCRATCH_DIR", filepath.Join(os.TempDir(), "render-designs")),
		WorkerPath:          getEnv("WORKER_PATH", "renderworker"),
		EnginePath:          getEnv("ENGINE_PATH", "cinetune-compositor"),
		EngineMaxHeapMB:     getEnvAsInt("ENGINE_MAX_HEAP_MB", 512),
		CompositionTimeoutS: getEnvAsInt("COMPOSITION_TIMEOUT_SECONDS", 30),
		RenderTimeoutMin:    getEnvAsInt("RENDER_TIMEOUT_MINUTES", 10),
		MaxDesignBytes:      getEnvAsInt64("MAX_DESIGN_BYTES", 10*1024*1024), // 10MB

		// ジョブ/キュー設定
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		RenderConcurrency:   getEnvAsInt("RENDER_CONCURRENCY", 4),
		RenderExpireMinutes: getEnvAsInt("RENDER_EXPIRE_MINUTES", 30),

		// 成果物一覧設定
		ExportListingScope: getEnv("EXPORT_LISTING_SCOPE", "all"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では一部設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.WorkerPath == "" {
			return fmt.Errorf("WORKER_PATH is required in release mode")
		}
		if c.EnginePath == "" {
			return fmt.Errorf("ENGINE_PATH is required in release mode")
		}
	}

	if c.ExportListingScope != "all" && c.ExportListingScope != "session" {
		return fmt.Errorf("EXPORT_LISTING_SCOPE must be \"all\" or \"session\" (received: %s)", c.ExportListingScope)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
