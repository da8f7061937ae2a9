// Package main はレンダーワーカープロセスのエントリーポイントです。
// APIサーバーから1レンダーにつき1プロセスとして起動され、成功時は
// 標準出力へちょうど1行のJSON（{"url":"<絶対パス>"}）を出力します。
// 診断メッセージはすべて標準エラー出力へ書き込みます。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/nextbysam/cinetune-render/internal/config"
	"github.com/nextbysam/cinetune-render/internal/engine"
	"github.com/nextbysam/cinetune-render/internal/worker"
)

func main() {
	designPath := flag.String("design", "", "レンダー対象のデザインJSONファイルへのパス")
	sessionID := flag.String("session", "", "出力先を決めるセッションID")
	progressPath := flag.String("progress", "", "進捗ファイルへのパス")
	flag.Parse()

	// 標準出力は結果行専用。ログは標準エラー出力へ
	logger := log.New(os.Stderr, "[renderworker] ", log.LstdFlags)

	if *designPath == "" || *progressPath == "" {
		logger.Println("usage: renderworker --design=<path> --session=<id> --progress=<path>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	eng := engine.NewCLI(engine.Options{
		Binary:    cfg.EnginePath,
		MaxHeapMB: cfg.EngineMaxHeapMB,
	})

	outputPath, err := worker.Run(context.Background(), worker.Options{
		DesignPath:         *designPath,
		SessionID:          *sessionID,
		ProgressPath:       *progressPath,
		RendersDir:         cfg.RendersDir,
		Engine:             eng,
		CompositionTimeout: time.Duration(cfg.CompositionTimeoutS) * time.Second,
		RenderTimeout:      time.Duration(cfg.RenderTimeoutMin) * time.Minute,
		Logger:             logger,
	})
	if err != nil {
		logger.Printf("render failed: %v", err)
		os.Exit(1)
	}

	result, err := json.Marshal(map[string]string{"url": outputPath})
	if err != nil {
		logger.Printf("failed to encode result: %v", err)
		os.Exit(1)
	}
	fmt.Println(string(result))
}
