package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nextbysam/cinetune-render/internal/config"
	"github.com/nextbysam/cinetune-render/internal/design"
	"github.com/nextbysam/cinetune-render/internal/progress"
)

const (
	taskTypeRender = "render:execute"

	// 診断用に保持する標準エラー出力の末尾サイズ
	stderrTailBytes = 4 * 1024
)

// ErrNotRunning は実行中でないレンダーへのキャンセル要求を表します。
var ErrNotRunning = errors.New("render is not running")

// recordStore は Manager が利用するレンダー記録の永続化操作です。
type recordStore interface {
	Get(ctx context.Context, renderID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkRendering(ctx context.Context, renderID string) error
	MarkDone(ctx context.Context, renderID string, outputURL string) error
	MarkFailed(ctx context.Context, renderID string, errInfo *ErrorInfo) error
	Take(ctx context.Context, renderID string) (*Record, error)
	Delete(ctx context.Context, renderID string) error
}

// Manager はレンダーの投入・監視・キャンセルを担います。
// 各レンダーは独立したOSプロセス（renderworker）として実行され、
// Manager 側は argv・スクラッチファイル・進捗ファイル・終了コード
// だけでワーカーと協調します。
type Manager struct {
	cfg    *config.Config
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  recordStore
	logger *log.Logger

	// キャンセル用に実行中プロセスのハンドルのみ保持する
	mu       sync.Mutex
	procs    map[string]*os.Process
	canceled map[string]bool
}

// TaskPayload はレンダー実行ジョブのペイロードです。
type TaskPayload struct {
	RenderID   string `json:"renderId"`
	SessionID  string `json:"sessionId"`
	DesignPath string `json:"designPath"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	concurrency := cfg.RenderConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"render": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:      cfg,
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		logger:   logger,
		procs:    make(map[string]*os.Process),
		canceled: make(map[string]bool),
	}
	mux.HandleFunc(taskTypeRender, manager.handleRenderTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Start はデザインを検証し、レンダーを投入してレンダーIDを返します。
// 検証に失敗した場合、ワーカープロセスも進捗ファイルも一切作成されません。
func (m *Manager) Start(ctx context.Context, d *design.Design, sessionID string) (string, error) {
	if d == nil {
		return "", &design.Error{Code: "INVALID_DESIGN", Message: "デザインが指定されていません。"}
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return "", err
	}

	renderID := uuid.NewString()

	designPath, err := design.WriteScratch(m.cfg.ScratchDir, renderID, d)
	if err != nil {
		return "", fmt.Errorf("failed to prepare render: %w", err)
	}

	if err := progress.Init(renderID); err != nil {
		m.cleanupScratch(renderID)
		return "", fmt.Errorf("failed to initialize progress channel: %w", err)
	}

	record := &Record{
		RenderID:  renderID,
		SessionID: sessionID,
		Status:    StatusStarting,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		m.cleanupScratch(renderID)
		progress.Dispose(renderID)
		return "", err
	}

	payload := &TaskPayload{
		RenderID:   renderID,
		SessionID:  sessionID,
		DesignPath: designPath,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	// レンダーはファイルシステム上で冪等でないため再試行しない
	task := asynq.NewTask(taskTypeRender, body, asynq.Queue("render"))
	timeout := time.Duration(m.cfg.CompositionTimeoutS)*time.Second +
		time.Duration(m.cfg.RenderTimeoutMin)*time.Minute +
		time.Minute
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.Timeout(timeout)); err != nil {
		m.cleanupScratch(renderID)
		progress.Dispose(renderID)
		_ = m.store.Delete(ctx, renderID)
		return "", err
	}

	// 一度もポーリングされなかったレンダーの一時ファイルを時間ベースで回収する
	if expire := time.Duration(m.cfg.RenderExpireMinutes) * time.Minute; expire > 0 {
		time.AfterFunc(expire, func() {
			m.cleanupScratch(renderID)
			progress.Dispose(renderID)
		})
	}
	return renderID, nil
}

// Status はレンダー記録に進捗チャネルの最新値をマージして返します。
// 終端結果は取得と削除を原子的に行い、最初の読み手だけが受け取ります。
// 未知のID、および終端読み取り競合の敗者には (nil, nil) を返します。
func (m *Manager) Status(ctx context.Context, renderID string) (*StatusView, error) {
	record, err := m.store.Get(ctx, renderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if record.Status.Terminal() {
		taken, err := m.store.Take(ctx, renderID)
		if err != nil {
			return nil, err
		}
		if taken == nil {
			return nil, nil
		}
		record = taken
		defer progress.Dispose(renderID)
	}

	view := &StatusView{
		RenderID:  record.RenderID,
		Status:    record.Status,
		ElapsedMS: time.Since(record.CreatedAt).Milliseconds(),
	}

	if p, ok := progress.Read(renderID); ok {
		view.Progress = p.Progress
		view.RenderedFrames = p.RenderedFrames
		view.EncodedFrames = p.EncodedFrames
	}

	switch record.Status {
	case StatusCompleted:
		view.Progress = 100
		view.URL = record.OutputURL
	case StatusError:
		view.Error = record.Error
	}

	return view, nil
}

// Cancel は実行中のワーカープロセスを強制終了します。
func (m *Manager) Cancel(renderID string) error {
	m.mu.Lock()
	proc, ok := m.procs[renderID]
	if ok {
		m.canceled[renderID] = true
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}
	return proc.Kill()
}

func (m *Manager) handleRenderTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.RenderID == "" {
		return fmt.Errorf("missing renderId in payload")
	}

	defer m.cleanupScratch(payload.RenderID)

	cmd := exec.Command(m.cfg.WorkerPath,
		"--design="+payload.DesignPath,
		"--session="+payload.SessionID,
		"--progress="+progress.Path(payload.RenderID),
	)
	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		m.failRender(ctx, payload.RenderID, &ErrorInfo{
			Category: CategorySpawn,
			Message:  fmt.Sprintf("failed to spawn render worker: %v", err),
		})
		return nil
	}

	if err := m.store.MarkRendering(ctx, payload.RenderID); err != nil && m.logger != nil {
		m.logger.Printf("failed to mark rendering render=%s: %v", payload.RenderID, err)
	}

	m.mu.Lock()
	m.procs[payload.RenderID] = cmd.Process
	m.mu.Unlock()

	waitErr := cmd.Wait()

	m.mu.Lock()
	delete(m.procs, payload.RenderID)
	wasCanceled := m.canceled[payload.RenderID]
	delete(m.canceled, payload.RenderID)
	m.mu.Unlock()

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		tail := stderr.String()
		category := Classify(tail)
		if wasCanceled {
			category = CategoryCanceled
		}
		m.failRender(ctx, payload.RenderID, &ErrorInfo{
			Category: category,
			Message:  fmt.Sprintf("render worker exited with code %d", exitCode),
			ExitCode: exitCode,
			Stderr:   tail,
		})
		return nil
	}

	outputPath, err := ParseWorkerOutput(stdout.Bytes())
	if err != nil {
		// 終了コード0でも契約違反の出力は成功として扱わない
		m.failRender(ctx, payload.RenderID, &ErrorInfo{
			Category: CategoryOutputIntegrity,
			Message:  err.Error(),
			Stderr:   stderr.String(),
		})
		return nil
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		m.failRender(ctx, payload.RenderID, &ErrorInfo{
			Category: CategoryOutputIntegrity,
			Message:  fmt.Sprintf("output file missing or empty: %s", outputPath),
			Stderr:   stderr.String(),
		})
		return nil
	}

	if err := m.store.MarkDone(ctx, payload.RenderID, outputPath); err != nil && m.logger != nil {
		m.logger.Printf("failed to mark done render=%s: %v", payload.RenderID, err)
	}
	if m.logger != nil {
		m.logger.Printf("render completed render=%s output=%s size=%d", payload.RenderID, outputPath, info.Size())
	}
	return nil
}

func (m *Manager) failRender(ctx context.Context, renderID string, errInfo *ErrorInfo) {
	if err := m.store.MarkFailed(ctx, renderID, errInfo); err != nil && m.logger != nil {
		m.logger.Printf("failed to mark failed render=%s: %v", renderID, err)
	}
	if m.logger != nil {
		m.logger.Printf("render failed render=%s category=%s: %s", renderID, errInfo.Category, errInfo.Message)
	}
}

// スクラッチディレクトリの削除はベストエフォートで、結果へ影響させない
func (m *Manager) cleanupScratch(renderID string) {
	dir := design.ScratchDirFor(m.cfg.ScratchDir, renderID)
	if err := os.RemoveAll(dir); err != nil && m.logger != nil {
		m.logger.Printf("failed to remove scratch dir render=%s: %v", renderID, err)
	}
}
