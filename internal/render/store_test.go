package render

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, 30*time.Minute)
}

func TestStoreUpsertAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	record := &Record{RenderID: "render-1", SessionID: "sess-1", Status: StatusStarting}
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, err := store.Get(ctx, "render-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.Status != StatusStarting || got.SessionID != "sess-1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.ExpiresAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", got)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := testStore(t)

	got, err := store.Get(context.Background(), "no-such-render")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing record, got %+v", got)
	}
}

func TestStoreTakeRemovesRecord(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	record := &Record{RenderID: "render-1", Status: StatusCompleted, OutputURL: "/out.mp4"}
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	taken, err := store.Take(ctx, "render-1")
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if taken == nil || taken.OutputURL != "/out.mp4" {
		t.Fatalf("unexpected record: %+v", taken)
	}

	// 取得と削除は不可分なので、2回目は何も受け取れない
	again, err := store.Take(ctx, "render-1")
	if err != nil {
		t.Fatalf("Take returned error: %v", err)
	}
	if again != nil {
		t.Fatalf("expected nil on second take, got %+v", again)
	}

	got, err := store.Get(ctx, "render-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected record to be gone, got %+v", got)
	}
}

func TestStoreStateTransitions(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{RenderID: "render-1", Status: StatusStarting}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	if err := store.MarkRendering(ctx, "render-1"); err != nil {
		t.Fatalf("MarkRendering returned error: %v", err)
	}
	got, _ := store.Get(ctx, "render-1")
	if got.Status != StatusRendering {
		t.Fatalf("status = %s, want rendering", got.Status)
	}

	if err := store.MarkDone(ctx, "render-1", "/out.mp4"); err != nil {
		t.Fatalf("MarkDone returned error: %v", err)
	}
	got, _ = store.Get(ctx, "render-1")
	if got.Status != StatusCompleted || got.OutputURL != "/out.mp4" || got.Error != nil {
		t.Fatalf("unexpected record after MarkDone: %+v", got)
	}
}

func TestStoreMarkFailedKeepsErrorInfo(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{RenderID: "render-1", Status: StatusRendering}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	errInfo := &ErrorInfo{Category: CategoryResourceExhausted, Message: "render worker exited with code 137", ExitCode: 137}
	if err := store.MarkFailed(ctx, "render-1", errInfo); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	got, _ := store.Get(ctx, "render-1")
	if got.Status != StatusError || got.Error == nil || got.Error.Category != CategoryResourceExhausted {
		t.Fatalf("unexpected record after MarkFailed: %+v", got)
	}
}

func TestStoreUpdateMissingRecord(t *testing.T) {
	store := testStore(t)

	if err := store.MarkDone(context.Background(), "no-such-render", "/out.mp4"); err == nil {
		t.Fatal("expected error for update of missing record")
	}
}
