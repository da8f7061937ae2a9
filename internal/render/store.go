package render

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const renderKeyPrefix = "render:"

// Store はレンダー記録を Redis に保存します。
// TTL による時間ベースの失効が、ポーリングされなかった記録のフォールバック掃除を担います。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はレンダー記録を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, renderID string) (*Record, error) {
	if renderID == "" {
		return nil, fmt.Errorf("renderID is required")
	}
	data, err := s.rdb.Get(ctx, renderKey(renderID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert はレンダー記録を保存します（存在しない場合は作成）。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, renderKey(record.RenderID), payload, s.ttl).Err()
}

// MarkRendering はワーカープロセス起動後の状態遷移を保存します。
func (s *Store) MarkRendering(ctx context.Context, renderID string) error {
	return s.updatePartial(ctx, renderID, func(record *Record) {
		record.Status = StatusRendering
	})
}

// MarkDone はレンダー成功時の情報を保存します。
func (s *Store) MarkDone(ctx context.Context, renderID string, outputURL string) error {
	return s.updatePartial(ctx, renderID, func(record *Record) {
		record.Status = StatusCompleted
		record.OutputURL = outputURL
		record.Error = nil
	})
}

// MarkFailed はレンダー失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, renderID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, renderID, func(record *Record) {
		record.Status = StatusError
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// Take はレンダー記録を取得と同時に削除します。存在しない場合は nil を返します。
// 終端結果の at-most-once 配送は GETDEL の原子性に依存しており、
// 並行するポーリングのうち記録を受け取れるのは1つだけです。
func (s *Store) Take(ctx context.Context, renderID string) (*Record, error) {
	data, err := s.rdb.GetDel(ctx, renderKey(renderID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete はレンダー記録を削除します。
func (s *Store) Delete(ctx context.Context, renderID string) error {
	return s.rdb.Del(ctx, renderKey(renderID)).Err()
}

// updatePartial は WATCH による楽観ロック付きで記録を読み書きします。
// 読み取りから書き戻しまでの間に他の書き手が入った場合は再試行します。
func (s *Store) updatePartial(ctx context.Context, renderID string, mutate func(*Record)) error {
	key := renderKey(renderID)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return fmt.Errorf("render not found: %s", renderID)
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			mutate(&record)
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func renderKey(id string) string {
	return renderKeyPrefix + id
}
