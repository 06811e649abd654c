package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream 默认 Redis Stream 键
const DefaultStream = "teddyvoice:turn_events"

// RedisStore 把回合记录追加到 Redis Stream，供下游消费者订阅
type RedisStore struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStore 创建 Redis Stream 存储；maxLen > 0 时以 MAXLEN ~ 近似裁剪，实际长度可能略多于 maxLen
func NewRedisStore(client redis.UniversalClient, stream string, maxLen int64) *RedisStore {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStore{client: client, stream: stream, maxLen: maxLen}
}

// Name 实现 Store
func (s *RedisStore) Name() string { return "redis" }

// Append 通过 pipeline 批量 XADD
func (s *RedisStore) Append(ctx context.Context, events ...TurnEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal turn event: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: true,
			Values: map[string]any{
				"turn_id":    e.ID,
				"session_id": e.SessionID,
				"device_id":  e.DeviceID,
				"outcome":    e.Outcome,
				"payload":    string(payload),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// List 从流尾向前扫描，过滤出匹配的记录
func (s *RedisStore) List(ctx context.Context, q Query) ([]TurnEvent, error) {
	limit := q.limit()
	scan := int64(limit)
	if q.SessionID != "" || q.DeviceID != "" || !q.Since.IsZero() {
		scan = int64(limit) * 10
	}

	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", scan).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
	}

	out := make([]TurnEvent, 0, limit)
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			continue
		}
		var e TurnEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if !q.matches(e) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close 实现 Store；客户端归调用方所有
func (s *RedisStore) Close() error { return nil }
