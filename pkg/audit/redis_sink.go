package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends records to a Redis stream with XADD. Streams are
// append-only and ordered by insertion.
type RedisSink struct {
	client redis.Cmdable
	stream string
}

// NewRedisSink connects to addr and writes to stream.
func NewRedisSink(addr, password string, db int, stream string) *RedisSink {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSinkWithClient(rdb, stream)
}

// NewRedisSinkWithClient wraps an existing client.
func NewRedisSinkWithClient(client redis.Cmdable, stream string) *RedisSink {
	if stream == "" {
		stream = "mirrornode:audit"
	}
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"audit_id": rec.AuditID,
			"verdict":  string(rec.Verdict),
			"record":   string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}
