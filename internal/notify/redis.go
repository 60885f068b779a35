package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis stream updates are mirrored to.
const DefaultStream = "cognitive:updates"

// RedisMirror copies published updates into a Redis stream so observers
// outside this process can follow them.
type RedisMirror struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewRedisMirror connects to redisURL and verifies the connection.
func NewRedisMirror(redisURL, stream string, maxLen int64, logger *zap.Logger) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisMirror{rdb: rdb, stream: stream, maxLen: maxLen, logger: logger}, nil
}

// Mirror implements Mirror by appending u to the stream.
func (r *RedisMirror) Mirror(ctx context.Context, u *Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"type": u.UpdateType,
			"data": string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if _, err := r.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("mirror to %s: %w", r.stream, err)
	}

	r.logger.Debug("mirrored update",
		zap.String("stream", r.stream),
		zap.String("update_type", u.UpdateType),
		zap.String("update_id", u.UpdateID))
	return nil
}

// Tail follows the stream from its current end. The returned channel is
// closed when ctx is cancelled.
func (r *RedisMirror) Tail(ctx context.Context) <-chan *Update {
	ch := make(chan *Update, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := r.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{r.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				r.logger.Debug("tail read failed", zap.String("stream", r.stream), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, res := range results {
				for _, msg := range res.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var u Update
					if json.Unmarshal([]byte(data), &u) != nil {
						continue
					}
					select {
					case ch <- &u:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (r *RedisMirror) Close() error {
	return r.rdb.Close()
}
