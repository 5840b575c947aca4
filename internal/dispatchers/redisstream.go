package dispatchers

import (
	"context"
	"encoding/json"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
)

const RedisStreamName = "redisstream"

// DefaultRedisStream is used when no stream name is configured.
const DefaultRedisStream = "analytics:events"

// StreamAppender appends entries to a Redis stream.
type StreamAppender interface {
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
}

// RedisStream appends each dispatch, or each batch, to a Redis stream as a
// single JSON field.
type RedisStream struct {
	*Base
	client StreamAppender
	stream string
	maxLen int64
}

func NewRedisStream(client StreamAppender, ctx Context) *RedisStream {
	stream := ctx.Config.RedisStream
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &RedisStream{
		Base:   newBase(RedisStreamName, ctx),
		client: client,
		stream: stream,
		maxLen: ctx.Config.RedisStreamMaxLen,
	}
}

func (r *RedisStream) OnDispatchSend(ctx context.Context, d *dispatch.Dispatch) {
	if r.skip(1) {
		return
	}
	r.report(r.add(ctx, "event", d.Payload()), logging.Field{Key: "dispatch_id", Value: d.ID()})
}

func (r *RedisStream) OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch) {
	if r.skip(len(ds)) {
		return
	}
	batch := dispatch.NewBatch(ds)
	if batch == nil {
		return
	}
	r.report(r.add(ctx, "batch", batch.Payload()), logging.Int("count", len(ds)))
}

func (r *RedisStream) add(ctx context.Context, kind string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.MalformedError("failed to encode payload", err)
	}
	ctx, cancel := withDeliveryTimeout(ctx)
	defer cancel()
	_, err = r.client.XAdd(ctx, r.stream, r.maxLen, map[string]interface{}{
		"type":    kind,
		"payload": string(body),
	})
	return err
}

type redisStreamFactory struct{}

func (redisStreamFactory) Create(ctx Context) (Dispatcher, error) {
	if ctx.Redis == nil {
		return nil, errors.ConfigError("redisstream dispatcher requires a redis connection")
	}
	return NewRedisStream(ctx.Redis, ctx), nil
}

func (redisStreamFactory) GetType() string { return RedisStreamName }

func init() {
	DefaultRegistry.MustRegister(RedisStreamName, redisStreamFactory{})
}
