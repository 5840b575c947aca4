package dispatchers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
)

const KafkaName = "kafka"

// MessageWriter is the part of kafka.Writer the dispatcher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per event, keyed by visitor ID so a visitor's
// events stay on one partition. Batches are flattened back into events.
type Kafka struct {
	*Base
	writer MessageWriter
}

func NewKafka(writer MessageWriter, ctx Context) *Kafka {
	return &Kafka{Base: newBase(KafkaName, ctx), writer: writer}
}

func (k *Kafka) OnDispatchSend(ctx context.Context, d *dispatch.Dispatch) {
	if k.skip(1) {
		return
	}
	k.report(k.write(ctx, []map[string]interface{}{d.Payload()}), logging.Field{Key: "dispatch_id", Value: d.ID()})
}

func (k *Kafka) OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch) {
	if k.skip(len(ds)) {
		return
	}
	batch := dispatch.NewBatch(ds)
	if batch == nil {
		return
	}
	k.report(k.write(ctx, batch.Reconstitute()), logging.Int("count", len(ds)))
}

func (k *Kafka) write(ctx context.Context, events []map[string]interface{}) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			return errors.MalformedError("failed to encode payload", err)
		}
		key, _ := event[dispatch.KeyVisitorID].(string)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Time:  time.Now(),
		})
	}
	ctx, cancel := withDeliveryTimeout(ctx)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.TransientError("kafka write failed", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

type kafkaFactory struct{}

func (kafkaFactory) Create(ctx Context) (Dispatcher, error) {
	cfg := ctx.Config
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
		return nil, errors.ConfigError("kafka dispatcher requires brokers and a topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafka(writer, ctx), nil
}

func (kafkaFactory) GetType() string { return KafkaName }

func init() {
	DefaultRegistry.MustRegister(KafkaName, kafkaFactory{})
}
