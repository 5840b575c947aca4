package dispatchers

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
)

const MQTTName = "mqtt"

// MQTTPublisher is the part of mqtt.Client the dispatcher uses.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes the JSON of each event, or of each batch, to one topic.
type MQTT struct {
	*Base
	client MQTTPublisher
	topic  string
	qos    byte
}

func NewMQTT(client MQTTPublisher, ctx Context) *MQTT {
	return &MQTT{
		Base:   newBase(MQTTName, ctx),
		client: client,
		topic:  ctx.Config.MQTTTopic,
		qos:    ctx.Config.MQTTQoS,
	}
}

func (m *MQTT) OnDispatchSend(ctx context.Context, d *dispatch.Dispatch) {
	if m.skip(1) {
		return
	}
	m.report(m.publish(ctx, d.Payload()), logging.Field{Key: "dispatch_id", Value: d.ID()})
}

func (m *MQTT) OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch) {
	if m.skip(len(ds)) {
		return
	}
	batch := dispatch.NewBatch(ds)
	if batch == nil {
		return
	}
	m.report(m.publish(ctx, batch.Payload()), logging.Int("count", len(ds)))
}

func (m *MQTT) publish(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.MalformedError("failed to encode payload", err)
	}
	token := m.client.Publish(m.topic, m.qos, false, body)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.TransientError("mqtt publish failed", err)
		}
		return nil
	case <-ctx.Done():
		return errors.TimeoutError("mqtt publish")
	case <-time.After(deliveryTimeout):
		return errors.TimeoutError("mqtt publish")
	}
}

type mqttFactory struct{}

func (mqttFactory) Create(ctx Context) (Dispatcher, error) {
	cfg := ctx.Config
	if cfg.MQTTBrokerURL == "" || cfg.MQTTTopic == "" {
		return nil, errors.ConfigError("mqtt dispatcher requires a broker URL and a topic")
	}
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = "analytics-agent"
	}
	logger := ctx.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(clientID).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", logging.Err(err))
	}

	client := mqtt.NewClient(opts)
	// With ConnectRetry the token completes once the first attempt is made;
	// publishes queue until the connection is up.
	client.Connect()
	return NewMQTT(client, ctx), nil
}

// Close disconnects the client when it supports it, allowing in-flight
// publishes a short grace period.
func (m *MQTT) Close() error {
	if c, ok := m.client.(interface{ Disconnect(quiesce uint) }); ok {
		c.Disconnect(250)
	}
	return nil
}

func (mqttFactory) GetType() string { return MQTTName }

func init() {
	DefaultRegistry.MustRegister(MQTTName, mqttFactory{})
}
