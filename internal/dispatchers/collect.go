package dispatchers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"analytics-sdk/internal/circuitbreaker"
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/network"
	"analytics-sdk/internal/settings"
)

const CollectName = "collect"

// Default collect endpoints.
const (
	DefaultCollectURL      = "https://collect.tealiumiq.com/event"
	DefaultCollectBatchURL = "https://collect.tealiumiq.com/bulk-event"
)

// Collect posts dispatches as JSON to the collect endpoint. Single events go
// to the event URL, batches to the bulk URL in {shared, events} form.
type Collect struct {
	*Base

	eventURL        string
	batchURL        string
	profileOverride string

	client  *http.Client
	breaker *circuitbreaker.Breaker
	limiter *rate.Limiter
}

// NewCollect builds a collect dispatcher. An explicit URL wins over a
// domain override, which wins over the default endpoints.
func NewCollect(ctx Context) *Collect {
	base := newBase(CollectName, ctx)
	cfg := ctx.Config

	eventURL, batchURL := DefaultCollectURL, DefaultCollectBatchURL
	if cfg.CollectDomain != "" {
		eventURL = fmt.Sprintf("https://%s/event", cfg.CollectDomain)
		batchURL = fmt.Sprintf("https://%s/bulk-event", cfg.CollectDomain)
	}
	if cfg.CollectURL != "" {
		eventURL = cfg.CollectURL
	}
	if cfg.CollectBatchURL != "" {
		batchURL = cfg.CollectBatchURL
	}

	client := ctx.HTTPClient
	if client == nil {
		client = network.NewHTTPClient()
	}

	if ctx.UseRemoteSettings {
		base.follow = func(s *settings.LibrarySettings) bool { return s.CollectDispatcherEnabled }
	}

	c := &Collect{
		Base:            base,
		eventURL:        eventURL,
		batchURL:        batchURL,
		profileOverride: cfg.CollectProfile,
		client:          client,
		breaker:         circuitbreaker.New(CollectName, circuitbreaker.DefaultConfig(), base.logger),
	}
	if cfg.CollectRateLimit > 0 {
		burst := int(cfg.CollectRateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.CollectRateLimit), burst)
	}
	return c
}

// EventURL returns the single-event endpoint.
func (c *Collect) EventURL() string { return c.eventURL }

// BatchURL returns the batch endpoint.
func (c *Collect) BatchURL() string { return c.batchURL }

func (c *Collect) OnDispatchSend(ctx context.Context, d *dispatch.Dispatch) {
	if c.skip(1) {
		return
	}
	payload := d.Payload()
	if c.profileOverride != "" {
		payload[dispatch.KeyProfile] = c.profileOverride
	}
	c.report(c.post(ctx, c.eventURL, payload), logging.Field{Key: "dispatch_id", Value: d.ID()})
}

func (c *Collect) OnBatchDispatchSend(ctx context.Context, ds []*dispatch.Dispatch) {
	if c.skip(len(ds)) {
		return
	}
	batch := dispatch.NewBatch(ds)
	if batch == nil {
		return
	}
	if c.profileOverride != "" {
		batch.Shared[dispatch.KeyProfile] = c.profileOverride
	}
	c.report(c.post(ctx, c.batchURL, batch.Payload()), logging.Int("count", len(ds)))
}

func (c *Collect) post(ctx context.Context, url string, payload interface{}) error {
	ctx, cancel := withDeliveryTimeout(ctx)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.breaker.Execute(ctx, func() error {
		_, err := network.PostJSON(ctx, c.client, url, payload)
		return err
	})
}

type collectFactory struct{}

func (collectFactory) Create(ctx Context) (Dispatcher, error) { return NewCollect(ctx), nil }
func (collectFactory) GetType() string                        { return CollectName }

func init() {
	DefaultRegistry.MustRegister(CollectName, collectFactory{})
}
