package visitor

import (
	"context"
	"sync"

	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/dispatch"
)

// Publisher is told about every visitor ID change.
type Publisher interface {
	OnVisitorIDUpdated(visitorID string)
}

// Options configures a Provider.
type Options struct {
	Storage *Storage
	// IdentityKey is the payload key holding the known user identity.
	IdentityKey string
	// ExistingVisitorID is adopted on first use instead of generating one.
	ExistingVisitorID string
	Publisher         Publisher
	// Generate creates new visitor IDs.
	Generate func() string
}

// Provider resolves the current visitor ID.
//
// The first identity seen is linked to the anonymous visitor ID. A different
// unknown identity after that gets a fresh visitor ID, and a known identity
// switches back to the ID it was linked to.
type Provider struct {
	storage     *Storage
	identityKey string
	publisher   Publisher
	generate    func() string
	logger      logging.Logger

	mu      sync.Mutex
	current string
}

// NewProvider loads or creates the visitor ID. Creating one publishes it.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	p := &Provider{
		storage:     opts.Storage,
		identityKey: opts.IdentityKey,
		publisher:   opts.Publisher,
		generate:    opts.Generate,
		logger:      logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "visitor"}),
	}
	if p.generate == nil {
		p.generate = utils.GenerateVisitorID
	}

	stored, err := p.storage.CurrentVisitorID(ctx)
	if err != nil {
		return nil, err
	}
	if stored != "" {
		p.current = stored
		return p, nil
	}

	id := opts.ExistingVisitorID
	if utils.IsBlank(id) {
		id = p.generate()
	}
	p.mu.Lock()
	changed := p.setCurrentLocked(ctx, id)
	p.mu.Unlock()
	p.notify(changed)
	return p, nil
}

// CurrentVisitorID returns the visitor ID in effect.
func (p *Provider) CurrentVisitorID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// IdentityKey returns the payload key watched for identities.
func (p *Provider) IdentityKey() string {
	return p.identityKey
}

// setCurrentLocked switches to id and reports it when it changed.
func (p *Provider) setCurrentLocked(ctx context.Context, id string) string {
	if id == p.current {
		return ""
	}
	p.current = id
	if err := p.storage.SetCurrentVisitorID(ctx, id); err != nil {
		p.logger.Error("Failed to persist visitor id", err)
	}
	identity, err := p.storage.CurrentIdentity(ctx)
	if err != nil {
		p.logger.Error("Failed to read current identity", err)
	} else if identity != "" {
		if err := p.storage.SaveVisitorID(ctx, identity, id); err != nil {
			p.logger.Error("Failed to link identity", err)
		}
	}
	return id
}

func (p *Provider) notify(id string) {
	if id == "" || p.publisher == nil {
		return
	}
	p.publisher.OnVisitorIDUpdated(id)
}

// OnDataUpdated reacts to a non-blank string stored under the identity key.
func (p *Provider) OnDataUpdated(key string, value interface{}) {
	if p.identityKey == "" || key != p.identityKey {
		return
	}
	identity, ok := value.(string)
	if !ok || utils.IsBlank(identity) {
		return
	}
	p.notify(p.changeIdentity(context.Background(), identity))
}

func (p *Provider) changeIdentity(ctx context.Context, identity string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := HashIdentity(identity)
	old, err := p.storage.CurrentIdentity(ctx)
	if err != nil {
		p.logger.Error("Failed to read current identity", err)
		return ""
	}
	if hash == old {
		return ""
	}
	p.logger.Debug("Identity change detected")
	if err := p.storage.SetCurrentIdentity(ctx, hash); err != nil {
		p.logger.Error("Failed to persist identity", err)
	}

	known, err := p.storage.VisitorID(ctx, hash)
	if err != nil {
		p.logger.Error("Failed to look up identity", err)
		return ""
	}
	switch {
	case known != "":
		p.logger.Debug("Identity seen before, restoring its visitor id")
		return p.setCurrentLocked(ctx, known)
	case old == "":
		p.logger.Debug("First identity, linking to current visitor id")
		if err := p.storage.SaveVisitorID(ctx, hash, p.current); err != nil {
			p.logger.Error("Failed to link identity", err)
		}
		return ""
	default:
		p.logger.Debug("Unknown identity, generating new visitor id")
		return p.setCurrentLocked(ctx, p.generate())
	}
}

// ResetVisitorID replaces the visitor ID with a new one and returns it.
func (p *Provider) ResetVisitorID() string {
	p.mu.Lock()
	id := p.generate()
	changed := p.setCurrentLocked(context.Background(), id)
	p.mu.Unlock()
	p.notify(changed)
	return id
}

// ClearStoredVisitorIDs forgets every identity link and starts a new visitor.
func (p *Provider) ClearStoredVisitorIDs() string {
	p.mu.Lock()
	if err := p.storage.Clear(context.Background()); err != nil {
		p.logger.Error("Failed to clear visitor storage", err)
	}
	p.mu.Unlock()
	return p.ResetVisitorID()
}

func (p *Provider) Name() string  { return "visitor" }
func (p *Provider) Enabled() bool { return true }

// Collect adds the visitor ID to the payload.
func (p *Provider) Collect(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{dispatch.KeyVisitorID: p.CurrentVisitorID()}, nil
}
