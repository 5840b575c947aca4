// Package visitor maintains the anonymous visitor ID and its links to known
// user identities.
package visitor

import (
	"context"

	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/storage"
)

const keyCurrentIdentity = "current_identity"

// Storage persists the visitor state in a key-value store. Identities are
// stored as sha256 hex digests, never in the clear.
type Storage struct {
	kv storage.KeyValueStore
}

func NewStorage(kv storage.KeyValueStore) *Storage {
	return &Storage{kv: kv}
}

func (s *Storage) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}

// CurrentVisitorID returns the persisted visitor ID, or "".
func (s *Storage) CurrentVisitorID(ctx context.Context) (string, error) {
	return s.get(ctx, dispatch.KeyVisitorID)
}

func (s *Storage) SetCurrentVisitorID(ctx context.Context, id string) error {
	return s.kv.Set(ctx, dispatch.KeyVisitorID, []byte(id))
}

// CurrentIdentity returns the hash of the current identity, or "".
func (s *Storage) CurrentIdentity(ctx context.Context) (string, error) {
	return s.get(ctx, keyCurrentIdentity)
}

func (s *Storage) SetCurrentIdentity(ctx context.Context, identityHash string) error {
	return s.kv.Set(ctx, keyCurrentIdentity, []byte(identityHash))
}

// VisitorID returns the visitor ID linked to an identity hash, or "".
func (s *Storage) VisitorID(ctx context.Context, identityHash string) (string, error) {
	return s.get(ctx, identityHash)
}

// SaveVisitorID links an identity hash to a visitor ID.
func (s *Storage) SaveVisitorID(ctx context.Context, identityHash, visitorID string) error {
	return s.kv.Set(ctx, identityHash, []byte(visitorID))
}

// Clear forgets every stored visitor and identity.
func (s *Storage) Clear(ctx context.Context) error {
	return s.kv.Clear(ctx)
}

// HashIdentity returns the stored form of an identity.
func HashIdentity(identity string) string {
	return utils.SHA256Hex(identity)
}
