package accounts

import (
	"context"
	"time"
)

// DefaultReplayTTL is how long a delivery id is remembered.
const DefaultReplayTTL = 24 * time.Hour

const replayKeyPrefix = "identity:webhook:"

// KeySetter is the Redis operation the replay guard needs.
// *redis.Client from pkg/clients/redis satisfies it.
type KeySetter interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// ReplayGuard remembers webhook delivery ids so a redelivered event is
// applied once. A nil *ReplayGuard admits everything.
type ReplayGuard struct {
	store KeySetter
	ttl   time.Duration
}

// NewReplayGuard returns a guard over store. A non-positive ttl selects
// [DefaultReplayTTL].
func NewReplayGuard(store KeySetter, ttl time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayGuard{store: store, ttl: ttl}
}

// Claim records id and reports whether this is its first delivery. Call
// it only after the delivery's signature has been verified.
func (g *ReplayGuard) Claim(ctx context.Context, id string) (bool, error) {
	if g == nil || id == "" {
		return true, nil
	}
	return g.store.SetNX(ctx, replayKeyPrefix+id, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release forgets id, so a delivery whose processing failed can be
// retried by the provider.
func (g *ReplayGuard) Release(ctx context.Context, id string) error {
	if g == nil || id == "" {
		return nil
	}
	_, err := g.store.Del(ctx, replayKeyPrefix+id)
	return err
}
