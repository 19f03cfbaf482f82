package componentcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecsdb/ecsdb/internal/ecserr"
)

// ExternalClient is the minimal byte-oriented interface an external KV
// cache (Redis, Memcached, ...) would need to satisfy to back an
// ExternalProvider. No repo in the retrieval pack names a concrete
// external-cache client library for this spec's domain (the pack's Redis-
// and Memcached-adjacent dependencies all belong to unrelated services), so
// this seam is documented but left unwired — see DESIGN.md.
type ExternalClient interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ExternalProvider adapts an ExternalClient to Provider by JSON-encoding
// cache entries. Cache failures here are never promoted above
// ecserr.ErrCache — callers downgrade to a direct database fetch per spec
// §7 ("CacheError — never fatal").
type ExternalProvider struct {
	client ExternalClient
}

// NewExternalProvider builds a Provider backed by an external KV client.
func NewExternalProvider(client ExternalClient) *ExternalProvider {
	return &ExternalProvider{client: client}
}

// Get implements Provider.
func (p *ExternalProvider) Get(ctx context.Context, key string) (any, bool, error) {
	raw, ok, err := p.client.Get(ctx, key)
	if err != nil {
		return nil, false, ecserr.Wrap("componentcache.ExternalProvider.Get", ecserr.ErrCache, err)
	}
	if !ok {
		return nil, false, nil
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("%w: decoding cached entry for %s: %w", ecserr.ErrCache, key, err)
	}
	return e, true, nil
}

// Set implements Provider.
func (p *ExternalProvider) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	e, ok := value.(entry)
	if !ok {
		return fmt.Errorf("%w: unexpected cache value type %T", ecserr.ErrCache, value)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: encoding cached entry for %s: %w", ecserr.ErrCache, key, err)
	}
	if err := p.client.Set(ctx, key, raw, ttl); err != nil {
		return ecserr.Wrap("componentcache.ExternalProvider.Set", ecserr.ErrCache, err)
	}
	return nil
}

// Delete implements Provider.
func (p *ExternalProvider) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key); err != nil {
		return ecserr.Wrap("componentcache.ExternalProvider.Delete", ecserr.ErrCache, err)
	}
	return nil
}

var _ Provider = (*ExternalProvider)(nil)
