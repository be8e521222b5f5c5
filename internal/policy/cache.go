package policy

import (
	"context"
	"time"

	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/descriptor"
	"github.com/GoPolymarket/extgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/extgate/internal/pkg/metrics"
)

// CacheStore is the external cache the policy reads and writes. A ttl of zero
// means the store's own default.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachePolicy is the resolved cache decision for one endpoint. It is a value:
// call-level adjustments return a modified copy.
type CachePolicy struct {
	store    CacheStore
	service  string
	endpoint string
	enabled  bool
	key      string
	ttl      *time.Duration
}

// ResolveCache merges the global, service and endpoint levels. A nil endpoint
// inherits the service level entirely.
func ResolveCache(global config.PolicyCaching, d *descriptor.Descriptor, e *descriptor.EndpointSpec, store CacheStore) CachePolicy {
	p := CachePolicy{
		store:   store,
		service: d.Key,
		key:     d.Caching.Key,
		ttl:     d.Caching.TTL,
	}
	var endpointFlag *bool
	if e != nil {
		p.endpoint = e.Name
		if e.Caching != nil {
			endpointFlag = e.Caching.ShouldCache
			p.key = Override(d.Caching.Key, e.Caching.Key)
			p.ttl = OverrideDuration(d.Caching.TTL, e.Caching.TTL)
		}
	}
	p.enabled = AndChain(global.ShouldCache, d.Caching.ShouldCache, endpointFlag)
	return p
}

// WithCall applies the call-level flag. It can only disable caching.
func (p CachePolicy) WithCall(shouldCache *bool) CachePolicy {
	p.enabled = p.enabled && AndChain(shouldCache)
	return p
}

// WithParams renders {name} placeholders of the configured key. A key left
// with a placeholder never reaches the store.
func (p CachePolicy) WithParams(params map[string]string) CachePolicy {
	p.key, _ = RenderKey(p.key, params)
	return p
}

func (p CachePolicy) Enabled() bool       { return p.enabled && p.store != nil }
func (p CachePolicy) Key() string         { return p.key }
func (p CachePolicy) TTL() *time.Duration { return p.ttl }

// EffectiveKey is callKey when given, otherwise the configured key.
func (p CachePolicy) EffectiveKey(callKey string) string {
	return Override(p.key, callKey)
}

// EffectiveTTL is ttlOverride when given, otherwise the configured TTL. Zero
// means the store default.
func (p CachePolicy) EffectiveTTL(ttlOverride *time.Duration) time.Duration {
	if ttl := OverrideDuration(p.ttl, ttlOverride); ttl != nil {
		return *ttl
	}
	return 0
}

// Get returns the cached value for the effective key. Disabled caching, a
// miss and a failing store all come back as absent. An empty key or one with
// an unresolved placeholder is a miss.
func (p CachePolicy) Get(ctx context.Context, callKey string) ([]byte, bool) {
	if !p.Enabled() {
		p.count("disabled")
		return nil, false
	}
	key := p.EffectiveKey(callKey)
	if key == "" || Unresolved(key) {
		p.count("miss")
		return nil, false
	}
	value, found, err := p.store.Get(ctx, key)
	if err != nil {
		p.count("error")
		apperrors.Report(ctx, apperrors.New(apperrors.ErrCachePolicy, "cache read failed", err),
			"Cache read failed, treating as miss", "service", p.service, "endpoint", p.endpoint, "key", key)
		return nil, false
	}
	if !found {
		p.count("miss")
		return nil, false
	}
	p.count("hit")
	return value, true
}

// Put writes value under the effective key with the effective TTL. Key and
// TTL overrides are independent. It reports whether the value was stored.
func (p CachePolicy) Put(ctx context.Context, value []byte, ttlOverride *time.Duration, keyOverride string) bool {
	if !p.Enabled() {
		return false
	}
	key := p.EffectiveKey(keyOverride)
	if key == "" || Unresolved(key) {
		return false
	}
	if err := p.store.Put(ctx, key, value, p.EffectiveTTL(ttlOverride)); err != nil {
		apperrors.Report(ctx, apperrors.New(apperrors.ErrCachePolicy, "cache write failed", err),
			"Cache write failed", "service", p.service, "endpoint", p.endpoint, "key", key)
		return false
	}
	return true
}

func (p CachePolicy) count(result string) {
	metrics.CacheLookups.WithLabelValues(p.service, p.endpoint, result).Inc()
}
