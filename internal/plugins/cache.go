package plugins

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	gocache "github.com/patrickmn/go-cache"
)

func init() {
	pluginapi.Register("response_cache", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg ResponseCacheConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewResponseCache(cfg, nil)
	})
}

const stateCacheKey = "cache.key"

// CacheStore is the polymorphic response-cache backend. The default is an
// in-process store; an external key-value store can be injected as long as
// its Set is cheap enough for the synchronous response hook.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// memoryStore adapts go-cache to CacheStore.
type memoryStore struct {
	c *gocache.Cache
}

func (s *memoryStore) Get(key string) ([]byte, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (s *memoryStore) Set(key string, value []byte, ttl time.Duration) {
	s.c.Set(key, value, ttl)
}

// ResponseCacheConfig configures response caching.
type ResponseCacheConfig struct {
	// TTL is how long a cached response is served. Duration string,
	// default "60s".
	TTL string `json:"ttl"`
	// SessionHeader partitions the cache per client session; its value is
	// part of the fingerprint. Default "authorization".
	SessionHeader string `json:"session_header"`
}

// ResponseCache serves repeated operations from a store keyed by a
// fingerprint of (operation text, operation name, variables, session id).
type ResponseCache struct {
	cfg   ResponseCacheConfig
	ttl   time.Duration
	store CacheStore
}

// NewResponseCache builds the plugin. A nil store gets the in-memory
// default.
func NewResponseCache(cfg ResponseCacheConfig, store CacheStore) (*ResponseCache, error) {
	ttl := 60 * time.Second
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, err
		}
		ttl = d
	}
	if cfg.SessionHeader == "" {
		cfg.SessionHeader = "authorization"
	}
	if store == nil {
		store = &memoryStore{c: gocache.New(ttl, 2*ttl)}
	}
	return &ResponseCache{cfg: cfg, ttl: ttl, store: store}, nil
}

func (p *ResponseCache) Name() string { return "response_cache" }

func (p *ResponseCache) OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error {
	if rctx.GraphQL.IsMutation() {
		return nil
	}

	key, err := p.fingerprint(rctx)
	if err != nil {
		return nil
	}

	if body, ok := p.store.Get(key); ok {
		resp := &httpmsg.Response{Status: http.StatusOK, Body: body}
		resp.Headers.Set("content-type", httpmsg.ContentTypeJSON)
		resp.Headers.Set("x-cache", "HIT")
		rctx.ShortCircuit(resp)
		return nil
	}

	rctx.Set(stateCacheKey, key)
	return nil
}

func (p *ResponseCache) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	key := rctx.GetString(stateCacheKey)
	if key == "" {
		return
	}
	if resp.Status != 0 && resp.Status != http.StatusOK {
		return
	}

	body := make([]byte, len(resp.Body))
	copy(body, resp.Body)
	p.store.Set(key, body, p.ttl)
}

func (p *ResponseCache) fingerprint(rctx *execcontext.Context) (string, error) {
	variables, err := json.Marshal(rctx.GraphQL.Variables)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(rctx.GraphQL.Query))
	h.Write([]byte{0})
	h.Write([]byte(rctx.GraphQL.OperationName))
	h.Write([]byte{0})
	h.Write(variables)
	h.Write([]byte{0})
	h.Write([]byte(rctx.Request.Headers.Get(p.cfg.SessionHeader)))

	return hex.EncodeToString(h.Sum(nil)), nil
}
