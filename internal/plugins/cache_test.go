package plugins_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/plugins"
)

func cacheContext(t *testing.T, query, session string) *execcontext.Context {
	t.Helper()
	req := &httpmsg.Request{Method: http.MethodPost, URI: "/graphql"}
	if session != "" {
		req.Headers.Set("authorization", session)
	}
	rctx := execcontext.New(req)

	parsed, err := gqlmsg.Parse(&gqlmsg.Request{Query: query})
	if err != nil {
		t.Fatalf("failed to parse query: %v", err)
	}
	rctx.GraphQL = parsed
	return rctx
}

func newCache(t *testing.T) *plugins.ResponseCache {
	t.Helper()
	p, err := plugins.NewResponseCache(plugins.ResponseCacheConfig{TTL: "1m"}, nil)
	if err != nil {
		t.Fatalf("NewResponseCache failed: %v", err)
	}
	return p
}

func TestResponseCache_MissThenHit(t *testing.T) {
	p := newCache(t)
	ctx := context.Background()

	first := cacheContext(t, `query { users { id } }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, first); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if first.ShortCircuited() {
		t.Fatal("first request must be a miss")
	}

	resp := &httpmsg.Response{Status: http.StatusOK, Body: []byte(`{"data":{"users":[]}}`)}
	p.OnDownstreamHTTPResponse(first, resp)

	second := cacheContext(t, `query { users { id } }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, second); err != nil {
		t.Fatalf("hook failed: %v", err)
	}

	cached := second.TakeShortCircuit()
	if cached == nil {
		t.Fatal("second identical request must hit the cache")
	}
	if string(cached.Body) != `{"data":{"users":[]}}` {
		t.Errorf("cached body = %s", cached.Body)
	}
	if cached.Headers.Get("x-cache") != "HIT" {
		t.Error("cache hit marker missing")
	}
}

func TestResponseCache_SessionPartitionsTheCache(t *testing.T) {
	p := newCache(t)
	ctx := context.Background()

	alice := cacheContext(t, `query { me { id } }`, "Bearer alice")
	if err := p.OnDownstreamGraphQLRequest(ctx, alice); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	p.OnDownstreamHTTPResponse(alice, &httpmsg.Response{Status: 200, Body: []byte(`{"data":{"me":{"id":"alice"}}}`)})

	bob := cacheContext(t, `query { me { id } }`, "Bearer bob")
	if err := p.OnDownstreamGraphQLRequest(ctx, bob); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if bob.ShortCircuited() {
		t.Error("a different session must not hit another session's entry")
	}
}

func TestResponseCache_MutationsAreNotCached(t *testing.T) {
	p := newCache(t)
	ctx := context.Background()

	rctx := cacheContext(t, `mutation { createUser { id } }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, rctx); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if rctx.ShortCircuited() {
		t.Error("mutations must never short-circuit from cache")
	}

	p.OnDownstreamHTTPResponse(rctx, &httpmsg.Response{Status: 200, Body: []byte(`{"data":{}}`)})

	again := cacheContext(t, `mutation { createUser { id } }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, again); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if again.ShortCircuited() {
		t.Error("mutations must not be served from cache")
	}
}

func TestResponseCache_ErrorResponsesAreNotStored(t *testing.T) {
	p := newCache(t)
	ctx := context.Background()

	first := cacheContext(t, `query { broken }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, first); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	p.OnDownstreamHTTPResponse(first, &httpmsg.Response{Status: http.StatusBadGateway, Body: []byte(`bad`)})

	second := cacheContext(t, `query { broken }`, "")
	if err := p.OnDownstreamGraphQLRequest(ctx, second); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if second.ShortCircuited() {
		t.Error("non-200 responses must not be cached")
	}
}
