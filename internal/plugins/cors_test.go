package plugins_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/plugins"
)

func TestCORS_DefaultConfigPreflight(t *testing.T) {
	p := plugins.NewCORS(plugins.CORSConfig{})

	req := &httpmsg.Request{Method: http.MethodOptions, URI: "/graphql"}
	req.Headers.Set("origin", "https://example.com")
	req.Headers.Set("access-control-request-method", "POST")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("preflight must short-circuit")
	}

	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if got := resp.Headers.Get("access-control-allow-origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
	if got := resp.Headers.Get("access-control-allow-methods"); got != "*" {
		t.Errorf("allow-methods = %q, want *", got)
	}
	if got := resp.Headers.Get("content-length"); got != "0" {
		t.Errorf("content-length = %q, want 0", got)
	}
}

func TestCORS_DefaultConfigDecoratesActualResponse(t *testing.T) {
	p := plugins.NewCORS(plugins.CORSConfig{})

	req := &httpmsg.Request{Method: http.MethodPost, URI: "/graphql"}
	req.Headers.Set("origin", "https://example.com")
	rctx := execcontext.New(req)

	resp := &httpmsg.Response{Status: http.StatusOK}
	p.OnDownstreamHTTPResponse(rctx, resp)

	if got := resp.Headers.Get("access-control-allow-origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}

func TestCORS_RestrictedOriginPreflight(t *testing.T) {
	p := plugins.NewCORS(plugins.CORSConfig{
		AllowedOrigins: []string{"https://allowed.example"},
		AllowedMethods: []string{"POST"},
	})

	req := &httpmsg.Request{Method: http.MethodOptions, URI: "/graphql"}
	req.Headers.Set("origin", "https://allowed.example")
	req.Headers.Set("access-control-request-method", "POST")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("preflight must short-circuit")
	}
	if got := resp.Headers.Get("access-control-allow-origin"); got != "https://allowed.example" {
		t.Errorf("allow-origin = %q, want the configured origin", got)
	}
}

func TestCORS_NonOptionsRequestPassesThrough(t *testing.T) {
	p := plugins.NewCORS(plugins.CORSConfig{})

	rctx := execcontext.New(&httpmsg.Request{Method: http.MethodPost, URI: "/graphql"})
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}
	if rctx.ShortCircuited() {
		t.Error("POST must not be short-circuited by cors")
	}
}
