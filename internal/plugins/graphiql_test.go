package plugins_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/plugins"
)

func TestGraphiQL_ServesHTMLOnBrowserGET(t *testing.T) {
	p := plugins.NewGraphiQL(plugins.GraphiQLConfig{})

	req := &httpmsg.Request{Method: http.MethodGet, URI: "/graphql"}
	req.Headers.Set("accept", "text/html,application/xhtml+xml")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("hook failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("browser GET must be answered with the playground")
	}
	if !strings.HasPrefix(resp.Headers.Get("content-type"), "text/html") {
		t.Errorf("content-type = %q", resp.Headers.Get("content-type"))
	}
	if !strings.Contains(string(resp.Body), "graphiql") {
		t.Error("response should embed the playground")
	}
	if !strings.Contains(string(resp.Body), "'/graphql'") {
		t.Error("playground should point its fetcher at the mount path")
	}
}

func TestGraphiQL_DefersNonHTMLGET(t *testing.T) {
	p := plugins.NewGraphiQL(plugins.GraphiQLConfig{})

	req := &httpmsg.Request{Method: http.MethodGet, URI: "/graphql", QueryString: "query=%7B__typename%7D"}
	req.Headers.Set("accept", "application/json")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if rctx.ShortCircuited() {
		t.Error("non-HTML GET must be left for other handlers")
	}
}

func TestGraphiQL_IgnoresPOST(t *testing.T) {
	p := plugins.NewGraphiQL(plugins.GraphiQLConfig{})

	req := &httpmsg.Request{Method: http.MethodPost, URI: "/graphql"}
	req.Headers.Set("accept", "text/html")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if rctx.ShortCircuited() {
		t.Error("POST must never get the playground")
	}
}
