package plugins_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/plugins"
)

func getRequest(query string) *httpmsg.Request {
	req := &httpmsg.Request{
		Method:      http.MethodGet,
		URI:         "/graphql",
		QueryString: "query=" + url.QueryEscape(query),
	}
	req.Headers.Set("accept", "application/json")
	return req
}

func TestHTTPGet_ExtractsQueryFromQueryString(t *testing.T) {
	p := plugins.NewHTTPGet(plugins.HTTPGetConfig{})
	rctx := execcontext.New(getRequest(`query { __typename }`))

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	if rctx.GraphQL == nil {
		t.Fatal("GET extraction did not set the GraphQL request")
	}
	if rctx.GraphQL.Query != `query { __typename }` {
		t.Errorf("Query = %q", rctx.GraphQL.Query)
	}
}

func TestHTTPGet_MutationBlockedByDefault(t *testing.T) {
	p := plugins.NewHTTPGet(plugins.HTTPGetConfig{})
	rctx := execcontext.New(getRequest(`mutation { f }`))

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("mutation over GET must short-circuit")
	}
	if resp.Status != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.Status)
	}
	if !strings.Contains(string(resp.Body), "mutations are not allowed over GET") {
		t.Errorf("body = %s", resp.Body)
	}
}

func TestHTTPGet_MutationAllowedWhenConfigured(t *testing.T) {
	p := plugins.NewHTTPGet(plugins.HTTPGetConfig{Mutations: true})
	rctx := execcontext.New(getRequest(`mutation { f }`))

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	if rctx.ShortCircuited() {
		t.Error("mutation should pass with mutations: true")
	}
	if rctx.GraphQL == nil || !rctx.GraphQL.IsMutation() {
		t.Error("mutation should be extracted")
	}
}

func TestHTTPGet_IgnoresGETWithoutQueryParameter(t *testing.T) {
	p := plugins.NewHTTPGet(plugins.HTTPGetConfig{})
	rctx := execcontext.New(&httpmsg.Request{Method: http.MethodGet, URI: "/graphql"})

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}
	if rctx.ShortCircuited() || rctx.GraphQL != nil {
		t.Error("a GET without ?query= is not ours to handle")
	}
}

func TestHTTPGet_ParseErrorShortCircuits400(t *testing.T) {
	p := plugins.NewHTTPGet(plugins.HTTPGetConfig{})
	req := getRequest(`query {`)
	req.Headers.Set("accept", "application/graphql-response+json")
	rctx := execcontext.New(req)

	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("parse failure must short-circuit")
	}
	if resp.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Status)
	}
}
