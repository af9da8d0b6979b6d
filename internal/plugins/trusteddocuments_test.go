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

func documentIDRequest(body string) *httpmsg.Request {
	req := &httpmsg.Request{Method: http.MethodPost, URI: "/graphql", Body: []byte(body)}
	req.Headers.Set("content-type", "application/json")
	return req
}

func TestTrustedDocuments_StoreHitExecutesStoredOperation(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store: map[string]string{"K": `query { __typename }`},
	})

	rctx := execcontext.New(documentIDRequest(`{"documentId":"K"}`))
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	if rctx.ShortCircuited() {
		t.Fatal("store hit must not short-circuit")
	}
	if rctx.GraphQL == nil || rctx.GraphQL.Query != `query { __typename }` {
		t.Errorf("stored operation not installed: %+v", rctx.GraphQL)
	}
}

func TestTrustedDocuments_StoreMissRejectsWhenUntrustedDisallowed(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store:          map[string]string{},
		AllowUntrusted: false,
	})

	rctx := execcontext.New(documentIDRequest(`{"documentId":"K"}`))
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	resp := rctx.TakeShortCircuit()
	if resp == nil {
		t.Fatal("store miss with allow_untrusted: false must short-circuit")
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Status)
	}
	if !strings.Contains(string(resp.Body), "trusted document not found") {
		t.Errorf("body = %s", resp.Body)
	}
}

func TestTrustedDocuments_StoreMissPassesWhenUntrustedAllowed(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store:          map[string]string{},
		AllowUntrusted: true,
	})

	rctx := execcontext.New(documentIDRequest(`{"documentId":"K"}`))
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}
	if rctx.ShortCircuited() {
		t.Error("allow_untrusted: true should let the request continue")
	}
}

func TestTrustedDocuments_VariablesFromBodyAreKept(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store: map[string]string{"K": `query Q($id: ID!) { user(id: $id) { name } }`},
	})

	rctx := execcontext.New(documentIDRequest(`{"documentId":"K","variables":{"id":"7"}}`))
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	if rctx.GraphQL == nil || rctx.GraphQL.Variables["id"] != "7" {
		t.Errorf("variables were lost: %+v", rctx.GraphQL)
	}
}

func TestTrustedDocuments_GETDocumentIDParameter(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store: map[string]string{"K": `query { __typename }`},
	})

	rctx := execcontext.New(&httpmsg.Request{
		Method:      http.MethodGet,
		URI:         "/graphql",
		QueryString: "documentId=K",
	})
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}

	if rctx.GraphQL == nil || rctx.GraphQL.Query != `query { __typename }` {
		t.Error("GET documentId lookup did not install the stored operation")
	}
}

func TestTrustedDocuments_IgnoresRegularRequests(t *testing.T) {
	p := plugins.NewTrustedDocuments(plugins.TrustedDocumentsConfig{
		Store: map[string]string{"K": `query { __typename }`},
	})

	rctx := execcontext.New(documentIDRequest(`{"query":"query { __typename }"}`))
	if err := p.OnDownstreamHTTPRequest(context.Background(), rctx); err != nil {
		t.Fatalf("OnDownstreamHTTPRequest failed: %v", err)
	}
	if rctx.ShortCircuited() || rctx.GraphQL != nil {
		t.Error("a body without documentId is left to normal extraction")
	}
}
