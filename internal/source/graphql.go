package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	goliteql "github.com/n9te9/goliteql/schema"
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/schemaawareness"
	"github.com/n9te9/graphql-parser/ast"
)

// GraphQLSource proxies the request to a single upstream GraphQL endpoint.
type GraphQLSource struct {
	id       string
	endpoint string
	client   *http.Client

	// awareness is optional; when configured it exposes the upstream's
	// schema to introspection helpers without blocking request execution.
	awareness *schemaawareness.Awareness[*goliteql.Schema]
}

// GoliteqlProcessor parses SDL into goliteql's schema representation; it is
// the processed value a plain GraphQL source publishes through its schema
// awareness.
func GoliteqlProcessor(raw string, _ *ast.Document) (*goliteql.Schema, error) {
	return goliteql.NewParser(goliteql.NewLexer()).Parse([]byte(raw))
}

// NewGraphQLSource builds a simple passthrough source.
func NewGraphQLSource(id, endpoint string, client *http.Client, awareness *schemaawareness.Awareness[*goliteql.Schema]) *GraphQLSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &GraphQLSource{id: id, endpoint: endpoint, client: client, awareness: awareness}
}

func (s *GraphQLSource) ID() string { return s.id }

// Schema returns the upstream schema snapshot, or nil when awareness is not
// configured or has not loaded yet.
func (s *GraphQLSource) Schema() *goliteql.Schema {
	if s.awareness == nil {
		return nil
	}
	processed, ok := s.awareness.Processed()
	if !ok {
		return nil
	}
	return processed
}

// Execute serializes the parsed GraphQL request as a JSON POST, runs the
// upstream plugin hooks around the call, and parses the response.
func (s *GraphQLSource) Execute(ctx context.Context, rctx *execcontext.Context, hooks UpstreamHooks) (*gqlmsg.Response, error) {
	body, err := json.Marshal(rctx.GraphQL.Request)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	outgoing := &httpmsg.Request{
		Method: http.MethodPost,
		URI:    s.endpoint,
		Body:   body,
	}
	outgoing.Headers.Set("content-type", httpmsg.ContentTypeJSON)

	if hooks != nil {
		if err := hooks.OnUpstreamHTTPRequest(ctx, rctx, outgoing); err != nil {
			return nil, &Error{Kind: KindNetwork, Err: err}
		}
		if rctx.ShortCircuited() {
			return nil, &Error{Kind: KindShortCircuit}
		}
	}

	req, err := http.NewRequestWithContext(ctx, outgoing.Method, outgoing.URI, bytes.NewReader(outgoing.Body))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	outgoing.Headers.CopyTo(req.Header)

	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	upstream, err := httpmsg.FromHTTPResponse(httpResp)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	if hooks != nil {
		if err := hooks.OnUpstreamHTTPResponse(ctx, rctx, upstream); err != nil {
			return nil, &Error{Kind: KindNetwork, Err: err}
		}
	}

	if upstream.Status < 200 || upstream.Status >= 300 {
		return nil, &Error{Kind: KindUnexpectedStatus, Err: statusError(upstream.Status)}
	}

	resp, err := gqlmsg.ParseResponse(upstream.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	resp.ContentType = upstream.Headers.Get("content-type")

	return resp, nil
}

type statusError int

func (s statusError) Error() string {
	return fmt.Sprintf("status %d %s", int(s), http.StatusText(int(s)))
}
