package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// errUpstreamShortCircuit aborts an in-flight subgraph call after a plugin
// deposited a response; the federation source maps it to KindShortCircuit.
var errUpstreamShortCircuit = errors.New("upstream request short-circuited")

type upstreamKey struct{}

type upstreamState struct {
	rctx  *execcontext.Context
	hooks UpstreamHooks
}

// withUpstream threads the request context and hook chain through the
// executor's http.Client so every subgraph call passes the upstream plugin
// hooks.
func withUpstream(ctx context.Context, rctx *execcontext.Context, hooks UpstreamHooks) context.Context {
	return context.WithValue(ctx, upstreamKey{}, &upstreamState{rctx: rctx, hooks: hooks})
}

// hookTransport is an http.RoundTripper that runs the upstream plugin
// chains around each subgraph call made by the federation executor.
type hookTransport struct {
	base http.RoundTripper
}

func newHookTransport(base http.RoundTripper) *hookTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &hookTransport{base: base}
}

func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	state, _ := req.Context().Value(upstreamKey{}).(*upstreamState)
	if state == nil || state.hooks == nil {
		return t.base.RoundTrip(req)
	}

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
	}

	outgoing := &httpmsg.Request{
		Method:      req.Method,
		URI:         req.URL.String(),
		QueryString: req.URL.RawQuery,
		Headers:     httpmsg.FromHTTPHeader(req.Header),
		Body:        body,
	}

	if err := state.hooks.OnUpstreamHTTPRequest(req.Context(), state.rctx, outgoing); err != nil {
		return nil, err
	}
	if state.rctx.ShortCircuited() {
		return nil, errUpstreamShortCircuit
	}

	req.Header = make(http.Header)
	outgoing.Headers.CopyTo(req.Header)
	req.Body = io.NopCloser(bytes.NewReader(outgoing.Body))
	req.ContentLength = int64(len(outgoing.Body))

	httpResp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	upstream, err := httpmsg.FromHTTPResponse(httpResp)
	if err != nil {
		return nil, err
	}

	if err := state.hooks.OnUpstreamHTTPResponse(req.Context(), state.rctx, upstream); err != nil {
		return nil, err
	}

	httpResp.Body = io.NopCloser(bytes.NewReader(upstream.Body))
	httpResp.StatusCode = upstream.Status
	httpResp.Header = make(http.Header)
	upstream.Headers.CopyTo(httpResp.Header)

	return httpResp, nil
}
