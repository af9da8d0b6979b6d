package plugins

import (
	"context"
	"net/http"
	"net/url"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
)

func init() {
	pluginapi.Register("http_get", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg HTTPGetConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewHTTPGet(cfg), nil
	})
}

// HTTPGetConfig configures GraphQL-over-GET extraction.
type HTTPGetConfig struct {
	// Mutations allows mutation operations over GET. Off by default:
	// GET must stay safe and cacheable.
	Mutations bool `json:"mutations"`
}

// HTTPGet extracts a GraphQL request from the query string of a GET
// request (?query=...&operationName=...&variables=...).
type HTTPGet struct {
	cfg HTTPGetConfig
}

func NewHTTPGet(cfg HTTPGetConfig) *HTTPGet {
	return &HTTPGet{cfg: cfg}
}

func (p *HTTPGet) Name() string { return "http_get" }

func (p *HTTPGet) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	if rctx.Request.Method != http.MethodGet {
		return nil
	}

	values, err := url.ParseQuery(rctx.Request.QueryString)
	if err != nil || values.Get("query") == "" {
		// Not ours; another GET handler may still claim the request.
		return nil
	}

	accept := rctx.Request.Headers.Get("accept")

	gqlReq, err := gqlmsg.ExtractFromQueryString(rctx.Request.QueryString)
	if err != nil {
		rctx.ShortCircuit(gqlmsg.ErrorHTTPResponse(accept, err.Error(), http.StatusBadRequest))
		return nil
	}

	parsed, err := gqlmsg.Parse(gqlReq)
	if err != nil {
		rctx.ShortCircuit(gqlmsg.ErrorHTTPResponse(accept, err.Error(), http.StatusBadRequest))
		return nil
	}

	if parsed.IsMutation() && !p.cfg.Mutations {
		resp := gqlmsg.NewErrorResponse("mutations are not allowed over GET").ToHTTPResponse(http.StatusMethodNotAllowed)
		rctx.ShortCircuit(resp)
		return nil
	}

	rctx.GraphQL = parsed
	return nil
}
