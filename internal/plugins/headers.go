package plugins

import (
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
)

func init() {
	pluginapi.Register("response_headers", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg ResponseHeadersConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewResponseHeaders(cfg), nil
	})
}

// HeaderValue is one static header assignment.
type HeaderValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderRename renames a header, keeping its value.
type HeaderRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ResponseHeadersConfig configures static response-header manipulation.
type ResponseHeadersConfig struct {
	Set    []HeaderValue  `json:"set"`
	Remove []string       `json:"remove"`
	Rename []HeaderRename `json:"rename"`
}

// ResponseHeaders applies static header edits to every response leaving the
// gateway, short-circuited ones included.
type ResponseHeaders struct {
	cfg ResponseHeadersConfig
}

func NewResponseHeaders(cfg ResponseHeadersConfig) *ResponseHeaders {
	return &ResponseHeaders{cfg: cfg}
}

func (p *ResponseHeaders) Name() string { return "response_headers" }

func (p *ResponseHeaders) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	for _, r := range p.cfg.Rename {
		values := resp.Headers.Values(r.From)
		if len(values) == 0 {
			continue
		}
		resp.Headers.Del(r.From)
		for _, v := range values {
			resp.Headers.Add(r.To, v)
		}
	}

	for _, name := range p.cfg.Remove {
		resp.Headers.Del(name)
	}

	for _, h := range p.cfg.Set {
		resp.Headers.Set(h.Name, h.Value)
	}
}
