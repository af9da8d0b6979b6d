// Package plugins ships the gateway's built-in plugin set. Each plugin
// registers a factory under its config type name and implements the hook
// interfaces it needs; the manager treats them all uniformly.
package plugins

import (
	"context"
	"net/http"
	"net/url"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"github.com/rs/cors"
)

func init() {
	pluginapi.Register("cors", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg CORSConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewCORS(cfg), nil
	})
}

// CORSConfig configures the cors plugin. Zero values mean "allow
// everything", which answers preflights with literal wildcards.
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

func (c CORSConfig) wildcard() bool {
	return len(c.AllowedOrigins) == 0 && len(c.AllowedMethods) == 0 &&
		len(c.AllowedHeaders) == 0 && !c.AllowCredentials
}

// CORS answers preflight requests and decorates responses with CORS
// headers.
type CORS struct {
	cfg      CORSConfig
	wildcard bool
	cors     *cors.Cors
}

// NewCORS builds the plugin. Restricted configs delegate origin/method
// computation to rs/cors; the default config answers with wildcards
// directly.
func NewCORS(cfg CORSConfig) *CORS {
	return &CORS{
		cfg:      cfg,
		wildcard: cfg.wildcard(),
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   cfg.AllowedMethods,
			AllowedHeaders:   cfg.AllowedHeaders,
			AllowCredentials: cfg.AllowCredentials,
			MaxAge:           cfg.MaxAge,
		}),
	}
}

func (p *CORS) Name() string { return "cors" }

// OnDownstreamHTTPRequest short-circuits OPTIONS preflights.
func (p *CORS) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	if rctx.Request.Method != http.MethodOptions {
		return nil
	}

	resp := &httpmsg.Response{Status: http.StatusOK}

	if p.wildcard {
		resp.Headers.Set("access-control-allow-origin", "*")
		resp.Headers.Set("access-control-allow-methods", "*")
		resp.Headers.Set("access-control-allow-headers", "*")
	} else {
		p.applyComputedHeaders(rctx.Request, &resp.Headers)
	}

	resp.Headers.Set("content-length", "0")
	rctx.ShortCircuit(resp)
	return nil
}

// OnDownstreamHTTPResponse adds the allow-origin header to actual
// responses.
func (p *CORS) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	if rctx.Request.Method == http.MethodOptions {
		return
	}

	if p.wildcard {
		if !resp.Headers.Has("access-control-allow-origin") {
			resp.Headers.Set("access-control-allow-origin", "*")
		}
		return
	}

	p.applyComputedHeaders(rctx.Request, &resp.Headers)
}

// applyComputedHeaders runs rs/cors against a synthesized request and
// copies whatever headers it decided on.
func (p *CORS) applyComputedHeaders(req *httpmsg.Request, dst *httpmsg.Header) {
	httpReq := &http.Request{
		Method: req.Method,
		URL:    &url.URL{Path: req.URI},
		Header: make(http.Header),
	}
	req.Headers.CopyTo(httpReq.Header)

	rec := newHeaderRecorder()
	p.cors.HandlerFunc(rec, httpReq)

	for key, values := range rec.header {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

// headerRecorder captures the headers an http middleware writes.
type headerRecorder struct {
	header http.Header
	status int
}

func newHeaderRecorder() *headerRecorder {
	return &headerRecorder{header: make(http.Header)}
}

func (r *headerRecorder) Header() http.Header         { return r.header }
func (r *headerRecorder) WriteHeader(status int)      { r.status = status }
func (r *headerRecorder) Write(b []byte) (int, error) { return len(b), nil }
