package plugins

import (
	"context"
	"net/http"
	"strings"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
)

func init() {
	pluginapi.Register("graphiql", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg GraphiQLConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewGraphiQL(cfg), nil
	})
}

// GraphiQLConfig configures the playground page.
type GraphiQLConfig struct {
	// PageTitle overrides the HTML document title.
	PageTitle string `json:"page_title"`
}

// GraphiQL serves an HTML playground on GET requests that prefer HTML,
// deferring to other GET handling (http_get, persisted documents)
// otherwise.
type GraphiQL struct {
	cfg GraphiQLConfig
}

func NewGraphiQL(cfg GraphiQLConfig) *GraphiQL {
	if cfg.PageTitle == "" {
		cfg.PageTitle = "GraphiQL"
	}
	return &GraphiQL{cfg: cfg}
}

func (p *GraphiQL) Name() string { return "graphiql" }

func (p *GraphiQL) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	if rctx.Request.Method != http.MethodGet {
		return nil
	}
	if !httpmsg.AcceptsHTML(rctx.Request.Headers.Get("accept")) {
		return nil
	}

	page := strings.Replace(graphiqlHTML, "{{title}}", p.cfg.PageTitle, 1)
	page = strings.Replace(page, "{{endpoint}}", rctx.Request.URI, 1)

	resp := &httpmsg.Response{Status: http.StatusOK, Body: []byte(page)}
	resp.Headers.Set("content-type", "text/html; charset=utf-8")
	rctx.ShortCircuit(resp)
	return nil
}

const graphiqlHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>{{title}}</title>
  <style>body { margin: 0; } #graphiql { height: 100vh; }</style>
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <link rel="stylesheet" href="https://unpkg.com/graphiql/graphiql.min.css" />
</head>
<body>
  <div id="graphiql">Loading...</div>
  <script crossorigin src="https://unpkg.com/graphiql/graphiql.min.js"></script>
  <script>
    const root = ReactDOM.createRoot(document.getElementById('graphiql'));
    root.render(
      React.createElement(GraphiQL, {
        fetcher: GraphiQL.createFetcher({ url: '{{endpoint}}' }),
      })
    );
  </script>
</body>
</html>
`
