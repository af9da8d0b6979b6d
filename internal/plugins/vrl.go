package plugins

import (
	"context"
	"fmt"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"github.com/n9te9/graphql-gateway/internal/vrlembed"
)

func init() {
	pluginapi.Register("vrl", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg VRLConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewVRL(cfg)
	})
}

const stateVRL = "vrl.state"

// VRLConfig carries one script per hook. Scripts are compiled at plugin
// construction; a compile error fails endpoint construction.
type VRLConfig struct {
	OnDownstreamHTTPRequest    string `json:"on_downstream_http_request"`
	OnDownstreamGraphQLRequest string `json:"on_downstream_graphql_request"`
	OnUpstreamHTTPRequest      string `json:"on_upstream_http_request"`
	OnDownstreamHTTPResponse   string `json:"on_downstream_http_response"`
}

// VRL evaluates user scripts against the request surface. Mutable state is
// chained across the hooks of one request: an assignment in an earlier hook
// is visible in later hooks.
type VRL struct {
	httpRequest    *vrlembed.Program
	graphqlRequest *vrlembed.Program
	upstream       *vrlembed.Program
	httpResponse   *vrlembed.Program
}

func NewVRL(cfg VRLConfig) (*VRL, error) {
	p := &VRL{}

	compile := func(name, src string, dst **vrlembed.Program) error {
		if src == "" {
			return nil
		}
		program, err := vrlembed.Compile(src)
		if err != nil {
			return fmt.Errorf("failed to compile %s script: %w", name, err)
		}
		*dst = program
		return nil
	}

	if err := compile("on_downstream_http_request", cfg.OnDownstreamHTTPRequest, &p.httpRequest); err != nil {
		return nil, err
	}
	if err := compile("on_downstream_graphql_request", cfg.OnDownstreamGraphQLRequest, &p.graphqlRequest); err != nil {
		return nil, err
	}
	if err := compile("on_upstream_http_request", cfg.OnUpstreamHTTPRequest, &p.upstream); err != nil {
		return nil, err
	}
	if err := compile("on_downstream_http_response", cfg.OnDownstreamHTTPResponse, &p.httpResponse); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *VRL) Name() string { return "vrl" }

func (p *VRL) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	if p.httpRequest == nil {
		return nil
	}
	outcome, err := p.eval(p.httpRequest, rctx)
	if err != nil {
		return err
	}
	p.applyShortCircuit(rctx, outcome)
	return nil
}

func (p *VRL) OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error {
	if p.graphqlRequest == nil {
		return nil
	}

	state := p.state(rctx)
	gql, _ := state["graphql"].(map[string]any)
	if gql == nil {
		gql = make(map[string]any)
		state["graphql"] = gql
	}
	if _, ok := gql["operation"]; !ok {
		gql["operation"] = rctx.GraphQL.Query
		gql["operation_name"] = rctx.GraphQL.OperationName
	}

	outcome, err := p.eval(p.graphqlRequest, rctx)
	if err != nil {
		return err
	}
	if p.applyShortCircuit(rctx, outcome) {
		return nil
	}

	// A rewritten operation must be reparsed to keep text and AST
	// consistent.
	if operation, ok := gql["operation"].(string); ok && operation != rctx.GraphQL.Query {
		rctx.GraphQL.Query = operation
		if err := rctx.GraphQL.Reparse(); err != nil {
			return fmt.Errorf("script produced an unparsable operation: %w", err)
		}
	}

	return nil
}

func (p *VRL) OnUpstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context, outgoing *httpmsg.Request) error {
	if p.upstream == nil {
		return nil
	}
	outcome, err := p.eval(p.upstream, rctx)
	if err != nil {
		return err
	}
	if p.applyShortCircuit(rctx, outcome) {
		return nil
	}

	applyHeaderState(p.state(rctx), outgoing.Headers.Set)
	return nil
}

func (p *VRL) OnDownstreamHTTPResponse(rctx *execcontext.Context, resp *httpmsg.Response) {
	if p.httpResponse == nil {
		return
	}
	outcome, err := p.eval(p.httpResponse, rctx)
	if err != nil || outcome.ShortCircuit {
		// The terminal hook cannot replace the response wholesale; a
		// short_circuit here is ignored.
		return
	}

	applyHeaderState(p.state(rctx), resp.Headers.Set)
}

func (p *VRL) state(rctx *execcontext.Context) map[string]any {
	if v, ok := rctx.Get(stateVRL); ok {
		return v.(map[string]any)
	}
	state := make(map[string]any)
	rctx.Set(stateVRL, state)
	return state
}

func (p *VRL) eval(program *vrlembed.Program, rctx *execcontext.Context) (*vrlembed.Outcome, error) {
	target := &vrlembed.Target{
		Metadata: map[string]any{
			"downstream_http_req": map[string]any{
				"method":       rctx.Request.Method,
				"uri":          rctx.Request.URI,
				"query_string": rctx.Request.QueryString,
				"headers":      headersValue(rctx.Request),
			},
		},
		Mutable: p.state(rctx),
	}
	return program.Eval(target)
}

func (p *VRL) applyShortCircuit(rctx *execcontext.Context, outcome *vrlembed.Outcome) bool {
	if !outcome.ShortCircuit {
		return false
	}
	resp := gqlmsg.NewErrorResponse(outcome.Message).ToHTTPResponse(outcome.Status)
	rctx.ShortCircuit(resp)
	return true
}

// applyHeaderState copies `.headers.*` assignments from the script state.
func applyHeaderState(state map[string]any, set func(key, value string)) {
	headers, _ := state["headers"].(map[string]any)
	for name, value := range headers {
		if s, ok := value.(string); ok {
			set(name, s)
		}
	}
}

// headersValue exposes request headers to scripts as a lower-cased map.
func headersValue(req *httpmsg.Request) map[string]any {
	headers := make(map[string]any)
	req.Headers.Range(func(key, value string) bool {
		if _, ok := headers[key]; !ok {
			headers[key] = value
		}
		return true
	})
	return headers
}
