package plugins

import (
	"context"
	"net/http"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"github.com/n9te9/graphql-gateway/internal/vrlembed"
	"github.com/n9te9/graphql-parser/ast"
)

func init() {
	pluginapi.Register("disable_introspection", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg IntrospectionGuardConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewIntrospectionGuard(cfg)
	})
}

// IntrospectionGuardConfig configures the introspection guard.
type IntrospectionGuardConfig struct {
	// Condition is an optional script deciding whether the guard applies to
	// this request. It runs against the request metadata; the guard is
	// skipped only when the script sets `.vars.result` to a value other than
	// boolean true. A script that fails, short-circuits or leaves
	// `.vars.result` unset guards the request, and an absent condition
	// guards unconditionally.
	Condition string `json:"condition"`
}

// IntrospectionGuard rejects introspection operations: any use of __schema
// or __type, and operations selecting nothing but __typename.
type IntrospectionGuard struct {
	condition *vrlembed.Program
}

func NewIntrospectionGuard(cfg IntrospectionGuardConfig) (*IntrospectionGuard, error) {
	p := &IntrospectionGuard{}
	if cfg.Condition != "" {
		program, err := vrlembed.Compile(cfg.Condition)
		if err != nil {
			return nil, err
		}
		p.condition = program
	}
	return p, nil
}

func (p *IntrospectionGuard) Name() string { return "disable_introspection" }

func (p *IntrospectionGuard) OnDownstreamGraphQLRequest(ctx context.Context, rctx *execcontext.Context) error {
	if !p.applies(rctx) {
		return nil
	}

	op := rctx.GraphQL.Operation()
	if op == nil {
		return nil
	}

	if !isIntrospectionOperation(op) {
		return nil
	}

	resp := gqlmsg.NewErrorResponse("Introspection is disabled").ToHTTPResponse(http.StatusOK)
	rctx.ShortCircuit(resp)
	return nil
}

func (p *IntrospectionGuard) applies(rctx *execcontext.Context) bool {
	if p.condition == nil {
		return true
	}

	target := &vrlembed.Target{
		Metadata: map[string]any{
			"downstream_http_req": map[string]any{
				"method":  rctx.Request.Method,
				"uri":     rctx.Request.URI,
				"headers": headersValue(rctx.Request),
			},
		},
		Mutable: map[string]any{},
	}

	outcome, err := p.condition.Eval(target)
	if err != nil || outcome.ShortCircuit {
		// A broken condition fails closed: guard everything.
		return true
	}

	vars, _ := target.Mutable["vars"].(map[string]any)
	if vars == nil {
		return true
	}
	result, ok := vars["result"]
	if !ok {
		return true
	}
	b, _ := result.(bool)
	return b
}

// isIntrospectionOperation reports whether op is pure introspection: it
// touches __schema or __type at the root, or selects only __typename. A
// mixed selection like `__typename id` is allowed through.
func isIntrospectionOperation(op *ast.OperationDefinition) bool {
	typenameOnly := true

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			typenameOnly = false
			continue
		}
		switch field.Name.String() {
		case "__schema", "__type":
			return true
		case "__typename":
		default:
			typenameOnly = false
		}
	}

	return typenameOnly && len(op.SelectionSet) > 0
}
