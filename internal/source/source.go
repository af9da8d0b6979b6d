// Package source holds the runtimes that resolve a prepared GraphQL request
// against an upstream: a single GraphQL endpoint, a federated supergraph, or
// a mock fixture.
package source

import (
	"context"
	"fmt"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// ErrorKind classifies source failures for the pipeline's error mapping.
type ErrorKind int

const (
	// KindShortCircuit means a plugin already produced a response during an
	// upstream call; the context's short-circuit slot holds it.
	KindShortCircuit ErrorKind = iota
	// KindNetwork is a transport-level failure reaching the upstream.
	KindNetwork
	// KindPlanning is a failure building the federated query plan.
	KindPlanning
	// KindUnexpectedStatus is a non-2xx upstream HTTP status.
	KindUnexpectedStatus
)

// Error is a classified source failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindShortCircuit:
		return "upstream call short-circuited by a plugin"
	case KindPlanning:
		return fmt.Sprintf("failed to plan query: %v", e.Err)
	case KindUnexpectedStatus:
		return fmt.Sprintf("unexpected upstream status: %v", e.Err)
	default:
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// UpstreamHooks is the slice of the plugin chain a source drives for each
// outgoing subgraph call.
type UpstreamHooks interface {
	OnUpstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context, outgoing *httpmsg.Request) error
	OnUpstreamHTTPResponse(ctx context.Context, rctx *execcontext.Context, resp *httpmsg.Response) error
}

// Source executes the context's prepared GraphQL request.
type Source interface {
	ID() string
	Execute(ctx context.Context, rctx *execcontext.Context, hooks UpstreamHooks) (*gqlmsg.Response, error)
}
