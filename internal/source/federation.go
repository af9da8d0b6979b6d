package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/federation/executor"
	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-gateway/internal/federation/planner"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
)

// SubgraphConfig describes one subgraph participating in a federation
// source. Exactly one of SDL, SchemaFiles or FetchSDL supplies the schema.
type SubgraphConfig struct {
	Name        string
	Host        string
	SDL         string
	SchemaFiles []string
	FetchSDL    bool
	Retry       RetryOption
}

// FederationConfig configures a federation source.
type FederationConfig struct {
	Subgraphs    []SubgraphConfig
	PollInterval time.Duration
}

// fedBundle is one immutable planner/executor generation. A supergraph
// refresh swaps the whole bundle so in-flight requests keep a consistent
// view.
type fedBundle struct {
	superGraph *graph.SuperGraph
	planner    *planner.Planner
	executor   *executor.Executor
}

// FederationSource owns a composed supergraph and resolves operations by
// planning and dispatching per-subgraph steps.
type FederationSource struct {
	id     string
	cfg    FederationConfig
	client *http.Client
	logger *slog.Logger

	bundle atomic.Pointer[fedBundle]
	stop   chan struct{}
}

// NewFederationSource composes the supergraph and, when a poll interval is
// configured, starts the background refresher. The given client's transport
// is wrapped so every subgraph call runs the upstream plugin hooks.
func NewFederationSource(id string, cfg FederationConfig, client *http.Client, logger *slog.Logger) (*FederationSource, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	hooked := &http.Client{
		Timeout:   client.Timeout,
		Transport: newHookTransport(client.Transport),
	}

	s := &FederationSource{
		id:     id,
		cfg:    cfg,
		client: hooked,
		logger: logger,
		stop:   make(chan struct{}),
	}

	bundle, err := s.load(client)
	if err != nil {
		return nil, fmt.Errorf("failed to build supergraph for source %q: %w", id, err)
	}
	s.bundle.Store(bundle)

	if cfg.PollInterval > 0 {
		go s.pollLoop(client)
	}

	return s, nil
}

func (s *FederationSource) ID() string { return s.id }

// SuperGraph returns the current supergraph snapshot.
func (s *FederationSource) SuperGraph() *graph.SuperGraph {
	return s.bundle.Load().superGraph
}

// Stop ends the background supergraph refresher.
func (s *FederationSource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *FederationSource) load(client *http.Client) (*fedBundle, error) {
	subGraphs := make([]*graph.SubGraph, 0, len(s.cfg.Subgraphs))

	for _, sub := range s.cfg.Subgraphs {
		sdl, err := s.resolveSDL(sub, client)
		if err != nil {
			return nil, err
		}

		subGraph, err := graph.NewSubGraph(sub.Name, []byte(sdl), sub.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema for subgraph %q: %w", sub.Name, err)
		}
		subGraphs = append(subGraphs, subGraph)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		return nil, err
	}

	return &fedBundle{
		superGraph: superGraph,
		planner:    planner.New(superGraph),
		executor:   executor.New(s.client),
	}, nil
}

func (s *FederationSource) resolveSDL(sub SubgraphConfig, client *http.Client) (string, error) {
	switch {
	case sub.SDL != "":
		return sub.SDL, nil
	case len(sub.SchemaFiles) > 0:
		var schema []byte
		for _, f := range sub.SchemaFiles {
			src, err := os.ReadFile(f)
			if err != nil {
				return "", fmt.Errorf("failed to read schema file for subgraph %q: %w", sub.Name, err)
			}
			schema = append(schema, src...)
			schema = append(schema, '\n')
		}
		return string(schema), nil
	case sub.FetchSDL:
		return fetchSDL(sub.Host, client, sub.Retry)
	}
	return "", fmt.Errorf("subgraph %q has no schema source", sub.Name)
}

func (s *FederationSource) pollLoop(client *http.Client) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			bundle, err := s.load(client)
			if err != nil {
				s.logger.Warn("supergraph refresh failed, keeping previous supergraph", "source", s.id, "error", err)
				continue
			}
			s.bundle.Store(bundle)
			s.logger.Debug("supergraph refreshed", "source", s.id)
		}
	}
}

// Execute plans the operation against the supergraph and dispatches the
// plan. Introspection meta-fields are answered locally from the composed
// schema, never forwarded to a subgraph.
func (s *FederationSource) Execute(ctx context.Context, rctx *execcontext.Context, hooks UpstreamHooks) (*gqlmsg.Response, error) {
	bundle := s.bundle.Load()
	parsed := rctx.GraphQL

	intro := resolveIntrospection(bundle.superGraph, parsed.Document)
	if intro != nil && intro.exclusive {
		return introspectionResponse(intro.data)
	}

	plan, err := bundle.planner.Plan(parsed.Document, parsed.Variables)
	if err != nil {
		return nil, &Error{Kind: KindPlanning, Err: err}
	}

	result, err := bundle.executor.Execute(withUpstream(ctx, rctx, hooks), plan, parsed.Variables)
	if rctx.ShortCircuited() {
		return nil, &Error{Kind: KindShortCircuit}
	}
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	if intro != nil {
		// Mixed operation: splice the locally answered meta-fields into the
		// executor's merged data.
		if data, ok := result["data"].(map[string]interface{}); ok {
			for k, v := range intro.data {
				data[k] = v
			}
		}
	}

	body, err := json.Marshal(result)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}

	return gqlmsg.ParseResponse(body)
}

func introspectionResponse(data map[string]any) (*gqlmsg.Response, error) {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	return gqlmsg.ParseResponse(body)
}
