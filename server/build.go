package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	goliteql "github.com/n9te9/goliteql/schema"
	"github.com/goccy/go-yaml"
	"github.com/n9te9/graphql-gateway/internal/config"
	"github.com/n9te9/graphql-gateway/internal/gateway"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	"github.com/n9te9/graphql-gateway/internal/pluginmgr"
	"github.com/n9te9/graphql-gateway/internal/plugins"
	"github.com/n9te9/graphql-gateway/internal/schemaawareness"
	"github.com/n9te9/graphql-gateway/internal/source"
	"github.com/n9te9/graphql-gateway/internal/tracing"
	"go.uber.org/zap"
)

// buildLogger maps logger config onto a slog handler.
func buildLogger(cfg config.LoggerConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Filter {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "pretty", "compact":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// graphqlSourceConfig is the config block of a graphql source.
type graphqlSourceConfig struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
	Schema   *struct {
		Format       string            `json:"format"`
		Inline       string            `json:"inline"`
		File         string            `json:"file"`
		URL          string            `json:"url"`
		Method       string            `json:"method"`
		Headers      map[string]string `json:"headers"`
		PollInterval string            `json:"poll_interval"`
		Required     bool              `json:"required"`
	} `json:"schema"`
}

// federationSourceConfig is the config block of a federation source.
type federationSourceConfig struct {
	Services []struct {
		Name        string   `json:"name"`
		Host        string   `json:"host"`
		SDL         string   `json:"sdl"`
		SchemaFiles []string `json:"schema_files"`
		FetchSDL    bool     `json:"fetch_sdl"`
	} `json:"services"`
	Supergraph *struct {
		File   string `json:"file"`
		EnvVar string `json:"env_var"`
		Remote string `json:"remote"`
	} `json:"supergraph"`
	PollInterval string `json:"poll_interval"`
	Timeout      string `json:"timeout"`
}

// supergraphManifest is the document a federation source's `supergraph`
// reference points at: the participating subgraphs with their schemas.
type supergraphManifest struct {
	Subgraphs []struct {
		Name string `yaml:"name"`
		Host string `yaml:"host"`
		SDL  string `yaml:"sdl"`
	} `yaml:"subgraphs"`
}

// mockSourceConfig is the config block of a mock source.
type mockSourceConfig struct {
	Body string `json:"body"`
}

// buildSources constructs every configured source. The returned stop
// function ends all background refreshers.
func buildSources(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[string]source.Source, func(), error) {
	sources := make(map[string]source.Source, len(cfg.Sources))
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}

	for _, sc := range cfg.Sources {
		switch sc.Type {
		case config.SourceTypeGraphQL:
			src, stop, err := buildGraphQLSource(ctx, sc, logger)
			if err != nil {
				stopAll()
				return nil, nil, fmt.Errorf("failed to build source %q: %w", sc.ID, err)
			}
			if stop != nil {
				stops = append(stops, stop)
			}
			sources[sc.ID] = src

		case config.SourceTypeFederation:
			src, err := buildFederationSource(sc, logger)
			if err != nil {
				stopAll()
				return nil, nil, fmt.Errorf("failed to build source %q: %w", sc.ID, err)
			}
			stops = append(stops, src.Stop)
			sources[sc.ID] = src

		case config.SourceTypeMock:
			var mc mockSourceConfig
			if err := pluginapi.DecodeConfig(sc.Config, &mc); err != nil {
				stopAll()
				return nil, nil, fmt.Errorf("failed to build source %q: %w", sc.ID, err)
			}
			sources[sc.ID] = source.NewMockSource(sc.ID, []byte(mc.Body))
		}
	}

	return sources, stopAll, nil
}

func buildGraphQLSource(ctx context.Context, sc config.SourceConfig, logger *slog.Logger) (source.Source, func(), error) {
	var gc graphqlSourceConfig
	if err := pluginapi.DecodeConfig(sc.Config, &gc); err != nil {
		return nil, nil, err
	}
	if gc.Endpoint == "" {
		return nil, nil, fmt.Errorf("graphql source requires an endpoint")
	}

	client := &http.Client{Timeout: parseDuration(gc.Timeout, 30*time.Second)}

	var awareness *schemaawareness.Awareness[*goliteql.Schema]
	if gc.Schema != nil {
		awCfg := schemaawareness.Config[*goliteql.Schema]{
			Processor:    source.GoliteqlProcessor,
			PollInterval: parseDuration(gc.Schema.PollInterval, 0),
			HTTPClient:   client,
			Logger:       logger,
		}
		if gc.Schema.Required {
			awCfg.OnError = schemaawareness.OnErrorTerminate
		}
		if gc.Schema.Format == "introspection" {
			awCfg.Format = schemaawareness.FormatIntrospection
		}

		switch {
		case gc.Schema.Inline != "":
			awCfg.Source = schemaawareness.Source{Kind: schemaawareness.SourceInline, Inline: gc.Schema.Inline}
		case gc.Schema.File != "":
			awCfg.Source = schemaawareness.Source{Kind: schemaawareness.SourceFile, Path: gc.Schema.File}
		case gc.Schema.URL != "":
			awCfg.Source = schemaawareness.Source{
				Kind:    schemaawareness.SourceRemote,
				URL:     gc.Schema.URL,
				Method:  gc.Schema.Method,
				Headers: gc.Schema.Headers,
			}
		default:
			return nil, nil, fmt.Errorf("graphql source schema block names no source")
		}

		aw, err := schemaawareness.New(ctx, awCfg)
		if err != nil {
			return nil, nil, err
		}
		awareness = aw
		return source.NewGraphQLSource(sc.ID, gc.Endpoint, client, awareness), aw.Stop, nil
	}

	return source.NewGraphQLSource(sc.ID, gc.Endpoint, client, nil), nil, nil
}

func buildFederationSource(sc config.SourceConfig, logger *slog.Logger) (*source.FederationSource, error) {
	var fc federationSourceConfig
	if err := pluginapi.DecodeConfig(sc.Config, &fc); err != nil {
		return nil, err
	}

	fedCfg := source.FederationConfig{
		PollInterval: parseDuration(fc.PollInterval, 0),
	}

	for _, svc := range fc.Services {
		fedCfg.Subgraphs = append(fedCfg.Subgraphs, source.SubgraphConfig{
			Name:        svc.Name,
			Host:        svc.Host,
			SDL:         svc.SDL,
			SchemaFiles: svc.SchemaFiles,
			FetchSDL:    svc.FetchSDL,
		})
	}

	if fc.Supergraph != nil {
		manifest, err := loadSupergraphManifest(fc.Supergraph.File, fc.Supergraph.EnvVar, fc.Supergraph.Remote)
		if err != nil {
			return nil, err
		}
		for _, sub := range manifest.Subgraphs {
			fedCfg.Subgraphs = append(fedCfg.Subgraphs, source.SubgraphConfig{
				Name: sub.Name,
				Host: sub.Host,
				SDL:  sub.SDL,
			})
		}
	}

	if len(fedCfg.Subgraphs) == 0 {
		return nil, fmt.Errorf("federation source declares no subgraphs")
	}

	client := &http.Client{Timeout: parseDuration(fc.Timeout, 30*time.Second)}
	return source.NewFederationSource(sc.ID, fedCfg, client, logger)
}

func loadSupergraphManifest(file, envVar, remote string) (*supergraphManifest, error) {
	var raw []byte
	switch {
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read supergraph manifest: %w", err)
		}
		raw = b
	case envVar != "":
		v, ok := os.LookupEnv(envVar)
		if !ok {
			return nil, fmt.Errorf("supergraph env var %q is not set", envVar)
		}
		raw = []byte(v)
	case remote != "":
		resp, err := http.Get(remote)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch supergraph manifest: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching supergraph manifest", resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, fmt.Errorf("supergraph block names no file, env_var or remote")
	}

	var manifest supergraphManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode supergraph manifest: %w", err)
	}
	return &manifest, nil
}

// buildGateway compiles per-endpoint plugin chains (global plugins first,
// endpoint plugins appended) and assembles the route table. Telemetry
// plugins are bound to their tenant's span reporter after tenant ids are
// assigned.
func buildGateway(ctx context.Context, cfg *config.Config, sources map[string]source.Source, logger *slog.Logger) (*gateway.Gateway, *tracing.Manager, error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger = zap.NewNop()
	}

	routes := make([]*gateway.Route, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		chain := make([]pluginapi.Plugin, 0, len(cfg.Plugins)+len(ep.Plugins))

		for _, pc := range append(append([]config.PluginConfig{}, cfg.Plugins...), ep.Plugins...) {
			p, err := pluginapi.New(pc.Type, pc.Config)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to build plugin for endpoint %q: %w", ep.Path, err)
			}
			zapLogger.Info("plugin constructed",
				zap.String("endpoint", ep.Path),
				zap.String("plugin", p.Name()),
			)
			chain = append(chain, p)
		}

		routes = append(routes, &gateway.Route{
			Path:    ep.Path,
			Source:  sources[ep.From],
			Plugins: pluginmgr.New(zapLogger, chain...),
		})
	}

	var opts []gateway.Option
	if cfg.Logger.PrintPerformanceInfo {
		opts = append(opts, gateway.WithPerformanceInfo())
	}
	gw := gateway.New(logger, routes, opts...)

	manager := tracing.NewManager()
	for _, route := range gw.Routes() {
		for _, p := range route.Plugins.Plugins() {
			tp, ok := p.(*plugins.Telemetry)
			if !ok {
				continue
			}
			if err := manager.Register(ctx, route.TenantID, tp.Config()); err != nil {
				return nil, nil, fmt.Errorf("failed to register span reporter for endpoint %q: %w", route.Path, err)
			}
			tp.Bind(route.TenantID, manager)
		}
	}

	return gw, manager, nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
