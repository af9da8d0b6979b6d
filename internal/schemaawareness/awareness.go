// Package schemaawareness loads, caches and refreshes a source's schema,
// exposing it to concurrent readers as an atomically swapped snapshot.
package schemaawareness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-parser/ast"
)

// Format names how the raw schema input is encoded.
type Format int

const (
	// FormatSDL expects GraphQL SDL text.
	FormatSDL Format = iota
	// FormatIntrospection expects an introspection-result JSON document,
	// converted to SDL before parsing.
	FormatIntrospection
)

// SourceKind names where the raw schema input comes from.
type SourceKind int

const (
	SourceInline SourceKind = iota
	SourceFile
	SourceRemote
)

// Source describes one schema input location.
type Source struct {
	Kind    SourceKind
	Inline  string
	Path    string
	URL     string
	Method  string
	Headers map[string]string
}

// OnErrorPolicy decides what an initial load failure means.
type OnErrorPolicy int

const (
	// OnErrorIgnore continues with no schema; readers see an absent record.
	OnErrorIgnore OnErrorPolicy = iota
	// OnErrorTerminate fails construction.
	OnErrorTerminate
)

// Record is one loaded schema snapshot. Records are never mutated in place;
// a refresh swaps in a whole new record.
type Record[P any] struct {
	Raw       string
	Schema    *ast.Document
	Processed P
}

// Config configures an Awareness.
type Config[P any] struct {
	Format       Format
	Source       Source
	PollInterval time.Duration
	OnError      OnErrorPolicy

	// Processor derives the user-level value from the loaded schema.
	Processor func(raw string, schema *ast.Document) (P, error)

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Awareness owns the current schema record for one source and the optional
// background refresher replacing it.
type Awareness[P any] struct {
	cfg    Config[P]
	record atomic.Pointer[Record[P]]
	stop   chan struct{}
}

// New loads the schema once and, when a poll interval is configured, starts
// the background refresher. An initial load failure honors cfg.OnError.
func New[P any](ctx context.Context, cfg Config[P]) (*Awareness[P], error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Awareness[P]{cfg: cfg, stop: make(chan struct{})}

	record, err := a.load(ctx)
	if err != nil {
		if cfg.OnError == OnErrorTerminate {
			return nil, fmt.Errorf("failed to load schema: %w", err)
		}
		cfg.Logger.Warn("schema load failed, continuing without a schema", "error", err)
	} else {
		a.record.Store(record)
	}

	if cfg.PollInterval > 0 {
		go a.pollLoop()
	}

	return a, nil
}

// Record returns the current snapshot, or nil when no schema is loaded.
// The returned record is shared and must not be mutated.
func (a *Awareness[P]) Record() *Record[P] {
	return a.record.Load()
}

// Schema returns the current parsed schema, or nil.
func (a *Awareness[P]) Schema() *ast.Document {
	if r := a.record.Load(); r != nil {
		return r.Schema
	}
	return nil
}

// Processed returns the current user-processed value.
func (a *Awareness[P]) Processed() (P, bool) {
	if r := a.record.Load(); r != nil {
		return r.Processed, true
	}
	var zero P
	return zero, false
}

// Stop ends the background refresher. Safe to call when none is running.
func (a *Awareness[P]) Stop() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
}

func (a *Awareness[P]) pollLoop() {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			record, err := a.load(context.Background())
			if err != nil {
				// Keep the previous record; a broken refresh must not take
				// down a source that was healthy.
				a.cfg.Logger.Warn("schema refresh failed, keeping previous schema", "error", err)
				continue
			}
			a.record.Store(record)
			a.cfg.Logger.Debug("schema refreshed")
		}
	}
}

func (a *Awareness[P]) load(ctx context.Context) (*Record[P], error) {
	raw, err := a.fetchRaw(ctx)
	if err != nil {
		return nil, err
	}

	sdl := raw
	if a.cfg.Format == FormatIntrospection {
		sdl, err = IntrospectionToSDL([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to convert introspection result: %w", err)
		}
	}

	schema, err := gqlmsg.ParseQuery(sdl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	record := &Record[P]{Raw: raw, Schema: schema}
	if a.cfg.Processor != nil {
		processed, err := a.cfg.Processor(sdl, schema)
		if err != nil {
			return nil, fmt.Errorf("schema processor failed: %w", err)
		}
		record.Processed = processed
	}

	return record, nil
}

func (a *Awareness[P]) fetchRaw(ctx context.Context) (string, error) {
	src := a.cfg.Source
	switch src.Kind {
	case SourceInline:
		return src.Inline, nil

	case SourceFile:
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read schema file: %w", err)
		}
		return string(b), nil

	case SourceRemote:
		method := src.Method
		if method == "" {
			method = http.MethodGet
		}

		var body io.Reader
		if a.cfg.Format == FormatIntrospection && method == http.MethodPost {
			body = bytes.NewReader([]byte(fmt.Sprintf(`{"query":%q}`, introspectionQuery)))
		}

		req, err := http.NewRequestWithContext(ctx, method, src.URL, body)
		if err != nil {
			return "", err
		}
		for k, v := range src.Headers {
			req.Header.Set(k, v)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.cfg.HTTPClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to fetch schema from %s: %w", src.URL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("unexpected status %d fetching schema from %s", resp.StatusCode, src.URL)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	return "", fmt.Errorf("unknown schema source kind %d", src.Kind)
}
