// Package executor dispatches a planned query across subgraphs and
// assembles their responses into a single GraphQL result.
//
// Execution is organized in dependency levels: every step whose
// prerequisites are satisfied runs concurrently with the rest of its level,
// and entity steps splice their results directly into the objects of a
// single shared response document. Because representation collection hands
// back references into that document, splicing is a shallow merge onto the
// very objects the parent step produced; no path re-walking happens on the
// way back.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/federation/planner"
	"golang.org/x/sync/errgroup"
)

// GraphQLError represents a GraphQL error with path information.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Executor executes query plans over a shared HTTP client.
type Executor struct {
	client *http.Client
}

// New creates an Executor sending subgraph requests through client.
func New(client *http.Client) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{client: client}
}

// run is the mutable state of one plan execution: the shared response
// document every step writes into, plus per-step error lists kept separate
// so the final errors array can preserve step order regardless of which
// step finished first.
type run struct {
	plan      *planner.Plan
	variables map[string]any

	mu   sync.Mutex
	data map[string]any
	errs map[int][]GraphQLError
}

// Execute runs plan and returns the assembled response map with "data" and,
// when any step failed, "errors". Subgraph failures never abort the run;
// they null the affected fields and surface in the errors array.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, variables map[string]any) (map[string]any, error) {
	levels, err := schedule(plan)
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	r := &run{
		plan:      plan,
		variables: variables,
		data:      make(map[string]any),
		errs:      make(map[int][]GraphQLError),
	}

	for _, level := range levels {
		eg, levelCtx := errgroup.WithContext(ctx)
		for _, step := range level {
			step := step
			eg.Go(func() error {
				e.perform(levelCtx, r, step)
				return levelCtx.Err()
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return r.assemble(), nil
}

// schedule layers the plan's steps by dependency depth: level 0 holds the
// root steps, level n+1 everything that only needs levels <= n. A step that
// can never be placed means the dependency graph has a cycle.
func schedule(plan *planner.Plan) ([][]*planner.Step, error) {
	placed := make(map[int]int, len(plan.Steps))
	var levels [][]*planner.Step

	remaining := len(plan.Steps)
	for remaining > 0 {
		var level []*planner.Step

		for _, step := range plan.Steps {
			if _, done := placed[step.ID]; done {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if _, done := placed[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, step)
			}
		}

		if len(level) == 0 {
			return nil, fmt.Errorf("plan contains circular dependencies")
		}

		for _, step := range level {
			placed[step.ID] = len(levels)
		}
		levels = append(levels, level)
		remaining -= len(level)
	}

	return levels, nil
}

// perform resolves one step against its subgraph and folds the result into
// the shared document.
func (e *Executor) perform(ctx context.Context, r *run, step *planner.Step) {
	if step.SubGraph == nil {
		r.record(step, GraphQLError{
			Message: fmt.Sprintf("step %d has no subgraph", step.ID),
			Path:    errorPath(step, nil),
		})
		return
	}

	if step.Kind == planner.KindRoot {
		e.performRoot(ctx, r, step)
		return
	}
	e.performEntity(ctx, r, step)
}

func (e *Executor) performRoot(ctx context.Context, r *run, step *planner.Step) {
	query, vars := renderRootRequest(r.plan, step, r.variables)

	result, err := e.post(ctx, step.SubGraph.Host, query, vars)
	if err != nil {
		r.failRoot(step, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := result["data"].(map[string]any); ok {
		for key, value := range data {
			r.data[key] = value
		}
	}
	r.recordUpstreamErrors(step, result)
}

func (e *Executor) performEntity(ctx context.Context, r *run, step *planner.Step) {
	targets, reps := r.collect(step)
	if len(targets) == 0 {
		return
	}

	query, vars := renderEntityRequest(r.plan, step, reps, r.variables)

	result, err := e.post(ctx, step.SubGraph.Host, query, vars)
	if err != nil {
		r.failEntity(step, targets, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entities := entitiesOf(result)
	for i, target := range targets {
		if i >= len(entities) {
			break
		}
		entity, ok := entities[i].(map[string]any)
		if !ok {
			continue
		}
		// The target is the live object inside the shared document that
		// produced representation i, so the splice is a plain field merge.
		for key, value := range entity {
			target[key] = value
		}
	}
	r.recordUpstreamErrors(step, result)
}

func entitiesOf(result map[string]any) []any {
	data, ok := result["data"].(map[string]any)
	if !ok {
		return nil
	}
	entities, _ := data["_entities"].([]any)
	return entities
}

// collect walks the shared document along the step's insertion path,
// flattening arrays, and returns the live target objects paired with their
// representations. Objects missing a key field are skipped on both sides so
// targets and representations stay aligned.
func (r *run) collect(step *planner.Step) (targets []map[string]any, reps []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, obj := range walkObjects(r.data, step.InsertionPath) {
		rep := map[string]any{"__typename": step.EntityType}
		complete := true
		for _, key := range step.Keys {
			value, ok := obj[key]
			if !ok {
				complete = false
				break
			}
			rep[key] = value
		}
		if !complete {
			continue
		}
		targets = append(targets, obj)
		reps = append(reps, rep)
	}

	return targets, reps
}

// failRoot records an error for a failed root step and nulls its fields.
func (r *run) failRoot(step *planner.Step, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rootIdx := range step.Roots {
		r.data[r.plan.Arena.At(rootIdx).ResponseKey()] = nil
	}
	r.errs[step.ID] = append(r.errs[step.ID], GraphQLError{
		Message:    err.Error(),
		Path:       errorPath(step, nil),
		Extensions: map[string]any{"serviceName": step.SubGraph.Name},
	})
}

// failEntity records an error for a failed entity step and nulls the fields
// it would have resolved on every target object.
func (r *run) failEntity(step *planner.Step, targets []map[string]any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, target := range targets {
		for _, rootIdx := range step.Roots {
			target[r.plan.Arena.At(rootIdx).ResponseKey()] = nil
		}
	}
	r.errs[step.ID] = append(r.errs[step.ID], GraphQLError{
		Message:    err.Error(),
		Path:       errorPath(step, nil),
		Extensions: map[string]any{"serviceName": step.SubGraph.Name},
	})
}

func (r *run) record(step *planner.Step, err GraphQLError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[step.ID] = append(r.errs[step.ID], err)
}

// recordUpstreamErrors lifts errors reported by the subgraph into the run,
// prefixing their paths with the step's insertion path. Caller holds r.mu.
func (r *run) recordUpstreamErrors(step *planner.Step, result map[string]any) {
	rawErrs, ok := result["errors"].([]any)
	if !ok {
		return
	}

	for _, raw := range rawErrs {
		errMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		message, _ := errMap["message"].(string)
		if message == "" {
			message = "unknown error from subgraph"
		}

		gqlErr := GraphQLError{
			Message:    message,
			Path:       errorPath(step, errMap["path"]),
			Extensions: map[string]any{"serviceName": step.SubGraph.Name},
		}
		if ext, ok := errMap["extensions"].(map[string]any); ok {
			for k, v := range ext {
				gqlErr.Extensions[k] = v
			}
		}

		r.errs[step.ID] = append(r.errs[step.ID], gqlErr)
	}
}

func errorPath(step *planner.Step, upstream any) []any {
	path := make([]any, 0, len(step.InsertionPath))
	for _, seg := range step.InsertionPath {
		path = append(path, seg)
	}
	if segments, ok := upstream.([]any); ok {
		path = append(path, segments...)
	}
	if len(path) == 0 {
		return nil
	}
	return path
}

// assemble prunes the shared document down to the user-requested selection
// (stripping synthetic nodes) and flattens the per-step errors in step
// order.
func (r *run) assemble() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	response := map[string]any{
		"data": pruneObject(r.plan.Arena, r.data, r.plan.Arena.Roots),
	}

	var errs []GraphQLError
	for _, step := range r.plan.Steps {
		errs = append(errs, r.errs[step.ID]...)
	}
	if len(errs) > 0 {
		response["errors"] = errs
	}

	return response
}

// post sends one GraphQL request and decodes the response body.
func (e *Executor) post(ctx context.Context, host, query string, variables map[string]any) (map[string]any, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result, nil
}
