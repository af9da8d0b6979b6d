package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-gateway/internal/federation/planner"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

type subgraphFixture struct {
	name   string
	schema string
	host   string
}

func planQuery(t *testing.T, query string, defs ...subgraphFixture) *planner.Plan {
	t.Helper()

	var subGraphs []*graph.SubGraph
	for _, def := range defs {
		sg, err := graph.NewSubGraph(def.name, []byte(def.schema), def.host)
		if err != nil {
			t.Fatalf("NewSubGraph(%q) failed: %v", def.name, err)
		}
		subGraphs = append(subGraphs, sg)
	}

	superGraph, err := graph.NewSuperGraph(subGraphs)
	if err != nil {
		t.Fatalf("NewSuperGraph failed: %v", err)
	}

	l := lexer.New(query)
	pp := parser.New(l)
	doc := pp.ParseDocument()
	if len(pp.Errors()) > 0 {
		t.Fatalf("parse error: %v", pp.Errors())
	}

	plan, err := planner.New(superGraph).Plan(doc, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

func jsonServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

const accountsSchema = `
	type User @key(fields: "id") {
		id: ID!
		name: String!
	}

	type Query {
		users: [User]
	}
`

const reviewsSchema = `
	extend type User @key(fields: "id") {
		id: ID! @external
		reviews: [Review]
	}

	type Review {
		id: ID!
		body: String
	}
`

func TestExecutor_SimpleRootQuery(t *testing.T) {
	srv := jsonServer(`{"data":{"users":[{"id":"1","name":"Ada","__typename":"User"}]}}`)
	defer srv.Close()

	plan := planQuery(t, `query { users { id name } }`,
		subgraphFixture{"accounts", accountsSchema, srv.URL})

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := map[string]any{
		"users": []any{map[string]any{"id": "1", "name": "Ada"}},
	}
	if diff := cmp.Diff(want, result["data"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	if _, hasErrors := result["errors"]; hasErrors {
		t.Errorf("unexpected errors: %v", result["errors"])
	}
}

func TestExecutor_ParallelRootSteps(t *testing.T) {
	accounts := jsonServer(`{"data":{"users":[{"id":"1"}]}}`)
	defer accounts.Close()
	inventory := jsonServer(`{"data":{"warehouses":[{"city":"Osaka"}]}}`)
	defer inventory.Close()

	plan := planQuery(t, `query { users { id } warehouses { city } }`,
		subgraphFixture{"accounts", accountsSchema, accounts.URL},
		subgraphFixture{"inventory", `
			type Warehouse {
				id: ID!
				city: String!
			}

			type Query {
				warehouses: [Warehouse]
			}
		`, inventory.URL})

	levels, err := schedule(plan)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if len(levels) != 1 || len(levels[0]) != 2 {
		t.Fatalf("independent root steps should share level 0, got %d levels", len(levels))
	}

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := map[string]any{
		"users":      []any{map[string]any{"id": "1"}},
		"warehouses": []any{map[string]any{"city": "Osaka"}},
	}
	if diff := cmp.Diff(want, result["data"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_EntityJoinSplicesAndStripsInjectedKeys(t *testing.T) {
	accounts := jsonServer(`{"data":{"users":[` +
		`{"__typename":"User","id":"1"},` +
		`{"__typename":"User","id":"2"}]}}`)
	defer accounts.Close()

	reviews := jsonServer(`{"data":{"_entities":[` +
		`{"__typename":"User","id":"1","reviews":[{"id":"r1"}]},` +
		`{"__typename":"User","id":"2","reviews":[{"id":"r2"}]}]}}`)
	defer reviews.Close()

	// id is not requested by the user: the planner injects it for the join
	// and the executor must strip it again.
	plan := planQuery(t, `query { users { reviews { id } } }`,
		subgraphFixture{"accounts", accountsSchema, accounts.URL},
		subgraphFixture{"reviews", reviewsSchema, reviews.URL})

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := map[string]any{
		"users": []any{
			map[string]any{"reviews": []any{map[string]any{"id": "r1"}}},
			map[string]any{"reviews": []any{map[string]any{"id": "r2"}}},
		},
	}
	if diff := cmp.Diff(want, result["data"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_RootFailureNullsFieldsAndRecordsError(t *testing.T) {
	srv := jsonServer(`{}`)
	srv.Close() // closed so the request fails at the transport level

	plan := planQuery(t, `query { users { id } }`,
		subgraphFixture{"accounts", accountsSchema, srv.URL})

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute should not propagate subgraph transport errors, got: %v", err)
	}

	data := result["data"].(map[string]any)
	if v, ok := data["users"]; !ok || v != nil {
		t.Errorf("users should be nulled on failure, got %v", v)
	}

	errs, ok := result["errors"].([]GraphQLError)
	if !ok || len(errs) == 0 {
		t.Fatalf("expected errors to be recorded, got %v", result["errors"])
	}
	if errs[0].Extensions["serviceName"] != "accounts" {
		t.Errorf("error should name the failing subgraph, got %v", errs[0].Extensions)
	}
}

func TestExecutor_EntityFailureNullsTargetFields(t *testing.T) {
	accounts := jsonServer(`{"data":{"users":[{"__typename":"User","id":"1"}]}}`)
	defer accounts.Close()

	reviews := jsonServer(`{}`)
	reviews.Close()

	plan := planQuery(t, `query { users { id reviews { id } } }`,
		subgraphFixture{"accounts", accountsSchema, accounts.URL},
		subgraphFixture{"reviews", reviewsSchema, reviews.URL})

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data := result["data"].(map[string]any)
	users := data["users"].([]any)
	user := users[0].(map[string]any)

	if user["id"] != "1" {
		t.Errorf("fields from the healthy step must survive, got %v", user)
	}
	if v, ok := user["reviews"]; !ok || v != nil {
		t.Errorf("reviews should be nulled on entity failure, got %v", v)
	}
	if _, hasErrors := result["errors"]; !hasErrors {
		t.Error("expected the entity failure to be recorded")
	}
}

func TestExecutor_SubgraphErrorsCarryInsertionPath(t *testing.T) {
	accounts := jsonServer(`{"data":{"users":[{"__typename":"User","id":"1"}]}}`)
	defer accounts.Close()

	reviews := jsonServer(`{"data":{"_entities":[{"__typename":"User","id":"1","reviews":null}]},` +
		`"errors":[{"message":"reviews store is down"}]}`)
	defer reviews.Close()

	plan := planQuery(t, `query { users { id reviews { id } } }`,
		subgraphFixture{"accounts", accountsSchema, accounts.URL},
		subgraphFixture{"reviews", reviewsSchema, reviews.URL})

	result, err := New(http.DefaultClient).Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	errs := result["errors"].([]GraphQLError)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if errs[0].Message != "reviews store is down" {
		t.Errorf("message = %q", errs[0].Message)
	}
	if len(errs[0].Path) == 0 || errs[0].Path[0] != "users" {
		t.Errorf("error path should start at the insertion path, got %v", errs[0].Path)
	}
}

func TestSchedule_RejectsCycles(t *testing.T) {
	plan := &planner.Plan{
		Arena: &planner.Arena{},
		Steps: []*planner.Step{
			{ID: 0, DependsOn: []int{1}},
			{ID: 1, DependsOn: []int{0}},
		},
	}

	if _, err := New(http.DefaultClient).Execute(context.Background(), plan, nil); err == nil {
		t.Fatal("expected an error for a cyclic plan")
	}
}

func TestSchedule_EntityStepsLayerAfterTheirParents(t *testing.T) {
	plan := &planner.Plan{
		Arena: &planner.Arena{},
		Steps: []*planner.Step{
			{ID: 0},
			{ID: 1, DependsOn: []int{0}},
			{ID: 2, DependsOn: []int{1}},
			{ID: 3},
		},
	}

	levels, err := schedule(plan)
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if len(levels[0]) != 2 {
		t.Errorf("level 0 should hold both independent steps, got %d", len(levels[0]))
	}
	if len(levels[1]) != 1 || levels[1][0].ID != 1 {
		t.Errorf("level 1 should hold step 1, got %v", levels[1])
	}
	if len(levels[2]) != 1 || levels[2][0].ID != 2 {
		t.Errorf("level 2 should hold step 2, got %v", levels[2])
	}
}
