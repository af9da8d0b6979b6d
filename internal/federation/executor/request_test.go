package executor

import (
	"strings"
	"testing"

	"github.com/n9te9/graphql-gateway/internal/federation/planner"
)

func TestRenderRootRequest_DeclaresVariablesFromSchema(t *testing.T) {
	plan := planQuery(t, `query GetProduct($productId: ID!) { product(id: $productId) { id name } }`,
		subgraphFixture{"product", `
			type Product @key(fields: "id") {
				id: ID!
				name: String!
			}

			type Query {
				product(id: ID!): Product
			}
		`, "http://product.example.com"})

	step := plan.RootSteps()[0]
	query, vars := renderRootRequest(plan, step, map[string]any{"productId": "p1"})

	if !strings.Contains(query, "$productId: ID!") {
		t.Errorf("expected the declaration to use the schema's argument type, got:\n%s", query)
	}
	if !strings.Contains(query, "product(id: $productId)") {
		t.Errorf("expected the field to reference $productId, got:\n%s", query)
	}
	if !strings.HasPrefix(query, "query(") {
		t.Errorf("expected a query operation, got:\n%s", query)
	}
	if vars["productId"] != "p1" {
		t.Errorf("variables must pass through unchanged, got %v", vars)
	}
}

func TestRenderRootRequest_MutationKeyword(t *testing.T) {
	plan := planQuery(t, `mutation { renameProduct(id: "1", name: "New") { id } }`,
		subgraphFixture{"product", `
			type Product @key(fields: "id") {
				id: ID!
				name: String!
			}

			type Mutation {
				renameProduct(id: ID!, name: String!): Product
			}
		`, "http://product.example.com"})

	query, _ := renderRootRequest(plan, plan.RootSteps()[0], nil)

	if !strings.HasPrefix(query, "mutation {") {
		t.Errorf("expected a mutation operation, got:\n%s", query)
	}
	if !strings.Contains(query, `renameProduct(id: "1", name: "New")`) {
		t.Errorf("expected literal arguments to be rendered, got:\n%s", query)
	}
}

func TestRenderRootRequest_AliasesAndOmittedBoundaryFields(t *testing.T) {
	plan := planQuery(t, `query { users { primary: name reviews { id } } }`,
		subgraphFixture{"accounts", `
			type User @key(fields: "id") {
				id: ID!
				name: String!
			}

			type Query {
				users: [User]
			}
		`, "http://accounts.example.com"},
		subgraphFixture{"reviews", reviewsSchema, "http://reviews.example.com"})

	query, _ := renderRootRequest(plan, plan.RootSteps()[0], nil)

	if !strings.Contains(query, "primary: name") {
		t.Errorf("expected the alias to be rendered, got:\n%s", query)
	}
	if strings.Contains(query, "reviews") {
		t.Errorf("a boundary field must not leak into the root request, got:\n%s", query)
	}
	if !strings.Contains(query, "id") || !strings.Contains(query, "__typename") {
		t.Errorf("expected injected key fields in the root request, got:\n%s", query)
	}
}

func TestRenderEntityRequest_Shape(t *testing.T) {
	plan := planQuery(t, `query { users { id reviews { id } } }`,
		subgraphFixture{"accounts", accountsSchema, "http://accounts.example.com"},
		subgraphFixture{"reviews", reviewsSchema, "http://reviews.example.com"})

	var entityStep *planner.Step
	for _, step := range plan.Steps {
		if step.Kind == planner.KindEntity {
			entityStep = step
		}
	}
	if entityStep == nil {
		t.Fatal("plan has no entity step")
	}

	reps := []map[string]any{{"__typename": "User", "id": "1"}}
	query, vars := renderEntityRequest(plan, entityStep, reps, nil)

	if !strings.Contains(query, "query($representations: [_Any!]!)") {
		t.Errorf("expected the representations declaration, got:\n%s", query)
	}
	if !strings.Contains(query, "_entities(representations: $representations)") {
		t.Errorf("expected an _entities call, got:\n%s", query)
	}
	if !strings.Contains(query, "... on User { __typename id") {
		t.Errorf("expected the type fragment to lead with __typename and keys, got:\n%s", query)
	}
	if !strings.Contains(query, "reviews { id }") {
		t.Errorf("expected the boundary selection inside the fragment, got:\n%s", query)
	}

	gotReps, ok := vars["representations"].([]map[string]any)
	if !ok || len(gotReps) != 1 {
		t.Fatalf("representations must be threaded into variables, got %v", vars["representations"])
	}
}

func TestValueStringRendersLiterals(t *testing.T) {
	plan := planQuery(t, `query { search(filter: {tags: ["a", "b"], limit: 3, exact: true}) { id } }`,
		subgraphFixture{"search", `
			input Filter {
				tags: [String]
				limit: Int
				exact: Boolean
			}

			type Result {
				id: ID!
			}

			type Query {
				search(filter: Filter): [Result]
			}
		`, "http://search.example.com"})

	query, _ := renderRootRequest(plan, plan.RootSteps()[0], nil)

	if !strings.Contains(query, `tags: ["a", "b"]`) {
		t.Errorf("expected the list literal, got:\n%s", query)
	}
	if !strings.Contains(query, "limit: 3") || !strings.Contains(query, "exact: true") {
		t.Errorf("expected scalar literals, got:\n%s", query)
	}
}
