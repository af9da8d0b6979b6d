package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWalkObjects_FlattensNestedArrays(t *testing.T) {
	doc := map[string]any{
		"teams": []any{
			map[string]any{
				"members": []any{
					map[string]any{"id": "1"},
					map[string]any{"id": "2"},
				},
			},
			map[string]any{
				"members": []any{
					map[string]any{"id": "3"},
				},
			},
		},
	}

	objects := walkObjects(doc, []string{"teams", "members"})

	var ids []string
	for _, obj := range objects {
		ids = append(ids, obj["id"].(string))
	}

	want := []string{"1", "2", "3"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("depth-first order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkObjects_ReturnsLiveReferences(t *testing.T) {
	doc := map[string]any{
		"users": []any{map[string]any{"id": "1"}},
	}

	objects := walkObjects(doc, []string{"users"})
	if len(objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(objects))
	}

	objects[0]["name"] = "Ada"

	user := doc["users"].([]any)[0].(map[string]any)
	if user["name"] != "Ada" {
		t.Error("mutating a walked object must be visible in the document")
	}
}

func TestWalkObjects_MissingSegment(t *testing.T) {
	doc := map[string]any{"users": []any{map[string]any{"id": "1"}}}

	if got := walkObjects(doc, []string{"orders"}); got != nil {
		t.Errorf("expected nil for a missing path segment, got %v", got)
	}
}

func TestPruneObject_StripsSyntheticNodesAndKeepsAliases(t *testing.T) {
	plan := planQuery(t, `query { users { handle: name reviews { id } } }`,
		subgraphFixture{"accounts", accountsSchema, "http://accounts.example.com"},
		subgraphFixture{"reviews", reviewsSchema, "http://reviews.example.com"})

	// The document carries the planner-injected id and __typename alongside
	// the user-requested fields.
	doc := map[string]any{
		"users": []any{
			map[string]any{
				"__typename": "User",
				"id":         "1",
				"handle":     "ada",
				"reviews":    []any{map[string]any{"id": "r1", "__typename": "Review"}},
			},
		},
	}

	pruned := pruneObject(plan.Arena, doc, plan.Arena.Roots)

	want := map[string]any{
		"users": []any{
			map[string]any{
				"handle":  "ada",
				"reviews": []any{map[string]any{"id": "r1"}},
			},
		},
	}
	if diff := cmp.Diff(want, pruned); diff != "" {
		t.Errorf("prune mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneObject_KeepsUserRequestedTypename(t *testing.T) {
	plan := planQuery(t, `query { users { __typename id } }`,
		subgraphFixture{"accounts", accountsSchema, "http://accounts.example.com"})

	doc := map[string]any{
		"users": []any{map[string]any{"__typename": "User", "id": "1"}},
	}

	pruned := pruneObject(plan.Arena, doc, plan.Arena.Roots)

	want := map[string]any{
		"users": []any{map[string]any{"__typename": "User", "id": "1"}},
	}
	if diff := cmp.Diff(want, pruned); diff != "" {
		t.Errorf("a user-requested __typename must survive pruning (-want +got):\n%s", diff)
	}
}
