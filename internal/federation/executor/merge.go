package executor

import (
	"github.com/n9te9/graphql-gateway/internal/federation/planner"
)

// walkObjects returns every object reachable from value by following path,
// flattening any arrays encountered along the way (including arrays nested
// inside arrays). The returned maps are the live objects, not copies: a
// mutation through them is visible in the enclosing document. Order is
// depth-first, matching the order representations are sent and _entities
// results come back.
func walkObjects(value any, path []string) []map[string]any {
	switch v := value.(type) {
	case map[string]any:
		if len(path) == 0 {
			return []map[string]any{v}
		}
		next, ok := v[path[0]]
		if !ok {
			return nil
		}
		return walkObjects(next, path[1:])

	case []any:
		var objects []map[string]any
		for _, elem := range v {
			objects = append(objects, walkObjects(elem, path)...)
		}
		return objects
	}

	return nil
}

// pruneObject rebuilds value keeping only the fields the user requested:
// children indexes arena nodes, and synthetic ones (planner-injected
// __typename and @key fields) are dropped. Scalars and missing fields pass
// through untouched.
func pruneObject(arena *planner.Arena, value any, children []int) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(children))
		for _, childIdx := range children {
			child := arena.At(childIdx)
			if child.Synthetic {
				continue
			}
			key := child.ResponseKey()
			fieldValue, ok := v[key]
			if !ok {
				continue
			}
			if len(child.Children) > 0 {
				out[key] = pruneObject(arena, fieldValue, child.Children)
			} else {
				out[key] = fieldValue
			}
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = pruneObject(arena, elem, children)
		}
		return out
	}

	return value
}
