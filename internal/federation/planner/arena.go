package planner

import (
	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// NoStep marks a node not yet claimed by any step.
const NoStep = -1

// Node is one field of the user operation, stored in an Arena and linked to
// its parent and children by index. Step is a weak index into the plan's
// step list, never an owning reference, so the node graph stays acyclic at
// the ownership level even though steps and nodes point at each other.
type Node struct {
	Name      string
	Alias     string
	Arguments []*ast.Argument

	Parent   int
	Children []int

	// Filled during enrichment.
	ParentType string
	TypeName   string
	SubGraph   *graph.SubGraph

	// Synthetic nodes are planner-injected (__typename, @key fields) and are
	// stripped from the final response.
	Synthetic bool

	Step int
}

// ResponseKey is the key this field occupies in a response object.
func (n *Node) ResponseKey() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// IsMeta reports whether the field is an introspection meta-field, resolved
// by the gateway itself rather than any subgraph.
func (n *Node) IsMeta() bool {
	switch n.Name {
	case "__typename", "__schema", "__type":
		return true
	}
	return false
}

// Arena owns every node of one planned operation. Nodes are addressed by
// index; holding a *Node across an Add is invalid since the backing slice
// may move.
type Arena struct {
	nodes []Node
	Roots []int
}

// At returns the node at index i. The pointer is valid until the next Add.
func (a *Arena) At(i int) *Node {
	return &a.nodes[i]
}

// Len returns the number of nodes.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Add appends a node and links it to its parent, returning its index.
func (a *Arena) Add(n Node) int {
	n.Step = NoStep
	idx := len(a.nodes)
	a.nodes = append(a.nodes, n)
	if n.Parent >= 0 {
		parent := &a.nodes[n.Parent]
		parent.Children = append(parent.Children, idx)
	} else {
		a.Roots = append(a.Roots, idx)
	}
	return idx
}

// Path returns the response-root-relative path to node i: the response keys
// of its ancestors and itself, outermost first.
func (a *Arena) Path(i int) []string {
	var reversed []string
	for i >= 0 {
		reversed = append(reversed, a.nodes[i].ResponseKey())
		i = a.nodes[i].Parent
	}

	path := make([]string, len(reversed))
	for j, seg := range reversed {
		path[len(reversed)-1-j] = seg
	}
	return path
}

// child returns the index of i's child with the given response key, or -1.
func (a *Arena) child(i int, key string) int {
	for _, c := range a.nodes[i].Children {
		if a.nodes[c].ResponseKey() == key {
			return c
		}
	}
	return -1
}

// buildTree converts a selection set into arena nodes under parent,
// expanding fragment spreads and inline fragments in place.
func buildTree(a *Arena, selections []ast.Selection, fragments map[string]*ast.FragmentDefinition, parent int) {
	for _, sel := range selections {
		switch s := sel.(type) {
		case *ast.Field:
			node := Node{
				Name:      s.Name.String(),
				Arguments: s.Arguments,
				Parent:    parent,
			}
			if s.Alias != nil {
				node.Alias = s.Alias.String()
			}
			idx := a.Add(node)
			if len(s.SelectionSet) > 0 {
				buildTree(a, s.SelectionSet, fragments, idx)
			}

		case *ast.InlineFragment:
			buildTree(a, s.SelectionSet, fragments, parent)

		case *ast.FragmentSpread:
			if def, ok := fragments[s.Name.String()]; ok {
				buildTree(a, def.SelectionSet, fragments, parent)
			}
		}
	}
}
