// Package planner turns a parsed GraphQL operation into a Plan: an arena of
// field nodes plus the per-subgraph steps that resolve them.
//
// Planning runs in three passes. buildTree flattens the operation (fragments
// expanded in place) into an Arena. enrich resolves every node's declaring
// type and owning subgraph against the supergraph, synthesizing __typename
// children on entity-typed selections. emit then claims nodes for steps:
// root fields group into one step per subgraph, and any node owned by a
// different subgraph than its parent's step becomes the seed of an entity
// step, with the parent's @key fields injected as synthetic siblings so a
// representation can be built at execution time.
package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/token"
)

// StepKind distinguishes a root-operation step from an entity-join step.
type StepKind int

const (
	// KindRoot resolves root fields of the operation directly.
	KindRoot StepKind = iota
	// KindEntity resolves fields on an entity via _entities(representations:).
	KindEntity
)

// Step is one request to be sent to a single subgraph. Roots index the
// arena nodes rendered at the step's top level; for entity steps they sit
// inside an `... on EntityType` fragment alongside __typename and the key
// fields named by Keys.
type Step struct {
	ID       int
	SubGraph *graph.SubGraph
	Kind     StepKind

	EntityType string
	Keys       []string

	Roots         []int
	DependsOn     []int
	InsertionPath []string
}

// Plan is the full set of steps needed to resolve one operation, together
// with the node arena they reference.
type Plan struct {
	Arena         *Arena
	Steps         []*Step
	OperationType string
}

// RootSteps returns the steps with no dependencies, in declaration order.
func (p *Plan) RootSteps() []*Step {
	var roots []*Step
	for _, s := range p.Steps {
		if len(s.DependsOn) == 0 {
			roots = append(roots, s)
		}
	}
	return roots
}

// Planner builds Plans against a fixed SuperGraph.
type Planner struct {
	superGraph *graph.SuperGraph
}

// New creates a Planner bound to superGraph.
func New(superGraph *graph.SuperGraph) *Planner {
	return &Planner{superGraph: superGraph}
}

// Plan builds an execution plan for doc. variables is accepted for symmetry
// with execution but not consulted: types resolve purely from the schema.
func (p *Planner) Plan(doc *ast.Document, variables map[string]any) (*Plan, error) {
	op := operationOf(doc)
	if op == nil {
		return nil, errors.New("no operation found")
	}
	if len(op.SelectionSet) == 0 {
		return nil, errors.New("empty selection")
	}

	arena := &Arena{}
	buildTree(arena, op.SelectionSet, fragmentsOf(doc), -1)

	rootType, err := p.rootTypeName(op)
	if err != nil {
		return nil, err
	}

	for _, root := range arena.Roots {
		if err := p.enrich(arena, root, rootType, NoStep); err != nil {
			return nil, err
		}
	}

	plan := &Plan{Arena: arena, OperationType: string(op.Operation)}
	p.emit(plan)

	return plan, nil
}

// enrich annotates node idx with its declaring type, result type and owning
// subgraph, then recurses. parentIdx is NoStep for root fields.
func (p *Planner) enrich(a *Arena, idx int, parentType string, parentIdx int) error {
	node := a.At(idx)
	node.ParentType = parentType

	if node.IsMeta() {
		return nil
	}

	fieldType, ok := p.fieldTypeName(parentType, node.Name)
	if !ok {
		return fmt.Errorf("no field %q on type %q", node.Name, parentType)
	}
	node.TypeName = fieldType

	owners := p.superGraph.GetSubGraphsForField(parentType, node.Name)
	if len(owners) == 0 {
		return fmt.Errorf("no subgraph can resolve %s.%s", parentType, node.Name)
	}
	node.SubGraph = p.chooseOwner(owners, parentType, parentIdx, a)

	if len(node.Children) > 0 && p.superGraph.IsEntityType(fieldType) {
		p.ensureTypename(a, idx)
	}

	// Children is re-read per iteration: ensureTypename may have grown the
	// backing slice, and enrich recursion can too.
	for i := 0; i < len(a.At(idx).Children); i++ {
		child := a.At(idx).Children[i]
		if a.At(child).Synthetic {
			continue
		}
		if err := p.enrich(a, child, fieldType, idx); err != nil {
			return err
		}
	}

	return nil
}

// chooseOwner applies the subgraph tie-break rules in order: a single
// candidate wins; then a subgraph named by an @owner directive on the
// enclosing type; then the parent node's owner, to minimize cross-subgraph
// hops; then the first listed.
func (p *Planner) chooseOwner(owners []*graph.SubGraph, parentType string, parentIdx int, a *Arena) *graph.SubGraph {
	if len(owners) == 1 {
		return owners[0]
	}

	if declared := p.declaredTypeOwner(parentType); declared != "" {
		for _, o := range owners {
			if o.Name == declared {
				return o
			}
		}
	}

	if parentIdx != NoStep {
		if parentOwner := a.At(parentIdx).SubGraph; parentOwner != nil {
			for _, o := range owners {
				if o.Name == parentOwner.Name {
					return o
				}
			}
		}
	}

	return owners[0]
}

// declaredTypeOwner returns the subgraph named by an @owner directive on
// typeName in the composed schema, or "".
func (p *Planner) declaredTypeOwner(typeName string) string {
	for _, def := range p.superGraph.Schema.Definitions {
		td, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || td.Name.String() != typeName {
			continue
		}
		for _, d := range td.Directives {
			if d.Name != "owner" || len(d.Arguments) == 0 {
				continue
			}
			return strings.Trim(d.Arguments[0].Value.String(), "\"")
		}
	}
	return ""
}

// ensureTypename gives node idx a __typename child so entity results can be
// stitched later. A user-requested __typename is left alone; the synthetic
// one is stripped from the final response.
func (p *Planner) ensureTypename(a *Arena, idx int) {
	if a.child(idx, "__typename") >= 0 {
		return
	}
	a.Add(Node{Name: "__typename", Parent: idx, Synthetic: true})
}

// emit builds the step list: one root step per subgraph appearing among the
// operation's root fields (in first-appearance order), then entity steps
// for every ownership boundary below them.
func (p *Planner) emit(plan *Plan) {
	bySubGraph := make(map[*graph.SubGraph]*Step)

	for _, rootIdx := range plan.Arena.Roots {
		node := plan.Arena.At(rootIdx)
		if node.SubGraph == nil {
			// Introspection meta-fields; answered by the gateway.
			continue
		}

		step, ok := bySubGraph[node.SubGraph]
		if !ok {
			step = &Step{
				ID:       len(plan.Steps),
				SubGraph: node.SubGraph,
				Kind:     KindRoot,
			}
			plan.Steps = append(plan.Steps, step)
			bySubGraph[node.SubGraph] = step
		}
		step.Roots = append(step.Roots, rootIdx)
	}

	for _, step := range plan.RootSteps() {
		for _, rootIdx := range step.Roots {
			p.claim(plan, step, rootIdx)
		}
	}
}

// claim assigns node idx (and recursively its compatible children) to step.
// A child owned by a different subgraph starts an entity step instead.
func (p *Planner) claim(plan *Plan, step *Step, idx int) {
	plan.Arena.At(idx).Step = step.ID

	batches := make(map[string]*Step)

	for i := 0; i < len(plan.Arena.At(idx).Children); i++ {
		child := plan.Arena.At(idx).Children[i]
		childNode := plan.Arena.At(child)

		switch {
		case childNode.Synthetic || childNode.SubGraph == nil:
			childNode.Step = step.ID
		case childNode.SubGraph.Name == step.SubGraph.Name:
			p.claim(plan, step, child)
		default:
			p.boundary(plan, step, idx, child, batches)
		}
	}
}

// boundary handles a child owned by a different subgraph than its parent's
// step. The anchor is the node whose objects the entity step resolves
// against: the parent when the target subgraph extends the parent's type,
// otherwise the child itself. Steps targeting the same subgraph, entity
// type and anchor coalesce into one _entities call.
func (p *Planner) boundary(plan *Plan, step *Step, parentIdx, childIdx int, batches map[string]*Step) {
	target := plan.Arena.At(childIdx).SubGraph
	parentType := plan.Arena.At(parentIdx).TypeName
	if parentType == "" {
		parentType = plan.Arena.At(childIdx).ParentType
	}

	anchorIdx := parentIdx
	entityType := parentType
	if _, extendsParent := target.GetEntity(parentType); !extendsParent {
		anchorIdx = childIdx
		entityType = plan.Arena.At(childIdx).TypeName
	}

	keys := entityKeys(target, entityType)
	anchorPath := plan.Arena.Path(anchorIdx)

	batchKey := fmt.Sprintf("%s/%s/%s", target.Name, entityType, strings.Join(anchorPath, "."))
	entityStep, ok := batches[batchKey]
	if !ok {
		entityStep = &Step{
			ID:            len(plan.Steps),
			SubGraph:      target,
			Kind:          KindEntity,
			EntityType:    entityType,
			Keys:          keys,
			DependsOn:     []int{step.ID},
			InsertionPath: anchorPath,
		}
		plan.Steps = append(plan.Steps, entityStep)
		batches[batchKey] = entityStep
	}

	p.injectKeys(plan, step, anchorIdx, keys)

	if anchorIdx == parentIdx {
		// The child moves wholesale into the entity step.
		entityStep.Roots = append(entityStep.Roots, childIdx)
		p.claim(plan, entityStep, childIdx)
		return
	}

	// The child itself anchors the join: the parent step fetches only its
	// key fields; the child's selections resolve in the entity step.
	plan.Arena.At(childIdx).Step = step.ID
	for i := 0; i < len(plan.Arena.At(childIdx).Children); i++ {
		grandchild := plan.Arena.At(childIdx).Children[i]
		if plan.Arena.At(grandchild).Synthetic {
			plan.Arena.At(grandchild).Step = step.ID
			continue
		}
		entityStep.Roots = append(entityStep.Roots, grandchild)
		p.claim(plan, entityStep, grandchild)
	}
}

// injectKeys makes sure the anchor node's selection in the parent step
// carries __typename and the entity's key fields, adding synthetic children
// where the user did not already select them.
func (p *Planner) injectKeys(plan *Plan, step *Step, anchorIdx int, keys []string) {
	for _, key := range append([]string{"__typename"}, keys...) {
		if existing := plan.Arena.child(anchorIdx, key); existing >= 0 {
			node := plan.Arena.At(existing)
			if node.Step == NoStep || node.Synthetic {
				node.Step = step.ID
			}
			continue
		}
		idx := plan.Arena.Add(Node{Name: key, Parent: anchorIdx, Synthetic: true})
		plan.Arena.At(idx).Step = step.ID
	}
}

// entityKeys returns the first @key field set of entityType in sg, split on
// whitespace to support composite keys.
func entityKeys(sg *graph.SubGraph, entityType string) []string {
	entity, ok := sg.GetEntity(entityType)
	if !ok || len(entity.Keys) == 0 {
		return nil
	}
	return strings.Fields(entity.Keys[0].FieldSet)
}

func operationOf(doc *ast.Document) *ast.OperationDefinition {
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

func fragmentsOf(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		if frag, ok := def.(*ast.FragmentDefinition); ok {
			fragments[frag.Name.String()] = frag
		}
	}
	return fragments
}

// rootTypeName resolves the operation's root type, honoring any explicit
// schema { query: ... } declaration in the composed supergraph.
func (p *Planner) rootTypeName(op *ast.OperationDefinition) (string, error) {
	var rootTypeName string

	switch op.Operation {
	case ast.Query:
		rootTypeName = "Query"
	case ast.Mutation:
		rootTypeName = "Mutation"
	case ast.Subscription:
		rootTypeName = "Subscription"
	default:
		return "", fmt.Errorf("unknown operation type: %v", op.Operation)
	}

	for _, def := range p.superGraph.Schema.Definitions {
		sd, ok := def.(*ast.SchemaDefinition)
		if !ok {
			continue
		}
		for _, ot := range sd.OperationTypes {
			switch {
			case ot.Operation == token.QUERY && op.Operation == ast.Query,
				ot.Operation == token.MUTATION && op.Operation == ast.Mutation,
				ot.Operation == token.SUBSCRIPTION && op.Operation == ast.Subscription:
				rootTypeName = ot.Type.Name.String()
			}
		}
	}

	return rootTypeName, nil
}

// fieldTypeName resolves the named result type of parentType.fieldName in
// the composed schema.
func (p *Planner) fieldTypeName(parentType, fieldName string) (string, bool) {
	for _, def := range p.superGraph.Schema.Definitions {
		td, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || td.Name.String() != parentType {
			continue
		}
		for _, field := range td.Fields {
			if field.Name.String() == fieldName {
				return namedType(field.Type), true
			}
		}
	}
	return "", false
}

func namedType(t ast.Type) string {
	switch typ := t.(type) {
	case *ast.NamedType:
		return typ.Name.String()
	case *ast.ListType:
		return namedType(typ.Type)
	case *ast.NonNullType:
		return namedType(typ.Type)
	}
	return ""
}
