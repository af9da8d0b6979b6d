package graph

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
)

// SuperGraph is the composed schema across all subgraphs plus the field
// ownership map ("Type.field" -> owning subgraphs) used by the planner.
type SuperGraph struct {
	SubGraphs []*SubGraph
	Schema    *ast.Document
	Ownership map[string][]*SubGraph
}

// NewSuperGraph composes subGraphs into a single SuperGraph.
func NewSuperGraph(subGraphs []*SubGraph) (*SuperGraph, error) {
	sg := &SuperGraph{
		SubGraphs: subGraphs,
		Ownership: make(map[string][]*SubGraph),
	}

	if err := sg.composeSchema(); err != nil {
		return nil, err
	}
	if err := sg.buildOwnershipMap(); err != nil {
		return nil, err
	}

	return sg, nil
}

func (sg *SuperGraph) composeSchema() error {
	if len(sg.SubGraphs) == 0 {
		return fmt.Errorf("no subgraphs to compose")
	}

	sg.Schema = &ast.Document{Definitions: make([]ast.Definition, 0)}
	for _, subGraph := range sg.SubGraphs {
		sg.mergeSchema(subGraph.Schema)
	}

	return nil
}

func (sg *SuperGraph) mergeSchema(newSchema *ast.Document) {
	for _, newDef := range newSchema.Definitions {
		switch t := newDef.(type) {
		case *ast.ObjectTypeDefinition:
			sg.mergeObjectTypeDefinition(t)
		case *ast.ObjectTypeExtension:
			sg.mergeObjectTypeExtension(t)
		case *ast.InterfaceTypeDefinition:
			sg.mergeInterfaceTypeDefinition(t)
		case *ast.InputObjectTypeDefinition:
			sg.mergeInputObjectTypeDefinition(t)
		case *ast.EnumTypeDefinition:
			sg.mergeEnumTypeDefinition(t)
		case *ast.ScalarTypeDefinition:
			sg.mergeScalarTypeDefinition(t)
		case *ast.UnionTypeDefinition:
			sg.mergeUnionTypeDefinition(t)
		case *ast.DirectiveDefinition:
			sg.mergeDirectiveDefinition(t)
		case *ast.SchemaDefinition:
			sg.Schema.Definitions = append(sg.Schema.Definitions, t)
		}
	}
}

func (sg *SuperGraph) findObjectTypeDefinition(name string) *ast.ObjectTypeDefinition {
	for _, def := range sg.Schema.Definitions {
		if objDef, ok := def.(*ast.ObjectTypeDefinition); ok && objDef.Name.String() == name {
			return objDef
		}
	}
	return nil
}

func (sg *SuperGraph) mergeObjectTypeDefinition(newDef *ast.ObjectTypeDefinition) {
	if existing := sg.findObjectTypeDefinition(newDef.Name.String()); existing != nil {
		existing.Fields = mergeFields(existing.Fields, copyFields(newDef.Fields))
		existing.Directives = append(existing.Directives, copyDirectives(newDef.Directives)...)
		return
	}

	sg.Schema.Definitions = append(sg.Schema.Definitions, &ast.ObjectTypeDefinition{
		Name:       newDef.Name,
		Interfaces: newDef.Interfaces,
		Fields:     copyFields(newDef.Fields),
		Directives: copyDirectives(newDef.Directives),
	})
}

func (sg *SuperGraph) mergeObjectTypeExtension(newExt *ast.ObjectTypeExtension) {
	existing := sg.findObjectTypeDefinition(newExt.Name.String())
	if existing == nil {
		// No base definition seen yet (subgraph ordering); materialize one so
		// later merges and ownership lookups still find the type.
		existing = &ast.ObjectTypeDefinition{Name: newExt.Name}
		sg.Schema.Definitions = append(sg.Schema.Definitions, existing)
	}

	existing.Fields = mergeFields(existing.Fields, copyFields(newExt.Fields))
	existing.Directives = append(existing.Directives, copyDirectives(newExt.Directives)...)
}

func copyFields(fields []*ast.FieldDefinition) []*ast.FieldDefinition {
	if fields == nil {
		return nil
	}
	copied := make([]*ast.FieldDefinition, len(fields))
	for i, field := range fields {
		copied[i] = &ast.FieldDefinition{
			Name:       field.Name,
			Arguments:  field.Arguments,
			Type:       field.Type,
			Directives: copyDirectives(field.Directives),
		}
	}
	return copied
}

func copyDirectives(directives []*ast.Directive) []*ast.Directive {
	if directives == nil {
		return nil
	}
	copied := make([]*ast.Directive, len(directives))
	for i, dir := range directives {
		copied[i] = &ast.Directive{Name: dir.Name, Arguments: dir.Arguments}
	}
	return copied
}

func mergeFields(existing, newFields []*ast.FieldDefinition) []*ast.FieldDefinition {
	byName := make(map[string]*ast.FieldDefinition, len(existing)+len(newFields))
	order := make([]string, 0, len(existing)+len(newFields))

	for _, field := range existing {
		name := field.Name.String()
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = field
	}
	for _, field := range newFields {
		name := field.Name.String()
		if _, ok := byName[name]; !ok {
			order = append(order, name)
			byName[name] = field
		}
	}

	result := make([]*ast.FieldDefinition, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result
}

func (sg *SuperGraph) mergeInterfaceTypeDefinition(newDef *ast.InterfaceTypeDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.InterfaceTypeDefinition); ok && d.Name.String() == newDef.Name.String() {
			d.Fields = append(d.Fields, newDef.Fields...)
			d.Directives = append(d.Directives, newDef.Directives...)
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

func (sg *SuperGraph) mergeInputObjectTypeDefinition(newDef *ast.InputObjectTypeDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.InputObjectTypeDefinition); ok && d.Name.String() == newDef.Name.String() {
			d.Fields = append(d.Fields, newDef.Fields...)
			d.Directives = append(d.Directives, newDef.Directives...)
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

func (sg *SuperGraph) mergeEnumTypeDefinition(newDef *ast.EnumTypeDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.EnumTypeDefinition); ok && d.Name.String() == newDef.Name.String() {
			d.Values = append(d.Values, newDef.Values...)
			d.Directives = append(d.Directives, newDef.Directives...)
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

func (sg *SuperGraph) mergeScalarTypeDefinition(newDef *ast.ScalarTypeDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.ScalarTypeDefinition); ok && d.Name.String() == newDef.Name.String() {
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

func (sg *SuperGraph) mergeUnionTypeDefinition(newDef *ast.UnionTypeDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.UnionTypeDefinition); ok && d.Name.String() == newDef.Name.String() {
			d.Types = append(d.Types, newDef.Types...)
			d.Directives = append(d.Directives, newDef.Directives...)
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

func (sg *SuperGraph) mergeDirectiveDefinition(newDef *ast.DirectiveDefinition) {
	for _, def := range sg.Schema.Definitions {
		if d, ok := def.(*ast.DirectiveDefinition); ok && d.Name.String() == newDef.Name.String() {
			return
		}
	}
	sg.Schema.Definitions = append(sg.Schema.Definitions, newDef)
}

// buildOwnershipMap determines, for every "Type.field" in the composed
// schema, which subgraphs can resolve it. @external fields are excluded
// unless an @override names them as the new owner.
func (sg *SuperGraph) buildOwnershipMap() error {
	for _, def := range sg.Schema.Definitions {
		objDef, ok := def.(*ast.ObjectTypeDefinition)
		if !ok {
			continue
		}
		typeName := objDef.Name.String()

		for _, field := range objDef.Fields {
			fieldName := field.Name.String()
			key := fmt.Sprintf("%s.%s", typeName, fieldName)

			var overrideFrom string
			var overrideSubGraph *SubGraph
			for _, subGraph := range sg.SubGraphs {
				entity, exists := subGraph.GetEntity(typeName)
				if !exists {
					continue
				}
				entityField, ok := entity.Fields[fieldName]
				if !ok {
					continue
				}
				if override := entityField.GetOverride(); override != nil {
					overrideFrom = override.From
					overrideSubGraph = subGraph
					break
				}
			}

			for _, subGraph := range sg.SubGraphs {
				if overrideFrom != "" && subGraph.Name == overrideFrom {
					continue
				}
				if sg.canResolveField(subGraph, typeName, fieldName) {
					sg.Ownership[key] = append(sg.Ownership[key], subGraph)
				}
			}

			if overrideSubGraph != nil && !containsSubGraph(sg.Ownership[key], overrideSubGraph) {
				sg.Ownership[key] = append(sg.Ownership[key], overrideSubGraph)
			}
		}
	}

	return nil
}

func containsSubGraph(subGraphs []*SubGraph, target *SubGraph) bool {
	for _, sg := range subGraphs {
		if sg.Name == target.Name {
			return true
		}
	}
	return false
}

// canResolveField reports whether subGraph can resolve typeName.fieldName,
// i.e. it declares or extends the field without marking it @external.
func (sg *SuperGraph) canResolveField(subGraph *SubGraph, typeName, fieldName string) bool {
	for _, def := range subGraph.Schema.Definitions {
		if objDef, ok := def.(*ast.ObjectTypeDefinition); ok && objDef.Name.String() == typeName {
			return resolvesIn(objDef.Fields, fieldName)
		}
	}
	for _, def := range subGraph.Schema.Definitions {
		if objExt, ok := def.(*ast.ObjectTypeExtension); ok && objExt.Name.String() == typeName {
			if ok, found := resolvesInExt(objExt.Fields, fieldName); found {
				return ok
			}
		}
	}
	return false
}

func resolvesIn(fields []*ast.FieldDefinition, fieldName string) bool {
	for _, field := range fields {
		if field.Name.String() == fieldName {
			return !hasDirective(field.Directives, "external")
		}
	}
	return false
}

func resolvesInExt(fields []*ast.FieldDefinition, fieldName string) (resolvable bool, found bool) {
	for _, field := range fields {
		if field.Name.String() == fieldName {
			return !hasDirective(field.Directives, "external"), true
		}
	}
	return false, false
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

// GetSubGraphsForField returns the subgraphs that can resolve typeName.fieldName.
func (sg *SuperGraph) GetSubGraphsForField(typeName, fieldName string) []*SubGraph {
	return sg.Ownership[fmt.Sprintf("%s.%s", typeName, fieldName)]
}

// GetEntityOwnerSubGraph returns the subgraph that should be treated as the
// canonical owner of typeName for entity representation purposes: a
// non-extension definition with a resolvable key if one exists, otherwise
// any subgraph with a resolvable key. @key(resolvable: false) stubs are
// never returned.
func (sg *SuperGraph) GetEntityOwnerSubGraph(typeName string) *SubGraph {
	for _, subGraph := range sg.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists && !entity.IsExtension() && entity.IsResolvable() {
			return subGraph
		}
	}
	for _, subGraph := range sg.SubGraphs {
		if entity, exists := subGraph.GetEntity(typeName); exists && entity.IsResolvable() {
			return subGraph
		}
	}
	return nil
}

// IsEntityType reports whether typeName has a resolvable @key in any subgraph.
func (sg *SuperGraph) IsEntityType(typeName string) bool {
	return sg.GetEntityOwnerSubGraph(typeName) != nil
}

// GetFieldOwnerSubGraph returns the first owner of typeName.fieldName,
// respecting @override resolution order, or nil if the field has no owner.
func (sg *SuperGraph) GetFieldOwnerSubGraph(typeName, fieldName string) *SubGraph {
	owners := sg.GetSubGraphsForField(typeName, fieldName)
	if len(owners) == 0 {
		return nil
	}
	return owners[0]
}
