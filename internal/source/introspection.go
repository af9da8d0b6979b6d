package source

import (
	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-parser/ast"
)

// introResult carries locally answered introspection meta-fields.
// exclusive means every top-level field was a meta-field, so no subgraph
// dispatch is needed at all.
type introResult struct {
	data      map[string]any
	exclusive bool
}

// resolveIntrospection answers __schema/__type/__typename selections from
// the composed supergraph. Returns nil when the operation has no meta-fields.
func resolveIntrospection(superGraph *graph.SuperGraph, doc *ast.Document) *introResult {
	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		if o, ok := def.(*ast.OperationDefinition); ok {
			op = o
			break
		}
	}
	if op == nil || op.Operation != ast.Query {
		return nil
	}

	schemaValue := materializeSchema(superGraph)

	data := make(map[string]any)
	metaFields := 0
	totalFields := 0

	for _, sel := range op.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			totalFields++
			continue
		}
		totalFields++

		key := field.Name.String()
		if field.Alias != nil && field.Alias.String() != "" {
			key = field.Alias.String()
		}

		switch field.Name.String() {
		case "__typename":
			metaFields++
			data[key] = "Query"
		case "__schema":
			metaFields++
			data[key] = pruneValue(schemaValue, field.SelectionSet)
		case "__type":
			metaFields++
			name := stringArgument(field, "name")
			typeValue := findTypeValue(schemaValue, name)
			if typeValue == nil {
				data[key] = nil
			} else {
				data[key] = pruneValue(typeValue, field.SelectionSet)
			}
		}
	}

	if metaFields == 0 {
		return nil
	}
	return &introResult{data: data, exclusive: metaFields == totalFields}
}

func stringArgument(field *ast.Field, name string) string {
	for _, arg := range field.Arguments {
		if arg.Name.String() == name {
			if sv, ok := arg.Value.(*ast.StringValue); ok {
				return sv.Value
			}
		}
	}
	return ""
}

func findTypeValue(schemaValue map[string]any, name string) map[string]any {
	types, _ := schemaValue["types"].([]any)
	for _, t := range types {
		tm, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if tm["name"] == name {
			return tm
		}
	}
	return nil
}

// pruneValue runs a selection set against a materialized value, keeping only
// the requested fields. Arguments on meta-fields (e.g. includeDeprecated)
// are accepted and ignored.
func pruneValue(value any, selections []ast.Selection) any {
	if value == nil || len(selections) == 0 {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any)
		for _, sel := range selections {
			field, ok := sel.(*ast.Field)
			if !ok {
				continue
			}
			name := field.Name.String()
			key := name
			if field.Alias != nil && field.Alias.String() != "" {
				key = field.Alias.String()
			}
			result[key] = pruneValue(v[name], field.SelectionSet)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = pruneValue(item, selections)
		}
		return result

	default:
		return v
	}
}

// materializeSchema builds a __schema object from the composed supergraph.
func materializeSchema(superGraph *graph.SuperGraph) map[string]any {
	var queryType, mutationType, subscriptionType any

	types := make([]any, 0)
	for _, def := range superGraph.Schema.Definitions {
		switch t := def.(type) {
		case *ast.ObjectTypeDefinition:
			name := t.Name.String()
			obj := map[string]any{
				"kind":       "OBJECT",
				"name":       name,
				"fields":     materializeFields(superGraph, t.Fields),
				"interfaces": []any{},
			}
			types = append(types, obj)
			switch name {
			case "Query":
				queryType = map[string]any{"name": name}
			case "Mutation":
				mutationType = map[string]any{"name": name}
			case "Subscription":
				subscriptionType = map[string]any{"name": name}
			}
		case *ast.InterfaceTypeDefinition:
			types = append(types, map[string]any{
				"kind":   "INTERFACE",
				"name":   t.Name.String(),
				"fields": materializeFields(superGraph, t.Fields),
			})
		case *ast.EnumTypeDefinition:
			values := make([]any, 0, len(t.Values))
			for _, v := range t.Values {
				values = append(values, map[string]any{"name": v.Name.String()})
			}
			types = append(types, map[string]any{
				"kind":       "ENUM",
				"name":       t.Name.String(),
				"enumValues": values,
			})
		case *ast.ScalarTypeDefinition:
			types = append(types, map[string]any{
				"kind": "SCALAR",
				"name": t.Name.String(),
			})
		case *ast.UnionTypeDefinition:
			possible := make([]any, 0, len(t.Types))
			for _, u := range t.Types {
				possible = append(possible, map[string]any{"kind": "OBJECT", "name": u.Name.String()})
			}
			types = append(types, map[string]any{
				"kind":          "UNION",
				"name":          t.Name.String(),
				"possibleTypes": possible,
			})
		case *ast.InputObjectTypeDefinition:
			types = append(types, map[string]any{
				"kind": "INPUT_OBJECT",
				"name": t.Name.String(),
			})
		}
	}

	for _, scalar := range []string{"String", "Int", "Float", "Boolean", "ID"} {
		types = append(types, map[string]any{"kind": "SCALAR", "name": scalar})
	}

	return map[string]any{
		"queryType":        queryType,
		"mutationType":     mutationType,
		"subscriptionType": subscriptionType,
		"types":            types,
		"directives":       []any{},
	}
}

func materializeFields(superGraph *graph.SuperGraph, fields []*ast.FieldDefinition) []any {
	result := make([]any, 0, len(fields))
	for _, f := range fields {
		result = append(result, map[string]any{
			"name":              f.Name.String(),
			"args":              []any{},
			"type":              materializeTypeRef(superGraph, f.Type),
			"isDeprecated":      false,
			"deprecationReason": nil,
		})
	}
	return result
}

func materializeTypeRef(superGraph *graph.SuperGraph, t ast.Type) map[string]any {
	switch typ := t.(type) {
	case *ast.NonNullType:
		return map[string]any{
			"kind":   "NON_NULL",
			"name":   nil,
			"ofType": materializeTypeRef(superGraph, typ.Type),
		}
	case *ast.ListType:
		return map[string]any{
			"kind":   "LIST",
			"name":   nil,
			"ofType": materializeTypeRef(superGraph, typ.Type),
		}
	case *ast.NamedType:
		name := typ.Name.String()
		return map[string]any{
			"kind":   namedTypeKind(superGraph, name),
			"name":   name,
			"ofType": nil,
		}
	}
	return map[string]any{"kind": "SCALAR", "name": "String", "ofType": nil}
}

func namedTypeKind(superGraph *graph.SuperGraph, name string) string {
	switch name {
	case "String", "Int", "Float", "Boolean", "ID":
		return "SCALAR"
	}
	for _, def := range superGraph.Schema.Definitions {
		switch t := def.(type) {
		case *ast.ObjectTypeDefinition:
			if t.Name.String() == name {
				return "OBJECT"
			}
		case *ast.InterfaceTypeDefinition:
			if t.Name.String() == name {
				return "INTERFACE"
			}
		case *ast.EnumTypeDefinition:
			if t.Name.String() == name {
				return "ENUM"
			}
		case *ast.ScalarTypeDefinition:
			if t.Name.String() == name {
				return "SCALAR"
			}
		case *ast.UnionTypeDefinition:
			if t.Name.String() == name {
				return "UNION"
			}
		case *ast.InputObjectTypeDefinition:
			if t.Name.String() == name {
				return "INPUT_OBJECT"
			}
		}
	}
	return "OBJECT"
}
