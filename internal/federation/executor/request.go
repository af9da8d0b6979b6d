package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-gateway/internal/federation/graph"
	"github.com/n9te9/graphql-gateway/internal/federation/planner"
	"github.com/n9te9/graphql-parser/ast"
)

// renderRootRequest renders a root step as a compact operation document,
// declaring every variable the step's selections reference.
func renderRootRequest(plan *planner.Plan, step *planner.Step, variables map[string]any) (string, map[string]any) {
	var sb strings.Builder

	opType := plan.OperationType
	if opType == "" {
		opType = "query"
	}
	sb.WriteString(opType)
	writeVariableDefs(&sb, plan, step, variables, nil)

	sb.WriteString(" { ")
	for _, rootIdx := range step.Roots {
		renderNode(&sb, plan.Arena, step, rootIdx)
	}
	sb.WriteString("}")

	return sb.String(), variables
}

// renderEntityRequest renders an entity step as an _entities call with the
// step's key fields and __typename leading the type fragment.
func renderEntityRequest(plan *planner.Plan, step *planner.Step, reps []map[string]any, variables map[string]any) (string, map[string]any) {
	var sb strings.Builder

	sb.WriteString("query")
	writeVariableDefs(&sb, plan, step, variables, []string{"$representations: [_Any!]!"})

	sb.WriteString(" { _entities(representations: $representations) { ... on ")
	sb.WriteString(step.EntityType)
	sb.WriteString(" { __typename ")
	for _, key := range step.Keys {
		sb.WriteString(key)
		sb.WriteString(" ")
	}
	for _, rootIdx := range step.Roots {
		renderNode(&sb, plan.Arena, step, rootIdx)
	}
	sb.WriteString("} } }")

	vars := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		vars[k] = v
	}
	vars["representations"] = reps

	return sb.String(), vars
}

// renderNode writes one arena node and the children claimed by step.
func renderNode(sb *strings.Builder, arena *planner.Arena, step *planner.Step, idx int) {
	node := arena.At(idx)

	if node.Alias != "" {
		sb.WriteString(node.Alias)
		sb.WriteString(": ")
	}
	sb.WriteString(node.Name)

	if len(node.Arguments) > 0 {
		sb.WriteString("(")
		for i, arg := range node.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.Name.String())
			sb.WriteString(": ")
			sb.WriteString(valueString(arg.Value))
		}
		sb.WriteString(")")
	}

	var owned []int
	for _, child := range node.Children {
		if arena.At(child).Step == step.ID {
			owned = append(owned, child)
		}
	}

	if len(owned) > 0 {
		sb.WriteString(" { ")
		for _, child := range owned {
			renderNode(sb, arena, step, child)
		}
		sb.WriteString("}")
	}
	sb.WriteString(" ")
}

// valueString renders an argument value as GraphQL source text.
func valueString(v ast.Value) string {
	switch val := v.(type) {
	case *ast.StringValue:
		return fmt.Sprintf("%q", val.Value)
	case *ast.IntValue:
		return fmt.Sprintf("%d", val.Value)
	case *ast.FloatValue:
		return fmt.Sprintf("%f", val.Value)
	case *ast.BooleanValue:
		return fmt.Sprintf("%t", val.Value)
	case *ast.EnumValue:
		return val.Value
	case *ast.Variable:
		return "$" + val.Name
	case *ast.ListValue:
		parts := make([]string, len(val.Values))
		for i, item := range val.Values {
			parts[i] = valueString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.ObjectValue:
		parts := make([]string, len(val.Fields))
		for i, field := range val.Fields {
			parts[i] = field.Name.String() + ": " + valueString(field.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "null"
}

// variableRef remembers where a variable is first used so its declared type
// can be looked up in the subgraph schema.
type variableRef struct {
	parentType string
	fieldName  string
	argName    string
}

// writeVariableDefs writes the operation's variable-definition list:
// extra declarations first, then every variable the step references, sorted
// by name for a deterministic document.
func writeVariableDefs(sb *strings.Builder, plan *planner.Plan, step *planner.Step, variables map[string]any, extra []string) {
	refs := make(map[string]variableRef)
	for _, rootIdx := range step.Roots {
		collectVariableRefs(plan.Arena, step, rootIdx, refs)
	}

	if len(refs) == 0 && len(extra) == 0 {
		return
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := append([]string{}, extra...)
	for _, name := range names {
		defs = append(defs, "$"+name+": "+variableType(step.SubGraph, refs[name], variables[name]))
	}

	sb.WriteString("(")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(")")
}

func collectVariableRefs(arena *planner.Arena, step *planner.Step, idx int, refs map[string]variableRef) {
	node := arena.At(idx)

	for _, arg := range node.Arguments {
		collectVariablesFromValue(arg.Value, func(name string) {
			if _, seen := refs[name]; !seen {
				refs[name] = variableRef{
					parentType: node.ParentType,
					fieldName:  node.Name,
					argName:    arg.Name.String(),
				}
			}
		})
	}

	for _, child := range node.Children {
		if arena.At(child).Step == step.ID {
			collectVariableRefs(arena, step, child, refs)
		}
	}
}

func collectVariablesFromValue(v ast.Value, visit func(name string)) {
	switch val := v.(type) {
	case *ast.Variable:
		visit(val.Name)
	case *ast.ListValue:
		for _, item := range val.Values {
			collectVariablesFromValue(item, visit)
		}
	case *ast.ObjectValue:
		for _, field := range val.Fields {
			collectVariablesFromValue(field.Value, visit)
		}
	}
}

// variableType resolves a variable's declared type from the subgraph's own
// schema, falling back to the runtime value's kind, then String.
func variableType(sg *graph.SubGraph, ref variableRef, value any) string {
	if declared := declaredArgumentType(sg, ref); declared != "" {
		return declared
	}

	switch value.(type) {
	case string:
		return "String"
	case int, int32, int64, float32, float64:
		return numberType(value)
	case bool:
		return "Boolean"
	}
	return "String"
}

func numberType(value any) string {
	switch value.(type) {
	case float32, float64:
		return "Float"
	}
	return "Int"
}

func declaredArgumentType(sg *graph.SubGraph, ref variableRef) string {
	if sg == nil || sg.Schema == nil {
		return ""
	}

	for _, def := range sg.Schema.Definitions {
		obj, ok := def.(*ast.ObjectTypeDefinition)
		if !ok || obj.Name.String() != ref.parentType {
			continue
		}
		for _, field := range obj.Fields {
			if field.Name.String() != ref.fieldName {
				continue
			}
			for _, arg := range field.Arguments {
				if arg.Name.String() == ref.argName {
					return arg.Type.String()
				}
			}
		}
	}
	return ""
}
