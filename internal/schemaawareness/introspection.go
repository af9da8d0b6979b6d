package schemaawareness

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// introspectionQuery is the document sent to a remote endpoint when the
// configured format is introspection and the source method is POST.
const introspectionQuery = `query IntrospectionQuery { __schema { queryType { name } mutationType { name } subscriptionType { name } types { kind name fields(includeDeprecated: true) { name args { name type { ...TypeRef } defaultValue } type { ...TypeRef } } inputFields { name type { ...TypeRef } defaultValue } interfaces { ...TypeRef } enumValues(includeDeprecated: true) { name } possibleTypes { ...TypeRef } } } } fragment TypeRef on __Type { kind name ofType { kind name ofType { kind name ofType { kind name ofType { kind name ofType { kind name ofType { kind name ofType { kind name } } } } } } } }`

type introspectionResult struct {
	Data struct {
		Schema introspectionSchema `json:"__schema"`
	} `json:"data"`
	// Some callers store only the __schema object.
	Schema *introspectionSchema `json:"__schema"`
}

type introspectionSchema struct {
	QueryType        *introspectionTypeRef `json:"queryType"`
	MutationType     *introspectionTypeRef `json:"mutationType"`
	SubscriptionType *introspectionTypeRef `json:"subscriptionType"`
	Types            []introspectionType   `json:"types"`
}

type introspectionType struct {
	Kind          string                 `json:"kind"`
	Name          string                 `json:"name"`
	Fields        []introspectionField   `json:"fields"`
	InputFields   []introspectionInput   `json:"inputFields"`
	Interfaces    []introspectionTypeRef `json:"interfaces"`
	EnumValues    []introspectionEnum    `json:"enumValues"`
	PossibleTypes []introspectionTypeRef `json:"possibleTypes"`
}

type introspectionField struct {
	Name string                `json:"name"`
	Args []introspectionInput  `json:"args"`
	Type *introspectionTypeRef `json:"type"`
}

type introspectionInput struct {
	Name         string                `json:"name"`
	Type         *introspectionTypeRef `json:"type"`
	DefaultValue *string               `json:"defaultValue"`
}

type introspectionEnum struct {
	Name string `json:"name"`
}

type introspectionTypeRef struct {
	Kind   string                `json:"kind"`
	Name   string                `json:"name"`
	OfType *introspectionTypeRef `json:"ofType"`
}

var builtinScalars = map[string]bool{
	"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
}

// IntrospectionToSDL converts an introspection-result JSON document into SDL
// text. Wrapper types (NON_NULL, LIST) preserve their nesting; introspection
// meta-types and built-in scalars are skipped.
func IntrospectionToSDL(raw []byte) (string, error) {
	var result introspectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("invalid introspection JSON: %w", err)
	}

	schema := result.Data.Schema
	if len(schema.Types) == 0 && result.Schema != nil {
		schema = *result.Schema
	}
	if len(schema.Types) == 0 {
		return "", fmt.Errorf("introspection result contains no types")
	}

	var sb strings.Builder

	for _, t := range schema.Types {
		if strings.HasPrefix(t.Name, "__") {
			continue
		}

		switch t.Kind {
		case "OBJECT":
			sb.WriteString("type ")
			sb.WriteString(t.Name)
			writeInterfaces(&sb, t.Interfaces)
			writeFields(&sb, t.Fields)
		case "INTERFACE":
			sb.WriteString("interface ")
			sb.WriteString(t.Name)
			writeFields(&sb, t.Fields)
		case "INPUT_OBJECT":
			sb.WriteString("input ")
			sb.WriteString(t.Name)
			sb.WriteString(" {\n")
			for _, f := range t.InputFields {
				sb.WriteString("  ")
				sb.WriteString(f.Name)
				sb.WriteString(": ")
				sb.WriteString(typeRefString(f.Type))
				sb.WriteString("\n")
			}
			sb.WriteString("}\n\n")
		case "ENUM":
			sb.WriteString("enum ")
			sb.WriteString(t.Name)
			sb.WriteString(" {\n")
			for _, v := range t.EnumValues {
				sb.WriteString("  ")
				sb.WriteString(v.Name)
				sb.WriteString("\n")
			}
			sb.WriteString("}\n\n")
		case "UNION":
			sb.WriteString("union ")
			sb.WriteString(t.Name)
			sb.WriteString(" = ")
			names := make([]string, 0, len(t.PossibleTypes))
			for _, pt := range t.PossibleTypes {
				names = append(names, pt.Name)
			}
			sb.WriteString(strings.Join(names, " | "))
			sb.WriteString("\n\n")
		case "SCALAR":
			if builtinScalars[t.Name] {
				continue
			}
			sb.WriteString("scalar ")
			sb.WriteString(t.Name)
			sb.WriteString("\n\n")
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("introspection result produced no definitions")
	}

	return sb.String(), nil
}

func writeInterfaces(sb *strings.Builder, interfaces []introspectionTypeRef) {
	if len(interfaces) == 0 {
		return
	}
	names := make([]string, 0, len(interfaces))
	for _, i := range interfaces {
		names = append(names, i.Name)
	}
	sb.WriteString(" implements ")
	sb.WriteString(strings.Join(names, " & "))
}

func writeFields(sb *strings.Builder, fields []introspectionField) {
	sb.WriteString(" {\n")
	for _, f := range fields {
		sb.WriteString("  ")
		sb.WriteString(f.Name)
		if len(f.Args) > 0 {
			sb.WriteString("(")
			for i, arg := range f.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(arg.Name)
				sb.WriteString(": ")
				sb.WriteString(typeRefString(arg.Type))
				if arg.DefaultValue != nil {
					sb.WriteString(" = ")
					sb.WriteString(*arg.DefaultValue)
				}
			}
			sb.WriteString(")")
		}
		sb.WriteString(": ")
		sb.WriteString(typeRefString(f.Type))
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")
}

// typeRefString renders a type reference, preserving NON_NULL/LIST nesting.
func typeRefString(t *introspectionTypeRef) string {
	if t == nil {
		return "String"
	}
	switch t.Kind {
	case "NON_NULL":
		return typeRefString(t.OfType) + "!"
	case "LIST":
		return "[" + typeRefString(t.OfType) + "]"
	default:
		return t.Name
	}
}
