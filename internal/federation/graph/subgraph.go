// Package graph models subgraph schemas and the composed supergraph used by
// the federation planner and executor.
package graph

import (
	"fmt"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// EntityKey is the parsed form of an @key directive.
type EntityKey struct {
	FieldSet   string // space-separated field set, e.g. "id" or "number departureDate"
	Resolvable bool   // false for @key(resolvable: false) stub references
}

// Override is the parsed form of an @override directive.
type Override struct {
	From string // name of the subgraph this field used to be owned by
}

// Field describes one field of an entity type as seen from a single subgraph.
type Field struct {
	Name           string
	Type           ast.Type
	Requires       []string // @requires(fields: "...") field names
	Provides       []string // @provides(fields: "...") field names
	isShareable    bool
	override       *Override
	isInaccessible bool
}

// IsShareable reports whether the field carries @shareable.
func (f *Field) IsShareable() bool { return f.isShareable }

// GetOverride returns the field's @override info, or nil if absent.
func (f *Field) GetOverride() *Override { return f.override }

// IsInaccessible reports whether the field carries @inaccessible and must be
// hidden from the composed API surface.
func (f *Field) IsInaccessible() bool { return f.isInaccessible }

// Entity is an object type carrying one or more @key directives.
type Entity struct {
	Keys        []EntityKey
	isExtension bool
	Fields      map[string]*Field
}

// IsExtension reports whether the entity was declared via `extend type`.
func (e *Entity) IsExtension() bool { return e.isExtension }

// IsResolvable reports whether at least one @key on this entity is resolvable.
func (e *Entity) IsResolvable() bool {
	for _, key := range e.Keys {
		if key.Resolvable {
			return true
		}
	}
	return false
}

// SubGraph is one federated GraphQL service: its schema plus the entities it
// contributes to the supergraph.
type SubGraph struct {
	Name     string
	Host     string
	Schema   *ast.Document
	entities map[string]*Entity
}

// NewSubGraph parses src as a subgraph SDL document and extracts its entities.
func NewSubGraph(name string, src []byte, host string) (*SubGraph, error) {
	l := lexer.New(string(src))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("parse subgraph %q schema: %v", name, p.Errors())
	}

	sg := &SubGraph{
		Name:     name,
		Host:     host,
		Schema:   doc,
		entities: make(map[string]*Entity),
	}

	for _, def := range doc.Definitions {
		switch t := def.(type) {
		case *ast.ObjectTypeDefinition:
			if isEntity(t.Directives) {
				sg.entities[t.Name.String()] = &Entity{
					Keys:        parseEntityKeys(t.Directives),
					isExtension: false,
					Fields:      parseFields(t.Fields),
				}
			}
		case *ast.ObjectTypeExtension:
			if isEntity(t.Directives) {
				sg.entities[t.Name.String()] = &Entity{
					Keys:        parseEntityKeys(t.Directives),
					isExtension: true,
					Fields:      parseFields(t.Fields),
				}
			}
		}
	}

	return sg, nil
}

// GetEntities returns all entities declared or extended by this subgraph.
func (sg *SubGraph) GetEntities() map[string]*Entity { return sg.entities }

// GetEntity looks up one entity by type name.
func (sg *SubGraph) GetEntity(name string) (*Entity, bool) {
	entity, ok := sg.entities[name]
	return entity, ok
}

func parseFields(fields []*ast.FieldDefinition) map[string]*Field {
	out := make(map[string]*Field, len(fields))
	for _, field := range fields {
		out[field.Name.String()] = parseField(field)
	}
	return out
}

func isEntity(directives []*ast.Directive) bool {
	for _, d := range directives {
		if d.Name == "key" {
			return true
		}
	}
	return false
}

func parseEntityKeys(directives []*ast.Directive) []EntityKey {
	var keys []EntityKey

	for _, d := range directives {
		if d.Name != "key" {
			continue
		}

		key := EntityKey{Resolvable: true}
		for _, arg := range d.Arguments {
			switch arg.Name.String() {
			case "fields":
				key.FieldSet = strings.Trim(arg.Value.String(), "\"")
			case "resolvable":
				if arg.Value.String() == "false" {
					key.Resolvable = false
				}
			}
		}
		keys = append(keys, key)
	}

	return keys
}

func parseField(field *ast.FieldDefinition) *Field {
	f := &Field{
		Name:     field.Name.String(),
		Type:     field.Type,
		Requires: []string{},
		Provides: []string{},
	}

	for _, d := range field.Directives {
		switch d.Name {
		case "requires":
			if len(d.Arguments) > 0 {
				f.Requires = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "provides":
			if len(d.Arguments) > 0 {
				f.Provides = strings.Fields(strings.Trim(d.Arguments[0].Value.String(), "\""))
			}
		case "shareable":
			f.isShareable = true
		case "override":
			for _, arg := range d.Arguments {
				if arg.Name.String() == "from" {
					f.override = &Override{From: strings.Trim(arg.Value.String(), "\"")}
				}
			}
		case "inaccessible":
			f.isInaccessible = true
		}
	}

	return f
}
