// Package gqlmsg holds the GraphQL request/response value types plus the
// extraction rules that turn a raw HTTP request into a GraphQL one.
package gqlmsg

import (
	"fmt"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// Request is a GraphQL request as received over the wire.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// ParsedRequest augments a Request with its parsed AST. The AST and Query
// text are kept consistent: mutating Query requires calling Reparse.
type ParsedRequest struct {
	Request
	Document *ast.Document
}

// Parse parses req.Query and returns the parsed request. Parser errors are
// joined into a single error.
func Parse(req *Request) (*ParsedRequest, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("request is missing a query")
	}

	doc, err := ParseQuery(req.Query)
	if err != nil {
		return nil, err
	}

	return &ParsedRequest{Request: *req, Document: doc}, nil
}

// ParseQuery parses GraphQL operation text into a document.
func ParseQuery(query string) (*ast.Document, error) {
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("failed to parse query: %v", errs)
	}
	return doc, nil
}

// Reparse re-parses the current Query text, refreshing the AST after a
// plugin rewrote the operation.
func (p *ParsedRequest) Reparse() error {
	doc, err := ParseQuery(p.Query)
	if err != nil {
		return err
	}
	p.Document = doc
	return nil
}

// Operation returns the first operation definition, or nil.
func (p *ParsedRequest) Operation() *ast.OperationDefinition {
	if p.Document == nil {
		return nil
	}
	for _, def := range p.Document.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok {
			return op
		}
	}
	return nil
}

// IsMutation reports whether the parsed operation is a mutation.
func (p *ParsedRequest) IsMutation() bool {
	op := p.Operation()
	return op != nil && op.Operation == ast.Mutation
}
