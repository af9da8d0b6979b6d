package gqlmsg

import (
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// ExtractFromPOST decodes a POST body of the form
// {query, operationName?, variables?, extensions?}. The Content-Type must
// name a JSON payload.
func ExtractFromPOST(req *httpmsg.Request) (*Request, error) {
	ct := req.Headers.Get("content-type")
	if ct != "" && !httpmsg.IsJSONContentType(ct) {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	if len(req.Body) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	var gqlReq Request
	if err := json.Unmarshal(req.Body, &gqlReq); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	if gqlReq.Query == "" {
		return nil, fmt.Errorf("request is missing a query")
	}

	return &gqlReq, nil
}

// ExtractFromQueryString decodes the GET form of a GraphQL request:
// ?query=...&operationName=...&variables={...}&extensions={...}.
// variables and extensions are JSON-encoded parameter values.
func ExtractFromQueryString(rawQuery string) (*Request, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query string: %w", err)
	}

	query := values.Get("query")
	if query == "" {
		return nil, fmt.Errorf("request is missing a query")
	}

	gqlReq := &Request{
		Query:         query,
		OperationName: values.Get("operationName"),
	}

	if raw := values.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &gqlReq.Variables); err != nil {
			return nil, fmt.Errorf("invalid variables parameter: %w", err)
		}
	}

	if raw := values.Get("extensions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &gqlReq.Extensions); err != nil {
			return nil, fmt.Errorf("invalid extensions parameter: %w", err)
		}
	}

	return gqlReq, nil
}
