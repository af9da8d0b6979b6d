package gqlmsg

import (
	"github.com/goccy/go-json"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// Error is a GraphQL error object.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a GraphQL response. When Raw is set it holds the exact bytes
// received from an upstream, and serialization reuses them so a plain
// passthrough stays byte-identical.
type Response struct {
	Data       any            `json:"data,omitempty"`
	Errors     []Error        `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	Raw         []byte `json:"-"`
	ContentType string `json:"-"`
}

// NewErrorResponse builds a response carrying a single error message.
func NewErrorResponse(message string) *Response {
	return &Response{Errors: []Error{{Message: message}}}
}

// ParseResponse decodes body as a GraphQL response, keeping the raw bytes.
func ParseResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	resp.Raw = body
	return &resp, nil
}

// Marshal serializes the response, preferring the raw upstream bytes when
// they are still authoritative.
func (r *Response) Marshal() ([]byte, error) {
	if r.Raw != nil {
		return r.Raw, nil
	}
	return json.Marshal(r)
}

// ToHTTPResponse converts the GraphQL response into an HTTP response with
// the given status. A zero status defaults to 200; an empty content type
// defaults to application/json.
func (r *Response) ToHTTPResponse(status int) *httpmsg.Response {
	body, err := r.Marshal()
	if err != nil {
		body = []byte(`{"errors":[{"message":"failed to serialize response"}]}`)
	}

	if status == 0 {
		status = 200
	}

	ct := r.ContentType
	if ct == "" {
		ct = httpmsg.ContentTypeJSON
	}

	resp := &httpmsg.Response{Status: status, Body: body}
	resp.Headers.Set("content-type", ct)
	return resp
}

// ErrorHTTPResponse builds the HTTP response for a request-level GraphQL
// error, honoring the Accept-header status-code rules: the legacy
// application/json MIME reports request errors with 200, while
// application/graphql-response+json requires the given error status.
func ErrorHTTPResponse(accept, message string, errorStatus int) *httpmsg.Response {
	status := 200
	if httpmsg.AcceptsGraphQLResponseJSON(accept) {
		status = errorStatus
	}
	return NewErrorResponse(message).ToHTTPResponse(status)
}
