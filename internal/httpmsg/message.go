// Package httpmsg holds the HTTP request/response value types that flow
// through the gateway pipeline. They are deliberately decoupled from
// net/http so plugins can mutate them freely and so the same types serve
// both the downstream (client-facing) and upstream (subgraph-facing) sides.
package httpmsg

import (
	"io"
	"net/http"
	"strconv"
)

// Request is a gateway-owned HTTP request.
type Request struct {
	Method      string
	URI         string
	QueryString string
	Headers     Header
	Body        []byte
}

// Response is a gateway-owned HTTP response.
type Response struct {
	Status  int
	Headers Header
	Body    []byte
}

// FromHTTPRequest reads r fully into a Request. The body is consumed.
func FromHTTPRequest(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}

	return &Request{
		Method:      r.Method,
		URI:         r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     FromHTTPHeader(r.Header),
		Body:        body,
	}, nil
}

// Clone deep-copies the request so an upstream copy can be mutated without
// touching the downstream original.
func (r *Request) Clone() *Request {
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &Request{
		Method:      r.Method,
		URI:         r.URI,
		QueryString: r.QueryString,
		Headers:     r.Headers.Clone(),
		Body:        body,
	}
}

// FromHTTPResponse reads resp fully into a Response. The body is consumed
// and closed.
func FromHTTPResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: FromHTTPHeader(resp.Header),
		Body:    body,
	}, nil
}

// WriteTo writes the response to w. A zero status is treated as 200.
func (r *Response) WriteTo(w http.ResponseWriter) error {
	r.Headers.CopyTo(w.Header())
	if !r.Headers.Has("content-length") {
		w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	_, err := w.Write(r.Body)
	return err
}
