package httpmsg

import "strings"

// MIME types the gateway negotiates over.
const (
	ContentTypeJSON            = "application/json"
	ContentTypeGraphQLResponse = "application/graphql-response+json"
	ContentTypeHTML            = "text/html"
)

// IsJSONContentType reports whether ct names a JSON payload, ignoring any
// charset parameter.
func IsJSONContentType(ct string) bool {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct == ContentTypeJSON || ct == ContentTypeGraphQLResponse || strings.HasSuffix(ct, "+json")
}

// AcceptsGraphQLResponseJSON reports whether the Accept header opts in to
// the application/graphql-response+json response MIME. Per GraphQL-over-HTTP
// this changes the status code used for request errors (400 instead of the
// legacy 200).
func AcceptsGraphQLResponseJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(part)
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		if strings.EqualFold(mt, ContentTypeGraphQLResponse) {
			return true
		}
	}
	return false
}

// AcceptsHTML reports whether the Accept header prefers an HTML document
// (used by the GraphiQL playground plugin on GET).
func AcceptsHTML(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(part)
		if i := strings.Index(mt, ";"); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		if strings.EqualFold(mt, ContentTypeHTML) {
			return true
		}
	}
	return false
}
