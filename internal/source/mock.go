package source

import (
	"context"

	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
)

// MockSource returns a pre-configured response. Test and fixture use only.
type MockSource struct {
	id   string
	body []byte
}

// NewMockSource builds a mock source answering every request with body.
func NewMockSource(id string, body []byte) *MockSource {
	return &MockSource{id: id, body: body}
}

func (s *MockSource) ID() string { return s.id }

func (s *MockSource) Execute(ctx context.Context, rctx *execcontext.Context, hooks UpstreamHooks) (*gqlmsg.Response, error) {
	return gqlmsg.ParseResponse(s.body)
}
