// Package execcontext holds the per-request execution context shared by the
// pipeline and every plugin hook.
package execcontext

import (
	"sync"

	"github.com/google/uuid"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
)

// Context is the per-request record carried through the pipeline. It is
// created at route match and dropped after the final hook. Within one
// request it is driven by a single task; the mutex only guards the parts a
// hook may touch while an upstream call is in flight on the same request.
type Context struct {
	RequestID string

	Request *httpmsg.Request
	GraphQL *gqlmsg.ParsedRequest

	mu           sync.RWMutex
	shortCircuit *httpmsg.Response
	state        map[string]any
}

// New creates a context owning req.
func New(req *httpmsg.Request) *Context {
	return &Context{
		RequestID: uuid.NewString(),
		Request:   req,
		state:     make(map[string]any),
	}
}

// ShortCircuit deposits resp into the short-circuit slot. The first deposit
// wins; later deposits are ignored so an earlier plugin's decision stands.
func (c *Context) ShortCircuit(resp *httpmsg.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shortCircuit == nil {
		c.shortCircuit = resp
	}
}

// ShortCircuited reports whether the slot is occupied.
func (c *Context) ShortCircuited() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shortCircuit != nil
}

// TakeShortCircuit removes and returns the short-circuit response, or nil.
func (c *Context) TakeShortCircuit() *httpmsg.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp := c.shortCircuit
	c.shortCircuit = nil
	return resp
}

// Set stores a shared-state value for inter-plugin hand-off.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// Get returns a shared-state value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return v, ok
}

// GetString returns a shared-state value as a string, or "".
func (c *Context) GetString(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
