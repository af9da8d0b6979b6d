package httpmsg

import (
	"net/http"
	"strings"
)

// Header is an ordered header multimap. Keys are stored lower-cased;
// duplicate keys preserve their insertion order, which matters for
// Set-Cookie and for byte-faithful passthrough of upstream responses.
type Header struct {
	entries []headerEntry
}

type headerEntry struct {
	key   string
	value string
}

// Add appends a value for key, keeping any existing values.
func (h *Header) Add(key, value string) {
	h.entries = append(h.entries, headerEntry{key: strings.ToLower(key), value: value})
}

// Set replaces all values of key with value.
func (h *Header) Set(key, value string) {
	h.Del(key)
	h.Add(key, value)
}

// Get returns the first value for key, or "".
func (h *Header) Get(key string) string {
	key = strings.ToLower(key)
	for _, e := range h.entries {
		if e.key == key {
			return e.value
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (h *Header) Values(key string) []string {
	key = strings.ToLower(key)
	var values []string
	for _, e := range h.entries {
		if e.key == key {
			values = append(values, e.value)
		}
	}
	return values
}

// Has reports whether key is present.
func (h *Header) Has(key string) bool {
	key = strings.ToLower(key)
	for _, e := range h.entries {
		if e.key == key {
			return true
		}
	}
	return false
}

// Del removes all values for key.
func (h *Header) Del(key string) {
	key = strings.ToLower(key)
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.key != key {
			kept = append(kept, e)
		}
	}
	h.entries = kept
}

// Len returns the number of stored entries, counting duplicates.
func (h *Header) Len() int {
	return len(h.entries)
}

// Range calls fn for every entry in insertion order. Returning false stops
// the walk.
func (h *Header) Range(fn func(key, value string) bool) {
	for _, e := range h.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Clone returns a deep copy.
func (h *Header) Clone() Header {
	entries := make([]headerEntry, len(h.entries))
	copy(entries, h.entries)
	return Header{entries: entries}
}

// FromHTTPHeader converts a net/http header map, losing the original wire
// order between distinct keys but preserving per-key value order.
func FromHTTPHeader(src http.Header) Header {
	var h Header
	for key, values := range src {
		for _, v := range values {
			h.Add(key, v)
		}
	}
	return h
}

// CopyTo writes every entry into dst.
func (h *Header) CopyTo(dst http.Header) {
	for _, e := range h.entries {
		dst.Add(e.key, e.value)
	}
}
