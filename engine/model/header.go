package model

import "strings"

// Header is a response header container with case-insensitive lookup.
// Keys are canonicalized to lower case on insert; values preserve insertion
// order so repeated headers keep their capture order.
type Header map[string][]string

// NewHeader creates an empty header container.
func NewHeader() Header {
	return make(Header)
}

// Add appends a value under the given header name.
func (h Header) Add(name, value string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	h[key] = append(h[key], value)
}

// Get returns the first value recorded for name, or "" when absent.
func (h Header) Get(name string) string {
	values := h[strings.ToLower(strings.TrimSpace(name))]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns every value recorded for name in capture order.
func (h Header) Values(name string) []string {
	return h[strings.ToLower(strings.TrimSpace(name))]
}

// Has reports whether the header name was observed at all.
func (h Header) Has(name string) bool {
	return len(h[strings.ToLower(strings.TrimSpace(name))]) > 0
}
