package dispatch

import "net/url"

// Request is one content URL request being routed to a handler.
type Request struct {
	// Path is the request path relative to its repository mount, with any
	// leading "content://{authority}/{account}/{repo}/" prefix already
	// stripped by the registry (spec §4.7).
	Path string
	// Query holds the request's query parameters.
	Query url.Values
	// PathParams holds the named captures from the matched Pattern.
	PathParams map[string]string
}

// Param returns a path parameter, or "" if absent.
func (r *Request) Param(name string) string {
	return r.PathParams[name]
}

// QueryParam returns a query parameter, or "" if absent.
func (r *Request) QueryParam(name string) string {
	return r.Query.Get(name)
}
