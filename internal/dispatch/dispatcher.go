package dispatch

import (
	"context"
	"net/url"
	"sort"

	"github.com/locomote-sh/locomote/internal/locoerrors"
)

// Handler generates a response for a matched Request.
type Handler interface {
	Handle(ctx context.Context, req *Request, resp ResponseWriter)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, req *Request, resp ResponseWriter)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request, resp ResponseWriter) {
	f(ctx, req, resp)
}

type mapping struct {
	pattern Pattern
	handler Handler
}

// Dispatcher routes a request path to the handler registered for the best
// matching pattern, grounded on the original implementation's
// LORequestDispatcher. Patterns are registered once at repository
// construction (spec §4.5: "Patterns are registered once at authority
// construction") — Register is not safe to call concurrently with
// Dispatch.
type Dispatcher struct {
	mappings []mapping
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a pattern-to-handler mapping. Patterns are tried in order
// of decreasing specificity (more literal segments first, then patterns
// without a rest-capture, then more segments; remaining ties keep
// registration order), so specific endpoints like
// "files.api/{id}/content" never lose to a broader catch-all.
func (d *Dispatcher) Register(pattern string, h Handler) {
	d.mappings = append(d.mappings, mapping{pattern: Compile(pattern), handler: h})

	sort.SliceStable(d.mappings, func(i, j int) bool {
		li, ri, li2 := d.mappings[i].pattern.specificity()
		lj, rj, lj2 := d.mappings[j].pattern.specificity()

		if li != lj {
			return li > lj
		}
		if ri != rj {
			return !ri // no-rest sorts before has-rest
		}
		return li2 > lj2
	})
}

// Dispatch finds the first registered pattern matching path and invokes
// its handler with a Request carrying path, query, and the captured path
// parameters. path is matched as given; query parameters arrive only
// through query. If no pattern matches, responds with ErrNotFound.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, query url.Values, resp ResponseWriter) {
	for _, m := range d.mappings {
		params, ok := m.pattern.match(path)
		if !ok {
			continue
		}

		req := &Request{Path: path, Query: query, PathParams: params}
		m.handler.Handle(ctx, req, resp)
		return
	}

	resp.RespondWithError(locoerrors.New(locoerrors.ErrNotFound, "no handler registered for path %q", path))
}
