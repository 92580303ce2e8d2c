package server

import (
	"net/http"
	"slices"
	"strings"
)

// Chain composes middleware into one. The first argument ends up outermost.
func Chain(middleware ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for _, mw := range slices.Backward(middleware) {
			next = mw(next)
		}
		return next
	}
}

// BasicRouter registers method-qualified patterns on an [http.ServeMux].
type BasicRouter struct {
	mux    *http.ServeMux
	stack  []Middleware
	routes []string
}

// NewBasicRouter creates an empty [BasicRouter].
func NewBasicRouter() *BasicRouter {
	return &BasicRouter{mux: http.NewServeMux()}
}

// Use appends to the middleware stack. Only routes registered afterwards are wrapped.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.stack = append(r.stack, middleware...)
}

// Handle serves handler for "METHOD path".
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.register(strings.ToUpper(method)+" "+path, r.Apply(handler))
}

// Handler registers every pattern returned by [Handler.Routes].
func (r *BasicRouter) Handler(handler Handler) {
	wrapped := r.Apply(handler)
	for _, pattern := range handler.Routes() {
		r.register(pattern, wrapped)
	}
}

func (r *BasicRouter) register(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
	r.routes = append(r.routes, pattern)
}

// Routes lists registered patterns in registration order.
func (r *BasicRouter) Routes() []string { return slices.Clone(r.routes) }

func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler with the current middleware stack.
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	return Chain(r.stack...)(handler)
}
