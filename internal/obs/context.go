package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routeLabel returns the chi pattern that served r, or fallback when routing did not match.
// It must be called after the router has run, which is when chi fills the pattern in.
func routeLabel(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}
