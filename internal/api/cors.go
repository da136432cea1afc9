package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/rs/cors"
)

// WithCORS wraps next for browser clients on origins. "*" allows any origin.
func WithCORS(next http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         600,
	})
	return c.Handler(next)
}

// originPatterns turns allowed origins into websocket host patterns. It
// reports false when any origin is allowed.
func originPatterns(origins []string) ([]string, bool) {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil, false
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out, true
}
