// Package httpcommon is the shared chi router scaffolding every cowboy
// cmd/ binary's HTTP listener builds on: the
// recoverer/request-id/CORS middleware stack, health and metrics
// endpoints, and apperr-aware JSON response helpers. Grounded on the
// teacher's internal/api.NewServer, with the JWT authMiddleware dropped
// since cowboy has no user-account surface (see SPEC_FULL.md's dropped
// teacher deps).
package httpcommon

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/StarHuntingGames/cowboy/internal/apperr"
)

// NewRouter builds the base router shared by every service: panic
// recovery, request IDs, permissive CORS, /health and /metrics.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Get("/health", health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler())
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// WriteJSON encodes v as the response body with a 200 status.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to an HTTP status and {"error": ...} body via
// apperr.CodeOf, the way every handler in the fleet reports failures.
func WriteError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// DecodeJSON reads and decodes the request body into v, returning a
// BadRequest apperr on failure.
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.BadRequest, "invalid json body")
	}
	return nil
}

// ReadRawBody reads the full request body unparsed, for handlers that
// forward it verbatim rather than decoding into a known struct.
func ReadRawBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperr.New(apperr.BadRequest, "failed to read request body")
	}
	return body, nil
}
