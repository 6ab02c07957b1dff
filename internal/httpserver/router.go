// Package httpserver exposes the backend contract to the broker over HTTP:
// one endpoint per check, JSON in and out, every non-true outcome reported
// as a deny with its error kind.
package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/backend"
)

type healthResponse struct {
	Status string `json:"status"`
}

// API holds the handler dependencies.
type API struct {
	backend *backend.Backend
	log     *zap.Logger
}

// NewRouter configures the HTTP router with the auth endpoints.
func NewRouter(be *backend.Backend, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{backend: be, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
	})

	r.Post("/auth/user", a.handleAuthUser)
	r.Post("/auth/vhost", a.handleAuthVhost)
	r.Post("/auth/resource", a.handleAuthResource)
	r.Post("/auth/topic", a.handleAuthTopic)

	return r
}
