package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes holds the middleware the session routes need.
type Routes struct {
	Auth        func(http.Handler) http.Handler
	LoginLimit  func(http.Handler) http.Handler
	ExtendLimit func(http.Handler) http.Handler
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router, mw Routes) {
	r.With(mw.LoginLimit).Post("/v1/sessions", h.Create)
	r.With(mw.ExtendLimit).Post("/v1/sessions/extend", h.Extend)
	r.Post("/v1/sessions/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(mw.Auth)
		r.Get("/v1/sessions", h.List)
		r.Delete("/v1/sessions", h.InvalidateAll)
	})
}
