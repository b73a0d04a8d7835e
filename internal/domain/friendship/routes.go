package friendship

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the friendship router.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// All routes require authentication
	r.Use(authMiddleware)

	r.Get("/", h.ListFriends)
	r.Get("/online", h.ListOnline)
	r.Delete("/{id}", h.Remove)
	r.Get("/status/{id}", h.GetStatus)

	r.Route("/requests", func(r chi.Router) {
		r.Post("/", h.SendRequest)
		r.Get("/incoming", h.ListIncoming)
		r.Get("/outgoing", h.ListOutgoing)
		r.Post("/{id}/accept", h.Accept)
		r.Post("/{id}/decline", h.Decline)
		r.Delete("/{id}", h.Cancel)
	})

	return r
}

// BlockRoutes returns block/unblock routes mounted under /users.
func (h *Handler) BlockRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/{id}/block", h.Block)
	r.Delete("/{id}/block", h.Unblock)
	r.Get("/me/blocked", h.ListBlocked)

	return r
}
