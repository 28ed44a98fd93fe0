package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/skeletab/internal/annotator"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *annotator.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/config", h.GetConfig)
	r.Post("/config", h.UpdateConfig)

	r.Get("/projects", h.ListProjects)

	r.Route("/table/{paper}/{table}", func(r chi.Router) {
		r.Get("/", h.GetTable)
		r.Post("/save_csv", h.SaveGrid)
		r.Post("/save_skeleton", h.SaveSkeleton)
		r.Get("/variables", h.Variables)
		r.Get("/image", h.ServeImage)
		r.Post("/image", h.UploadImage)
	})

	r.Get("/search", h.Search)
	r.Get("/progress", h.Progress)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
