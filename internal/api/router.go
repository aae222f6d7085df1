package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/genres", apiHandler.ListGenresHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/stories", apiHandler.CreateStoryHandler)
			r.Get("/stories", apiHandler.ListStoriesHandler)
			r.Get("/stories/{storyID}", apiHandler.GetStoryHandler)
			r.Delete("/stories/{storyID}", apiHandler.DeleteStoryHandler)
			r.Post("/stories/{storyID}/sessions", apiHandler.StartSessionHandler)

			r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
			r.Get("/sessions/{sessionID}/messages", apiHandler.ListMessagesHandler)
			r.Post("/sessions/{sessionID}/messages", apiHandler.PostMessageHandler)
		})
	})

	return r
}
