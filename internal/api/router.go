package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/ping", PingHandler)

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", app.ListVideosHandler)
		r.Post("/", app.CreateVideoHandler)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetVideoHandler)
			r.Delete("/", app.DeleteVideoHandler)
			r.Post("/upload", app.UploadVideoHandler)
			r.Get("/stream", app.StreamVideoHandler)
			r.Post("/like", app.LikeVideoHandler)
		})
	})

	r.Post("/upload", app.LegacyUploadHandler)

	if app.Media != nil {
		r.Handle("/media/*", http.StripPrefix("/media", app.Media))
	}

	return r
}
