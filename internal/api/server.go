package api

import (
	"net/http"

	"filevault/internal/config"
	"filevault/internal/database"
	"filevault/internal/files"
	"filevault/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Server struct {
	config *config.Config
	store  *database.Store
	svc    *files.Service
	blobs  files.BlobStore
	wsHub  *websocket.Hub
	log    zerolog.Logger
}

func NewServer(cfg *config.Config, store *database.Store, svc *files.Service, blobs files.BlobStore, wsHub *websocket.Hub, log zerolog.Logger) *Server {
	return &Server{
		config: cfg,
		store:  store,
		svc:    svc,
		blobs:  blobs,
		wsHub:  wsHub,
		log:    log,
	}
}

// Routes wires the API surface. Ops endpoints (health, metrics, swagger) and
// the blob route for the local storage backend are mounted by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/register", s.RegisterHandler)
	r.Post("/auth/login", s.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthMiddleware)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", s.GetCurrentUserHandler)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireAdmin)
				r.Get("/", s.ListUsersHandler)
				r.Get("/{id}", s.GetUserHandler)
				r.Put("/{id}", s.UpdateUserHandler)
				r.Delete("/{id}", s.DeleteUserHandler)
			})
		})

		r.Route("/files", func(r chi.Router) {
			r.Post("/folders", s.CreateFolderHandler)
			r.Post("/", s.UploadFileHandler)
			r.Get("/", s.ListFilesHandler)
			r.Get("/{id}", s.GetFileHandler)
			r.Put("/{id}", s.UpdateFileHandler)
			r.Delete("/{id}", s.DeleteFileHandler)
			r.Post("/{id}/share", s.ShareFileHandler)
			r.Delete("/{id}/share/{userId}", s.UnshareFileHandler)
		})
	})

	return r
}

// HealthCheckHandler reports liveness and database reachability.
// @Summary      Health check
// @Tags         ops
// @Produce      json
// @Success      200  {object}  Response
// @Failure      503  {object}  Response
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok"})
}
