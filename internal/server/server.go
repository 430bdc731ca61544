package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lazypower/garden/internal/engine"
	"github.com/lazypower/garden/internal/store"
)

// Server is the garden HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	log     *zap.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over db. A nil engine gets one without a
// notification scheduler; a nil logger discards output.
func New(db *store.DB, eng *engine.Engine, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if eng == nil {
		eng = engine.New(db, nil, engine.WithLogger(log))
	}
	s := &Server{
		db:      db,
		engine:  eng,
		log:     log,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Post("/", s.handleCreateEntity)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Patch("/", s.handleUpdateEntity)
				r.Delete("/", s.handleDeleteEntity)
				r.Put("/hidden", s.handleSetHidden)
				r.Put("/favorite", s.handleSetFavorite(true))
				r.Delete("/favorite", s.handleSetFavorite(false))
				r.Post("/merge", s.handleMerge)

				r.Get("/interactions", s.handleListInteractions)
				r.Post("/interactions", s.handleRecordInteraction)
				r.Get("/interaction-types", s.handleEligibleTypes)

				r.Get("/tags", s.handleEntityTags)
				r.Post("/tags", s.handleAddTag)
				r.Delete("/tags/{tagID}", s.handleRemoveTag)
				r.Get("/inherited-tags", s.handleInheritedTags)

				r.Get("/members", s.handleGroupMembers)
				r.Post("/members", s.handleAddMember)
				r.Delete("/members/{memberID}", s.handleRemoveMember)
				r.Get("/groups", s.handleGroupsOf)

				r.Get("/photos", s.handleListPhotos)
				r.Post("/photos", s.handleAddPhoto)

				r.Get("/birthday-reminder", s.handleGetReminder)
				r.Put("/birthday-reminder", s.handlePutReminder)
				r.Delete("/birthday-reminder", s.handleDeleteReminder)
			})
		})
		r.Get("/favorites", s.handleListFavorites)

		r.Patch("/interactions/{id}", s.handleUpdateInteraction)
		r.Delete("/interactions/{id}", s.handleDeleteInteraction)
		r.Delete("/photos/{id}", s.handleDeletePhoto)

		r.Get("/tags", s.handleListTags)
		r.Post("/tags/recount", s.handleRecountTags)
		r.Patch("/tags/{id}", s.handleRenameTag)
		r.Delete("/tags/{id}", s.handleDeleteTag)

		r.Get("/interaction-types", s.handleListTypes)
		r.Post("/interaction-types", s.handleCreateType)
		r.Put("/interaction-types/{id}", s.handleUpdateType)
		r.Delete("/interaction-types/{id}", s.handleDeleteType)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Post("/scores/recompute", s.handleRecomputeScores)
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.PingContext(r.Context()) == nil && s.db.Ready()
	version, _ := s.db.SchemaVersion()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime":         time.Since(s.started).Seconds(),
		"db":             dbOK,
		"db_path":        s.db.Path,
		"schema_version": version,
	})
}
