package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microblog-app/apiserver/config"
	"github.com/microblog-app/apiserver/internal/db"
	"github.com/microblog-app/apiserver/internal/events"
	"github.com/microblog-app/apiserver/internal/handlers"
	"github.com/microblog-app/apiserver/internal/metrics"
	"github.com/microblog-app/apiserver/internal/services"
	"github.com/microblog-app/apiserver/internal/storage"
	"github.com/microblog-app/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  *events.Publisher
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	publisher, err := newEventPublisher(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := newAvatarStore(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		closePublisher(publisher)
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	postRepo := store.NewPostRepository(dbConn)

	userService := services.NewUserService(userRepo)
	postService := services.NewPostService(postRepo, publisherOrNil(publisher))

	reporter := metrics.NewReporter()
	metricsHandler := handlers.NewMetricsHandler(reporter)
	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		metricsHandler.TrackRequests,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/api/metrics", metricsHandler.GetMetrics)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postService, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, avatars, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	closePublisher(s.publisher)
	return s.httpServer.Close()
}

// newEventPublisher builds the activity-event publisher selected by
// config, or nil when events are disabled.
func newEventPublisher(ctx context.Context, cfg config.Config) (*events.Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.EventsBackend)) {
	case "":
		return nil, nil
	case "rabbitmq":
		client, err := events.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return events.NewPublisher(client), nil
	case "pubsub":
		client, err := events.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return events.NewPublisher(client), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.EventsBackend)
	}
}

// newAvatarStore builds the avatar store selected by config, or nil
// when object storage is disabled.
func newAvatarStore(ctx context.Context, cfg config.Config) (*storage.AvatarStore, error) {
	var backend storage.ObjectStorage
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "":
		return nil, nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	avatars := storage.NewAvatarStore(backend)
	if err := avatars.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return avatars, nil
}

// publisherOrNil keeps the typed-nil pointer out of the service's
// interface field.
func publisherOrNil(publisher *events.Publisher) services.EventPublisher {
	if publisher == nil {
		return nil
	}
	return publisher
}

func closePublisher(publisher *events.Publisher) {
	if publisher != nil {
		_ = publisher.Close()
	}
}
