package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"notes-collab/activity"
	"notes-collab/collab"
	"notes-collab/config"
	"notes-collab/core"
	"notes-collab/handlers/api/documents"
	"notes-collab/handlers/api/rooms"
	"notes-collab/handlers/websocket"
	"notes-collab/identity"
	authMiddleware "notes-collab/middleware"
	"notes-collab/stores"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func allowOriginFunc(allowed []string) func(r *http.Request, origin string) bool {
	return func(r *http.Request, origin string) bool {
		if origin == "" {
			return false
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		if len(allowed) > 0 {
			return false
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}

		switch parsed.Scheme {
		case "http", "https":
			switch parsed.Hostname() {
			case "localhost", "127.0.0.1", "::1":
				return true
			}
		case "tauri":
			return parsed.Hostname() == "localhost"
		}

		return false
	}
}

func setupRouter(cfg *config.Config, store core.DocumentStore, verifier core.IdentityVerifier, registry rooms.PresenceSource) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  allowOriginFunc(cfg.App.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.AuthBearer(verifier))
		r.Get("/rooms", rooms.HandleList(registry))
		r.Get("/rooms/{documentId}/presence", rooms.HandlePresence(registry, store))
		r.Get("/documents/{documentId}", documents.HandleGet(store))
	})

	return r
}

// buildVerifier chains the configured credential verifiers: HS256 JWTs
// first, then OAuth access tokens, behind a short-lived cache.
func buildVerifier(cfg config.IdentityConfig) (core.IdentityVerifier, error) {
	var chain identity.Chain
	if cfg.JWTSecret != "" {
		chain = append(chain, identity.NewJWTVerifier(cfg.JWTSecret))
	}
	if cfg.OAuthUserInfoURL != "" {
		chain = append(chain, identity.NewOAuthVerifier(cfg.OAuthUserInfoURL))
	}
	if len(chain) == 0 {
		return nil, errors.New("JWT_SECRET or OAUTH_USERINFO_URL must be set")
	}

	var verifier core.IdentityVerifier = chain
	if len(chain) == 1 {
		verifier = chain[0]
	}
	if cfg.CacheTTL > 0 {
		verifier = identity.NewCachingVerifier(verifier, cfg.CacheTTL)
	}
	return verifier, nil
}

func buildActivityBus(ctx context.Context, cfg config.ActivityConfig) (*activity.Bus, []io.Closer) {
	sinks := []activity.Sink{activity.LogSink{}}
	var closers []io.Closer

	if cfg.NatsURL != "" {
		natsSink, err := activity.NewNATSSink(cfg.NatsURL)
		if err != nil {
			logrus.WithError(err).Warn("Failed to connect to NATS, activity stays local")
		} else {
			sinks = append(sinks, natsSink)
			closers = append(closers, closerFunc(natsSink.Close))
		}
	}

	bus := activity.NewBus(sinks...)
	if err := bus.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to start activity bus")
	}
	return bus, append(closers, bus)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func waitForShutdown(srv *http.Server, ioo *socketio.Server, closers ...io.Closer) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")

	ioo.Close(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	ctx := context.Background()

	store, err := stores.GetStore(ctx, cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open document store")
	}

	verifier, err := buildVerifier(cfg.Identity)
	if err != nil {
		logrus.WithError(err).Fatal("No credential verifier configured")
	}

	bus, closers := buildActivityBus(ctx, cfg.Activity)
	if c, ok := store.(io.Closer); ok {
		closers = append(closers, c)
	}

	hub := collab.NewHub(store, verifier, bus, collab.Options{
		AuthTimeout:  cfg.App.AuthTimeout,
		StoreTimeout: cfg.App.StoreTimeout,
	})

	r := setupRouter(cfg, store, verifier, hub.Registry())
	ioo := websocket.SetupSocketIO(hub, cfg.App.CorsAllowedOrigins)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: cfg.App.ListenAddr, Handler: r}

	logrus.WithField("addr", cfg.App.ListenAddr).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(srv, ioo, closers...)
}
