//	@title			publiclinks API
//	@version		1.0
//	@description	Internal file-sharing gateway: upload files to object storage, get a short proxy link, share it with teammates.
//
//	@host		localhost:8080
//	@BasePath	/

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/publiclinks/service/internal/auth"
	"github.com/publiclinks/service/internal/config"
	"github.com/publiclinks/service/internal/db"
	"github.com/publiclinks/service/internal/file"
	appMiddleware "github.com/publiclinks/service/internal/middleware"
	"github.com/publiclinks/service/internal/shortlink"
	"github.com/publiclinks/service/internal/storage"
	"github.com/publiclinks/service/internal/user"

	_ "github.com/publiclinks/service/docs/swagger"
)

func main() {
	cfg := config.Load()

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	store, err := storage.NewMinioStorage(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StoragePublicBase,
		cfg.StorageUseSSL,
	)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}

	links := shortlink.NewDubClient(cfg.DubAPIKey, cfg.DubDomain)
	if !links.Enabled() {
		log.Println("short-link provider not configured, links disabled")
	}

	// Wire dependencies: repository → service → handler
	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)

	sessions := auth.NewSessions(cfg.SessionSecret)
	google := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL+"/auth/callback")
	resolver := auth.NewResolver(sessions, userSvc)
	authHandler := auth.NewHandler(google, sessions, userSvc, cfg.AllowedEmailDomain)

	fileRepo := file.NewRepository(pool)
	fileSvc := file.NewService(fileRepo, store, links, cfg.BaseURL)
	fileHandler := file.NewHandler(fileSvc)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Sign-in flow
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Get("/logout", authHandler.Logout)
		r.With(appMiddleware.RequireUser(resolver)).Get("/me", authHandler.Me)
	})

	// File API
	r.Route("/api/files", func(r chi.Router) {
		r.Use(appMiddleware.RequireUser(resolver))
		r.Get("/", fileHandler.List)
		r.Post("/", fileHandler.Upload)
		r.Put("/{id}/link", fileHandler.UpdateLink)
		r.Delete("/{id}", fileHandler.Delete)
	})

	// Authenticated file serving; browsers without a session are sent to
	// login and come back here afterwards.
	r.With(appMiddleware.RequireUserOrLogin(resolver)).Get("/f/*", fileHandler.Serve)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s)", cfg.Port, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
