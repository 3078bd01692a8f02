// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/timevaultapp/timevault/backend/blob"
	"github.com/timevaultapp/timevault/backend/config"
	"github.com/timevaultapp/timevault/backend/crypto"
	"github.com/timevaultapp/timevault/backend/handlers"
	"github.com/timevaultapp/timevault/backend/mail"
	"github.com/timevaultapp/timevault/backend/middleware"
	"github.com/timevaultapp/timevault/backend/scheduler"
	"github.com/timevaultapp/timevault/backend/storage"
	"github.com/timevaultapp/timevault/backend/storage/memory"
	"github.com/timevaultapp/timevault/backend/storage/postgres"
	redisstore "github.com/timevaultapp/timevault/backend/storage/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var store storage.Store
	var ping func() error
	switch cfg.Store.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		pg := postgres.NewStore(db)
		if err := pg.Migrate(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		store = pg
		ping = db.Ping
	case "memory":
		store = memory.NewStore()
		ping = func() error { return nil }
		log.Printf("Using in-memory store; data will not survive a restart")
	default:
		log.Fatalf("Unknown store type %q", cfg.Store.Type)
	}

	// Redis backs the share password attempt limiter. Memory mode runs
	// without it.
	var limiter handlers.AttemptLimiter
	if cfg.Store.Type == "postgres" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		limiter = redisstore.NewAttemptLimiter(rdb, cfg.Security.MaxPasswordAttempts, cfg.Security.AttemptWindow)
	}

	// Media blob storage
	var media blob.Storage
	if cfg.Media.Bucket != "" {
		s3, err := blob.NewS3Storage(ctx, cfg.Media.Bucket, cfg.Media.Region, cfg.Media.IsLocal)
		if err != nil {
			log.Fatalf("Failed to initialize media storage: %v", err)
		}
		media = s3
	} else {
		log.Printf("No media bucket configured; uploads disabled")
	}

	// Mail
	var mailer mail.Mailer = mail.NopMailer{}
	if cfg.Mail.Host != "" {
		smtp, err := mail.NewSMTPMailer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username,
			cfg.Mail.Password, cfg.Mail.From, cfg.Server.BaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize mailer: %v", err)
		}
		mailer = smtp
	} else {
		log.Printf("No SMTP host configured; notifications disabled")
	}

	cipher := crypto.NewCipher(cfg.Security.EncryptionKey)

	jwtConfig := &middleware.JWTConfig{
		Secret: cfg.Security.JWTSecret,
		Issuer: cfg.Security.JWTIssuer,
		TTL:    cfg.Security.TokenTTL,
	}
	authMiddleware := middleware.NewAuthMiddleware(jwtConfig)

	authHandler := handlers.NewAuthHandler(store, jwtConfig)
	capsuleHandler := handlers.NewCapsuleHandler(store, cipher, media)
	shareHandler := handlers.NewShareHandler(store, store, store, cipher, limiter)

	sched := scheduler.New(store, store, mailer, scheduler.SystemClock(), cfg.Scheduler.SweepInterval)
	sched.Start(ctx)

	r := mux.NewRouter()
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Auth endpoints
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")
	auth.Handle("/me", authMiddleware(http.HandlerFunc(authHandler.Me))).Methods("GET")

	// Capsule endpoints (all authenticated)
	capsules := r.PathPrefix("/api/capsules").Subrouter()
	capsules.Use(authMiddleware)
	capsules.HandleFunc("", capsuleHandler.Create).Methods("POST")
	capsules.HandleFunc("", capsuleHandler.List).Methods("GET")
	capsules.HandleFunc("/stats/dashboard", capsuleHandler.DashboardStats).Methods("GET")
	capsules.HandleFunc("/analytics/emotion-timeline", capsuleHandler.EmotionTimeline).Methods("GET")
	capsules.HandleFunc("/{id}", capsuleHandler.Get).Methods("GET")
	capsules.HandleFunc("/{id}", capsuleHandler.Delete).Methods("DELETE")

	// Share endpoints: create/list are authenticated, access-code routes
	// are public so recipients never need an account.
	shares := r.PathPrefix("/api/shares").Subrouter()
	shares.Handle("", authMiddleware(http.HandlerFunc(shareHandler.Create))).Methods("POST")
	shares.Handle("/sent", authMiddleware(http.HandlerFunc(shareHandler.ListSent))).Methods("GET")
	shares.Handle("/received", authMiddleware(http.HandlerFunc(shareHandler.ListReceived))).Methods("GET")
	shares.HandleFunc("/{accessCode}", shareHandler.GetByAccessCode).Methods("GET")
	shares.HandleFunc("/{accessCode}/verify-password", shareHandler.VerifyPassword).Methods("POST")
	shares.HandleFunc("/{accessCode}/complete-milestone", shareHandler.CompleteMilestone).Methods("POST")

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Store unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Time capsule server starting on %s (store: %s)", cfg.Addr(), cfg.Store.Type)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
