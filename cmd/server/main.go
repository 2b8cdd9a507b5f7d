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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chiinsurancebrokers/petquoteengine/internal/config"
	"github.com/chiinsurancebrokers/petquoteengine/internal/dispatch"
	"github.com/chiinsurancebrokers/petquoteengine/internal/filecheck"
	"github.com/chiinsurancebrokers/petquoteengine/internal/health"
	"github.com/chiinsurancebrokers/petquoteengine/internal/logger"
	"github.com/chiinsurancebrokers/petquoteengine/internal/metrics"
	"github.com/chiinsurancebrokers/petquoteengine/internal/middleware"
	"github.com/chiinsurancebrokers/petquoteengine/internal/quote"
	"github.com/chiinsurancebrokers/petquoteengine/internal/ratelimit"
	"github.com/chiinsurancebrokers/petquoteengine/internal/scrape"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slogger := logger.New(logger.DefaultConfig())

	checker := filecheck.New(
		int64(cfg.Limits.MaxImageSizeMB)*1024*1024,
		int64(cfg.Limits.MaxPDFSizeMB)*1024*1024,
	)

	sender := dispatch.NewSMTPSender(cfg.SMTP)
	limiter := ratelimit.NewSendLimiter(cfg.Limits.MaxEmailsPerHour)
	dispatcher := dispatch.New(limiter, sender, checker, cfg.SMTP.User, cfg.SMTP.FromName, slogger)

	fetcher := scrape.New(cfg.Scrape, []string{"petshealth.gr"}, slogger)

	renderer, err := quote.NewHTMLRenderer()
	if err != nil {
		log.Fatalf("Failed to build email renderer: %v", err)
	}

	contentURL := os.Getenv("SITE_CONTENT_URL")
	svc := quote.NewService(dispatcher, renderer, fetcher, contentURL, checker, slogger)

	maxBody := int64(cfg.Limits.MaxPDFSizeMB+cfg.Limits.MaxImageSizeMB+1) * 1024 * 1024
	quoteHandler := quote.NewHandler(svc, dispatcher, maxBody, slogger)
	healthHandler := health.NewHandler(sender, version, 5*time.Second)
	submissionLimiter := middleware.NewSubmissionRateLimiter(30, time.Hour)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(slogger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://www.petshealth.gr", "http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(submissionLimiter.Handler)
			quoteHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		slogger.Info("starting server", "addr", cfg.Server.Addr(), "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slogger.Info("server exited")
}
