package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/auth"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/handler"
	"github.com/stemsi/exstem-exam-client/internal/logger"
	"github.com/stemsi/exstem-exam-client/internal/middleware"
	"github.com/stemsi/exstem-exam-client/internal/router"
	"github.com/stemsi/exstem-exam-client/internal/service"
)

func main() {
	var issueFor int
	flag.IntVar(&issueFor, "issue-token", 0, "Print a student token for this student id and keep serving")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.StubPort).
		Str("mode", cfg.GinMode).
		Str("seed_file", cfg.ExamSeedFile).
		Msg("Starting portal stub")

	// ─── Load Exams ────────────────────────────────────────────────────
	seeds, err := service.LoadSeedFile(cfg.ExamSeedFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam seed file")
	}
	catalog := service.NewExamCatalogService(log)
	if catalog.PublishAll(seeds) == 0 {
		log.Fatal().Msg("No valid exams in seed file")
	}
	log.Info().Strs("exams", catalog.ExamIDs()).Msg("Exams available")

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	if issueFor > 0 {
		tok, err := tokens.IssueStudentToken(issueFor, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		log.Info().Int("student_id", issueFor).Str("token", tok).Msg("Issued student token")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentExam: handler.NewStudentExamHandler(catalog),
		WS:          handler.NewWSHandler(catalog, log, cfg.AllowedOrigins),
	}
	if cfg.SubmitRateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.SubmitRateLimit, time.Minute, middleware.ByStudent)
		defer limiter.Close()
		handlers.SubmitLimiter = limiter
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokens, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.StubPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.StubPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
