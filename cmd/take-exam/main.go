package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/auth"
	"github.com/stemsi/exstem-exam-client/internal/cli"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/examsession"
	"github.com/stemsi/exstem-exam-client/internal/logger"
	"github.com/stemsi/exstem-exam-client/internal/portal"
	"github.com/stemsi/exstem-exam-client/internal/slatestore"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: take-exam <exam-id>")
		os.Exit(2)
	}
	os.Exit(run(os.Args[1]))
}

// run takes the exam and returns the process exit code.
func run(examID string) int {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Resolve Student ───────────────────────────────────────────────
	token, err := cli.ResolveToken(cfg.PortalToken, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("No portal token")
	}
	claims, err := auth.PeekStudent(token)
	if err != nil {
		log.Fatal().Err(err).Msg("Portal token is not a student token")
	}

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var stash examsession.SlateStash
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	rdb, err := slatestore.Connect(pingCtx, cfg.RedisURL, log)
	pingCancel()
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, answers of a failed timed-out submission will not be kept")
	} else {
		defer rdb.Close()
		stash = slatestore.New(rdb, cfg.StashTTL, log)
	}

	// ─── Wire Session ──────────────────────────────────────────────────
	catalog := portal.NewClient(cfg.PortalURL, token, cfg.RequestTimeout, log)
	submitter := portal.NewSubmitter(cfg, token, log)

	runner := cli.New(os.Stdin, os.Stdout, log)
	ctrl := examsession.New(examID, catalog, submitter, examsession.Options{
		Stash:     stash,
		StudentID: claims.StudentID(),
		Logger:    &log,
		OnChange:  runner.OnChange,
		OnError:   runner.OnError,
	})

	err = runner.Run(ctx, ctrl)
	// A timed-out submission may still be in flight after Run closes the session.
	ctrl.Wait()
	return exitCode(os.Stderr, err, ctrl.Session(), ctrl.Stashed())
}

// exitCode maps the end of an attempt to the process exit code. stashed must
// reflect a slate actually held by the stash, not merely a configured one.
func exitCode(w io.Writer, err error, s examsession.Session, stashed bool) int {
	var loadErr *examsession.LoadError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &loadErr):
		return 1
	}

	if s.Expired && s.Phase != examsession.PhaseSubmitted {
		if stashed {
			fmt.Fprintln(w, "Your answers were saved. Run resubmit-exam to hand them in.")
		} else {
			fmt.Fprintln(w, "Your answers were not confirmed as handed in and could not be saved.")
		}
	} else if errors.Is(err, cli.ErrAbandoned) || errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, "Exam not submitted.")
	}
	return 2
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
