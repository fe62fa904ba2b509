package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-exam-client/internal/auth"
	"github.com/stemsi/exstem-exam-client/internal/cli"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/logger"
	"github.com/stemsi/exstem-exam-client/internal/portal"
	"github.com/stemsi/exstem-exam-client/internal/service"
	"github.com/stemsi/exstem-exam-client/internal/slatestore"
)

func main() {
	var examID string
	var listOnly bool
	flag.StringVar(&examID, "exam", "", "Resubmit only this exam (default: every stashed exam)")
	flag.BoolVar(&listOnly, "list", false, "List stashed exams without submitting")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	token, err := cli.ResolveToken(cfg.PortalToken, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("No portal token")
	}
	claims, err := auth.PeekStudent(token)
	if err != nil {
		log.Fatal().Err(err).Msg("Portal token is not a student token")
	}
	studentID := claims.StudentID()

	rdb, err := slatestore.Connect(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	pending := service.NewPendingService(
		slatestore.New(rdb, cfg.StashTTL, log),
		portal.NewSubmitter(cfg, token, log),
		log,
	)

	if listOnly {
		slates, err := pending.List(ctx, studentID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list stashed answers")
		}
		if len(slates) == 0 {
			fmt.Println("No stashed answers.")
			return
		}
		for _, p := range slates {
			fmt.Printf("%s  %d answers  stashed %s\n", p.ExamID, len(p.Answers), p.StashedAt.Local().Format(time.DateTime))
		}
		return
	}

	if examID != "" {
		res, err := pending.Resubmit(ctx, examID, studentID)
		if err != nil {
			fmt.Printf("%s: %v\n", examID, err)
			os.Exit(1)
		}
		fmt.Printf("%s: submitted, score %d / %d\n", examID, res.Score, res.MaxScore)
		return
	}

	results, err := pending.ResubmitAll(ctx, studentID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list stashed answers")
	}
	if len(results) == 0 {
		fmt.Println("No stashed answers.")
		return
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("%s: %v (answers kept)\n", r.ExamID, r.Err)
			continue
		}
		fmt.Printf("%s: submitted, score %d / %d\n", r.ExamID, r.Result.Score, r.Result.MaxScore)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
