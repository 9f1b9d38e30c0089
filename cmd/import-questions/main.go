package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stemsi/testlink-backend/internal/config"
	"github.com/stemsi/testlink-backend/internal/database"
	"github.com/stemsi/testlink-backend/internal/logger"
	"github.com/stemsi/testlink-backend/internal/repository"
	"github.com/stemsi/testlink-backend/internal/service"
)

func main() {
	var (
		testID string
		file   string
	)
	flag.StringVar(&testID, "test", "", "ID of the test to import into")
	flag.StringVar(&file, "file", "", "Question file (.csv, .txt or .xlsx)")
	flag.Parse()

	if testID == "" || file == "" {
		fmt.Fprintln(os.Stderr, "usage: import-questions -test <uuid> -file <path>")
		os.Exit(2)
	}

	id, err := uuid.Parse(testID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid test id %q\n", testID)
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	// The paper cache is invalidated after an import.
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	testService := service.NewTestService(testRepo, questionRepo, attemptRepo, repository.NewPaperCache(rdb, cfg.PaperCacheTTL), log)
	questionService := service.NewQuestionService(testRepo, questionRepo, testService, cfg.MaxUploadBytes, log)

	// ─── Read File ─────────────────────────────────────────────────────
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read question file")
	}

	result, err := questionService.Import(ctx, id, filepath.Base(file), data)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			for field, msg := range verr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
			os.Exit(1)
		case errors.Is(err, service.ErrNotFound),
			errors.Is(err, service.ErrNoValidQuestions),
			errors.Is(err, service.ErrUnreadableFile),
			errors.Is(err, service.ErrFileTooLarge):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d question(s) into test %s\n", result.Count, id)
}
