package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-proctor/internal/catalog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
)

func main() {
	noCache := flag.Bool("no-cache", false, "Skip invalidating the Redis quiz cache")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: seed-quiz [flags] <quiz.yaml>...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := catalog.NewRepository(pool)

	var cache *catalog.Cache
	if !*noCache {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, stale quiz payloads may be served until they expire")
		} else {
			defer rdb.Close()
			cache = catalog.NewCache(rdb, cfg.CatalogCacheTTL)
		}
	}

	failed := 0
	for _, path := range flag.Args() {
		q, err := catalog.LoadYAML(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Invalid quiz file")
			failed++
			continue
		}
		if err := repo.Upsert(ctx, q); err != nil {
			log.Error().Err(err).Str("quiz_id", q.QuizID).Msg("Failed to store quiz")
			failed++
			continue
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, q.QuizID); err != nil {
				log.Warn().Err(err).Str("quiz_id", q.QuizID).Msg("Failed to invalidate cached payload")
			}
		}
		log.Info().
			Str("quiz_id", q.QuizID).
			Int("questions", q.TotalQuestions).
			Float64("max_marks", q.MaxMarks).
			Msg("Quiz seeded")
	}

	if failed > 0 {
		log.Fatal().Int("failed", failed).Msg("Seeding finished with errors")
	}
}
