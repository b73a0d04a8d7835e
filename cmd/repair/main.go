package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"

	"github.com/circlehq/circle-api/internal/config"
	"github.com/circlehq/circle-api/internal/domain/friendship"
	"github.com/circlehq/circle-api/internal/pkg/database"
	"github.com/circlehq/circle-api/internal/pkg/logger"
)

func main() {
	fix := flag.Bool("fix", false, "repair the violations found instead of only reporting them")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	store := friendship.NewStore(db)
	engine := friendship.NewService(store, nil, nil)
	scanner := friendship.NewScanner(db, engine)

	ctx := context.Background()

	findings, err := scanner.Scan(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Audit scan failed")
	}

	repairable := 0
	for _, f := range findings {
		if f.Repairable() {
			repairable++
		}
	}
	log.Info().
		Int("findings", len(findings)).
		Int("repairable", repairable).
		Msg("Audit scan complete")

	if !*fix {
		if repairable > 0 {
			log.Info().Msg("Run with -fix to repair")
		}
		return
	}

	fixed, err := scanner.Fix(ctx, findings)
	if err != nil {
		log.Fatal().Err(err).Int("fixed", fixed).Msg("Repair aborted")
	}
	log.Info().Int("fixed", fixed).Msg("Repair complete")
}
