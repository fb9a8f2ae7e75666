package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/mmstats/mmstats/internal/config"
	"github.com/mmstats/mmstats/internal/resultsapi"
	"github.com/mmstats/mmstats/internal/server"
	"github.com/mmstats/mmstats/internal/snapshot"
	"github.com/mmstats/mmstats/internal/utils/logger"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	trace := flag.Bool("trace", false, "enable trace logging")
	flag.Parse()

	logger.Init(logger.Flags{Debug: *debug, Trace: *trace})
	log.Info().Msg("Starting mmstats server...")

	// cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	client, err := resultsapi.NewClient(&cfg.Feed)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init results feed client")
	}

	store, err := snapshot.NewStore(&cfg.Snapshot)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init snapshot store")
	}

	rounds := snapshot.Source{
		Store: store,
		Fetch: resultsapi.RoundFetcher(client),
	}

	srv, err := server.New(cfg, rounds)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init server")
	}

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}
