// Package main runs the word bingo server: the game coordinator behind a
// WebSocket acceptor.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/wordbingo/internal/config"
	"github.com/cory-johannsen/wordbingo/internal/frontend/ws"
	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
	"github.com/cory-johannsen/wordbingo/internal/gameserver"
	"github.com/cory-johannsen/wordbingo/internal/observability"
	"github.com/cory-johannsen/wordbingo/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seedPath := flag.String("seed-words", "", "path to a seed words YAML file (overrides game.seed_words)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Logging, "wordbingo")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting word bingo server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("draw_interval", cfg.Game.DrawInterval),
	)

	coord := gameserver.New(gameserver.Options{
		DrawInterval: cfg.Game.DrawInterval,
		WinPause:     cfg.Game.WinPause,
		ExhaustPause: cfg.Game.ExhaustPause,
	}, observability.Component(logger, "coordinator"))

	seedFile := cfg.Game.SeedWords
	if *seedPath != "" {
		seedFile = *seedPath
	}
	var seed map[bingo.Language][]string
	if seedFile != "" {
		seed, err = bingo.LoadSeedWordsFromFile(seedFile)
		if err != nil {
			logger.Fatal("loading seed words", zap.String("path", seedFile), zap.Error(err))
		}
	}

	acceptor := ws.NewAcceptor(cfg.Server, cfg.WebSocket, coord, observability.Component(logger, "ws"))

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	lifecycle.Add("coordinator", &server.FuncService{
		StartFn: coord.Run,
	})

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			if len(seed) > 0 {
				if err := coord.SeedWords(ctx, seed); err != nil {
					return err
				}
			}
			return acceptor.ListenAndServe()
		},
		StopFn: acceptor.Stop,
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
