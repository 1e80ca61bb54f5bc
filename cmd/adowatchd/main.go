package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adowatch/internal/config"
	"adowatch/internal/daemon"
	"adowatch/internal/devops"
	"adowatch/internal/event"
	"adowatch/internal/logging"
	"adowatch/internal/monitor"
	"adowatch/internal/snapshot"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var configPath string
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, resolvedPath, exists, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !exists {
		log.Fatalf("config file not found at %s (run `adowatch config init`)", resolvedPath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	client, err := devops.New(cfg.DevOps.Organization, cfg.DevOps.PAT,
		time.Duration(cfg.DevOps.RequestTimeout)*time.Second)
	if err != nil {
		log.Fatalf("init client: %v", err)
	}

	store, err := snapshot.Open(cfg, resolvedPath)
	if err != nil {
		log.Fatalf("open snapshot store: %v", err)
	}
	defer store.Close()

	events, err := event.NewRegistry().BuildAll(cfg.Events, event.Deps{
		Source: client,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("build events: %v", err)
	}

	mgr, err := monitor.New(cfg, store, events, logger)
	if err != nil {
		log.Fatalf("init monitor: %v", err)
	}
	d, err := daemon.New(cfg, store, mgr, logger)
	if err != nil {
		log.Fatalf("init daemon: %v", err)
	}

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("adowatchd shut down")
}
