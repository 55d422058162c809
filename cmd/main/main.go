package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"price-relay/src/config"
	datasource "price-relay/src/data_source"
	"price-relay/src/data_source/polljson"
	"price-relay/src/data_source/pollxml"
	"price-relay/src/data_source/pushsocket"
	"price-relay/src/disruption"
	"price-relay/src/interfaces"
	"price-relay/src/logger"
	"price-relay/src/mapping"
	"price-relay/src/network"
	"price-relay/src/policy"
	"price-relay/src/pricestore"
	"price-relay/src/pricing"
	"price-relay/src/scheduler"
	"price-relay/src/server"
	"price-relay/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// Storage
	db, err := storage.New(cfg.MConfig, appLogger.Named("Storage"))
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// Fan-out hub and anomaly detector
	hub := server.NewHub(appLogger.Named("Hub"))
	detector := disruption.NewDetector(hub, appLogger.Named("Disruption"))

	// Price store, warmed from the persisted state so change percentages
	// survive a restart
	store := pricestore.NewStore(db, appLogger.Named("PriceStore"))
	if err := store.WarmUp(); err != nil {
		appLogger.Warning("Price warm-up failed, starting cold: %v", err)
	}

	// Mapping registry and significance policy
	registry := mapping.NewRegistry(db, appLogger.Named("Mapping"))
	significance := policy.NewSignificance(cfg.Policy)

	// Debounced per-user derived pricing
	dispatcher := pricing.NewDispatcher(db, store, hub, appLogger.Named("Pricing"),
		time.Duration(cfg.Pricing.DebounceMs)*time.Millisecond)

	// Tick pipeline shared by all source adapters
	pipeline := datasource.NewPipeline(registry, store, significance, hub, dispatcher,
		detector, appLogger.Named("Pipeline"))

	// Source adapters
	netManager := network.NewManager(&cfg.Network, appLogger.Named("Network"))

	var adapters []interfaces.ISourceAdapter
	for _, pc := range cfg.Providers {
		if !pc.Active {
			appLogger.Info("Provider %s is disabled, skipping", pc.Name)
			continue
		}
		switch pc.Kind {
		case "push-socket":
			adapters = append(adapters,
				pushsocket.NewPushSocketSource(pc, db, registry, pipeline, detector, appLogger))
		case "poll-json":
			adapters = append(adapters,
				polljson.NewPollJSONSource(pc, db, registry, pipeline, detector, netManager,
					cfg.Network.ConcurrentRequests, appLogger))
		case "poll-xml":
			adapters = append(adapters,
				pollxml.NewPollXMLSource(pc, db, registry, pipeline, detector, netManager, appLogger))
		}
	}
	sourceManager := datasource.NewManager(adapters, appLogger.Named("Sources"))

	// Schedulers
	archiver := scheduler.NewArchiveScheduler(db, store, hub, appLogger.Named("Archive"), cfg.Archive.GridMinutes)
	retention := scheduler.NewRetentionScheduler(db, hub, appLogger.Named("Retention"), cfg.Archive)

	if err := archiver.Start(); err != nil {
		appLogger.Critical("Failed to start archive scheduler: %v", err)
	}
	if err := retention.Start(); err != nil {
		appLogger.Critical("Failed to start retention scheduler: %v", err)
	}

	// HTTP + websocket server
	srv := server.NewServer(cfg.MConfig, appLogger.Named("Server"), hub, db, store, detector)
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// Start sources
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	if err := sourceManager.Start(ctx, wg); err != nil {
		appLogger.Critical("Failed to start data sources: %v", err)
	}

	// Background disruption sweep catches feeds that stall silently
	go detector.Watch(ctx, 10*time.Second)

	appLogger.Info("%s is up: %d sources, listening on %s:%d", cfg.Name, len(adapters), cfg.Host, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()
	sourceManager.Stop()
	wg.Wait()
	dispatcher.Stop()
	archiver.Stop()
	retention.Stop()
}
