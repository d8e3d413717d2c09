package main

import (
	"context"
	"log"
	"os"

	"fitness-gateway-api/internal/apiclient"
	"fitness-gateway-api/internal/cache"
	"fitness-gateway-api/internal/config"
	"fitness-gateway-api/internal/database"
	"fitness-gateway-api/internal/handlers"
	"fitness-gateway-api/internal/offline"
	"fitness-gateway-api/internal/realtime"
	"fitness-gateway-api/internal/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Init database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}

	// Request cache: named stores with durable snapshots, plus the
	// in-flight registry shared by the API client.
	stores := cache.NewManager(cache.DefaultStoreConfigs(), database.NewSnapshots(db))
	stores.Start(cfg.SweepInterval)
	defer stores.Stop()

	api := apiclient.New(apiclient.Config{
		BaseURL:         cfg.Upstream,
		Tokens:          apiclient.StaticToken(os.Getenv("UPSTREAM_TOKEN")),
		DefaultTimeout:  cfg.RequestTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
	}, stores, cache.NewFlight())

	// Offline layer: versioned generations, mutation queue, event hub.
	hub := realtime.NewHub()
	gens := offline.NewGenerations(db)
	queue := offline.NewQueue(db)
	controller := offline.NewController(offline.DefaultConfig(cfg.Upstream, cfg.CacheVersion), gens, queue, hub)
	replayer := offline.NewReplayer(queue, cfg.Upstream, hub)

	// Standing sync trigger: queued mutations are retried on a fixed
	// interval for as long as the gateway runs.
	go replayer.RunPeriodic(context.Background(), cfg.SyncInterval)

	// Install precaches the static shell; activation prunes generations
	// from previous versions and starts serving through the cache.
	if err := controller.Run(context.Background()); err != nil {
		log.Fatal("Failed to bring up offline cache controller: ", err)
	}

	diagnostics := handlers.NewDiagnostics(api, controller, gens, replayer)
	ginRoutes := routes.Setup(routes.Deps{
		Diagnostics: diagnostics,
		Controller:  controller,
		Hub:         hub,
	})

	log.Printf("Gateway starting on %s (upstream %s, cache v%s)", cfg.ListenAddr, cfg.Upstream, cfg.CacheVersion)
	log.Println("Endpoints:")
	log.Println("  GET    /health")
	log.Println("  GET    /internal/events")
	log.Println("  GET    /internal/cache/stats")
	log.Println("  POST   /internal/cache/invalidate")
	log.Println("  POST   /internal/cache/clear")
	log.Println("  POST   /internal/sync/flush")
	log.Println("  *      /* (intercepted)")

	if err := ginRoutes.Run(cfg.ListenAddr); err != nil {
		log.Fatal("Failed to start gateway: ", err)
	}
}
