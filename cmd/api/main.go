package main

import (
	"context"
	"log"
	"net/http"

	"github.com/mhalloway/circops/internal/api"
	"github.com/mhalloway/circops/internal/config"
	"github.com/mhalloway/circops/internal/domain"
	"github.com/mhalloway/circops/internal/ledger"
	"github.com/mhalloway/circops/internal/registry"
	"github.com/mhalloway/circops/internal/service"
	"github.com/mhalloway/circops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	pg, err := store.NewPostgresStore(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Unable to prepare schema: %v", err)
	}

	// Initialize Layers
	lending := service.NewLendingService(
		pg,
		registry.New(),
		ledger.New(cfg.HorizonDays, cfg.MaxExtensionDays),
		domain.SystemClock{},
	)
	handler := api.NewHandler(lending, domain.SystemClock{}, cfg.DueSoonDays, cfg.DailyFineRate)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, handler.Router()); err != nil {
		log.Fatal(err)
	}
}
