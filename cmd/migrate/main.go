package main

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/collectible-requests/internal/config"
	"github.com/iliyamo/collectible-requests/internal/database"
)

// migrate applies the embedded schema and stored procedures, then exits.
func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Print("migrate: schema up to date")
}
