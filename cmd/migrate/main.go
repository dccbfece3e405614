package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"fishcam/internal/config"
	"fishcam/internal/repository/sqlite"
)

func main() {
	cfg := config.Load()
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	command := flag.String("cmd", "up", "Migration command: up, down or version")
	flag.Parse()

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	switch *command {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
	case "version":
	default:
		log.Fatalf("Unknown command %q", *command)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("✅ %s: schema version %d (dirty: %v)\n", *dbPath, version, dirty)
}
