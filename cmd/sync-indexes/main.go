// Package main provides a utility to sync MongoDB indexes.
// It creates the indexes the coupon store relies on and can remove
// indexes that are no longer declared.
//
// Usage:
//   go run cmd/sync-indexes/main.go [options]
//
// Options:
//   -list    List the indexes present on every collection
//   -clean   Remove indexes that are no longer declared
//   -sync    Create every declared index - default behavior
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/config"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
)

func main() {
	// Parse command line flags
	listCmd := flag.Bool("list", false, "List the indexes present on every collection")
	cleanCmd := flag.Bool("clean", false, "Remove indexes that are no longer declared")
	syncCmd := flag.Bool("sync", false, "Create every declared index")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	logger.System("Iniciando utilidad de sincronización de índices...", "SyncIndexes")

	db := database.NewDatabase()
	if err := db.Connect(cfg.MongoDBURL, cfg.DBName); err != nil {
		logger.Critical(fmt.Sprintf("Error connecting to database: %v", err), "SyncIndexes")
		_ = db.Disconnect()
		os.Exit(1)
	}
	defer func() { _ = db.Disconnect() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Execute the requested action
	switch {
	case *listCmd:
		err = listIndexes(ctx, db)
	case *cleanCmd:
		err = cleanIndexes(ctx, db)
	case *syncCmd:
		err = syncIndexes(ctx, db)
	default:
		err = syncIndexes(ctx, db)
	}

	if err != nil {
		logger.Error(fmt.Sprintf("Error: %v", err), "SyncIndexes")
		return
	}
	logger.Success("Operación completada exitosamente", "SyncIndexes")
}

// listIndexes logs the indexes present on every collection
func listIndexes(ctx context.Context, db *database.Database) error {
	logger.Info("📋 Listando índices...", "SyncIndexes")

	indexes, err := db.ListIndexes(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(indexes))
	for name := range indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		logger.Info(fmt.Sprintf("%s (%d)", name, len(indexes[name])), "SyncIndexes")
		for i, idx := range indexes[name] {
			logger.Info(fmt.Sprintf("  %d. %s", i+1, idx), "SyncIndexes")
		}
	}
	return nil
}

// cleanIndexes removes indexes that are no longer declared
func cleanIndexes(ctx context.Context, db *database.Database) error {
	logger.Info("🧹 Eliminando índices obsoletos...", "SyncIndexes")

	dropped, err := db.DropStaleIndexes(ctx)
	if err != nil {
		return err
	}
	if len(dropped) == 0 {
		logger.Info("No hay índices obsoletos", "SyncIndexes")
	}
	return nil
}

// syncIndexes creates every declared index
func syncIndexes(ctx context.Context, db *database.Database) error {
	logger.Info("🔄 Sincronizando índices...", "SyncIndexes")
	return db.EnsureIndexes(ctx)
}
