// Package main is the entry point for Directorio Go.
// It initializes all systems and starts the coupon API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PancyStudios/DirectorioGo/internal/events"
	"github.com/PancyStudios/DirectorioGo/internal/handlers"
	"github.com/PancyStudios/DirectorioGo/pkg/config"
	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/database"
	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"github.com/PancyStudios/DirectorioGo/pkg/mqtt"
	"github.com/PancyStudios/DirectorioGo/pkg/web"
)

const blocklistRefreshInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	logger.System(fmt.Sprintf("Iniciando Directorio Go %s (%s)...", config.Version, config.BuildTime), "Main")
	logger.Info(fmt.Sprintf("Directorio de trabajo: %s", getCurrentDir()), "Main")

	// Initialize error handler
	var webServer *web.Server
	errors.Init(cfg.ErrorWebhook, func() {
		if webServer != nil {
			_ = webServer.Shutdown(5 * time.Second)
		}
	})

	// Initialize the coupon store
	var (
		store     coupons.Store
		blockedDM *database.DataManager[models.BlockedUser]
	)
	if cfg.UsesMemoryStore() {
		logger.Warn("Usando almacenamiento en memoria. Los datos se pierden al reiniciar.", "Main")
		opts := coupons.DefaultMemoryStoreOptions()
		opts.MaxAttempts = cfg.RedeemMaxAttempts
		store = coupons.NewMemoryStore(opts)
	} else {
		db, err := database.Init(cfg.MongoDBURL, cfg.DBName)
		if err != nil {
			logger.Error(fmt.Sprintf("Error connecting to database: %v", err), "Main")
			// Continue without database- it will attempt to reconnect
		}
		defer func() {
			if err := db.Disconnect(); err != nil {
				logger.Warn(fmt.Sprintf("Error al desconectar la base de datos: %v", err), "Main")
			}
		}()

		// Indexes are synced on every connection, so a database that
		// comes up after startup still gets the unique redemption index
		db.OnConnect(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := db.EnsureIndexes(ctx); err != nil {
				logger.Error(fmt.Sprintf("Error sincronizando índices: %v", err), "Main")
			}
		})

		// Initialize global DataManagers
		database.InitGlobalDataManagers(db)
		database.GlobalCouponDM.PrimeCache()
		database.GlobalUsedCouponDM.PrimeCache()
		database.GlobalBlockedUserDM.PrimeCache()
		blockedDM = database.GlobalBlockedUserDM

		store = database.NewCouponStore(db, cfg.RedeemMaxAttempts)
	}

	// Initialize blocklist and start auto-refresh
	blocklist := database.NewBlocklist(blockedDM)
	if err := blocklist.Refresh(); err != nil {
		logger.Warn(fmt.Sprintf("Error inicializando la lista de bloqueos: %v", err), "Main")
	}
	blocklist.StartAutoRefresh(blocklistRefreshInterval)
	defer blocklist.StopAutoRefresh()

	// Initialize MQTT
	mqttClientID := "directorio"
	if !cfg.IsProd() {
		mqttClientID = "directorio_canary"
	}

	mqttClient := mqtt.Init(
		cfg.MQTTHost,
		cfg.MQTTPort,
		cfg.MQTTUser,
		cfg.MQTTPassword,
		mqttClientID,
	)
	defer mqttClient.Destroy()

	svc := coupons.NewService(store, coupons.WithPublisher(mqttClient))

	// Register MQTT request handlers
	events.RegisterAll(mqttClient, svc, blocklist, []byte(cfg.JWTSecret))

	// Initialize web server
	webServer, err = web.Init(web.Options{
		WebhookURL:   cfg.LogsWebServerHook,
		AllowedHosts: cfg.AllowedHosts,
		RateLimit:    web.DefaultRateLimit(),
	})
	if err != nil {
		logger.Critical(fmt.Sprintf("Error creating web server: %v", err), "Main")
		os.Exit(1)
	}
	web.SetupAPIRoutes(webServer)
	handlers.RegisterAll(webServer, handlers.Deps{
		Coupons:   svc,
		Blocklist: blocklist,
		JWTSecret: []byte(cfg.JWTSecret),
	})
	webServer.StartAsync(cfg.Port)

	logger.Success("Directorio Go iniciado correctamente!", "Main")

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.System("Apagando Directorio Go...", "Main")
	if err := webServer.Shutdown(10 * time.Second); err != nil {
		logger.Warn(fmt.Sprintf("Error al detener el servidor web: %v", err), "Main")
	}
	errors.Get().Stop()
}

// getCurrentDir returns the current working directory
func getCurrentDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return dir
}
