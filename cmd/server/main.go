package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/api"
	"github.com/user/medieval-trader/internal/bootstrap"
	"github.com/user/medieval-trader/internal/economy"
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/game"
	"github.com/user/medieval-trader/internal/whatsapp"
)

// app holds the services the bootstrap modules bring up
type app struct {
	cfg    config.Config
	logger *zap.Logger
	boot   *bootstrap.Bootstrap
	bus    *eventbus.Bus

	gameManager   *game.GameManager
	sqlStorage    *game.SQLiteStateStorage
	scheduler     *game.Scheduler
	clientManager *whatsapp.ClientManager
	hub           *api.Hub
	server        *http.Server
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.json", "Path to configuration file")
	flag.Parse()

	// Load configuration; defaults come back even on error
	cfg, cfgErr := config.LoadConfig(*configPath)

	// Set up logger
	logger := setupLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	if cfgErr != nil {
		logger.Fatal("Failed to load configuration", zap.Error(cfgErr))
	}

	bus := eventbus.New(eventbus.Options{
		MaxHistory: cfg.EventBus.MaxHistory,
		MaxFailed:  cfg.EventBus.MaxFailed,
		Verbose:    cfg.EventBus.Verbose,
		Logger:     logger,
	})

	a := &app{cfg: cfg, logger: logger, bus: bus}
	a.boot = bootstrap.New(bootstrap.Config{
		Bus:            bus,
		Logger:         logger,
		DefaultTimeout: time.Duration(cfg.Bootstrap.ModuleTimeout) * time.Second,
		FinalSetup:     a.finalSetup,
		Progress: func(module string, percent float64) {
			logger.Debug("Bootstrap progress", zap.String("module", module), zap.Float64("percent", percent))
		},
	})

	if err := a.register(); err != nil {
		logger.Fatal("Failed to register modules", zap.Error(err))
	}

	if err := a.boot.Init(context.Background()); err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	// Wait for shutdown signal
	waitForShutdown(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.shutdown(ctx)
}

func (a *app) register() error {
	modules := []struct {
		name string
		init bootstrap.InitFunc
		opts []bootstrap.Option
	}{
		{"EventBus", a.initEventBus, nil},
		{"Config", a.initConfig, nil},
		{"Catalog", a.initCatalog, []bootstrap.Option{bootstrap.WithDependencies("Config")}},
		{"Storage", a.initStorage, []bootstrap.Option{bootstrap.WithDependencies("Config")}},
		{"GameManager", a.initGameManager, []bootstrap.Option{bootstrap.WithDependencies("EventBus", "Catalog", "Storage")}},
		{"Steward", a.initSteward, []bootstrap.Option{bootstrap.WithDependencies("GameManager")}},
		{"Clock", a.initClock, []bootstrap.Option{bootstrap.WithDependencies("GameManager", "Steward")}},
		{"WhatsApp", a.initWhatsApp, []bootstrap.Option{
			bootstrap.WithDependencies("GameManager"),
			bootstrap.WithSeverity(bootstrap.Optional),
			bootstrap.WithTimeout(30 * time.Second),
		}},
		{"HTTPServer", a.initHTTPServer, []bootstrap.Option{bootstrap.WithDependencies("GameManager", "EventBus", "WhatsApp")}},
	}

	for _, m := range modules {
		if err := a.boot.Register(m.name, m.init, m.opts...); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) initEventBus(ctx context.Context) error {
	a.boot.Provide("EventBus", a.bus)
	a.bus.Subscribe(eventbus.BootstrapComplete, func(evt eventbus.Event) error {
		a.logger.Info("All modules up", zap.Any("status", evt.Data))
		return nil
	})
	return nil
}

func (a *app) initConfig(ctx context.Context) error {
	if a.cfg.Game.StartingGold < 0 {
		return fmt.Errorf("starting gold must not be negative")
	}
	a.boot.Provide("Config", a.cfg)
	return nil
}

func (a *app) initCatalog(ctx context.Context) error {
	catalog, err := game.NewDataLoader(a.cfg.Game.DataDir).LoadCatalog()
	if err != nil {
		return err
	}
	a.boot.Provide("Catalog", catalog)
	a.logger.Info("Loaded catalog",
		zap.Int("locations", len(catalog.Locations)),
		zap.Int("property_types", len(catalog.PropertyTypes)))
	return nil
}

// initStorage picks SQLite when a DSN is configured and the JSON state file
// otherwise
func (a *app) initStorage(ctx context.Context) error {
	if a.cfg.Database.DSN == "" {
		a.boot.Provide("Storage", game.NewGameStateStorage(a.cfg.Database.StateFile))
		a.logger.Info("Using JSON save files", zap.String("path", a.cfg.Database.StateFile))
		return nil
	}

	storage, err := game.NewSQLiteStateStorage(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	a.sqlStorage = storage
	a.boot.Provide("Storage", game.StateStorage(storage))
	a.logger.Info("Using SQLite save slots")
	return nil
}

func (a *app) initGameManager(ctx context.Context) error {
	catalog, ok := bootstrap.Lookup[*economy.Catalog](a.boot, "Catalog")
	if !ok {
		return fmt.Errorf("catalog not available")
	}
	// A failed Storage module leaves the manager on its default JSON file
	storage, _ := bootstrap.Lookup[game.StateStorage](a.boot, "Storage")

	gameManager := game.NewGameManager(a.cfg, game.Dependencies{
		Catalog: catalog,
		Bus:     a.bus,
		Storage: storage,
		Logger:  a.logger,
	})
	if err := gameManager.Resume(); err != nil {
		return err
	}

	a.gameManager = gameManager
	a.boot.Provide("GameManager", gameManager)
	return nil
}

func (a *app) initSteward(ctx context.Context) error {
	a.gameManager.SetSteward(game.NewSteward(a.cfg.Game.AutoRepairThreshold, a.logger))
	return nil
}

func (a *app) initClock(ctx context.Context) error {
	if a.cfg.Game.DayInterval <= 0 {
		a.logger.Info("Scheduler disabled, days advance through the API only")
		return nil
	}
	a.scheduler = game.NewScheduler(a.gameManager, time.Duration(a.cfg.Game.DayInterval)*time.Second)
	a.scheduler.Start()
	a.boot.Provide("Clock", a.scheduler)
	return nil
}

func (a *app) initWhatsApp(ctx context.Context) error {
	if !a.cfg.WhatsApp.Enabled {
		a.logger.Info("WhatsApp front-end disabled")
		return nil
	}

	clientManager := whatsapp.NewClientManager(a.gameManager, a.cfg, a.logger)
	a.gameManager.SetMessageSender(clientManager)
	a.clientManager = clientManager
	a.boot.Provide("WhatsApp", clientManager)
	return nil
}

func (a *app) initHTTPServer(ctx context.Context) error {
	a.hub = api.NewHub(a.logger)
	go a.hub.Run()
	a.hub.Attach(a.bus)

	server := api.NewServer(api.Config{
		Game:   a.gameManager,
		Bus:    a.bus,
		Hub:    a.hub,
		Status: a.boot.Status,
		Logger: a.logger,
	})
	router := server.Router()

	if clientManager, ok := bootstrap.Lookup[*whatsapp.ClientManager](a.boot, "WhatsApp"); ok {
		setupWhatsAppRoutes(router, a.cfg, clientManager, a.logger)
	}

	listener, err := net.Listen("tcp", ":"+a.cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", a.cfg.Server.Port, err)
	}

	a.server = &http.Server{Handler: router}
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.cfg.Server.Port))
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *app) finalSetup(ctx context.Context) error {
	status := a.boot.Status()
	a.logger.Info("Medieval trader ready",
		zap.Int("day", a.gameManager.Day()),
		zap.Int("players", len(a.gameManager.GetAllPlayers())),
		zap.Strings("modules", status.Completed))
	return nil
}

// shutdown stops the clock before saving so no day lands after the save
func (a *app) shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.gameManager != nil {
		if err := a.gameManager.Save(game.DefaultSlot); err != nil {
			a.logger.Error("Failed to save game on shutdown", zap.Error(err))
		}
	}
	if a.clientManager != nil {
		a.clientManager.DisconnectAll()
	}
	if a.sqlStorage != nil {
		if err := a.sqlStorage.Close(); err != nil {
			a.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	a.logger.Info("Shutdown complete")
}

func setupWhatsAppRoutes(router chi.Router, cfg config.Config, clientManager *whatsapp.ClientManager, logger *zap.Logger) {
	qrManager := whatsapp.NewQRCodeManager(clientManager, cfg, logger)
	sessionManager := whatsapp.NewSessionManager(cfg.WhatsApp.StoreDir, logger)

	// QR code generation endpoint; ?format=png returns the image itself
	router.Post("/qr", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PhoneNumber string `json:"phone_number"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		sessionID := uuid.New().String()
		qrCode, err := qrManager.GenerateQRCode(r.Context(), sessionID, req.PhoneNumber)
		if err != nil {
			logger.Error("Failed to generate QR code",
				zap.String("phone_number", req.PhoneNumber),
				zap.Error(err))
			http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
			return
		}

		if err := sessionManager.SaveSession(whatsapp.SessionInfo{
			ID:          sessionID,
			PhoneNumber: req.PhoneNumber,
			CreatedAt:   time.Now(),
		}); err != nil {
			logger.Warn("Failed to record session", zap.Error(err))
		}

		if r.URL.Query().Get("format") == "png" {
			png, err := whatsapp.QRCodePNG(qrCode)
			if err != nil {
				http.Error(w, "Failed to render QR code", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write(png)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"qr_code":    qrCode,
			"session_id": sessionID,
		})
	})

	// Session management endpoints
	router.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := sessionManager.ListSessions()
		if err != nil {
			logger.Error("Failed to list sessions", zap.Error(err))
			http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessions)
	})

	router.Delete("/sessions/{phone_number}/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		phoneNumber := chi.URLParam(r, "phone_number")
		sessionID := chi.URLParam(r, "session_id")

		// Disconnect client if connected
		if err := clientManager.Disconnect(phoneNumber); err != nil {
			logger.Debug("No live client for session", zap.String("phone_number", phoneNumber))
		}

		if err := sessionManager.DeleteSession(phoneNumber, sessionID); err != nil {
			logger.Error("Failed to delete session",
				zap.String("phone_number", phoneNumber),
				zap.String("session_id", sessionID),
				zap.Error(err))
			http.Error(w, "Failed to delete session", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

func setupLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(parsed)
	}
	logger, _ := config.Build()
	return logger
}

func waitForShutdown(logger *zap.Logger) {
	// Set up channel for shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	// Perform cleanup
	logger.Info("Shutting down")
}
