package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application
type Config struct {
	// WhatsApp configuration
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	// Database configuration
	Database DatabaseConfig `json:"database"`

	// Game configuration
	Game GameConfig `json:"game"`

	// Event bus configuration
	EventBus EventBusConfig `json:"event_bus"`

	// Bootstrap configuration
	Bootstrap BootstrapConfig `json:"bootstrap"`

	// Server configuration
	Server ServerConfig `json:"server"`
}

// WhatsAppConfig holds WhatsApp specific configuration
type WhatsAppConfig struct {
	// Enables the chat front-end
	Enabled bool `json:"enabled" env:"MT_WHATSAPP_ENABLED"`

	// Path to store WhatsApp session data
	StoreDir string `json:"store_dir" env:"MT_WHATSAPP_STORE_DIR"`

	// Client device name
	ClientName string `json:"client_name" env:"MT_WHATSAPP_CLIENT_NAME"`

	// Seconds to wait for a pairing QR code
	PairingTimeout int `json:"pairing_timeout" env:"MT_WHATSAPP_PAIRING_TIMEOUT"`
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	// Database driver (sqlite3)
	Driver string `json:"driver" env:"MT_DATABASE_DRIVER"`

	// Database connection string for save slots
	DSN string `json:"dsn" env:"MT_DATABASE_DSN"`

	// JSON state file used when no database is configured
	StateFile string `json:"state_file" env:"MT_DATABASE_STATE_FILE"`
}

// GameConfig holds game specific configuration
type GameConfig struct {
	// Gold a new player starts with
	StartingGold int `json:"starting_gold" env:"MT_GAME_STARTING_GOLD"`

	// Where new players start
	StartingLocation string `json:"starting_location" env:"MT_GAME_STARTING_LOCATION"`

	// Directory holding catalog.yaml; empty uses the built-in catalog
	DataDir string `json:"data_dir" env:"MT_GAME_DATA_DIR"`

	// Real seconds per simulated day; 0 disables the scheduler
	DayInterval int `json:"day_interval" env:"MT_GAME_DAY_INTERVAL"`

	// Condition below which the autopilot steward repairs a property
	AutoRepairThreshold int `json:"auto_repair_threshold" env:"MT_GAME_AUTO_REPAIR_THRESHOLD"`

	// Save the game after every simulated day
	AutoSave bool `json:"auto_save" env:"MT_GAME_AUTO_SAVE"`
}

// EventBusConfig holds event bus specific configuration
type EventBusConfig struct {
	// Number of events kept in history
	MaxHistory int `json:"max_history" env:"MT_EVENTBUS_MAX_HISTORY"`

	// Number of handler failures kept
	MaxFailed int `json:"max_failed" env:"MT_EVENTBUS_MAX_FAILED"`

	// Log every emitted event
	Verbose bool `json:"verbose" env:"MT_EVENTBUS_VERBOSE"`
}

// BootstrapConfig holds module initialization settings
type BootstrapConfig struct {
	// Per-module init timeout in seconds
	ModuleTimeout int `json:"module_timeout" env:"MT_BOOTSTRAP_MODULE_TIMEOUT"`
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	// Server port
	Port string `json:"port" env:"MT_SERVER_PORT"`

	// Log level (debug, info, warn, error)
	LogLevel string `json:"log_level" env:"MT_SERVER_LOG_LEVEL"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		WhatsApp: WhatsAppConfig{
			Enabled:        false,
			StoreDir:       "./whatsapp-store",
			ClientName:     "MEDIEVAL TRADER",
			PairingTimeout: 60,
		},
		Database: DatabaseConfig{
			Driver:    "sqlite3",
			DSN:       "",
			StateFile: "./data/game_state.json",
		},
		Game: GameConfig{
			StartingGold:        500,
			StartingLocation:    "oakvale",
			DataDir:             "",
			DayInterval:         60,
			AutoRepairThreshold: 50,
			AutoSave:            true,
		},
		EventBus: EventBusConfig{
			MaxHistory: 100,
			MaxFailed:  50,
			Verbose:    false,
		},
		Bootstrap: BootstrapConfig{
			ModuleTimeout: 10,
		},
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
	}
}

// LoadConfig loads configuration from a file, creating it with defaults when
// absent, then applies MT_* environment overrides.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return config, err
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := SaveConfig(config, path); err != nil {
			return config, err
		}
		return config, ApplyEnv(&config)
	}

	// Read config file
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, err
	}

	return config, ApplyEnv(&config)
}

// ApplyEnv overrides config fields from MT_* environment variables. Unset
// variables leave the current values alone.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// SaveConfig saves configuration to a file
func SaveConfig(config Config, path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Create or truncate file
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write config to file
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return err
	}

	return nil
}
