package game

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/user/medieval-trader/internal/types"
)

// DefaultSlot is the save slot used when none is named.
const DefaultSlot = "default"

var (
	ErrSlotNotFound = errors.New("save slot not found")
	ErrInvalidSlot  = errors.New("invalid save slot name")

	slotPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)
)

// StateStorage persists game state snapshots in named slots
type StateStorage interface {
	SaveGameState(slot string, state *types.GameState) error
	LoadGameState(slot string) (*types.GameState, error)
	ListSlots() ([]types.SlotInfo, error)
}

func normalizeSlot(slot string) (string, error) {
	if slot == "" {
		return DefaultSlot, nil
	}
	if !slotPattern.MatchString(slot) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return slot, nil
}

func newGameState() *types.GameState {
	return &types.GameState{
		Day:     1,
		Players: make(map[string]*types.Player),
	}
}

// fillGameState makes sure a decoded state has every map initialized
func fillGameState(state *types.GameState) {
	if state.Day < 1 {
		state.Day = 1
	}
	if state.Players == nil {
		state.Players = make(map[string]*types.Player)
	}
	for _, p := range state.Players {
		if p.Inventory == nil {
			p.Inventory = make(map[string]int)
		}
		for _, prop := range p.Properties {
			if prop.Storage == nil {
				prop.Storage = make(map[string]int)
			}
		}
	}
}

// GameStateStorage keeps game state in JSON files
type GameStateStorage struct {
	savePath  string
	stateLock sync.RWMutex
}

// NewGameStateStorage creates a new game state storage. The default slot is
// written to savePath; named slots live next to it.
func NewGameStateStorage(savePath string) *GameStateStorage {
	// Create data directory if it doesn't exist
	dir := filepath.Dir(savePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		// If we can't create the directory, we'll just use the default path
		savePath = "./data/game_state.json"
	}

	return &GameStateStorage{
		savePath: savePath,
	}
}

func (gss *GameStateStorage) slotPath(slot string) string {
	if slot == DefaultSlot {
		return gss.savePath
	}
	return filepath.Join(filepath.Dir(gss.savePath), "save_"+slot+".json")
}

// SaveGameState saves the game state to disk
func (gss *GameStateStorage) SaveGameState(slot string, state *types.GameState) error {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return err
	}

	gss.stateLock.Lock()
	defer gss.stateLock.Unlock()

	path := gss.slotPath(slot)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}

	// Write to a temp file, then rename over the old save
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write game state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write game state: %w", err)
	}

	return nil
}

// LoadGameState loads the game state from disk
func (gss *GameStateStorage) LoadGameState(slot string) (*types.GameState, error) {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return nil, err
	}

	gss.stateLock.RLock()
	defer gss.stateLock.RUnlock()

	data, err := os.ReadFile(gss.slotPath(slot))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read game state file: %w", err)
	}

	var state types.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse game state: %w", err)
	}
	fillGameState(&state)

	return &state, nil
}

// ListSlots describes every save on disk
func (gss *GameStateStorage) ListSlots() ([]types.SlotInfo, error) {
	gss.stateLock.RLock()
	defer gss.stateLock.RUnlock()

	paths := map[string]string{}
	if _, err := os.Stat(gss.savePath); err == nil {
		paths[DefaultSlot] = gss.savePath
	}
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(gss.savePath), "save_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list save files: %w", err)
	}
	for _, m := range matches {
		slot := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "save_"), ".json")
		paths[slot] = m
	}

	slots := make([]types.SlotInfo, 0, len(paths))
	for slot, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var state types.GameState
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		slots = append(slots, types.SlotInfo{
			Slot:    slot,
			Day:     state.Day,
			Players: len(state.Players),
			SavedAt: state.SavedAt,
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Slot < slots[j].Slot })

	return slots, nil
}

const saveSlotsSchema = `CREATE TABLE IF NOT EXISTS save_slots (
	slot     TEXT PRIMARY KEY,
	day      INTEGER NOT NULL,
	players  INTEGER NOT NULL,
	state    TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL
)`

// SQLiteStateStorage keeps save slots in a SQLite database
type SQLiteStateStorage struct {
	db *sql.DB
}

// DefaultDriver is the database/sql driver registered by go-sqlite3
const DefaultDriver = "sqlite3"

// NewSQLiteStateStorage opens (or creates) the save database through the
// named database/sql driver. An empty driver selects DefaultDriver.
func NewSQLiteStateStorage(driver, dsn string) (*SQLiteStateStorage, error) {
	if driver == "" {
		driver = DefaultDriver
	}

	if dir := filepath.Dir(strings.TrimPrefix(strings.SplitN(dsn, "?", 2)[0], "file:")); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open save database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(saveSlotsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create save table: %w", err)
	}

	return &SQLiteStateStorage{db: db}, nil
}

// SaveGameState writes a slot, replacing any previous save in it
func (s *SQLiteStateStorage) SaveGameState(slot string, state *types.GameState) error {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}

	savedAt := state.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.Exec(`INSERT INTO save_slots (slot, day, players, state, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			day = excluded.day,
			players = excluded.players,
			state = excluded.state,
			saved_at = excluded.saved_at`,
		slot, state.Day, len(state.Players), string(data), savedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write game state: %w", err)
	}

	return nil
}

// LoadGameState reads a slot
func (s *SQLiteStateStorage) LoadGameState(slot string) (*types.GameState, error) {
	slot, err := normalizeSlot(slot)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRow(`SELECT state FROM save_slots WHERE slot = ?`, slot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read game state: %w", err)
	}

	var state types.GameState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to parse game state: %w", err)
	}
	fillGameState(&state)

	return &state, nil
}

// ListSlots describes every saved slot
func (s *SQLiteStateStorage) ListSlots() ([]types.SlotInfo, error) {
	rows, err := s.db.Query(`SELECT slot, day, players, saved_at FROM save_slots ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("failed to list save slots: %w", err)
	}
	defer rows.Close()

	var slots []types.SlotInfo
	for rows.Next() {
		var info types.SlotInfo
		if err := rows.Scan(&info.Slot, &info.Day, &info.Players, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to read save slot: %w", err)
		}
		slots = append(slots, info)
	}
	return slots, rows.Err()
}

// Close releases the database
func (s *SQLiteStateStorage) Close() error {
	return s.db.Close()
}
