package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/economy"
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/interfaces"
	"github.com/user/medieval-trader/internal/types"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("player already registered")
	ErrNameRequired   = errors.New("player name is required")
	ErrInvalidStatus  = errors.New("invalid status")
	ErrInvalidDays    = errors.New("days must be positive")
)

// Dependencies are the collaborators a GameManager runs with. Nil fields are
// built from the config.
type Dependencies struct {
	Catalog *economy.Catalog
	Bus     *eventbus.Bus
	Storage StateStorage
	Rand    economy.Random
	Logger  *zap.Logger
}

// session pairs a player's estate with the messages produced since the last
// drain.
type session struct {
	estate *economy.Estate
	outbox []string
}

func (s *session) notify(msg string) {
	s.outbox = append(s.outbox, msg)
}

func (s *session) drain() []string {
	out := s.outbox
	s.outbox = nil
	return out
}

// GameManager handles the game state and operations
type GameManager struct {
	state         *types.GameState
	stateLock     sync.RWMutex
	storage       StateStorage
	config        config.Config
	Logger        *zap.Logger
	catalog       *economy.Catalog
	bus           *eventbus.Bus
	rng           economy.Random
	steward       *Steward
	sessions      map[string]*session
	messageSender interfaces.MessageSender
}

// Ensure GameManager satisfies the interfaces.GameManager interface
var _ interfaces.GameManager = (*GameManager)(nil)

// NewGameManager creates a new game manager with an empty world on day 1
func NewGameManager(cfg config.Config, deps Dependencies) *GameManager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = economy.MustDefaultCatalog()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(eventbus.Options{
			MaxHistory: cfg.EventBus.MaxHistory,
			MaxFailed:  cfg.EventBus.MaxFailed,
			Verbose:    cfg.EventBus.Verbose,
			Logger:     deps.Logger,
		})
	}
	if deps.Storage == nil {
		deps.Storage = NewGameStateStorage(cfg.Database.StateFile)
	}
	if deps.Rand == nil {
		deps.Rand = NewDiceRoller()
	}

	return &GameManager{
		state:    newGameState(),
		storage:  deps.Storage,
		config:   cfg,
		Logger:   deps.Logger,
		catalog:  deps.Catalog,
		bus:      deps.Bus,
		rng:      deps.Rand,
		sessions: make(map[string]*session),
	}
}

// dayClock reads the simulated day without locking; estates only consult it
// while the state lock is held.
type dayClock struct {
	gm *GameManager
}

func (c dayClock) Day() int {
	return c.gm.state.Day
}

// attach builds the estate for a player. Callers hold the state lock.
func (gm *GameManager) attach(player *types.Player) *session {
	s := &session{}
	s.estate = economy.NewEstate(player, economy.Options{
		Catalog:  gm.catalog,
		Bus:      gm.bus,
		Notifier: economy.NotifierFunc(s.notify),
		Clock:    dayClock{gm},
		Rand:     gm.rng,
		Logger:   gm.Logger,
	})
	gm.sessions[player.PhoneNumber] = s
	return s
}

func (gm *GameManager) session(phoneNumber string) (*session, error) {
	s, exists := gm.sessions[phoneNumber]
	if !exists {
		return nil, ErrPlayerNotFound
	}
	return s, nil
}

// saveState persists the current game state to the default slot
func (gm *GameManager) saveState() error {
	if !gm.config.Game.AutoSave {
		return nil
	}
	gm.state.SavedAt = time.Now()
	return gm.storage.SaveGameState(DefaultSlot, gm.state)
}

// Bus returns the event bus the economy publishes on
func (gm *GameManager) Bus() *eventbus.Bus {
	return gm.bus
}

// Catalog returns the tables the economy runs on
func (gm *GameManager) Catalog() *economy.Catalog {
	return gm.catalog
}

// SetSteward enables autopilot care for players on autopilot
func (gm *GameManager) SetSteward(steward *Steward) {
	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()
	gm.steward = steward
}

// SetMessageSender sets the message sender
func (gm *GameManager) SetMessageSender(sender interfaces.MessageSender) {
	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()
	gm.messageSender = sender
}

// Day returns the current simulated day
func (gm *GameManager) Day() int {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()
	return gm.state.Day
}

// RegisterPlayer adds a new player to the game
func (gm *GameManager) RegisterPlayer(phoneNumber, name string) (*types.Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	// Check if player already exists
	if _, exists := gm.state.Players[phoneNumber]; exists {
		return nil, ErrPlayerExists
	}

	location := gm.config.Game.StartingLocation
	if _, ok := gm.catalog.Locations[location]; !ok {
		location = gm.catalog.LocationIDs()[0]
	}

	now := time.Now()
	player := &types.Player{
		ID:           uuid.New().String(),
		PhoneNumber:  phoneNumber,
		Name:         name,
		CreatedAt:    now,
		LastActiveAt: now,
		Status:       types.StatusActive,
		Location:     location,
		Gold:         gm.config.Game.StartingGold,
		Inventory:    make(map[string]int),
		// Routines for days already past are not owed
		LastIncomeDay: gm.state.Day,
		LastWageWeek:  gm.state.Day / economy.DaysPerWeek,
		LastRentWeek:  gm.state.Day / economy.DaysPerWeek,
	}

	gm.state.Players[phoneNumber] = player
	gm.attach(player)
	gm.bus.Publish(eventbus.PlayerCreatedEvent{PlayerID: player.ID, Name: player.Name, Location: player.Location})

	// Save state
	if err := gm.saveState(); err != nil {
		return nil, fmt.Errorf("failed to save game state: %w", err)
	}

	gm.Logger.Info("Player registered",
		zap.String("player_id", player.ID),
		zap.String("name", player.Name),
		zap.String("location", player.Location))

	return player.Clone(), nil
}

// GetPlayer returns a snapshot of the player. The copy is taken under the
// state lock and is safe to read while the day advances.
func (gm *GameManager) GetPlayer(phoneNumber string) (*types.Player, error) {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	player, exists := gm.state.Players[phoneNumber]
	if !exists {
		return nil, ErrPlayerNotFound
	}

	return player.Clone(), nil
}

// GetAllPlayers returns snapshots of all players ordered by phone number
func (gm *GameManager) GetAllPlayers() []*types.Player {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	players := make([]*types.Player, 0, len(gm.state.Players))
	for _, phone := range gm.phones() {
		players = append(players, gm.state.Players[phone].Clone())
	}
	return players
}

func (gm *GameManager) phones() []string {
	phones := make([]string, 0, len(gm.state.Players))
	for phone := range gm.state.Players {
		phones = append(phones, phone)
	}
	sort.Strings(phones)
	return phones
}

// SetPlayerStatus updates a player's status
func (gm *GameManager) SetPlayerStatus(phoneNumber, status string) error {
	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	// Get player
	player, exists := gm.state.Players[phoneNumber]
	if !exists {
		return ErrPlayerNotFound
	}

	// Validate status
	switch status {
	case types.StatusActive, types.StatusSleeping, types.StatusAutopilot:
	default:
		return ErrInvalidStatus
	}

	player.Status = status
	player.LastActiveAt = time.Now()

	// Save state
	if err := gm.saveState(); err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}

	return nil
}

// GetPlayerStatus retrieves a player's current position
func (gm *GameManager) GetPlayerStatus(phoneNumber string) (*types.PlayerStatus, error) {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	s, err := gm.session(phoneNumber)
	if err != nil {
		return nil, err
	}
	e := s.estate
	player := e.Player()

	income := 0
	for _, p := range player.Properties {
		if !p.UnderConstruction {
			income += max(0, e.DailyIncome(p).Net)
		}
	}

	locationName := player.Location
	if loc, ok := gm.catalog.Locations[player.Location]; ok {
		locationName = loc.Name
	}

	return &types.PlayerStatus{
		Name:         player.Name,
		Status:       player.Status,
		Location:     player.Location,
		LocationName: locationName,
		Day:          gm.state.Day,
		Week:         gm.state.Day / economy.DaysPerWeek,
		Gold:         player.Gold,
		Load:         e.Ledger().Load(),
		Capacity:     e.Capacity(),
		Speed:        e.Speed(),
		Properties:   len(player.Properties),
		Employees:    len(player.Employees),
		Transport:    len(player.Transport),
		WeeklyWages:  e.WeeklyWages(),
		DailyIncome:  income,
		Stats:        player.Stats,
	}, nil
}

// LocalMarket lists what the player's current location offers
func (gm *GameManager) LocalMarket(phoneNumber string) (*types.Market, error) {
	gm.stateLock.RLock()
	defer gm.stateLock.RUnlock()

	s, err := gm.session(phoneNumber)
	if err != nil {
		return nil, err
	}
	e := s.estate
	locID := e.Player().Location
	loc, ok := gm.catalog.Locations[locID]
	if !ok {
		return nil, fmt.Errorf("unknown location: %s", locID)
	}

	market := &types.Market{
		Location: locID,
		Name:     loc.Name,
		Roads:    make(map[string]int, len(loc.Connections)),
	}
	for _, pt := range e.Available(locID) {
		market.Properties = append(market.Properties, types.PropertyOffer{
			Type:       pt.ID,
			Name:       pt.Name,
			BuyPrice:   e.Price(pt.ID, locID, economy.AcquireBuy),
			BuildPrice: e.Price(pt.ID, locID, economy.AcquireBuild),
			WeeklyRent: e.WeeklyRent(pt.ID, locID),
			Income:     e.ProjectedIncome(pt.ID),
		})
	}
	if lt, ok := gm.catalog.LocationTypeOf(locID); ok {
		for _, id := range lt.Employees {
			if et, ok := gm.catalog.EmployeeTypes[id]; ok {
				market.Employees = append(market.Employees, types.EmployeeOffer{Type: id, Name: et.Name, Wage: et.BaseWage})
			}
		}
	}
	for _, tt := range e.TransportForSale(locID) {
		market.Transport = append(market.Transport, types.TransportOffer{
			Type:     tt.ID,
			Name:     tt.Name,
			Category: tt.Category,
			Price:    e.TransportPrice(tt.ID, locID),
			Capacity: tt.Capacity,
			Speed:    tt.Speed,
		})
	}
	for dest := range loc.Connections {
		market.Roads[dest] = e.TravelDays(dest)
	}

	return market, nil
}

// perform runs an economic operation against a player's estate and collects
// the messages it produced.
func (gm *GameManager) perform(phoneNumber string, op func(e *economy.Estate) bool) (types.Result, error) {
	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	s, err := gm.session(phoneNumber)
	if err != nil {
		return types.Result{}, err
	}

	// Drop tick messages nobody collected
	s.drain()

	ok := op(s.estate)
	s.estate.Player().LastActiveAt = time.Now()
	result := types.Result{OK: ok, Messages: s.drain()}

	if ok {
		if err := gm.saveState(); err != nil {
			return result, fmt.Errorf("failed to save game state: %w", err)
		}
	}
	return result, nil
}

// Travel moves the player along a road
func (gm *GameManager) Travel(phoneNumber, destination string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Travel(destination)
	})
}

// BuyProperty buys, rents or builds a property at the player's location
func (gm *GameManager) BuyProperty(phoneNumber, propertyType, acquisition string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		_, ok := e.Acquire(propertyType, e.Player().Location, acquisition)
		return ok
	})
}

// SellProperty sells a property for half of what went into it
func (gm *GameManager) SellProperty(phoneNumber, propertyID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Sell(propertyID)
	})
}

// AbandonProperty gives a property up for nothing
func (gm *GameManager) AbandonProperty(phoneNumber, propertyID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Abandon(propertyID)
	})
}

// UpgradeProperty installs an upgrade on a property
func (gm *GameManager) UpgradeProperty(phoneNumber, propertyID, upgradeID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Upgrade(propertyID, upgradeID)
	})
}

// LevelUpProperty raises a property's level
func (gm *GameManager) LevelUpProperty(phoneNumber, propertyID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.UpgradeLevel(propertyID)
	})
}

// RepairProperty restores a property to full condition
func (gm *GameManager) RepairProperty(phoneNumber, propertyID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Repair(propertyID)
	})
}

// StoreItem moves goods from the player's pack into a property
func (gm *GameManager) StoreItem(phoneNumber, propertyID, item string, quantity int) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Store(propertyID, item, quantity)
	})
}

// RetrieveItem moves goods from a property into the player's pack
func (gm *GameManager) RetrieveItem(phoneNumber, propertyID, item string, quantity int) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Retrieve(propertyID, item, quantity)
	})
}

// TransferItem moves goods between two properties
func (gm *GameManager) TransferItem(phoneNumber, fromID, toID, item string, quantity int) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Transfer(fromID, toID, item, quantity)
	})
}

// HireEmployee hires an applicant of the given role at the player's location
func (gm *GameManager) HireEmployee(phoneNumber, employeeType string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		_, ok := e.HireType(employeeType, e.Player().Location)
		return ok
	})
}

// FireEmployee lets an employee go
func (gm *GameManager) FireEmployee(phoneNumber, employeeID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Fire(employeeID)
	})
}

// AssignEmployee puts an employee to work at a property
func (gm *GameManager) AssignEmployee(phoneNumber, employeeID, propertyID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Assign(employeeID, propertyID)
	})
}

// UnassignEmployee releases an employee from their property
func (gm *GameManager) UnassignEmployee(phoneNumber, employeeID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.Unassign(employeeID)
	})
}

// AdjustWage changes an employee's daily wage
func (gm *GameManager) AdjustWage(phoneNumber, employeeID string, wage int) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.AdjustWage(employeeID, wage)
	})
}

// BuyTransport buys transport sold at the player's location
func (gm *GameManager) BuyTransport(phoneNumber, transportType string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		_, ok := e.BuyTransport(transportType, e.Player().Location)
		return ok
	})
}

// SellTransport sells owned transport
func (gm *GameManager) SellTransport(phoneNumber, transportID string) (types.Result, error) {
	return gm.perform(phoneNumber, func(e *economy.Estate) bool {
		return e.SellTransport(transportID)
	})
}

// AdvanceDays moves the simulation forward. Each new day runs every player's
// daily routine once; every seventh day also runs wages and rent. The
// messages those routines produced are returned keyed by phone number and
// sent to players when a message sender is configured.
func (gm *GameManager) AdvanceDays(days int) (map[string][]string, error) {
	if days < 1 {
		return nil, ErrInvalidDays
	}

	gm.stateLock.Lock()
	for i := 0; i < days; i++ {
		gm.advanceDay()
	}

	notices := make(map[string][]string)
	for phone, s := range gm.sessions {
		if msgs := s.drain(); len(msgs) > 0 {
			notices[phone] = msgs
		}
	}
	saveErr := gm.saveState()
	sender := gm.messageSender
	day := gm.state.Day
	gm.stateLock.Unlock()

	gm.Logger.Info("Simulation advanced",
		zap.Int("days", days),
		zap.Int("day", day),
		zap.Int("players_notified", len(notices)))

	gm.dispatch(sender, notices)

	if saveErr != nil {
		return notices, fmt.Errorf("failed to save game state: %w", saveErr)
	}
	return notices, nil
}

// advanceDay runs one day boundary. Callers hold the state lock.
func (gm *GameManager) advanceDay() {
	gm.state.Day++
	day := gm.state.Day
	week := day / economy.DaysPerWeek

	gm.bus.Publish(eventbus.DayChangedEvent{Day: day, Week: week})

	phones := gm.phones()
	for _, phone := range phones {
		s := gm.sessions[phone]
		s.estate.ProcessDaily(day)
		if gm.steward != nil {
			gm.steward.Tend(s.estate)
		}
	}

	if day%economy.DaysPerWeek != 0 {
		return
	}

	gm.bus.Publish(eventbus.WeekChangedEvent{Week: week})
	for _, phone := range phones {
		s := gm.sessions[phone]
		s.estate.ProcessWeekly(week)
		s.estate.ProcessRent(week)
	}
}

func (gm *GameManager) dispatch(sender interfaces.MessageSender, notices map[string][]string) {
	if sender == nil {
		return
	}
	for phone, msgs := range notices {
		if _, err := sender.SendMessage(phone, phone, strings.Join(msgs, "\n")); err != nil {
			gm.Logger.Error("Failed to send notice",
				zap.String("phone_number", phone),
				zap.Error(err))
		}
	}
}

// Save writes the whole game to a slot
func (gm *GameManager) Save(slot string) error {
	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	gm.state.SavedAt = time.Now()
	if err := gm.storage.SaveGameState(slot, gm.state); err != nil {
		return fmt.Errorf("failed to save game state: %w", err)
	}
	if slot == "" {
		slot = DefaultSlot
	}

	gm.bus.Publish(eventbus.SaveCompletedEvent{Slot: slot, Players: len(gm.state.Players)})
	gm.Logger.Info("Game saved", zap.String("slot", slot), zap.Int("day", gm.state.Day))
	return nil
}

// Load replaces the whole game with a saved slot
func (gm *GameManager) Load(slot string) error {
	state, err := gm.storage.LoadGameState(slot)
	if err != nil {
		return fmt.Errorf("failed to load game state: %w", err)
	}
	if slot == "" {
		slot = DefaultSlot
	}

	gm.stateLock.Lock()
	defer gm.stateLock.Unlock()

	gm.state = state
	gm.sessions = make(map[string]*session, len(state.Players))
	for phone, player := range state.Players {
		if player.PhoneNumber == "" {
			player.PhoneNumber = phone
		}
		gm.attach(player)
	}

	gm.bus.Publish(eventbus.LoadCompletedEvent{Slot: slot, Players: len(state.Players)})
	gm.Logger.Info("Game loaded", zap.String("slot", slot), zap.Int("day", state.Day), zap.Int("players", len(state.Players)))
	return nil
}

// Resume loads the default slot when one exists and starts fresh otherwise
func (gm *GameManager) Resume() error {
	err := gm.Load(DefaultSlot)
	if errors.Is(err, ErrSlotNotFound) {
		gm.Logger.Info("No saved game found, starting a new world")
		return nil
	}
	return err
}

// Slots lists saved games
func (gm *GameManager) Slots() ([]types.SlotInfo, error) {
	return gm.storage.ListSlots()
}

// SendMessage sends a message to a player
func (gm *GameManager) SendMessage(playerID string, message string) error {
	gm.stateLock.RLock()
	sender := gm.messageSender

	// Get player by ID first
	var player *types.Player
	for _, p := range gm.state.Players {
		if p.ID == playerID {
			player = p
			break
		}
	}

	// If not found by ID, try phone number
	if player == nil {
		player = gm.state.Players[playerID]
	}
	gm.stateLock.RUnlock()

	if sender == nil {
		return fmt.Errorf("message sender not set")
	}
	if player == nil {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
	}

	if _, err := sender.SendMessage(player.PhoneNumber, player.PhoneNumber, message); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}
