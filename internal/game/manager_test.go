package game

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/economy"
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

const (
	alice = "5521999999999"
	bruno = "5521888888888"
)

// MockMessageSender records messages sent to players
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendMessage(phoneNumber, recipient, message string) (string, error) {
	args := m.Called(phoneNumber, recipient, message)
	return args.String(0), args.Error(1)
}

func newTestManager(t *testing.T, mutate func(cfg *config.Config)) *GameManager {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.StateFile = filepath.Join(t.TempDir(), "game_state.json")
	if mutate != nil {
		mutate(&cfg)
	}
	return NewGameManager(cfg, Dependencies{Rand: NewSeededDiceRoller(7)})
}

func TestRegisterPlayer(t *testing.T) {
	gameManager := newTestManager(t, nil)

	// Test case 1: Register new player
	player, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", player.Name)
	assert.Equal(t, alice, player.PhoneNumber)
	assert.Equal(t, 500, player.Gold)
	assert.Equal(t, "oakvale", player.Location)
	assert.Equal(t, types.StatusActive, player.Status)
	assert.NotEmpty(t, player.ID)

	created := gameManager.Bus().History(eventbus.PlayerCreated)
	require.Len(t, created, 1)
	assert.Equal(t, player.ID, created[0].Data.(eventbus.PlayerCreatedEvent).PlayerID)

	// Test case 2: Register duplicate player
	_, err = gameManager.RegisterPlayer(alice, "Someone Else")
	assert.Error(t, err)
	assert.Equal(t, "player already registered", err.Error())

	// Test case 3: Name is required
	_, err = gameManager.RegisterPlayer(bruno, "  ")
	assert.ErrorIs(t, err, ErrNameRequired)

	// Test case 4: Get registered player
	retrieved, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, player.ID, retrieved.ID)

	_, err = gameManager.GetPlayer(bruno)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestRegisterPlayerFallsBackToKnownLocation(t *testing.T) {
	gameManager := newTestManager(t, func(cfg *config.Config) {
		cfg.Game.StartingLocation = "atlantis"
	})

	player, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "greenfield", player.Location)
}

func TestGetAllPlayersIsSorted(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = gameManager.RegisterPlayer(bruno, "Bruno")
	require.NoError(t, err)

	players := gameManager.GetAllPlayers()
	require.Len(t, players, 2)
	assert.Equal(t, "Bruno", players[0].Name)
	assert.Equal(t, "Alice", players[1].Name)
}

func TestSetPlayerStatus(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	require.NoError(t, gameManager.SetPlayerStatus(alice, types.StatusAutopilot))
	status, err := gameManager.GetPlayerStatus(alice)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAutopilot, status.Status)

	assert.ErrorIs(t, gameManager.SetPlayerStatus(alice, "dancing"), ErrInvalidStatus)
	assert.ErrorIs(t, gameManager.SetPlayerStatus(bruno, types.StatusActive), ErrPlayerNotFound)
}

func TestOperationsReturnMessages(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	result, err := gameManager.BuyProperty(alice, "house", economy.AcquireRent)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"Rented a House in Oakvale for a 200 gold deposit + 100/week!"}, result.Messages)

	result, err = gameManager.BuyProperty(alice, "house", economy.AcquireBuy)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, []string{"You already own a House in Oakvale!"}, result.Messages)

	result, err = gameManager.HireEmployee(alice, "worker")
	require.NoError(t, err)
	assert.True(t, result.OK)

	status, err := gameManager.GetPlayerStatus(alice)
	require.NoError(t, err)
	assert.Equal(t, 500-200-56, status.Gold)
	assert.Equal(t, 1, status.Properties)
	assert.Equal(t, 1, status.Employees)
	assert.Equal(t, 56, status.WeeklyWages)
	assert.Equal(t, "Oakvale", status.LocationName)
	assert.Equal(t, 40, status.Capacity)

	_, err = gameManager.Travel(bruno, "royal_capital")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestTravelMovesPlayer(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	result, err := gameManager.Travel(alice, "sunhaven")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Messages[0], "no road")

	result, err = gameManager.Travel(alice, "royal_capital")
	require.NoError(t, err)
	assert.True(t, result.OK)

	player, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, "royal_capital", player.Location)
}

func TestLocalMarket(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	market, err := gameManager.LocalMarket(alice)
	require.NoError(t, err)
	assert.Equal(t, "Oakvale", market.Name)
	require.Len(t, market.Properties, 5)

	house := market.Properties[0]
	assert.Equal(t, "house", house.Type)
	assert.Equal(t, 1000, house.BuyPrice)
	assert.Equal(t, 500, house.BuildPrice)
	assert.Equal(t, 100, house.WeeklyRent)

	assert.Len(t, market.Employees, 6)
	assert.Equal(t, 1, market.Roads["royal_capital"])
	assert.Equal(t, 2, market.Roads["ironforge"])
	assert.Len(t, market.Transport, 2)
}

func TestAdvanceDaysRunsDailyAndWeeklyRoutines(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	result, err := gameManager.BuyProperty(alice, "house", economy.AcquireRent)
	require.NoError(t, err)
	require.True(t, result.OK)

	_, err = gameManager.AdvanceDays(6)
	require.NoError(t, err)
	assert.Equal(t, 7, gameManager.Day())

	player, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	// Six days of house income, then the first week's rent
	assert.Equal(t, 17, player.Stats.TotalIncome)
	assert.Equal(t, 300+17-100, player.Gold)
	assert.Equal(t, 94, player.Properties[0].Condition)

	bus := gameManager.Bus()
	assert.Len(t, bus.History(eventbus.TimeDayChanged), 6)
	assert.Len(t, bus.History(eventbus.TimeWeekChanged), 1)
	assert.Len(t, bus.History(eventbus.PropertyRentPaid), 1)

	_, err = gameManager.AdvanceDays(0)
	assert.ErrorIs(t, err, ErrInvalidDays)
}

func TestAdvanceDaysSendsNotices(t *testing.T) {
	gameManager := newTestManager(t, func(cfg *config.Config) {
		cfg.Game.StartingGold = 210
	})
	sender := new(MockMessageSender)
	gameManager.SetMessageSender(sender)

	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	result, err := gameManager.BuyProperty(alice, "house", economy.AcquireRent)
	require.NoError(t, err)
	require.True(t, result.OK)

	repossessed := "Your House in Oakvale was repossessed: you could not pay 100 gold rent."
	sender.On("SendMessage", alice, alice, repossessed).Return("msg-1", nil).Once()

	notices, err := gameManager.AdvanceDays(6)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{alice: {repossessed}}, notices)
	sender.AssertExpectations(t)

	player, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.Empty(t, player.Properties)
	assert.Equal(t, 10+17, player.Gold)
}

func TestStewardRepairsAutopilotPlayers(t *testing.T) {
	gameManager := newTestManager(t, func(cfg *config.Config) {
		cfg.Game.StartingGold = 2000
	})
	gameManager.SetSteward(NewSteward(50, nil))

	for _, phone := range []string{alice, bruno} {
		_, err := gameManager.RegisterPlayer(phone, phone)
		require.NoError(t, err)
		result, err := gameManager.BuyProperty(phone, "house", economy.AcquireBuy)
		require.NoError(t, err)
		require.True(t, result.OK)
	}
	require.NoError(t, gameManager.SetPlayerStatus(alice, types.StatusAutopilot))

	for _, phone := range []string{alice, bruno} {
		player, err := gameManager.GetPlayer(phone)
		require.NoError(t, err)
		player.Properties[0].Condition = 30
	}

	notices, err := gameManager.AdvanceDays(1)
	require.NoError(t, err)

	autopilot, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, 100, autopilot.Properties[0].Condition)
	require.Len(t, notices[alice], 1)
	assert.Contains(t, notices[alice][0], "Repaired your House")

	active, err := gameManager.GetPlayer(bruno)
	require.NoError(t, err)
	assert.Equal(t, 29, active.Properties[0].Condition)
	assert.NotContains(t, notices, bruno)
}

func TestSaveAndLoadSlots(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = gameManager.AdvanceDays(2)
	require.NoError(t, err)

	require.NoError(t, gameManager.Save("before-bruno"))

	_, err = gameManager.RegisterPlayer(bruno, "Bruno")
	require.NoError(t, err)
	_, err = gameManager.AdvanceDays(3)
	require.NoError(t, err)

	require.NoError(t, gameManager.Load("before-bruno"))
	assert.Equal(t, 3, gameManager.Day())
	assert.Len(t, gameManager.GetAllPlayers(), 1)

	// Loaded players get working estates again
	result, err := gameManager.HireEmployee(alice, "apprentice")
	require.NoError(t, err)
	assert.True(t, result.OK)

	slots, err := gameManager.Slots()
	require.NoError(t, err)
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.Slot)
	}
	assert.Equal(t, []string{"before-bruno", "default"}, names)

	bus := gameManager.Bus()
	assert.Len(t, bus.History(eventbus.SaveCompleted), 1)
	assert.Len(t, bus.History(eventbus.LoadCompleted), 1)

	assert.ErrorIs(t, gameManager.Load("missing"), ErrSlotNotFound)
	assert.ErrorIs(t, gameManager.Save("../escape"), ErrInvalidSlot)
}

func TestResumeStartsFreshWithoutSave(t *testing.T) {
	gameManager := newTestManager(t, nil)
	require.NoError(t, gameManager.Resume())
	assert.Equal(t, 1, gameManager.Day())
	assert.Empty(t, gameManager.GetAllPlayers())
}

func TestResumeRestoresAutosave(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "game_state.json")
	mutate := func(cfg *config.Config) { cfg.Database.StateFile = stateFile }

	first := newTestManager(t, mutate)
	_, err := first.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = first.AdvanceDays(4)
	require.NoError(t, err)

	second := newTestManager(t, mutate)
	require.NoError(t, second.Resume())
	assert.Equal(t, 5, second.Day())

	player, err := second.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", player.Name)
}

func TestSQLiteStorageRoundTrip(t *testing.T) {
	storage, err := NewSQLiteStateStorage(config.DefaultConfig().Database.Driver, filepath.Join(t.TempDir(), "saves.db"))
	require.NoError(t, err)
	defer storage.Close()

	gameManager := NewGameManager(config.DefaultConfig(), Dependencies{Storage: storage})
	_, err = gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = gameManager.AdvanceDays(1)
	require.NoError(t, err)
	require.NoError(t, gameManager.Save("week-one"))

	// Overwriting a slot replaces it
	_, err = gameManager.AdvanceDays(1)
	require.NoError(t, err)
	require.NoError(t, gameManager.Save("week-one"))

	state, err := storage.LoadGameState("week-one")
	require.NoError(t, err)
	assert.Equal(t, 3, state.Day)
	require.Contains(t, state.Players, alice)
	assert.NotNil(t, state.Players[alice].Inventory)

	slots, err := storage.ListSlots()
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "default", slots[0].Slot)
	assert.Equal(t, "week-one", slots[1].Slot)
	assert.Equal(t, 1, slots[1].Players)

	_, err = storage.LoadGameState("nope")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestSendMessage(t *testing.T) {
	gameManager := newTestManager(t, nil)
	player, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	assert.EqualError(t, gameManager.SendMessage(player.ID, "hello"), "message sender not set")

	sender := new(MockMessageSender)
	sender.On("SendMessage", alice, alice, "hello").Return("msg-1", nil).Twice()
	gameManager.SetMessageSender(sender)

	assert.NoError(t, gameManager.SendMessage(player.ID, "hello"))
	assert.NoError(t, gameManager.SendMessage(alice, "hello"))
	assert.ErrorIs(t, gameManager.SendMessage("nobody", "hello"), ErrPlayerNotFound)
	sender.AssertExpectations(t)
}

func TestSchedulerAdvancesDays(t *testing.T) {
	gameManager := newTestManager(t, nil)
	scheduler := NewScheduler(gameManager, 5*time.Millisecond)

	scheduler.Start()
	assert.Eventually(t, func() bool { return gameManager.Day() >= 3 }, time.Second, 5*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	day := gameManager.Day()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, day, gameManager.Day())
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(newTestManager(t, nil), time.Hour)
	scheduler.Stop()
}

func TestDataLoaderFallsBackToDefaultCatalog(t *testing.T) {
	catalog, err := NewDataLoader(t.TempDir()).LoadCatalog()
	require.NoError(t, err)
	assert.Contains(t, catalog.Locations, "oakvale")

	catalog, err = NewDataLoader("").LoadCatalog()
	require.NoError(t, err)
	assert.Contains(t, catalog.PropertyTypes, "house")
}

func TestDiceRoller(t *testing.T) {
	var _ economy.Random = (*DiceRoller)(nil)

	roller := NewSeededDiceRoller(42)
	replay := NewSeededDiceRoller(42)
	for i := 0; i < 100; i++ {
		roll := roller.Intn(6)
		assert.GreaterOrEqual(t, roll, 0)
		assert.Less(t, roll, 6)
		assert.Equal(t, roll, replay.Intn(6))
		replay.Float64()

		f := roller.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestGetPlayerReturnsSnapshot(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = gameManager.BuyProperty(alice, "house", economy.AcquireRent)
	require.NoError(t, err)

	snapshot, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	require.Len(t, snapshot.Properties, 1)

	snapshot.Gold = 1
	snapshot.Inventory["grain"] = 99
	snapshot.Properties[0].Condition = 0
	snapshot.Properties[0].Storage = map[string]int{"grain": 5}
	snapshot.Properties = nil

	player, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.NotEqual(t, 1, player.Gold)
	assert.Zero(t, player.Inventory["grain"])
	require.Len(t, player.Properties, 1)
	assert.NotZero(t, player.Properties[0].Condition)
	assert.Empty(t, player.Properties[0].Storage)

	all := gameManager.GetAllPlayers()
	require.Len(t, all, 1)
	all[0].Gold = 1
	player, err = gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.NotEqual(t, 1, player.Gold)
}

func TestReadsDuringAdvanceDays(t *testing.T) {
	gameManager := newTestManager(t, func(cfg *config.Config) {
		cfg.Game.AutoSave = false
	})
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	_, err = gameManager.BuyProperty(alice, "house", economy.AcquireRent)
	require.NoError(t, err)
	_, err = gameManager.HireEmployee(alice, "worker")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := gameManager.AdvanceDays(1)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			player, err := gameManager.GetPlayer(alice)
			if assert.NoError(t, err) {
				_, err = json.Marshal(player)
				assert.NoError(t, err)
			}
			_, err = json.Marshal(gameManager.GetAllPlayers())
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	assert.Equal(t, 201, gameManager.Day())
}

func TestSellTransportRejectsStaleID(t *testing.T) {
	gameManager := newTestManager(t, nil)
	_, err := gameManager.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)
	result, err := gameManager.BuyTransport(alice, "hand_cart")
	require.NoError(t, err)
	require.True(t, result.OK, result.Messages)

	snapshot, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	require.Len(t, snapshot.Transport, 1)
	cartID := snapshot.Transport[0].ID

	result, err = gameManager.SellTransport(alice, cartID)
	require.NoError(t, err)
	require.True(t, result.OK, result.Messages)
	sold, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)

	result, err = gameManager.SellTransport(alice, cartID)
	require.NoError(t, err)
	assert.False(t, result.OK)

	player, err := gameManager.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, sold.Gold, player.Gold)
	assert.Empty(t, player.Transport)
}

func TestSQLiteStateStorageDriver(t *testing.T) {
	_, err := NewSQLiteStateStorage("postgres", filepath.Join(t.TempDir(), "saves.db"))
	assert.ErrorContains(t, err, "unknown driver")

	storage, err := NewSQLiteStateStorage("", filepath.Join(t.TempDir(), "saves.db"))
	require.NoError(t, err)
	defer storage.Close()

	require.NoError(t, storage.SaveGameState("default", &types.GameState{Day: 3, Players: map[string]*types.Player{}}))
	state, err := storage.LoadGameState("default")
	require.NoError(t, err)
	assert.Equal(t, 3, state.Day)
}
