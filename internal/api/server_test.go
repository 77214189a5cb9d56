package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/bootstrap"
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/game"
	"github.com/user/medieval-trader/internal/types"
)

const alice = "5511999990001"

type testAPI struct {
	game   *game.GameManager
	bus    *eventbus.Bus
	server *Server
	router http.Handler
}

func newTestAPI(t *testing.T, hub *Hub) *testAPI {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.StateFile = filepath.Join(t.TempDir(), "game_state.json")
	gameManager := game.NewGameManager(cfg, game.Dependencies{Rand: game.NewSeededDiceRoller(7)})

	server := NewServer(Config{
		Game: gameManager,
		Bus:  gameManager.Bus(),
		Hub:  hub,
		Status: func() bootstrap.Status {
			return bootstrap.Status{State: bootstrap.StateInitialized, Completed: []string{"EventBus", "GameManager"}}
		},
	})
	return &testAPI{game: gameManager, bus: gameManager.Bus(), server: server, router: server.Router()}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) register(t *testing.T) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/players", `{"phone_number":"`+alice+`","name":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRegisterAndFetchPlayer(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodPost, "/players", `{"phone_number":"`+alice+`","name":"Alice"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/players", `{"phone_number":"5511999990002","name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/players", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/players/"+alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	player := decode[types.Player](t, rec)
	assert.Equal(t, "Alice", player.Name)
	assert.Equal(t, 500, player.Gold)

	rec = a.do(t, http.MethodGet, "/players", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Player](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/players/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "player not found")
}

func TestPlayerReadsDuringAdvance(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)
	rec := a.do(t, http.MethodPost, "/players/"+alice+"/actions/buy", `{"type":"house","acquisition":"rent"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, err := a.game.AdvanceDays(1)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			rec := a.do(t, http.MethodGet, "/players/"+alice, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			rec = a.do(t, http.MethodGet, "/players", "")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	}()
	wg.Wait()

	assert.Equal(t, 101, a.game.Day())
}

func TestStatusAndMarket(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodGet, "/players/"+alice+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[types.PlayerStatus](t, rec)
	assert.Equal(t, "oakvale", status.Location)
	assert.Equal(t, 1, status.Day)

	rec = a.do(t, http.MethodGet, "/players/"+alice+"/market", "")
	require.Equal(t, http.StatusOK, rec.Code)
	market := decode[types.Market](t, rec)
	assert.Equal(t, 1, market.Roads["royal_capital"])
	assert.Len(t, market.Properties, 5)
}

func TestSetMode(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodPut, "/players/"+alice+"/mode", `{"status":"autopilot"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	player, err := a.game.GetPlayer(alice)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAutopilot, player.Status)

	rec = a.do(t, http.MethodPut, "/players/"+alice+"/mode", `{"status":"dancing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformAction(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodPost, "/players/"+alice+"/actions/buy", `{"type":"house","acquisition":"rent"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[types.Result](t, rec)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"Rented a House in Oakvale for a 200 gold deposit + 100/week!"}, result.Messages)

	rec = a.do(t, http.MethodPost, "/players/"+alice+"/actions/buy", `{"type":"house","acquisition":"buy"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	result = decode[types.Result](t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, []string{"You already own a House in Oakvale!"}, result.Messages)

	rec = a.do(t, http.MethodPost, "/players/"+alice+"/actions/travel", `{"destination":"royal_capital"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/players/"+alice+"/actions/juggle", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/players/nobody/actions/hire", `{"type":"worker"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdvanceTime(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodPost, "/time/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, a.game.Day())

	rec = a.do(t, http.MethodPost, "/time/advance", `{"days":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 7, body["day"])

	rec = a.do(t, http.MethodPost, "/time/advance", `{"days":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Len(t, a.bus.History(eventbus.TimeDayChanged), 6)
	assert.Len(t, a.bus.History(eventbus.TimeWeekChanged), 1)
}

func TestSaveSlots(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)

	rec := a.do(t, http.MethodPost, "/saves/week-one", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := a.game.AdvanceDays(3)
	require.NoError(t, err)

	rec = a.do(t, http.MethodPost, "/saves/week-one/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, a.game.Day())

	rec = a.do(t, http.MethodGet, "/saves", "")
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]types.SlotInfo](t, rec)
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		names = append(names, s.Slot)
	}
	assert.Contains(t, names, "week-one")

	rec = a.do(t, http.MethodPost, "/saves/missing/load", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/saves/bad.slot", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)
	a.register(t)
	a.bus.Subscribe("test:boom", func(eventbus.Event) error { return assert.AnError })
	a.bus.Emit("test:boom", nil)

	rec := a.do(t, http.MethodGet, "/events?filter="+eventbus.PlayerCreated, "")
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]eventbus.Event](t, rec)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.PlayerCreated, events[0].Name)

	rec = a.do(t, http.MethodGet, "/events/failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[[]eventbus.FailedEvent](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "test:boom", failed[0].Event)

	rec = a.do(t, http.MethodGet, "/events/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[eventbus.Stats](t, rec)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Events["test:boom"])
}

func TestBootstrapStatus(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/bootstrap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[bootstrap.Status](t, rec)
	assert.Equal(t, bootstrap.StateInitialized, status.State)
	assert.Equal(t, []string{"EventBus", "GameManager"}, status.Completed)
}

func TestEventStream(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	a := newTestAPI(t, hub)
	unsubscribe := hub.Attach(a.bus)
	defer unsubscribe()

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = a.game.RegisterPlayer(alice, "Alice")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type != eventbus.PlayerCreated {
			continue
		}
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Alice", payload["name"])
		break
	}
}

func TestStreamDisabledWithoutHub(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(t, http.MethodGet, "/events/stream", "")
	assert.NotEqual(t, http.StatusSwitchingProtocols, rec.Code)
}
