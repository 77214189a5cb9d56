package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/bootstrap"
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/game"
	"github.com/user/medieval-trader/internal/interfaces"
	"github.com/user/medieval-trader/internal/types"
)

// Config holds what the API serves. Hub and Status are optional.
type Config struct {
	Game   interfaces.GameManager
	Bus    *eventbus.Bus
	Hub    *Hub
	Status func() bootstrap.Status
	Logger *zap.Logger
}

// Server exposes the game over HTTP
type Server struct {
	game    interfaces.GameManager
	bus     *eventbus.Bus
	hub     *Hub
	status  func() bootstrap.Status
	logger  *zap.Logger
	actions map[string]action
}

type action func(phone string, req actionRequest) (types.Result, error)

// actionRequest carries the arguments of every player action; each action
// reads the fields it needs.
type actionRequest struct {
	Destination string `json:"destination"`
	Type        string `json:"type"`
	Acquisition string `json:"acquisition"`
	PropertyID  string `json:"property_id"`
	Upgrade     string `json:"upgrade"`
	Item        string `json:"item"`
	Quantity    int    `json:"quantity"`
	From        string `json:"from"`
	To          string `json:"to"`
	EmployeeID  string `json:"employee_id"`
	Wage        int    `json:"wage"`
	TransportID string `json:"transport_id"`
}

// NewServer creates an API server
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		game:   cfg.Game,
		bus:    cfg.Bus,
		hub:    cfg.Hub,
		status: cfg.Status,
		logger: cfg.Logger,
	}
	s.actions = s.actionTable()
	return s
}

func (s *Server) actionTable() map[string]action {
	g := s.game
	return map[string]action{
		"travel": func(phone string, req actionRequest) (types.Result, error) {
			return g.Travel(phone, req.Destination)
		},
		"buy": func(phone string, req actionRequest) (types.Result, error) {
			return g.BuyProperty(phone, req.Type, req.Acquisition)
		},
		"sell": func(phone string, req actionRequest) (types.Result, error) {
			return g.SellProperty(phone, req.PropertyID)
		},
		"abandon": func(phone string, req actionRequest) (types.Result, error) {
			return g.AbandonProperty(phone, req.PropertyID)
		},
		"upgrade": func(phone string, req actionRequest) (types.Result, error) {
			return g.UpgradeProperty(phone, req.PropertyID, req.Upgrade)
		},
		"levelup": func(phone string, req actionRequest) (types.Result, error) {
			return g.LevelUpProperty(phone, req.PropertyID)
		},
		"repair": func(phone string, req actionRequest) (types.Result, error) {
			return g.RepairProperty(phone, req.PropertyID)
		},
		"store": func(phone string, req actionRequest) (types.Result, error) {
			return g.StoreItem(phone, req.PropertyID, req.Item, req.Quantity)
		},
		"retrieve": func(phone string, req actionRequest) (types.Result, error) {
			return g.RetrieveItem(phone, req.PropertyID, req.Item, req.Quantity)
		},
		"transfer": func(phone string, req actionRequest) (types.Result, error) {
			return g.TransferItem(phone, req.From, req.To, req.Item, req.Quantity)
		},
		"hire": func(phone string, req actionRequest) (types.Result, error) {
			return g.HireEmployee(phone, req.Type)
		},
		"fire": func(phone string, req actionRequest) (types.Result, error) {
			return g.FireEmployee(phone, req.EmployeeID)
		},
		"assign": func(phone string, req actionRequest) (types.Result, error) {
			return g.AssignEmployee(phone, req.EmployeeID, req.PropertyID)
		},
		"unassign": func(phone string, req actionRequest) (types.Result, error) {
			return g.UnassignEmployee(phone, req.EmployeeID)
		},
		"wage": func(phone string, req actionRequest) (types.Result, error) {
			return g.AdjustWage(phone, req.EmployeeID, req.Wage)
		},
		"buy_transport": func(phone string, req actionRequest) (types.Result, error) {
			return g.BuyTransport(phone, req.Type)
		},
		"sell_transport": func(phone string, req actionRequest) (types.Result, error) {
			return g.SellTransport(phone, req.TransportID)
		},
	}
}

// Router builds the HTTP routes. The event stream sits outside the request
// timeout.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Route("/players", func(r chi.Router) {
			r.Get("/", s.listPlayers)
			r.Post("/", s.registerPlayer)
			r.Route("/{phone}", func(r chi.Router) {
				r.Get("/", s.getPlayer)
				r.Get("/status", s.playerStatus)
				r.Get("/market", s.market)
				r.Put("/mode", s.setMode)
				r.Post("/actions/{action}", s.performAction)
			})
		})

		r.Post("/time/advance", s.advance)

		r.Get("/saves", s.listSaves)
		r.Post("/saves/{slot}", s.save)
		r.Post("/saves/{slot}/load", s.load)

		r.Get("/events", s.history)
		r.Get("/events/failed", s.failedEvents)
		r.Get("/events/stats", s.busStats)

		if s.status != nil {
			r.Get("/bootstrap", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.status())
			})
		}
	})

	if s.hub != nil {
		router.Get("/events/stream", s.hub.ServeWs)
	}

	return router
}

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.GetAllPlayers())
}

func (s *Server) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Name        string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	player, err := s.game.RegisterPlayer(req.PhoneNumber, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := s.game.GetPlayer(chi.URLParam(r, "phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (s *Server) playerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.game.GetPlayerStatus(chi.URLParam(r, "phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) market(w http.ResponseWriter, r *http.Request) {
	market, err := s.game.LocalMarket(chi.URLParam(r, "phone"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	phone := chi.URLParam(r, "phone")
	if err := s.game.SetPlayerStatus(phone, req.Status); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// performAction runs a player action. A refused action is a 422 carrying the
// same messages the player would have seen.
func (s *Server) performAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	run, ok := s.actions[name]
	if !ok {
		http.Error(w, "Unknown action", http.StatusNotFound)
		return
	}

	var req actionRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := run(chi.URLParam(r, "phone"), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !result.OK {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Days int `json:"days"`
	}{Days: 1}
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	notices, err := s.game.AdvanceDays(req.Days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":     s.game.Day(),
		"notices": notices,
	})
}

func (s *Server) listSaves(w http.ResponseWriter, r *http.Request) {
	slots, err := s.game.Slots()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	if err := s.game.Save(slot); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "day": s.game.Day()})
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	if err := s.game.Load(slot); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "day": s.game.Day()})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.History(r.URL.Query().Get("filter")))
}

func (s *Server) failedEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.FailedEvents(r.URL.Query().Get("filter")))
}

func (s *Server) busStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bus.Stats())
}

// writeError maps game errors onto status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, game.ErrSlotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrPlayerExists):
		status = http.StatusConflict
	case errors.Is(err, game.ErrNameRequired),
		errors.Is(err, game.ErrInvalidStatus),
		errors.Is(err, game.ErrInvalidDays),
		errors.Is(err, game.ErrInvalidSlot):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeOptional decodes a JSON body; an empty body leaves v untouched
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
