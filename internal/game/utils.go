package game

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/economy"
)

// CatalogFile is the catalog file name looked up in the data directory
const CatalogFile = "catalog.yaml"

// DataLoader handles loading game data from files
type DataLoader struct {
	basePath string
}

// NewDataLoader creates a new data loader
func NewDataLoader(basePath string) *DataLoader {
	return &DataLoader{
		basePath: basePath,
	}
}

// LoadCatalog reads catalog.yaml from the data directory, falling back to the
// built-in catalog when the directory is unset or has no catalog file.
func (dl *DataLoader) LoadCatalog() (*economy.Catalog, error) {
	if dl.basePath == "" {
		return economy.DefaultCatalog()
	}

	path := filepath.Join(dl.basePath, CatalogFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return economy.DefaultCatalog()
	}

	catalog, err := economy.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return catalog, nil
}

// DiceRoller handles random rolls for the game. It satisfies economy.Random.
type DiceRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDiceRoller creates a new dice roller with a seeded random number generator
func NewDiceRoller() *DiceRoller {
	return NewSeededDiceRoller(time.Now().UnixNano())
}

// NewSeededDiceRoller creates a dice roller with a fixed seed
func NewSeededDiceRoller(seed int64) *DiceRoller {
	return &DiceRoller{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Intn returns a number in [0, n)
func (dr *DiceRoller) Intn(n int) int {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.rng.Intn(n)
}

// Float64 returns a number in [0, 1)
func (dr *DiceRoller) Float64() float64 {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.rng.Float64()
}

// Scheduler advances the simulation one day per interval of real time
type Scheduler struct {
	gameManager *GameManager
	interval    time.Duration
	stopChan    chan struct{}
	done        chan struct{}
	started     atomic.Bool
	once        sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(gameManager *GameManager, interval time.Duration) *Scheduler {
	return &Scheduler{
		gameManager: gameManager,
		interval:    interval,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins advancing days
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for a running tick to finish
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
		if s.started.Load() {
			<-s.done
		}
	})
}

func (s *Scheduler) tick() {
	notices, err := s.gameManager.AdvanceDays(1)
	if err != nil {
		s.gameManager.Logger.Error("Failed to advance day", zap.Error(err))
		return
	}
	s.gameManager.Logger.Debug("Day advanced",
		zap.Int("day", s.gameManager.Day()),
		zap.Int("players_notified", len(notices)))
}
