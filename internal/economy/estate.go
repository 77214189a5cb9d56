package economy

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

const (
	DaysPerWeek = 7

	startingMorale = 75
	minCondition   = 20
	maxCondition   = 100
	taxRate        = 0.1
	sellRatio      = 0.5
	levelCostRatio = 0.5
	repairRatio    = 0.1
	rentRatio      = 0.1
)

// Notifier receives the human-readable outcome of every operation.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Clock reports the current simulated day.
type Clock interface {
	Day() int
}

// FixedClock is a Clock that always reports the same day.
type FixedClock int

func (c FixedClock) Day() int { return int(c) }

// Random is the source used for hiring and turnover rolls.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// Options carries an Estate's collaborators. Only Catalog is required.
type Options struct {
	Catalog  *Catalog
	Bus      eventbus.Emitter
	Notifier Notifier
	Clock    Clock
	Rand     Random
	Logger   *zap.Logger
}

// Estate runs the economy for a single player: properties, staff and
// transport. It is not safe for concurrent use; callers serialize access.
type Estate struct {
	player  *types.Player
	catalog *Catalog
	ledger  *Ledger
	bus     eventbus.Emitter
	notify  Notifier
	clock   Clock
	rng     Random
	logger  *zap.Logger
}

// NewEstate binds the economy to a player snapshot.
func NewEstate(player *types.Player, opts Options) *Estate {
	if opts.Catalog == nil {
		opts.Catalog = MustDefaultCatalog()
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(string) {})
	}
	if opts.Clock == nil {
		opts.Clock = FixedClock(0)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Estate{
		player:  player,
		catalog: opts.Catalog,
		ledger:  NewLedger(player, opts.Catalog, opts.Bus),
		bus:     opts.Bus,
		notify:  opts.Notifier,
		clock:   opts.Clock,
		rng:     opts.Rand,
		logger:  opts.Logger.With(zap.String("player", player.ID)),
	}
}

// Player returns the underlying snapshot.
func (e *Estate) Player() *types.Player {
	return e.player
}

// Ledger returns the player's treasury and inventory store.
func (e *Estate) Ledger() *Ledger {
	return e.ledger
}

// Catalog returns the tables the estate runs on.
func (e *Estate) Catalog() *Catalog {
	return e.catalog
}

func (e *Estate) say(format string, args ...any) {
	e.notify.Notify(fmt.Sprintf(format, args...))
}

// fail notifies the player and returns false so callers can `return e.fail(...)`.
func (e *Estate) fail(format string, args ...any) bool {
	e.say(format, args...)
	return false
}

func (e *Estate) publish(p eventbus.Payload) {
	eventbus.PublishTo(e.bus, p)
}

func (e *Estate) locationName(id string) string {
	if loc, ok := e.catalog.Locations[id]; ok {
		return loc.Name
	}
	return id
}

func newID() string {
	return uuid.NewString()
}

// roundInt rounds to the nearest integer, halves toward +Inf.
func roundInt(x float64) int {
	return int(math.Floor(x + 0.5))
}
