package economy

import (
	"fmt"
	"sort"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

// Treasury is the gold side of the player store.
type Treasury interface {
	Gold() int
	Add(amount int, reason string)
	Remove(amount int, reason string) bool
	CanAfford(amount int) bool
}

// Inventory is the goods side of the player store.
type Inventory interface {
	Quantity(item string) int
	AddItem(item string, qty int, reason string)
	RemoveItem(item string, qty int, reason string) bool
	Load() int
}

// Ledger is the only writer of a player's gold and inventory. Change events
// are published from here so callers never emit them by hand.
type Ledger struct {
	player  *types.Player
	catalog *Catalog
	bus     eventbus.Emitter
}

var (
	_ Treasury  = (*Ledger)(nil)
	_ Inventory = (*Ledger)(nil)
)

// NewLedger wraps a player snapshot. bus may be nil.
func NewLedger(player *types.Player, catalog *Catalog, bus eventbus.Emitter) *Ledger {
	if player.Inventory == nil {
		player.Inventory = make(map[string]int)
	}
	return &Ledger{player: player, catalog: catalog, bus: bus}
}

func (l *Ledger) Gold() int {
	return l.player.Gold
}

func (l *Ledger) CanAfford(amount int) bool {
	return amount <= l.player.Gold
}

// Add credits gold. Non-positive amounts are ignored.
func (l *Ledger) Add(amount int, reason string) {
	if amount <= 0 {
		return
	}
	l.setGold(l.player.Gold+amount, reason)
}

// Remove debits gold only if the whole amount is available.
func (l *Ledger) Remove(amount int, reason string) bool {
	if amount <= 0 {
		return true
	}
	if amount > l.player.Gold {
		return false
	}
	l.setGold(l.player.Gold-amount, reason)
	return true
}

func (l *Ledger) setGold(newGold int, reason string) {
	if newGold < 0 {
		newGold = 0
	}
	old := l.player.Gold
	if old == newGold {
		return
	}
	l.player.Gold = newGold
	eventbus.PublishTo(l.bus, eventbus.GoldChangedEvent{
		PlayerID: l.player.ID,
		OldGold:  old,
		NewGold:  newGold,
		Change:   newGold - old,
		Reason:   reason,
	})
}

func (l *Ledger) Quantity(item string) int {
	return l.player.Inventory[item]
}

func (l *Ledger) AddItem(item string, qty int, reason string) {
	if qty <= 0 || item == "" {
		return
	}
	l.player.Inventory[item] += qty
	eventbus.PublishTo(l.bus, eventbus.ItemAddedEvent{
		PlayerID: l.player.ID,
		Item:     item,
		Quantity: qty,
		Reason:   reason,
	})
}

// RemoveItem takes qty units if all of them are held.
func (l *Ledger) RemoveItem(item string, qty int, reason string) bool {
	if qty <= 0 {
		return true
	}
	have := l.player.Inventory[item]
	if have < qty {
		return false
	}
	if have == qty {
		delete(l.player.Inventory, item)
	} else {
		l.player.Inventory[item] = have - qty
	}
	eventbus.PublishTo(l.bus, eventbus.ItemRemovedEvent{
		PlayerID: l.player.ID,
		Item:     item,
		Quantity: qty,
		Reason:   reason,
	})
	return true
}

// Load is the total weight of carried goods.
func (l *Ledger) Load() int {
	total := 0
	for item, qty := range l.player.Inventory {
		total += qty * l.catalog.ItemWeight(item)
	}
	return total
}

// Missing lists shortfalls against a bill of materials, sorted by item.
func (l *Ledger) Missing(needed map[string]int) []string {
	var missing []string
	for item, amount := range needed {
		if have := l.Quantity(item); have < amount {
			missing = append(missing, fmt.Sprintf("%d more %s", amount-have, item))
		}
	}
	sort.Strings(missing)
	return missing
}
