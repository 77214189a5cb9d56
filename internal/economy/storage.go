package economy

import (
	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

// StorageCapacity is the weight a property can hold.
func (e *Estate) StorageCapacity(p *types.Property) int {
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return 0
	}
	capacity := float64(pt.StorageBonus)
	for _, id := range p.Upgrades {
		if u, ok := e.catalog.Upgrades[id]; ok && u.StorageMultiplier > 0 {
			capacity *= u.StorageMultiplier
		}
	}
	return int(capacity)
}

// StorageUsed is the weight currently stored in a property.
func (e *Estate) StorageUsed(p *types.Property) int {
	used := 0
	for item, qty := range p.Storage {
		used += qty * e.catalog.ItemWeight(item)
	}
	return used
}

// StorageAvailable is the remaining weight a property can take.
func (e *Estate) StorageAvailable(p *types.Property) int {
	return e.StorageCapacity(p) - e.StorageUsed(p)
}

// Store moves goods from the player's inventory into a property.
func (e *Estate) Store(propertyID, item string, qty int) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	if qty <= 0 {
		return e.fail("Quantity must be positive.")
	}
	if e.ledger.Quantity(item) < qty {
		return e.fail("You don't have %d %s!", qty, item)
	}
	weight := qty * e.catalog.ItemWeight(item)
	if weight > e.StorageAvailable(p) {
		return e.fail("Not enough storage space in your %s! (%d/%d used)", pt.Name, e.StorageUsed(p), e.StorageCapacity(p))
	}

	e.ledger.RemoveItem(item, qty, "property_deposit")
	if p.Storage == nil {
		p.Storage = make(map[string]int)
	}
	p.Storage[item] += qty

	e.publish(eventbus.ItemStoredEvent{PlayerID: e.player.ID, PropertyID: p.ID, Item: item, Quantity: qty})
	e.say("Stored %d %s in your %s.", qty, item, pt.Name)
	return true
}

// Retrieve moves goods from a property into the player's inventory, bounded
// by what the player's transport can carry.
func (e *Estate) Retrieve(propertyID, item string, qty int) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	if qty <= 0 {
		return e.fail("Quantity must be positive.")
	}
	if p.Storage[item] < qty {
		return e.fail("Not enough %s in storage!", item)
	}
	weight := qty * e.catalog.ItemWeight(item)
	if e.ledger.Load()+weight > e.Capacity() {
		return e.fail("Not enough carrying capacity! Need %d lbs more.", e.ledger.Load()+weight-e.Capacity())
	}

	takeFromStorage(p, item, qty)
	e.ledger.AddItem(item, qty, "property_withdraw")

	e.publish(eventbus.ItemRetrievedEvent{PlayerID: e.player.ID, PropertyID: p.ID, Item: item, Quantity: qty})
	e.say("Took %d %s from your %s storage!", qty, item, pt.Name)
	return true
}

// Transfer moves goods between two of the player's properties.
func (e *Estate) Transfer(fromID, toID, item string, qty int) bool {
	from, fromType, ok := e.lookupProperty(fromID)
	if !ok {
		return false
	}
	to, toType, ok := e.lookupProperty(toID)
	if !ok {
		return false
	}
	if from.ID == to.ID {
		return e.fail("Source and destination are the same property.")
	}
	if qty <= 0 {
		return e.fail("Quantity must be positive.")
	}
	if from.Storage[item] < qty {
		return e.fail("Your %s doesn't have enough %s!", fromType.Name, item)
	}
	if qty*e.catalog.ItemWeight(item) > e.StorageAvailable(to) {
		return e.fail("Not enough storage space in your %s!", toType.Name)
	}

	takeFromStorage(from, item, qty)
	if to.Storage == nil {
		to.Storage = make(map[string]int)
	}
	to.Storage[item] += qty

	e.publish(eventbus.ItemTransferredEvent{PlayerID: e.player.ID, FromID: from.ID, ToID: to.ID, Item: item, Quantity: qty})
	e.say("Transferred %d %s from %s to %s!", qty, item, fromType.Name, toType.Name)
	return true
}

func takeFromStorage(p *types.Property, item string, qty int) {
	p.Storage[item] -= qty
	if p.Storage[item] <= 0 {
		delete(p.Storage, item)
	}
}
