package economy

import (
	"math"
	"sort"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

const (
	// SatchelID is the default carrier every player is assumed to have.
	SatchelID = "satchel"

	minSpeed     = 0.3
	walkingSpeed = 1.0
)

// TransportSummary describes what a player's transport adds up to.
type TransportSummary struct {
	Animals       int     `json:"animals"`
	Vehicles      int     `json:"vehicles"`
	Carriers      int     `json:"carriers"`
	Capacity      int     `json:"capacity"`
	Speed         float64 `json:"speed"`
	CanBuyVehicle bool    `json:"can_buy_vehicle"`
	CanSellAnimal bool    `json:"can_sell_animal"`
}

// Transport returns owned transport in acquisition order.
func (e *Estate) Transport() []*types.Transport {
	out := append([]*types.Transport(nil), e.player.Transport...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// TransportForSale lists what can be bought at a location.
func (e *Estate) TransportForSale(locationID string) []*TransportType {
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil
	}
	out := make([]*TransportType, 0, len(lt.Transport))
	for _, id := range lt.Transport {
		out = append(out, e.catalog.TransportTypes[id])
	}
	return out
}

// TransportPrice is the local asking price for a transport type.
func (e *Estate) TransportPrice(typeID, locationID string) int {
	tt, ok := e.catalog.TransportTypes[typeID]
	if !ok {
		return 0
	}
	mod := 1.0
	if lt, ok := e.catalog.LocationTypeOf(locationID); ok && lt.TransportModifier > 0 {
		mod = lt.TransportModifier
	}
	return int(math.Floor(float64(tt.Price) * mod))
}

type fleet struct {
	carriers []*TransportType
	animals  []*TransportType
	vehicles []*TransportType
}

func (e *Estate) fleet() fleet {
	var f fleet
	for _, t := range e.Transport() {
		tt, ok := e.catalog.TransportTypes[t.Type]
		if !ok {
			continue
		}
		switch tt.Category {
		case CategoryAnimal:
			f.animals = append(f.animals, tt)
		case CategoryVehicle:
			f.vehicles = append(f.vehicles, tt)
		default:
			f.carriers = append(f.carriers, tt)
		}
	}
	return f
}

// Capacity is the total weight the player can carry. Animals pull vehicles
// one to one in acquisition order; a vehicle with no animal carries nothing.
func (e *Estate) Capacity() int {
	if len(e.player.Transport) == 0 {
		return e.satchelCapacity()
	}

	f := e.fleet()
	total := 0
	for _, c := range f.carriers {
		total += c.Capacity
	}
	paired := min(len(f.animals), len(f.vehicles))
	for i := 0; i < paired; i++ {
		total += f.animals[i].Capacity + f.vehicles[i].Capacity
	}
	for i := paired; i < len(f.animals); i++ {
		total += f.animals[i].Capacity
	}
	return total
}

func (e *Estate) satchelCapacity() int {
	if s, ok := e.catalog.TransportTypes[SatchelID]; ok {
		return s.Capacity
	}
	return 40
}

// Speed is the travel speed multiplier. The slowest animal sets the pace and
// paired vehicles slow it by their average; it never drops below 0.3. With no
// animals the slowest carrier decides.
func (e *Estate) Speed() float64 {
	if len(e.player.Transport) == 0 {
		return walkingSpeed
	}

	f := e.fleet()
	if len(f.animals) == 0 {
		speed := walkingSpeed
		for _, c := range f.carriers {
			speed = math.Min(speed, c.Speed)
		}
		return speed
	}

	speed := f.animals[0].Speed
	for _, a := range f.animals[1:] {
		speed = math.Min(speed, a.Speed)
	}
	if paired := min(len(f.animals), len(f.vehicles)); paired > 0 {
		sum := 0.0
		for _, v := range f.vehicles[:paired] {
			sum += v.Speed
		}
		speed *= sum / float64(paired)
	}
	return math.Max(minSpeed, speed)
}

func (e *Estate) countCategory(category string) int {
	n := 0
	for _, t := range e.player.Transport {
		if tt, ok := e.catalog.TransportTypes[t.Type]; ok && tt.Category == category {
			n++
		}
	}
	return n
}

// CanBuyVehicle reports whether a free animal is available to pull one more
// vehicle.
func (e *Estate) CanBuyVehicle() bool {
	return e.countCategory(CategoryAnimal) > e.countCategory(CategoryVehicle)
}

// CanSellAnimal reports whether an animal can go without stranding a vehicle.
func (e *Estate) CanSellAnimal() bool {
	return e.countCategory(CategoryAnimal) > e.countCategory(CategoryVehicle)
}

// TransportSummary aggregates the player's transport.
func (e *Estate) TransportSummary() TransportSummary {
	return TransportSummary{
		Animals:       e.countCategory(CategoryAnimal),
		Vehicles:      e.countCategory(CategoryVehicle),
		Carriers:      e.countCategory(CategoryCarrier),
		Capacity:      e.Capacity(),
		Speed:         e.Speed(),
		CanBuyVehicle: e.CanBuyVehicle(),
		CanSellAnimal: e.CanSellAnimal(),
	}
}

// BuyTransport purchases a transport type sold at a location.
func (e *Estate) BuyTransport(typeID, locationID string) (*types.Transport, bool) {
	tt, ok := e.catalog.TransportTypes[typeID]
	if !ok {
		return nil, e.fail("Unknown transport: %s", typeID)
	}
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil, e.fail("Unknown location: %s", locationID)
	}
	if !contains(lt.Transport, typeID) {
		return nil, e.fail("Nobody sells a %s in %s.", tt.Name, e.locationName(locationID))
	}
	if tt.Category == CategoryVehicle && !e.CanBuyVehicle() {
		return nil, e.fail("You need a free animal to pull a %s!", tt.Name)
	}

	price := e.TransportPrice(typeID, locationID)
	if !e.ledger.Remove(price, "transport_purchase") {
		return nil, e.fail("You need %d gold to buy a %s!", price, tt.Name)
	}

	t := &types.Transport{
		ID:            newID(),
		Type:          typeID,
		Category:      tt.Category,
		Sequence:      e.nextSequence(),
		PurchasePrice: price,
		PurchaseDay:   e.clock.Day(),
	}
	e.player.Transport = append(e.player.Transport, t)

	e.publish(eventbus.TransportPurchasedEvent{PlayerID: e.player.ID, TransportID: t.ID, Type: typeID, Price: price})
	e.say("Bought a %s for %d gold. Capacity is now %d, speed %.2fx.", tt.Name, price, e.Capacity(), e.Speed())
	return t, true
}

func (e *Estate) nextSequence() int {
	seq := 0
	for _, t := range e.player.Transport {
		seq = max(seq, t.Sequence)
	}
	return seq + 1
}

// SellTransport sells an owned transport for its fixed resale price.
func (e *Estate) SellTransport(transportID string) bool {
	var owned *types.Transport
	for _, t := range e.player.Transport {
		if t.ID == transportID {
			owned = t
			break
		}
	}
	if owned == nil {
		return e.fail("Invalid transport!")
	}
	tt, ok := e.catalog.TransportTypes[owned.Type]
	if !ok {
		return e.fail("Unknown transport: %s", owned.Type)
	}
	if owned.Type == SatchelID {
		return e.fail("You can't sell your only bag!")
	}
	if tt.Category == CategoryAnimal && !e.CanSellAnimal() {
		return e.fail("Your %s is needed to pull a vehicle. Sell the vehicle first.", tt.Name)
	}

	kept := make([]*types.Transport, 0, len(e.player.Transport))
	for _, t := range e.player.Transport {
		if t.ID != owned.ID {
			kept = append(kept, t)
		}
	}
	e.player.Transport = kept
	e.ledger.Add(tt.SellPrice, "transport_sale")

	e.publish(eventbus.TransportSoldEvent{PlayerID: e.player.ID, TransportID: owned.ID, Type: owned.Type, Price: tt.SellPrice})
	e.say("Sold your %s for %d gold.", tt.Name, tt.SellPrice)
	return true
}
