package economy

import (
	"math"

	"github.com/user/medieval-trader/internal/eventbus"
)

// TravelDays is how long the road from the player's location to dest takes
// at the player's current speed, or -1 when there is no direct road.
func (e *Estate) TravelDays(dest string) int {
	from, ok := e.catalog.Locations[e.player.Location]
	if !ok {
		return -1
	}
	base, ok := from.Connections[dest]
	if !ok {
		return -1
	}
	return max(1, int(math.Ceil(float64(base)/e.Speed())))
}

// Travel moves the player along a direct road. Carried load above transport
// capacity blocks the trip.
func (e *Estate) Travel(dest string) bool {
	if _, ok := e.catalog.Locations[dest]; !ok {
		return e.fail("Unknown location: %s", dest)
	}
	if dest == e.player.Location {
		return e.fail("You are already in %s.", e.locationName(dest))
	}
	days := e.TravelDays(dest)
	if days < 0 {
		return e.fail("There is no road from %s to %s.", e.locationName(e.player.Location), e.locationName(dest))
	}
	if load, capacity := e.ledger.Load(), e.Capacity(); load > capacity {
		return e.fail("You are overloaded (%d/%d). Store or sell goods before travelling.", load, capacity)
	}

	from := e.player.Location
	e.player.Location = dest
	e.player.Stats.DaysTravelled += days

	e.publish(eventbus.LocationChangedEvent{PlayerID: e.player.ID, From: from, To: dest})
	e.say("Travelled from %s to %s in %d day(s).", e.locationName(from), e.locationName(dest), days)
	return true
}
