package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

func ownedProperty(h *harness, typeID string, level, condition int, upgrades ...string) *types.Property {
	p := &types.Property{
		ID:                typeID + "-1",
		Type:              typeID,
		Location:          h.player.Location,
		Acquisition:       AcquireBuy,
		Level:             level,
		Condition:         condition,
		Upgrades:          upgrades,
		Storage:           map[string]int{},
		AssignedEmployees: []string{},
	}
	h.player.Properties = append(h.player.Properties, p)
	return p
}

func TestDailyIncomeFormula(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	// farm: base income 20, maintenance 10; expansion adds x1.2 income
	farm := ownedProperty(h, "farm", 2, 80, "expansion")

	report := h.estate.DailyIncome(farm)
	assert.InDelta(t, 23.04, report.Gross, 1e-9)
	assert.Equal(t, 2, report.Tax)
	assert.Equal(t, 11, report.Net)

	require.True(t, h.estate.ProcessDaily(1))
	assert.Equal(t, 11, h.player.Gold)
	assert.Equal(t, 79, farm.Condition)
	assert.Equal(t, 11, farm.TotalIncome)
	assert.Equal(t, 11, h.player.Stats.TotalIncome)

	income := h.bus.History(eventbus.PropertyIncome)
	require.Len(t, income, 1)
	assert.Equal(t, 11, income[0].Data.(eventbus.PropertyIncomeEvent).Net)
}

func TestDailyIncomeIsIdempotentPerDay(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	ownedProperty(h, "farm", 2, 80, "expansion")

	assert.True(t, h.estate.ProcessDaily(1))
	assert.False(t, h.estate.ProcessDaily(1))
	assert.False(t, h.estate.ProcessDaily(0))
	assert.Equal(t, 11, h.player.Gold)
}

func TestNegativeNetIsAbsorbedAndConditionFloors(t *testing.T) {
	h := newHarness(t, 50, "oakvale")
	// house at the floor: gross 1, maintenance 2, tax 0
	house := ownedProperty(h, "house", 1, 20)

	require.True(t, h.estate.ProcessDaily(1))
	assert.Equal(t, 50, h.player.Gold)
	assert.Equal(t, 20, house.Condition)
	assert.Equal(t, -1, house.LastIncome)
}

func TestDecayNeverRaisesCondition(t *testing.T) {
	h := newHarness(t, 50, "oakvale")
	worn := ownedProperty(h, "house", 1, 10)

	require.True(t, h.estate.ProcessDaily(1))
	assert.Equal(t, 10, worn.Condition)

	worn.Condition = 21
	require.True(t, h.estate.ProcessDaily(2))
	assert.Equal(t, 20, worn.Condition)
	require.True(t, h.estate.ProcessDaily(3))
	assert.Equal(t, 20, worn.Condition)
}

func TestMaintenanceReduction(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	warehouse := ownedProperty(h, "warehouse", 1, 100, "security")

	report := h.estate.DailyIncome(warehouse)
	assert.InDelta(t, 8.0, report.Gross, 1e-9)
	assert.InDelta(t, 10.5, report.Maintenance, 1e-9)
	assert.Equal(t, 1, report.Tax)
	assert.Equal(t, -3, report.Net)
}

func TestPriceByLocationAndAcquisition(t *testing.T) {
	h := newHarness(t, 0, "oakvale")

	tests := []struct {
		typeID      string
		location    string
		acquisition string
		want        int
	}{
		{"house", "millbrook", AcquireBuy, 800},
		{"house", "oakvale", AcquireBuy, 1000},
		{"shop", "ironforge", AcquireBuy, 3250},
		{"mine", "royal_capital", AcquireBuy, 12000},
		{"tavern", "sunhaven", AcquireRent, 1200},
		{"craftshop", "oakvale", AcquireBuild, 1750},
		{"unknown", "oakvale", AcquireBuy, 0},
	}
	for _, tt := range tests {
		t.Run(tt.typeID+"/"+tt.location+"/"+tt.acquisition, func(t *testing.T) {
			assert.Equal(t, tt.want, h.estate.Price(tt.typeID, tt.location, tt.acquisition))
		})
	}

	assert.Equal(t, 250, h.estate.WeeklyRent("shop", "oakvale"))
	assert.Equal(t, 2, h.estate.ProjectedIncome("house"))
}

func TestAvailableByLocationType(t *testing.T) {
	h := newHarness(t, 0, "oakvale")

	ids := func(list []*PropertyType) []string {
		out := make([]string, 0, len(list))
		for _, pt := range list {
			out = append(out, pt.ID)
		}
		return out
	}
	assert.Equal(t, []string{"house", "farm", "market_stall"}, ids(h.estate.Available("millbrook")))
	assert.Equal(t, []string{"house", "shop", "warehouse", "tavern", "craftshop"}, ids(h.estate.Available("oakvale")))
	assert.Contains(t, ids(h.estate.Available("ironforge")), "mine")
	assert.Nil(t, h.estate.Available("atlantis"))
}

func TestAcquireBuy(t *testing.T) {
	h := newHarness(t, 1500, "oakvale")

	prop, ok := h.estate.Acquire("house", "oakvale", AcquireBuy)
	require.True(t, ok)
	assert.Equal(t, 500, h.player.Gold)
	assert.Equal(t, 1, prop.Level)
	assert.Equal(t, 100, prop.Condition)
	assert.False(t, prop.UnderConstruction)
	assert.Equal(t, 1000, prop.PurchasePrice)
	assert.Len(t, h.bus.History(eventbus.PropertyPurchased), 1)
	assert.Contains(t, h.lastMessage(), "Purchased a House")
}

func TestAcquireRejections(t *testing.T) {
	tests := []struct {
		name        string
		gold        int
		typeID      string
		location    string
		acquisition string
		message     string
	}{
		{"unknown type", 10000, "castle", "oakvale", AcquireBuy, "Invalid property type"},
		{"unknown acquisition", 10000, "house", "oakvale", "steal", "Unknown acquisition"},
		{"not offered here", 10000, "mine", "oakvale", AcquireBuy, "cannot be acquired"},
		{"no road access", 10000, "house", "millbrook", AcquireBuy, "No road access"},
		{"insufficient funds", 999, "house", "oakvale", AcquireBuy, "You need 1000 gold"},
		{"missing materials", 10000, "house", "oakvale", AcquireBuild, "Missing materials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.gold, "oakvale")

			_, ok := h.estate.Acquire(tt.typeID, tt.location, tt.acquisition)
			assert.False(t, ok)
			assert.Equal(t, tt.gold, h.player.Gold)
			assert.Empty(t, h.player.Properties)
			assert.Contains(t, h.lastMessage(), tt.message)
		})
	}
}

func TestAcquireDuplicateAtSameLocation(t *testing.T) {
	h := newHarness(t, 5000, "oakvale")

	_, ok := h.estate.Acquire("house", "oakvale", AcquireBuy)
	require.True(t, ok)
	_, ok = h.estate.Acquire("house", "oakvale", AcquireBuy)
	assert.False(t, ok)
	assert.Contains(t, h.lastMessage(), "already own")
	assert.Equal(t, 4000, h.player.Gold)
}

func TestOwnedPropertyGrantsRoadAccess(t *testing.T) {
	h := newHarness(t, 5000, "oakvale")

	assert.False(t, h.estate.HasRoadAccess("millbrook"))
	_, ok := h.estate.Acquire("house", "oakvale", AcquireBuy)
	require.True(t, ok)
	assert.True(t, h.estate.HasRoadAccess("millbrook"))
}

func TestBuildCompletesConstruction(t *testing.T) {
	h := newHarness(t, 1000, "oakvale")
	h.player.Inventory["wood"] = 25
	h.player.Inventory["stone"] = 10

	prop, ok := h.estate.Acquire("house", "oakvale", AcquireBuild)
	require.True(t, ok)
	assert.Equal(t, 500, h.player.Gold)
	assert.Equal(t, 5, h.player.Inventory["wood"])
	assert.Equal(t, 0, h.player.Inventory["stone"])
	assert.True(t, prop.UnderConstruction)
	assert.Equal(t, 0, prop.Condition)
	assert.Equal(t, 4, prop.ConstructionEndDay)

	require.True(t, h.estate.ProcessDaily(3))
	assert.True(t, prop.UnderConstruction)
	assert.Equal(t, 500, h.player.Gold)

	require.True(t, h.estate.ProcessDaily(4))
	assert.False(t, prop.UnderConstruction)
	assert.Equal(t, 99, prop.Condition)
	assert.Equal(t, 502, h.player.Gold)
	assert.Len(t, h.bus.History(eventbus.PropertyConstructionComplete), 1)
}

func TestRentIsChargedWeeklyAndRepossessed(t *testing.T) {
	h := newHarness(t, 1000, "oakvale")
	h.player.Inventory["wood"] = 3

	prop, ok := h.estate.Acquire("shop", "oakvale", AcquireRent)
	require.True(t, ok)
	assert.Equal(t, 500, h.player.Gold)
	assert.Equal(t, 250, prop.WeeklyRent)
	require.True(t, h.estate.Store(prop.ID, "wood", 3))

	require.True(t, h.estate.ProcessRent(1))
	assert.Equal(t, 250, h.player.Gold)
	assert.False(t, h.estate.ProcessRent(1))

	require.True(t, h.estate.ProcessRent(2))
	assert.Equal(t, 0, h.player.Gold)

	require.True(t, h.estate.ProcessRent(3))
	assert.Empty(t, h.player.Properties)
	assert.Equal(t, 3, h.player.Inventory["wood"])
	assert.Len(t, h.bus.History(eventbus.PropertyRepossessed), 1)
	assert.Len(t, h.bus.History(eventbus.PropertyRentPaid), 2)
}

func TestUpgradeOnce(t *testing.T) {
	h := newHarness(t, 2000, "oakvale")
	shop := ownedProperty(h, "shop", 1, 100)

	require.True(t, h.estate.Upgrade(shop.ID, "expansion"))
	assert.Equal(t, 750, h.player.Gold)
	assert.Equal(t, 1250, shop.UpgradeCosts)

	assert.False(t, h.estate.Upgrade(shop.ID, "expansion"))
	assert.Contains(t, h.lastMessage(), "already has")
	assert.False(t, h.estate.Upgrade(shop.ID, "moat"))
	assert.False(t, h.estate.Upgrade("nope", "security"))
	assert.Equal(t, 750, h.player.Gold)
}

func TestUpgradeLevel(t *testing.T) {
	h := newHarness(t, 5000, "oakvale")
	house := ownedProperty(h, "house", 1, 100)

	require.True(t, h.estate.UpgradeLevel(house.ID))
	assert.Equal(t, 2, house.Level)
	assert.Equal(t, 4500, h.player.Gold)

	require.True(t, h.estate.UpgradeLevel(house.ID))
	assert.Equal(t, 3500, h.player.Gold)

	house.Level = MaxPropertyLevel
	assert.False(t, h.estate.UpgradeLevel(house.ID))
}

func TestRepair(t *testing.T) {
	h := newHarness(t, 250, "oakvale")
	warehouse := ownedProperty(h, "warehouse", 1, 50)

	assert.Equal(t, 200, h.estate.RepairCost(warehouse))
	require.True(t, h.estate.Repair(warehouse.ID))
	assert.Equal(t, 100, warehouse.Condition)
	assert.Equal(t, 50, h.player.Gold)

	assert.False(t, h.estate.Repair(warehouse.ID))
	assert.Contains(t, h.lastMessage(), "doesn't need repairs")
}

func TestSellReturnsHalfOfInvestment(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	shop := ownedProperty(h, "shop", 2, 100, "security")
	shop.PurchasePrice = 2500
	shop.UpgradeCosts = 750
	shop.Storage["grain"] = 4

	emp := &types.Employee{ID: "emp-1", Name: "Ivo", Type: "merchant", Wage: 15, Morale: 75, Level: 1, AssignedTo: shop.ID}
	h.player.Employees = append(h.player.Employees, emp)
	shop.AssignedEmployees = []string{emp.ID}

	assert.Equal(t, 2250, h.estate.SellValue(shop))
	require.True(t, h.estate.Sell(shop.ID))

	assert.Equal(t, 2250, h.player.Gold)
	assert.Empty(t, h.player.Properties)
	assert.Empty(t, emp.AssignedTo)
	assert.Equal(t, 4, h.player.Inventory["grain"])
	assert.Equal(t, 1, h.player.Stats.PropertiesSold)
}

func TestAbandonPaysNothing(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	house := ownedProperty(h, "house", 1, 100)

	require.True(t, h.estate.Abandon(house.ID))
	assert.Equal(t, 0, h.player.Gold)
	assert.Empty(t, h.player.Properties)
	assert.Len(t, h.bus.History(eventbus.PropertyAbandoned), 1)
}
