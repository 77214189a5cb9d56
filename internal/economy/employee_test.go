package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

func staff(h *harness, typeID string, wage, morale int) *types.Employee {
	emp := &types.Employee{
		ID:     typeID + "-" + string(rune('a'+len(h.player.Employees))),
		Name:   typeID,
		Type:   typeID,
		Wage:   wage,
		Morale: morale,
		Level:  1,
	}
	h.player.Employees = append(h.player.Employees, emp)
	return emp
}

func TestWeeklyWagesShortfallIsAtomic(t *testing.T) {
	h := newHarness(t, 100, "oakvale")
	worker := staff(h, "worker", 8, 75)
	farmer := staff(h, "farmer", 12, 75)

	require.Equal(t, 140, h.estate.WeeklyWages())
	require.True(t, h.estate.ProcessWeekly(1))

	assert.Equal(t, 100, h.player.Gold)
	assert.Equal(t, 55, worker.Morale)
	assert.Equal(t, 55, farmer.Morale)
	assert.Equal(t, 0, worker.Experience)
	assert.Equal(t, 0, h.player.Stats.TotalWagesPaid)
	assert.Len(t, h.bus.History(eventbus.EmployeeWagesMissed), 1)
	assert.Empty(t, h.bus.History(eventbus.EmployeeWagesPaid))
}

func TestWeeklyWagesPaid(t *testing.T) {
	h := newHarness(t, 500, "oakvale")
	fair := staff(h, "worker", 8, 75)
	generous := staff(h, "worker", 10, 98)
	stingy := staff(h, "farmer", 9, 50)

	require.True(t, h.estate.ProcessWeekly(1))

	assert.Equal(t, 500-(8+10+9)*7, h.player.Gold)
	assert.Equal(t, 75, fair.Morale)
	assert.Equal(t, 100, generous.Morale)
	assert.Equal(t, 40, stingy.Morale)
	assert.Equal(t, 1, fair.Experience)
	assert.Equal(t, 189, h.player.Stats.TotalWagesPaid)
}

func TestWeeklyWagesIdempotentPerWeek(t *testing.T) {
	h := newHarness(t, 500, "oakvale")
	staff(h, "worker", 8, 75)

	assert.True(t, h.estate.ProcessWeekly(1))
	assert.False(t, h.estate.ProcessWeekly(1))
	assert.Equal(t, 444, h.player.Gold)
}

func TestEmployeeLevelsUp(t *testing.T) {
	h := newHarness(t, 500, "oakvale")
	emp := staff(h, "worker", 8, 75)
	emp.Experience = 99

	require.True(t, h.estate.ProcessWeekly(1))
	assert.Equal(t, 2, emp.Level)
	assert.Equal(t, 0, emp.Experience)
	assert.Len(t, h.bus.History(eventbus.EmployeeLevelUp), 1)
}

func TestTurnoverEligibility(t *testing.T) {
	h := newHarness(t, 1000, "oakvale")
	unhappy := staff(h, "worker", 8, 19)
	borderline := staff(h, "worker", 8, 20)
	h.rng.rolls = []float64{0.0}

	require.True(t, h.estate.ProcessWeekly(1))

	assert.Equal(t, 1, h.rng.calls)
	require.Len(t, h.player.Employees, 1)
	assert.Same(t, borderline, h.player.Employees[0])
	assert.Equal(t, 1, h.player.Stats.EmployeesLost)

	quits := h.bus.History(eventbus.EmployeeQuit)
	require.Len(t, quits, 1)
	assert.Equal(t, unhappy.ID, quits[0].Data.(eventbus.EmployeeQuitEvent).EmployeeID)
}

func TestTurnoverRollAboveChanceStays(t *testing.T) {
	h := newHarness(t, 1000, "oakvale")
	staff(h, "worker", 8, 10)
	h.rng.rolls = []float64{0.3}

	require.True(t, h.estate.ProcessWeekly(1))
	assert.Len(t, h.player.Employees, 1)
}

func TestTurnoverUsesPostPaymentMorale(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	emp := staff(h, "worker", 8, 35)
	h.rng.rolls = []float64{0.1}

	require.True(t, h.estate.ProcessWeekly(1))

	assert.Equal(t, 15, emp.Morale)
	assert.Empty(t, h.player.Employees)
}

func TestQuittingReleasesAssignment(t *testing.T) {
	h := newHarness(t, 1000, "oakvale")
	farm := ownedProperty(h, "farm", 1, 100)
	emp := staff(h, "worker", 8, 5)
	require.True(t, h.estate.Assign(emp.ID, farm.ID))
	h.rng.rolls = []float64{0.0}

	require.True(t, h.estate.ProcessWeekly(1))

	assert.Empty(t, h.player.Employees)
	assert.Empty(t, farm.AssignedEmployees)
}

func TestHireRequiresWeekUpFront(t *testing.T) {
	h := newHarness(t, 55, "millbrook")

	_, ok := h.estate.HireType("worker", "millbrook")
	assert.False(t, ok)
	assert.Equal(t, 55, h.player.Gold)
	assert.Contains(t, h.lastMessage(), "56 gold")

	h.player.Gold = 56
	emp, ok := h.estate.HireType("worker", "millbrook")
	require.True(t, ok)
	assert.Equal(t, 0, h.player.Gold)
	assert.Equal(t, 75, emp.Morale)
	assert.Equal(t, 8, emp.Wage)
	assert.Equal(t, 1, emp.HiredDay)

	_, ok = h.estate.HireType("miner", "millbrook")
	assert.False(t, ok)
	assert.Contains(t, h.lastMessage(), "No miner")
}

func TestCandidatesByLocation(t *testing.T) {
	h := newHarness(t, 0, "oakvale")

	kinds := func(list []*types.Employee) []string {
		out := make([]string, 0, len(list))
		for _, e := range list {
			out = append(out, e.Type)
		}
		return out
	}
	assert.Equal(t, []string{"worker", "apprentice", "farmer"}, kinds(h.estate.Candidates("millbrook")))
	assert.Len(t, h.estate.Candidates("ironforge"), 8)
	for _, c := range h.estate.Candidates("oakvale") {
		assert.Equal(t, 75, c.Morale)
		assert.Equal(t, h.estate.Catalog().EmployeeTypes[c.Type].BaseWage, c.Wage)
	}
}

func TestAssignRespectsSlots(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	craftshop := ownedProperty(h, "craftshop", 1, 100)
	house := &types.Property{ID: "house-x", Type: "house", Level: 1, Condition: 100}
	h.player.Properties = append(h.player.Properties, house)

	a := staff(h, "craftsman", 18, 75)
	b := staff(h, "worker", 8, 75)
	c := staff(h, "worker", 8, 75)

	require.True(t, h.estate.Assign(a.ID, craftshop.ID))
	require.True(t, h.estate.Assign(b.ID, craftshop.ID))
	assert.False(t, h.estate.Assign(c.ID, craftshop.ID))
	assert.Contains(t, h.lastMessage(), "fully staffed")
	assert.False(t, h.estate.Assign(c.ID, house.ID))
	assert.False(t, h.estate.Assign(a.ID, craftshop.ID))

	require.True(t, h.estate.Unassign(b.ID))
	require.True(t, h.estate.Assign(c.ID, craftshop.ID))
	assert.Equal(t, []string{a.ID, c.ID}, craftshop.AssignedEmployees)
	assert.Len(t, h.estate.EmployeesAt(craftshop.ID), 2)
}

func TestAssignRejectsConstructionSite(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	farm := ownedProperty(h, "farm", 1, 0)
	farm.UnderConstruction = true
	emp := staff(h, "farmer", 12, 75)

	assert.False(t, h.estate.Assign(emp.ID, farm.ID))
	assert.Empty(t, emp.AssignedTo)
}

func TestFireUnassigns(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	farm := ownedProperty(h, "farm", 1, 100)
	emp := staff(h, "farmer", 12, 75)
	require.True(t, h.estate.Assign(emp.ID, farm.ID))

	require.True(t, h.estate.Fire(emp.ID))
	assert.Empty(t, h.player.Employees)
	assert.Empty(t, farm.AssignedEmployees)
	assert.False(t, h.estate.Fire(emp.ID))
}

func TestAdjustWage(t *testing.T) {
	h := newHarness(t, 0, "oakvale")
	emp := staff(h, "merchant", 15, 75)

	require.True(t, h.estate.AdjustWage(emp.ID, 16))
	assert.Equal(t, 85, emp.Morale)

	require.True(t, h.estate.AdjustWage(emp.ID, 10))
	assert.Equal(t, 85, emp.Morale)

	require.True(t, h.estate.AdjustWage(emp.ID, 9))
	assert.Equal(t, 70, emp.Morale)
	assert.Equal(t, 9, emp.Wage)

	assert.False(t, h.estate.AdjustWage(emp.ID, 0))
	assert.Equal(t, 9, emp.Wage)
}
