package economy

import (
	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

const (
	missedWageMoralePenalty = 20
	quitMoraleThreshold     = 20
	quitChance              = 0.3
	highWageRatio           = 1.2
	lowWageRatio            = 0.8
	wageRaiseMorale         = 10
	wageCutMorale           = 15
	wageCutTolerance        = 5
	maxMorale               = 100
)

// Employees returns the player's staff.
func (e *Estate) Employees() []*types.Employee {
	return e.player.Employees
}

// Employee finds a hired employee by id.
func (e *Estate) Employee(id string) (*types.Employee, bool) {
	for _, emp := range e.player.Employees {
		if emp.ID == id {
			return emp, true
		}
	}
	return nil, false
}

// EmployeesAt lists the staff assigned to a property.
func (e *Estate) EmployeesAt(propertyID string) []*types.Employee {
	var out []*types.Employee
	for _, emp := range e.player.Employees {
		if emp.AssignedTo == propertyID {
			out = append(out, emp)
		}
	}
	return out
}

// Candidates generates one hireable applicant per role offered at a location.
func (e *Estate) Candidates(locationID string) []*types.Employee {
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil
	}
	out := make([]*types.Employee, 0, len(lt.Employees))
	for _, typeID := range lt.Employees {
		if c := e.newCandidate(typeID); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (e *Estate) newCandidate(typeID string) *types.Employee {
	et, ok := e.catalog.EmployeeTypes[typeID]
	if !ok {
		return nil
	}

	skills := make(map[string]int, len(et.Skills))
	for _, s := range et.Skills {
		skills[s] = 1 + e.rng.Intn(3)
	}

	name := et.Name
	if len(e.catalog.Names) > 0 {
		name = e.catalog.Names[e.rng.Intn(len(e.catalog.Names))]
	}
	trait := ""
	if len(e.catalog.Traits) > 0 && e.rng.Float64() < 0.5 {
		trait = e.catalog.Traits[e.rng.Intn(len(e.catalog.Traits))]
	}

	return &types.Employee{
		ID:     newID(),
		Name:   name,
		Type:   typeID,
		Wage:   et.BaseWage,
		Morale: startingMorale,
		Level:  1,
		Skills: skills,
		Trait:  trait,
	}
}

// HireType hires a fresh applicant of the given role at a location.
func (e *Estate) HireType(typeID, locationID string) (*types.Employee, bool) {
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil, e.fail("Unknown location: %s", locationID)
	}
	if !contains(lt.Employees, typeID) {
		return nil, e.fail("No %s is looking for work in %s.", typeID, e.locationName(locationID))
	}
	c := e.newCandidate(typeID)
	if c == nil {
		return nil, e.fail("Unknown employee type: %s", typeID)
	}
	if !e.Hire(c) {
		return nil, false
	}
	return c, true
}

// Hire takes on a candidate, paying the first week's wage up front.
func (e *Estate) Hire(candidate *types.Employee) bool {
	if candidate == nil {
		return e.fail("Invalid candidate!")
	}
	if _, ok := e.catalog.EmployeeTypes[candidate.Type]; !ok {
		return e.fail("Unknown employee type: %s", candidate.Type)
	}
	if _, exists := e.Employee(candidate.ID); exists {
		return e.fail("%s already works for you.", candidate.Name)
	}

	upfront := candidate.Wage * DaysPerWeek
	if !e.ledger.Remove(upfront, "employee_hire") {
		return e.fail("You need %d gold to hire %s (one week's wages up front)!", upfront, candidate.Name)
	}

	if candidate.Level == 0 {
		candidate.Level = 1
	}
	candidate.AssignedTo = ""
	candidate.HiredDay = e.clock.Day()
	e.player.Employees = append(e.player.Employees, candidate)

	e.publish(eventbus.EmployeeHiredEvent{
		PlayerID:   e.player.ID,
		EmployeeID: candidate.ID,
		Name:       candidate.Name,
		Type:       candidate.Type,
		Wage:       candidate.Wage,
	})
	e.say("Hired %s the %s for %d gold/day.", candidate.Name, candidate.Type, candidate.Wage)
	return true
}

// Fire lets an employee go.
func (e *Estate) Fire(employeeID string) bool {
	emp, ok := e.Employee(employeeID)
	if !ok {
		return e.fail("Invalid employee!")
	}

	if emp.AssignedTo != "" {
		e.Unassign(emp.ID)
	}
	e.removeEmployee(emp.ID)

	e.publish(eventbus.EmployeeFiredEvent{PlayerID: e.player.ID, EmployeeID: emp.ID, Name: emp.Name})
	e.say("%s has been let go.", emp.Name)
	return true
}

func (e *Estate) removeEmployee(id string) {
	kept := make([]*types.Employee, 0, len(e.player.Employees))
	for _, emp := range e.player.Employees {
		if emp.ID != id {
			kept = append(kept, emp)
		}
	}
	e.player.Employees = kept
}

// Assign puts an employee to work at a property, moving them if they were
// working elsewhere.
func (e *Estate) Assign(employeeID, propertyID string) bool {
	emp, ok := e.Employee(employeeID)
	if !ok {
		return e.fail("Invalid employee!")
	}
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	if emp.AssignedTo == p.ID {
		return e.fail("%s already works at your %s.", emp.Name, pt.Name)
	}
	if p.UnderConstruction {
		return e.fail("Your %s is still under construction.", pt.Name)
	}
	if pt.Slots() == 0 {
		return e.fail("A %s has no room for employees.", pt.Name)
	}
	if len(p.AssignedEmployees) >= pt.Slots() {
		return e.fail("Your %s is fully staffed (%d/%d).", pt.Name, len(p.AssignedEmployees), pt.Slots())
	}

	if emp.AssignedTo != "" {
		e.Unassign(emp.ID)
	}
	emp.AssignedTo = p.ID
	p.AssignedEmployees = append(p.AssignedEmployees, emp.ID)

	e.publish(eventbus.EmployeeAssignedEvent{PlayerID: e.player.ID, EmployeeID: emp.ID, PropertyID: p.ID})
	e.say("%s now works at your %s.", emp.Name, pt.Name)
	return true
}

// Unassign releases an employee from their property.
func (e *Estate) Unassign(employeeID string) bool {
	emp, ok := e.Employee(employeeID)
	if !ok {
		return e.fail("Invalid employee!")
	}
	if emp.AssignedTo == "" {
		return e.fail("%s is not assigned anywhere.", emp.Name)
	}

	propertyID := emp.AssignedTo
	emp.AssignedTo = ""
	if p, ok := e.Property(propertyID); ok {
		kept := make([]string, 0, len(p.AssignedEmployees))
		for _, id := range p.AssignedEmployees {
			if id != emp.ID {
				kept = append(kept, id)
			}
		}
		p.AssignedEmployees = kept
	}

	e.publish(eventbus.EmployeeUnassignedEvent{PlayerID: e.player.ID, EmployeeID: emp.ID, PropertyID: propertyID})
	return true
}

// AdjustWage changes an employee's daily wage. Paying above the role's base
// wage lifts morale; cutting well below it hurts.
func (e *Estate) AdjustWage(employeeID string, wage int) bool {
	emp, ok := e.Employee(employeeID)
	if !ok {
		return e.fail("Invalid employee!")
	}
	if wage < 1 {
		return e.fail("Wage must be at least 1 gold.")
	}
	et, ok := e.catalog.EmployeeTypes[emp.Type]
	if !ok {
		return e.fail("Unknown employee type: %s", emp.Type)
	}

	old := emp.Wage
	emp.Wage = wage
	switch {
	case wage > et.BaseWage:
		emp.Morale = min(maxMorale, emp.Morale+wageRaiseMorale)
	case wage < et.BaseWage-wageCutTolerance:
		emp.Morale = max(0, emp.Morale-wageCutMorale)
	}

	e.publish(eventbus.WageAdjustedEvent{
		PlayerID:   e.player.ID,
		EmployeeID: emp.ID,
		OldWage:    old,
		NewWage:    wage,
		Morale:     emp.Morale,
	})
	e.say("%s's wage is now %d gold/day (morale %d).", emp.Name, wage, emp.Morale)
	return true
}

// WeeklyWages is what the whole staff costs per week.
func (e *Estate) WeeklyWages() int {
	total := 0
	for _, emp := range e.player.Employees {
		total += emp.Wage * DaysPerWeek
	}
	return total
}

// ProcessWeekly pays the staff, then lets unhappy employees quit. It runs at
// most once per week and reports whether it ran.
func (e *Estate) ProcessWeekly(week int) bool {
	if week <= e.player.LastWageWeek {
		return false
	}
	e.player.LastWageWeek = week

	if len(e.player.Employees) == 0 {
		return true
	}

	total := e.WeeklyWages()
	if e.ledger.Remove(total, "employee_wages") {
		e.player.Stats.TotalWagesPaid += total
		for _, emp := range e.player.Employees {
			e.applyWageSatisfaction(emp)
		}
		e.publish(eventbus.WagesPaidEvent{
			PlayerID:  e.player.ID,
			Week:      week,
			Total:     total,
			Employees: len(e.player.Employees),
		})
	} else {
		for _, emp := range e.player.Employees {
			emp.Morale = max(0, emp.Morale-missedWageMoralePenalty)
		}
		e.publish(eventbus.WagesMissedEvent{
			PlayerID:  e.player.ID,
			Week:      week,
			Owed:      total,
			Available: e.ledger.Gold(),
		})
		e.say("Couldn't pay %d gold in wages! Employee morale has dropped.", total)
		e.logger.Warn("Wages missed", zap.Int("owed", total), zap.Int("gold", e.ledger.Gold()))
	}

	e.processTurnover()
	return true
}

func (e *Estate) applyWageSatisfaction(emp *types.Employee) {
	if et, ok := e.catalog.EmployeeTypes[emp.Type]; ok && et.BaseWage > 0 {
		ratio := float64(emp.Wage) / float64(et.BaseWage)
		switch {
		case ratio >= highWageRatio:
			emp.Morale = min(maxMorale, emp.Morale+5)
		case ratio < lowWageRatio:
			emp.Morale = max(0, emp.Morale-10)
		}
	}

	if emp.Level < 1 {
		emp.Level = 1
	}
	emp.Experience++
	if emp.Experience >= emp.Level*100 {
		emp.Experience = 0
		emp.Level++
		e.publish(eventbus.EmployeeLevelUpEvent{PlayerID: e.player.ID, EmployeeID: emp.ID, Level: emp.Level})
		e.say("%s reached level %d!", emp.Name, emp.Level)
	}
}

// processTurnover rolls for every employee below the morale threshold and
// swaps in the list of those who stayed.
func (e *Estate) processTurnover() {
	survivors := make([]*types.Employee, 0, len(e.player.Employees))
	var quitters []*types.Employee
	for _, emp := range e.player.Employees {
		if emp.Morale < quitMoraleThreshold && e.rng.Float64() < quitChance {
			quitters = append(quitters, emp)
			continue
		}
		survivors = append(survivors, emp)
	}

	for _, emp := range quitters {
		if emp.AssignedTo != "" {
			e.Unassign(emp.ID)
		}
	}
	e.player.Employees = survivors

	for _, emp := range quitters {
		e.player.Stats.EmployeesLost++
		e.publish(eventbus.EmployeeQuitEvent{PlayerID: e.player.ID, EmployeeID: emp.ID, Name: emp.Name, Morale: emp.Morale})
		e.say("%s quit due to low morale!", emp.Name)
	}
}
