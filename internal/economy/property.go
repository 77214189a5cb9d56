package economy

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/eventbus"
	"github.com/user/medieval-trader/internal/types"
)

// MaxPropertyLevel caps UpgradeLevel.
const MaxPropertyLevel = 5

// Available lists the property types offered at a location.
func (e *Estate) Available(locationID string) []*PropertyType {
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil
	}
	out := make([]*PropertyType, 0, len(lt.Properties))
	for _, id := range lt.Properties {
		out = append(out, e.catalog.PropertyTypes[id])
	}
	return out
}

// Price is what acquiring typeID at locationID costs up front. Unknown types
// cost 0.
func (e *Estate) Price(typeID, locationID, acquisition string) int {
	pt, ok := e.catalog.PropertyTypes[typeID]
	if !ok {
		return 0
	}
	price := float64(pt.BasePrice) * e.locationModifier(locationID)
	if mod, ok := acquisitionModifiers[acquisition]; ok {
		price *= mod
	}
	return roundInt(price)
}

// WeeklyRent is the rent owed each week on a rented property.
func (e *Estate) WeeklyRent(typeID, locationID string) int {
	return roundInt(float64(e.Price(typeID, locationID, AcquireBuy)) * rentRatio)
}

func (e *Estate) locationModifier(locationID string) float64 {
	if lt, ok := e.catalog.LocationTypeOf(locationID); ok && lt.PropertyModifier > 0 {
		return lt.PropertyModifier
	}
	return 1.0
}

// ProjectedIncome is the undamaged level-1 daily net of a property type.
func (e *Estate) ProjectedIncome(typeID string) int {
	pt, ok := e.catalog.PropertyTypes[typeID]
	if !ok {
		return 0
	}
	tax := roundInt(float64(pt.BaseIncome) * taxRate)
	return max(0, pt.BaseIncome-pt.Maintenance-tax)
}

// HasRoadAccess reports whether the player may acquire property at a
// location: the capital always qualifies, as does a location where the player
// already owns property or one connected to such a location or to a capital.
func (e *Estate) HasRoadAccess(locationID string) bool {
	loc, ok := e.catalog.Locations[locationID]
	if !ok {
		return false
	}
	if loc.Type == "capital" || e.ownsAt(locationID) {
		return true
	}
	for connected := range loc.Connections {
		if e.ownsAt(connected) {
			return true
		}
		if c, ok := e.catalog.Locations[connected]; ok && c.Type == "capital" {
			return true
		}
	}
	return false
}

func (e *Estate) ownsAt(locationID string) bool {
	for _, p := range e.player.Properties {
		if p.Location == locationID {
			return true
		}
	}
	return false
}

// Properties returns the player's properties.
func (e *Estate) Properties() []*types.Property {
	return e.player.Properties
}

// Property finds an owned property by id.
func (e *Estate) Property(id string) (*types.Property, bool) {
	for _, p := range e.player.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Acquire buys, rents or starts building a property at a location.
func (e *Estate) Acquire(typeID, locationID, acquisition string) (*types.Property, bool) {
	pt, ok := e.catalog.PropertyTypes[typeID]
	if !ok {
		return nil, e.fail("Invalid property type: %s", typeID)
	}
	if _, ok := acquisitionModifiers[acquisition]; !ok {
		return nil, e.fail("Unknown acquisition type: %s (use buy, rent or build)", acquisition)
	}
	lt, ok := e.catalog.LocationTypeOf(locationID)
	if !ok {
		return nil, e.fail("Unknown location: %s", locationID)
	}
	if !contains(lt.Properties, typeID) {
		return nil, e.fail("A %s cannot be acquired in a %s.", pt.Name, lt.ID)
	}
	for _, p := range e.player.Properties {
		if p.Type == typeID && p.Location == locationID {
			return nil, e.fail("You already own a %s in %s!", pt.Name, e.locationName(locationID))
		}
	}
	if !e.HasRoadAccess(locationID) {
		return nil, e.fail("No road access to %s. Own property nearby or trade from the capital first.", e.locationName(locationID))
	}

	price := e.Price(typeID, locationID, acquisition)
	if !e.ledger.CanAfford(price) {
		return nil, e.fail("You need %d gold to %s a %s!", price, acquisition, pt.Name)
	}
	if acquisition == AcquireBuild {
		if missing := e.ledger.Missing(pt.Materials); len(missing) > 0 {
			return nil, e.fail("Missing materials to build: %s", strings.Join(missing, ", "))
		}
	}

	e.ledger.Remove(price, "property_"+acquisition)
	if acquisition == AcquireBuild {
		for _, item := range sortedKeys(pt.Materials) {
			e.ledger.RemoveItem(item, pt.Materials[item], "property_build")
		}
	}

	today := e.clock.Day()
	prop := &types.Property{
		ID:                newID(),
		Type:              typeID,
		Location:          locationID,
		Acquisition:       acquisition,
		Level:             1,
		Condition:         maxCondition,
		Upgrades:          []string{},
		PurchasePrice:     price,
		PurchaseDay:       today,
		Storage:           make(map[string]int),
		AssignedEmployees: []string{},
	}
	switch acquisition {
	case AcquireBuild:
		prop.UnderConstruction = true
		prop.Condition = 0
		prop.ConstructionEndDay = today + max(1, pt.ConstructionDays)
	case AcquireRent:
		prop.WeeklyRent = e.WeeklyRent(typeID, locationID)
	}
	e.player.Properties = append(e.player.Properties, prop)

	e.publish(eventbus.PropertyPurchasedEvent{
		PlayerID:    e.player.ID,
		PropertyID:  prop.ID,
		Type:        typeID,
		Location:    locationID,
		Acquisition: acquisition,
		Price:       price,
	})
	e.logger.Info("Property acquired",
		zap.String("type", typeID),
		zap.String("location", locationID),
		zap.String("acquisition", acquisition),
		zap.Int("price", price))

	switch acquisition {
	case AcquireBuild:
		e.say("Started building a %s in %s! Ready in %d days.", pt.Name, e.locationName(locationID), prop.ConstructionEndDay-today)
	case AcquireRent:
		e.say("Rented a %s in %s for a %d gold deposit + %d/week!", pt.Name, e.locationName(locationID), price, prop.WeeklyRent)
	default:
		e.say("Purchased a %s in %s for %d gold!", pt.Name, e.locationName(locationID), price)
	}
	return prop, true
}

// IncomeReport breaks down one property's daily yield.
type IncomeReport struct {
	Gross       float64
	Maintenance float64
	Tax         int
	Net         int
}

// DailyIncome computes a property's yield without applying it.
func (e *Estate) DailyIncome(p *types.Property) IncomeReport {
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return IncomeReport{}
	}

	gross := float64(pt.BaseIncome) * (1 + 0.2*float64(p.Level-1))
	maintenance := float64(pt.Maintenance)
	for _, id := range p.Upgrades {
		u, ok := e.catalog.Upgrades[id]
		if !ok {
			continue
		}
		if u.IncomeBonus > 0 {
			gross *= u.IncomeBonus
		}
		if u.MaintenanceReduction > 0 {
			maintenance *= 1 - u.MaintenanceReduction
		}
	}
	gross *= float64(p.Condition) / 100

	tax := roundInt(gross * taxRate)
	return IncomeReport{
		Gross:       gross,
		Maintenance: maintenance,
		Tax:         tax,
		Net:         roundInt(gross - maintenance - float64(tax)),
	}
}

// ProcessDaily completes finished constructions and pays out every usable
// property. It runs at most once per day and reports whether it ran.
func (e *Estate) ProcessDaily(day int) bool {
	if day <= e.player.LastIncomeDay {
		return false
	}
	e.player.LastIncomeDay = day

	for _, p := range e.player.Properties {
		if p.UnderConstruction && day >= p.ConstructionEndDay {
			p.UnderConstruction = false
			p.Condition = maxCondition
			e.publish(eventbus.ConstructionCompleteEvent{PlayerID: e.player.ID, PropertyID: p.ID, Type: p.Type})
			e.say("Construction of your %s in %s is complete!", e.propertyName(p), e.locationName(p.Location))
		}
	}

	var (
		gross       float64
		maintenance float64
		tax         int
		net         int
		credited    int
	)
	for _, p := range e.player.Properties {
		if p.UnderConstruction {
			continue
		}
		r := e.DailyIncome(p)
		gross += r.Gross
		maintenance += r.Maintenance
		tax += r.Tax
		net += r.Net

		p.LastIncome = r.Net
		p.TotalIncome += r.Net
		credited += max(0, r.Net)
		if p.Condition > minCondition {
			p.Condition--
		}
	}

	if credited > 0 {
		e.ledger.Add(credited, "property_income")
		e.player.Stats.TotalIncome += credited
	}
	e.publish(eventbus.PropertyIncomeEvent{
		PlayerID:    e.player.ID,
		Day:         day,
		Income:      roundInt(gross),
		Maintenance: roundInt(maintenance),
		Tax:         tax,
		Net:         net,
	})
	return true
}

// Upgrade installs a one-time upgrade on a property.
func (e *Estate) Upgrade(propertyID, upgradeID string) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	u, ok := e.catalog.Upgrades[upgradeID]
	if !ok {
		return e.fail("Unknown upgrade: %s", upgradeID)
	}
	if p.HasUpgrade(upgradeID) {
		return e.fail("Your %s already has the %s upgrade.", pt.Name, u.Name)
	}
	if p.UnderConstruction {
		return e.fail("Your %s is still under construction.", pt.Name)
	}

	cost := u.Cost(pt)
	if !e.ledger.Remove(cost, "property_upgrade") {
		return e.fail("You need %d gold for the %s upgrade!", cost, u.Name)
	}
	p.Upgrades = append(p.Upgrades, upgradeID)
	p.UpgradeCosts += cost

	e.publish(eventbus.PropertyUpgradedEvent{PlayerID: e.player.ID, PropertyID: p.ID, Upgrade: upgradeID, Cost: cost})
	e.say("Installed %s on your %s for %d gold.", u.Name, pt.Name, cost)
	return true
}

// LevelCost is the price of raising a property from its current level.
func (e *Estate) LevelCost(p *types.Property) int {
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return 0
	}
	return roundInt(float64(pt.BasePrice) * levelCostRatio * float64(p.Level))
}

// UpgradeLevel raises a property one level.
func (e *Estate) UpgradeLevel(propertyID string) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	if p.Level >= MaxPropertyLevel {
		return e.fail("Your %s is already at the maximum level.", pt.Name)
	}
	if p.UnderConstruction {
		return e.fail("Your %s is still under construction.", pt.Name)
	}

	cost := e.LevelCost(p)
	if !e.ledger.Remove(cost, "property_level_up") {
		return e.fail("You need %d gold to upgrade your %s to level %d!", cost, pt.Name, p.Level+1)
	}
	p.Level++

	e.publish(eventbus.PropertyLevelUpEvent{PlayerID: e.player.ID, PropertyID: p.ID, Level: p.Level, Cost: cost})
	e.say("Your %s is now level %d.", pt.Name, p.Level)
	return true
}

// RepairCost is the price of restoring a property to full condition.
func (e *Estate) RepairCost(p *types.Property) int {
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return 0
	}
	return roundInt(float64(pt.BasePrice) * repairRatio * (1 - float64(p.Condition)/100))
}

// Repair restores a property to full condition.
func (e *Estate) Repair(propertyID string) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}
	if p.UnderConstruction {
		return e.fail("Your %s is still under construction.", pt.Name)
	}
	if p.Condition >= maxCondition {
		return e.fail("Your %s doesn't need repairs.", pt.Name)
	}

	cost := e.RepairCost(p)
	if !e.ledger.Remove(cost, "property_repair") {
		return e.fail("You need %d gold to repair your %s!", cost, pt.Name)
	}
	p.Condition = maxCondition

	e.publish(eventbus.PropertyRepairedEvent{PlayerID: e.player.ID, PropertyID: p.ID, Cost: cost})
	e.say("Repaired your %s for %d gold.", pt.Name, cost)
	return true
}

// SellValue is half of everything invested in the property.
func (e *Estate) SellValue(p *types.Property) int {
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return 0
	}
	invested := p.PurchasePrice
	if invested == 0 {
		invested = pt.BasePrice
	}
	invested += p.UpgradeCosts
	for i := 1; i < p.Level; i++ {
		invested += roundInt(float64(pt.BasePrice) * levelCostRatio * float64(i))
	}
	return roundInt(float64(invested) * sellRatio)
}

// Sell disposes of a property for its sell value.
func (e *Estate) Sell(propertyID string) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}

	value := e.SellValue(p)
	e.release(p)
	e.ledger.Add(value, "property_sale")
	e.player.Stats.PropertiesSold++

	e.publish(eventbus.PropertySoldEvent{PlayerID: e.player.ID, PropertyID: p.ID, Type: p.Type, Price: value})
	e.say("Sold your %s in %s for %d gold.", pt.Name, e.locationName(p.Location), value)
	return true
}

// Abandon gives a property up without payment.
func (e *Estate) Abandon(propertyID string) bool {
	p, pt, ok := e.lookupProperty(propertyID)
	if !ok {
		return false
	}

	e.release(p)
	e.publish(eventbus.PropertyAbandonedEvent{PlayerID: e.player.ID, PropertyID: p.ID, Type: p.Type})
	e.say("Abandoned your %s in %s.", pt.Name, e.locationName(p.Location))
	return true
}

// ProcessRent charges weekly rent on rented properties. A property whose rent
// cannot be paid is repossessed.
func (e *Estate) ProcessRent(week int) bool {
	if week <= e.player.LastRentWeek {
		return false
	}
	e.player.LastRentWeek = week

	var repossessed []*types.Property
	for _, p := range e.player.Properties {
		if p.Acquisition != AcquireRent || p.WeeklyRent <= 0 {
			continue
		}
		if e.ledger.Remove(p.WeeklyRent, "property_rent") {
			e.publish(eventbus.RentPaidEvent{PlayerID: e.player.ID, PropertyID: p.ID, Amount: p.WeeklyRent, Week: week})
			continue
		}
		repossessed = append(repossessed, p)
	}

	for _, p := range repossessed {
		e.release(p)
		e.publish(eventbus.PropertyRepossessedEvent{PlayerID: e.player.ID, PropertyID: p.ID, Type: p.Type, RentOwed: p.WeeklyRent})
		e.say("Your %s in %s was repossessed: you could not pay %d gold rent.", e.propertyName(p), e.locationName(p.Location), p.WeeklyRent)
		e.logger.Warn("Property repossessed", zap.String("property", p.ID), zap.Int("rent", p.WeeklyRent))
	}
	return true
}

// release unassigns staff, returns stored goods and removes the property.
func (e *Estate) release(p *types.Property) {
	assigned := append([]string(nil), p.AssignedEmployees...)
	for _, empID := range assigned {
		e.Unassign(empID)
	}
	if len(assigned) > 0 {
		e.say("%d employee(s) unassigned from property.", len(assigned))
	}

	returned := 0
	for _, item := range sortedKeys(p.Storage) {
		if qty := p.Storage[item]; qty > 0 {
			e.ledger.AddItem(item, qty, "property_abandon")
			returned += qty
		}
	}
	p.Storage = make(map[string]int)
	if returned > 0 {
		e.say("%d item(s) returned from storage to your inventory.", returned)
	}

	kept := make([]*types.Property, 0, len(e.player.Properties))
	for _, other := range e.player.Properties {
		if other.ID != p.ID {
			kept = append(kept, other)
		}
	}
	e.player.Properties = kept
}

func (e *Estate) lookupProperty(id string) (*types.Property, *PropertyType, bool) {
	p, ok := e.Property(id)
	if !ok {
		return nil, nil, e.fail("Invalid property!")
	}
	pt, ok := e.catalog.PropertyTypes[p.Type]
	if !ok {
		return nil, nil, e.fail("Unknown property type!")
	}
	return p, pt, true
}

func (e *Estate) propertyName(p *types.Property) string {
	if pt, ok := e.catalog.PropertyTypes[p.Type]; ok {
		return pt.Name
	}
	return p.Type
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
