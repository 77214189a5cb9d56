package types

import (
	"maps"
	"slices"
	"time"
)

// GameState represents the overall state of the game
type GameState struct {
	Day     int                `json:"day"`
	Players map[string]*Player `json:"players"`
	SavedAt time.Time          `json:"saved_at"`
}

// Player represents a trader and everything the trader owns
type Player struct {
	ID           string    `json:"id"`
	PhoneNumber  string    `json:"phone_number"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Status       string    `json:"status"`
	Location     string    `json:"location"`

	Gold      int            `json:"gold"`
	Inventory map[string]int `json:"inventory"`

	Properties []*Property  `json:"properties"`
	Employees  []*Employee  `json:"employees"`
	Transport  []*Transport `json:"transport"`

	Stats PlayerStats `json:"stats"`

	LastIncomeDay int `json:"last_income_day"`
	LastWageWeek  int `json:"last_wage_week"`
	LastRentWeek  int `json:"last_rent_week"`
}

// Clone returns a deep copy that shares no maps, slices or pointers with p
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.Inventory = maps.Clone(p.Inventory)
	if p.Properties != nil {
		c.Properties = make([]*Property, len(p.Properties))
		for i, prop := range p.Properties {
			c.Properties[i] = prop.Clone()
		}
	}
	if p.Employees != nil {
		c.Employees = make([]*Employee, len(p.Employees))
		for i, e := range p.Employees {
			c.Employees[i] = e.Clone()
		}
	}
	if p.Transport != nil {
		c.Transport = make([]*Transport, len(p.Transport))
		for i, t := range p.Transport {
			if t != nil {
				tc := *t
				c.Transport[i] = &tc
			}
		}
	}
	return &c
}

// PlayerStats holds running totals
type PlayerStats struct {
	TotalIncome    int `json:"total_income"`
	TotalWagesPaid int `json:"total_wages_paid"`
	PropertiesSold int `json:"properties_sold"`
	EmployeesLost  int `json:"employees_lost"`
	DaysTravelled  int `json:"days_travelled"`
}

// Property represents an owned, rented or in-construction building
type Property struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	Acquisition string `json:"acquisition"`

	Level     int      `json:"level"`
	Condition int      `json:"condition"`
	Upgrades  []string `json:"upgrades"`

	PurchasePrice int `json:"purchase_price"`
	UpgradeCosts  int `json:"upgrade_costs"`
	PurchaseDay   int `json:"purchase_day"`
	WeeklyRent    int `json:"weekly_rent,omitempty"`

	UnderConstruction  bool `json:"under_construction"`
	ConstructionEndDay int  `json:"construction_end_day,omitempty"`

	Storage           map[string]int `json:"storage"`
	AssignedEmployees []string       `json:"assigned_employees"`

	TotalIncome int `json:"total_income"`
	LastIncome  int `json:"last_income"`
}

// HasUpgrade reports whether the named upgrade is installed
func (p *Property) HasUpgrade(id string) bool {
	for _, u := range p.Upgrades {
		if u == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of p
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	c := *p
	c.Upgrades = slices.Clone(p.Upgrades)
	c.Storage = maps.Clone(p.Storage)
	c.AssignedEmployees = slices.Clone(p.AssignedEmployees)
	return &c
}

// Employee represents a hired worker
type Employee struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Wage       int            `json:"wage"`
	Morale     int            `json:"morale"`
	Level      int            `json:"level"`
	Experience int            `json:"experience"`
	Skills     map[string]int `json:"skills"`
	Trait      string         `json:"trait,omitempty"`
	AssignedTo string         `json:"assigned_to,omitempty"`
	HiredDay   int            `json:"hired_day"`
}

// Clone returns a deep copy of e
func (e *Employee) Clone() *Employee {
	if e == nil {
		return nil
	}
	c := *e
	c.Skills = maps.Clone(e.Skills)
	return &c
}

// Transport represents a carrier, animal or vehicle owned by a player
type Transport struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Category      string `json:"category"`
	Sequence      int    `json:"sequence"`
	PurchasePrice int    `json:"purchase_price"`
	PurchaseDay   int    `json:"purchase_day"`
}
