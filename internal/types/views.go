package types

import "time"

// Player statuses
const (
	StatusActive    = "active"
	StatusSleeping  = "sleeping"
	StatusAutopilot = "autopilot"
)

// Result is the outcome of a player operation together with the messages
// the player should see.
type Result struct {
	OK       bool     `json:"ok"`
	Messages []string `json:"messages"`
}

// PlayerStatus summarizes a player's position
type PlayerStatus struct {
	Name         string      `json:"name"`
	Status       string      `json:"status"`
	Location     string      `json:"location"`
	LocationName string      `json:"location_name"`
	Day          int         `json:"day"`
	Week         int         `json:"week"`
	Gold         int         `json:"gold"`
	Load         int         `json:"load"`
	Capacity     int         `json:"capacity"`
	Speed        float64     `json:"speed"`
	Properties   int         `json:"properties"`
	Employees    int         `json:"employees"`
	Transport    int         `json:"transport"`
	WeeklyWages  int         `json:"weekly_wages"`
	DailyIncome  int         `json:"daily_income"`
	Stats        PlayerStats `json:"stats"`
}

// Market lists what a location offers
type Market struct {
	Location   string           `json:"location"`
	Name       string           `json:"name"`
	Properties []PropertyOffer  `json:"properties"`
	Employees  []EmployeeOffer  `json:"employees"`
	Transport  []TransportOffer `json:"transport"`
	Roads      map[string]int   `json:"roads"`
}

// PropertyOffer is a property type for sale at a location
type PropertyOffer struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	BuyPrice   int    `json:"buy_price"`
	BuildPrice int    `json:"build_price"`
	WeeklyRent int    `json:"weekly_rent"`
	Income     int    `json:"income"`
}

// EmployeeOffer is a role that can be hired at a location
type EmployeeOffer struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Wage int    `json:"wage"`
}

// TransportOffer is a transport type sold at a location
type TransportOffer struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    int     `json:"price"`
	Capacity int     `json:"capacity"`
	Speed    float64 `json:"speed"`
}

// SlotInfo describes a saved game
type SlotInfo struct {
	Slot    string    `json:"slot"`
	Day     int       `json:"day"`
	Players int       `json:"players"`
	SavedAt time.Time `json:"saved_at"`
}
