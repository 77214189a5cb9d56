package economy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Acquisition modes and their price factors.
const (
	AcquireBuy   = "buy"
	AcquireRent  = "rent"
	AcquireBuild = "build"
)

var acquisitionModifiers = map[string]float64{
	AcquireBuy:   1.0,
	AcquireRent:  0.2,
	AcquireBuild: 0.5,
}

// Transport categories.
const (
	CategoryCarrier = "carrier"
	CategoryAnimal  = "animal"
	CategoryVehicle = "vehicle"
)

// PropertyType is a buildable property definition.
type PropertyType struct {
	ID               string         `yaml:"-"`
	Name             string         `yaml:"name"`
	BasePrice        int            `yaml:"base_price"`
	BaseIncome       int            `yaml:"base_income"`
	Maintenance      int            `yaml:"maintenance"`
	StorageBonus     int            `yaml:"storage_bonus"`
	WorkerSlots      int            `yaml:"worker_slots"`
	MerchantSlots    int            `yaml:"merchant_slots"`
	ConstructionDays int            `yaml:"construction_days"`
	Materials        map[string]int `yaml:"materials"`
}

// Slots is the number of employees the property can hold.
func (t *PropertyType) Slots() int {
	return t.WorkerSlots + t.MerchantSlots
}

// Upgrade is a one-time property improvement. Zero multipliers mean the
// upgrade does not touch that figure.
type Upgrade struct {
	ID                   string  `yaml:"-"`
	Name                 string  `yaml:"name"`
	CostMultiplier       float64 `yaml:"cost_multiplier"`
	IncomeBonus          float64 `yaml:"income_bonus"`
	MaintenanceReduction float64 `yaml:"maintenance_reduction"`
	StorageMultiplier    float64 `yaml:"storage_multiplier"`
	ProductionBonus      float64 `yaml:"production_bonus"`
}

// Cost returns the upgrade price for a property type.
func (u *Upgrade) Cost(pt *PropertyType) int {
	return roundInt(float64(pt.BasePrice) * u.CostMultiplier)
}

// LocationType groups the per-settlement rules.
type LocationType struct {
	ID                string   `yaml:"-"`
	PropertyModifier  float64  `yaml:"property_modifier"`
	TransportModifier float64  `yaml:"transport_modifier"`
	Properties        []string `yaml:"properties"`
	Employees         []string `yaml:"employees"`
	Transport         []string `yaml:"transport"`
}

// Location is a named settlement on the map.
type Location struct {
	ID          string         `yaml:"-"`
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Connections map[string]int `yaml:"connections"`
}

// EmployeeType is a hireable role.
type EmployeeType struct {
	ID           string   `yaml:"-"`
	Name         string   `yaml:"name"`
	BaseWage     int      `yaml:"base_wage"`
	Productivity float64  `yaml:"productivity"`
	Skills       []string `yaml:"skills"`
}

// TransportType is a carrier, pack animal or vehicle.
type TransportType struct {
	ID        string  `yaml:"-"`
	Name      string  `yaml:"name"`
	Category  string  `yaml:"category"`
	Price     int     `yaml:"price"`
	SellPrice int     `yaml:"sell_price"`
	Capacity  int     `yaml:"capacity"`
	Speed     float64 `yaml:"speed"`
}

// Item is a tradeable good.
type Item struct {
	ID     string `yaml:"-"`
	Weight int    `yaml:"weight"`
	Price  int    `yaml:"price"`
}

// Catalog holds the static tables the economy runs on.
type Catalog struct {
	PropertyTypes  map[string]*PropertyType  `yaml:"property_types"`
	Upgrades       map[string]*Upgrade       `yaml:"upgrades"`
	LocationTypes  map[string]*LocationType  `yaml:"location_types"`
	Locations      map[string]*Location      `yaml:"locations"`
	EmployeeTypes  map[string]*EmployeeType  `yaml:"employee_types"`
	Traits         []string                  `yaml:"traits"`
	Names          []string                  `yaml:"names"`
	TransportTypes map[string]*TransportType `yaml:"transport_types"`
	Items          map[string]*Item          `yaml:"items"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// MustDefaultCatalog is DefaultCatalog for callers that cannot recover.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.index()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() {
	for id, v := range c.PropertyTypes {
		v.ID = id
	}
	for id, v := range c.Upgrades {
		v.ID = id
	}
	for id, v := range c.LocationTypes {
		v.ID = id
	}
	for id, v := range c.Locations {
		v.ID = id
	}
	for id, v := range c.EmployeeTypes {
		v.ID = id
	}
	for id, v := range c.TransportTypes {
		v.ID = id
	}
	for id, v := range c.Items {
		v.ID = id
	}
}

// Validate checks cross references between tables.
func (c *Catalog) Validate() error {
	if len(c.PropertyTypes) == 0 {
		return errors.New("catalog has no property types")
	}
	for id, lt := range c.LocationTypes {
		for _, p := range lt.Properties {
			if _, ok := c.PropertyTypes[p]; !ok {
				return fmt.Errorf("location type %s offers unknown property %s", id, p)
			}
		}
		for _, e := range lt.Employees {
			if _, ok := c.EmployeeTypes[e]; !ok {
				return fmt.Errorf("location type %s offers unknown employee %s", id, e)
			}
		}
		for _, t := range lt.Transport {
			if _, ok := c.TransportTypes[t]; !ok {
				return fmt.Errorf("location type %s sells unknown transport %s", id, t)
			}
		}
	}
	for id, loc := range c.Locations {
		if _, ok := c.LocationTypes[loc.Type]; !ok {
			return fmt.Errorf("location %s has unknown type %s", id, loc.Type)
		}
		for dest := range loc.Connections {
			if _, ok := c.Locations[dest]; !ok {
				return fmt.Errorf("location %s connects to unknown location %s", id, dest)
			}
		}
	}
	for id, tt := range c.TransportTypes {
		switch tt.Category {
		case CategoryCarrier, CategoryAnimal, CategoryVehicle:
		default:
			return fmt.Errorf("transport %s has unknown category %s", id, tt.Category)
		}
	}
	return nil
}

// LocationTypeOf returns the rules for the settlement a location belongs to.
func (c *Catalog) LocationTypeOf(locationID string) (*LocationType, bool) {
	loc, ok := c.Locations[locationID]
	if !ok {
		return nil, false
	}
	lt, ok := c.LocationTypes[loc.Type]
	return lt, ok
}

// ItemWeight returns the carry weight of one unit, defaulting to 1.
func (c *Catalog) ItemWeight(item string) int {
	if it, ok := c.Items[item]; ok && it.Weight > 0 {
		return it.Weight
	}
	return 1
}

// LocationIDs returns every location id in sorted order.
func (c *Catalog) LocationIDs() []string {
	ids := make([]string, 0, len(c.Locations))
	for id := range c.Locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
