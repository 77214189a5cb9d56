package eventbus

import "fmt"

// Event names shared across packages.
const (
	GameReady         = "game:ready"
	BootstrapComplete = "bootstrap:complete"

	PlayerCreated     = "player:created"
	PlayerGoldChanged = "player:gold:changed"

	InventoryItemAdded   = "inventory:item:added"
	InventoryItemRemoved = "inventory:item:removed"

	PropertyPurchased            = "property:purchased"
	PropertySold                 = "property:sold"
	PropertyAbandoned            = "property:abandoned"
	PropertyRepossessed          = "property:repossessed"
	PropertyUpgraded             = "property:upgraded"
	PropertyLevelUp              = "property:level_up"
	PropertyRepaired             = "property:repaired"
	PropertyIncome               = "property:income"
	PropertyConstructionComplete = "property:construction_complete"
	PropertyRentPaid             = "property:rent_paid"

	StorageItemStored      = "storage:item_stored"
	StorageItemRetrieved   = "storage:item_retrieved"
	StorageItemTransferred = "storage:item_transferred"

	EmployeeHired        = "employee:hired"
	EmployeeFired        = "employee:fired"
	EmployeeAssigned     = "employee:assigned"
	EmployeeUnassigned   = "employee:unassigned"
	EmployeeWageAdjusted = "employee:wage_adjusted"
	EmployeeWagesPaid    = "employee:wages_paid"
	EmployeeWagesMissed  = "employee:wages_missed"
	EmployeeLevelUp      = "employee:level_up"
	EmployeeQuit         = "employee:quit"

	TransportPurchased = "transport:purchased"
	TransportSold      = "transport:sold"

	TimeDayChanged        = "time:day_changed"
	TimeWeekChanged       = "time:week_changed"
	TravelLocationChanged = "travel:location_changed"
	SaveCompleted         = "save:completed"
	LoadCompleted         = "load:completed"
)

// Payload is implemented by every typed event body. The event name comes from
// the payload type so producers and consumers agree on its shape.
type Payload interface {
	EventName() string
}

// Publish emits p under its own event name.
func (b *Bus) Publish(p Payload) {
	b.Emit(p.EventName(), p)
}

// PublishTo emits p through any Emitter; a nil emitter drops the event.
func PublishTo(e Emitter, p Payload) {
	if e == nil {
		return
	}
	e.Emit(p.EventName(), p)
}

// On subscribes fn to the event named by T. Events whose data is not a T
// are reported as handler failures.
func On[T Payload](b *Bus, fn func(T) error) func() {
	var zero T
	return b.Subscribe(zero.EventName(), func(evt Event) error {
		p, ok := evt.Data.(T)
		if !ok {
			return fmt.Errorf("event %s: unexpected payload %T", evt.Name, evt.Data)
		}
		return fn(p)
	})
}

type GameReadyEvent struct {
	LoadTimeMs    int64    `json:"loadTime"`
	ModulesLoaded int      `json:"modulesLoaded"`
	Errors        []string `json:"errors"`
}

func (GameReadyEvent) EventName() string { return GameReady }

type BootstrapCompleteEvent struct {
	Modules []string `json:"modules"`
	Errors  []string `json:"errors"`
}

func (BootstrapCompleteEvent) EventName() string { return BootstrapComplete }

type PlayerCreatedEvent struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (PlayerCreatedEvent) EventName() string { return PlayerCreated }

// GoldChangedEvent is emitted by the ledger whenever gold actually changes.
type GoldChangedEvent struct {
	PlayerID string `json:"playerId"`
	OldGold  int    `json:"oldGold"`
	NewGold  int    `json:"newGold"`
	Change   int    `json:"change"`
	Reason   string `json:"reason"`
}

func (GoldChangedEvent) EventName() string { return PlayerGoldChanged }

type ItemAddedEvent struct {
	PlayerID string `json:"playerId"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (ItemAddedEvent) EventName() string { return InventoryItemAdded }

type ItemRemovedEvent struct {
	PlayerID string `json:"playerId"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (ItemRemovedEvent) EventName() string { return InventoryItemRemoved }

type PropertyPurchasedEvent struct {
	PlayerID    string `json:"playerId"`
	PropertyID  string `json:"propertyId"`
	Type        string `json:"type"`
	Location    string `json:"location"`
	Acquisition string `json:"acquisition"`
	Price       int    `json:"price"`
}

func (PropertyPurchasedEvent) EventName() string { return PropertyPurchased }

type PropertySoldEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Type       string `json:"type"`
	Price      int    `json:"price"`
}

func (PropertySoldEvent) EventName() string { return PropertySold }

type PropertyAbandonedEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Type       string `json:"type"`
}

func (PropertyAbandonedEvent) EventName() string { return PropertyAbandoned }

type PropertyRepossessedEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Type       string `json:"type"`
	RentOwed   int    `json:"rentOwed"`
}

func (PropertyRepossessedEvent) EventName() string { return PropertyRepossessed }

type PropertyUpgradedEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Upgrade    string `json:"upgrade"`
	Cost       int    `json:"cost"`
}

func (PropertyUpgradedEvent) EventName() string { return PropertyUpgraded }

type PropertyLevelUpEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Level      int    `json:"level"`
	Cost       int    `json:"cost"`
}

func (PropertyLevelUpEvent) EventName() string { return PropertyLevelUp }

type PropertyRepairedEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Cost       int    `json:"cost"`
}

func (PropertyRepairedEvent) EventName() string { return PropertyRepaired }

// PropertyIncomeEvent summarizes one daily income run.
type PropertyIncomeEvent struct {
	PlayerID    string `json:"playerId"`
	Day         int    `json:"day"`
	Income      int    `json:"income"`
	Maintenance int    `json:"maintenance"`
	Tax         int    `json:"tax"`
	Net         int    `json:"net"`
}

func (PropertyIncomeEvent) EventName() string { return PropertyIncome }

type ConstructionCompleteEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Type       string `json:"type"`
}

func (ConstructionCompleteEvent) EventName() string { return PropertyConstructionComplete }

type RentPaidEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Amount     int    `json:"amount"`
	Week       int    `json:"week"`
}

func (RentPaidEvent) EventName() string { return PropertyRentPaid }

type ItemStoredEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Item       string `json:"item"`
	Quantity   int    `json:"quantity"`
}

func (ItemStoredEvent) EventName() string { return StorageItemStored }

type ItemRetrievedEvent struct {
	PlayerID   string `json:"playerId"`
	PropertyID string `json:"propertyId"`
	Item       string `json:"item"`
	Quantity   int    `json:"quantity"`
}

func (ItemRetrievedEvent) EventName() string { return StorageItemRetrieved }

type ItemTransferredEvent struct {
	PlayerID string `json:"playerId"`
	FromID   string `json:"fromId"`
	ToID     string `json:"toId"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

func (ItemTransferredEvent) EventName() string { return StorageItemTransferred }

type EmployeeHiredEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Wage       int    `json:"wage"`
}

func (EmployeeHiredEvent) EventName() string { return EmployeeHired }

type EmployeeFiredEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
}

func (EmployeeFiredEvent) EventName() string { return EmployeeFired }

type EmployeeAssignedEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	PropertyID string `json:"propertyId"`
}

func (EmployeeAssignedEvent) EventName() string { return EmployeeAssigned }

type EmployeeUnassignedEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	PropertyID string `json:"propertyId"`
}

func (EmployeeUnassignedEvent) EventName() string { return EmployeeUnassigned }

type WageAdjustedEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	OldWage    int    `json:"oldWage"`
	NewWage    int    `json:"newWage"`
	Morale     int    `json:"morale"`
}

func (WageAdjustedEvent) EventName() string { return EmployeeWageAdjusted }

type WagesPaidEvent struct {
	PlayerID  string `json:"playerId"`
	Week      int    `json:"week"`
	Total     int    `json:"total"`
	Employees int    `json:"employees"`
}

func (WagesPaidEvent) EventName() string { return EmployeeWagesPaid }

type WagesMissedEvent struct {
	PlayerID  string `json:"playerId"`
	Week      int    `json:"week"`
	Owed      int    `json:"owed"`
	Available int    `json:"available"`
}

func (WagesMissedEvent) EventName() string { return EmployeeWagesMissed }

type EmployeeLevelUpEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	Level      int    `json:"level"`
}

func (EmployeeLevelUpEvent) EventName() string { return EmployeeLevelUp }

type EmployeeQuitEvent struct {
	PlayerID   string `json:"playerId"`
	EmployeeID string `json:"employeeId"`
	Name       string `json:"name"`
	Morale     int    `json:"morale"`
}

func (EmployeeQuitEvent) EventName() string { return EmployeeQuit }

type TransportPurchasedEvent struct {
	PlayerID    string `json:"playerId"`
	TransportID string `json:"transportId"`
	Type        string `json:"type"`
	Price       int    `json:"price"`
}

func (TransportPurchasedEvent) EventName() string { return TransportPurchased }

type TransportSoldEvent struct {
	PlayerID    string `json:"playerId"`
	TransportID string `json:"transportId"`
	Type        string `json:"type"`
	Price       int    `json:"price"`
}

func (TransportSoldEvent) EventName() string { return TransportSold }

type DayChangedEvent struct {
	Day  int `json:"day"`
	Week int `json:"week"`
}

func (DayChangedEvent) EventName() string { return TimeDayChanged }

type WeekChangedEvent struct {
	Week int `json:"week"`
}

func (WeekChangedEvent) EventName() string { return TimeWeekChanged }

type LocationChangedEvent struct {
	PlayerID string `json:"playerId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (LocationChangedEvent) EventName() string { return TravelLocationChanged }

type SaveCompletedEvent struct {
	Slot    string `json:"slot"`
	Players int    `json:"players"`
}

func (SaveCompletedEvent) EventName() string { return SaveCompleted }

type LoadCompletedEvent struct {
	Slot    string `json:"slot"`
	Players int    `json:"players"`
}

func (LoadCompletedEvent) EventName() string { return LoadCompleted }
