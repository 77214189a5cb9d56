package interfaces

import "github.com/user/medieval-trader/internal/types"

// MessageSender defines the interface for sending messages
type MessageSender interface {
	SendMessage(phoneNumber, recipient, message string) (string, error)
}

// GameManager defines the interface for game operations
type GameManager interface {
	RegisterPlayer(phoneNumber, name string) (*types.Player, error)
	GetPlayer(phoneNumber string) (*types.Player, error)
	GetAllPlayers() []*types.Player
	SetPlayerStatus(phoneNumber, status string) error
	GetPlayerStatus(phoneNumber string) (*types.PlayerStatus, error)
	LocalMarket(phoneNumber string) (*types.Market, error)

	Travel(phoneNumber, destination string) (types.Result, error)

	BuyProperty(phoneNumber, propertyType, acquisition string) (types.Result, error)
	SellProperty(phoneNumber, propertyID string) (types.Result, error)
	AbandonProperty(phoneNumber, propertyID string) (types.Result, error)
	UpgradeProperty(phoneNumber, propertyID, upgradeID string) (types.Result, error)
	LevelUpProperty(phoneNumber, propertyID string) (types.Result, error)
	RepairProperty(phoneNumber, propertyID string) (types.Result, error)

	StoreItem(phoneNumber, propertyID, item string, quantity int) (types.Result, error)
	RetrieveItem(phoneNumber, propertyID, item string, quantity int) (types.Result, error)
	TransferItem(phoneNumber, fromID, toID, item string, quantity int) (types.Result, error)

	HireEmployee(phoneNumber, employeeType string) (types.Result, error)
	FireEmployee(phoneNumber, employeeID string) (types.Result, error)
	AssignEmployee(phoneNumber, employeeID, propertyID string) (types.Result, error)
	UnassignEmployee(phoneNumber, employeeID string) (types.Result, error)
	AdjustWage(phoneNumber, employeeID string, wage int) (types.Result, error)

	BuyTransport(phoneNumber, transportType string) (types.Result, error)
	SellTransport(phoneNumber, transportID string) (types.Result, error)

	Day() int
	AdvanceDays(days int) (map[string][]string, error)
	Save(slot string) error
	Load(slot string) error
	Slots() ([]types.SlotInfo, error)

	SendMessage(playerID string, message string) error
}
