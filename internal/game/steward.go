package game

import (
	"sort"

	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/economy"
	"github.com/user/medieval-trader/internal/types"
)

// Steward looks after the estates of players on autopilot
type Steward struct {
	repairThreshold int
	logger          *zap.Logger
}

// NewSteward creates a steward that repairs properties whose condition falls
// below repairThreshold.
func NewSteward(repairThreshold int, logger *zap.Logger) *Steward {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Steward{
		repairThreshold: repairThreshold,
		logger:          logger,
	}
}

// Tend repairs worn properties the player can afford, worst first, and
// reports how many were repaired.
func (s *Steward) Tend(estate *economy.Estate) int {
	player := estate.Player()
	if player.Status != types.StatusAutopilot {
		return 0
	}

	var worn []*types.Property
	for _, p := range estate.Properties() {
		if !p.UnderConstruction && p.Condition < s.repairThreshold {
			worn = append(worn, p)
		}
	}
	sort.SliceStable(worn, func(i, j int) bool { return worn[i].Condition < worn[j].Condition })

	repaired := 0
	for _, p := range worn {
		if !estate.Ledger().CanAfford(estate.RepairCost(p)) {
			continue
		}
		if estate.Repair(p.ID) {
			repaired++
		}
	}

	if repaired > 0 {
		s.logger.Info("Steward repaired properties",
			zap.String("player_id", player.ID),
			zap.Int("repaired", repaired))
	}
	return repaired
}

