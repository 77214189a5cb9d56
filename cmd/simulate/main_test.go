package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/medieval-trader/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.Game.AutoSave = false
	cfg.Database.StateFile = filepath.Join(t.TempDir(), "state.json")
	return cfg
}

func TestSimulateDefaultPlan(t *testing.T) {
	rows, player, err := simulate(testConfig(t), defaultPlan, 7, 1)
	require.NoError(t, err)
	require.Len(t, rows, 7)

	assert.Equal(t, 1, rows[0].Day)
	assert.Equal(t, 7, rows[6].Day)
	assert.Contains(t, rows[0].Notes, "Rented a House in Oakvale for a 200 gold deposit + 100/week!")
	assert.Equal(t, 1, rows[0].Employees)

	// The rollover into day 7 pays the first week's wages
	wages := 0
	for _, r := range rows {
		wages += r.Wages
	}
	assert.Positive(t, rows[5].Wages)
	assert.Equal(t, player.Stats.TotalWagesPaid, wages)
	assert.Equal(t, rows[6].Gold, player.Gold)
	assert.Equal(t, "oakvale", player.Location)
}

func TestSimulateUnknownAction(t *testing.T) {
	rows, _, err := simulate(testConfig(t), []planStep{{Day: 1, Action: "juggle"}}, 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Unknown plan action: juggle"}, rows[0].Notes)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- day: 1
  action: buy
  type: shop
  acquisition: rent
- day: 2
  action: travel
  destination: millbrook
`), 0644))

	plan, err := loadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, []planStep{
		{Day: 1, Action: "buy", Type: "shop", Acquisition: "rent"},
		{Day: 2, Action: "travel", Destination: "millbrook"},
	}, plan)

	_, err = loadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
