package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/game"
	"github.com/user/medieval-trader/internal/types"
)

const trader = "simulated-trader"

var (
	days     int
	dataDir  string
	planFile string
	seed     int64
	gold     int
	quiet    bool
)

// planStep is one scripted action, taken at the start of its day
type planStep struct {
	Day         int    `yaml:"day"`
	Action      string `yaml:"action"`
	Type        string `yaml:"type"`
	Acquisition string `yaml:"acquisition"`
	Destination string `yaml:"destination"`
}

var defaultPlan = []planStep{
	{Day: 1, Action: "buy", Type: "house", Acquisition: "rent"},
	{Day: 1, Action: "hire", Type: "worker"},
	{Day: 2, Action: "travel", Destination: "greenfield"},
	{Day: 2, Action: "buy", Type: "farm", Acquisition: "rent"},
	{Day: 3, Action: "travel", Destination: "oakvale"},
	{Day: 8, Action: "buy_transport", Type: "hand_cart"},
}

// dayRow is one line of the ledger
type dayRow struct {
	Day        int
	Gold       int
	Income     int
	Wages      int
	Properties int
	Employees  int
	Notes      []string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Medieval Trader economy simulator",
		Long: `Runs one trader through the economy for a number of days,
following a scripted plan, and prints the daily ledger.`,
		RunE: runSimulation,
	}

	rootCmd.Flags().IntVarP(&days, "days", "n", 28, "Number of days to simulate")
	rootCmd.Flags().StringVarP(&dataDir, "data", "d", "", "Directory holding catalog.yaml")
	rootCmd.Flags().StringVarP(&planFile, "plan", "p", "", "YAML file with scripted actions")
	rootCmd.Flags().Int64VarP(&seed, "seed", "s", 1, "Random seed")
	rootCmd.Flags().IntVarP(&gold, "gold", "g", 0, "Starting gold (0 keeps the default)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	titleColor := color.New(color.FgCyan, color.Bold)

	plan := defaultPlan
	if planFile != "" {
		loaded, err := loadPlan(planFile)
		if err != nil {
			return err
		}
		plan = loaded
	}

	cfg := config.DefaultConfig()
	cfg.Game.AutoSave = false
	cfg.Game.DataDir = dataDir
	cfg.Database.StateFile = filepath.Join(os.TempDir(), "medieval-trader-simulation.json")
	if gold > 0 {
		cfg.Game.StartingGold = gold
	}

	if !quiet {
		titleColor.Printf("\nSimulating %d days, seed %d\n\n", days, seed)
	}

	rows, player, err := simulate(cfg, plan, days, seed)
	if err != nil {
		return err
	}

	if !quiet {
		printLedger(rows)
	}
	printSummary(player, rows, cfg.Game.StartingGold)
	return nil
}

func loadPlan(path string) ([]planStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan []planStep
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return plan, nil
}

// simulate registers one trader, applies each day's plan steps and advances
// the clock a day at a time
func simulate(cfg config.Config, plan []planStep, days int, seed int64) ([]dayRow, *types.Player, error) {
	catalog, err := game.NewDataLoader(cfg.Game.DataDir).LoadCatalog()
	if err != nil {
		return nil, nil, err
	}

	gameManager := game.NewGameManager(cfg, game.Dependencies{
		Catalog: catalog,
		Rand:    game.NewSeededDiceRoller(seed),
	})
	gameManager.SetSteward(game.NewSteward(cfg.Game.AutoRepairThreshold, nil))

	if _, err := gameManager.RegisterPlayer(trader, "Simulated Trader"); err != nil {
		return nil, nil, err
	}

	rows := make([]dayRow, 0, days)
	for i := 0; i < days; i++ {
		day := gameManager.Day()
		before, err := gameManager.GetPlayer(trader)
		if err != nil {
			return nil, nil, err
		}
		income, wages := before.Stats.TotalIncome, before.Stats.TotalWagesPaid

		var notes []string
		for _, step := range plan {
			if step.Day != day {
				continue
			}
			result, err := apply(gameManager, step)
			if err != nil {
				return nil, nil, err
			}
			notes = append(notes, result.Messages...)
		}

		notices, err := gameManager.AdvanceDays(1)
		if err != nil {
			return nil, nil, err
		}
		notes = append(notes, notices[trader]...)

		after, err := gameManager.GetPlayer(trader)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, dayRow{
			Day:        day,
			Gold:       after.Gold,
			Income:     after.Stats.TotalIncome - income,
			Wages:      after.Stats.TotalWagesPaid - wages,
			Properties: len(after.Properties),
			Employees:  len(after.Employees),
			Notes:      notes,
		})
	}

	player, err := gameManager.GetPlayer(trader)
	if err != nil {
		return nil, nil, err
	}
	return rows, player, nil
}

func apply(gameManager *game.GameManager, step planStep) (types.Result, error) {
	switch step.Action {
	case "buy":
		return gameManager.BuyProperty(trader, step.Type, step.Acquisition)
	case "hire":
		return gameManager.HireEmployee(trader, step.Type)
	case "travel":
		return gameManager.Travel(trader, step.Destination)
	case "buy_transport":
		return gameManager.BuyTransport(trader, step.Type)
	default:
		return types.Result{Messages: []string{"Unknown plan action: " + step.Action}}, nil
	}
}

func printLedger(rows []dayRow) {
	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeader([]string{"Day", "Gold", "Income", "Wages", "Props", "Staff", "Notes"}),
	)

	for _, r := range rows {
		row := []string{
			strconv.Itoa(r.Day),
			strconv.Itoa(r.Gold),
			fmt.Sprintf("+%d", r.Income),
			fmt.Sprintf("-%d", r.Wages),
			strconv.Itoa(r.Properties),
			strconv.Itoa(r.Employees),
			strings.Join(r.Notes, " | "),
		}
		_ = table.Append(row)
	}

	_ = table.Render()
}

func printSummary(player *types.Player, rows []dayRow, startingGold int) {
	successColor := color.New(color.FgGreen, color.Bold)
	errorColor := color.New(color.FgRed, color.Bold)
	infoColor := color.New(color.FgYellow)

	fmt.Println()
	if len(rows) == 0 {
		infoColor.Println("No days simulated.")
		return
	}

	change := player.Gold - startingGold
	if change >= 0 {
		successColor.Printf("Gold: %d (%+d over %d days)\n", player.Gold, change, len(rows))
	} else {
		errorColor.Printf("Gold: %d (%+d over %d days)\n", player.Gold, change, len(rows))
	}
	infoColor.Printf("Income earned: %d, wages paid: %d\n", player.Stats.TotalIncome, player.Stats.TotalWagesPaid)
	infoColor.Printf("Properties: %d, employees: %d, transport: %d\n",
		len(player.Properties), len(player.Employees), len(player.Transport))
	if player.Stats.EmployeesLost > 0 || player.Stats.PropertiesSold > 0 {
		errorColor.Printf("Employees lost: %d, properties sold or lost: %d\n",
			player.Stats.EmployeesLost, player.Stats.PropertiesSold)
	}
}
