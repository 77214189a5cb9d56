package whatsapp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/types"
)

const (
	notRegistered = "You are not trading yet! Type */start [your name]* to begin."
	unknownReply  = "Unknown command. Type */help* to see what you can do."
)

// processGameCommand handles game commands from players and returns the
// reply text
func (cm *ClientManager) processGameCommand(sender, command string) string {
	command = cleanCommand(command)

	if !strings.HasPrefix(command, "/") {
		return "Commands start with '/'. Type */help* to see what you can do."
	}
	args := strings.Fields(strings.TrimPrefix(command, "/"))
	if len(args) == 0 {
		return unknownReply
	}
	verb, args := args[0], args[1:]

	switch verb {
	case "help", "ajuda":
		return helpText
	case "start", "join":
		return cm.handleStartCommand(sender, args)
	}

	// Everything else needs a registered player
	player, err := cm.gameManager.GetPlayer(sender)
	if err != nil {
		if err.Error() == "player not found" {
			return notRegistered
		}
		return failure(err)
	}

	switch verb {
	case "status":
		return cm.handleStatusCommand(sender)
	case "market":
		return cm.handleMarketCommand(sender)
	case "properties", "props":
		return formatProperties(player)
	case "staff":
		return formatStaff(player)
	case "transport":
		return formatTransport(player)
	case "travel", "go":
		return cm.handleTravelCommand(sender, args)
	case "buy", "rent", "build":
		return cm.handleAcquireCommand(sender, verb, args)
	case "sell", "abandon", "levelup", "repair":
		return cm.handlePropertyCommand(sender, player, verb, args)
	case "upgrade":
		return cm.handleUpgradeCommand(sender, player, args)
	case "store", "retrieve":
		return cm.handleStorageCommand(sender, player, verb, args)
	case "transfer":
		return cm.handleTransferCommand(sender, player, args)
	case "hire":
		return cm.handleHireCommand(sender, args)
	case "fire", "unassign":
		return cm.handleStaffCommand(sender, player, verb, args)
	case "assign":
		return cm.handleAssignCommand(sender, player, args)
	case "wage":
		return cm.handleWageCommand(sender, player, args)
	case "buycart", "buytransport":
		return cm.handleBuyTransportCommand(sender, args)
	case "sellcart", "selltransport":
		return cm.handleSellTransportCommand(sender, player, args)
	case "autopilot", "sleep", "wake":
		return cm.handleModeCommand(sender, verb, args)
	}

	return unknownReply
}

func (cm *ClientManager) handleStartCommand(sender string, args []string) string {
	if len(args) == 0 {
		return "You forgot your name!\n\nType: */start [your name]*"
	}

	player, err := cm.gameManager.RegisterPlayer(sender, strings.Join(args, " "))
	if err != nil {
		if err.Error() == "player already registered" {
			return "You are already trading! Type */status* to see how you're doing."
		}
		return failure(err)
	}

	cm.logger.Info("Player joined via WhatsApp",
		zap.String("player_id", player.ID),
		zap.String("sender", sender))

	return fmt.Sprintf("Welcome, %s! You arrive in %s with %d gold.\n\n"+
		"Type */market* to see what is for sale here, or */help* for every command.",
		player.Name, titleCase(player.Location), player.Gold)
}

func (cm *ClientManager) handleStatusCommand(sender string) string {
	status, err := cm.gameManager.GetPlayerStatus(sender)
	if err != nil {
		return failure(err)
	}
	return NewMessageFormatter().FormatStatus(status)
}

func (cm *ClientManager) handleMarketCommand(sender string) string {
	market, err := cm.gameManager.LocalMarket(sender)
	if err != nil {
		return failure(err)
	}
	return NewMessageFormatter().FormatMarket(market)
}

func (cm *ClientManager) handleTravelCommand(sender string, args []string) string {
	if len(args) == 0 {
		return "Where to? Type */travel [place]*. */market* lists the roads from here."
	}
	return reply(cm.gameManager.Travel(sender, strings.Join(args, "_")))
}

// handleAcquireCommand accepts "/buy house", "/buy house rent" and the
// shorthands "/rent house" and "/build house"
func (cm *ClientManager) handleAcquireCommand(sender, verb string, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("Which property? Type */%s [type]*, e.g. */%s house*.", verb, verb)
	}
	acquisition := verb
	if verb == "buy" && len(args) > 1 {
		acquisition = args[1]
	}
	return reply(cm.gameManager.BuyProperty(sender, args[0], acquisition))
}

func (cm *ClientManager) handlePropertyCommand(sender string, player *types.Player, verb string, args []string) string {
	id, msg := resolveProperty(player, args)
	if msg != "" {
		return msg
	}

	switch verb {
	case "sell":
		return reply(cm.gameManager.SellProperty(sender, id))
	case "abandon":
		return reply(cm.gameManager.AbandonProperty(sender, id))
	case "levelup":
		return reply(cm.gameManager.LevelUpProperty(sender, id))
	default:
		return reply(cm.gameManager.RepairProperty(sender, id))
	}
}

func (cm *ClientManager) handleUpgradeCommand(sender string, player *types.Player, args []string) string {
	if len(args) < 2 {
		return "Type */upgrade [property #] [upgrade]*, e.g. */upgrade 1 security*."
	}
	id, msg := resolveProperty(player, args[:1])
	if msg != "" {
		return msg
	}
	return reply(cm.gameManager.UpgradeProperty(sender, id, args[1]))
}

func (cm *ClientManager) handleStorageCommand(sender string, player *types.Player, verb string, args []string) string {
	if len(args) < 3 {
		return fmt.Sprintf("Type */%s [property #] [item] [quantity]*.", verb)
	}
	id, msg := resolveProperty(player, args[:1])
	if msg != "" {
		return msg
	}
	qty, err := strconv.Atoi(args[2])
	if err != nil || qty <= 0 {
		return "The quantity must be a positive number."
	}

	if verb == "store" {
		return reply(cm.gameManager.StoreItem(sender, id, args[1], qty))
	}
	return reply(cm.gameManager.RetrieveItem(sender, id, args[1], qty))
}

func (cm *ClientManager) handleTransferCommand(sender string, player *types.Player, args []string) string {
	if len(args) < 4 {
		return "Type */transfer [from #] [to #] [item] [quantity]*."
	}
	from, msg := resolveProperty(player, args[:1])
	if msg != "" {
		return msg
	}
	to, msg := resolveProperty(player, args[1:2])
	if msg != "" {
		return msg
	}
	qty, err := strconv.Atoi(args[3])
	if err != nil || qty <= 0 {
		return "The quantity must be a positive number."
	}
	return reply(cm.gameManager.TransferItem(sender, from, to, args[2], qty))
}

func (cm *ClientManager) handleHireCommand(sender string, args []string) string {
	if len(args) == 0 {
		return "Who do you want to hire? Type */hire [role]*. */market* lists who is looking for work."
	}
	return reply(cm.gameManager.HireEmployee(sender, args[0]))
}

func (cm *ClientManager) handleStaffCommand(sender string, player *types.Player, verb string, args []string) string {
	id, msg := resolveEmployee(player, args)
	if msg != "" {
		return msg
	}
	if verb == "fire" {
		return reply(cm.gameManager.FireEmployee(sender, id))
	}
	return reply(cm.gameManager.UnassignEmployee(sender, id))
}

func (cm *ClientManager) handleAssignCommand(sender string, player *types.Player, args []string) string {
	if len(args) < 2 {
		return "Type */assign [employee #] [property #]*."
	}
	empID, msg := resolveEmployee(player, args[:1])
	if msg != "" {
		return msg
	}
	propID, msg := resolveProperty(player, args[1:2])
	if msg != "" {
		return msg
	}
	return reply(cm.gameManager.AssignEmployee(sender, empID, propID))
}

func (cm *ClientManager) handleWageCommand(sender string, player *types.Player, args []string) string {
	if len(args) < 2 {
		return "Type */wage [employee #] [gold per day]*."
	}
	id, msg := resolveEmployee(player, args[:1])
	if msg != "" {
		return msg
	}
	wage, err := strconv.Atoi(args[1])
	if err != nil {
		return "The wage must be a number."
	}
	return reply(cm.gameManager.AdjustWage(sender, id, wage))
}

func (cm *ClientManager) handleBuyTransportCommand(sender string, args []string) string {
	if len(args) == 0 {
		return "Which transport? Type */buycart [type]*, e.g. */buycart hand_cart*."
	}
	return reply(cm.gameManager.BuyTransport(sender, args[0]))
}

func (cm *ClientManager) handleSellTransportCommand(sender string, player *types.Player, args []string) string {
	if len(args) == 0 {
		return "Which transport? Type */transport* for numbers, then */sellcart [#]*."
	}
	ids := make([]string, len(player.Transport))
	for i, t := range player.Transport {
		ids[i] = t.ID
	}
	// The sale is bound to the ID the player saw; a transport sold in the
	// meantime is rejected by the game rather than swapped for another.
	id, ok := resolve(ids, args[0])
	if !ok {
		return "No such transport. Type */transport* to see what you own."
	}
	return reply(cm.gameManager.SellTransport(sender, id))
}

func (cm *ClientManager) handleModeCommand(sender, verb string, args []string) string {
	status := types.StatusActive
	switch verb {
	case "sleep":
		status = types.StatusSleeping
	case "autopilot":
		if len(args) == 0 || args[0] != "off" {
			status = types.StatusAutopilot
		}
	}

	if err := cm.gameManager.SetPlayerStatus(sender, status); err != nil {
		return failure(err)
	}

	switch status {
	case types.StatusAutopilot:
		return "Your steward will now keep your properties in repair."
	case types.StatusSleeping:
		return "Sleep well. Your properties keep working while you rest."
	default:
		return "You are back at the helm."
	}
}

// resolveProperty turns a 1-based list position or an ID prefix into a
// property ID
func resolveProperty(player *types.Player, args []string) (string, string) {
	if len(args) == 0 {
		return "", "Which property? Type */properties* to see their numbers."
	}
	ids := make([]string, len(player.Properties))
	for i, p := range player.Properties {
		ids[i] = p.ID
	}
	if id, ok := resolve(ids, args[0]); ok {
		return id, ""
	}
	return "", "No such property. Type */properties* to see what you own."
}

// resolveEmployee turns a 1-based list position or an ID prefix into an
// employee ID
func resolveEmployee(player *types.Player, args []string) (string, string) {
	if len(args) == 0 {
		return "", "Which employee? Type */staff* to see their numbers."
	}
	ids := make([]string, len(player.Employees))
	for i, e := range player.Employees {
		ids[i] = e.ID
	}
	if id, ok := resolve(ids, args[0]); ok {
		return id, ""
	}
	return "", "No such employee. Type */staff* to see who works for you."
}

func resolve(ids []string, ref string) (string, bool) {
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx >= 1 && idx <= len(ids) {
			return ids[idx-1], true
		}
		return "", false
	}
	for _, id := range ids {
		if strings.HasPrefix(id, ref) {
			return id, true
		}
	}
	return "", false
}

// reply renders an operation result as chat text
func reply(result types.Result, err error) string {
	if err != nil {
		return failure(err)
	}
	if len(result.Messages) == 0 {
		if result.OK {
			return "Done."
		}
		return "That didn't work."
	}
	return strings.Join(result.Messages, "\n")
}

func failure(err error) string {
	if strings.Contains(err.Error(), "player not found") {
		return notRegistered
	}
	return fmt.Sprintf("Something went wrong: %s", err.Error())
}

func formatProperties(player *types.Player) string {
	if len(player.Properties) == 0 {
		return "You don't own any property yet. Type */market* to see what is for sale."
	}
	var b strings.Builder
	b.WriteString("*YOUR PROPERTIES*\n\n")
	for i, p := range player.Properties {
		fmt.Fprintf(&b, "%d. %s in %s (level %d, %s)", i+1, titleCase(p.Type), titleCase(p.Location), p.Level, p.Acquisition)
		if p.UnderConstruction {
			fmt.Fprintf(&b, " under construction until day %d\n", p.ConstructionEndDay)
			continue
		}
		fmt.Fprintf(&b, " condition %d%%, %d workers", p.Condition, len(p.AssignedEmployees))
		if len(p.Storage) > 0 {
			items := make([]string, 0, len(p.Storage))
			for item, qty := range p.Storage {
				items = append(items, fmt.Sprintf("%d %s", qty, item))
			}
			sort.Strings(items)
			fmt.Fprintf(&b, ", stores %s", strings.Join(items, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatStaff(player *types.Player) string {
	if len(player.Employees) == 0 {
		return "Nobody works for you yet. Type */market* to see who is looking for work."
	}
	places := make(map[string]string, len(player.Properties))
	for i, p := range player.Properties {
		places[p.ID] = fmt.Sprintf("property %d", i+1)
	}

	var b strings.Builder
	b.WriteString("*YOUR STAFF*\n\n")
	for i, e := range player.Employees {
		fmt.Fprintf(&b, "%d. %s the %s, level %d, %d gold/day, morale %d", i+1, e.Name, e.Type, e.Level, e.Wage, e.Morale)
		if where, ok := places[e.AssignedTo]; ok {
			fmt.Fprintf(&b, ", at %s", where)
		} else {
			b.WriteString(", idle")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatTransport(player *types.Player) string {
	if len(player.Transport) == 0 {
		return "You carry everything in your satchel. Type */market* to see transport for sale."
	}
	var b strings.Builder
	b.WriteString("*YOUR TRANSPORT*\n\n")
	for i, t := range player.Transport {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, titleCase(t.Type), t.Category)
	}
	return b.String()
}

// cleanCommand collapses whitespace and lowercases the command. Player names
// keep their case.
func cleanCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	fields[0] = strings.ToLower(fields[0])
	if fields[0] == "/start" || fields[0] == "/join" {
		return strings.Join(fields, " ")
	}
	return strings.ToLower(strings.Join(fields, " "))
}

func titleCase(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

const helpText = "*MEDIEVAL TRADER* - COMMANDS\n\n" +
	"*GETTING STARTED*\n" +
	"*/start [name]* - Begin trading\n" +
	"*/status* - Your gold, load and holdings\n" +
	"*/market* - What this town sells and where the roads go\n" +
	"*/travel [place]* - Take a road to another town\n\n" +
	"*PROPERTY*\n" +
	"*/buy [type]*, */rent [type]*, */build [type]* - Acquire a property here\n" +
	"*/properties* - List what you own\n" +
	"*/upgrade [#] [upgrade]* - expansion, security, luxury or efficiency\n" +
	"*/levelup [#]*, */repair [#]*, */sell [#]*, */abandon [#]*\n" +
	"*/store [#] [item] [qty]*, */retrieve [#] [item] [qty]*\n" +
	"*/transfer [from #] [to #] [item] [qty]*\n\n" +
	"*STAFF*\n" +
	"*/hire [role]* - One week's wages up front\n" +
	"*/staff* - List your employees\n" +
	"*/assign [employee #] [property #]*, */unassign [#]*\n" +
	"*/wage [#] [gold]*, */fire [#]*\n\n" +
	"*TRANSPORT*\n" +
	"*/buycart [type]*, */sellcart [#]*, */transport*\n\n" +
	"*AWAY FROM THE GAME*\n" +
	"*/autopilot* - Your steward repairs worn properties\n" +
	"*/autopilot off*, */sleep*, */wake*\n\n" +
	"Wages and rent are due every seventh day. Safe travels!"
