package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/interfaces"
)

// ClientManager handles WhatsApp client connections and turns chat commands
// into game operations
type ClientManager struct {
	clients     map[string]*ClientInfo
	gameManager interfaces.GameManager
	config      config.Config
	logger      *zap.Logger
	mutex       sync.RWMutex
}

// ClientInfo holds information about a WhatsApp client connection
type ClientInfo struct {
	UUID        string
	PhoneNumber string
	Client      *whatsmeow.Client
	Store       *store.Device
}

var _ interfaces.MessageSender = (*ClientManager)(nil)

// NewClientManager creates a new WhatsApp client manager and reconnects any
// sessions left in the store directory
func NewClientManager(gameManager interfaces.GameManager, cfg config.Config, logger *zap.Logger) *ClientManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cm := &ClientManager{
		clients:     make(map[string]*ClientInfo),
		gameManager: gameManager,
		config:      cfg,
		logger:      logger,
	}

	cm.restoreExistingSessions()

	return cm
}

func (cm *ClientManager) storePath(phoneNumber, sessionID string) string {
	return fmt.Sprintf("file:%s/store_%s_%s.db?_foreign_keys=on", cm.config.WhatsApp.StoreDir, phoneNumber, sessionID)
}

// newClient opens a session database and builds a client for its device. A
// fresh device is created when the database has none or fresh is set.
func (cm *ClientManager) newClient(dbPath string, fresh bool) (*whatsmeow.Client, *store.Device, error) {
	container, err := sqlstore.New("sqlite3", dbPath, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var deviceStore *store.Device
	if !fresh {
		deviceStore, err = container.GetFirstDevice()
	}
	if fresh || err != nil || deviceStore == nil {
		deviceStore = container.NewDevice()
	}

	store.DeviceProps.RequireFullSync = proto.Bool(true)
	store.DeviceProps.Os = proto.String(cm.config.WhatsApp.ClientName)

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	client.AddEventHandler(cm.handleWhatsAppEvent)
	return client, deviceStore, nil
}

type storedSession struct {
	file      string
	sessionID string
	modTime   time.Time
}

// restoreExistingSessions keeps the newest store file per phone number,
// removes the rest and reconnects the ones that are still paired
func (cm *ClientManager) restoreExistingSessions() {
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		cm.logger.Error("Failed to create store directory", zap.Error(err))
		return
	}

	files, err := filepath.Glob(filepath.Join(cm.config.WhatsApp.StoreDir, "store_*.db"))
	if err != nil {
		cm.logger.Error("Failed to scan for existing sessions", zap.Error(err))
		return
	}

	latest := make(map[string]storedSession)
	for _, file := range files {
		phoneNumber, sessionID, ok := parseStoreFile(filepath.Base(file))
		if !ok {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			cm.logger.Error("Failed to get file info", zap.String("file", file), zap.Error(err))
			continue
		}
		if current, exists := latest[phoneNumber]; !exists || info.ModTime().After(current.modTime) {
			latest[phoneNumber] = storedSession{file: file, sessionID: sessionID, modTime: info.ModTime()}
		}
	}

	for _, file := range files {
		phoneNumber, _, ok := parseStoreFile(filepath.Base(file))
		if !ok || latest[phoneNumber].file == file {
			continue
		}
		if err := os.Remove(file); err != nil {
			cm.logger.Error("Failed to remove old session file", zap.String("file", file), zap.Error(err))
			continue
		}
		cm.logger.Info("Removed old session file", zap.String("file", file))
	}

	for phoneNumber, session := range latest {
		client, deviceStore, err := cm.newClient(cm.storePath(phoneNumber, session.sessionID), false)
		if err != nil {
			cm.logger.Error("Failed to restore session", zap.String("phone_number", phoneNumber), zap.Error(err))
			continue
		}

		cm.mutex.Lock()
		cm.clients[phoneNumber] = &ClientInfo{
			UUID:        session.sessionID,
			PhoneNumber: phoneNumber,
			Client:      client,
			Store:       deviceStore,
		}
		cm.mutex.Unlock()

		if client.Store.ID == nil {
			cm.logger.Info("Session requires QR code login", zap.String("phone_number", phoneNumber))
			continue
		}
		go func(phone string, cli *whatsmeow.Client) {
			if err := cli.Connect(); err != nil {
				cm.logger.Error("Failed to connect restored client", zap.String("phone_number", phone), zap.Error(err))
				return
			}
			cm.logger.Info("Connected restored client", zap.String("phone_number", phone))
		}(phoneNumber, client)
	}
}

// parseStoreFile splits "store_<phone>_<session>.db". Session IDs are UUIDs
// and may not contain underscores, phone numbers never do.
func parseStoreFile(name string) (phoneNumber, sessionID string, ok bool) {
	if !strings.HasPrefix(name, "store_") || !strings.HasSuffix(name, ".db") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(name, "store_"), ".db"), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// SetupClient initializes a WhatsApp client for a session
func (cm *ClientManager) SetupClient(sessionID, phoneNumber string) (*whatsmeow.Client, error) {
	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	client, deviceStore, err := cm.newClient(cm.storePath(phoneNumber, sessionID), false)
	if err != nil {
		return nil, err
	}

	cm.mutex.Lock()
	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}
	cm.mutex.Unlock()

	return client, nil
}

// GetClient retrieves a WhatsApp client by phone number, reconnecting it
// when it is paired but offline
func (cm *ClientManager) GetClient(phoneNumber string) (*whatsmeow.Client, bool) {
	cm.mutex.RLock()
	clientInfo, exists := cm.clients[phoneNumber]
	cm.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if !clientInfo.Client.IsConnected() && clientInfo.Store.ID != nil {
		if err := clientInfo.Client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client", zap.String("phone_number", phoneNumber), zap.Error(err))
			return nil, false
		}
		cm.logger.Info("Reconnected client", zap.String("phone_number", phoneNumber))
	}

	return clientInfo.Client, true
}

// GetQRChannel replaces any client for phoneNumber with a fresh device and
// returns the channel its pairing codes arrive on
func (cm *ClientManager) GetQRChannel(phoneNumber string) (<-chan whatsmeow.QRChannelItem, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if clientInfo, exists := cm.clients[phoneNumber]; exists {
		clientInfo.Client.Disconnect()
		delete(cm.clients, phoneNumber)
	}

	if err := os.MkdirAll(cm.config.WhatsApp.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	sessionID := uuid.New().String()
	client, deviceStore, err := cm.newClient(cm.storePath(phoneNumber, sessionID), true)
	if err != nil {
		return nil, err
	}

	// The QR channel must exist before connecting
	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get QR channel: %w", err)
	}

	cm.clients[phoneNumber] = &ClientInfo{
		UUID:        sessionID,
		PhoneNumber: phoneNumber,
		Client:      client,
		Store:       deviceStore,
	}

	go func() {
		if err := client.Connect(); err != nil {
			cm.logger.Error("Failed to connect client", zap.String("phone_number", phoneNumber), zap.Error(err))
			return
		}
		cm.logger.Info("Client connected", zap.String("phone_number", phoneNumber))
	}()

	return qrChan, nil
}

// Connect establishes a connection to WhatsApp
func (cm *ClientManager) Connect(phoneNumber string) error {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	return client.Connect()
}

// Disconnect closes a specific WhatsApp connection
func (cm *ClientManager) Disconnect(phoneNumber string) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	clientInfo, exists := cm.clients[phoneNumber]
	if !exists {
		return fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	clientInfo.Client.Disconnect()
	delete(cm.clients, phoneNumber)
	return nil
}

// DisconnectAll closes all WhatsApp connections
func (cm *ClientManager) DisconnectAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	for phoneNumber, clientInfo := range cm.clients {
		if clientInfo.Client != nil {
			clientInfo.Client.Disconnect()
			cm.logger.Info("Disconnected client", zap.String("phone_number", phoneNumber))
		}
	}

	cm.clients = make(map[string]*ClientInfo)
}

// IsLoggedIn checks if a client is logged in
func (cm *ClientManager) IsLoggedIn(phoneNumber string) (bool, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return false, fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	return client.IsLoggedIn(), nil
}

// SendTextMessage sends a text message through the client paired with
// phoneNumber
func (cm *ClientManager) SendTextMessage(phoneNumber, recipient, message string) (string, error) {
	client, exists := cm.GetClient(phoneNumber)
	if !exists {
		return "", fmt.Errorf("client not found for phone number: %s", phoneNumber)
	}

	recipientJID, err := parseJID(recipient)
	if err != nil {
		return "", err
	}

	return send(client, recipientJID, message)
}

// SendMessage implements interfaces.MessageSender. Game notices are
// addressed to players, not to bot numbers, so they go out through the bot
// client when phoneNumber has none of its own.
func (cm *ClientManager) SendMessage(phoneNumber, recipient, message string) (string, error) {
	if _, exists := cm.GetClient(phoneNumber); exists {
		return cm.SendTextMessage(phoneNumber, recipient, message)
	}

	client := cm.botClient()
	if client == nil {
		return "", fmt.Errorf("no WhatsApp client available")
	}
	recipientJID, err := parseJID(recipient)
	if err != nil {
		return "", err
	}
	return send(client, recipientJID, message)
}

// botClient returns any connected client
func (cm *ClientManager) botClient() *whatsmeow.Client {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	for _, clientInfo := range cm.clients {
		if clientInfo.Client != nil {
			return clientInfo.Client
		}
	}
	return nil
}

func send(client *whatsmeow.Client, to waTypes.JID, message string) (string, error) {
	msg := &waProto.Message{
		Conversation: proto.String(message),
	}

	response, err := client.SendMessage(context.Background(), to, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return response.ID, nil
}

// handleWhatsAppEvent processes incoming WhatsApp events
func (cm *ClientManager) handleWhatsAppEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		cm.handleIncomingMessage(v)
	case *events.Connected:
		cm.logger.Info("WhatsApp client connected")
	case *events.Disconnected:
		cm.logger.Info("WhatsApp client disconnected")
	case *events.LoggedOut:
		cm.logger.Info("WhatsApp client logged out")
	}
}

// handleIncomingMessage answers chat commands. Private chats use "/cmd",
// group chats "/ cmd".
func (cm *ClientManager) handleIncomingMessage(message *events.Message) {
	if message.Info.MessageSource.IsFromMe {
		return
	}

	content := message.Message.GetConversation()
	if content == "" {
		content = message.Message.GetExtendedTextMessage().GetText()
	}
	if content == "" {
		return
	}

	if message.Info.Chat.Server == waTypes.GroupServer {
		if !strings.HasPrefix(content, "/ ") {
			return
		}
		content = "/" + strings.TrimPrefix(content, "/ ")
	} else if !strings.HasPrefix(content, "/") {
		return
	}

	cm.logger.Debug("Received message",
		zap.String("content", content),
		zap.String("sender", message.Info.Sender.User),
		zap.String("chat", message.Info.Chat.User))

	response := cm.processGameCommand(message.Info.Sender.User, content)
	if response == "" {
		return
	}

	client := cm.botClient()
	if client == nil {
		cm.logger.Error("No client available to send response")
		return
	}
	if _, err := send(client, message.Info.Chat, response); err != nil {
		cm.logger.Error("Failed to send response",
			zap.String("sender", message.Info.Sender.User),
			zap.Error(err))
	}
}

// parseJID converts a string to a WhatsApp JID
func parseJID(jidString string) (waTypes.JID, error) {
	if !strings.ContainsRune(jidString, '@') {
		// Assume this is a phone number
		jidString = jidString + "@" + waTypes.DefaultUserServer
	}

	return waTypes.ParseJID(jidString)
}
