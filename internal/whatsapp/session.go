package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	"github.com/user/medieval-trader/config"
	"github.com/user/medieval-trader/internal/types"
)

// QRCodeManager handles QR code generation and authentication
type QRCodeManager struct {
	clientManager *ClientManager
	config        config.Config
	logger        *zap.Logger
	timeout       time.Duration
}

// NewQRCodeManager creates a new QR code manager
func NewQRCodeManager(clientManager *ClientManager, cfg config.Config, logger *zap.Logger) *QRCodeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QRCodeManager{
		clientManager: clientManager,
		config:        cfg,
		logger:        logger,
		timeout:       time.Duration(cfg.WhatsApp.PairingTimeout) * time.Second,
	}
}

// GenerateQRCode starts pairing for phoneNumber, writes the first code to a
// PNG in the store directory and returns the code
func (qm *QRCodeManager) GenerateQRCode(ctx context.Context, sessionID, phoneNumber string) (string, error) {
	client, exists := qm.clientManager.GetClient(phoneNumber)
	if !exists {
		var err error
		client, err = qm.clientManager.SetupClient(sessionID, phoneNumber)
		if err != nil {
			return "", fmt.Errorf("failed to set up client: %w", err)
		}
	}

	if client.IsLoggedIn() {
		return "", fmt.Errorf("client already logged in")
	}

	qrChan, err := client.GetQRChannel(context.Background())
	if err != nil {
		return "", fmt.Errorf("failed to get QR channel: %w", err)
	}

	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}

	qrDir := filepath.Join(qm.config.WhatsApp.StoreDir, "qrcodes")
	if err := os.MkdirAll(qrDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create QR code directory: %w", err)
	}

	timeout := qm.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	select {
	case evt := <-qrChan:
		if evt.Event != "code" {
			return "", fmt.Errorf("unexpected QR event: %s", evt.Event)
		}
		qrPath := filepath.Join(qrDir, fmt.Sprintf("%s_%s.png", phoneNumber, sessionID))
		if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 256, qrPath); err != nil {
			return "", fmt.Errorf("failed to generate QR code image: %w", err)
		}

		qm.logger.Info("QR code generated",
			zap.String("phone_number", phoneNumber),
			zap.String("session_id", sessionID),
			zap.String("path", qrPath))

		return evt.Code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for QR code")
	}
}

// QRCodePNG renders a pairing code as a PNG image
func QRCodePNG(code string) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, 256)
}

// SessionManager handles WhatsApp session management
type SessionManager struct {
	storeDir string
	logger   *zap.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(storeDir string, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		storeDir: storeDir,
		logger:   logger,
	}
}

// SessionInfo holds information about a WhatsApp session
type SessionInfo struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	JID         string    `json:"jid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListSessions returns every session database in the store directory.
// Sessions that never finished pairing have no JID.
func (sm *SessionManager) ListSessions() ([]SessionInfo, error) {
	if err := os.MkdirAll(sm.storeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(sm.storeDir, "store_*.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to list session files: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(matches))
	for _, match := range matches {
		phoneNumber, sessionID, ok := parseStoreFile(filepath.Base(match))
		if !ok {
			sm.logger.Warn("Failed to parse session filename", zap.String("filename", filepath.Base(match)))
			continue
		}

		info := SessionInfo{ID: sessionID, PhoneNumber: phoneNumber}
		if stat, err := os.Stat(match); err == nil {
			info.CreatedAt = stat.ModTime()
		}

		container, err := sqlstore.New("sqlite3", "file:"+match+"?_foreign_keys=on", waLog.Stdout("Database", "ERROR", true))
		if err != nil {
			sm.logger.Warn("Failed to open session database", zap.String("path", match), zap.Error(err))
			continue
		}
		if deviceStore, err := container.GetFirstDevice(); err == nil && deviceStore != nil && deviceStore.ID != nil {
			info.JID = deviceStore.ID.String()
		}

		sessions = append(sessions, info)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].PhoneNumber < sessions[j].PhoneNumber })
	return sessions, nil
}

// SaveSession persists session information
func (sm *SessionManager) SaveSession(session SessionInfo) error {
	sessionsDir := filepath.Join(sm.storeDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := filepath.Join(sessionsDir, fmt.Sprintf("%s_%s.json", session.PhoneNumber, session.ID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	return nil
}

// DeleteSession removes a WhatsApp session
func (sm *SessionManager) DeleteSession(phoneNumber, sessionID string) error {
	dbPath := filepath.Join(sm.storeDir, fmt.Sprintf("store_%s_%s.db", phoneNumber, sessionID))
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session database: %w", err)
	}

	infoPath := filepath.Join(sm.storeDir, "sessions", fmt.Sprintf("%s_%s.json", phoneNumber, sessionID))
	if err := os.Remove(infoPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session info: %w", err)
	}

	return nil
}

// MessageFormatter renders game views as WhatsApp text
type MessageFormatter struct{}

// NewMessageFormatter creates a new message formatter
func NewMessageFormatter() *MessageFormatter {
	return &MessageFormatter{}
}

// FormatStatus renders a player's position
func (mf *MessageFormatter) FormatStatus(status *types.PlayerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* - day %d, week %d\n\n", status.Name, status.Day, status.Week)
	fmt.Fprintf(&b, "Location: %s\n", status.LocationName)
	fmt.Fprintf(&b, "Gold: %d\n", status.Gold)
	fmt.Fprintf(&b, "Load: %d/%d lbs, speed x%.2f\n", status.Load, status.Capacity, status.Speed)
	fmt.Fprintf(&b, "Properties: %d (about %d gold/day)\n", status.Properties, status.DailyIncome)
	fmt.Fprintf(&b, "Employees: %d (%d gold/week in wages)\n", status.Employees, status.WeeklyWages)
	fmt.Fprintf(&b, "Transport: %d\n", status.Transport)
	if status.Status != types.StatusActive {
		fmt.Fprintf(&b, "Mode: %s\n", status.Status)
	}
	fmt.Fprintf(&b, "\nEarned %d gold so far, paid %d in wages.", status.Stats.TotalIncome, status.Stats.TotalWagesPaid)
	return b.String()
}

// FormatMarket renders what a location offers
func (mf *MessageFormatter) FormatMarket(market *types.Market) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*MARKET OF %s*\n", strings.ToUpper(market.Name))

	if len(market.Properties) > 0 {
		b.WriteString("\n*Property* (buy / build / rent per week, income per day)\n")
		for _, p := range market.Properties {
			fmt.Fprintf(&b, "%s: %d / %d / %d, ~%d\n", p.Type, p.BuyPrice, p.BuildPrice, p.WeeklyRent, p.Income)
		}
	}

	if len(market.Employees) > 0 {
		b.WriteString("\n*Looking for work* (gold per day)\n")
		for _, e := range market.Employees {
			fmt.Fprintf(&b, "%s: %d\n", e.Type, e.Wage)
		}
	}

	if len(market.Transport) > 0 {
		b.WriteString("\n*Transport*\n")
		for _, t := range market.Transport {
			fmt.Fprintf(&b, "%s (%s): %d gold, carries %d lbs\n", t.Type, t.Category, t.Price, t.Capacity)
		}
	}

	if len(market.Roads) > 0 {
		dests := make([]string, 0, len(market.Roads))
		for dest := range market.Roads {
			dests = append(dests, dest)
		}
		sort.Strings(dests)
		b.WriteString("\n*Roads*\n")
		for _, dest := range dests {
			fmt.Fprintf(&b, "%s: %d days\n", dest, market.Roads[dest])
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
