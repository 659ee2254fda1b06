// Package notification pushes scan summaries and alerts to chat providers.
// Sends are fire-and-forget: failures are logged, never returned.
package notification

import (
	"context"
	"sync"

	"binance-ats/config"
	"binance-ats/internal/logging"
)

// Notifier interface for different notification providers
type Notifier interface {
	Name() string
	IsEnabled() bool
	SendText(ctx context.Context, text string) error
	SendFile(ctx context.Context, path, caption string) error
}

// Manager manages multiple notification providers
type Manager struct {
	mu        sync.RWMutex
	notifiers []Notifier
	enabled   bool
	muted     func() bool
	logger    *logging.Logger
}

// NewManager creates a new notification manager
func NewManager() *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
		muted:     func() bool { return false },
		logger:    logging.WithComponent("notification"),
	}
}

// NewFromConfig builds a manager with the configured providers. Providers
// that fail to initialise are logged and skipped.
func NewFromConfig(cfg config.NotificationConfig) *Manager {
	m := NewManager()
	m.enabled = cfg.Enabled

	if cfg.Telegram.Enabled {
		tg, err := NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			m.logger.Warn("telegram notifier disabled", "error", err)
		} else {
			m.AddNotifier(tg)
		}
	}
	if cfg.Discord.Enabled {
		m.AddNotifier(NewDiscordNotifier(cfg.Discord))
	}
	return m
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// SetMute installs the mute switch, consulted on every send.
func (m *Manager) SetMute(muted func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *Manager) active() []Notifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.enabled || m.muted() {
		return nil
	}
	out := make([]Notifier, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			out = append(out, n)
		}
	}
	return out
}

// SendText sends text to every enabled provider.
func (m *Manager) SendText(ctx context.Context, text string) {
	for _, n := range m.active() {
		if err := n.SendText(ctx, text); err != nil {
			logging.NotificationContext(n.Name(), "").Error("failed to send notification", "error", err)
		}
	}
}

// SendFile uploads the file at path to every enabled provider.
func (m *Manager) SendFile(ctx context.Context, path, caption string) {
	for _, n := range m.active() {
		if err := n.SendFile(ctx, path, caption); err != nil {
			logging.NotificationContext(n.Name(), "").Error("failed to send file", "path", path, "error", err)
		}
	}
}
