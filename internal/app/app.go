// Package app wires the chat engine, the reminder scheduler and the
// notification feed into one session.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/teamdesk/internal/api"
	"github.com/nhle/teamdesk/internal/chatsync"
	"github.com/nhle/teamdesk/internal/model"
	"github.com/nhle/teamdesk/internal/notify"
	"github.com/nhle/teamdesk/internal/reminder"
	"github.com/nhle/teamdesk/internal/store"
	"github.com/nhle/teamdesk/internal/ui/feed"
)

// App owns every service of a session. Nothing here is global: the CLI
// builds one App and hands it to the view.
type App struct {
	cfg    *model.AppConfig
	logger *zap.SugaredLogger

	store     *store.SQLiteStore
	client    *api.Client
	engine    *chatsync.Engine
	feed      *notify.Feed
	focus     *notify.FocusTracker
	notifier  notify.Notifier
	scheduler *reminder.Scheduler
}

// Option configures an App.
type Option func(*App)

// WithNotifier replaces the desktop notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// New opens the local store and builds the services from cfg.
func New(cfg *model.AppConfig, token string, logger *zap.SugaredLogger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	baseURL, err := api.TenantURL(cfg.Server.BaseURL, cfg.Server.Tenant)
	if err != nil {
		return nil, fmt.Errorf("resolving api url: %w", err)
	}

	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", cfg.Store.Path, err)
	}

	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  s,
		client: api.NewClient(baseURL, token,
			api.WithTimeout(timeout),
			api.WithLogger(logger.Named("api")),
			api.WithWebSocketURL(cfg.Server.WebSocketURL),
		),
		feed:     notify.NewFeed(),
		focus:    notify.NewFocusTracker(),
		notifier: notify.NewDesktopNotifier(cfg.Notifications.Desktop, logger.Named("notify")),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.engine = chatsync.New(a.client,
		chatsync.WithLogger(logger.Named("chat")),
		chatsync.WithToken(token),
		chatsync.WithMessageHook(a.onUnreadMessage),
	)

	rcfg := reminder.ConfigFromModel(cfg.Reminder)
	debouncer := reminder.NewDebouncer(s, rcfg.Debounce, logger.Named("debounce"))
	a.scheduler = reminder.New(a.client, a.feed, debouncer, rcfg,
		reminder.WithLogger(logger.Named("reminder")),
		reminder.WithNotifier(a.notifier),
		reminder.WithFocus(a.focus),
	)

	return a, nil
}

// Engine returns the chat engine.
func (a *App) Engine() *chatsync.Engine { return a.engine }

// Feed returns the in-app notification feed.
func (a *App) Feed() *notify.Feed { return a.feed }

// Scheduler returns the reminder scheduler.
func (a *App) Scheduler() *reminder.Scheduler { return a.scheduler }

// Start launches the scheduler and loads the chat list. With connect_all
// set, every chat gets a socket up front.
func (a *App) Start(ctx context.Context) {
	a.scheduler.Start(ctx)

	chats := a.engine.FetchChats(ctx)
	a.logger.Infow("chats loaded", "count", len(chats))

	if a.cfg.Chat.ConnectAll {
		a.engine.ConnectAll(ctx, a.cfg.User.ID)
	}
}

// Close stops background work, closes every socket and the store.
func (a *App) Close() error {
	a.scheduler.Stop()
	a.engine.CleanupWebSockets()
	a.feed.Clear()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

// RunTUI starts the session and blocks in the terminal view until the user
// quits or ctx is canceled.
func (a *App) RunTUI(ctx context.Context) error {
	a.Start(ctx)

	view := feed.New(a.engine, a.feed, a.scheduler, a.focus, a.cfg.User.ID)
	defer view.Close()

	p := tea.NewProgram(view,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running terminal view: %w", err)
	}
	return nil
}

// Watch starts the session without a terminal view and logs every new
// notification until ctx is canceled. The app counts as hidden, so OS
// notifications are raised when permitted.
func (a *App) Watch(ctx context.Context) error {
	var mu sync.Mutex
	seen := make(map[string]bool)
	unsubscribe := a.feed.Subscribe(func(items []model.Notification) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range items {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			a.logger.Infow("notification", "id", n.ID, "title", n.Title, "message", n.Message)
		}
	})
	defer unsubscribe()

	a.Start(ctx)
	<-ctx.Done()
	return nil
}

// onUnreadMessage raises a transient in-app alert for a message that left
// its chat unread.
func (a *App) onUnreadMessage(chat model.Chat, msg model.Message) {
	a.feed.Add(messageNotification(chat, msg, a.cfg.User.ID,
		time.Duration(a.cfg.Chat.NotificationDismissSec)*time.Second))
}

// messageNotification builds the feed entry for an incoming chat message.
func messageNotification(chat model.Chat, msg model.Message, userID int64, dismiss time.Duration) model.Notification {
	sender := msg.Sender.Name
	if sender == "" {
		sender = "Someone"
	}

	body := msg.Content
	if body == "" && msg.HasAttachments {
		body = "sent an attachment"
	}

	return model.Notification{
		ID:          fmt.Sprintf("message-%d-%s", chat.ID, msg.ID),
		Kind:        model.NotificationMessage,
		Type:        model.NotificationTypeMessage,
		Title:       "New message in " + chat.DisplayName(userID),
		Message:     fmt.Sprintf("%s: %s", sender, body),
		ChatID:      chat.ID,
		AutoDismiss: dismiss,
	}
}
