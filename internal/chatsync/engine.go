package chatsync

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/teamdesk/internal/api"
	"github.com/nhle/teamdesk/internal/model"
)

// API is the subset of the REST client used by the engine.
type API interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
	ListMessages(ctx context.Context, chatID int64) ([]model.Message, error)
	CreateMessage(ctx context.Context, chatID int64, content string, uploads []api.Upload) (*model.Message, error)
	MarkChatRead(ctx context.Context, chatID int64) error
	ChatSocketURL(chatID int64) string
}

// State is a snapshot of the engine. Slices and maps are copies.
type State struct {
	Chats        []model.Chat
	Messages     map[int64][]model.Message
	SelectedChat int64
	IsLoading    bool
}

// MessageHook is called after a merged message left its chat unread.
type MessageHook func(chat model.Chat, msg model.Message)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(e *Engine) { e.dialer = d }
}

// WithToken sends the access token on every socket handshake.
func WithToken(token string) Option {
	return func(e *Engine) {
		if token != "" {
			e.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithMessageHook registers a hook for messages that leave a chat unread.
func WithMessageHook(hook MessageHook) Option {
	return func(e *Engine) { e.onUnread = hook }
}

// WithConnectLimit bounds concurrent dials in ConnectAll.
func WithConnectLimit(n int) Option {
	return func(e *Engine) { e.connectLimit = n }
}

// Engine keeps chats and their messages in sync with the server over one
// WebSocket per open chat.
type Engine struct {
	client       API
	logger       *zap.SugaredLogger
	dialer       *websocket.Dialer
	header       http.Header
	onUnread     MessageHook
	connectLimit int

	mu        sync.Mutex
	chats     []model.Chat
	messages  map[int64][]model.Message
	selected  int64
	isLoading bool
	subs      map[int]func(State)
	nextSub   int

	connMu  sync.Mutex
	conns   map[int64]*Conn
	// connGen advances on every teardown; dials started before it are discarded.
	connGen uint64
	dials   singleflight.Group
}

// New creates an engine backed by client.
func New(client API, opts ...Option) *Engine {
	e := &Engine{
		client:       client,
		logger:       zap.NewNop().Sugar(),
		dialer:       websocket.DefaultDialer,
		header:       make(http.Header),
		connectLimit: 4,
		messages:     make(map[int64][]model.Message),
		subs:         make(map[int]func(State)),
		conns:        make(map[int64]*Conn),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SortChats orders chats by most recent activity, newest first. Chats
// without messages are ordered by creation time.
func SortChats(chats []model.Chat) {
	slices.SortStableFunc(chats, func(a, b model.Chat) int {
		return b.RecencyKey().Compare(a.RecencyKey())
	})
}

// FetchChats loads the chat list and replaces the local collection. On
// failure the error is logged, the collection is kept and an empty slice
// is returned.
func (e *Engine) FetchChats(ctx context.Context) []model.Chat {
	e.mu.Lock()
	e.isLoading = true
	e.mu.Unlock()

	chats, err := e.client.ListChats(ctx)
	if err != nil {
		e.logger.Errorw("fetching chats", "error", err)
		e.update(func() { e.isLoading = false })
		return []model.Chat{}
	}

	SortChats(chats)

	out := make([]model.Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}

	e.update(func() {
		e.chats = chats
		e.isLoading = false
	})
	return out
}

// SetSelectedChat records the active chat. A non-zero id loads its history
// and sends a read receipt; zero clears the selection.
func (e *Engine) SetSelectedChat(ctx context.Context, chatID int64) {
	e.update(func() { e.selected = chatID })

	if chatID == 0 {
		return
	}

	e.FetchMessages(ctx, chatID)
	e.MarkChatAsRead(ctx, chatID)
}

// FetchMessages replaces the cached history of chatID with the server copy.
func (e *Engine) FetchMessages(ctx context.Context, chatID int64) {
	messages, err := e.client.ListMessages(ctx, chatID)
	if err != nil {
		e.logger.Errorw("fetching messages", "chat_id", chatID, "error", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	e.update(func() { e.messages[chatID] = messages })
}

// MarkChatAsRead sends a read receipt and clears the local unread flag once
// the server accepted it.
func (e *Engine) MarkChatAsRead(ctx context.Context, chatID int64) {
	if err := e.client.MarkChatRead(ctx, chatID); err != nil {
		e.logger.Errorw("marking chat read", "chat_id", chatID, "error", err)
		return
	}

	e.update(func() {
		for i := range e.chats {
			if e.chats[i].ID == chatID {
				e.chats[i].Unread = false
				return
			}
		}
	})
}

// UpdateChatWithMessage merges msg into its chat. Unknown chats trigger a
// full refresh instead. Messages already present are dropped.
func (e *Engine) UpdateChatWithMessage(ctx context.Context, msg model.Message, currentUserID int64) {
	e.mu.Lock()

	idx := slices.IndexFunc(e.chats, func(c model.Chat) bool { return c.ID == msg.ChatID })
	if idx < 0 {
		e.mu.Unlock()
		e.logger.Debugw("message for unknown chat, refreshing", "chat_id", msg.ChatID)
		e.FetchChats(ctx)
		return
	}

	for _, existing := range e.messages[msg.ChatID] {
		if existing.ID == msg.ID {
			e.mu.Unlock()
			e.logger.Debugw("dropping duplicate message", "chat_id", msg.ChatID, "message_id", msg.ID)
			return
		}
	}

	chat := e.chats[idx]
	chat.LastMessage = msg.Summary()
	chat.Unread = msg.Sender.ID != currentUserID && msg.ChatID != e.selected

	// Move to front; the others keep their relative order.
	copy(e.chats[1:idx+1], e.chats[:idx])
	e.chats[0] = chat

	e.messages[msg.ChatID] = append(e.messages[msg.ChatID], msg)

	state := e.snapshotLocked()
	subs := e.subscribersLocked()
	hook := e.onUnread
	e.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
	if hook != nil && chat.Unread {
		hook(chat.Clone(), msg)
	}
}

// InitializeWebSocket returns the open socket of chatID, dialing one when
// needed. Concurrent callers for the same chat share a single dial.
func (e *Engine) InitializeWebSocket(ctx context.Context, chatID, userID int64) (*Conn, error) {
	if c := e.openConn(chatID); c != nil {
		return c, nil
	}

	v, err, _ := e.dials.Do(strconv.FormatInt(chatID, 10), func() (interface{}, error) {
		if c := e.openConn(chatID); c != nil {
			return c, nil
		}

		e.connMu.Lock()
		gen := e.connGen
		e.connMu.Unlock()

		url := e.client.ChatSocketURL(chatID)
		ws, resp, err := e.dialer.DialContext(ctx, url, e.header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("dialing chat %d: %w", chatID, err)
		}

		conn := newConn(chatID, ws, e.logger)

		e.connMu.Lock()
		if e.connGen != gen {
			e.connMu.Unlock()
			_ = conn.Close()
			return nil, fmt.Errorf("dialing chat %d: %w", chatID, ErrConnClosed)
		}
		e.conns[chatID] = conn
		e.connMu.Unlock()

		go conn.readLoop(func(msg model.Message) {
			e.UpdateChatWithMessage(context.Background(), msg, userID)
		})

		e.logger.Debugw("chat socket opened", "chat_id", chatID)
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Conn), nil
}

// ConnectAll opens a socket for every chat in the current list. Failures
// are logged per chat.
func (e *Engine) ConnectAll(ctx context.Context, userID int64) {
	e.mu.Lock()
	ids := make([]int64, len(e.chats))
	for i, c := range e.chats {
		ids[i] = c.ID
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if e.connectLimit > 0 {
		g.SetLimit(e.connectLimit)
	}
	for _, id := range ids {
		g.Go(func() error {
			if _, err := e.InitializeWebSocket(gctx, id, userID); err != nil {
				e.logger.Errorw("connecting chat", "chat_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// HandleSendMessage writes a message to the chat socket. Attachments are
// uploaded first and referenced by id. When the socket is not open the
// message is dropped and nil is returned.
func (e *Engine) HandleSendMessage(
	ctx context.Context,
	chatID int64,
	content string,
	userID int64,
	uploads ...api.Upload,
) error {
	conn := e.openConn(chatID)
	if conn == nil {
		e.logger.Warnw("chat socket not open, message dropped", "chat_id", chatID)
		return nil
	}

	frame := outboundFrame{Content: content, SenderID: userID}

	if len(uploads) > 0 {
		created, err := e.client.CreateMessage(ctx, chatID, content, uploads)
		if err != nil {
			return fmt.Errorf("uploading attachments: %w", err)
		}
		for _, a := range created.Attachments {
			id, ok := a.ID.Int64()
			if !ok {
				e.logger.Warnw("skipping non-numeric attachment id", "attachment_id", a.ID)
				continue
			}
			frame.AttachmentIDs = append(frame.AttachmentIDs, id)
		}
	}

	return conn.WriteJSON(frame)
}

// DisconnectChat closes and forgets the socket of chatID.
func (e *Engine) DisconnectChat(chatID int64) {
	e.connMu.Lock()
	conn, ok := e.conns[chatID]
	delete(e.conns, chatID)
	e.connMu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			e.logger.Debugw("closing chat socket", "chat_id", chatID, "error", err)
		}
	}
}

// CleanupWebSockets closes every tracked socket and clears the registry.
// Dials still in flight are closed when they complete.
func (e *Engine) CleanupWebSockets() {
	e.connMu.Lock()
	conns := e.conns
	e.conns = make(map[int64]*Conn)
	e.connGen++
	e.connMu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			e.logger.Debugw("closing chat socket", "chat_id", id, "error", err)
		}
	}
}

// Conn returns the tracked socket of chatID, open or not.
func (e *Engine) Conn(chatID int64) (*Conn, bool) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	c, ok := e.conns[chatID]
	return c, ok
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) openConn(chatID int64) *Conn {
	e.connMu.Lock()
	defer e.connMu.Unlock()

	if c, ok := e.conns[chatID]; ok && c.IsOpen() {
		return c
	}
	return nil
}

// update applies fn under the state lock and publishes the result.
func (e *Engine) update(fn func()) {
	e.mu.Lock()
	fn()
	state := e.snapshotLocked()
	subs := e.subscribersLocked()
	e.mu.Unlock()

	for _, sub := range subs {
		sub(state)
	}
}

func (e *Engine) snapshotLocked() State {
	chats := make([]model.Chat, len(e.chats))
	for i, c := range e.chats {
		chats[i] = c.Clone()
	}

	messages := make(map[int64][]model.Message, len(e.messages))
	for id, list := range e.messages {
		messages[id] = slices.Clone(list)
	}

	return State{
		Chats:        chats,
		Messages:     messages,
		SelectedChat: e.selected,
		IsLoading:    e.isLoading,
	}
}

func (e *Engine) subscribersLocked() []func(State) {
	subs := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	return subs
}
