package feed

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/teamdesk/internal/chatsync"
	"github.com/nhle/teamdesk/internal/model"
)

// mailbox holds the latest engine and feed snapshots until the update loop
// takes them. A newer snapshot replaces an untaken one of the same kind,
// never one of the other kind.
type mailbox struct {
	mu       sync.Mutex
	state    *chatsync.State
	notes    []model.Notification
	hasNotes bool
	ready    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (b *mailbox) putState(s chatsync.State) {
	b.mu.Lock()
	b.state = &s
	b.mu.Unlock()
	b.signal()
}

func (b *mailbox) putNotes(items []model.Notification) {
	b.mu.Lock()
	b.notes = items
	b.hasNotes = true
	b.mu.Unlock()
	b.signal()
}

func (b *mailbox) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// take blocks until a snapshot is pending and returns one of them. Chat
// state goes first; anything left keeps the box signaled.
func (b *mailbox) take() tea.Msg {
	for {
		<-b.ready

		b.mu.Lock()
		var msg tea.Msg
		switch {
		case b.state != nil:
			msg = chatStateMsg{state: *b.state}
			b.state = nil
		case b.hasNotes:
			msg = notificationsMsg{items: b.notes}
			b.notes, b.hasNotes = nil, false
		}
		more := b.state != nil || b.hasNotes
		b.mu.Unlock()

		if more {
			b.signal()
		}
		if msg != nil {
			return msg
		}
	}
}
