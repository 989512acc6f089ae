package notify

import (
	"sync"
	"time"

	"github.com/nhle/teamdesk/internal/model"
)

// Timer is the handle returned by an afterFunc. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests replace it to control expiry.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Feed is the in-app notification list. Entries are unique by id and kept
// newest first.
type Feed struct {
	mu        sync.Mutex
	items     []model.Notification
	timers    map[string]*dismissal
	subs      map[int]func([]model.Notification)
	nextSub   int
	afterFunc AfterFunc
	now       func() time.Time
}

// dismissal is a pending auto-dismiss. Its callback only removes the entry
// while the dismissal is still registered for that id.
type dismissal struct {
	timer Timer
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithAfterFunc replaces the timer used for auto-dismiss.
func WithAfterFunc(fn AfterFunc) FeedOption {
	return func(f *Feed) { f.afterFunc = fn }
}

// WithClock replaces the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) FeedOption {
	return func(f *Feed) { f.now = now }
}

// NewFeed creates an empty feed.
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		timers:    make(map[string]*dismissal),
		subs:      make(map[int]func([]model.Notification)),
		afterFunc: realAfterFunc,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add inserts n at the head of the feed. It returns false and changes
// nothing when a notification with the same id is already present.
func (f *Feed) Add(n model.Notification) bool {
	f.mu.Lock()
	for _, existing := range f.items {
		if existing.ID == n.ID {
			f.mu.Unlock()
			return false
		}
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = f.now()
	}
	f.items = append([]model.Notification{n}, f.items...)

	if n.AutoDismiss > 0 {
		id := n.ID
		d := &dismissal{}
		f.timers[id] = d
		d.timer = f.afterFunc(n.AutoDismiss, func() { f.dismiss(id, d) })
	}

	snapshot := f.snapshotLocked()
	subs := f.subscribersLocked()
	f.mu.Unlock()

	publish(subs, snapshot)
	return true
}

// Remove deletes the notification with the given id. It reports whether
// anything was removed.
func (f *Feed) Remove(id string) bool {
	return f.remove(id, nil)
}

// dismiss removes id on behalf of an auto-dismiss timer.
func (f *Feed) dismiss(id string, d *dismissal) {
	f.remove(id, d)
}

// remove deletes id. With a non-nil owner, nothing happens unless owner is
// the dismissal currently registered for id.
func (f *Feed) remove(id string, owner *dismissal) bool {
	f.mu.Lock()
	if owner != nil && f.timers[id] != owner {
		f.mu.Unlock()
		return false
	}

	idx := -1
	for i, n := range f.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.mu.Unlock()
		return false
	}

	f.items = append(f.items[:idx], f.items[idx+1:]...)
	if d, ok := f.timers[id]; ok {
		d.timer.Stop()
		delete(f.timers, id)
	}

	snapshot := f.snapshotLocked()
	subs := f.subscribersLocked()
	f.mu.Unlock()

	publish(subs, snapshot)
	return true
}

// Get returns the notification with the given id.
func (f *Feed) Get(id string) (model.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range f.items {
		if n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

// List returns a copy of the feed, newest first.
func (f *Feed) List() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// UnreadCount returns the number of unread notifications.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, n := range f.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// UnreadMessages returns the number of unread chat message notifications.
func (f *Feed) UnreadMessages() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, n := range f.items {
		if !n.Read && n.Kind == model.NotificationMessage {
			count++
		}
	}
	return count
}

// MarkAllAsRead flags every notification as read.
func (f *Feed) MarkAllAsRead() {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].Read = true
	}
	snapshot := f.snapshotLocked()
	subs := f.subscribersLocked()
	f.mu.Unlock()

	publish(subs, snapshot)
}

// Clear empties the feed and cancels pending auto-dismiss timers.
func (f *Feed) Clear() {
	f.mu.Lock()
	f.items = nil
	for id, d := range f.timers {
		d.timer.Stop()
		delete(f.timers, id)
	}
	subs := f.subscribersLocked()
	f.mu.Unlock()

	publish(subs, nil)
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function unsubscribes.
func (f *Feed) Subscribe(fn func([]model.Notification)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *Feed) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) subscribersLocked() []func([]model.Notification) {
	subs := make([]func([]model.Notification), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func([]model.Notification), snapshot []model.Notification) {
	for _, fn := range subs {
		fn(snapshot)
	}
}
