package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/teamdesk/internal/notify"
	"github.com/nhle/teamdesk/internal/store"
)

// debouncePrefix namespaces suppression flags in the key-value store.
const debouncePrefix = "shown_notification_"

// Debouncer keeps a durable flag per notification id so the same reminder
// is not raised twice within the window. A flag is removed by a timer once
// the window elapses. Flags left by a previous process are purged or
// re-armed at startup.
type Debouncer struct {
	store     store.Store
	window    time.Duration
	afterFunc notify.AfterFunc
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*removal
}

// removal is a pending flag deletion. A fired timer only deletes the flag
// while its removal is still the current one for the id.
type removal struct {
	timer notify.Timer
}

// NewDebouncer creates a debouncer over s.
func NewDebouncer(s store.Store, window time.Duration, logger *zap.SugaredLogger) *Debouncer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if window <= 0 {
		window = defaultDebounce
	}
	return &Debouncer{
		store:  s,
		window: window,
		afterFunc: func(d time.Duration, f func()) notify.Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		logger: logger,
		timers: make(map[string]*removal),
	}
}

// Key returns the store key of notification id.
func Key(id string) string {
	return debouncePrefix + id
}

// Shown reports whether a flag exists for id. Only presence counts; an
// expired flag that was not yet removed still suppresses.
func (d *Debouncer) Shown(ctx context.Context, id string) (bool, error) {
	_, err := d.store.Get(ctx, Key(id))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading debounce flag %s: %w", id, err)
	}
	return true, nil
}

// Mark stores a flag for id and schedules its removal.
func (d *Debouncer) Mark(ctx context.Context, id string) error {
	expiry := d.now().Add(d.window)
	if err := d.store.Set(ctx, Key(id), expiry.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("writing debounce flag %s: %w", id, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.scheduleLocked(id, d.window)
	return nil
}

// scheduleLocked arms the removal of id after delay, replacing any pending
// removal. d.mu must be held.
func (d *Debouncer) scheduleLocked(id string, delay time.Duration) {
	if r, ok := d.timers[id]; ok {
		r.timer.Stop()
	}
	r := &removal{}
	d.timers[id] = r
	r.timer = d.afterFunc(delay, func() { d.expire(id, r) })
}

func (d *Debouncer) expire(id string, r *removal) {
	d.mu.Lock()
	if d.timers[id] != r {
		d.mu.Unlock()
		return
	}
	delete(d.timers, id)
	d.mu.Unlock()

	if err := d.store.Delete(context.Background(), Key(id)); err != nil {
		d.logger.Warnw("removing debounce flag", "id", id, "error", err)
	}
}

// PurgeExpired deletes flags whose expiry has passed or cannot be read and
// arms the removal of the remaining ones. It returns how many were removed.
func (d *Debouncer) PurgeExpired(ctx context.Context) (int, error) {
	entries, err := d.store.List(ctx, debouncePrefix)
	if err != nil {
		return 0, fmt.Errorf("listing debounce flags: %w", err)
	}

	now := d.now()
	purged := 0
	for _, e := range entries {
		expiry, err := time.Parse(time.RFC3339Nano, e.Value)
		if err == nil && expiry.After(now) {
			d.mu.Lock()
			d.scheduleLocked(strings.TrimPrefix(e.Key, debouncePrefix), expiry.Sub(now))
			d.mu.Unlock()
			continue
		}
		if err := d.store.Delete(ctx, e.Key); err != nil {
			return purged, fmt.Errorf("deleting debounce flag %s: %w", e.Key, err)
		}
		d.logger.Debugw("purged stale debounce flag", "id", strings.TrimPrefix(e.Key, debouncePrefix))
		purged++
	}
	return purged, nil
}

// Stop cancels pending removals. Flags left behind are purged on the next
// start.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, r := range d.timers {
		r.timer.Stop()
		delete(d.timers, id)
	}
}
