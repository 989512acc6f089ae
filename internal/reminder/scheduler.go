package reminder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/teamdesk/internal/api"
	"github.com/nhle/teamdesk/internal/model"
	"github.com/nhle/teamdesk/internal/notify"
)

// Notification titles used for the OS surface and the feed.
const (
	TitleReminder = "Task Reminder"
	TitleComingUp = "Task Coming Up"
)

// fetchTimeout is the maximum time allowed for a single task fetch.
const fetchTimeout = 30 * time.Second

// TaskSource lists the tasks of the current user.
type TaskSource interface {
	ListTasks(ctx context.Context, q api.TaskQuery) ([]model.Task, error)
}

// Sink receives in-app notifications.
type Sink interface {
	Add(n model.Notification) bool
	Remove(id string) bool
}

// Focus reports whether the application is in the background.
type Focus interface {
	Hidden() bool
}

// Config tunes the scheduler.
type Config struct {
	Thresholds    []int
	PollInterval  time.Duration
	CheckInterval time.Duration
	// Debounce is the window of the Debouncer built from this config.
	Debounce      time.Duration
	WindowMin     int
	AutoDismiss   time.Duration
	Location      *time.Location
}

// defaultDebounce is the suppression window used when none is configured.
const defaultDebounce = time.Minute

// ConfigFromModel converts the file configuration.
func ConfigFromModel(c model.ReminderConfig) Config {
	debounce := time.Duration(c.DebounceSec) * time.Second
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return Config{
		Thresholds:    append([]int(nil), c.Thresholds...),
		PollInterval:  time.Duration(c.PollIntervalSec) * time.Second,
		CheckInterval: time.Duration(c.CheckIntervalSec) * time.Second,
		Debounce:      debounce,
		WindowMin:     c.WindowMin,
		AutoDismiss:   time.Duration(c.AutoDismissSec) * time.Second,
		Location:      time.Local,
	}
}

// Status summarizes the last task fetch.
type Status struct {
	LastFetch time.Time
	TaskCount int
	Error     error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithNotifier sets the OS notification surface.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithFocus sets the focus source used to decide on OS notifications.
func WithFocus(f Focus) Option {
	return func(s *Scheduler) { s.focus = f }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler polls the task list and raises reminders as tasks approach
// their due time.
type Scheduler struct {
	source    TaskSource
	sink      Sink
	debouncer *Debouncer
	notifier  notify.Notifier
	focus     Focus
	logger    *zap.SugaredLogger
	now       func() time.Time
	cfg       Config
	rules     rules

	mu         sync.Mutex
	tasks      []model.Task
	states     map[int64]taskState
	permission notify.Permission
	status     Status
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup

	// checkMu serializes threshold checks so a flag is read and written
	// by one check at a time.
	checkMu   sync.Mutex
	triggerCh chan struct{}
}

// New creates a scheduler. Without a notifier only the in-app feed is used.
func New(source TaskSource, sink Sink, debouncer *Debouncer, cfg Config, opts ...Option) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.WindowMin <= 0 {
		cfg.WindowMin = 60
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{
		source:     source,
		sink:       sink,
		debouncer:  debouncer,
		focus:      notify.NewFocusTracker(),
		logger:     zap.NewNop().Sugar(),
		now:        time.Now,
		cfg:        cfg,
		rules:      rules{thresholds: cfg.Thresholds, window: cfg.WindowMin, loc: cfg.Location},
		states:     make(map[int64]taskState),
		permission: notify.PermissionUnsupported,
		triggerCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestNotificationPermission resolves the OS notification capability.
// Anything but granted leaves reminders in-app only.
func (s *Scheduler) RequestNotificationPermission(ctx context.Context) notify.Permission {
	perm := notify.PermissionUnsupported
	if s.notifier != nil {
		perm = s.notifier.RequestPermission(ctx)
	}

	s.mu.Lock()
	s.permission = perm
	s.mu.Unlock()

	s.logger.Infow("notification permission", "permission", perm.String())
	return perm
}

// Start purges stale debounce flags, resolves the notification permission
// and starts the poll and check loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if n, err := s.debouncer.PurgeExpired(ctx); err != nil {
		s.logger.Warnw("purging debounce flags", "error", err)
	} else if n > 0 {
		s.logger.Debugw("purged debounce flags", "count", n)
	}

	s.RequestNotificationPermission(ctx)

	s.wg.Add(1)
	go s.run(ctx, stopCh)
}

// Stop halts the loops and cancels pending debounce timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.debouncer.Stop()
}

// Refresh triggers an immediate task fetch.
func (s *Scheduler) Refresh() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

func (s *Scheduler) run(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	checkTicker := time.NewTicker(s.cfg.CheckInterval)
	defer checkTicker.Stop()

	_ = s.FetchTasks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-pollTicker.C:
			_ = s.FetchTasks(ctx)
		case <-s.triggerCh:
			_ = s.FetchTasks(ctx)
		case <-checkTicker.C:
			s.CheckReminderIntervals(ctx)
		}
	}
}

// firing pairs an event with the task that raised it.
type firing struct {
	task model.Task
	ev   event
}

// FetchTasks refreshes the task cache and runs the one-time coming-up check
// for tasks seen for the first time inside the window. On failure the
// previous cache is kept.
func (s *Scheduler) FetchTasks(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	tasks, err := s.source.ListTasks(fetchCtx, api.TaskQuery{})
	if err != nil {
		if api.IsAuthError(err) {
			s.logger.Errorw("fetching tasks: authentication expired, run setup again", "error", err)
		} else {
			s.logger.Errorw("fetching tasks", "error", err)
		}
		s.mu.Lock()
		s.status.Error = err
		s.mu.Unlock()
		return err
	}

	now := s.now()

	s.mu.Lock()
	s.tasks = tasks
	s.status = Status{LastFetch: now, TaskCount: len(tasks)}

	var fired []firing
	for _, t := range tasks {
		st, ok := s.states[t.ID]
		if !ok {
			st = newTaskState()
		}

		minutes, err := s.rules.minutesUntil(t, now)
		if err != nil {
			s.logger.Debugw("skipping task without due time", "task_id", t.ID, "error", err)
			continue
		}

		st, events := s.rules.transition(st, t, minutes, checkInitial)
		s.states[t.ID] = st
		for _, ev := range events {
			fired = append(fired, firing{task: t, ev: ev})
		}
	}
	s.mu.Unlock()

	for _, f := range fired {
		s.raise(f)
	}
	return nil
}

// CheckReminderIntervals raises a reminder for every cached task whose
// minutes until due equal a threshold, unless one was raised for the same
// task and threshold within the debounce window.
func (s *Scheduler) CheckReminderIntervals(ctx context.Context) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	now := s.now()

	s.mu.Lock()
	var fired []firing
	for _, t := range s.tasks {
		st, ok := s.states[t.ID]
		if !ok {
			st = newTaskState()
		}

		minutes, err := s.rules.minutesUntil(t, now)
		if err != nil {
			continue
		}

		st, events := s.rules.transition(st, t, minutes, checkInterval)
		s.states[t.ID] = st
		for _, ev := range events {
			fired = append(fired, firing{task: t, ev: ev})
		}
	}
	s.mu.Unlock()

	for _, f := range fired {
		id := notificationID(f.task.ID, f.ev.minutes)

		shown, err := s.debouncer.Shown(ctx, id)
		if err != nil {
			s.logger.Warnw("checking debounce flag", "id", id, "error", err)
			continue
		}
		if shown {
			s.logger.Debugw("reminder suppressed", "id", id)
			continue
		}

		if err := s.debouncer.Mark(ctx, id); err != nil {
			s.logger.Warnw("marking debounce flag", "id", id, "error", err)
		}
		s.raise(f)
	}
}

// Dismiss removes a notification from the feed.
func (s *Scheduler) Dismiss(id string) bool {
	return s.sink.Remove(id)
}

// Tasks returns a copy of the cached task list.
func (s *Scheduler) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

// Status returns the outcome of the last fetch.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// raise adds the notification to the feed and, when allowed and the
// application is in the background, to the OS surface.
func (s *Scheduler) raise(f firing) {
	title := TitleReminder
	if f.ev.kind == model.NotificationComingUp {
		title = TitleComingUp
	}

	n := model.Notification{
		ID:          notificationID(f.task.ID, f.ev.minutes),
		Kind:        f.ev.kind,
		Type:        string(f.task.Type),
		Title:       title,
		Message:     reminderMessage(f.task, f.ev.minutes),
		TaskID:      f.task.ID,
		CreatedAt:   s.now(),
		AutoDismiss: s.cfg.AutoDismiss,
	}

	if s.sink.Add(n) {
		s.logger.Infow("reminder raised", "id", n.ID, "message", n.Message)
	}

	s.mu.Lock()
	perm := s.permission
	s.mu.Unlock()

	if perm == notify.PermissionGranted && s.focus.Hidden() && s.notifier != nil {
		if err := s.notifier.Notify(title, n.Message); err != nil {
			s.logger.Warnw("desktop notification failed", "id", n.ID, "error", err)
		}
	}
}
