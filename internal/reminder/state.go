package reminder

import (
	"fmt"
	"slices"
	"time"

	"github.com/nhle/teamdesk/internal/model"
)

// phase is where a task sits relative to its due time.
type phase int

const (
	phaseFar phase = iota
	phaseApproaching
	phaseFired
	phaseOverdue
	phaseCompleted
)

func (p phase) String() string {
	switch p {
	case phaseFar:
		return "far"
	case phaseApproaching:
		return "approaching"
	case phaseFired:
		return "fired"
	case phaseOverdue:
		return "overdue"
	case phaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// checkKind selects which rule a transition evaluates.
type checkKind int

const (
	// checkInitial runs when the task list is fetched.
	checkInitial checkKind = iota
	// checkInterval runs on every threshold tick.
	checkInterval
)

// taskState is the per-task bookkeeping kept between checks.
type taskState struct {
	phase          phase
	initialChecked bool
	// lastThreshold is the most recent threshold that matched, -1 for none.
	lastThreshold int
}

func newTaskState() taskState {
	return taskState{lastThreshold: -1}
}

// event is a notification the scheduler should raise.
type event struct {
	kind    model.NotificationKind
	minutes int
}

// rules holds the thresholds and window a transition is evaluated against.
type rules struct {
	thresholds []int
	window     int
	loc        *time.Location
}

// minutesUntil returns floor((due - now) / 1m).
func (r rules) minutesUntil(t model.Task, now time.Time) (int, error) {
	due, err := t.DueAt(r.loc)
	if err != nil {
		return 0, err
	}
	return floorMinutes(due.Sub(now)), nil
}

// floorMinutes rounds toward negative infinity, so 30 seconds overdue is -1.
func floorMinutes(d time.Duration) int {
	m := d / time.Minute
	if d%time.Minute < 0 {
		m--
	}
	return int(m)
}

// transition advances s for a task that is minutes away from its due time.
// It has no side effects; the caller raises the returned events.
func (r rules) transition(s taskState, t model.Task, minutes int, check checkKind) (taskState, []event) {
	if s.phase == phaseCompleted || t.IsCompleted() {
		s.phase = phaseCompleted
		return s, nil
	}

	switch {
	case minutes < 0:
		s.phase = phaseOverdue
	case minutes <= r.window:
		s.phase = phaseApproaching
	default:
		s.phase = phaseFar
	}

	var events []event
	switch check {
	case checkInitial:
		if !s.initialChecked && minutes > 0 && minutes <= r.window {
			s.initialChecked = true
			events = append(events, event{kind: model.NotificationComingUp, minutes: minutes})
		}
	case checkInterval:
		if slices.Contains(r.thresholds, minutes) {
			s.phase = phaseFired
			s.lastThreshold = minutes
			events = append(events, event{kind: model.NotificationReminder, minutes: minutes})
		}
	}

	return s, events
}

// notificationID is the composite id shared by the feed and the debouncer.
func notificationID(taskID int64, minutes int) string {
	return fmt.Sprintf("%d-%d", taskID, minutes)
}

// reminderMessage renders the body for a task that is minutes away.
func reminderMessage(t model.Task, minutes int) string {
	when := fmt.Sprintf("in %d minutes", minutes)
	if minutes == 0 {
		when = "now"
	}

	switch t.Type {
	case model.TaskTypeMeeting:
		return fmt.Sprintf(`Meeting "%s" starting %s`, t.Title, when)
	case model.TaskTypeDeadline:
		return fmt.Sprintf(`Deadline "%s" due %s`, t.Title, when)
	case model.TaskTypeProject:
		return fmt.Sprintf(`Project "%s" due %s`, t.Title, when)
	case model.TaskTypeReminder:
		return fmt.Sprintf(`Reminder "%s" %s`, t.Title, when)
	case model.TaskTypePersonal:
		return fmt.Sprintf(`Personal task "%s" due %s`, t.Title, when)
	default:
		return fmt.Sprintf(`Task "%s" due %s`, t.Title, when)
	}
}
