package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/teamdesk/internal/model"
)

var defaultRules = rules{thresholds: []int{45, 30, 15, 0}, window: 60, loc: time.UTC}

func TestFloorMinutes(t *testing.T) {
	require.Equal(t, 15, floorMinutes(15*time.Minute))
	require.Equal(t, 14, floorMinutes(14*time.Minute+59*time.Second))
	require.Equal(t, 0, floorMinutes(30*time.Second))
	require.Equal(t, -1, floorMinutes(-30*time.Second))
	require.Equal(t, -1, floorMinutes(-time.Minute))
	require.Equal(t, -2, floorMinutes(-61*time.Second))
}

func TestMinutesUntil(t *testing.T) {
	task := model.Task{ID: 7, DueDate: "2024-05-01T00:00:00Z", Time: "10:15:00"}
	now := time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)

	m, err := defaultRules.minutesUntil(task, now)
	require.NoError(t, err)
	require.Equal(t, 14, m)

	_, err = defaultRules.minutesUntil(model.Task{ID: 8}, now)
	require.Error(t, err)
}

func TestTransition_IntervalExactMatch(t *testing.T) {
	task := model.Task{ID: 7, Type: model.TaskTypeMeeting, Status: model.TaskStatusTodo}

	for _, m := range []int{14, 16, 44, 61} {
		s, events := defaultRules.transition(newTaskState(), task, m, checkInterval)
		require.Empty(t, events, "minutes %d", m)
		require.NotEqual(t, phaseFired, s.phase)
	}

	s, events := defaultRules.transition(newTaskState(), task, 15, checkInterval)
	require.Equal(t, []event{{kind: model.NotificationReminder, minutes: 15}}, events)
	require.Equal(t, phaseFired, s.phase)
	require.Equal(t, 15, s.lastThreshold)

	_, events = defaultRules.transition(newTaskState(), task, 0, checkInterval)
	require.Len(t, events, 1)
}

func TestTransition_Phases(t *testing.T) {
	task := model.Task{ID: 7, Status: model.TaskStatusInProgress}

	s, _ := defaultRules.transition(newTaskState(), task, 120, checkInterval)
	require.Equal(t, phaseFar, s.phase)

	s, _ = defaultRules.transition(s, task, 50, checkInterval)
	require.Equal(t, phaseApproaching, s.phase)

	s, events := defaultRules.transition(s, task, -3, checkInterval)
	require.Empty(t, events)
	require.Equal(t, phaseOverdue, s.phase)
	require.Equal(t, "overdue", s.phase.String())
}

func TestTransition_InitialCheckOnce(t *testing.T) {
	task := model.Task{ID: 7, Status: model.TaskStatusTodo}

	s, events := defaultRules.transition(newTaskState(), task, 90, checkInitial)
	require.Empty(t, events)
	require.False(t, s.initialChecked)

	s, events = defaultRules.transition(s, task, 60, checkInitial)
	require.Equal(t, []event{{kind: model.NotificationComingUp, minutes: 60}}, events)
	require.True(t, s.initialChecked)

	_, events = defaultRules.transition(s, task, 40, checkInitial)
	require.Empty(t, events)

	_, events = defaultRules.transition(newTaskState(), task, 0, checkInitial)
	require.Empty(t, events)
}

func TestTransition_CompletedIsTerminal(t *testing.T) {
	done := model.Task{ID: 7, Status: model.TaskStatusCompleted}

	s, events := defaultRules.transition(newTaskState(), done, 15, checkInterval)
	require.Empty(t, events)
	require.Equal(t, phaseCompleted, s.phase)

	s, events = defaultRules.transition(newTaskState(), done, 30, checkInitial)
	require.Empty(t, events)
	require.False(t, s.initialChecked)

	reopened := done
	reopened.Status = model.TaskStatusTodo
	_, events = defaultRules.transition(s, reopened, 15, checkInterval)
	require.Empty(t, events)
}

func TestReminderMessage(t *testing.T) {
	cases := []struct {
		typ     model.TaskType
		minutes int
		want    string
	}{
		{model.TaskTypeMeeting, 15, `Meeting "X" starting in 15 minutes`},
		{model.TaskTypeMeeting, 0, `Meeting "X" starting now`},
		{model.TaskTypeDeadline, 30, `Deadline "X" due in 30 minutes`},
		{model.TaskTypeProject, 45, `Project "X" due in 45 minutes`},
		{model.TaskTypeReminder, 0, `Reminder "X" now`},
		{model.TaskTypePersonal, 15, `Personal task "X" due in 15 minutes`},
		{"OTHER", 15, `Task "X" due in 15 minutes`},
	}

	for _, tc := range cases {
		got := reminderMessage(model.Task{Title: "X", Type: tc.typ}, tc.minutes)
		require.Equal(t, tc.want, got)
	}
}
