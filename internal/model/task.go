package model

import (
	"fmt"
	"strings"
	"time"
)

// TaskType classifies a task on the calendar.
type TaskType string

const (
	TaskTypePersonal TaskType = "PERSONAL"
	TaskTypeMeeting  TaskType = "MEETING"
	TaskTypeProject  TaskType = "PROJECT"
	TaskTypeDeadline TaskType = "DEADLINE"
	TaskTypeReminder TaskType = "REMINDER"
)

// Task status values as reported by the API.
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusReview     = "REVIEW"
	TaskStatusCompleted  = "COMPLETED"
)

// Task priority values as reported by the API.
const (
	TaskPriorityLow    = "LOW"
	TaskPriorityMedium = "MEDIUM"
	TaskPriorityHigh   = "HIGH"
	TaskPriorityUrgent = "URGENT"
)

// Task is a work item assigned to the current user.
type Task struct {
	// ID is the server-side identifier.
	ID int64 `json:"id"`

	// Title is the human-readable summary.
	Title string `json:"title"`

	// Description is the full body text.
	Description string `json:"description,omitempty"`

	// Type drives the wording of reminders.
	Type TaskType `json:"type"`

	// Status is one of the TaskStatus* constants.
	Status string `json:"status"`

	// Priority is one of the TaskPriority* constants.
	Priority string `json:"priority,omitempty"`

	// DueDate is the calendar date the task is due. The API may append a
	// time component after a "T"; only the date part is meaningful.
	DueDate string `json:"due_date"`

	// Time is the wall-clock time of day the task is due (HH:MM or HH:MM:SS).
	Time string `json:"time"`

	// Duration is the expected length in minutes.
	Duration int `json:"duration,omitempty"`
}

// IsCompleted reports whether the task reached its terminal status.
func (t Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// dueLayouts are the accepted date+time combinations.
var dueLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// DueAt combines DueDate and Time into an instant interpreted as wall-clock
// time in loc.
func (t Task) DueAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	date, _, _ := strings.Cut(t.DueDate, "T")
	if date == "" {
		return time.Time{}, fmt.Errorf("task %d has no due date", t.ID)
	}

	clock := strings.TrimSpace(t.Time)
	if clock == "" {
		clock = "00:00"
	}

	value := date + "T" + clock
	for _, layout := range dueLayouts {
		if due, err := time.ParseInLocation(layout, value, loc); err == nil {
			return due, nil
		}
	}

	return time.Time{}, fmt.Errorf("parsing due instant %q for task %d", value, t.ID)
}
