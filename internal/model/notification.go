package model

import "time"

// NotificationKind identifies what raised a notification.
type NotificationKind string

const (
	// NotificationReminder is raised when a task crosses a watched threshold.
	NotificationReminder NotificationKind = "reminder"

	// NotificationComingUp is raised once when a task is first seen inside
	// the reminder window.
	NotificationComingUp NotificationKind = "coming_up"

	// NotificationMessage is raised for chat messages in unread chats.
	NotificationMessage NotificationKind = "message"
)

// NotificationTypeMessage is the Type of chat message notifications.
const NotificationTypeMessage = "MESSAGE"

// Notification is an alert surfaced to the user in the in-app feed.
type Notification struct {
	// ID deduplicates entries in the feed. Task notifications use
	// "{taskId}-{minutesUntilDue}".
	ID string `json:"id"`

	// Kind identifies the producer.
	Kind NotificationKind `json:"kind"`

	// Type mirrors the task type, or MESSAGE for chat alerts.
	Type string `json:"type"`

	// Title is the short headline, also used for OS notifications.
	Title string `json:"title"`

	// Message is the human-readable body.
	Message string `json:"message"`

	// TaskID links task notifications to their source task.
	TaskID int64 `json:"task_id,omitempty"`

	// ChatID links message notifications to their chat.
	ChatID int64 `json:"chat_id,omitempty"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`

	// AutoDismiss removes the notification after the given delay.
	// Zero keeps it until the user dismisses it.
	AutoDismiss time.Duration `json:"-"`
}
