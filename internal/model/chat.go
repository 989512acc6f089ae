package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// ChatType distinguishes one-to-one conversations from group rooms.
type ChatType string

const (
	ChatTypeDirect ChatType = "DIRECT"
	ChatTypeGroup  ChatType = "GROUP"
)

// ID is a message or attachment identifier. The API emits numbers over REST
// and sometimes strings over the socket, so both decode into the same form.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Int64 returns the numeric form of the id, used when the server expects
// integer references (e.g. attachment_ids).
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// User is a chat participant or message sender.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// LastMessage summarizes the most recent message of a chat.
type LastMessage struct {
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	HasAttachments bool      `json:"has_attachments"`
	Sender         User      `json:"sender"`
}

// Chat is a conversation the current user participates in.
type Chat struct {
	// ID is the server-side identifier.
	ID int64 `json:"id"`

	// Name is the user-chosen title; nil means it is derived from participants.
	Name *string `json:"name"`

	// Type is DIRECT or GROUP.
	Type ChatType `json:"chat_type"`

	// Organization is the owning tenant.
	Organization int64 `json:"organization,omitempty"`

	// CreatedBy is the user id of the chat creator.
	CreatedBy *int64 `json:"created_by,omitempty"`

	// CreatedAt orders chats that have no messages yet.
	CreatedAt time.Time `json:"created_at"`

	// Participants lists members in server order.
	Participants []User `json:"participants"`

	// LastMessage is nil for chats without messages.
	LastMessage *LastMessage `json:"last_message"`

	// Unread is set when another participant posted since the last read receipt.
	Unread bool `json:"unread"`
}

// RecencyKey returns the instant used to order chats: the last message
// timestamp when present, otherwise the creation time.
func (c Chat) RecencyKey() time.Time {
	if c.LastMessage != nil && !c.LastMessage.Timestamp.IsZero() {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

// DisplayName returns a human-readable title for the chat as seen by
// currentUserID.
func (c Chat) DisplayName(currentUserID int64) string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	if c.Type == ChatTypeDirect {
		for _, p := range c.Participants {
			if p.ID != currentUserID && p.Name != "" {
				return "Direct message with " + p.Name
			}
		}
		return "Direct message with User"
	}
	return "Group Chat"
}

// Clone returns a copy that shares no mutable state with c.
func (c Chat) Clone() Chat {
	out := c
	if c.Name != nil {
		name := *c.Name
		out.Name = &name
	}
	if c.CreatedBy != nil {
		by := *c.CreatedBy
		out.CreatedBy = &by
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	out.Participants = append([]User(nil), c.Participants...)
	return out
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       ID     `json:"id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
	FileURL  string `json:"file_url"`
}

// Message is a single chat message.
type Message struct {
	ID             ID           `json:"id"`
	ChatID         int64        `json:"chat"`
	Content        string       `json:"content"`
	Sender         User         `json:"sender"`
	Timestamp      time.Time    `json:"timestamp"`
	HasAttachments bool         `json:"has_attachments"`
	Attachments    []Attachment `json:"attachments"`
}

// Summary converts the message into the chat list summary form.
func (m Message) Summary() *LastMessage {
	return &LastMessage{
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		HasAttachments: m.HasAttachments,
		Sender:         m.Sender,
	}
}
