package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/teamdesk/internal/model"
	"github.com/nhle/teamdesk/internal/theme"
)

// chatItem wraps a model.Chat so it can be used in a bubbles/list.
type chatItem struct {
	chat   model.Chat
	userID int64
}

// FilterValue returns the string used for fuzzy filtering.
func (i chatItem) FilterValue() string { return i.chat.DisplayName(i.userID) }

// Title returns the chat name for the list.
func (i chatItem) Title() string { return i.chat.DisplayName(i.userID) }

// Description returns the last message preview.
func (i chatItem) Description() string {
	lm := i.chat.LastMessage
	if lm == nil {
		return "no messages yet"
	}
	content := lm.Content
	if content == "" && lm.HasAttachments {
		content = "sent an attachment"
	}
	return fmt.Sprintf("%s: %s", lm.Sender.Name, content)
}

// chatDelegate implements list.ItemDelegate for chat rows.
type chatDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d chatDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d chatDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d chatDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a chat name with an unread marker and a preview line.
func (d chatDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(chatItem)
	if !ok {
		return
	}

	marker := "  "
	if ci.chat.Unread {
		marker = theme.UnreadStyle.Render("● ")
	}

	title := marker + ci.Title()
	preview := truncate(ci.Description(), m.Width()-4)
	if ci.chat.LastMessage != nil {
		preview = truncate(ci.Description(), m.Width()-12) + " " +
			theme.TimestampStyle.Render(relativeTime(ci.chat.LastMessage.Timestamp, d.now()))
	}

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(title+"\n  "+theme.HelpStyle.Render(preview)))
}

// relativeTime formats t relative to now as a compact string
// like "3m", "2h" or "5d".
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// truncate shortens s to width runes, adding an ellipsis when cut.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
