package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/nhle/teamdesk/internal/model"
)

// Upload is a file to attach to an outgoing chat message.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// ListChats returns every chat the current user participates in.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := c.Get(ctx, "/api/chats/", &chats); err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	return chats, nil
}

// ListMessages returns the full history of chatID in server order.
func (c *Client) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	var messages []model.Message
	path := fmt.Sprintf("/api/chats/%d/messages/", chatID)
	if err := c.Get(ctx, path, &messages); err != nil {
		return nil, fmt.Errorf("listing messages for chat %d: %w", chatID, err)
	}
	return messages, nil
}

// CreateMessage posts a message with attachments as multipart form data.
// The returned message carries the server-assigned attachment ids.
func (c *Client) CreateMessage(
	ctx context.Context,
	chatID int64,
	content string,
	uploads []Upload,
) (*model.Message, error) {
	body, err := multipartPayload(content, uploads)
	if err != nil {
		return nil, fmt.Errorf("encoding message for chat %d: %w", chatID, err)
	}

	var msg model.Message
	path := fmt.Sprintf("/api/chats/%d/messages/", chatID)
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, fmt.Errorf("creating message in chat %d: %w", chatID, err)
	}
	return &msg, nil
}

// MarkChatRead records a read receipt for chatID.
func (c *Client) MarkChatRead(ctx context.Context, chatID int64) error {
	path := fmt.Sprintf("/api/chats/%d/mark-read/", chatID)
	if err := c.Post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking chat %d read: %w", chatID, err)
	}
	return nil
}

// multipartPayload builds a form with a content field and one attachments
// part per upload. Bodies are read fully so the request can be retried.
func multipartPayload(content string, uploads []Upload) (*payload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("content", content); err != nil {
		return nil, fmt.Errorf("writing content field: %w", err)
	}

	for _, u := range uploads {
		contentType := u.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="attachments"; filename=%q`, u.FileName))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("creating part for %s: %w", u.FileName, err)
		}
		if u.Body != nil {
			if _, err := io.Copy(part, u.Body); err != nil {
				return nil, fmt.Errorf("copying %s: %w", u.FileName, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	return &payload{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}
