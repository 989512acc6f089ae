package chatsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"github.com/nhle/teamdesk/internal/model"
)

var (
	// ErrServerError marks an {"error": "..."} frame.
	ErrServerError = errors.New("server error frame")

	// ErrMissingID marks a frame that carries no message id.
	ErrMissingID = errors.New("frame has no message id")

	// ErrUnexpectedFrame marks a frame that is not a JSON object.
	ErrUnexpectedFrame = errors.New("frame is not an object")
)

var parserPool fastjson.ParserPool

// outboundFrame is what the client writes to a chat socket.
type outboundFrame struct {
	Content       string  `json:"content"`
	SenderID      int64   `json:"sender_id"`
	AttachmentIDs []int64 `json:"attachment_ids,omitempty"`
}

// decodeFrame normalizes an inbound frame into a message of chatID. The chat
// field of the frame, if any, is ignored in favor of the socket's chat.
func decodeFrame(chatID int64, data []byte) (model.Message, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return model.Message{}, fmt.Errorf("parsing frame: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return model.Message{}, ErrUnexpectedFrame
	}

	if e := v.Get("error"); e != nil {
		return model.Message{}, fmt.Errorf("%w: %s", ErrServerError, valueString(e))
	}

	id := valueString(v.Get("id"))
	if id == "" {
		return model.Message{}, ErrMissingID
	}

	msg := model.Message{
		ID:             model.ID(id),
		ChatID:         chatID,
		Content:        string(v.GetStringBytes("content")),
		HasAttachments: v.GetBool("has_attachments"),
	}

	if s := v.Get("sender"); s != nil && s.Type() == fastjson.TypeObject {
		msg.Sender = model.User{
			ID:    s.GetInt64("id"),
			Name:  string(s.GetStringBytes("name")),
			Email: string(s.GetStringBytes("email")),
		}
	}

	if ts := v.GetStringBytes("timestamp"); len(ts) > 0 {
		if parsed, err := time.Parse(time.RFC3339Nano, string(ts)); err == nil {
			msg.Timestamp = parsed
		}
	}

	for _, a := range v.GetArray("attachments") {
		msg.Attachments = append(msg.Attachments, model.Attachment{
			ID:       model.ID(valueString(a.Get("id"))),
			FileName: string(a.GetStringBytes("file_name")),
			FileSize: a.GetInt64("file_size"),
			FileType: string(a.GetStringBytes("file_type")),
			FileURL:  string(a.GetStringBytes("file_url")),
		})
	}
	if len(msg.Attachments) > 0 {
		msg.HasAttachments = true
	}

	return msg, nil
}

// valueString renders a string or number value; anything else is empty.
func valueString(v *fastjson.Value) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return string(v.MarshalTo(nil))
	default:
		return ""
	}
}
