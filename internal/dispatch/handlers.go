package dispatch

import (
	"log/slog"

	"partyline/internal/preview"
	"partyline/internal/wire"
)

// TextHandler reflects a chat line to every connected client, tagged with
// the sender's display name. With a Previews fetcher set, a URL in the text
// additionally produces an asynchronous link_preview broadcast.
type TextHandler struct {
	Previews *preview.Fetcher
}

func (TextHandler) CanHandle(msgType string) bool { return msgType == wire.TypeMessage }

func (h TextHandler) Handle(ctx *Context, msg *wire.Message) error {
	from := ctx.Sender.Username()
	ctx.Registry.Broadcast(&wire.Message{
		Type: wire.TypeMessage,
		From: from,
		Text: msg.Text,
	}, nil)

	if h.Previews == nil {
		return nil
	}
	url := preview.FirstURL(msg.Text)
	if url == "" {
		return nil
	}
	// Fetch in the background so a slow page never delays chat delivery.
	go func() {
		p, err := h.Previews.Fetch(url)
		if err != nil {
			slog.Debug("link preview fetch failed", "url", url, "err", err)
			return
		}
		if p.Empty() {
			return
		}
		ctx.Registry.Broadcast(&wire.Message{
			Type:      wire.TypeLinkPreview,
			From:      from,
			URL:       p.URL,
			LinkTitle: p.Title,
			LinkDesc:  p.Description,
			LinkImage: p.Image,
		}, nil)
	}()
	return nil
}

// FileNoticeHandler reflects a file-available announcement. Only the record
// travels over the chat plane; the bytes themselves live on the file plane.
type FileNoticeHandler struct{}

func (FileNoticeHandler) CanHandle(msgType string) bool { return msgType == wire.TypeFileAvailable }

func (FileNoticeHandler) Handle(ctx *Context, msg *wire.Message) error {
	ctx.Registry.Broadcast(&wire.Message{
		Type:     wire.TypeFileAvailable,
		From:     ctx.Sender.Username(),
		Filename: msg.Filename,
		Size:     msg.Size,
		FileID:   msg.FileID,
	}, nil)
	return nil
}

// CallHandler reflects a call start/stop signal with its room identifier so
// clients know which media room to join or leave.
type CallHandler struct{}

func (CallHandler) CanHandle(msgType string) bool { return msgType == wire.TypeCall }

func (CallHandler) Handle(ctx *Context, msg *wire.Message) error {
	ctx.Registry.Broadcast(&wire.Message{
		Type:   wire.TypeCall,
		From:   ctx.Sender.Username(),
		Action: msg.Action,
		RoomID: msg.RoomID,
	}, nil)
	return nil
}

// DefaultHandlers returns the handler set the chat service registers at
// startup, in dispatch order. previews may be nil to disable link previews.
func DefaultHandlers(previews *preview.Fetcher) []Handler {
	return []Handler{TextHandler{Previews: previews}, FileNoticeHandler{}, CallHandler{}}
}
