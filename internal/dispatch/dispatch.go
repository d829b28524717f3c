// Package dispatch routes authenticated chat messages to the handler
// registered for their type.
package dispatch

import (
	"log/slog"

	"partyline/internal/registry"
	"partyline/internal/wire"
)

// Context carries what a handler may touch: the shared registry and the
// session the message arrived on.
type Context struct {
	Registry *registry.Registry
	Sender   *registry.Session
}

// Handler processes one family of message types. CanHandle is the predicate,
// Handle the action.
type Handler interface {
	CanHandle(msgType string) bool
	Handle(ctx *Context, msg *wire.Message) error
}

// Dispatcher holds handlers in registration order. Adding a message type
// means registering a handler; the dispatch loop never changes.
type Dispatcher struct {
	handlers []Handler
}

// New creates a dispatcher with the given handlers.
func New(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Register appends a handler. First match wins, so earlier registrations
// shadow later ones for overlapping types.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch hands msg to the first handler whose predicate matches its type.
// A type no handler claims is dropped: an unknown message must never bring
// down the session loop.
func (d *Dispatcher) Dispatch(ctx *Context, msg *wire.Message) {
	for _, h := range d.handlers {
		if h.CanHandle(msg.Type) {
			if err := h.Handle(ctx, msg); err != nil {
				slog.Warn("handler failed", "type", msg.Type, "from", ctx.Sender.Username(), "err", err)
			}
			return
		}
	}
	slog.Debug("dropping message with unknown type", "type", msg.Type, "from", ctx.Sender.Username())
}
