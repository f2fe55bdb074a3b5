// Package notify delivers best-effort "note X is now at version V"
// events between running notesmith processes. The preferred transport
// watches a shared sync directory with fsnotify; when no directory is
// available the notifier falls back to an in-process broker, which keeps
// the subscription contract working within a single process.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notesmith/notesmith/internal/clock"
)

// MessageType is the only wire message type currently defined.
const MessageType = "NOTE_UPDATED"

// Message is the cross-process wire message.
type Message struct {
	Type      string `json:"type"`
	NoteID    string `json:"noteId"`
	Version   int64  `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// Handler receives one call per observed broadcast.
type Handler func(Message)

// Transport carries broadcast payloads to all subscribed handlers,
// including those in other processes when the transport spans them.
type Transport interface {
	Send(Message) error
	// Subscribe registers a handler and returns a disposer that fully
	// detaches it.
	Subscribe(Handler) func()
	Close() error
}

// Notifier is the broadcast entry point used by the registry.
type Notifier struct {
	transport Transport
	clock     clock.Clock
}

// New builds a notifier for the given sync directory. An empty directory
// or a transport setup failure degrades to in-process delivery.
func New(dir string, clk clock.Clock) *Notifier {
	if dir == "" {
		return &Notifier{transport: newBroker(), clock: clk}
	}
	transport, err := newFileTransport(dir, clk)
	if err != nil {
		slog.Default().Warn("file transport unavailable, falling back to in-process notifications",
			"directory", dir,
			"error", err)
		return &Notifier{transport: newBroker(), clock: clk}
	}
	return &Notifier{transport: transport, clock: clk}
}

// NewWithTransport wires an explicit transport. Used by tests and by the
// session when it needs to share one transport between components.
func NewWithTransport(transport Transport, clk clock.Clock) *Notifier {
	return &Notifier{transport: transport, clock: clk}
}

// Broadcast announces that a note reached a new version.
func (n *Notifier) Broadcast(noteID string, version int64) error {
	msg := Message{
		Type:      MessageType,
		NoteID:    noteID,
		Version:   version,
		Timestamp: n.clock.Now().UnixMilli(),
	}
	if err := n.transport.Send(msg); err != nil {
		return fmt.Errorf("transport.Send > %w", err)
	}
	return nil
}

// Subscribe registers a handler invoked once per received broadcast whose
// payload matches the expected message shape. The returned function
// detaches the subscription.
func (n *Notifier) Subscribe(handler Handler) func() {
	return n.transport.Subscribe(handler)
}

// Close releases the underlying transport.
func (n *Notifier) Close() error {
	return n.transport.Close()
}

// decodeMessage parses a wire payload, rejecting anything that does not
// match the expected shape.
func decodeMessage(data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false
	}
	if msg.Type != MessageType || msg.NoteID == "" || msg.Version < 1 {
		return Message{}, false
	}
	return msg, true
}

// broker is the in-process transport: synchronous fan-out to handlers.
type broker struct {
	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	closed   bool
}

func newBroker() *broker {
	return &broker{handlers: map[int]Handler{}}
}

func (b *broker) Send(msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *broker) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

func (b *broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = map[int]Handler{}
	return nil
}
