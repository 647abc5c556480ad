// ABOUTME: Bounded table of browser client connections behind a single mutex.
// ABOUTME: Slots own the transport and back-reference the external media session.

// Package registry holds the gateway's fixed-capacity client table. All
// lifecycle operations and the frame fan-out iterate under one lock, so
// mutation is serialized against media forwarding.
package registry

import (
	"errors"
	"net"
	"sync"
	"time"
)

// DefaultCapacity bounds the number of simultaneously attached clients.
const DefaultCapacity = 10

var (
	// ErrCapacityExceeded rejects an attachment attempt when the table is
	// full. Existing clients are unaffected.
	ErrCapacityExceeded = errors.New("registry: capacity exceeded")

	// ErrNotFound indicates the index does not name a connected client.
	ErrNotFound = errors.New("registry: no such client")
)

// Session is the externally owned media session attached to a client once
// signaling completes. The registry only keeps the back-reference; it never
// manages the session's lifetime beyond clearing the reference on removal.
type Session interface {
	// WriteVideo forwards one video sample with its presentation timestamp.
	// Implementations must not retain data past the call.
	WriteVideo(pts time.Duration, data []byte) error
	Close() error
}

// Client is one browser attachment. Conn is owned by the slot; Session is a
// weak back-reference owned by the media engine.
type Client struct {
	Index     int
	Conn      net.Conn
	Connected bool
	Session   Session
}

// Registry is a fixed-capacity ordered collection of client slots.
type Registry struct {
	mu           sync.Mutex
	slots        []Client
	size         int
	cursor       int
	onDisconnect func(index int)
}

// New creates a registry with the given capacity (DefaultCapacity when
// capacity is not positive). onDisconnect, if non-nil, fires once per slot
// that Remove or Clear transitions out of connected; it runs outside the
// registry lock.
func New(capacity int, onDisconnect func(index int)) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{
		slots:        make([]Client, capacity),
		onDisconnect: onDisconnect,
	}
	for i := range r.slots {
		r.slots[i].Index = i
	}
	return r
}

// Capacity returns the fixed slot count.
func (r *Registry) Capacity() int { return len(r.slots) }

// Size returns the number of connected slots.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Add occupies a free slot for conn and returns its index. Index assignment
// advances monotonically: a freed index is handed out again only once the
// cursor wraps back around to it.
func (r *Registry) Add(conn net.Conn) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.slots) {
		return 0, ErrCapacityExceeded
	}
	for i := 0; i < len(r.slots); i++ {
		idx := (r.cursor + i) % len(r.slots)
		if r.slots[idx].Connected {
			continue
		}
		r.slots[idx] = Client{Index: idx, Conn: conn, Connected: true}
		r.size++
		r.cursor = (idx + 1) % len(r.slots)
		return idx, nil
	}
	return 0, ErrCapacityExceeded
}

// Remove disconnects the slot at index: it closes the transport, clears the
// session back-reference, and fires the disconnect notification. Out-of-range
// and already-disconnected indices are no-ops, so Remove is idempotent.
func (r *Registry) Remove(index int) {
	r.mu.Lock()
	if index < 0 || index >= len(r.slots) || !r.slots[index].Connected {
		r.mu.Unlock()
		return
	}
	_ = r.slots[index].Conn.Close()
	r.slots[index] = Client{Index: index}
	r.size--
	cb := r.onDisconnect
	r.mu.Unlock()

	if cb != nil {
		cb(index)
	}
}

// Lookup returns a copy of the connected slot at index.
func (r *Registry) Lookup(index int) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) || !r.slots[index].Connected {
		return Client{}, false
	}
	return r.slots[index], true
}

// AttachSession stores the media session back-reference for a connected slot.
func (r *Registry) AttachSession(index int, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) || !r.slots[index].Connected {
		return ErrNotFound
	}
	r.slots[index].Session = s
	return nil
}

// Write sends buf on the connected slot's transport while holding the
// registry lock, so concurrent senders never interleave bytes on one
// connection.
func (r *Registry) Write(index int, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) || !r.slots[index].Connected {
		return ErrNotFound
	}
	_, err := r.slots[index].Conn.Write(buf)
	return err
}

// ForEachConnected calls fn for every connected slot while holding the
// registry lock, serializing the iteration against Add and Remove. fn must
// not call back into the registry.
func (r *Registry) ForEachConnected(fn func(Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, slot := range r.slots {
		if slot.Connected {
			fn(slot)
		}
	}
}

// Clear force-removes every client. Used at shutdown; no per-client close
// handshake is attempted.
func (r *Registry) Clear() {
	r.mu.Lock()
	var removed []int
	for i := range r.slots {
		if r.slots[i].Connected {
			_ = r.slots[i].Conn.Close()
			r.slots[i] = Client{Index: i}
			r.size--
			removed = append(removed, i)
		}
	}
	cb := r.onDisconnect
	r.mu.Unlock()

	if cb != nil {
		for _, idx := range removed {
			cb(idx)
		}
	}
}
