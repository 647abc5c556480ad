// ABOUTME: Host-facing notification capability for client lifecycle and errors.
// ABOUTME: Injected at construction; a nil implementation is a silent no-op.

package gateway

// Events receives gateway notifications. Calls are synchronous from the
// connection-handling goroutines, so implementations must return promptly.
type Events interface {
	ClientConnected(index int)
	ClientDisconnected(index int)
	Error(err error)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) ClientConnected(int)    {}
func (NopEvents) ClientDisconnected(int) {}
func (NopEvents) Error(error)            {}
