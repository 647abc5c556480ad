// ABOUTME: Tests for signaling dispatch: tag routing into a mock engine and
// ABOUTME: wire-framed replies on the originating client's transport.

package signal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorcast/mirror-gateway/internal/registry"
	"github.com/mirrorcast/mirror-gateway/internal/wire"
)

// recordConn is a net.Conn that records everything written to it.
type recordConn struct {
	mu      sync.Mutex
	written []byte
}

func (c *recordConn) Read([]byte) (int, error) { return 0, nil }
func (c *recordConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, b...)
	return len(b), nil
}
func (c *recordConn) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.written))
	copy(out, c.written)
	return out
}
func (c *recordConn) Close() error                     { return nil }
func (c *recordConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *recordConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *recordConn) SetDeadline(time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(time.Time) error { return nil }

type fakeSession struct{}

func (fakeSession) WriteVideo(time.Duration, []byte) error { return nil }
func (fakeSession) Close() error                           { return nil }

// mockEngine records dispatches and returns canned results.
type mockEngine struct {
	mu         sync.Mutex
	created    []int
	closed     []int
	answers    map[int]Description
	candidates map[int][]Candidate
	createErr  error
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		answers:    make(map[int]Description),
		candidates: make(map[int][]Candidate),
	}
}

func (e *mockEngine) CreateSession(client int, out Sender) (Description, registry.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return Description{}, nil, e.createErr
	}
	e.created = append(e.created, client)
	return Description{Type: "offer", SDP: "v=0\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\n"}, fakeSession{}, nil
}

func (e *mockEngine) CompleteSession(client int, answer Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answers[client] = answer
	return nil
}

func (e *mockEngine) AddCandidate(client int, cand Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates[client] = append(e.candidates[client], cand)
	return nil
}

func (e *mockEngine) CloseSession(client int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, client)
}

func newTestRouter(t *testing.T, engine Engine) (*Router, *registry.Registry, int, *recordConn) {
	t.Helper()
	reg := registry.New(4, nil)
	conn := &recordConn{}
	idx, err := reg.Add(conn)
	require.NoError(t, err)
	return NewRouter(reg, engine, slog.Default()), reg, idx, conn
}

// decodeSent unpacks the single wire frame written to conn into a Message.
func decodeSent(t *testing.T, conn *recordConn) Message {
	t.Helper()
	frame, _, err := wire.Decode(conn.bytes())
	require.NoError(t, err)
	require.Equal(t, wire.OpcodeText, frame.Opcode)

	var msg Message
	require.NoError(t, json.Unmarshal(frame.Payload, &msg))
	return msg
}

func TestHandleRequestOffer(t *testing.T) {
	engine := newMockEngine()
	router, reg, idx, conn := newTestRouter(t, engine)

	require.NoError(t, router.HandleMessage(idx, []byte(`{"type":"request-offer"}`)))

	assert.Equal(t, []int{idx}, engine.created)

	// The session handle is attached to the slot for frame fan-out.
	slot, ok := reg.Lookup(idx)
	require.True(t, ok)
	assert.NotNil(t, slot.Session)

	// The offer goes back to the originating client as a text frame.
	msg := decodeSent(t, conn)
	assert.Equal(t, TypeOffer, msg.Type)
	require.NotNil(t, msg.Offer)
	assert.Equal(t, "offer", msg.Offer.Type)
	assert.Contains(t, msg.Offer.SDP, "m=video")
}

func TestHandleRequestOfferEngineFailure(t *testing.T) {
	engine := newMockEngine()
	engine.createErr = errors.New("engine down")
	router, _, idx, conn := newTestRouter(t, engine)

	err := router.HandleMessage(idx, []byte(`{"type":"request-offer"}`))
	assert.Error(t, err)
	assert.Empty(t, conn.bytes())
}

func TestHandleAnswer(t *testing.T) {
	engine := newMockEngine()
	router, _, idx, _ := newTestRouter(t, engine)

	payload := `{"type":"answer","answer":{"type":"answer","sdp":"v=0\r\n"}}`
	require.NoError(t, router.HandleMessage(idx, []byte(payload)))

	got, ok := engine.answers[idx]
	require.True(t, ok)
	assert.Equal(t, "answer", got.Type)
	assert.Equal(t, "v=0\r\n", got.SDP)
}

func TestHandleCandidate(t *testing.T) {
	engine := newMockEngine()
	router, _, idx, _ := newTestRouter(t, engine)

	payload := `{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 UDP 2130706431 192.0.2.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}}`
	require.NoError(t, router.HandleMessage(idx, []byte(payload)))

	require.Len(t, engine.candidates[idx], 1)
	cand := engine.candidates[idx][0]
	assert.Contains(t, cand.Candidate, "typ host")
	require.NotNil(t, cand.SDPMid)
	assert.Equal(t, "0", *cand.SDPMid)
}

func TestHandleMessageErrors(t *testing.T) {
	engine := newMockEngine()
	router, _, idx, _ := newTestRouter(t, engine)

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", "not json at all", ErrBadPayload},
		{"unknown tag", `{"type":"shutdown-now"}`, ErrUnknownType},
		{"answer without payload", `{"type":"answer"}`, ErrBadPayload},
		{"candidate without payload", `{"type":"ice-candidate"}`, ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := router.HandleMessage(idx, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSendToUnknownClient(t *testing.T) {
	engine := newMockEngine()
	router, _, _, _ := newTestRouter(t, engine)

	err := router.Send(42, Message{Type: TypeOffer})
	assert.ErrorIs(t, err, ErrNoSuchClient)
}
