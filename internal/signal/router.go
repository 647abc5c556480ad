// ABOUTME: Decodes signaling messages from clients and dispatches them to the
// ABOUTME: media engine; relays engine-originated messages back over the wire.

package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mirrorcast/mirror-gateway/internal/registry"
	"github.com/mirrorcast/mirror-gateway/internal/wire"
)

// Sender delivers an outbound signaling message to one client.
type Sender interface {
	Send(client int, msg Message) error
}

// Engine is the external media engine the router dispatches into.
type Engine interface {
	// CreateSession builds a media session for client and returns the initial
	// offer together with the session handle the registry back-references.
	// Engine-originated messages (its own candidates) go through out.
	CreateSession(client int, out Sender) (Description, registry.Session, error)

	// CompleteSession applies the client's answer to finish negotiation.
	CompleteSession(client int, answer Description) error

	// AddCandidate applies one remote connectivity candidate.
	AddCandidate(client int, cand Candidate) error

	// CloseSession tears down the client's session, if any.
	CloseSession(client int)
}

// Router errors are per-client: the connection layer closes the offending
// client and leaves the rest untouched.
var (
	ErrUnknownType  = errors.New("signal: unknown message type")
	ErrBadPayload   = errors.New("signal: malformed message payload")
	ErrNoSuchClient = errors.New("signal: no such client")
)

// Router routes signaling between registered clients and the media engine.
type Router struct {
	reg    *registry.Registry
	engine Engine
	logger *slog.Logger
}

// NewRouter creates a Router over the given registry and engine.
func NewRouter(reg *registry.Registry, engine Engine, logger *slog.Logger) *Router {
	return &Router{reg: reg, engine: engine, logger: logger}
}

// HandleMessage decodes one frame payload from client and dispatches it by
// message tag.
func (r *Router) HandleMessage(client int, payload []byte) error {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch msg.Type {
	case TypeRequestOffer:
		return r.handleRequestOffer(client)
	case TypeAnswer:
		if msg.Answer == nil {
			return fmt.Errorf("%w: answer payload missing", ErrBadPayload)
		}
		return r.engine.CompleteSession(client, *msg.Answer)
	case TypeCandidate:
		if msg.Candidate == nil {
			return fmt.Errorf("%w: candidate payload missing", ErrBadPayload)
		}
		return r.engine.AddCandidate(client, *msg.Candidate)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

func (r *Router) handleRequestOffer(client int) error {
	offer, sess, err := r.engine.CreateSession(client, r)
	if err != nil {
		return fmt.Errorf("creating session for client %d: %w", client, err)
	}
	if err := r.reg.AttachSession(client, sess); err != nil {
		r.engine.CloseSession(client)
		return err
	}
	r.logger.Debug("session created", "client", client)
	return r.Send(client, Message{Type: TypeOffer, Offer: &offer})
}

// Send encodes msg and writes it to the client's transport as a single text
// frame. It implements Sender for the engine's outbound path.
func (r *Router) Send(client int, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	if err := r.reg.Write(client, wire.Encode(payload)); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrNoSuchClient
		}
		return fmt.Errorf("writing to client %d: %w", client, err)
	}
	return nil
}
