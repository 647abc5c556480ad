// ABOUTME: pion-backed media engine: one peer connection and H.264 sample
// ABOUTME: track per client, driven by the signaling router.

package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/mirrorcast/mirror-gateway/internal/registry"
	"github.com/mirrorcast/mirror-gateway/internal/signal"
)

// EngineConfig carries the connectivity-assist servers handed through from
// the gateway configuration. The gateway passes them opaquely; only the
// engine interprets them. All fields are optional.
type EngineConfig struct {
	STUNServer   string
	TURNServer   string
	TURNUsername string
	TURNPassword string
}

// ErrNoSession indicates a signaling message arrived for a client that never
// requested a session.
var ErrNoSession = errors.New("media: no session for client")

// Engine negotiates and transports media for registered clients. It owns
// every session's lifetime; the registry only holds back-references.
type Engine struct {
	api    *webrtc.API
	rtcCfg webrtc.Configuration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int]*Session
}

// NewEngine builds the pion API with the default codec set and the configured
// ICE servers.
func NewEngine(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.LoggerFactory = logging.NewDefaultLoggerFactory()

	var servers []webrtc.ICEServer
	if cfg.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{cfg.STUNServer}})
	}
	if cfg.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNServer},
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNPassword,
		})
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		rtcCfg:   webrtc.Configuration{ICEServers: servers},
		logger:   logger,
		sessions: make(map[int]*Session),
	}, nil
}

// CreateSession builds the peer connection and local offer for client.
// Engine-originated trickle candidates flow back through out. A previous
// session for the same client index is replaced and closed.
func (e *Engine) CreateSession(client int, out signal.Sender) (signal.Description, registry.Session, error) {
	pc, err := e.api.NewPeerConnection(e.rtcCfg)
	if err != nil {
		return signal.Description{}, nil, fmt.Errorf("creating peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", uuid.NewString(),
	)
	if err != nil {
		_ = pc.Close()
		return signal.Description{}, nil, fmt.Errorf("creating video track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return signal.Description{}, nil, fmt.Errorf("adding video track: %w", err)
	}

	logger := e.logger.With("client", client)
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		cand := signal.Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		}
		msg := signal.Message{Type: signal.TypeCandidate, Candidate: &cand}
		if err := out.Send(client, msg); err != nil {
			logger.Warn("dropping local candidate", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", "state", state.String())
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return signal.Description{}, nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return signal.Description{}, nil, fmt.Errorf("setting local description: %w", err)
	}

	sess := &Session{client: client, pc: pc, track: track}

	e.mu.Lock()
	prev := e.sessions[client]
	e.sessions[client] = sess
	e.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	return signal.Description{Type: offer.Type.String(), SDP: offer.SDP}, sess, nil
}

// CompleteSession applies the client's answer, finishing local/remote
// description negotiation.
func (e *Engine) CompleteSession(client int, answer signal.Description) error {
	sess, err := e.session(client)
	if err != nil {
		return err
	}
	desc := webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}
	if err := sess.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("setting remote description for client %d: %w", client, err)
	}
	return nil
}

// AddCandidate applies one remote connectivity candidate to the client's
// session.
func (e *Engine) AddCandidate(client int, cand signal.Candidate) error {
	sess, err := e.session(client)
	if err != nil {
		return err
	}
	init := webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	}
	if err := sess.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("adding candidate for client %d: %w", client, err)
	}
	return nil
}

// CloseSession tears down the client's session. Unknown clients are a no-op.
func (e *Engine) CloseSession(client int) {
	e.mu.Lock()
	sess := e.sessions[client]
	delete(e.sessions, client)
	e.mu.Unlock()

	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		e.logger.Warn("closing session", "client", client, "error", err)
	}
}

// Close tears down every remaining session.
func (e *Engine) Close() error {
	e.mu.Lock()
	sessions := e.sessions
	e.sessions = make(map[int]*Session)
	e.mu.Unlock()

	var firstErr error
	for client, sess := range sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing session for client %d: %w", client, err)
		}
	}
	return firstErr
}

func (e *Engine) session(client int) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sessions[client]
	if sess == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSession, client)
	}
	return sess, nil
}
