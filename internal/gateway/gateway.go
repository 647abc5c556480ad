// ABOUTME: Gateway orchestrator: accept loop, handshake worker pool, request
// ABOUTME: classification, and the per-client frame read loops.

package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mirrorcast/mirror-gateway/internal/assets"
	"github.com/mirrorcast/mirror-gateway/internal/config"
	"github.com/mirrorcast/mirror-gateway/internal/media"
	"github.com/mirrorcast/mirror-gateway/internal/registry"
	"github.com/mirrorcast/mirror-gateway/internal/signal"
	"github.com/mirrorcast/mirror-gateway/internal/wire"
)

// Gateway accepts browser connections, serves the bootstrap page, and manages
// the registry of upgraded signaling channels.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger
	events Events

	reg    *registry.Registry
	engine signal.Engine
	router *signal.Router
	sink   *media.Sink

	listener net.Listener
	conns    chan net.Conn
	stopped  atomic.Bool
	wg       sync.WaitGroup
}

// New wires the registry, signaling router and frame sink around the provided
// media engine. events may be nil.
func New(cfg *config.Config, engine signal.Engine, events Events, logger *slog.Logger) *Gateway {
	if events == nil {
		events = NopEvents{}
	}
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		events: events,
		engine: engine,
	}
	g.reg = registry.New(cfg.Server.MaxClients, func(index int) {
		// The registry cleared the back-reference; the engine still owns the
		// session and must tear it down.
		engine.CloseSession(index)
		events.ClientDisconnected(index)
	})
	g.router = signal.NewRouter(g.reg, engine, logger)
	g.sink = media.NewSink(g.reg, logger)
	return g
}

// Registry exposes the client table, primarily for host integration and tests.
func (g *Gateway) Registry() *registry.Registry { return g.reg }

// FrameSink is the push surface for the upstream device pipeline.
func (g *Gateway) FrameSink() *media.Sink { return g.sink }

// Addr returns the bound listen address once Start has succeeded.
func (g *Gateway) Addr() net.Addr { return g.listener.Addr() }

// Start binds the listen address and launches the acceptor and handshake
// workers. Bind failures surface synchronously; nothing runs after an error.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.cfg.Server.ListenAddr, err)
	}
	g.listener = ln
	g.conns = make(chan net.Conn)

	for i := 0; i < g.cfg.Server.HandshakeWorkers; i++ {
		g.wg.Add(1)
		go g.handshakeWorker()
	}
	g.wg.Add(1)
	go g.acceptLoop()

	g.logger.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Stop terminates the accept loop and force-removes every client. No
// per-client close handshake is performed; shutdown is unconditional closure.
// Safe to call more than once after a successful Start.
func (g *Gateway) Stop() {
	if !g.stopped.CompareAndSwap(false, true) {
		return
	}
	_ = g.listener.Close()
	g.reg.Clear()
	g.logger.Info("gateway stopped")
}

// Wait blocks until the acceptor, handshake workers, and all client read
// loops have exited.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// acceptLoop hands accepted sockets to the handshake workers. It is the sole
// closer of the conns channel.
func (g *Gateway) acceptLoop() {
	defer g.wg.Done()
	defer close(g.conns)

	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if g.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			g.logger.Warn("accept failed", "error", err)
			g.events.Error(err)
			continue
		}
		g.conns <- conn
	}
}

func (g *Gateway) handshakeWorker() {
	defer g.wg.Done()
	for conn := range g.conns {
		g.handle(conn)
	}
}

// handle performs the single bounded read, classifies the request, and either
// serves the static page or upgrades the connection.
func (g *Gateway) handle(conn net.Conn) {
	if g.stopped.Load() {
		_ = conn.Close()
		return
	}

	buf := make([]byte, g.cfg.Server.ReadBufferBytes)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		_ = conn.Close()
		return
	}

	req, err := wire.ParseRequest(buf[:n])
	if err != nil {
		g.logger.Debug("unparseable request", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	if !wire.IsUpgrade(req) {
		g.serveStatic(conn)
		return
	}
	g.upgrade(conn, req)
}

// serveStatic answers any non-upgrade request with the bootstrap page and
// closes the connection.
func (g *Gateway) serveStatic(conn net.Conn) {
	defer conn.Close()

	page := assets.PlayerPage()
	head := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/html\r\n" +
		"Access-Control-Allow-Origin: *\r\n" +
		"Access-Control-Allow-Methods: GET, POST, OPTIONS\r\n" +
		"Access-Control-Allow-Headers: Content-Type\r\n" +
		"Content-Length: " + strconv.Itoa(len(page)) + "\r\n" +
		"\r\n"

	resp := make([]byte, 0, len(head)+len(page))
	resp = append(resp, head...)
	resp = append(resp, page...)
	if _, err := conn.Write(resp); err != nil {
		g.logger.Debug("static response failed", "error", err)
	}
}

// upgrade completes the WebSocket handshake, registers the client, and hands
// its inbound side to a dedicated read loop.
func (g *Gateway) upgrade(conn net.Conn, req *http.Request) {
	resp, err := wire.UpgradeResponse(req)
	if err != nil {
		g.logger.Debug("rejecting upgrade", "remote", conn.RemoteAddr().String(), "error", err)
		g.respondAndClose(conn, "400 Bad Request")
		return
	}

	index, err := g.reg.Add(conn)
	if err != nil {
		// Capacity is bounded; this attempt is rejected without touching
		// existing clients.
		g.logger.Warn("rejecting client", "remote", conn.RemoteAddr().String(), "error", err)
		g.events.Error(err)
		g.respondAndClose(conn, "503 Service Unavailable")
		return
	}

	if _, err := conn.Write(resp); err != nil {
		g.logger.Debug("handshake write failed", "client", index, "error", err)
		g.reg.Remove(index)
		return
	}

	g.logger.Info("client connected", "client", index, "remote", conn.RemoteAddr().String())
	g.events.ClientConnected(index)

	g.wg.Add(1)
	go g.readLoop(index, conn)
}

func (g *Gateway) respondAndClose(conn net.Conn, status string) {
	defer conn.Close()
	_, _ = conn.Write([]byte("HTTP/1.1 " + status + "\r\nContent-Length: 0\r\n\r\n"))
}

// readLoop owns the client's inbound side: it accumulates bytes until full
// frames decode, then dispatches text payloads to the signaling router. Any
// failure here is contained to this client.
func (g *Gateway) readLoop(index int, conn net.Conn) {
	defer g.wg.Done()
	defer g.reg.Remove(index)

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if err != nil {
			g.logger.Debug("client read ended", "client", index, "error", err)
			return
		}
		if len(buf)+n > g.cfg.Server.ReadBufferBytes {
			g.logger.Warn("frame exceeds read buffer", "client", index)
			return
		}
		buf = append(buf, chunk[:n]...)

		off := 0
		for {
			frame, consumed, err := wire.Decode(buf[off:])
			if errors.Is(err, wire.ErrIncompleteFrame) {
				break
			}
			if err != nil {
				g.logger.Warn("protocol error", "client", index, "error", err)
				g.events.Error(err)
				return
			}
			off += consumed

			switch {
			case frame.Opcode == wire.OpcodeClose:
				return
			case frame.Opcode == wire.OpcodeText && frame.Final:
				if err := g.router.HandleMessage(index, frame.Payload); err != nil {
					g.logger.Warn("signaling error", "client", index, "error", err)
					g.events.Error(err)
					return
				}
			default:
				// Fragmented messages and non-Close control frames are
				// outside the supported protocol subset.
				g.logger.Warn("unsupported frame", "client", index, "opcode", frame.Opcode)
				return
			}
		}
		buf = append(buf[:0], buf[off:]...)
	}
}
