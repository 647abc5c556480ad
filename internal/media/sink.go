// ABOUTME: Frame sink the device pipeline pushes decoded samples into; fans
// ABOUTME: each frame out to every client with an established session.

package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mirrorcast/mirror-gateway/internal/registry"
)

// Format describes the sample stream the pipeline is about to push.
type Format struct {
	Codec  string
	Width  int
	Height int
}

// Frame is one opaque media sample. Data is borrowed from the producer and
// must not be retained past the Push call.
type Frame struct {
	PTS  time.Duration
	Data []byte
}

var (
	// ErrSinkNotOpen indicates a Push before Open.
	ErrSinkNotOpen = errors.New("media: sink not open")

	// ErrSinkClosed indicates use of the sink after Close.
	ErrSinkClosed = errors.New("media: sink closed")

	// ErrBadFormat indicates the sink cannot represent the sample format; the
	// caller must stop pushing.
	ErrBadFormat = errors.New("media: unsupported format")
)

// Sink is the capability surface the upstream device pipeline uses to push
// decoded frames into the gateway. Open is called once before any Push;
// Close ends the stream.
type Sink struct {
	reg    *registry.Registry
	logger *slog.Logger

	mu     sync.Mutex
	open   bool
	closed bool
	format Format
}

// NewSink creates a sink fanning out over the given registry.
func NewSink(reg *registry.Registry, logger *slog.Logger) *Sink {
	return &Sink{reg: reg, logger: logger}
}

// Open records the active sample format. Only H.264 elementary streams can be
// represented by the outbound tracks.
func (s *Sink) Open(f Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if f.Codec != "h264" {
		return fmt.Errorf("%w: %q", ErrBadFormat, f.Codec)
	}
	s.format = f
	s.open = true
	s.logger.Info("frame sink opened", "codec", f.Codec, "width", f.Width, "height", f.Height)
	return nil
}

// Push forwards one frame to every connected client with an established
// session. The iteration holds the registry lock, serializing fan-out against
// client lifecycle changes. A single client's failure is logged and skipped;
// only misuse of the sink itself fails the call.
func (s *Sink) Push(f Frame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if !s.open {
		s.mu.Unlock()
		return ErrSinkNotOpen
	}
	s.mu.Unlock()

	s.reg.ForEachConnected(func(c registry.Client) {
		if c.Session == nil {
			return
		}
		if err := c.Session.WriteVideo(f.PTS, f.Data); err != nil {
			s.logger.Warn("dropping frame for client", "client", c.Index, "error", err)
		}
	})
	return nil
}

// Close ends the stream; pushes after Close fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	s.open = false
	s.logger.Info("frame sink closed")
	return nil
}
