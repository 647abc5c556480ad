// ABOUTME: One client's negotiated media path: the peer connection plus the
// ABOUTME: outbound H.264 sample track the frame sink writes into.

package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// defaultSampleDuration is assumed for the first sample and whenever the
// presentation timestamps are not monotonic (~30fps).
const defaultSampleDuration = 33 * time.Millisecond

// Session implements registry.Session for one client.
type Session struct {
	client int
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	lastPTS time.Duration
	hasPTS  bool
}

// WriteVideo forwards one sample to the client's track, deriving the sample
// duration from the PTS delta. The bytes are packetized synchronously and not
// retained past the call.
func (s *Session) WriteVideo(pts time.Duration, data []byte) error {
	s.mu.Lock()
	dur := defaultSampleDuration
	if s.hasPTS && pts > s.lastPTS {
		dur = pts - s.lastPTS
	}
	s.lastPTS = pts
	s.hasPTS = true
	s.mu.Unlock()

	if err := s.track.WriteSample(media.Sample{Data: data, Duration: dur}); err != nil {
		return fmt.Errorf("writing sample for client %d: %w", s.client, err)
	}
	return nil
}

// Close shuts the peer connection down.
func (s *Session) Close() error {
	return s.pc.Close()
}
