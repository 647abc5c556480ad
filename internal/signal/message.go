// ABOUTME: Signaling vocabulary exchanged with the browser player over the
// ABOUTME: upgraded channel: JSON messages tagged by type.

// Package signal routes session-setup messages between registered browser
// clients and the external media engine. The router dispatches by message tag
// only; descriptions and candidates are opaque to it.
package signal

// Message type tags. The vocabulary matches the embedded browser player.
const (
	TypeRequestOffer = "request-offer"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeCandidate    = "ice-candidate"
)

// Description is a session description (offer or answer) in the browser's
// RTCSessionDescription JSON shape.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is one connectivity candidate in the browser's
// RTCIceCandidateInit JSON shape.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Message is one signaling exchange unit carried in a wire frame. Exactly one
// payload field is set, matching Type.
type Message struct {
	Type      string       `json:"type"`
	Offer     *Description `json:"offer,omitempty"`
	Answer    *Description `json:"answer,omitempty"`
	Candidate *Candidate   `json:"candidate,omitempty"`
}
