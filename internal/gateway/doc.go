// Package gateway is the connection listener: it accepts TCP sockets,
// classifies each initial request as plain HTTP or a WebSocket upgrade,
// serves the embedded bootstrap page or completes the handshake, and runs
// every upgraded client's frame loop against the signaling router.
package gateway
