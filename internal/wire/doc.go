// Package wire implements the WebSocket wire level used by the gateway: the
// upgrade handshake (request classification and the derived
// Sec-WebSocket-Accept value) and a stateless codec for single, unfragmented
// frames across all three payload length classes.
package wire
