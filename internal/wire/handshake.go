// ABOUTME: WebSocket upgrade handshake: request classification and the derived
// ABOUTME: Sec-WebSocket-Accept response per RFC 6455.

package wire

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// acceptGUID is the fixed GUID appended to the client key when deriving the
// accept value, per RFC 6455 section 4.2.2.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrMissingKey indicates an upgrade request without a Sec-WebSocket-Key
// header, which makes the handshake impossible to complete.
var ErrMissingKey = errors.New("wire: missing Sec-WebSocket-Key header")

// ParseRequest parses the HTTP request contained in a single bounded read.
func ParseRequest(buf []byte) (*http.Request, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf)))
	if err != nil {
		return nil, fmt.Errorf("wire: parsing request: %w", err)
	}
	return req, nil
}

// IsUpgrade reports whether the request carries the WebSocket upgrade marker
// headers, matched as case-insensitive tokens.
func IsUpgrade(req *http.Request) bool {
	return headerContainsToken(req.Header, "Connection", "Upgrade") &&
		headerContainsToken(req.Header, "Upgrade", "websocket")
}

// AcceptKey derives the Sec-WebSocket-Accept value from the client-supplied
// key. The value must be derived per request; strict clients verify it and
// reject a fixed one.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// UpgradeResponse builds the 101 Switching Protocols response that completes
// the handshake for req. Returns ErrMissingKey when the request carried no
// client key.
func UpgradeResponse(req *http.Request) ([]byte, error) {
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, ErrMissingKey
	}
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n" +
		"\r\n"
	return []byte(resp), nil
}

// headerContainsToken matches a comma-separated header value against token,
// case-insensitively.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
