// Package assets holds the browser-facing bootstrap assets embedded via
// go:embed. The player page is served verbatim, so its exact byte length
// drives the Content-Length header.
package assets

import (
	_ "embed"
)

//go:embed player.html
var playerPage []byte

// PlayerPage returns the embedded bootstrap page. Callers must treat the
// slice as read-only.
func PlayerPage() []byte {
	return playerPage
}
