// Package media adapts the external WebRTC engine (pion) to the gateway. It
// owns one peer connection and outbound video track per client, and exposes
// the frame sink the upstream device pipeline pushes decoded samples into.
package media
