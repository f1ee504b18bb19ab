// Package source defines the capability interface between the camera
// hardware adapter and the capture pipeline. The core never inherits from
// driver types; an adapter wraps whatever camera API is in use and pushes
// the three per-tick streams into a StreamHandler.
package source

import (
	"time"

	"camtrap/video"
)

// StreamHandler receives the camera's per-tick streams. Implementations
// must not retain the passed slices; adapters may reuse them.
type StreamHandler interface {
	// HandleMotion delivers one motion vector grid, one per video tick.
	HandleMotion(vectors []byte, ts time.Time)
	// HandleVideo delivers one encoded video chunk tagged with its frame
	// kind.
	HandleVideo(chunk []byte, kind video.FrameKind, ts time.Time)
	// HandleRaw delivers one decoded frame in the configured fixed pixel
	// format.
	HandleRaw(frame []byte, ts time.Time)
}

// Source is a camera adapter that delivers its streams to a registered
// handler.
type Source interface {
	// Attach registers the handler and starts delivery.
	Attach(h StreamHandler) error
	Close() error
}
