package frame

import "github.com/cockroachdb/errors"

// ErrOutOfDate means the surface changed so that the swap chain can no longer present to it.
// The swap chain must be recreated before the next acquisition.
var ErrOutOfDate = errors.New("frame: swap chain out of date")

// ErrSuboptimal means the swap chain still works but no longer matches the surface exactly.
// An acquisition that reports it has still produced a usable image.
var ErrSuboptimal = errors.New("frame: swap chain suboptimal")

// ErrTimeout is returned by a Device when a fence wait exceeds its timeout.
var ErrTimeout = errors.New("frame: fence wait timed out")

// ErrDeviceLost is fatal. A Renderer marks fence timeouts with it.
var ErrDeviceLost = errors.New("frame: device lost")

// ErrNoSurfaceFormat means the surface reported no formats at all.
var ErrNoSurfaceFormat = errors.New("frame: surface offers no formats")

// ErrNoPresentMode means the surface reported none of the present modes the renderer can use.
var ErrNoPresentMode = errors.New("frame: surface offers no usable present mode")

// ErrClosed is returned by operations on a Renderer after Close.
var ErrClosed = errors.New("frame: renderer closed")

// NeedsRecreation reports whether err asks for the swap chain to be rebuilt rather than
// being a failure.
func NeedsRecreation(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
