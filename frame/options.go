package frame

import (
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DefaultFramesInFlight = 2
	DefaultFenceTimeout   = 10 * time.Second
)

// DefaultSurfaceFormat is non-linear 8-bit BGRA.
var DefaultSurfaceFormat = SurfaceFormat{
	Format:     FormatB8G8R8A8SRGB,
	ColorSpace: ColorSpaceSRGBNonlinear,
}

// Options tunes a Renderer. The zero value is usable.
type Options struct {
	// FramesInFlight is the number of frames the CPU may record ahead of the GPU.
	FramesInFlight int
	// DesiredImageCount is clamped to the surface limits. Zero asks for one image more than
	// the surface minimum.
	DesiredImageCount int
	// FenceTimeout bounds every fence wait. Expiry is reported as ErrDeviceLost.
	FenceTimeout time.Duration

	PreferredFormat SurfaceFormat
	PresentModes    []PresentMode
	ClearColor      ClearColor

	// BeforeSubmit runs once the previous user of the acquired image has finished on the GPU
	// and before the frame is submitted, so resources indexed by image may be written.
	BeforeSubmit func(imageIndex int) error

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.FramesInFlight == 0 {
		o.FramesInFlight = DefaultFramesInFlight
	}
	if o.FenceTimeout == 0 {
		o.FenceTimeout = DefaultFenceTimeout
	}
	if o.PreferredFormat == (SurfaceFormat{}) {
		o.PreferredFormat = DefaultSurfaceFormat
	}
	if len(o.PresentModes) == 0 {
		o.PresentModes = DefaultPresentModes
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

func (o Options) validate() error {
	if o.FramesInFlight < 1 {
		return errors.Newf("frames in flight must be at least 1, got %d", o.FramesInFlight)
	}
	if o.DesiredImageCount < 0 {
		return errors.Newf("desired image count must not be negative, got %d", o.DesiredImageCount)
	}
	if o.FenceTimeout < 0 {
		return errors.Newf("fence timeout must not be negative, got %s", o.FenceTimeout)
	}
	return nil
}
