package frame

// Surface is the presentation target as seen by the swap chain.
type Surface interface {
	Capabilities() (SurfaceCapabilities, error)
	Formats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)
	SupportsPresent(queueFamily int) (bool, error)
}

// DefaultPresentModes is the preference order used when no other is configured:
// low-latency triple buffering, then vsync, then immediate.
var DefaultPresentModes = []PresentMode{PresentModeMailbox, PresentModeFIFO, PresentModeImmediate}

// ChooseSurfaceFormat returns preferred if the surface offers it and the first
// offered format otherwise.
func ChooseSurfaceFormat(available []SurfaceFormat, preferred SurfaceFormat) (SurfaceFormat, error) {
	if len(available) == 0 {
		return SurfaceFormat{}, ErrNoSurfaceFormat
	}

	for _, format := range available {
		if format == preferred {
			return format, nil
		}
	}

	return available[0], nil
}

// ChoosePresentMode returns the first mode of preferred that the surface offers.
func ChoosePresentMode(available []PresentMode, preferred []PresentMode) (PresentMode, error) {
	if len(preferred) == 0 {
		preferred = DefaultPresentModes
	}

	for _, want := range preferred {
		for _, mode := range available {
			if mode == want {
				return mode, nil
			}
		}
	}

	return 0, ErrNoPresentMode
}

// ChooseImageCount clamps desired into the surface's image count limits. A desired count
// of zero asks for one image more than the minimum.
func ChooseImageCount(caps SurfaceCapabilities, desired int) int {
	count := desired
	if count <= 0 {
		count = caps.MinImageCount + 1
	}

	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	return count
}

// ChooseExtent returns the surface's current extent, or window clamped to the surface
// limits when the platform leaves the choice to the application.
func ChooseExtent(caps SurfaceCapabilities, window Extent) Extent {
	if !caps.CurrentExtent.Undefined() {
		return caps.CurrentExtent
	}

	return Extent{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
