package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/frames/frame"
)

// Surface is the frame.Surface of a Context's window.
type Surface struct {
	ctx *Context

	// transform is the surface's current transform as of the last capability query; new
	// swap chains are created with it.
	transform khr_surface.SurfaceTransformFlags
}

// Surface returns the presentation surface of the context's window.
func (c *Context) Surface() *Surface {
	return &Surface{ctx: c, transform: khr_surface.TransformIdentity}
}

func (s *Surface) Capabilities() (frame.SurfaceCapabilities, error) {
	caps, _, err := s.ctx.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(s.ctx.surface, s.ctx.physicalDevice)
	if err != nil {
		return frame.SurfaceCapabilities{}, errors.Wrap(err, "querying surface capabilities")
	}
	s.transform = caps.CurrentTransform

	return frame.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  fromExtent(caps.CurrentExtent),
		MinImageExtent: fromExtent(caps.MinImageExtent),
		MaxImageExtent: fromExtent(caps.MaxImageExtent),
	}, nil
}

func (s *Surface) Formats() ([]frame.SurfaceFormat, error) {
	formats, _, err := s.ctx.surfaceExtension.GetPhysicalDeviceSurfaceFormats(s.ctx.surface, s.ctx.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}

	out := make([]frame.SurfaceFormat, 0, len(formats))
	for _, format := range formats {
		out = append(out, frame.SurfaceFormat{
			Format:     frame.Format(format.Format),
			ColorSpace: frame.ColorSpace(format.ColorSpace),
		})
	}
	return out, nil
}

func (s *Surface) PresentModes() ([]frame.PresentMode, error) {
	modes, _, err := s.ctx.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(s.ctx.surface, s.ctx.physicalDevice)
	if err != nil {
		return nil, errors.Wrap(err, "querying surface present modes")
	}

	out := make([]frame.PresentMode, 0, len(modes))
	for _, mode := range modes {
		out = append(out, frame.PresentMode(mode))
	}
	return out, nil
}

func (s *Surface) SupportsPresent(queueFamily int) (bool, error) {
	supported, _, err := s.ctx.surfaceExtension.GetPhysicalDeviceSurfaceSupport(s.ctx.surface, s.ctx.physicalDevice, queueFamily)
	return supported, errors.Wrapf(err, "querying present support of queue family %d", queueFamily)
}

// fromExtent copies the extent unchanged. vkngwrapper hands the driver's 0xFFFFFFFF "use the
// window size" width over as -1, which frame.Extent.Undefined recognizes.
func fromExtent(e core1_0.Extent2D) frame.Extent {
	return frame.Extent{Width: e.Width, Height: e.Height}
}

func toExtent(e frame.Extent) core1_0.Extent2D {
	return core1_0.Extent2D{Width: e.Width, Height: e.Height}
}
