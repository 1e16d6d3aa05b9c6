package frame

import "math"

// Destroyer is implemented by every handle that owns memory outside of the Go heap.
// Destroy must be called explicitly by whoever created the handle.
type Destroyer interface {
	Destroy()
}

// Semaphore is a GPU-only ordering signal between queue operations.
type Semaphore interface {
	Destroyer
}

// Fence is a CPU-waitable GPU completion signal.
type Fence interface {
	Destroyer
}

// Queue is a device queue that accepts submissions and presentation requests.
type Queue interface {
	FamilyIndex() int
}

// Image, ImageView, Framebuffer, RenderPass, Buffer and DescriptorSet are opaque handles
// created by a backend and only ever handed back to that same backend.
type (
	Image         any
	ImageView     interface{ Destroyer }
	Framebuffer   interface{ Destroyer }
	RenderPass    any
	Buffer        any
	DescriptorSet any
)

// Extent is a two-dimensional size in pixels.
type Extent struct {
	Width  int
	Height int
}

// Undefined reports whether the extent carries the platform's "use the window size" marker,
// 0xFFFFFFFF in the width. Backends that convert it through a signed 32-bit value pass -1.
func (e Extent) Undefined() bool {
	return uint32(e.Width) == math.MaxUint32
}

// Empty reports whether either dimension is zero, as happens with a minimized window.
func (e Extent) Empty() bool {
	return e.Width <= 0 || e.Height <= 0
}

// Format values share their numbering with VkFormat.
type Format int32

const FormatB8G8R8A8SRGB Format = 50

// ColorSpace values share their numbering with VkColorSpaceKHR.
type ColorSpace int32

const ColorSpaceSRGBNonlinear ColorSpace = 0

// SurfaceFormat is a format/color space pair supported by a surface.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode values share their numbering with VkPresentModeKHR.
type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFIFO        PresentMode = 2
	PresentModeFIFORelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFIFO:
		return "fifo"
	case PresentModeFIFORelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// SurfaceCapabilities are the platform-reported limits for a presentation target.
// A MaxImageCount of zero means there is no upper limit.
type SurfaceCapabilities struct {
	MinImageCount  int
	MaxImageCount  int
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

// PipelineStage values share their numbering with VkPipelineStageFlags.
type PipelineStage uint32

const StageColorAttachmentOutput PipelineStage = 0x00000400

// IndexType selects the width of index buffer entries.
type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

// ClearColor is the RGBA clear value used when a render pass begins.
type ClearColor [4]float32
