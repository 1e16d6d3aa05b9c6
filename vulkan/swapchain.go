package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/frames/frame"
)

// SwapchainBackend creates swap chains for a Context's surface along with their image
// views and framebuffers.
type SwapchainBackend struct {
	ctx       *Context
	surface   *Surface
	extension khr_swapchain.ExtensionDriver
}

// Swapchains returns the swap chain backend presenting to surface.
func (c *Context) Swapchains(surface *Surface) *SwapchainBackend {
	return &SwapchainBackend{
		ctx:       c,
		surface:   surface,
		extension: khr_swapchain.CreateExtensionDriverFromCoreDriver(c.deviceDriver),
	}
}

func (b *SwapchainBackend) NewChain(info frame.ChainInfo) (frame.Chain, error) {
	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if len(info.QueueFamilies) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = info.QueueFamilies
	}

	swapchain, _, err := b.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: b.ctx.surface,

		MinImageCount:    info.ImageCount,
		ImageFormat:      core1_0.Format(info.Format.Format),
		ImageColorSpace:  khr_surface.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      toExtent(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   b.surface.transform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    khr_surface.PresentMode(info.PresentMode),
		Clipped:        true,
	})
	if err != nil {
		return nil, err
	}

	return &chain{backend: b, handle: swapchain}, nil
}

func (b *SwapchainBackend) NewImageView(image frame.Image, format frame.Format) (frame.ImageView, error) {
	view, err := createImageView(b.ctx.deviceDriver, image.(core1_0.Image), core1_0.Format(format), core1_0.ImageAspectColor, 1)
	if err != nil {
		return nil, err
	}
	return &ImageView{driver: b.ctx.deviceDriver, handle: view}, nil
}

func (b *SwapchainBackend) NewFramebuffer(pass frame.RenderPass, extent frame.Extent, attachments []frame.ImageView) (frame.Framebuffer, error) {
	views := make([]core1_0.ImageView, 0, len(attachments))
	for _, attachment := range attachments {
		views = append(views, attachment.(*ImageView).handle)
	}

	framebuffer, _, err := b.ctx.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass.(*renderPass).handle,
		Layers:      1,
		Attachments: views,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return nil, err
	}
	return &Framebuffer{driver: b.ctx.deviceDriver, handle: framebuffer}, nil
}

type chain struct {
	backend *SwapchainBackend
	handle  khr_swapchain.Swapchain
}

func (c *chain) Destroy() {
	if c.handle.Initialized() {
		c.backend.extension.DestroySwapchain(c.handle, nil)
		c.handle = khr_swapchain.Swapchain{}
	}
}

func (c *chain) Images() ([]frame.Image, error) {
	images, _, err := c.backend.extension.GetSwapchainImages(c.handle)
	if err != nil {
		return nil, err
	}

	out := make([]frame.Image, 0, len(images))
	for _, image := range images {
		out = append(out, image)
	}
	return out, nil
}

func (c *chain) AcquireNextImage(signal frame.Semaphore) (int, error) {
	semaphore := signal.(*Semaphore).handle
	imageIndex, res, err := c.backend.extension.AcquireNextImage(c.handle, common.NoTimeout, &semaphore, nil)
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return 0, frame.ErrOutOfDate
	case khr_swapchain.VKSuboptimal:
		return imageIndex, frame.ErrSuboptimal
	}
	if err != nil {
		return 0, deviceError(res, err, "acquiring next image")
	}
	return imageIndex, nil
}

func (c *chain) Present(q frame.Queue, imageIndex int, wait []frame.Semaphore) error {
	res, err := c.backend.extension.QueuePresent(q.(Queue).handle, khr_swapchain.PresentInfo{
		WaitSemaphores: semaphoreHandles(wait),
		Swapchains:     []khr_swapchain.Swapchain{c.handle},
		ImageIndices:   []int{imageIndex},
	})
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return frame.ErrOutOfDate
	case khr_swapchain.VKSuboptimal:
		return frame.ErrSuboptimal
	}
	return deviceError(res, err, "presenting")
}

// ImageView wraps an image view.
type ImageView struct {
	driver core1_0.DeviceDriver
	handle core1_0.ImageView
}

func (v *ImageView) Destroy() {
	if v.handle.Initialized() {
		v.driver.DestroyImageView(v.handle, nil)
		v.handle = core1_0.ImageView{}
	}
}

// Framebuffer wraps a framebuffer.
type Framebuffer struct {
	driver core1_0.DeviceDriver
	handle core1_0.Framebuffer
}

func (f *Framebuffer) Destroy() {
	if f.handle.Initialized() {
		f.driver.DestroyFramebuffer(f.handle, nil)
		f.handle = core1_0.Framebuffer{}
	}
}
