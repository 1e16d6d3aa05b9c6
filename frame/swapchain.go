package frame

import "github.com/cockroachdb/errors"

// SwapchainBackend creates the native objects owned by a Swapchain.
type SwapchainBackend interface {
	NewChain(info ChainInfo) (Chain, error)
	NewImageView(image Image, format Format) (ImageView, error)
	NewFramebuffer(pass RenderPass, extent Extent, attachments []ImageView) (Framebuffer, error)
}

// ChainInfo is the fully resolved description of a presentable image chain.
// When QueueFamilies holds more than one index, images are shared between those families.
type ChainInfo struct {
	ImageCount    int
	Format        SurfaceFormat
	PresentMode   PresentMode
	Extent        Extent
	QueueFamilies []int
}

// Chain is the native presentable image chain.
type Chain interface {
	Destroyer

	// Images returns the chain's images in presentation index order.
	Images() ([]Image, error)

	// AcquireNextImage returns the index of the next presentable image and arranges for
	// signal to be signaled once the image may be written. It reports ErrOutOfDate when no
	// image was acquired and ErrSuboptimal along with a valid index.
	AcquireNextImage(signal Semaphore) (int, error)

	// Present queues imageIndex for display after every semaphore in wait is signaled.
	// It reports ErrOutOfDate or ErrSuboptimal when the surface has become stale.
	Present(q Queue, imageIndex int, wait []Semaphore) error
}

// SwapchainOptions carries the requests that are resolved against the surface when a
// Swapchain is built.
type SwapchainOptions struct {
	PreferredFormat   SurfaceFormat
	PresentModes      []PresentMode
	DesiredImageCount int
	WindowExtent      Extent
	// PresentFamily is the queue family that presents the images. It must be able to present
	// to the surface.
	PresentFamily     int
	QueueFamilies     []int
}

// Swapchain owns a presentable image chain and the image views and framebuffers created for
// each of its images. The image list never changes length: a different image count means a
// new Swapchain.
type Swapchain struct {
	backend SwapchainBackend
	chain   Chain

	format      SurfaceFormat
	presentMode PresentMode
	extent      Extent

	images       []Image
	views        []ImageView
	framebuffers []Framebuffer
}

// NewSwapchain queries surface, resolves opts against its capabilities and builds the chain
// and its image views. Framebuffers are added later by BuildFramebuffers, once a render pass
// exists for the chosen format.
func NewSwapchain(backend SwapchainBackend, surface Surface, opts SwapchainOptions) (*Swapchain, error) {
	supported, err := surface.SupportsPresent(opts.PresentFamily)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, errors.Newf("queue family %d cannot present to the surface", opts.PresentFamily)
	}

	caps, err := surface.Capabilities()
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}

	formats, err := surface.Formats()
	if err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}

	modes, err := surface.PresentModes()
	if err != nil {
		return nil, errors.Wrap(err, "querying surface present modes")
	}

	format, err := ChooseSurfaceFormat(formats, opts.PreferredFormat)
	if err != nil {
		return nil, err
	}

	presentMode, err := ChoosePresentMode(modes, opts.PresentModes)
	if err != nil {
		return nil, err
	}

	info := ChainInfo{
		ImageCount:    ChooseImageCount(caps, opts.DesiredImageCount),
		Format:        format,
		PresentMode:   presentMode,
		Extent:        ChooseExtent(caps, opts.WindowExtent),
		QueueFamilies: uniqueFamilies(opts.QueueFamilies),
	}

	chain, err := backend.NewChain(info)
	if err != nil {
		return nil, errors.Wrap(err, "creating swap chain")
	}

	s := &Swapchain{
		backend:     backend,
		chain:       chain,
		format:      format,
		presentMode: presentMode,
		extent:      info.Extent,
	}

	s.images, err = chain.Images()
	if err != nil {
		s.Destroy()
		return nil, errors.Wrap(err, "retrieving swap chain images")
	}

	for i, image := range s.images {
		view, err := backend.NewImageView(image, format.Format)
		if err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "creating view for swap chain image %d", i)
		}
		s.views = append(s.views, view)
	}

	return s, nil
}

func uniqueFamilies(families []int) []int {
	var out []int
	for _, family := range families {
		found := false
		for _, seen := range out {
			if seen == family {
				found = true
				break
			}
		}
		if !found {
			out = append(out, family)
		}
	}
	return out
}

// ImageCount returns the number of presentable images.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// Extent returns the size of the presentable images.
func (s *Swapchain) Extent() Extent { return s.extent }

// Format returns the surface format the chain was created with.
func (s *Swapchain) Format() SurfaceFormat { return s.format }

// PresentMode returns the present mode the chain was created with.
func (s *Swapchain) PresentMode() PresentMode { return s.presentMode }

// Views returns the image view of every presentable image.
func (s *Swapchain) Views() []ImageView { return s.views }

// Framebuffer returns the framebuffer targeting imageIndex.
func (s *Swapchain) Framebuffer(imageIndex int) Framebuffer { return s.framebuffers[imageIndex] }

// FramebufferCount returns the number of framebuffers currently built.
func (s *Swapchain) FramebufferCount() int { return len(s.framebuffers) }

// BuildFramebuffers creates one framebuffer per image, using the render pass and attachment
// list supplied by pipeline. Existing framebuffers are destroyed first.
func (s *Swapchain) BuildFramebuffers(pipeline Pipeline) error {
	s.DestroyFramebuffers()

	for i, view := range s.views {
		framebuffer, err := s.backend.NewFramebuffer(pipeline.RenderPass(), s.extent, pipeline.Attachments(view))
		if err != nil {
			s.DestroyFramebuffers()
			return errors.Wrapf(err, "creating framebuffer for swap chain image %d", i)
		}
		s.framebuffers = append(s.framebuffers, framebuffer)
	}

	return nil
}

// DestroyFramebuffers destroys every framebuffer while keeping the chain and its views.
func (s *Swapchain) DestroyFramebuffers() {
	for _, framebuffer := range s.framebuffers {
		framebuffer.Destroy()
	}
	s.framebuffers = nil
}

// AcquireNextImage requests the next presentable image. See Chain.AcquireNextImage.
func (s *Swapchain) AcquireNextImage(signal Semaphore) (int, error) {
	return s.chain.AcquireNextImage(signal)
}

// Present hands imageIndex back for display. See Chain.Present.
func (s *Swapchain) Present(q Queue, imageIndex int, wait []Semaphore) error {
	return s.chain.Present(q, imageIndex, wait)
}

// Destroy destroys framebuffers, then image views, then the chain.
func (s *Swapchain) Destroy() {
	s.DestroyFramebuffers()

	for _, view := range s.views {
		view.Destroy()
	}
	s.views = nil

	if s.chain != nil {
		s.chain.Destroy()
		s.chain = nil
	}
	s.images = nil
}
