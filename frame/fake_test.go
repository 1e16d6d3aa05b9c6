package frame

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// events is the ordered log shared by every fake.
type events struct {
	entries []string
}

func (e *events) add(format string, args ...any) {
	e.entries = append(e.entries, fmt.Sprintf(format, args...))
}

func (e *events) since(mark int) []string {
	return append([]string(nil), e.entries[mark:]...)
}

func (e *events) count(prefix string) int {
	n := 0
	for _, got := range e.entries {
		if strings.HasPrefix(got, prefix) {
			n++
		}
	}
	return n
}

type fakeSemaphore struct {
	id        int
	log       *events
	destroyed bool
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed = true
	s.log.add("destroy semaphore %d", s.id)
}

type fakeFence struct {
	id        int
	log       *events
	signaled  bool
	destroyed bool
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
	f.log.add("destroy fence %d", f.id)
}

type fakeQueue int

func (q fakeQueue) FamilyIndex() int { return int(q) }

type submission struct {
	fence *fakeFence
	image int
}

// fakeDevice models a single in-order GPU queue. Submitted work stays pending until a fence
// wait or an idle wait forces it to complete, which is the latest the real GPU could finish.
type fakeDevice struct {
	log *events

	semaphores []*fakeSemaphore
	fences     []*fakeFence

	pending []submission

	graphics fakeQueue
	present  fakeQueue

	// stall makes every wait on pending work time out.
	stall     bool
	submitErr error

	maxPending  int
	violations  []string
	submissions []Submission
}

func newFakeDevice(log *events) *fakeDevice {
	return &fakeDevice{log: log}
}

func (d *fakeDevice) NewSemaphore() (Semaphore, error) {
	s := &fakeSemaphore{id: len(d.semaphores), log: d.log}
	d.semaphores = append(d.semaphores, s)
	return s, nil
}

func (d *fakeDevice) NewFence(signaled bool) (Fence, error) {
	f := &fakeFence{id: len(d.fences), log: d.log, signaled: signaled}
	d.fences = append(d.fences, f)
	return f, nil
}

func (d *fakeDevice) WaitForFences(timeout time.Duration, fences ...Fence) error {
	for _, fence := range fences {
		f := fence.(*fakeFence)
		d.log.add("wait fence %d", f.id)
		if f.destroyed {
			d.violations = append(d.violations, fmt.Sprintf("wait on destroyed fence %d", f.id))
		}
		if f.signaled {
			continue
		}

		last := -1
		for i, s := range d.pending {
			if s.fence == f {
				last = i
			}
		}
		if last < 0 || d.stall {
			return errors.Wrapf(ErrTimeout, "fence %d", f.id)
		}
		d.complete(last + 1)
	}
	return nil
}

func (d *fakeDevice) complete(n int) {
	for _, s := range d.pending[:n] {
		s.fence.signaled = true
	}
	d.pending = d.pending[n:]
}

func (d *fakeDevice) ResetFences(fences ...Fence) error {
	for _, fence := range fences {
		f := fence.(*fakeFence)
		d.log.add("reset fence %d", f.id)
		f.signaled = false
	}
	return nil
}

func (d *fakeDevice) Submit(q Queue, s Submission) error {
	if d.submitErr != nil {
		return d.submitErr
	}

	buffer := s.CommandBuffers[0].(*fakeCommandBuffer)
	fence := s.Fence.(*fakeFence)
	d.log.add("submit image %d fence %d", buffer.image, fence.id)

	for _, p := range d.pending {
		if p.image == buffer.image {
			d.violations = append(d.violations, fmt.Sprintf("image %d submitted while fence %d still renders to it", buffer.image, p.fence.id))
		}
		if p.fence == fence {
			d.violations = append(d.violations, fmt.Sprintf("fence %d submitted twice", fence.id))
		}
	}
	if buffer.freed {
		d.violations = append(d.violations, fmt.Sprintf("freed command buffer for image %d submitted", buffer.image))
	}

	d.pending = append(d.pending, submission{fence: fence, image: buffer.image})
	d.submissions = append(d.submissions, s)

	unsignaled := 0
	for _, f := range d.fences {
		if !f.signaled && !f.destroyed {
			unsignaled++
		}
	}
	if unsignaled > d.maxPending {
		d.maxPending = unsignaled
	}
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.log.add("wait idle")
	d.complete(len(d.pending))
	return nil
}

func (d *fakeDevice) GraphicsQueue() Queue { return d.graphics }
func (d *fakeDevice) PresentQueue() Queue  { return d.present }

type fakeWindow struct {
	extent Extent
}

func (w *fakeWindow) DrawableSize() Extent { return w.extent }

var undefinedExtent = Extent{Width: math.MaxUint32, Height: math.MaxUint32}

type fakeSurface struct {
	caps    SurfaceCapabilities
	formats []SurfaceFormat
	modes   []PresentMode
	// unsupported lists queue families that cannot present to the surface.
	unsupported []int
}

// formatR8G8B8A8Unorm is a surface format the renderer never prefers.
const formatR8G8B8A8Unorm Format = 37

func newFakeSurface(minImages int) *fakeSurface {
	return &fakeSurface{
		caps: SurfaceCapabilities{
			MinImageCount:  minImages,
			CurrentExtent:  undefinedExtent,
			MinImageExtent: Extent{Width: 1, Height: 1},
			MaxImageExtent: Extent{Width: 4096, Height: 4096},
		},
		formats: []SurfaceFormat{
			{Format: formatR8G8B8A8Unorm, ColorSpace: ColorSpaceSRGBNonlinear},
			{Format: FormatB8G8R8A8SRGB, ColorSpace: ColorSpaceSRGBNonlinear},
		},
		modes: []PresentMode{PresentModeFIFO, PresentModeMailbox},
	}
}

func (s *fakeSurface) Capabilities() (SurfaceCapabilities, error) { return s.caps, nil }
func (s *fakeSurface) Formats() ([]SurfaceFormat, error)          { return s.formats, nil }
func (s *fakeSurface) PresentModes() ([]PresentMode, error)       { return s.modes, nil }

func (s *fakeSurface) SupportsPresent(queueFamily int) (bool, error) {
	for _, family := range s.unsupported {
		if family == queueFamily {
			return false, nil
		}
	}
	return true, nil
}

type fakeImage struct {
	generation int
	index      int
}

type fakeView struct {
	image fakeImage
	log   *events
}

func (v *fakeView) Destroy() { v.log.add("destroy view %d", v.image.index) }

type fakeFramebuffer struct {
	index       int
	attachments []ImageView
	log         *events
}

func (f *fakeFramebuffer) Destroy() { f.log.add("destroy framebuffer %d", f.index) }

// fakeBackend creates chains that hand out images round robin. acquire and present, when set,
// override the result of a call; they receive the 0-based call number across all chains.
type fakeBackend struct {
	log *events

	chains []*fakeChain
	infos  []ChainInfo

	acquire func(call int) error
	present func(call int) error

	acquires int
	presents int
}

func (b *fakeBackend) NewChain(info ChainInfo) (Chain, error) {
	b.log.add("create chain %d images", info.ImageCount)
	c := &fakeChain{backend: b, generation: len(b.chains), count: info.ImageCount}
	b.chains = append(b.chains, c)
	b.infos = append(b.infos, info)
	return c, nil
}

func (b *fakeBackend) NewImageView(image Image, _ Format) (ImageView, error) {
	return &fakeView{image: image.(fakeImage), log: b.log}, nil
}

func (b *fakeBackend) NewFramebuffer(_ RenderPass, _ Extent, attachments []ImageView) (Framebuffer, error) {
	view := attachments[0].(*fakeView)
	return &fakeFramebuffer{index: view.image.index, attachments: attachments, log: b.log}, nil
}

type fakeChain struct {
	backend    *fakeBackend
	generation int
	count      int
	next       int
	destroyed  bool
}

func (c *fakeChain) Destroy() {
	c.destroyed = true
	c.backend.log.add("destroy chain")
}

func (c *fakeChain) Images() ([]Image, error) {
	images := make([]Image, c.count)
	for i := range images {
		images[i] = fakeImage{generation: c.generation, index: i}
	}
	return images, nil
}

func (c *fakeChain) AcquireNextImage(signal Semaphore) (int, error) {
	call := c.backend.acquires
	c.backend.acquires++
	c.backend.log.add("acquire semaphore %d", signal.(*fakeSemaphore).id)

	if c.backend.acquire != nil {
		err := c.backend.acquire(call)
		if errors.Is(err, ErrOutOfDate) {
			return 0, err
		}
		if err != nil && !errors.Is(err, ErrSuboptimal) {
			return 0, err
		}
		index := c.advance()
		return index, err
	}

	return c.advance(), nil
}

func (c *fakeChain) advance() int {
	index := c.next
	c.next = (c.next + 1) % c.count
	return index
}

func (c *fakeChain) Present(_ Queue, imageIndex int, wait []Semaphore) error {
	call := c.backend.presents
	c.backend.presents++
	c.backend.log.add("present image %d semaphore %d", imageIndex, wait[0].(*fakeSemaphore).id)

	if c.backend.present != nil {
		return c.backend.present(call)
	}
	return nil
}

type fakePipelines struct {
	log     *events
	targets []Target
	err     error
}

func (p *fakePipelines) NewPipeline(target Target) (Pipeline, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.log.add("create pipeline %dx%d", target.Extent.Width, target.Extent.Height)
	p.targets = append(p.targets, target)
	return &fakePipeline{id: len(p.targets), log: p.log}, nil
}

type fakePipeline struct {
	id  int
	log *events
}

func (p *fakePipeline) Destroy()               { p.log.add("destroy pipeline %d", p.id) }
func (p *fakePipeline) RenderPass() RenderPass { return p.id }

func (p *fakePipeline) Attachments(view ImageView) []ImageView {
	return []ImageView{view}
}

type fakeGeometry struct {
	log   *events
	bound int
}

func (g *fakeGeometry) Bind(_ Pipeline, imageCount int) error {
	g.log.add("bind geometry %d images", imageCount)
	g.bound = imageCount
	return nil
}

func (g *fakeGeometry) Release() {
	g.log.add("release geometry")
	g.bound = 0
}

func (g *fakeGeometry) VertexBuffers() []Buffer { return []Buffer{"vertices"} }
func (g *fakeGeometry) IndexBuffer() Buffer     { return "indices" }
func (g *fakeGeometry) IndexType() IndexType    { return IndexUint16 }
func (g *fakeGeometry) IndexCount() int         { return 6 }

func (g *fakeGeometry) DescriptorSet(imageIndex int) DescriptorSet {
	return fmt.Sprintf("set %d", imageIndex)
}

type fakePool struct {
	log       *events
	allocated int
	destroyed bool
}

func (p *fakePool) Destroy() {
	p.destroyed = true
	p.log.add("destroy pool")
}

func (p *fakePool) Allocate(count int) ([]CommandBuffer, error) {
	p.log.add("allocate %d command buffers", count)
	buffers := make([]CommandBuffer, count)
	for i := range buffers {
		buffers[i] = &fakeCommandBuffer{image: i}
	}
	p.allocated += count
	return buffers, nil
}

func (p *fakePool) Free(buffers []CommandBuffer) {
	p.log.add("free %d command buffers", len(buffers))
	for _, buffer := range buffers {
		buffer.(*fakeCommandBuffer).freed = true
	}
	p.allocated -= len(buffers)
}

type fakeCommandBuffer struct {
	image    int
	freed    bool
	commands []string
}

func (b *fakeCommandBuffer) Begin() error {
	b.commands = append(b.commands, "begin")
	return nil
}

func (b *fakeCommandBuffer) BeginRenderPass(pass RenderPass, framebuffer Framebuffer, extent Extent, _ ClearColor) error {
	b.commands = append(b.commands, fmt.Sprintf("begin pass %v framebuffer %d %dx%d",
		pass, framebuffer.(*fakeFramebuffer).index, extent.Width, extent.Height))
	return nil
}

func (b *fakeCommandBuffer) BindPipeline(Pipeline) {
	b.commands = append(b.commands, "bind pipeline")
}

func (b *fakeCommandBuffer) BindVertexBuffers(buffers []Buffer) {
	b.commands = append(b.commands, fmt.Sprintf("bind %d vertex buffers", len(buffers)))
}

func (b *fakeCommandBuffer) BindIndexBuffer(Buffer, IndexType) {
	b.commands = append(b.commands, "bind index buffer")
}

func (b *fakeCommandBuffer) BindDescriptorSet(_ Pipeline, set DescriptorSet) {
	b.commands = append(b.commands, fmt.Sprintf("bind %v", set))
}

func (b *fakeCommandBuffer) DrawIndexed(count int) {
	b.commands = append(b.commands, fmt.Sprintf("draw %d", count))
}

func (b *fakeCommandBuffer) EndRenderPass() {
	b.commands = append(b.commands, "end pass")
}

func (b *fakeCommandBuffer) End() error {
	b.commands = append(b.commands, "end")
	return nil
}

// harness wires one fake of each collaborator into a Renderer.
type harness struct {
	log       *events
	device    *fakeDevice
	surface   *fakeSurface
	window    *fakeWindow
	backend   *fakeBackend
	pipelines *fakePipelines
	geometry  *fakeGeometry
	pool      *fakePool
}

func newHarness(minImages int) *harness {
	log := &events{}
	return &harness{
		log:       log,
		device:    newFakeDevice(log),
		surface:   newFakeSurface(minImages),
		window:    &fakeWindow{extent: Extent{Width: 800, Height: 600}},
		backend:   &fakeBackend{log: log},
		pipelines: &fakePipelines{log: log},
		geometry:  &fakeGeometry{log: log},
		pool:      &fakePool{log: log},
	}
}

func (h *harness) collaborators() Collaborators {
	return Collaborators{
		Device:      h.device,
		Surface:     h.surface,
		Window:      h.window,
		Swapchains:  h.backend,
		Pipelines:   h.pipelines,
		Geometry:    h.geometry,
		CommandPool: h.pool,
	}
}
