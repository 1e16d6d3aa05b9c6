package frame

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
)

// State is the step of the per-frame algorithm a Renderer is in.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateWaitingForImage
	StateSubmitting
	StatePresenting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateWaitingForImage:
		return "waiting-for-image"
	case StateSubmitting:
		return "submitting"
	case StatePresenting:
		return "presenting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Collaborators are the objects a Renderer drives. The Renderer takes ownership of
// CommandPool only; everything else must outlive it.
type Collaborators struct {
	Device      Device
	Surface     Surface
	Window      Window
	Swapchains  SwapchainBackend
	Pipelines   PipelineProvider
	Geometry    Geometry
	CommandPool CommandPool
}

// Renderer drives one frame per call to DrawFrame: wait for the current slot, acquire an
// image, wait for the image's previous user, submit its pre-recorded command buffer and
// present it. It rebuilds everything that depends on the swap chain when the surface goes
// stale or the window is resized.
//
// A Renderer is not safe for concurrent use. All coordination with the GPU goes through the
// fences and semaphores of its Ring.
type Renderer struct {
	c    Collaborators
	opts Options
	log  *slog.Logger

	ring      *Ring
	recorder  *Recorder
	swapchain *Swapchain
	pipeline  Pipeline
	bound     bool

	// deferred is set while a rebuild is pending, either because the window has no area or
	// because the last rebuild failed. DrawFrame retries the rebuild first.
	deferred   bool
	generation int

	state State
	stats Stats
}

// NewRenderer builds the first swap chain generation and the frame slots.
func NewRenderer(c Collaborators, opts Options) (*Renderer, error) {
	opts = opts.withDefaults()
	err := opts.validate()
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		c:        c,
		opts:     opts,
		log:      opts.Logger,
		recorder: NewRecorder(c.CommandPool, opts.ClearColor),
	}

	extent := c.Window.DrawableSize()
	if extent.Empty() {
		r.recorder.Destroy()
		return nil, errors.Newf("window has no drawable area (%dx%d)", extent.Width, extent.Height)
	}

	err = r.build(extent)
	if err != nil {
		r.teardown()
		r.recorder.Destroy()
		return nil, err
	}

	r.ring, err = NewRing(c.Device, opts.FramesInFlight, r.swapchain.ImageCount())
	if err != nil {
		r.teardown()
		r.recorder.Destroy()
		return nil, err
	}

	return r, nil
}

// State returns the step the renderer is in.
func (r *Renderer) State() State { return r.state }

// Stats returns the renderer's counters.
func (r *Renderer) Stats() Stats { return r.stats }

// Ring returns the frame slots.
func (r *Renderer) Ring() *Ring { return r.ring }

// Swapchain returns the current swap chain. It is nil after a failed rebuild until the
// next DrawFrame or Resize rebuilds successfully.
func (r *Renderer) Swapchain() *Swapchain { return r.swapchain }

// Generation counts swap chain builds, starting at 1.
func (r *Renderer) Generation() int { return r.generation }

// DrawFrame renders and presents one frame, or does nothing if no image can be
// acquired right now. Only unrecoverable failures are returned.
func (r *Renderer) DrawFrame() error {
	if r.state == StateClosed {
		return ErrClosed
	}
	defer func() {
		if r.state != StateClosed {
			r.state = StateIdle
		}
	}()

	if r.deferred {
		err := r.recreate("deferred resize")
		if err != nil {
			return err
		}
		if r.deferred {
			r.stats.Skipped++
			return nil
		}
	}

	start := hrtime.Now()
	slot := r.ring.Current()

	r.state = StateAcquiring
	err := r.wait(slot.InFlight)
	if err != nil {
		return err
	}

	suboptimal := false
	imageIndex, err := r.swapchain.AcquireNextImage(slot.ImageAvailable)
	switch {
	case errors.Is(err, ErrOutOfDate):
		r.stats.Skipped++
		r.log.Debug("frame skipped", "slot", r.ring.CurrentSlot(), "reason", "acquire out of date")
		return r.recreate("acquire out of date")
	case errors.Is(err, ErrSuboptimal):
		suboptimal = true
	case err != nil:
		return errors.Wrap(err, "acquiring swap chain image")
	}

	r.state = StateWaitingForImage
	if owner := r.ring.Owner(imageIndex); owner != nil && owner != slot.InFlight {
		err = r.wait(owner)
		if err != nil {
			return err
		}
	}
	r.ring.Claim(imageIndex, slot.InFlight)

	r.state = StateSubmitting
	if r.opts.BeforeSubmit != nil {
		err = r.opts.BeforeSubmit(imageIndex)
		if err != nil {
			return errors.Wrapf(err, "preparing image %d", imageIndex)
		}
	}

	// The fence is reset only when a submission is certain to follow; a reset fence that is
	// never submitted would block the next wait on this slot forever.
	err = r.c.Device.ResetFences(slot.InFlight)
	if err != nil {
		return errors.Wrap(err, "resetting in-flight fence")
	}

	err = r.c.Device.Submit(r.c.Device.GraphicsQueue(), Submission{
		CommandBuffers:   []CommandBuffer{r.recorder.Buffer(imageIndex)},
		WaitSemaphores:   []Semaphore{slot.ImageAvailable},
		WaitStages:       []PipelineStage{StageColorAttachmentOutput},
		SignalSemaphores: []Semaphore{slot.RenderFinished},
		Fence:            slot.InFlight,
	})
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "submitting frame for image %d", imageIndex), ErrDeviceLost)
	}

	r.state = StatePresenting
	presentErr := r.swapchain.Present(r.c.Device.PresentQueue(), imageIndex, []Semaphore{slot.RenderFinished})

	r.ring.Advance()
	r.stats.frame(hrtime.Since(start))

	switch {
	case NeedsRecreation(presentErr):
		return r.recreate("present reported stale surface")
	case presentErr != nil:
		return errors.Wrapf(presentErr, "presenting image %d", imageIndex)
	case suboptimal:
		return r.recreate("acquire reported suboptimal surface")
	}

	return nil
}

// Resize rebuilds the swap chain for the window's new size. It is called when the
// window reports a resize.
func (r *Renderer) Resize() error {
	if r.state == StateClosed {
		return ErrClosed
	}
	return r.recreate("window resized")
}

// Close waits for the device to finish and destroys everything the renderer created,
// in reverse order of creation.
func (r *Renderer) Close() error {
	if r.state == StateClosed {
		return nil
	}
	r.state = StateClosed

	err := r.c.Device.WaitIdle()
	r.teardown()
	if r.ring != nil {
		r.ring.Destroy()
	}
	r.recorder.Destroy()

	return errors.Wrap(err, "waiting for device idle")
}

func (r *Renderer) wait(fence Fence) error {
	err := r.c.Device.WaitForFences(r.opts.FenceTimeout, fence)
	if errors.Is(err, ErrTimeout) {
		return errors.Mark(errors.Wrapf(err, "fence not signaled within %s", r.opts.FenceTimeout), ErrDeviceLost)
	}
	return errors.Wrap(err, "waiting for fence")
}

// recreate replaces every swap chain dependent resource. The frame slots survive; the
// image map is emptied and resized for the new image count.
func (r *Renderer) recreate(cause string) error {
	extent := r.c.Window.DrawableSize()
	if extent.Empty() {
		if !r.deferred {
			r.log.Info("swap chain rebuild deferred", "cause", cause, "width", extent.Width, "height", extent.Height)
		}
		r.deferred = true
		return nil
	}

	r.log.Info("rebuilding swap chain", "cause", cause, "width", extent.Width, "height", extent.Height)

	err := r.c.Device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}

	r.teardown()
	err = r.build(extent)
	if err != nil {
		r.teardown()
		r.deferred = true
		return err
	}

	r.ring.ResetImages(r.swapchain.ImageCount())
	r.deferred = false
	r.stats.Recreations++

	return nil
}

// build creates one swap chain generation: chain and views, pipeline, framebuffers,
// per-image bindings and command buffers.
func (r *Renderer) build(extent Extent) error {
	swapchain, err := NewSwapchain(r.c.Swapchains, r.c.Surface, SwapchainOptions{
		PreferredFormat:   r.opts.PreferredFormat,
		PresentModes:      r.opts.PresentModes,
		DesiredImageCount: r.opts.DesiredImageCount,
		WindowExtent:      extent,
		PresentFamily:     r.c.Device.PresentQueue().FamilyIndex(),
		QueueFamilies: []int{
			r.c.Device.GraphicsQueue().FamilyIndex(),
			r.c.Device.PresentQueue().FamilyIndex(),
		},
	})
	if err != nil {
		return err
	}
	r.swapchain = swapchain
	r.generation++

	r.pipeline, err = r.c.Pipelines.NewPipeline(Target{
		Extent:     swapchain.Extent(),
		Format:     swapchain.Format().Format,
		ImageCount: swapchain.ImageCount(),
	})
	if err != nil {
		return errors.Wrap(err, "creating pipeline")
	}

	err = swapchain.BuildFramebuffers(r.pipeline)
	if err != nil {
		return err
	}

	err = r.c.Geometry.Bind(r.pipeline, swapchain.ImageCount())
	if err != nil {
		return errors.Wrap(err, "binding geometry")
	}
	r.bound = true

	err = r.recorder.Record(swapchain, r.pipeline, r.c.Geometry)
	if err != nil {
		return err
	}

	r.log.Debug("swap chain built",
		"generation", r.generation,
		"images", swapchain.ImageCount(),
		"width", swapchain.Extent().Width,
		"height", swapchain.Extent().Height,
		"presentMode", swapchain.PresentMode())

	return nil
}

// teardown destroys the current generation: command buffers, framebuffers, pipeline,
// per-image bindings and finally the chain with its views.
func (r *Renderer) teardown() {
	r.recorder.Free()

	if r.swapchain != nil {
		r.swapchain.DestroyFramebuffers()
	}

	if r.bound {
		r.c.Geometry.Release()
		r.bound = false
	}

	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}

	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
		r.log.Debug("swap chain destroyed", "generation", r.generation)
	}
}
