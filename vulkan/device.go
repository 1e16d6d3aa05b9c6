package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/frames/frame"
)

// Device is the frame.Device of a Context.
type Device struct {
	ctx      *Context
	graphics Queue
	present  Queue
}

// Device returns the context's logical device and queues.
func (c *Context) Device() *Device {
	return &Device{
		ctx:      c,
		graphics: Queue{handle: c.graphicsQueue, family: c.graphicsFamily},
		present:  Queue{handle: c.presentQueue, family: c.presentFamily},
	}
}

// Queue is a device queue and the family it was taken from.
type Queue struct {
	handle core1_0.Queue
	family int
}

func (q Queue) FamilyIndex() int { return q.family }

// Semaphore wraps a binary semaphore.
type Semaphore struct {
	driver core1_0.DeviceDriver
	handle core1_0.Semaphore
}

func (s *Semaphore) Destroy() {
	if s.handle.Initialized() {
		s.driver.DestroySemaphore(s.handle, nil)
		s.handle = core1_0.Semaphore{}
	}
}

// Fence wraps a fence.
type Fence struct {
	driver core1_0.DeviceDriver
	handle core1_0.Fence
}

func (f *Fence) Destroy() {
	if f.handle.Initialized() {
		f.driver.DestroyFence(f.handle, nil)
		f.handle = core1_0.Fence{}
	}
}

func (d *Device) NewSemaphore() (frame.Semaphore, error) {
	semaphore, _, err := d.ctx.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, errors.Wrap(err, "creating semaphore")
	}
	return &Semaphore{driver: d.ctx.deviceDriver, handle: semaphore}, nil
}

func (d *Device) NewFence(signaled bool) (frame.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}

	fence, _, err := d.ctx.deviceDriver.CreateFence(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "creating fence")
	}
	return &Fence{driver: d.ctx.deviceDriver, handle: fence}, nil
}

func (d *Device) WaitForFences(timeout time.Duration, fences ...frame.Fence) error {
	if timeout <= 0 {
		timeout = common.NoTimeout
	}

	res, err := d.ctx.deviceDriver.WaitForFences(true, timeout, fenceHandles(fences)...)
	if res == core1_0.VKTimeout {
		return errors.Wrapf(frame.ErrTimeout, "after %s", timeout)
	}
	return deviceError(res, err, "waiting for fences")
}

func (d *Device) ResetFences(fences ...frame.Fence) error {
	res, err := d.ctx.deviceDriver.ResetFences(fenceHandles(fences)...)
	return deviceError(res, err, "resetting fences")
}

func (d *Device) Submit(q frame.Queue, s frame.Submission) error {
	info := core1_0.SubmitInfo{
		WaitSemaphores:   semaphoreHandles(s.WaitSemaphores),
		SignalSemaphores: semaphoreHandles(s.SignalSemaphores),
	}
	for _, stage := range s.WaitStages {
		info.WaitDstStageMask = append(info.WaitDstStageMask, core1_0.PipelineStageFlags(stage))
	}
	for _, buffer := range s.CommandBuffers {
		info.CommandBuffers = append(info.CommandBuffers, buffer.(*CommandBuffer).handle)
	}

	var fence *core1_0.Fence
	if s.Fence != nil {
		fence = &s.Fence.(*Fence).handle
	}

	res, err := d.ctx.deviceDriver.QueueSubmit(q.(Queue).handle, fence, info)
	return deviceError(res, err, "submitting to queue")
}

func (d *Device) WaitIdle() error {
	res, err := d.ctx.deviceDriver.DeviceWaitIdle()
	return deviceError(res, err, "waiting for device idle")
}

func (d *Device) GraphicsQueue() frame.Queue { return d.graphics }
func (d *Device) PresentQueue() frame.Queue  { return d.present }

func deviceError(res common.VkResult, err error, action string) error {
	if err == nil {
		return nil
	}
	if res == core1_0.VKErrorDeviceLost {
		return errors.Mark(errors.Wrap(err, action), frame.ErrDeviceLost)
	}
	return errors.Wrap(err, action)
}

func fenceHandles(fences []frame.Fence) []core1_0.Fence {
	handles := make([]core1_0.Fence, 0, len(fences))
	for _, fence := range fences {
		handles = append(handles, fence.(*Fence).handle)
	}
	return handles
}

func semaphoreHandles(semaphores []frame.Semaphore) []core1_0.Semaphore {
	handles := make([]core1_0.Semaphore, 0, len(semaphores))
	for _, semaphore := range semaphores {
		handles = append(handles, semaphore.(*Semaphore).handle)
	}
	return handles
}

// Window reports the drawable size of an SDL window.
type Window struct {
	window *sdl.Window
}

func (w Window) DrawableSize() frame.Extent {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return frame.Extent{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return frame.Extent{Width: int(width), Height: int(height)}
}
