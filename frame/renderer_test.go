package frame

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, h *harness, opts Options) *Renderer {
	t.Helper()

	r, err := NewRenderer(h.collaborators(), opts)
	require.NoError(t, err)
	return r
}

// drawFrames draws n frames and returns the slot that was current at the start of each.
func drawFrames(t *testing.T, r *Renderer, n int) []int {
	t.Helper()

	var slots []int
	for i := 0; i < n; i++ {
		slots = append(slots, r.Ring().CurrentSlot())
		require.NoError(t, r.DrawFrame(), "frame %d", i)
		assert.Equal(t, StateIdle, r.State())
	}
	return slots
}

func firstWithPrefix(entries []string, prefix string) int {
	for i, entry := range entries {
		if strings.HasPrefix(entry, prefix) {
			return i
		}
	}
	return -1
}

func TestNewRenderer(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})

	assert.Equal(t, DefaultFramesInFlight, r.Ring().Len())
	assert.Equal(t, 3, r.Ring().ImageCount())
	assert.Equal(t, 3, r.Swapchain().ImageCount())
	assert.Equal(t, 3, r.Swapchain().FramebufferCount())
	assert.Equal(t, 3, h.geometry.bound)
	assert.Equal(t, 3, h.pool.allocated)
	assert.Equal(t, 1, r.Generation())
	assert.Equal(t, StateIdle, r.State())
	require.Len(t, h.pipelines.targets, 1)
	assert.Equal(t, Target{Extent: Extent{Width: 800, Height: 600}, Format: FormatB8G8R8A8SRGB, ImageCount: 3}, h.pipelines.targets[0])
}

func TestNewRendererRejectsEmptyWindow(t *testing.T) {
	h := newHarness(2)
	h.window.extent = Extent{}

	_, err := NewRenderer(h.collaborators(), Options{})
	require.Error(t, err)
	assert.True(t, h.pool.destroyed)
	assert.Empty(t, h.backend.chains)
}

func TestNewRendererRejectsBadOptions(t *testing.T) {
	h := newHarness(2)

	_, err := NewRenderer(h.collaborators(), Options{FramesInFlight: -1})
	require.Error(t, err)

	_, err = NewRenderer(h.collaborators(), Options{DesiredImageCount: -2})
	require.Error(t, err)
}

func TestNewRendererCleansUpOnPipelineFailure(t *testing.T) {
	h := newHarness(2)
	h.pipelines.err = errors.New("shader module rejected")

	_, err := NewRenderer(h.collaborators(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shader module rejected")
	require.Len(t, h.backend.chains, 1)
	assert.True(t, h.backend.chains[0].destroyed)
	assert.True(t, h.pool.destroyed)
}

func TestDrawFrameCyclesSlots(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{FramesInFlight: 2})

	slots := drawFrames(t, r, 5)

	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Empty(t, h.device.violations)
	assert.LessOrEqual(t, h.device.maxPending, 2)
	assert.Equal(t, 5, r.Stats().Frames)
	assert.Equal(t, 0, r.Stats().Skipped)
	assert.Equal(t, 5, h.backend.presents)
}

func TestDrawFrameSubmission(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})

	slot := *r.Ring().Current()
	require.NoError(t, r.DrawFrame())

	require.Len(t, h.device.submissions, 1)
	s := h.device.submissions[0]
	assert.Equal(t, []Semaphore{slot.ImageAvailable}, s.WaitSemaphores)
	assert.Equal(t, []PipelineStage{StageColorAttachmentOutput}, s.WaitStages)
	assert.Equal(t, []Semaphore{slot.RenderFinished}, s.SignalSemaphores)
	assert.Same(t, slot.InFlight, s.Fence)

	fence := slot.InFlight.(*fakeFence).id
	semaphore := slot.RenderFinished.(*fakeSemaphore).id
	assert.Equal(t, []string{
		fmt.Sprintf("wait fence %d", fence),
		fmt.Sprintf("acquire semaphore %d", slot.ImageAvailable.(*fakeSemaphore).id),
		fmt.Sprintf("reset fence %d", fence),
		fmt.Sprintf("submit image 0 fence %d", fence),
		fmt.Sprintf("present image 0 semaphore %d", semaphore),
	}, h.log.entries[len(h.log.entries)-5:])
}

func TestDrawFrameClaimsImages(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{FramesInFlight: 2})

	for i := 0; i < 7; i++ {
		fence := r.Ring().Current().InFlight
		require.NoError(t, r.DrawFrame())

		image := h.device.pending[len(h.device.pending)-1].image
		assert.Same(t, fence, r.Ring().Owner(image), "frame %d", i)
	}
	assert.Empty(t, h.device.violations)
}

func TestDrawFrameMoreSlotsThanImages(t *testing.T) {
	h := newHarness(1)
	r := newTestRenderer(t, h, Options{FramesInFlight: 3})
	require.Equal(t, 2, r.Swapchain().ImageCount())

	slots := drawFrames(t, r, 6)

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, slots)
	assert.Empty(t, h.device.violations)
	assert.LessOrEqual(t, h.device.maxPending, 3)
	assert.Greater(t, h.log.count("wait fence"), 6, "image owners are waited on besides the slot fences")
}

func TestResizeRebuildsSwapchain(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{FramesInFlight: 2})

	drawFrames(t, r, 2)

	h.window.extent = Extent{Width: 1024, Height: 768}
	h.surface.caps.MinImageCount = 3
	mark := len(h.log.entries)
	require.NoError(t, r.Resize())

	rebuild := h.log.since(mark)
	idle := firstWithPrefix(rebuild, "wait idle")
	require.GreaterOrEqual(t, idle, 0)
	for _, prefix := range []string{"free", "destroy", "release"} {
		i := firstWithPrefix(rebuild, prefix)
		require.GreaterOrEqual(t, i, 0, prefix)
		assert.Less(t, idle, i, "%s before idle wait", prefix)
	}

	assert.Equal(t, 4, r.Swapchain().ImageCount())
	assert.Equal(t, Extent{Width: 1024, Height: 768}, r.Swapchain().Extent())
	assert.Equal(t, 4, h.pool.allocated)
	assert.Equal(t, 4, h.geometry.bound)
	assert.Equal(t, 2, r.Generation())
	assert.Equal(t, 1, r.Stats().Recreations)

	assert.Equal(t, 4, r.Ring().ImageCount())
	for i := 0; i < r.Ring().ImageCount(); i++ {
		assert.Nil(t, r.Ring().Owner(i))
	}
	assert.Equal(t, 0, r.Ring().CurrentSlot())

	mark = len(h.log.entries)
	slots := drawFrames(t, r, 3)
	assert.Equal(t, []int{0, 1, 0}, slots)
	assert.Equal(t, "wait fence 0", h.log.since(mark)[0])

	for i := 0; i < 4; i++ {
		buffer := r.recorder.Buffer(i).(*fakeCommandBuffer)
		assert.Equal(t, fmt.Sprintf("begin pass 2 framebuffer %d 1024x768", i), buffer.commands[1])
	}
	assert.Empty(t, h.device.violations)
}

func TestResizeRecordsBeforeNextAcquire(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})

	drawFrames(t, r, 2)
	h.window.extent = Extent{Width: 640, Height: 480}
	mark := len(h.log.entries)
	require.NoError(t, r.Resize())
	drawFrames(t, r, 3)

	after := h.log.since(mark)
	allocate := firstWithPrefix(after, "allocate 3 command buffers")
	acquire := firstWithPrefix(after, "acquire")
	require.GreaterOrEqual(t, allocate, 0)
	assert.Less(t, allocate, acquire)
	assert.Equal(t, 5, r.Stats().Frames)
}

func TestDrawFrameAcquireOutOfDate(t *testing.T) {
	h := newHarness(2)
	h.backend.acquire = func(call int) error {
		if call == 2 {
			return ErrOutOfDate
		}
		return nil
	}
	r := newTestRenderer(t, h, Options{FramesInFlight: 2})

	slots := drawFrames(t, r, 2)

	mark := len(h.log.entries)
	require.NoError(t, r.DrawFrame())
	skipped := h.log.since(mark)
	assert.Equal(t, 0, firstWithPrefix(skipped, "wait fence"))
	assert.Equal(t, -1, firstWithPrefix(skipped, "reset fence"))
	assert.Equal(t, -1, firstWithPrefix(skipped, "submit"))
	assert.Equal(t, -1, firstWithPrefix(skipped, "present"))
	assert.GreaterOrEqual(t, firstWithPrefix(skipped, "wait idle"), 0)
	assert.Equal(t, 0, r.Ring().CurrentSlot(), "skipped frame does not advance")

	slots = append(slots, drawFrames(t, r, 2)...)
	assert.Equal(t, []int{0, 1, 0, 1}, slots)

	stats := r.Stats()
	assert.Equal(t, 4, stats.Frames)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Recreations)
	assert.Len(t, h.device.submissions, 4)
	assert.Equal(t, 4, h.backend.presents)
	assert.Empty(t, h.device.violations)
}

func TestDrawFrameAcquireSuboptimal(t *testing.T) {
	h := newHarness(2)
	h.backend.acquire = func(call int) error {
		if call == 0 {
			return ErrSuboptimal
		}
		return nil
	}
	r := newTestRenderer(t, h, Options{})

	mark := len(h.log.entries)
	require.NoError(t, r.DrawFrame())

	frame := h.log.since(mark)
	present := firstWithPrefix(frame, "present")
	idle := firstWithPrefix(frame, "wait idle")
	require.GreaterOrEqual(t, present, 0)
	assert.Less(t, present, idle, "rebuild follows presentation")
	assert.Equal(t, 1, r.Stats().Frames)
	assert.Equal(t, 1, r.Stats().Recreations)
	assert.Equal(t, 1, r.Ring().CurrentSlot())
}

func TestDrawFramePresentStale(t *testing.T) {
	for _, stale := range []error{ErrOutOfDate, ErrSuboptimal} {
		t.Run(stale.Error(), func(t *testing.T) {
			h := newHarness(2)
			h.backend.present = func(call int) error {
				if call == 1 {
					return errors.Wrap(stale, "presenting")
				}
				return nil
			}
			r := newTestRenderer(t, h, Options{FramesInFlight: 2})

			slots := drawFrames(t, r, 4)

			assert.Equal(t, []int{0, 1, 0, 1}, slots)
			assert.Equal(t, 4, r.Stats().Frames)
			assert.Equal(t, 1, r.Stats().Recreations)
			assert.Equal(t, 2, r.Generation())
			assert.Empty(t, h.device.violations)
		})
	}
}

func TestDrawFramePresentFailure(t *testing.T) {
	h := newHarness(2)
	h.backend.present = func(int) error { return errors.New("surface lost") }
	r := newTestRenderer(t, h, Options{})

	err := r.DrawFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "surface lost")
	assert.Equal(t, 1, r.Ring().CurrentSlot(), "submitted frame advances")
	assert.Equal(t, 0, r.Stats().Recreations)
}

func TestDrawFrameFenceTimeout(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{FramesInFlight: 2, FenceTimeout: time.Millisecond})

	drawFrames(t, r, 2)
	h.device.stall = true

	err := r.DrawFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceLost))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Len(t, h.device.submissions, 2)
}

func TestDrawFrameSubmitFailure(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})
	h.device.submitErr = errors.New("queue submit failed")

	err := r.DrawFrame()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceLost))
	assert.Equal(t, 0, h.backend.presents)
}

func TestDrawFrameMinimized(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})
	drawFrames(t, r, 1)

	h.window.extent = Extent{Width: 0, Height: 0}
	require.NoError(t, r.Resize())
	assert.Equal(t, 1, r.Generation(), "rebuild waits for a drawable size")

	acquires := h.backend.acquires
	drawFrames(t, r, 3)
	assert.Equal(t, acquires, h.backend.acquires)
	assert.Equal(t, 3, r.Stats().Skipped)

	h.window.extent = Extent{Width: 300, Height: 200}
	drawFrames(t, r, 1)
	assert.Equal(t, 2, r.Generation())
	assert.Equal(t, Extent{Width: 300, Height: 200}, r.Swapchain().Extent())
	assert.Equal(t, 2, r.Stats().Frames)
	assert.Equal(t, 1, r.Stats().Recreations)
}

func TestFailedRebuildIsRetried(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})
	drawFrames(t, r, 2)

	h.pipelines.err = errors.New("pipeline compile failed")
	h.window.extent = Extent{Width: 640, Height: 480}
	require.Error(t, r.Resize())

	assert.Nil(t, r.Swapchain(), "partial generation is torn down")
	assert.Equal(t, 0, r.recorder.Len())
	assert.Equal(t, 2, h.log.count("destroy chain"))

	acquires := h.backend.acquires
	require.Error(t, r.DrawFrame(), "rebuild is retried and still fails")
	assert.Equal(t, acquires, h.backend.acquires)
	assert.Equal(t, StateIdle, r.State())

	h.pipelines.err = nil
	drawFrames(t, r, 3)

	assert.Equal(t, Extent{Width: 640, Height: 480}, r.Swapchain().Extent())
	assert.Equal(t, 3, r.recorder.Len())
	assert.Equal(t, 3, r.Ring().ImageCount())
	assert.Equal(t, 1, r.Stats().Recreations)
	assert.Equal(t, 5, r.Stats().Frames)
	assert.Empty(t, h.device.violations)
}

func TestBeforeSubmit(t *testing.T) {
	h := newHarness(2)

	var images []int
	var r *Renderer
	r = newTestRenderer(t, h, Options{
		BeforeSubmit: func(imageIndex int) error {
			assert.Equal(t, StateSubmitting, r.State())
			images = append(images, imageIndex)
			return nil
		},
	})

	drawFrames(t, r, 4)
	assert.Equal(t, []int{0, 1, 2, 0}, images)
}

func TestBeforeSubmitFailureKeepsFenceSignaled(t *testing.T) {
	h := newHarness(2)
	fail := true
	r := newTestRenderer(t, h, Options{
		FenceTimeout: time.Millisecond,
		BeforeSubmit: func(int) error {
			if fail {
				return errors.New("uniform upload failed")
			}
			return nil
		},
	})

	err := r.DrawFrame()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uniform upload failed")
	assert.Equal(t, 0, h.log.count("reset fence"))

	fail = false
	require.NoError(t, r.DrawFrame())
}

func TestRendererClose(t *testing.T) {
	h := newHarness(2)
	r := newTestRenderer(t, h, Options{})
	drawFrames(t, r, 3)

	mark := len(h.log.entries)
	require.NoError(t, r.Close())

	closing := h.log.since(mark)
	assert.Equal(t, "wait idle", closing[0])
	assert.Equal(t, "destroy pool", closing[len(closing)-1])
	assert.Less(t, firstWithPrefix(closing, "destroy chain"), firstWithPrefix(closing, "destroy fence"))

	for _, s := range h.device.semaphores {
		assert.True(t, s.destroyed)
	}
	for _, f := range h.device.fences {
		assert.True(t, f.destroyed)
	}
	assert.Equal(t, 0, h.pool.allocated)
	assert.Equal(t, 0, h.geometry.bound)
	assert.Empty(t, h.device.pending)

	assert.Equal(t, StateClosed, r.State())
	assert.True(t, errors.Is(r.DrawFrame(), ErrClosed))
	assert.True(t, errors.Is(r.Resize(), ErrClosed))
	assert.NoError(t, r.Close())
}

func TestStatsMeanFrameTime(t *testing.T) {
	var s Stats
	assert.Zero(t, s.MeanFrameTime())

	s.frame(2 * time.Millisecond)
	s.frame(4 * time.Millisecond)
	assert.Equal(t, 2, s.Frames)
	assert.Equal(t, 4*time.Millisecond, s.LastFrame)
	assert.Equal(t, 3*time.Millisecond, s.MeanFrameTime())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting-for-image", StateWaitingForImage.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "mailbox", PresentModeMailbox.String())
}
