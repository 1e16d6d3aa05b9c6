package frame

import "time"

// Device is the logical device and its queues. It creates the synchronization
// primitives used by a Ring and carries all GPU submissions.
type Device interface {
	// NewSemaphore creates an unsignaled binary semaphore.
	NewSemaphore() (Semaphore, error)

	// NewFence creates a fence, signaled if requested.
	NewFence(signaled bool) (Fence, error)

	// WaitForFences blocks until every fence is signaled or the timeout expires, in which
	// case it returns an error matching ErrTimeout.
	WaitForFences(timeout time.Duration, fences ...Fence) error

	// ResetFences returns the fences to the unsignaled state.
	ResetFences(fences ...Fence) error

	// Submit enqueues work on q. Per-submission failures mean the device was lost.
	Submit(q Queue, s Submission) error

	// WaitIdle blocks until all queued work completes. It is only used around teardown.
	WaitIdle() error

	GraphicsQueue() Queue
	PresentQueue() Queue
}

// Submission is one batch of command buffers along with its synchronization.
// WaitStages holds one entry per element of WaitSemaphores.
type Submission struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
	Fence            Fence
}

// Window reports the current drawable size of the presentation target in pixels.
type Window interface {
	DrawableSize() Extent
}
