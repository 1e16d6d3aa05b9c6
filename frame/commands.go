package frame

import "github.com/cockroachdb/errors"

// CommandPool allocates primary command buffers for the graphics queue family.
type CommandPool interface {
	Destroyer
	Allocate(count int) ([]CommandBuffer, error)
	Free(buffers []CommandBuffer)
}

// CommandBuffer records the fixed per-image draw sequence.
type CommandBuffer interface {
	Begin() error
	BeginRenderPass(pass RenderPass, framebuffer Framebuffer, extent Extent, clear ClearColor) error
	BindPipeline(pipeline Pipeline)
	BindVertexBuffers(buffers []Buffer)
	BindIndexBuffer(buffer Buffer, indexType IndexType)
	BindDescriptorSet(pipeline Pipeline, set DescriptorSet)
	DrawIndexed(indexCount int)
	EndRenderPass()
	End() error
}

// Recorder owns one pre-recorded command buffer per swap chain image. The buffers are indexed
// by image index and are only rewritten by Record, which must not run while any of them is
// pending on the GPU.
type Recorder struct {
	pool    CommandPool
	clear   ClearColor
	buffers []CommandBuffer
}

// NewRecorder creates a Recorder allocating from pool. It takes ownership of pool.
func NewRecorder(pool CommandPool, clear ClearColor) *Recorder {
	return &Recorder{pool: pool, clear: clear}
}

// Len returns the number of recorded command buffers.
func (r *Recorder) Len() int {
	return len(r.buffers)
}

// Buffer returns the command buffer recorded for imageIndex.
func (r *Recorder) Buffer(imageIndex int) CommandBuffer {
	return r.buffers[imageIndex]
}

// Record frees any previous buffers, allocates one per swap chain image and records the draw
// of geometry with pipeline into each.
func (r *Recorder) Record(swapchain *Swapchain, pipeline Pipeline, geometry Geometry) error {
	r.Free()

	count := swapchain.ImageCount()
	buffers, err := r.pool.Allocate(count)
	if err != nil {
		return errors.Wrapf(err, "allocating %d command buffers", count)
	}
	r.buffers = buffers

	for imageIndex, buffer := range buffers {
		err = r.record(buffer, imageIndex, swapchain, pipeline, geometry)
		if err != nil {
			r.Free()
			return errors.Wrapf(err, "recording command buffer for image %d", imageIndex)
		}
	}

	return nil
}

func (r *Recorder) record(buffer CommandBuffer, imageIndex int, swapchain *Swapchain, pipeline Pipeline, geometry Geometry) error {
	err := buffer.Begin()
	if err != nil {
		return err
	}

	err = buffer.BeginRenderPass(pipeline.RenderPass(), swapchain.Framebuffer(imageIndex), swapchain.Extent(), r.clear)
	if err != nil {
		return err
	}

	buffer.BindPipeline(pipeline)
	buffer.BindVertexBuffers(geometry.VertexBuffers())
	buffer.BindIndexBuffer(geometry.IndexBuffer(), geometry.IndexType())
	if set := geometry.DescriptorSet(imageIndex); set != nil {
		buffer.BindDescriptorSet(pipeline, set)
	}
	buffer.DrawIndexed(geometry.IndexCount())
	buffer.EndRenderPass()

	return buffer.End()
}

// Free returns every command buffer to the pool.
func (r *Recorder) Free() {
	if len(r.buffers) > 0 {
		r.pool.Free(r.buffers)
	}
	r.buffers = nil
}

// Destroy frees the buffers and destroys the pool.
func (r *Recorder) Destroy() {
	r.Free()
	r.pool.Destroy()
}
