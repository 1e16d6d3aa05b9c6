package frame

// Target describes the swap chain generation a pipeline is built for.
type Target struct {
	Extent     Extent
	Format     Format
	ImageCount int
}

// PipelineProvider builds the render pass and graphics pipeline for a swap chain generation.
type PipelineProvider interface {
	NewPipeline(target Target) (Pipeline, error)
}

// Pipeline owns a render pass, a graphics pipeline and whatever extent-sized attachments
// (multisampled color, depth) its framebuffers need.
type Pipeline interface {
	Destroyer

	RenderPass() RenderPass

	// Attachments returns the framebuffer attachment list for one presentable image view,
	// in render pass attachment order.
	Attachments(view ImageView) []ImageView
}

// Geometry supplies the buffers and descriptor sets bound by recorded command buffers.
// Bind and Release manage the resources that exist once per swap chain image; the vertex and
// index buffers outlive every swap chain generation.
type Geometry interface {
	Bind(pipeline Pipeline, imageCount int) error
	Release()

	VertexBuffers() []Buffer
	IndexBuffer() Buffer
	IndexType() IndexType
	IndexCount() int

	// DescriptorSet returns the set bound when drawing to imageIndex, or nil.
	DescriptorSet(imageIndex int) DescriptorSet
}
