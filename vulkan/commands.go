package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/frames/frame"
)

// CommandPool allocates primary command buffers for the graphics queue family.
type CommandPool struct {
	driver core1_0.DeviceDriver
	handle core1_0.CommandPool
}

// NewCommandPool creates a command pool on the graphics queue family.
func (c *Context) NewCommandPool() (*CommandPool, error) {
	pool, _, err := c.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: c.graphicsFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating command pool")
	}
	return &CommandPool{driver: c.deviceDriver, handle: pool}, nil
}

func (p *CommandPool) Destroy() {
	if p.handle.Initialized() {
		p.driver.DestroyCommandPool(p.handle, nil)
		p.handle = core1_0.CommandPool{}
	}
}

func (p *CommandPool) Allocate(count int) ([]frame.CommandBuffer, error) {
	buffers, _, err := p.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}

	out := make([]frame.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		out = append(out, &CommandBuffer{driver: p.driver, handle: buffer})
	}
	return out, nil
}

func (p *CommandPool) Free(buffers []frame.CommandBuffer) {
	handles := make([]core1_0.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		handles = append(handles, buffer.(*CommandBuffer).handle)
	}
	p.driver.FreeCommandBuffers(handles...)
}

// CommandBuffer records into a primary command buffer.
type CommandBuffer struct {
	driver core1_0.DeviceDriver
	handle core1_0.CommandBuffer
}

func (b *CommandBuffer) Begin() error {
	_, err := b.driver.BeginCommandBuffer(b.handle, core1_0.CommandBufferBeginInfo{})
	return err
}

func (b *CommandBuffer) BeginRenderPass(pass frame.RenderPass, framebuffer frame.Framebuffer, extent frame.Extent, clear frame.ClearColor) error {
	rp := pass.(*renderPass)

	clearValues := []core1_0.ClearValue{
		core1_0.ClearValueFloat{clear[0], clear[1], clear[2], clear[3]},
		core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
	}

	return b.driver.CmdBeginRenderPass(b.handle, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  rp.handle,
			Framebuffer: framebuffer.(*Framebuffer).handle,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: toExtent(extent),
			},
			ClearValues: clearValues,
		})
}

func (b *CommandBuffer) BindPipeline(pipeline frame.Pipeline) {
	b.driver.CmdBindPipeline(b.handle, core1_0.PipelineBindPointGraphics, pipeline.(*Pipeline).graphicsPipeline)
}

func (b *CommandBuffer) BindVertexBuffers(buffers []frame.Buffer) {
	handles := make([]core1_0.Buffer, 0, len(buffers))
	offsets := make([]int, 0, len(buffers))
	for _, buffer := range buffers {
		handles = append(handles, buffer.(core1_0.Buffer))
		offsets = append(offsets, 0)
	}
	b.driver.CmdBindVertexBuffers(b.handle, 0, handles, offsets)
}

func (b *CommandBuffer) BindIndexBuffer(buffer frame.Buffer, indexType frame.IndexType) {
	vkIndexType := core1_0.IndexTypeUInt32
	if indexType == frame.IndexUint16 {
		vkIndexType = core1_0.IndexTypeUInt16
	}
	b.driver.CmdBindIndexBuffer(b.handle, buffer.(core1_0.Buffer), 0, vkIndexType)
}

func (b *CommandBuffer) BindDescriptorSet(pipeline frame.Pipeline, set frame.DescriptorSet) {
	b.driver.CmdBindDescriptorSets(b.handle, core1_0.PipelineBindPointGraphics, pipeline.(*Pipeline).layout, 0, []core1_0.DescriptorSet{
		set.(core1_0.DescriptorSet),
	}, nil)
}

func (b *CommandBuffer) DrawIndexed(indexCount int) {
	b.driver.CmdDrawIndexed(b.handle, indexCount, 1, 0, 0, 0)
}

func (b *CommandBuffer) EndRenderPass() {
	b.driver.CmdEndRenderPass(b.handle)
}

func (b *CommandBuffer) End() error {
	_, err := b.driver.EndCommandBuffer(b.handle)
	return err
}
