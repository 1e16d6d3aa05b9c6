package vulkan

import (
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/frames/frame"
)

// PipelineConfig holds what stays the same across every pipeline a Pipelines builds.
type PipelineConfig struct {
	// VertexShader and FragmentShader are SPIR-V binaries.
	VertexShader   []byte
	FragmentShader []byte

	SetLayout *SetLayout
	Cache     *PipelineCache
	Logger    *slog.Logger
}

// Pipelines builds a render pass, a graphics pipeline and the multisampled color and depth
// attachments for each swap chain generation.
type Pipelines struct {
	ctx   *Context
	cfg   PipelineConfig
	log   *slog.Logger
	depth core1_0.Format

	vertShader core1_0.ShaderModule
	fragShader core1_0.ShaderModule
}

// NewPipelines compiles the shader modules shared by every pipeline it will build.
func (c *Context) NewPipelines(cfg PipelineConfig) (*Pipelines, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pipelines{ctx: c, cfg: cfg, log: cfg.Logger}

	var err error
	p.depth, err = c.findDepthFormat()
	if err != nil {
		return nil, err
	}

	p.vertShader, err = c.createShaderModule(cfg.VertexShader)
	if err != nil {
		return nil, errors.Wrap(err, "vertex shader")
	}

	p.fragShader, err = c.createShaderModule(cfg.FragmentShader)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrap(err, "fragment shader")
	}

	return p, nil
}

// Destroy destroys the shader modules.
func (p *Pipelines) Destroy() {
	if p.fragShader.Initialized() {
		p.ctx.deviceDriver.DestroyShaderModule(p.fragShader, nil)
		p.fragShader = core1_0.ShaderModule{}
	}
	if p.vertShader.Initialized() {
		p.ctx.deviceDriver.DestroyShaderModule(p.vertShader, nil)
		p.vertShader = core1_0.ShaderModule{}
	}
}

type renderPass struct {
	handle core1_0.RenderPass
}

// Pipeline is one swap chain generation's render pass, graphics pipeline and transient
// attachments.
type Pipeline struct {
	ctx     *Context
	samples core1_0.SampleCountFlags

	renderPass       *renderPass
	layout           core1_0.PipelineLayout
	graphicsPipeline core1_0.Pipeline

	color     allocation
	colorView *ImageView
	depth     allocation
	depthView *ImageView
}

func (p *Pipelines) NewPipeline(target frame.Target) (frame.Pipeline, error) {
	start := hrtime.Now()

	pipeline := &Pipeline{ctx: p.ctx, samples: p.ctx.msaaSamples}
	format := core1_0.Format(target.Format)

	err := pipeline.createRenderPass(format, p.depth)
	if err != nil {
		pipeline.Destroy()
		return nil, err
	}

	err = pipeline.createGraphicsPipeline(p, target.Extent)
	if err != nil {
		pipeline.Destroy()
		return nil, err
	}

	err = pipeline.createAttachments(format, p.depth, target.Extent)
	if err != nil {
		pipeline.Destroy()
		return nil, err
	}

	p.log.Debug("pipeline built",
		"width", target.Extent.Width,
		"height", target.Extent.Height,
		"samples", int(pipeline.samples),
		"elapsed", hrtime.Since(start))

	return pipeline, nil
}

func (p *Pipeline) RenderPass() frame.RenderPass {
	return p.renderPass
}

func (p *Pipeline) Attachments(view frame.ImageView) []frame.ImageView {
	if p.samples == core1_0.Samples1 {
		return []frame.ImageView{view, p.depthView}
	}
	return []frame.ImageView{p.colorView, p.depthView, view}
}

// Destroy destroys the pipeline, its layout and render pass, then the transient attachments.
func (p *Pipeline) Destroy() {
	driver := p.ctx.deviceDriver

	if p.graphicsPipeline.Initialized() {
		driver.DestroyPipeline(p.graphicsPipeline, nil)
		p.graphicsPipeline = core1_0.Pipeline{}
	}

	if p.layout.Initialized() {
		driver.DestroyPipelineLayout(p.layout, nil)
		p.layout = core1_0.PipelineLayout{}
	}

	if p.renderPass != nil {
		driver.DestroyRenderPass(p.renderPass.handle, nil)
		p.renderPass = nil
	}

	if p.depthView != nil {
		p.depthView.Destroy()
		p.depthView = nil
	}
	p.depth.destroy(driver)

	if p.colorView != nil {
		p.colorView.Destroy()
		p.colorView = nil
	}
	p.color.destroy(driver)
}

func (p *Pipeline) createRenderPass(format, depthFormat core1_0.Format) error {
	colorFinalLayout := khr_swapchain.ImageLayoutPresentSrc
	if p.samples != core1_0.Samples1 {
		colorFinalLayout = core1_0.ImageLayoutColorAttachmentOptimal
	}

	attachments := []core1_0.AttachmentDescription{
		{
			Format:         format,
			Samples:        p.samples,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    colorFinalLayout,
		},
		{
			Format:         depthFormat,
			Samples:        p.samples,
			LoadOp:         core1_0.AttachmentLoadOpClear,
			StoreOp:        core1_0.AttachmentStoreOpDontCare,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
		ColorAttachments: []core1_0.AttachmentReference{
			{
				Attachment: 0,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		DepthStencilAttachment: &core1_0.AttachmentReference{
			Attachment: 1,
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	if p.samples != core1_0.Samples1 {
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         format,
			Samples:        core1_0.Samples1,
			LoadOp:         core1_0.AttachmentLoadOpDontCare,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  core1_0.ImageLayoutUndefined,
			FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
		})
		subpass.ResolveAttachments = []core1_0.AttachmentReference{
			{
				Attachment: 2,
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		}
	}

	handle, _, err := p.ctx.deviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}

	p.renderPass = &renderPass{handle: handle}
	return nil
}

func (p *Pipeline) createGraphicsPipeline(provider *Pipelines, extent frame.Extent) error {
	driver := p.ctx.deviceDriver

	var setLayouts []core1_0.DescriptorSetLayout
	if provider.cfg.SetLayout != nil {
		setLayouts = append(setLayouts, provider.cfg.SetLayout.handle)
	}

	var err error
	p.layout, _, err = driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "creating pipeline layout")
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   vertexBindingDescriptions(),
		VertexAttributeDescriptions: vertexAttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	stages := []core1_0.PipelineShaderStageCreateInfo{
		{
			Stage:  core1_0.StageVertex,
			Module: provider.vertShader,
			Name:   "main",
		},
		{
			Stage:  core1_0.StageFragment,
			Module: provider.fragShader,
			Name:   "main",
		},
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(extent.Width),
				Height:   float32(extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: toExtent(extent),
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: p.samples,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	var cache *core1_0.PipelineCache
	if provider.cfg.Cache != nil {
		cache = provider.cfg.Cache.handle()
	}

	pipelines, _, err := driver.CreateGraphicsPipelines(cache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:             stages,
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             p.layout,
			RenderPass:         p.renderPass.handle,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "creating graphics pipeline")
	}
	p.graphicsPipeline = pipelines[0]

	return nil
}

func (p *Pipeline) createAttachments(format, depthFormat core1_0.Format, extent frame.Extent) error {
	driver := p.ctx.deviceDriver

	var err error
	if p.samples != core1_0.Samples1 {
		p.color, err = p.ctx.createImage(extent.Width, extent.Height, p.samples, format,
			core1_0.ImageUsageTransientAttachment|core1_0.ImageUsageColorAttachment)
		if err != nil {
			return errors.Wrap(err, "multisampled color attachment")
		}

		view, err := createImageView(driver, p.color.image, format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return errors.Wrap(err, "multisampled color attachment")
		}
		p.colorView = &ImageView{driver: driver, handle: view}
	}

	p.depth, err = p.ctx.createImage(extent.Width, extent.Height, p.samples, depthFormat,
		core1_0.ImageUsageDepthStencilAttachment)
	if err != nil {
		return errors.Wrap(err, "depth attachment")
	}

	view, err := createImageView(driver, p.depth.image, depthFormat, core1_0.ImageAspectDepth, 1)
	if err != nil {
		return errors.Wrap(err, "depth attachment")
	}
	p.depthView = &ImageView{driver: driver, handle: view}

	return nil
}

func (c *Context) createShaderModule(spirv []byte) (core1_0.ShaderModule, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return core1_0.ShaderModule{}, errors.Newf("invalid SPIR-V length %d", len(spirv))
	}

	module, _, err := c.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(spirv),
	})
	return module, errors.Wrap(err, "creating shader module")
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
