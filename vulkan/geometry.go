package vulkan

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/frames/frame"
)

// UniformBufferObject is the per-image uniform block read by the vertex shader.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// NewUniforms returns the transforms for a mesh spinning about Z once every four seconds,
// viewed from (2, 2, 2) with the given aspect ratio.
func NewUniforms(seconds float64, aspectRatio float32) UniformBufferObject {
	timePeriod := math.Mod(seconds, 4.0)

	ubo := UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(float32(timePeriod * math.Pi / 2.0)),
		View: mgl32.LookAtV(
			mgl32.Vec3{2, 2, 2},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: mgl32.Perspective(math.Pi/4.0, aspectRatio, 0.1, 10.0),
	}
	// Vulkan clip space has Y pointing down.
	ubo.Proj[5] *= -1

	return ubo
}

// SetLayout is the descriptor set layout shared by Geometry and the pipeline layout.
type SetLayout struct {
	driver core1_0.DeviceDriver
	handle core1_0.DescriptorSetLayout
}

func (l *SetLayout) Destroy() {
	if l.handle.Initialized() {
		l.driver.DestroyDescriptorSetLayout(l.handle, nil)
		l.handle = core1_0.DescriptorSetLayout{}
	}
}

// Geometry owns a mesh's vertex and index buffers for the life of the device, and one uniform
// buffer and descriptor set per swap chain image for the life of a swap chain generation.
type Geometry struct {
	ctx       *Context
	setLayout *SetLayout

	vertices   allocation
	indices    allocation
	indexCount int

	uniforms       []allocation
	descriptorPool core1_0.DescriptorPool
	descriptorSets []core1_0.DescriptorSet
}

// NewGeometry uploads mesh to device local memory using pool for the transfers.
func (c *Context) NewGeometry(pool *CommandPool, mesh Mesh) (*Geometry, error) {
	g := &Geometry{ctx: c, indexCount: len(mesh.Indices)}

	layout, _, err := c.deviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,

				StageFlags: core1_0.StageVertex,
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating descriptor set layout")
	}
	g.setLayout = &SetLayout{driver: c.deviceDriver, handle: layout}

	g.vertices, err = c.uploadBuffer(pool, core1_0.BufferUsageVertexBuffer, mesh.Vertices)
	if err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "vertex buffer")
	}

	g.indices, err = c.uploadBuffer(pool, core1_0.BufferUsageIndexBuffer, mesh.Indices)
	if err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "index buffer")
	}

	return g, nil
}

// SetLayout returns the layout of the descriptor sets handed out by DescriptorSet.
func (g *Geometry) SetLayout() *SetLayout {
	return g.setLayout
}

func (g *Geometry) Bind(_ frame.Pipeline, imageCount int) error {
	driver := g.ctx.deviceDriver
	bufferSize := int(unsafe.Sizeof(UniformBufferObject{}))

	for i := 0; i < imageCount; i++ {
		uniform, err := g.ctx.createBuffer(bufferSize, core1_0.BufferUsageUniformBuffer, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			g.Release()
			return errors.Wrapf(err, "uniform buffer %d", i)
		}
		g.uniforms = append(g.uniforms, uniform)
	}

	var err error
	g.descriptorPool, _, err = driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: imageCount,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: imageCount,
			},
		},
	})
	if err != nil {
		g.Release()
		return errors.Wrap(err, "creating descriptor pool")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, 0, imageCount)
	for i := 0; i < imageCount; i++ {
		allocLayouts = append(allocLayouts, g.setLayout.handle)
	}

	g.descriptorSets, _, err = driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: g.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		g.Release()
		return errors.Wrap(err, "allocating descriptor sets")
	}

	for i := 0; i < imageCount; i++ {
		err = driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          g.descriptorSets[i],
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: g.uniforms[i].buffer,
						Offset: 0,
						Range:  bufferSize,
					},
				},
			},
		}, nil)
		if err != nil {
			g.Release()
			return errors.Wrapf(err, "updating descriptor set %d", i)
		}
	}

	return nil
}

// Release destroys the per-image uniform buffers and descriptor sets.
func (g *Geometry) Release() {
	driver := g.ctx.deviceDriver

	if g.descriptorPool.Initialized() {
		driver.DestroyDescriptorPool(g.descriptorPool, nil)
		g.descriptorPool = core1_0.DescriptorPool{}
	}
	g.descriptorSets = nil

	for i := range g.uniforms {
		g.uniforms[i].destroy(driver)
	}
	g.uniforms = nil
}

// Destroy releases the per-image resources, then the mesh buffers and the set layout.
func (g *Geometry) Destroy() {
	g.Release()
	g.indices.destroy(g.ctx.deviceDriver)
	g.vertices.destroy(g.ctx.deviceDriver)
	if g.setLayout != nil {
		g.setLayout.Destroy()
		g.setLayout = nil
	}
}

func (g *Geometry) VertexBuffers() []frame.Buffer {
	return []frame.Buffer{g.vertices.buffer}
}

func (g *Geometry) IndexBuffer() frame.Buffer { return g.indices.buffer }

func (g *Geometry) IndexType() frame.IndexType { return frame.IndexUint32 }

func (g *Geometry) IndexCount() int { return g.indexCount }

func (g *Geometry) DescriptorSet(imageIndex int) frame.DescriptorSet {
	if imageIndex >= len(g.descriptorSets) {
		return nil
	}
	return g.descriptorSets[imageIndex]
}

// UpdateUniforms writes the current transforms into the uniform buffer of imageIndex. The
// previous frame that used imageIndex must have completed.
func (g *Geometry) UpdateUniforms(imageIndex int, extent frame.Extent) error {
	if imageIndex >= len(g.uniforms) {
		return errors.Newf("no uniform buffer for image %d", imageIndex)
	}

	aspectRatio := float32(extent.Width) / float32(extent.Height)
	ubo := NewUniforms(hrtime.Now().Seconds(), aspectRatio)

	return writeData(g.ctx.deviceDriver, g.uniforms[imageIndex].memory, 0, &ubo)
}
