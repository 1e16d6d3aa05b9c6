package vulkan

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// allocation is a buffer or image together with the memory bound to it.
type allocation struct {
	buffer core1_0.Buffer
	image  core1_0.Image
	memory core1_0.DeviceMemory
}

func (a *allocation) destroy(driver core1_0.DeviceDriver) {
	if a.buffer.Initialized() {
		driver.DestroyBuffer(a.buffer, nil)
		a.buffer = core1_0.Buffer{}
	}
	if a.image.Initialized() {
		driver.DestroyImage(a.image, nil)
		a.image = core1_0.Image{}
	}
	if a.memory.Initialized() {
		driver.FreeMemory(a.memory, nil)
		a.memory = core1_0.DeviceMemory{}
	}
}

func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (allocation, error) {
	var a allocation

	buffer, _, err := c.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return a, errors.Wrap(err, "creating buffer")
	}
	a.buffer = buffer

	memRequirements := c.deviceDriver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := c.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, err
	}

	a.memory, _, err = c.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, errors.Wrapf(err, "allocating %d bytes of buffer memory", memRequirements.Size)
	}

	_, err = c.deviceDriver.BindBufferMemory(buffer, a.memory, 0)
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, errors.Wrap(err, "binding buffer memory")
	}
	return a, nil
}

func (c *Context) createImage(width, height int, numSamples core1_0.SampleCountFlags, format core1_0.Format, usage core1_0.ImageUsageFlags) (allocation, error) {
	var a allocation

	image, _, err := c.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       numSamples,
	})
	if err != nil {
		return a, errors.Wrap(err, "creating image")
	}
	a.image = image

	memReqs := c.deviceDriver.GetImageMemoryRequirements(image)
	memoryIndex, err := c.findMemoryType(memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, err
	}

	a.memory, _, err = c.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, errors.Wrapf(err, "allocating %d bytes of image memory", memReqs.Size)
	}

	_, err = c.deviceDriver.BindImageMemory(image, a.memory, 0)
	if err != nil {
		a.destroy(c.deviceDriver)
		return a, errors.Wrap(err, "binding image memory")
	}
	return a, nil
}

func createImageView(driver core1_0.DeviceDriver, image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (core1_0.ImageView, error) {
	imageView, _, err := driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, errors.Wrap(err, "creating image view")
}

func writeData(driver core1_0.DeviceDriver, memory core1_0.DeviceMemory, offset int, data any) error {
	bufferSize := binary.Size(data)

	memoryPtr, _, err := driver.MapMemory(memory, offset, bufferSize, 0)
	if err != nil {
		return errors.Wrap(err, "mapping memory")
	}
	defer driver.UnmapMemory(memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return errors.Wrap(err, "encoding data")
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

// uploadBuffer creates a device local buffer holding data, copied through a host visible
// staging buffer on the graphics queue.
func (c *Context) uploadBuffer(pool *CommandPool, usage core1_0.BufferUsageFlags, data any) (allocation, error) {
	bufferSize := binary.Size(data)
	if bufferSize <= 0 {
		return allocation{}, errors.Newf("cannot upload %T", data)
	}

	staging, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return allocation{}, err
	}
	defer staging.destroy(c.deviceDriver)

	err = writeData(c.deviceDriver, staging.memory, 0, data)
	if err != nil {
		return allocation{}, err
	}

	target, err := c.createBuffer(bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return allocation{}, err
	}

	err = c.copyBuffer(pool, staging.buffer, target.buffer, bufferSize)
	if err != nil {
		target.destroy(c.deviceDriver)
		return allocation{}, err
	}
	return target, nil
}

func (c *Context) copyBuffer(pool *CommandPool, srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffer, err := c.beginSingleTimeCommands(pool)
	if err != nil {
		return err
	}

	err = c.deviceDriver.CmdCopyBuffer(buffer, srcBuffer, dstBuffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return errors.Wrap(err, "recording buffer copy")
	}

	return c.endSingleTimeCommands(buffer)
}

func (c *Context) beginSingleTimeCommands(pool *CommandPool) (core1_0.CommandBuffer, error) {
	buffers, _, err := c.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, errors.Wrap(err, "allocating transfer command buffer")
	}

	buffer := buffers[0]
	_, err = c.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, errors.Wrap(err, "beginning transfer command buffer")
	}
	return buffer, nil
}

func (c *Context) endSingleTimeCommands(buffer core1_0.CommandBuffer) error {
	defer c.deviceDriver.FreeCommandBuffers(buffer)

	_, err := c.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return errors.Wrap(err, "ending transfer command buffer")
	}

	_, err = c.deviceDriver.QueueSubmit(c.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submitting transfer")
	}

	_, err = c.deviceDriver.QueueWaitIdle(c.graphicsQueue)
	return errors.Wrap(err, "waiting for transfer")
}
