package vulkan

import (
	"context"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

// Options controls instance and device creation.
type Options struct {
	ApplicationName string
	Validation      bool
	// Multisample renders at the highest sample count the device supports and resolves into
	// the presentable image.
	Multisample bool
	Logger      *slog.Logger
}

// Context is the instance, surface and logical device for one window. Everything else in
// this package is created from a Context and must be destroyed before it.
type Context struct {
	log    *slog.Logger
	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	properties     *core1_0.PhysicalDeviceProperties
	msaaSamples    core1_0.SampleCountFlags

	graphicsFamily int
	presentFamily  int
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
}

// NewContext creates a Vulkan instance able to present to window, picks the first suitable
// physical device and creates a logical device with a graphics and a present queue.
func NewContext(window *sdl.Window, opts Options) (*Context, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.ApplicationName == "" {
		opts.ApplicationName = "frames"
	}

	c := &Context{
		log:         opts.Logger,
		window:      window,
		msaaSamples: core1_0.Samples1,
	}

	var err error
	c.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "loading vulkan")
	}

	err = c.createInstance(opts)
	if err != nil {
		c.Destroy()
		return nil, err
	}

	if opts.Validation {
		err = c.setupDebugMessenger()
		if err != nil {
			c.Destroy()
			return nil, err
		}
	}

	err = c.createSurface()
	if err != nil {
		c.Destroy()
		return nil, err
	}

	err = c.pickPhysicalDevice(opts.Multisample)
	if err != nil {
		c.Destroy()
		return nil, err
	}

	err = c.createLogicalDevice()
	if err != nil {
		c.Destroy()
		return nil, err
	}

	c.log.Info("vulkan device ready",
		"device", c.properties.DeviceName,
		"graphicsFamily", c.graphicsFamily,
		"presentFamily", c.presentFamily,
		"samples", int(c.msaaSamples))

	return c, nil
}

// Destroy destroys the device, debug messenger, surface and instance in that order.
func (c *Context) Destroy() {
	if c.deviceDriver != nil {
		c.deviceDriver.DestroyDevice(nil)
		c.deviceDriver = nil
	}

	if c.debugMessenger.Initialized() {
		c.debugDriver.DestroyDebugUtilsMessenger(c.debugMessenger, nil)
		c.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if c.surface.Initialized() {
		c.surfaceExtension.DestroySurface(c.surface, nil)
		c.surface = khr_surface.Surface{}
	}

	if c.instanceDriver != nil {
		c.instanceDriver.DestroyInstance(nil)
		c.instanceDriver = nil
	}
}

// Window returns the window the context presents to.
func (c *Context) Window() Window {
	return Window{window: c.window}
}

// Samples returns the sample count used for color and depth attachments.
func (c *Context) Samples() core1_0.SampleCountFlags {
	return c.msaaSamples
}

func (c *Context) createInstance(opts Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    opts.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, _, err := c.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerating instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("missing instance extension %s required by sdl", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if opts.Validation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if opts.Validation {
		layers, _, err := c.globalDriver.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerating instance layers")
		}

		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = c.debugMessengerOptions()
	}

	c.instanceDriver, _, err = c.globalDriver.CreateInstance(nil, instanceOptions)
	return errors.Wrap(err, "creating instance")
}

func (c *Context) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    c.logDebug,
	}
}

func (c *Context) setupDebugMessenger() error {
	var err error
	c.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	c.debugMessenger, _, err = c.debugDriver.CreateDebugUtilsMessenger(nil, c.debugMessengerOptions())
	return errors.Wrap(err, "creating debug messenger")
}

func (c *Context) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	level := slog.LevelWarn
	if severity&ext_debug_utils.SeverityError != 0 {
		level = slog.LevelError
	}
	c.log.Log(context.Background(), level, data.Message, "type", msgType.String(), "severity", severity.String())
	return false
}

func (c *Context) createSurface() error {
	c.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(c.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(c.instanceDriver.Instance(), c.surfaceExtension, c.window)
	if err != nil {
		return errors.Wrap(err, "creating window surface")
	}

	c.surface = surface
	return nil
}

func (c *Context) pickPhysicalDevice(multisample bool) error {
	physicalDevices, _, err := c.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerating physical devices")
	}

	for _, device := range physicalDevices {
		families, ok := c.isDeviceSuitable(device)
		if !ok {
			continue
		}

		c.physicalDevice = device
		c.graphicsFamily = *families.GraphicsFamily
		c.presentFamily = *families.PresentFamily

		c.properties, err = c.instanceDriver.GetPhysicalDeviceProperties(device)
		if err != nil {
			return errors.Wrap(err, "reading physical device properties")
		}

		if multisample {
			c.msaaSamples = maxUsableSampleCount(c.properties)
		}
		return nil
	}

	return errors.New("no suitable GPU found")
}

type queueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *queueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

func (c *Context) isDeviceSuitable(device core1_0.PhysicalDevice) (queueFamilyIndices, bool) {
	indices, err := c.findQueueFamilies(device)
	if err != nil || !indices.IsComplete() {
		return indices, false
	}

	if !c.checkDeviceExtensionSupport(device) {
		return indices, false
	}

	formats, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceFormats(c.surface, device)
	if err != nil || len(formats) == 0 {
		return indices, false
	}

	presentModes, _, err := c.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(c.surface, device)
	if err != nil || len(presentModes) == 0 {
		return indices, false
	}

	return indices, true
}

func (c *Context) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

func (c *Context) findQueueFamilies(device core1_0.PhysicalDevice) (queueFamilyIndices, error) {
	indices := queueFamilyIndices{}
	queueFamilies := c.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}

		supported, _, err := c.surfaceExtension.GetPhysicalDeviceSurfaceSupport(c.surface, device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}

		if supported {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

func maxUsableSampleCount(properties *core1_0.PhysicalDeviceProperties) core1_0.SampleCountFlags {
	counts := properties.Limits.FramebufferColorSampleCounts & properties.Limits.FramebufferDepthSampleCounts

	for _, samples := range []core1_0.SampleCountFlags{
		core1_0.Samples64, core1_0.Samples32, core1_0.Samples16,
		core1_0.Samples8, core1_0.Samples4, core1_0.Samples2,
	} {
		if counts&samples != 0 {
			return samples
		}
	}
	return core1_0.Samples1
}

func (c *Context) createLogicalDevice() error {
	uniqueQueueFamilies := []int{c.graphicsFamily}
	if c.graphicsFamily != c.presentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, c.presentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Required for portability implementations such as MoltenVK.
	extensions, _, err := c.instanceDriver.EnumerateDeviceExtensionProperties(c.physicalDevice)
	if err != nil {
		return errors.Wrap(err, "enumerating device extensions")
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	c.deviceDriver, _, err = c.instanceDriver.CreateDevice(c.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "creating logical device")
	}

	c.graphicsQueue = c.deviceDriver.GetQueue(c.graphicsFamily, 0)
	c.presentQueue = c.deviceDriver.GetQueue(c.presentFamily, 0)
	return nil
}

func (c *Context) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.instanceDriver.GetPhysicalDeviceMemoryProperties(c.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.New("no suitable memory type")
}

func (c *Context) findSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := c.instanceDriver.GetPhysicalDeviceFormatProperties(c.physicalDevice, format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("no supported format for tiling %s, features %s", tiling, features)
}

func (c *Context) findDepthFormat() (core1_0.Format, error) {
	return c.findSupportedFormat([]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}
