// Package frame drives presentation to a window surface with several frames in flight.
//
// A Renderer owns a Ring of frame slots, each holding an image-available semaphore, a
// render-finished semaphore and an in-flight fence, and a Swapchain whose images each get a
// view, a framebuffer and a pre-recorded command buffer. Every call to DrawFrame waits for
// the current slot, acquires an image, waits for whichever slot last rendered to that image,
// submits and presents. When the surface goes stale, or the window is resized, everything
// that depends on the swap chain is rebuilt behind a device idle wait.
//
// The package talks to the GPU only through the interfaces in this package. The vulkan
// package implements them over vkngwrapper.
package frame
