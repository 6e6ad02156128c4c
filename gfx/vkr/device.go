// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"
	"fmt"

	"github.com/devblok/aurora/gfx"
	vk "github.com/devblok/vulkan"
)

// NewDevice creates a logical device on the physical device with the
// given index. The instance must already have a surface set, the device
// picks a queue family that can both render and present to it.
func NewDevice(instance *Instance, physicalIndex int) (*Device, error) {
	devices := instance.AvailableDevices()
	if physicalIndex < 0 || physicalIndex >= len(devices) {
		return nil, fmt.Errorf("physical device %d does not exist, %d available", physicalIndex, len(devices))
	}
	surface := instance.Surface()
	if surface == vk.NullSurface {
		return nil, errors.New("instance has no surface")
	}

	d := &Device{
		physicalDevice: devices[physicalIndex],
		surface:        surface,
	}

	queueIndex, err := findQueueFamily(d.physicalDevice, surface)
	if err != nil {
		return nil, err
	}
	d.queueIndex = queueIndex

	requiredExtensions := []string{
		vk.KhrSwapchainExtensionName,
	}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(requiredExtensions)),
		PpEnabledExtensionNames: safeStrings(requiredExtensions),
	}
	if err := result("vk.CreateDevice", vk.CreateDevice(d.physicalDevice, &dci, nil, &d.device)); err != nil {
		return nil, err
	}
	vk.GetDeviceQueue(d.device, queueIndex, 0, &d.queue)

	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := result("vk.CreateCommandPool", vk.CreateCommandPool(d.device, &cpci, nil, &d.commandPool)); err != nil {
		vk.DestroyDevice(d.device, nil)
		return nil, err
	}

	if err := d.chooseSurfaceFormat(); err != nil {
		d.Destroy()
		return nil, err
	}

	d.allocator = NewMemoryAllocator(d.device, d.physicalDevice)
	return d, nil
}

// Device implements gfx.Device on a Vulkan logical device
// with a single queue for graphics and presentation.
type Device struct {
	physicalDevice vk.PhysicalDevice
	surface        vk.Surface
	device         vk.Device
	queue          vk.Queue
	queueIndex     uint32
	commandPool    vk.CommandPool
	allocator      *MemoryAllocator

	imageFormat     vk.Format
	imageColorspace vk.ColorSpace
}

func findQueueFamily(pd vk.PhysicalDevice, surface vk.Surface) (uint32, error) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, nil)
	if queueFamilyCount == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queuefamilies on GPU")
	}
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &supportsPresent)
		if supportsPresent.B() {
			return i, nil
		}
	}
	return 0, errors.New("vulkan error: could not find a queue family with graphics and present capabilities")
}

func (d *Device) chooseSurfaceFormat() error {
	var surfaceFormatCount uint32
	if err := result("vk.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &surfaceFormatCount, nil)); err != nil {
		return err
	}
	if surfaceFormatCount == 0 {
		return errors.New("vk.GetPhysicalDeviceSurfaceFormats(): surface has no formats")
	}
	surfaceFormats := make([]vk.SurfaceFormat, surfaceFormatCount)
	if err := result("vk.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &surfaceFormatCount, surfaceFormats)); err != nil {
		return err
	}

	formats := make([]vk.Format, len(surfaceFormats))
	for i := range surfaceFormats {
		surfaceFormats[i].Deref()
		formats[i] = surfaceFormats[i].Format
	}
	idx := pickSurfaceFormat(formats)
	d.imageFormat = formats[idx]
	if d.imageFormat == vk.FormatUndefined {
		d.imageFormat = vk.FormatB8g8r8a8Unorm
	}
	d.imageColorspace = surfaceFormats[idx].ColorSpace
	return nil
}

// pickSurfaceFormat prefers 8 bit BGRA, then RGBA, then whatever comes first.
func pickSurfaceFormat(formats []vk.Format) int {
	for _, want := range []vk.Format{vk.FormatB8g8r8a8Unorm, vk.FormatR8g8b8a8Unorm} {
		for i, f := range formats {
			if f == want {
				return i
			}
		}
	}
	return 0
}

// NewFence implements gfx.Device
func (d *Device) NewFence(signaled bool) (gfx.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := result("vk.CreateFence", vk.CreateFence(d.device, &fci, nil, &fence)); err != nil {
		return nil, err
	}
	return &Fence{device: d.device, fence: fence}, nil
}

// NewSemaphore implements gfx.Device
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := result("vk.CreateSemaphore", vk.CreateSemaphore(d.device, &sci, nil, &semaphore)); err != nil {
		return nil, err
	}
	return &Semaphore{device: d.device, semaphore: semaphore}, nil
}

// NewCommandBuffer implements gfx.Device
func (d *Device) NewCommandBuffer() (gfx.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := result("vk.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, err
	}
	return &CommandBuffer{device: d.device, pool: d.commandPool, cmd: commandBuffers[0]}, nil
}

// AllocateBuffer implements gfx.Device
func (d *Device) AllocateBuffer(loc gfx.MemoryLocation, size uint64, usage gfx.BufferUsage) (gfx.BufferAllocation, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := result("vk.CreateBuffer", vk.CreateBuffer(d.device, &bci, nil, &buffer)); err != nil {
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := d.allocator.Malloc(memoryRequirements, loc)
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, err
	}
	if err := result("vk.BindBufferMemory", vk.BindBufferMemory(d.device, buffer, memory.Get(), 0)); err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		memory.Release()
		return nil, err
	}
	return &Buffer{device: d.device, buffer: buffer, memory: memory, size: size}, nil
}

// AllocateImage implements gfx.Device
func (d *Device) AllocateImage(loc gfx.MemoryLocation, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage) (gfx.ImageAllocation, error) {
	ici := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(format),
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  extent.Depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := result("vk.CreateImage", vk.CreateImage(d.device, &ici, nil, &image)); err != nil {
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := d.allocator.Malloc(memoryRequirements, loc)
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return nil, err
	}
	if err := result("vk.BindImageMemory", vk.BindImageMemory(d.device, image, memory.Get(), 0)); err != nil {
		vk.DestroyImage(d.device, image, nil)
		memory.Release()
		return nil, err
	}
	return &Image{device: d.device, image: image, memory: memory}, nil
}

// NewImageView implements gfx.Device
func (d *Device) NewImageView(image gfx.ImageResource, format gfx.Format, aspect gfx.Aspect) (gfx.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    imageHandle(image),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := result("vk.CreateImageView", vk.CreateImageView(d.device, &ivci, nil, &view)); err != nil {
		return nil, err
	}
	return &ImageView{device: d.device, view: view}, nil
}

func (d *Device) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := result("vk.GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, d.surface, &caps)); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SurfaceExtent implements gfx.Device
func (d *Device) SurfaceExtent() (gfx.Extent2D, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return gfx.Extent2D{}, err
	}
	if caps.CurrentExtent.Width == ^uint32(0) {
		return gfx.ExtentUndefined, nil
	}
	return gfx.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}, nil
}

// NewSwapchain implements gfx.Device
func (d *Device) NewSwapchain(extent gfx.Extent2D, imageCount uint32, old gfx.Swapchain) (gfx.Swapchain, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return nil, err
	}
	extent = clampExtent(extent, caps.MinImageExtent, caps.MaxImageExtent)

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   clampImageCount(imageCount, caps.MinImageCount, caps.MaxImageCount),
		ImageFormat:     d.imageFormat,
		ImageColorSpace: d.imageColorspace,
		ImageExtent: vk.Extent2D{
			Width:  extent.Width,
			Height: extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     swapchainHandle(old),
	}

	var swapchain vk.Swapchain
	if err := result("vk.CreateSwapchain", vk.CreateSwapchain(d.device, &scci, nil, &swapchain)); err != nil {
		return nil, err
	}

	var numImages uint32
	if err := result("vk.GetSwapchainImages", vk.GetSwapchainImages(d.device, swapchain, &numImages, nil)); err != nil {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, err
	}
	images := make([]vk.Image, numImages)
	if err := result("vk.GetSwapchainImages", vk.GetSwapchainImages(d.device, swapchain, &numImages, images)); err != nil {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, err
	}

	sc := &Swapchain{
		device:    d.device,
		swapchain: swapchain,
		extent:    extent,
		format:    gfx.Format(d.imageFormat),
		images:    make([]gfx.ImageResource, len(images)),
	}
	for i, img := range images {
		sc.images[i] = swapchainImage{image: img}
	}
	return sc, nil
}

// Submit implements gfx.Device
func (d *Device) Submit(cb gfx.CommandBuffer, wait gfx.Semaphore, signal gfx.Semaphore, fence gfx.Fence) error {
	waits := semaphoreHandles(wait)
	signals := semaphoreHandles(signal)
	si := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waits)),
		PWaitSemaphores:      waits,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Inner().(vk.CommandBuffer)},
		SignalSemaphoreCount: uint32(len(signals)),
		PSignalSemaphores:    signals,
	}
	if len(waits) > 0 {
		// swapchain images are first touched by transfers or attachment writes
		si.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		}
	}
	return result("vk.QueueSubmit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, fenceHandle(fence)))
}

// Present implements gfx.Device
func (d *Device) Present(sc gfx.Swapchain, image uint32, wait gfx.Semaphore) error {
	waits := semaphoreHandles(wait)
	pi := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchainHandle(sc)},
		PImageIndices:      []uint32{image},
	}
	return result("vk.QueuePresent", vk.QueuePresent(d.queue, &pi))
}

// WaitIdle implements gfx.Device
func (d *Device) WaitIdle() error {
	return result("vk.DeviceWaitIdle", vk.DeviceWaitIdle(d.device))
}

// Destroy implements gfx.Device
func (d *Device) Destroy() {
	if d.commandPool != nil {
		vk.DestroyCommandPool(d.device, d.commandPool, nil)
		d.commandPool = nil
	}
	vk.DestroyDevice(d.device, nil)
}
