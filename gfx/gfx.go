// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the device-level features that rendering backends must
// implement. Nothing in here talks to a GPU directly; see package vkr for the
// Vulkan implementation and package gfxtest for an in-memory one.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// ReleaseFunc adapts an ordinary function to Releasable.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() {
	f()
}

// Device is a logical rendering device with a single graphics queue
// that is also capable of presentation. It is created once, shared
// by every subsystem, and destroyed last.
type Device interface {
	// NewFence creates a fence, optionally already signaled.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a binary semaphore.
	NewSemaphore() (Semaphore, error)

	// NewCommandBuffer creates a primary command buffer that
	// can be individually reset.
	NewCommandBuffer() (CommandBuffer, error)

	// AllocateBuffer creates a raw buffer and binds memory to it.
	// Host visible locations are persistently mapped.
	AllocateBuffer(loc MemoryLocation, size uint64, usage BufferUsage) (BufferAllocation, error)

	// AllocateImage creates a raw 2D image and binds memory to it.
	AllocateImage(loc MemoryLocation, format Format, extent Extent3D, usage ImageUsage) (ImageAllocation, error)

	// NewImageView creates a view covering the whole image.
	NewImageView(image ImageResource, format Format, aspect Aspect) (ImageView, error)

	// SurfaceExtent returns the current extent of the presentation surface,
	// or ExtentUndefined when the platform leaves the choice to the
	// application. A minimized window reports an empty extent.
	SurfaceExtent() (Extent2D, error)

	// NewSwapchain creates presentable images for the surface. The
	// old swapchain, if any, is handed to the platform for reuse and
	// must still be destroyed by the caller.
	NewSwapchain(extent Extent2D, imageCount uint32, old Swapchain) (Swapchain, error)

	// Submit enqueues a command buffer on the graphics queue. Any of
	// wait, signal and fence can be nil.
	Submit(cb CommandBuffer, wait Semaphore, signal Semaphore, fence Fence) error

	// Present queues the swapchain image for presentation once wait
	// is signaled. Returns ErrSurfaceStale or ErrSuboptimal when the
	// swapchain no longer matches the surface.
	Present(sc Swapchain, image uint32, wait Semaphore) error

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle() error

	// Destroy destroys the device. Every object created from it
	// must have been destroyed already.
	Destroy()
}

// Fence is a GPU to CPU completion signal.
type Fence interface {
	// Wait blocks until the fence is signaled or the timeout, in
	// nanoseconds, expires. An expired timeout returns ErrTimeout.
	Wait(timeout uint64) error

	// Reset returns the fence to the unsignaled state.
	Reset() error

	Destroy()
}

// Semaphore orders queue operations on the GPU.
type Semaphore interface {
	Destroy()
}

// CommandBuffer records commands for later submission.
type CommandBuffer interface {
	Reset() error
	Begin() error
	End() error

	// CopyBuffer records buffer to buffer copies.
	CopyBuffer(src, dst BufferResource, regions ...BufferCopy)

	// CopyBufferToImage records a copy of tightly packed texels into
	// the image, which must be in the given layout.
	CopyBufferToImage(src BufferResource, dst ImageResource, layout ImageLayout, regions ...BufferImageCopy)

	// TransitionImage records a full pipeline barrier moving every
	// subresource of the image from one layout to another.
	TransitionImage(image ImageResource, aspect Aspect, from, to ImageLayout)

	// BlitImage records a filtered copy from src to dst, both of
	// which must be in transfer layouts.
	BlitImage(src ImageResource, srcRegion Rect, dst ImageResource, dstRegion Rect, aspect Aspect)

	// Inner returns the handle of the underlying API so
	// external renderers can record their own commands.
	Inner() interface{}

	Destroy()
}

// BufferResource is a raw buffer usable in copy commands.
type BufferResource interface {
	Size() uint64
	Inner() interface{}
}

// BufferAllocation is a buffer together with the memory bound to it.
type BufferAllocation interface {
	BufferResource

	// Mapped returns the persistent host mapping of the allocation,
	// or nil if the memory is not host visible.
	Mapped() []byte

	Destroy()
}

// ImageResource is a raw image, either allocated by the device or
// owned by a swapchain.
type ImageResource interface {
	Inner() interface{}
}

// ImageAllocation is an image together with the memory bound to it.
type ImageAllocation interface {
	ImageResource
	Destroy()
}

// ImageView is a typed view into an image.
type ImageView interface {
	Inner() interface{}
	Destroy()
}

// Swapchain owns the presentable images of a surface.
type Swapchain interface {
	Extent() Extent2D
	Format() Format
	Images() []ImageResource

	// Acquire returns the index of the next presentable image and
	// signals the semaphore once the image can be written to.
	// Returns ErrSurfaceStale when no image could be acquired and
	// ErrSuboptimal together with a valid index when the image was
	// acquired but the swapchain should be rebuilt.
	Acquire(signal Semaphore, timeout uint64) (uint32, error)

	Destroy()
}
