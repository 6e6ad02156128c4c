// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "errors"

// Errors reported by backends that callers are expected to handle.
var (
	// ErrSurfaceStale means the swapchain no longer matches the surface
	// and has to be rebuilt before anything can be presented.
	ErrSurfaceStale = errors.New("gfx: presentation surface is out of date")

	// ErrSuboptimal means the operation succeeded but the swapchain
	// should be rebuilt at the next opportunity.
	ErrSuboptimal = errors.New("gfx: presentation surface is suboptimal")

	// ErrTimeout means a wait expired before the object was signaled.
	ErrTimeout = errors.New("gfx: wait timed out")
)

// WaitForever is the timeout used for waits that are expected to
// always complete.
const WaitForever = ^uint64(0)

// Extent2D is a two dimensional size in pixels.
type Extent2D struct {
	Width, Height uint32
}

// Empty reports whether the extent has no area.
func (e Extent2D) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// ExtentUndefined is reported as the surface extent when the platform
// leaves the size of the swapchain to the application.
var ExtentUndefined = Extent2D{Width: ^uint32(0), Height: ^uint32(0)}

// Extent3D is a three dimensional size in texels.
type Extent3D struct {
	Width, Height, Depth uint32
}

// Extent3D converts the extent to a single slice volume.
func (e Extent2D) Extent3D() Extent3D {
	return Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

// Offset2D is a position in pixels.
type Offset2D struct {
	X, Y int32
}

// Rect is an axis aligned region of an image.
type Rect struct {
	Offset Offset2D
	Extent Extent2D
}

// BufferCopy describes one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset, DstOffset, Size uint64
}

// BufferImageCopy describes one region of a buffer to image copy.
// Buffer data is tightly packed.
type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       Aspect
	Extent       Extent3D
}

// MemoryLocation tells the allocator who reads and writes the memory.
type MemoryLocation int

// Memory locations, named after their typical usage.
const (
	// MemoryGPUOnly is device local and not host visible.
	MemoryGPUOnly MemoryLocation = iota
	// MemoryCPUToGPU is host visible and written by the CPU, read by the GPU.
	MemoryCPUToGPU
	// MemoryGPUToCPU is host visible and cached, for readbacks.
	MemoryGPUToCPU
	// MemoryCPUOnly is host visible memory used for staging.
	MemoryCPUOnly
)

// HostVisible reports whether allocations in this location are mapped.
func (l MemoryLocation) HostVisible() bool {
	return l != MemoryGPUOnly
}

func (l MemoryLocation) String() string {
	switch l {
	case MemoryGPUOnly:
		return "gpu-only"
	case MemoryCPUToGPU:
		return "cpu-to-gpu"
	case MemoryGPUToCPU:
		return "gpu-to-cpu"
	case MemoryCPUOnly:
		return "cpu-only"
	}
	return "unknown"
}

// The flag and enumeration values below match their Vulkan
// counterparts so that backends can convert them by casting.

// BufferUsage is a set of buffer usage flags.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageTransferSrc         BufferUsage = 0x00000001
	BufferUsageTransferDst         BufferUsage = 0x00000002
	BufferUsageUniformTexel        BufferUsage = 0x00000004
	BufferUsageStorageTexel        BufferUsage = 0x00000008
	BufferUsageUniform             BufferUsage = 0x00000010
	BufferUsageStorage             BufferUsage = 0x00000020
	BufferUsageIndex               BufferUsage = 0x00000040
	BufferUsageVertex              BufferUsage = 0x00000080
	BufferUsageIndirect            BufferUsage = 0x00000100
	BufferUsageShaderDeviceAddress BufferUsage = 0x00020000
)

// ImageUsage is a set of image usage flags.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageTransferSrc            ImageUsage = 0x00000001
	ImageUsageTransferDst            ImageUsage = 0x00000002
	ImageUsageSampled                ImageUsage = 0x00000004
	ImageUsageStorage                ImageUsage = 0x00000008
	ImageUsageColorAttachment        ImageUsage = 0x00000010
	ImageUsageDepthStencilAttachment ImageUsage = 0x00000020
)

// Aspect selects the color, depth or stencil part of an image.
type Aspect uint32

// Image aspects.
const (
	AspectColor   Aspect = 0x00000001
	AspectDepth   Aspect = 0x00000002
	AspectStencil Aspect = 0x00000004
)

// ImageLayout is the memory arrangement of an image.
type ImageLayout int32

// Image layouts.
const (
	LayoutUndefined                     ImageLayout = 0
	LayoutGeneral                       ImageLayout = 1
	LayoutColorAttachmentOptimal        ImageLayout = 2
	LayoutDepthStencilAttachmentOptimal ImageLayout = 3
	LayoutShaderReadOnlyOptimal         ImageLayout = 5
	LayoutTransferSrcOptimal            ImageLayout = 6
	LayoutTransferDstOptimal            ImageLayout = 7
	LayoutPresentSrc                    ImageLayout = 1000001002
)

// Format is a texel format.
type Format int32

// Texel formats in use by the engine.
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatD16Unorm           Format = 124
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// TexelSize returns the size of one texel in bytes, or 0 for
// formats the engine does not upload to.
func (f Format) TexelSize() uint64 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return 4
	case FormatR16G16B16A16Sfloat:
		return 8
	case FormatD16Unorm:
		return 2
	case FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	}
	return 0
}

// DefaultAspect returns the aspects a full view of the format covers.
func (f Format) DefaultAspect() Aspect {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat:
		return AspectDepth
	case FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return AspectDepth | AspectStencil
	}
	return AspectColor
}
