// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"github.com/devblok/aurora/gfx"
	vk "github.com/devblok/vulkan"
)

// CommandBuffer is a primary Vulkan command buffer allocated
// from the device pool.
type CommandBuffer struct {
	device vk.Device
	pool   vk.CommandPool
	cmd    vk.CommandBuffer
}

// Reset implements gfx.CommandBuffer
func (c *CommandBuffer) Reset() error {
	return result("vk.ResetCommandBuffer", vk.ResetCommandBuffer(c.cmd, 0))
}

// Begin implements gfx.CommandBuffer
func (c *CommandBuffer) Begin() error {
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return result("vk.BeginCommandBuffer", vk.BeginCommandBuffer(c.cmd, &cbbi))
}

// End implements gfx.CommandBuffer
func (c *CommandBuffer) End() error {
	return result("vk.EndCommandBuffer", vk.EndCommandBuffer(c.cmd))
}

// CopyBuffer implements gfx.CommandBuffer
func (c *CommandBuffer) CopyBuffer(src, dst gfx.BufferResource, regions ...gfx.BufferCopy) {
	bcs := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		bcs[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.cmd, bufferHandle(src), bufferHandle(dst), uint32(len(bcs)), bcs)
}

// CopyBufferToImage implements gfx.CommandBuffer
func (c *CommandBuffer) CopyBufferToImage(src gfx.BufferResource, dst gfx.ImageResource, layout gfx.ImageLayout, regions ...gfx.BufferImageCopy) {
	bics := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		bics[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageExtent: vk.Extent3D{
				Width:  r.Extent.Width,
				Height: r.Extent.Height,
				Depth:  r.Extent.Depth,
			},
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(r.Aspect),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
	}
	vk.CmdCopyBufferToImage(c.cmd, bufferHandle(src), imageHandle(dst), vk.ImageLayout(layout), uint32(len(bics)), bics)
}

// TransitionImage implements gfx.CommandBuffer
func (c *CommandBuffer) TransitionImage(image gfx.ImageResource, aspect gfx.Aspect, from, to gfx.ImageLayout) {
	srcAccess, srcStage := layoutScope(from, true)
	dstAccess, dstStage := layoutScope(to, false)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           vk.ImageLayout(from),
		NewLayout:           vk.ImageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               imageHandle(image),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(c.cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// BlitImage implements gfx.CommandBuffer
func (c *CommandBuffer) BlitImage(src gfx.ImageResource, srcRegion gfx.Rect, dst gfx.ImageResource, dstRegion gfx.Rect, aspect gfx.Aspect) {
	layers := vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(aspect),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	blit := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets:     rectOffsets(srcRegion),
		DstSubresource: layers,
		DstOffsets:     rectOffsets(dstRegion),
	}
	vk.CmdBlitImage(c.cmd,
		imageHandle(src), vk.ImageLayoutTransferSrcOptimal,
		imageHandle(dst), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, vk.FilterLinear)
}

// Inner returns the vk.CommandBuffer
func (c *CommandBuffer) Inner() interface{} {
	return c.cmd
}

// Destroy implements gfx.CommandBuffer
func (c *CommandBuffer) Destroy() {
	vk.FreeCommandBuffers(c.device, c.pool, 1, []vk.CommandBuffer{c.cmd})
}

func rectOffsets(r gfx.Rect) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.Offset.X, Y: r.Offset.Y, Z: 0},
		{X: r.Offset.X + int32(r.Extent.Width), Y: r.Offset.Y + int32(r.Extent.Height), Z: 1},
	}
}

// layoutScope returns the access and pipeline stage a barrier has to
// cover on the given side of a transition for an image in layout.
func layoutScope(layout gfx.ImageLayout, source bool) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case gfx.LayoutUndefined:
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	case gfx.LayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.LayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case gfx.LayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case gfx.LayoutColorAttachmentOptimal:
		access := vk.AccessColorAttachmentWriteBit
		if !source {
			access |= vk.AccessColorAttachmentReadBit
		}
		return vk.AccessFlags(access), vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case gfx.LayoutDepthStencilAttachmentOptimal:
		access := vk.AccessDepthStencilAttachmentWriteBit
		if !source {
			access |= vk.AccessDepthStencilAttachmentReadBit
		}
		return vk.AccessFlags(access), vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case gfx.LayoutPresentSrc:
		if source {
			return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
}
