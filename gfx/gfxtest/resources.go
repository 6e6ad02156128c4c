// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"errors"

	"github.com/devblok/aurora/gfx"
)

// CommandBuffer records operations that the simulated GPU executes
// in order once the buffer is submitted.
type CommandBuffer struct {
	dev       *Device
	ops       []func()
	buffers   []*Buffer
	recording bool
	pending   bool
}

// Pending reports whether the buffer was submitted and has not
// finished executing.
func (c *CommandBuffer) Pending() bool {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return c.pending
}

// Reset implements gfx.CommandBuffer.
func (c *CommandBuffer) Reset() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.pending {
		c.dev.violate("reset a command buffer that is pending execution")
		return errors.New("gfxtest: command buffer is pending")
	}
	c.ops = nil
	c.buffers = nil
	c.recording = false
	return nil
}

// Begin implements gfx.CommandBuffer.
func (c *CommandBuffer) Begin() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if c.pending {
		c.dev.violate("began a command buffer that is pending execution")
		return errors.New("gfxtest: command buffer is pending")
	}
	c.ops = nil
	c.buffers = nil
	c.recording = true
	return nil
}

// End implements gfx.CommandBuffer.
func (c *CommandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if !c.recording {
		return errors.New("gfxtest: command buffer is not recording")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) record(op func()) {
	if !c.recording {
		c.dev.report("command recorded outside Begin and End")
		return
	}
	c.ops = append(c.ops, op)
}

func (c *CommandBuffer) use(b *Buffer) {
	c.buffers = append(c.buffers, b)
}

// Record appends an arbitrary operation, for renderers under test.
func (c *CommandBuffer) Record(op func()) {
	c.record(op)
}

// CopyBuffer implements gfx.CommandBuffer.
func (c *CommandBuffer) CopyBuffer(src, dst gfx.BufferResource, regions ...gfx.BufferCopy) {
	s, d := src.(*Buffer), dst.(*Buffer)
	c.use(s)
	c.use(d)
	c.record(func() {
		for _, r := range regions {
			if r.SrcOffset+r.Size > uint64(len(s.data)) || r.DstOffset+r.Size > uint64(len(d.data)) {
				c.dev.report("buffer copy out of range")
				continue
			}
			copy(d.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	})
}

// CopyBufferToImage implements gfx.CommandBuffer.
func (c *CommandBuffer) CopyBufferToImage(src gfx.BufferResource, dst gfx.ImageResource, layout gfx.ImageLayout, regions ...gfx.BufferImageCopy) {
	s, img := src.(*Buffer), dst.(*Image)
	c.use(s)
	c.record(func() {
		if img.layout != layout {
			c.dev.report("image copy expects layout %d, image is in %d", layout, img.layout)
		}
		if layout != gfx.LayoutTransferDstOptimal && layout != gfx.LayoutGeneral {
			c.dev.report("image copy into layout %d", layout)
		}
		for _, r := range regions {
			n := uint64(r.Extent.Width) * uint64(r.Extent.Height) * uint64(r.Extent.Depth) * img.Format.TexelSize()
			if r.BufferOffset+n > uint64(len(s.data)) || n > uint64(len(img.data)) {
				c.dev.report("image copy out of range")
				continue
			}
			copy(img.data[:n], s.data[r.BufferOffset:r.BufferOffset+n])
		}
	})
}

// TransitionImage implements gfx.CommandBuffer.
func (c *CommandBuffer) TransitionImage(image gfx.ImageResource, aspect gfx.Aspect, from, to gfx.ImageLayout) {
	img := image.(*Image)
	c.record(func() {
		if from != gfx.LayoutUndefined && img.layout != from {
			c.dev.report("transition from layout %d, image is in %d", from, img.layout)
		}
		img.layout = to
		img.aspects = append(img.aspects, aspect)
	})
}

// BlitImage implements gfx.CommandBuffer.
func (c *CommandBuffer) BlitImage(src gfx.ImageResource, srcRegion gfx.Rect, dst gfx.ImageResource, dstRegion gfx.Rect, aspect gfx.Aspect) {
	s, d := src.(*Image), dst.(*Image)
	c.record(func() {
		if s.layout != gfx.LayoutTransferSrcOptimal || d.layout != gfx.LayoutTransferDstOptimal {
			c.dev.report("blit between layouts %d and %d", s.layout, d.layout)
		}
		c.dev.mu.Lock()
		c.dev.stats.Blits++
		c.dev.mu.Unlock()
	})
}

// Inner implements gfx.CommandBuffer.
func (c *CommandBuffer) Inner() interface{} {
	return c
}

// Destroy implements gfx.CommandBuffer.
func (c *CommandBuffer) Destroy() {
	if c.Pending() {
		c.dev.report("destroyed a command buffer that is pending execution")
	}
	c.dev.release(c)
}

// Buffer is a fake buffer backed by a byte slice.
type Buffer struct {
	dev      *Device
	data     []byte
	users    int
	Location gfx.MemoryLocation
	Usage    gfx.BufferUsage
}

func (b *Buffer) inUse() bool {
	return b.users > 0
}

// Size implements gfx.BufferResource.
func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

// Mapped implements gfx.BufferAllocation.
func (b *Buffer) Mapped() []byte {
	if !b.Location.HostVisible() {
		return nil
	}
	return b.data
}

// Contents returns a copy of the buffer memory regardless of location.
func (b *Buffer) Contents() []byte {
	return append([]byte(nil), b.data...)
}

// Inner implements gfx.BufferResource.
func (b *Buffer) Inner() interface{} {
	return b
}

// Destroy implements gfx.BufferAllocation.
func (b *Buffer) Destroy() {
	b.dev.release(b)
}

// Image is a fake image backed by tightly packed texels.
type Image struct {
	dev       *Device
	data      []byte
	layout    gfx.ImageLayout
	aspects   []gfx.Aspect
	presented bool
	Format    gfx.Format
	Extent    gfx.Extent3D
	Usage     gfx.ImageUsage
}

// Layout returns the layout the image was left in by executed commands.
func (i *Image) Layout() gfx.ImageLayout {
	return i.layout
}

// BarrierAspects returns the aspect of every executed transition.
func (i *Image) BarrierAspects() []gfx.Aspect {
	return append([]gfx.Aspect(nil), i.aspects...)
}

// Contents returns a copy of the image memory.
func (i *Image) Contents() []byte {
	return append([]byte(nil), i.data...)
}

// Inner implements gfx.ImageResource.
func (i *Image) Inner() interface{} {
	return i
}

// Destroy implements gfx.ImageAllocation.
func (i *Image) Destroy() {
	if i.presented {
		i.dev.report("destroyed an image owned by a swapchain")
		return
	}
	i.dev.release(i)
}

// ImageView is a fake gfx.ImageView.
type ImageView struct {
	dev    *Device
	Image  *Image
	Format gfx.Format
	Aspect gfx.Aspect
}

// Inner implements gfx.ImageView.
func (v *ImageView) Inner() interface{} {
	return v
}

// Destroy implements gfx.ImageView.
func (v *ImageView) Destroy() {
	v.dev.release(v)
}

// Swapchain is a fake gfx.Swapchain handing out images round robin.
type Swapchain struct {
	dev      *Device
	extent   gfx.Extent2D
	images   []*Image
	next     uint32
	acquired map[uint32]bool
	retired  bool
}

// Extent implements gfx.Swapchain.
func (s *Swapchain) Extent() gfx.Extent2D {
	return s.extent
}

// Format implements gfx.Swapchain.
func (s *Swapchain) Format() gfx.Format {
	return gfx.FormatB8G8R8A8Unorm
}

// Images implements gfx.Swapchain.
func (s *Swapchain) Images() []gfx.ImageResource {
	images := make([]gfx.ImageResource, len(s.images))
	for i, img := range s.images {
		images[i] = img
	}
	return images
}

// Acquire implements gfx.Swapchain.
func (s *Swapchain) Acquire(signal gfx.Semaphore, timeout uint64) (uint32, error) {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Acquires++
	if s.retired {
		d.violate("acquired from a retired swapchain")
	}
	var result error
	if len(d.acquireErrs) > 0 {
		result = d.acquireErrs[0]
		d.acquireErrs = d.acquireErrs[1:]
		if result != nil && result != gfx.ErrSuboptimal {
			return 0, result
		}
	}
	if s.acquired == nil {
		s.acquired = make(map[uint32]bool)
	}
	idx := s.next % uint32(len(s.images))
	s.next++
	s.acquired[idx] = true
	if signal != nil {
		sem := signal.(*Semaphore)
		if sem.signaled {
			d.violate("acquire signals a semaphore that is already signaled")
		}
		sem.signaled = true
	}
	return idx, result
}

// Destroy implements gfx.Swapchain.
func (s *Swapchain) Destroy() {
	s.dev.release(s)
}
