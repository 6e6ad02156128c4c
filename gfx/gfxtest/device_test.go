// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfxtest

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/aurora/gfx"
)

func newTestDevice(c *qt.C) *Device {
	d := NewDevice(gfx.Extent2D{Width: 4, Height: 4})
	c.Cleanup(d.Destroy)
	return d
}

func recorded(c *qt.C, d *Device, ops ...func()) *CommandBuffer {
	cb, err := d.NewCommandBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(cb.Begin(), qt.IsNil)
	for _, op := range ops {
		cb.(*CommandBuffer).Record(op)
	}
	c.Assert(cb.End(), qt.IsNil)
	return cb.(*CommandBuffer)
}

func TestSubmitSignalsFence(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	fence, err := d.NewFence(false)
	c.Assert(err, qt.IsNil)
	ran := make(chan struct{})
	cb := recorded(c, d, func() { close(ran) })

	c.Assert(d.Submit(cb, nil, nil, fence), qt.IsNil)
	c.Assert(fence.Wait(gfx.WaitForever), qt.IsNil)
	<-ran
	c.Assert(cb.Pending(), qt.IsFalse)
	c.Assert(d.Stats().Submits, qt.Equals, 1)

	cb.Destroy()
	fence.Destroy()
	c.Assert(d.Violations(), qt.HasLen, 0)
	c.Assert(d.Live(), qt.HasLen, 0)
}

func TestHeldWork(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	fence, err := d.NewFence(false)
	c.Assert(err, qt.IsNil)
	cb := recorded(c, d)

	d.Hold()
	c.Assert(d.Submit(cb, nil, nil, fence), qt.IsNil)
	c.Assert(d.Pending(), qt.Equals, 1)
	c.Assert(fence.Wait(uint64(time.Millisecond)), qt.Equals, gfx.ErrTimeout)
	c.Assert(cb.Pending(), qt.IsTrue)

	c.Assert(fence.Reset(), qt.IsNil)
	c.Assert(cb.Reset(), qt.Not(qt.IsNil))
	c.Assert(d.Violations(), qt.DeepEquals, []string{
		"reset a fence that has pending work",
		"reset a command buffer that is pending execution",
	})

	d.Resume()
	c.Assert(d.WaitIdle(), qt.IsNil)
	c.Assert(fence.(*Fence).Signaled(), qt.IsTrue)
	c.Assert(d.Pending(), qt.Equals, 0)
	cb.Destroy()
	fence.Destroy()
}

func TestSubmitMisuse(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	signaled, err := d.NewFence(true)
	c.Assert(err, qt.IsNil)
	sem, err := d.NewSemaphore()
	c.Assert(err, qt.IsNil)
	cb, err := d.NewCommandBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(cb.Begin(), qt.IsNil)

	c.Assert(d.Submit(cb, sem, nil, signaled), qt.IsNil)
	c.Assert(d.WaitIdle(), qt.IsNil)
	c.Assert(d.Violations(), qt.DeepEquals, []string{
		"submitted a command buffer that is still recording",
		"submission waits on a semaphore nothing will signal",
		"submitted with a fence that is still signaled",
	})

	cb.Destroy()
	sem.Destroy()
	signaled.Destroy()
}

func TestFailSubmit(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	cb := recorded(c, d)
	d.FailSubmit(ErrInjected)
	c.Assert(d.Submit(cb, nil, nil, nil), qt.Equals, ErrInjected)
	c.Assert(cb.Pending(), qt.IsFalse)
	c.Assert(d.Submit(cb, nil, nil, nil), qt.IsNil)
	c.Assert(d.WaitIdle(), qt.IsNil)
	c.Assert(d.Stats().Submits, qt.Equals, 1)
	cb.Destroy()
}

func TestCopies(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	staging, err := d.AllocateBuffer(gfx.MemoryCPUOnly, 8, gfx.BufferUsageTransferSrc)
	c.Assert(err, qt.IsNil)
	local, err := d.AllocateBuffer(gfx.MemoryGPUOnly, 8, gfx.BufferUsageTransferDst)
	c.Assert(err, qt.IsNil)
	c.Assert(local.Mapped(), qt.IsNil)
	copy(staging.Mapped(), []byte{1, 2, 3, 4, 5, 6, 7, 8})

	img, err := d.AllocateImage(gfx.MemoryGPUOnly, gfx.FormatR8G8B8A8Unorm, gfx.Extent3D{Width: 2, Height: 1, Depth: 1}, gfx.ImageUsageTransferDst)
	c.Assert(err, qt.IsNil)

	cb, err := d.NewCommandBuffer()
	c.Assert(err, qt.IsNil)
	c.Assert(cb.Begin(), qt.IsNil)
	cb.CopyBuffer(staging, local, gfx.BufferCopy{SrcOffset: 4, DstOffset: 0, Size: 4})
	cb.TransitionImage(img, gfx.AspectColor, gfx.LayoutUndefined, gfx.LayoutTransferDstOptimal)
	cb.CopyBufferToImage(staging, img, gfx.LayoutTransferDstOptimal, gfx.BufferImageCopy{
		Extent: gfx.Extent3D{Width: 2, Height: 1, Depth: 1},
	})
	c.Assert(cb.End(), qt.IsNil)

	d.Hold()
	c.Assert(d.Submit(cb, nil, nil, nil), qt.IsNil)
	staging.Destroy()
	c.Assert(d.Violations(), qt.DeepEquals, []string{"buffer destroyed while in use by the GPU"})
	d.Resume()
	c.Assert(d.WaitIdle(), qt.IsNil)

	c.Assert(local.(*Buffer).Contents()[:4], qt.DeepEquals, []byte{5, 6, 7, 8})
	c.Assert(img.(*Image).Contents(), qt.DeepEquals, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.Assert(img.(*Image).Layout(), qt.Equals, gfx.LayoutTransferDstOptimal)
	c.Assert(img.(*Image).BarrierAspects(), qt.DeepEquals, []gfx.Aspect{gfx.AspectColor})

	cb.Destroy()
	local.Destroy()
	img.Destroy()
}

func TestFailAllocationAfter(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	d.FailAllocationAfter(1)
	b, err := d.AllocateBuffer(gfx.MemoryCPUOnly, 4, gfx.BufferUsageTransferSrc)
	c.Assert(err, qt.IsNil)
	_, err = d.AllocateImage(gfx.MemoryGPUOnly, gfx.FormatR8G8B8A8Unorm, gfx.Extent3D{Width: 1, Height: 1, Depth: 1}, gfx.ImageUsageSampled)
	c.Assert(err, qt.Equals, ErrInjected)
	c.Assert(d.Live(), qt.DeepEquals, map[string]int{"buffer": 1})

	d.FailAllocationAfter(-1)
	img, err := d.AllocateImage(gfx.MemoryGPUOnly, gfx.FormatR8G8B8A8Unorm, gfx.Extent3D{Width: 1, Height: 1, Depth: 1}, gfx.ImageUsageSampled)
	c.Assert(err, qt.IsNil)
	img.Destroy()
	b.Destroy()
	b.Destroy()
	c.Assert(d.Violations(), qt.HasLen, 1)
	c.Assert(d.Violations()[0], qt.Matches, "double destroy of .*Buffer")
}

func TestSwapchain(t *testing.T) {
	c := qt.New(t)
	d := newTestDevice(c)

	sc, err := d.NewSwapchain(gfx.Extent2D{Width: 4, Height: 4}, 0, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(sc.Images(), qt.HasLen, 2)

	d.FailAcquire(gfx.ErrSuboptimal, gfx.ErrSurfaceStale)
	idx, err := sc.Acquire(nil, gfx.WaitForever)
	c.Assert(err, qt.Equals, gfx.ErrSuboptimal)
	c.Assert(idx, qt.Equals, uint32(0))
	_, err = sc.Acquire(nil, gfx.WaitForever)
	c.Assert(err, qt.Equals, gfx.ErrSurfaceStale)

	c.Assert(d.Present(sc, 0, nil), qt.IsNil)
	c.Assert(d.Present(sc, 1, nil), qt.IsNil)
	c.Assert(d.Violations(), qt.DeepEquals, []string{"presented image 1 that was not acquired"})

	next, err := d.NewSwapchain(gfx.Extent2D{Width: 8, Height: 8}, 3, sc)
	c.Assert(err, qt.IsNil)
	sc.Destroy()
	c.Assert(next.Images(), qt.HasLen, 3)
	c.Assert(next.Extent(), qt.Equals, gfx.Extent2D{Width: 8, Height: 8})
	c.Assert(d.Stats().Swapchains, qt.Equals, 2)
	next.Destroy()
}

func TestDestroyReportsLeaks(t *testing.T) {
	c := qt.New(t)
	d := NewDevice(gfx.Extent2D{Width: 1, Height: 1})

	_, err := d.NewSemaphore()
	c.Assert(err, qt.IsNil)
	d.Destroy()
	d.Destroy()
	c.Assert(d.Violations(), qt.HasLen, 1)
	c.Assert(d.Violations()[0], qt.Matches, "semaphore 0x[0-9a-f]+ alive at device destruction")
}
