// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/aurora/gfx"
	"github.com/pkg/errors"
)

// FramesInFlight is the number of frame slots. The CPU records frame
// n+1 while the GPU executes frame n.
const FramesInFlight = 2

// FrameSlot is the set of objects one frame in flight needs. A slot is
// reused every FramesInFlight frames, once its fence has signaled.
type FrameSlot struct {
	index     int
	commands  gfx.CommandBuffer
	finished  gfx.Fence
	acquired  gfx.Semaphore
	presented gfx.Semaphore
	deletion  DeletionQueue
}

func newFrameSlot(ctx *DeviceContext, index int) (*FrameSlot, error) {
	var (
		q    DeletionQueue
		slot = &FrameSlot{index: index}
		err  error
	)
	if slot.commands, err = ctx.Device.NewCommandBuffer(); err != nil {
		return nil, errors.Wrapf(err, "frame slot %d: command buffer", index)
	}
	q.PushFunc(slot.commands.Destroy)

	if slot.finished, err = ctx.Device.NewFence(true); err != nil {
		q.Flush()
		return nil, errors.Wrapf(err, "frame slot %d: fence", index)
	}
	q.PushFunc(slot.finished.Destroy)

	if slot.acquired, err = ctx.Device.NewSemaphore(); err != nil {
		q.Flush()
		return nil, errors.Wrapf(err, "frame slot %d: acquire semaphore", index)
	}
	q.PushFunc(slot.acquired.Destroy)

	if slot.presented, err = ctx.Device.NewSemaphore(); err != nil {
		q.Flush()
		return nil, errors.Wrapf(err, "frame slot %d: present semaphore", index)
	}
	return slot, nil
}

// Index returns the position of the slot in the ring.
func (s *FrameSlot) Index() int {
	return s.index
}

// Fence returns the fence signaled when the slot's last submission completed.
func (s *FrameSlot) Fence() gfx.Fence {
	return s.finished
}

// Pending returns the number of deferred releases waiting for the slot.
func (s *FrameSlot) Pending() int {
	return s.deletion.Len()
}

// Release flushes deferred releases and destroys the slot's objects.
// The slot must be idle.
func (s *FrameSlot) Release() {
	s.deletion.Flush()
	s.presented.Destroy()
	s.acquired.Destroy()
	s.finished.Destroy()
	s.commands.Destroy()
}

// Frame is a frame being recorded, returned by StartFrame.
type Frame struct {
	// Number counts presented frames since the engine was created.
	Number uint64

	// Commands is the recording command buffer of the frame slot.
	Commands gfx.CommandBuffer

	// ImageIndex identifies the acquired presentable image.
	ImageIndex uint32
	Image      gfx.ImageResource
	View       gfx.ImageView

	Extent     gfx.Extent2D
	Format     gfx.Format
	Generation uint64

	slot       *FrameSlot
	suboptimal bool
}

// Slot returns the frame slot the frame is recorded in.
func (f *Frame) Slot() *FrameSlot {
	return f.slot
}

// Defer registers r to be released once the GPU is done with this
// frame, at the start of the slot's next use.
func (f *Frame) Defer(r gfx.Releasable) {
	f.slot.deletion.Push(r)
}
