// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"image"

	"github.com/devblok/aurora/gfx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Engine runs frames on a device. It is not safe for concurrent use;
// every method must be called from the goroutine driving the frame loop,
// except RunImmediate and the upload methods, which are serialised
// internally.
type Engine struct {
	ctx      *DeviceContext
	lifetime DeletionQueue

	surface   *Surface
	slots     [FramesInFlight]*FrameSlot
	immediate *Immediate

	frameNumber   uint64
	minimized     bool
	resizePending bool
	regenerate    bool
	destroyed     bool
}

// NewEngine creates the surface, the frame slots and the immediate
// channel. The device is owned by the caller and must outlive the engine.
func NewEngine(ctx *DeviceContext, cfg RendererConfiguration) (*Engine, error) {
	if cfg.FramesInFlight != 0 && cfg.FramesInFlight != FramesInFlight {
		return nil, errors.Errorf("new engine: %d frames in flight, only %d supported", cfg.FramesInFlight, FramesInFlight)
	}
	e := &Engine{ctx: ctx}

	fallback := gfx.Extent2D{Width: cfg.ScreenWidth, Height: cfg.ScreenHeight}
	surface, err := NewSurface(ctx, &e.lifetime, fallback, cfg.SwapchainSize)
	if err != nil {
		e.lifetime.Flush()
		return nil, errors.Wrap(err, "new engine")
	}
	e.surface = surface

	for idx := range e.slots {
		slot, err := newFrameSlot(ctx, idx)
		if err != nil {
			e.lifetime.Flush()
			return nil, errors.Wrap(err, "new engine")
		}
		e.slots[idx] = slot
		e.lifetime.Push(slot)
	}

	imm, err := NewImmediate(ctx)
	if err != nil {
		e.lifetime.Flush()
		return nil, errors.Wrap(err, "new engine")
	}
	e.immediate = imm
	e.lifetime.Push(imm)

	ctx.Log.WithFields(log.Fields{
		"slots":  FramesInFlight,
		"width":  surface.Extent().Width,
		"height": surface.Extent().Height,
	}).Info("engine initialised")
	return e, nil
}

// Context returns the device context the engine was created with.
func (e *Engine) Context() *DeviceContext {
	return e.ctx
}

// Surface returns the presentation surface.
func (e *Engine) Surface() *Surface {
	return e.surface
}

// Slot returns the frame slot at idx.
func (e *Engine) Slot(idx int) *FrameSlot {
	return e.slots[idx]
}

// FrameNumber returns the number of frames submitted so far.
func (e *Engine) FrameNumber() uint64 {
	return e.frameNumber
}

// NotifyResize schedules a surface rebuild before the next frame.
func (e *Engine) NotifyResize() {
	e.resizePending = true
}

// NotifyResizeTo is NotifyResize for platforms that let the application
// pick the swapchain extent.
func (e *Engine) NotifyResizeTo(extent gfx.Extent2D) {
	e.surface.SetFallbackExtent(extent)
	e.resizePending = true
}

// NotifyMinimized suspends or resumes frame execution.
func (e *Engine) NotifyMinimized(minimized bool) {
	if e.minimized != minimized {
		e.ctx.Log.WithField("minimized", minimized).Debug("frame execution toggled")
	}
	e.minimized = minimized
}

// Minimized reports whether frame execution is suspended.
func (e *Engine) Minimized() bool {
	return e.minimized
}

// StartFrame waits for the next frame slot to be free, releases what was
// deferred on it and acquires a presentable image. ErrFrameSkipped means
// nothing was acquired and the caller should try again later.
func (e *Engine) StartFrame() (*Frame, error) {
	if e.minimized {
		return nil, ErrFrameSkipped
	}
	if e.resizePending {
		extent, err := e.surface.CurrentExtent()
		if err != nil {
			return nil, errors.Wrap(err, "start frame")
		}
		if extent.Empty() {
			return nil, ErrFrameSkipped
		}
	}

	slot := e.slots[e.frameNumber%FramesInFlight]
	logger := e.ctx.Log.WithFields(log.Fields{
		"frame": e.frameNumber,
		"slot":  slot.index,
	})

	if err := slot.finished.Wait(e.ctx.WaitTimeout); err != nil {
		logger.WithError(err).Error("wait for frame slot")
		return nil, errors.Wrapf(err, "start frame: wait for slot %d", slot.index)
	}
	slot.deletion.Flush()

	if e.resizePending || e.regenerate || e.surface.Swapchain() == nil {
		built, err := e.rebuildSurface()
		if err != nil {
			return nil, errors.Wrap(err, "start frame")
		}
		if !built {
			return nil, ErrFrameSkipped
		}
	}

	idx, err := e.surface.Swapchain().Acquire(slot.acquired, e.ctx.WaitTimeout)
	switch {
	case err == gfx.ErrSurfaceStale:
		logger.WithField("generation", e.surface.Generation()).Debug("acquired stale surface")
		if _, err := e.rebuildSurface(); err != nil {
			return nil, errors.Wrap(err, "start frame")
		}
		return nil, ErrFrameSkipped
	case err == gfx.ErrSuboptimal:
		e.regenerate = true
	case err != nil:
		logger.WithError(err).Error("acquire image")
		return nil, errors.Wrap(err, "start frame: acquire")
	}

	if err := slot.finished.Reset(); err != nil {
		logger.WithError(err).Error("reset frame fence")
		return nil, errors.Wrap(err, "start frame: reset fence")
	}
	if err := slot.commands.Reset(); err != nil {
		return nil, errors.Wrap(err, "start frame: reset commands")
	}
	if err := slot.commands.Begin(); err != nil {
		return nil, errors.Wrap(err, "start frame: begin commands")
	}

	return &Frame{
		Number:     e.frameNumber,
		Commands:   slot.commands,
		ImageIndex: idx,
		Image:      e.surface.Image(idx),
		View:       e.surface.View(idx),
		Extent:     e.surface.Extent(),
		Format:     e.surface.Format(),
		Generation: e.surface.Generation(),
		slot:       slot,
		suboptimal: err == gfx.ErrSuboptimal,
	}, nil
}

// FinishFrame submits the recorded frame and presents its image.
func (e *Engine) FinishFrame(frame *Frame) error {
	slot := frame.slot
	logger := e.ctx.Log.WithFields(log.Fields{
		"frame": frame.Number,
		"slot":  slot.index,
	})

	if err := frame.Commands.End(); err != nil {
		return errors.Wrap(err, "finish frame: end commands")
	}
	if err := e.ctx.Device.Submit(frame.Commands, slot.acquired, slot.presented, slot.finished); err != nil {
		logger.WithError(err).Error("submit frame")
		return errors.Wrap(err, "finish frame: submit")
	}
	e.frameNumber++

	err := e.ctx.Device.Present(e.surface.Swapchain(), frame.ImageIndex, slot.presented)
	if err != nil && err != gfx.ErrSurfaceStale && err != gfx.ErrSuboptimal {
		logger.WithError(err).Error("present frame")
		return errors.Wrap(err, "finish frame: present")
	}
	if err != nil || frame.suboptimal || e.regenerate {
		logger.WithField("generation", e.surface.Generation()).Debug("presented to stale surface")
		e.regenerate = true
		if _, err := e.rebuildSurface(); err != nil {
			return errors.Wrap(err, "finish frame")
		}
	}
	return nil
}

// rebuildSurface regenerates the surface and clears the pending rebuild.
// A surface without area is left alone and reported as not built; the
// rebuild then stays pending until StartFrame sees a usable extent.
func (e *Engine) rebuildSurface() (bool, error) {
	extent, err := e.surface.CurrentExtent()
	if err != nil {
		return false, err
	}
	if !extent.Empty() {
		err = e.surface.Regenerate()
	}
	if extent.Empty() || errors.Cause(err) == errEmptySurface {
		e.resizePending = true
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.resizePending = false
	e.regenerate = false
	return true, nil
}

// RunFrame records one frame with the renderers, in order. A skipped
// frame is not an error.
func (e *Engine) RunFrame(renderers ...Renderer) error {
	frame, err := e.StartFrame()
	if err == ErrFrameSkipped {
		return nil
	}
	if err != nil {
		return err
	}
	for _, r := range renderers {
		if err := r.Render(frame); err != nil {
			return errors.Wrapf(err, "render frame %d", frame.Number)
		}
	}
	return e.FinishFrame(frame)
}

// CreateBuffer allocates a buffer. See CreateBuffer.
func (e *Engine) CreateBuffer(loc gfx.MemoryLocation, size uint64, usage gfx.BufferUsage) (Buffer, error) {
	return CreateBuffer(e.ctx, loc, size, usage)
}

// CreateImage allocates an image and its view. See CreateImage.
func (e *Engine) CreateImage(loc gfx.MemoryLocation, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage, aspect gfx.Aspect) (Image, error) {
	return CreateImage(e.ctx, loc, format, extent, usage, aspect)
}

// DestroyBuffer releases b right away. The GPU must not be using it.
func (e *Engine) DestroyBuffer(b Buffer) {
	b.Release()
}

// DestroyImage releases img right away. The GPU must not be using it.
func (e *Engine) DestroyImage(img Image) {
	img.Release()
}

// RunImmediate records with record and blocks until the GPU has run it.
func (e *Engine) RunImmediate(record func(cb gfx.CommandBuffer) error) error {
	return e.immediate.Run(record)
}

// Defer registers r for release when the engine is destroyed.
func (e *Engine) Defer(r gfx.Releasable) {
	e.lifetime.Push(r)
}

// UploadBuffer creates a device local buffer holding data.
func (e *Engine) UploadBuffer(data []byte, usage gfx.BufferUsage) (Buffer, error) {
	return UploadBuffer(e.ctx, e.immediate, data, usage)
}

// UploadImage creates a device local image holding data, ready for sampling.
func (e *Engine) UploadImage(data []byte, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage, aspect gfx.Aspect) (Image, error) {
	return UploadImage(e.ctx, e.immediate, data, format, extent, usage, aspect)
}

// UploadMesh creates device local vertex and index buffers.
func (e *Engine) UploadMesh(vertices []byte, indices []uint32) (Mesh, error) {
	return UploadMesh(e.ctx, e.immediate, vertices, indices)
}

// UploadTexture uploads img as a sampled RGBA image.
func (e *Engine) UploadTexture(img image.Image, usage gfx.ImageUsage) (Image, error) {
	return UploadTexture(e.ctx, e.immediate, img, usage)
}

// Destroy waits for the device to go idle and releases everything the
// engine and its deletion queues hold, newest first.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	if err := e.ctx.Device.WaitIdle(); err != nil {
		e.ctx.Log.WithError(err).Error("wait idle before shutdown")
	}
	e.lifetime.Flush()
	e.ctx.Log.WithField("frames", e.frameNumber).Info("engine destroyed")
}
