// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfxtest provides an in-memory gfx.Device. Submitted work is
// executed by a background goroutine standing in for the GPU, so fences,
// semaphores and command buffers go through the same pending states as
// they would on hardware. The GPU can be held to make those states
// observable, and acquire or present results can be injected.
package gfxtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devblok/aurora/gfx"
)

// Stats counts device calls.
type Stats struct {
	Submits    int
	Acquires   int
	Presents   int
	Swapchains int
	Blits      int
	WaitIdles  int
}

type submission struct {
	cb      *CommandBuffer
	fence   *Fence
	signal  *Semaphore
	buffers []*Buffer
}

// Device is a fake gfx.Device.
type Device struct {
	mu      sync.Mutex
	idle    *sync.Cond
	work    chan struct{}
	quit    chan struct{}
	queue   []*submission
	busy    bool
	held    bool
	stopped bool

	extent       gfx.Extent2D
	acquireErrs  []error
	presentErrs  []error
	submitErr    error
	allocsBefore int

	stats      Stats
	live       map[interface{}]string
	violations []string
}

// NewDevice returns a running fake device presenting to a surface
// with the given extent.
func NewDevice(extent gfx.Extent2D) *Device {
	d := &Device{
		work:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		extent:       extent,
		allocsBefore: -1,
		live:         make(map[interface{}]string),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// run is the simulated GPU queue.
func (d *Device) run() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.work:
		}
		for {
			d.mu.Lock()
			if d.held || len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			s := d.queue[0]
			d.queue = d.queue[1:]
			d.busy = true
			d.mu.Unlock()

			for _, op := range s.cb.ops {
				op()
			}

			d.mu.Lock()
			d.busy = false
			s.cb.pending = false
			for _, b := range s.buffers {
				b.users--
			}
			if s.fence != nil {
				s.fence.signal()
			}
			d.idle.Broadcast()
			d.mu.Unlock()
		}
	}
}

func (d *Device) kick() {
	select {
	case d.work <- struct{}{}:
	default:
	}
}

// violate must be called with the lock held.
func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) report(format string, args ...interface{}) {
	d.mu.Lock()
	d.violate(format, args...)
	d.mu.Unlock()
}

// Hold stops the simulated GPU from completing submitted work.
func (d *Device) Hold() {
	d.mu.Lock()
	d.held = true
	d.mu.Unlock()
}

// Resume lets the simulated GPU complete queued and future work.
func (d *Device) Resume() {
	d.mu.Lock()
	d.held = false
	d.mu.Unlock()
	d.kick()
}

// Pending returns the number of submissions not yet completed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.busy {
		n++
	}
	return n
}

// SetSurfaceExtent changes the extent reported for the surface.
func (d *Device) SetSurfaceExtent(e gfx.Extent2D) {
	d.mu.Lock()
	d.extent = e
	d.mu.Unlock()
}

// FailAcquire queues results for upcoming Acquire calls, in order.
func (d *Device) FailAcquire(errs ...error) {
	d.mu.Lock()
	d.acquireErrs = append(d.acquireErrs, errs...)
	d.mu.Unlock()
}

// FailPresent queues results for upcoming Present calls, in order.
func (d *Device) FailPresent(errs ...error) {
	d.mu.Lock()
	d.presentErrs = append(d.presentErrs, errs...)
	d.mu.Unlock()
}

// FailSubmit makes the next Submit return err.
func (d *Device) FailSubmit(err error) {
	d.mu.Lock()
	d.submitErr = err
	d.mu.Unlock()
}

// FailAllocationAfter makes buffer, image and view creation fail once n
// more of them have succeeded. A negative n disables the failure.
func (d *Device) FailAllocationAfter(n int) {
	d.mu.Lock()
	d.allocsBefore = n
	d.mu.Unlock()
}

// ErrInjected is returned by calls set up to fail.
var ErrInjected = errors.New("gfxtest: injected failure")

func (d *Device) allocate(kind string, obj interface{}) error {
	if d.allocsBefore == 0 {
		return ErrInjected
	}
	if d.allocsBefore > 0 {
		d.allocsBefore--
	}
	d.live[obj] = kind
	return nil
}

func (d *Device) release(obj interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, ok := d.live[obj]
	if !ok {
		d.violate("double destroy of %T", obj)
		return
	}
	if kind == "buffer" && obj.(*Buffer).inUse() {
		d.violate("buffer destroyed while in use by the GPU")
	}
	delete(d.live, obj)
}

// Stats returns a snapshot of call counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live returns the number of live objects per kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := make(map[string]int)
	for _, kind := range d.live {
		m[kind]++
	}
	return m
}

// Violations returns the usage errors detected so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// NewFence implements gfx.Device.
func (d *Device) NewFence(signaled bool) (gfx.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &Fence{dev: d, done: make(chan struct{})}
	if signaled {
		close(f.done)
	}
	d.live[f] = "fence"
	return f, nil
}

// NewSemaphore implements gfx.Device.
func (d *Device) NewSemaphore() (gfx.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Semaphore{dev: d}
	d.live[s] = "semaphore"
	return s, nil
}

// NewCommandBuffer implements gfx.Device.
func (d *Device) NewCommandBuffer() (gfx.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb := &CommandBuffer{dev: d}
	d.live[cb] = "command buffer"
	return cb, nil
}

// AllocateBuffer implements gfx.Device.
func (d *Device) AllocateBuffer(loc gfx.MemoryLocation, size uint64, usage gfx.BufferUsage) (gfx.BufferAllocation, error) {
	if size == 0 {
		return nil, errors.New("gfxtest: zero sized buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{dev: d, Location: loc, Usage: usage, data: make([]byte, size)}
	if err := d.allocate("buffer", b); err != nil {
		return nil, err
	}
	return b, nil
}

// AllocateImage implements gfx.Device.
func (d *Device) AllocateImage(loc gfx.MemoryLocation, format gfx.Format, extent gfx.Extent3D, usage gfx.ImageUsage) (gfx.ImageAllocation, error) {
	if extent.Width == 0 || extent.Height == 0 || extent.Depth == 0 {
		return nil, errors.New("gfxtest: zero sized image")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img := &Image{
		dev:    d,
		Format: format,
		Extent: extent,
		Usage:  usage,
		data:   make([]byte, uint64(extent.Width)*uint64(extent.Height)*uint64(extent.Depth)*format.TexelSize()),
	}
	if err := d.allocate("image", img); err != nil {
		return nil, err
	}
	return img, nil
}

// NewImageView implements gfx.Device.
func (d *Device) NewImageView(image gfx.ImageResource, format gfx.Format, aspect gfx.Aspect) (gfx.ImageView, error) {
	img, ok := image.(*Image)
	if !ok {
		return nil, fmt.Errorf("gfxtest: foreign image %T", image)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := &ImageView{dev: d, Image: img, Format: format, Aspect: aspect}
	if err := d.allocate("image view", v); err != nil {
		return nil, err
	}
	return v, nil
}

// SurfaceExtent implements gfx.Device.
func (d *Device) SurfaceExtent() (gfx.Extent2D, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extent, nil
}

// NewSwapchain implements gfx.Device.
func (d *Device) NewSwapchain(extent gfx.Extent2D, imageCount uint32, old gfx.Swapchain) (gfx.Swapchain, error) {
	if extent.Empty() {
		return nil, errors.New("gfxtest: zero sized swapchain")
	}
	if imageCount == 0 {
		imageCount = 2
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if old != nil {
		if _, ok := d.live[old]; !ok {
			d.violate("swapchain created from a destroyed swapchain")
		}
		old.(*Swapchain).retired = true
	}
	sc := &Swapchain{dev: d, extent: extent}
	for i := uint32(0); i < imageCount; i++ {
		sc.images = append(sc.images, &Image{
			dev:       d,
			Format:    gfx.FormatB8G8R8A8Unorm,
			Extent:    extent.Extent3D(),
			Usage:     gfx.ImageUsageColorAttachment | gfx.ImageUsageTransferDst,
			presented: true,
		})
	}
	d.live[sc] = "swapchain"
	d.stats.Swapchains++
	return sc, nil
}

// Submit implements gfx.Device.
func (d *Device) Submit(cb gfx.CommandBuffer, wait, signal gfx.Semaphore, fence gfx.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.submitErr; err != nil {
		d.submitErr = nil
		return err
	}
	c := cb.(*CommandBuffer)
	if c.recording {
		d.violate("submitted a command buffer that is still recording")
	}
	if c.pending {
		d.violate("submitted a command buffer that is already pending")
	}
	if wait != nil {
		s := wait.(*Semaphore)
		if !s.signaled {
			d.violate("submission waits on a semaphore nothing will signal")
		}
		s.signaled = false
	}
	s := &submission{cb: c}
	if signal != nil {
		s.signal = signal.(*Semaphore)
		s.signal.signaled = true
	}
	if fence != nil {
		s.fence = fence.(*Fence)
		if s.fence.isSignaled() {
			d.violate("submitted with a fence that is still signaled")
		}
		s.fence.pending = true
	}
	c.pending = true
	for _, b := range c.buffers {
		b.users++
	}
	s.buffers = append(s.buffers, c.buffers...)
	d.queue = append(d.queue, s)
	d.stats.Submits++
	d.kick()
	return nil
}

// Present implements gfx.Device.
func (d *Device) Present(sc gfx.Swapchain, image uint32, wait gfx.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Presents++
	s := sc.(*Swapchain)
	if int(image) >= len(s.images) {
		d.violate("presented image %d of %d", image, len(s.images))
	} else {
		if !s.acquired[image] {
			d.violate("presented image %d that was not acquired", image)
		}
		delete(s.acquired, image)
	}
	if wait != nil {
		w := wait.(*Semaphore)
		if !w.signaled {
			d.violate("present waits on a semaphore nothing will signal")
		}
		w.signaled = false
	}
	if len(d.presentErrs) > 0 {
		err := d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
		return err
	}
	return nil
}

// WaitIdle implements gfx.Device. It blocks forever while the GPU is held
// with work queued.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.WaitIdles++
	for len(d.queue) > 0 || d.busy {
		d.idle.Wait()
	}
	return nil
}

// Destroy implements gfx.Device. Objects still alive are reported
// as violations.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for obj, kind := range d.live {
		d.violate("%s %p alive at device destruction", kind, obj)
	}
	close(d.quit)
}

// Fence is a fake gfx.Fence.
type Fence struct {
	dev     *Device
	done    chan struct{}
	pending bool
}

func (f *Fence) isSignaled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// signal must be called with the device lock held.
func (f *Fence) signal() {
	f.pending = false
	if !f.isSignaled() {
		close(f.done)
	}
}

// Signaled reports whether the fence is currently signaled.
func (f *Fence) Signaled() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.isSignaled()
}

// Wait implements gfx.Fence.
func (f *Fence) Wait(timeout uint64) error {
	f.dev.mu.Lock()
	done := f.done
	f.dev.mu.Unlock()
	if timeout == gfx.WaitForever {
		<-done
		return nil
	}
	t := time.NewTimer(time.Duration(timeout))
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return gfx.ErrTimeout
	}
}

// Reset implements gfx.Fence.
func (f *Fence) Reset() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.pending {
		f.dev.violate("reset a fence that has pending work")
	}
	if f.isSignaled() {
		f.done = make(chan struct{})
	}
	return nil
}

// Destroy implements gfx.Fence.
func (f *Fence) Destroy() {
	f.dev.release(f)
}

// Semaphore is a fake gfx.Semaphore.
type Semaphore struct {
	dev      *Device
	signaled bool
}

// Destroy implements gfx.Semaphore.
func (s *Semaphore) Destroy() {
	s.dev.release(s)
}
