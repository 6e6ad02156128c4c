// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core drives frames on a gfx.Device. It owns the presentation
// surface, the ring of frame slots, the immediate submission channel and
// the deletion queues that keep resources alive until the GPU is done
// with them.
package core

import (
	"errors"

	"github.com/devblok/aurora/gfx"
	log "github.com/sirupsen/logrus"
)

// ErrFrameSkipped is returned by StartFrame when no frame was produced,
// because the window is minimized or the surface had to be rebuilt.
var ErrFrameSkipped = errors.New("core: frame skipped")

// DeviceContext bundles what every subsystem needs to talk to the device.
// It is created once and shared by pointer.
type DeviceContext struct {
	Device gfx.Device
	Log    log.FieldLogger

	// WaitTimeout is the fence wait timeout in nanoseconds.
	WaitTimeout uint64
}

// NewDeviceContext creates a device context using the renderer configuration.
// A nil logger falls back to the standard logrus logger.
func NewDeviceContext(dev gfx.Device, logger log.FieldLogger, cfg RendererConfiguration) *DeviceContext {
	if logger == nil {
		logger = log.StandardLogger()
	}
	timeout := gfx.WaitForever
	if cfg.FenceTimeout > 0 {
		timeout = uint64(cfg.FenceTimeout.Nanoseconds())
	}
	return &DeviceContext{
		Device:      dev,
		Log:         logger,
		WaitTimeout: timeout,
	}
}

// Renderer records draw work into a frame.
type Renderer interface {
	// Render records commands into frame.Commands. It must not submit them.
	Render(frame *Frame) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(frame *Frame) error

// Render calls f.
func (f RendererFunc) Render(frame *Frame) error {
	return f(frame)
}
