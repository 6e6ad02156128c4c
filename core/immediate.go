// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"sync"

	"github.com/devblok/aurora/gfx"
	"github.com/pkg/errors"
)

// Immediate runs one-off command recordings to completion, outside of the
// frame ring. Calls are serialised.
type Immediate struct {
	ctx *DeviceContext

	mu       sync.Mutex
	commands gfx.CommandBuffer
	fence    gfx.Fence
}

// NewImmediate creates the command buffer and fence of the channel.
func NewImmediate(ctx *DeviceContext) (*Immediate, error) {
	cb, err := ctx.Device.NewCommandBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "immediate: command buffer")
	}
	fence, err := ctx.Device.NewFence(false)
	if err != nil {
		cb.Destroy()
		return nil, errors.Wrap(err, "immediate: fence")
	}
	return &Immediate{
		ctx:      ctx,
		commands: cb,
		fence:    fence,
	}, nil
}

// Run records with record, submits and blocks until the GPU has executed
// the commands. An error from record aborts before anything is submitted.
func (im *Immediate) Run(record func(cb gfx.CommandBuffer) error) error {
	im.mu.Lock()
	defer im.mu.Unlock()

	if err := im.fence.Reset(); err != nil {
		return errors.Wrap(err, "immediate: reset fence")
	}
	if err := im.commands.Reset(); err != nil {
		return errors.Wrap(err, "immediate: reset command buffer")
	}
	if err := im.commands.Begin(); err != nil {
		return errors.Wrap(err, "immediate: begin")
	}
	if err := record(im.commands); err != nil {
		return errors.Wrap(err, "immediate: record")
	}
	if err := im.commands.End(); err != nil {
		return errors.Wrap(err, "immediate: end")
	}
	if err := im.ctx.Device.Submit(im.commands, nil, nil, im.fence); err != nil {
		return errors.Wrap(err, "immediate: submit")
	}
	if err := im.fence.Wait(im.ctx.WaitTimeout); err != nil {
		return errors.Wrap(err, "immediate: wait")
	}
	return nil
}

// Release destroys the channel. No submission may be in flight.
func (im *Immediate) Release() {
	im.fence.Destroy()
	im.commands.Destroy()
}
