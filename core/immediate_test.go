package core_test

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/aurora/core"
	"github.com/devblok/aurora/gfx"
)

func newTestImmediate(c *qt.C, ctx *core.DeviceContext) *core.Immediate {
	imm, err := core.NewImmediate(ctx)
	c.Assert(err, qt.IsNil)
	c.Cleanup(imm.Release)
	return imm
}

func TestImmediateCompletesBeforeReturn(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newTestContext(c)
	imm := newTestImmediate(c, ctx)

	src, err := core.CreateBuffer(ctx, gfx.MemoryCPUOnly, 4, gfx.BufferUsageTransferSrc)
	c.Assert(err, qt.IsNil)
	defer src.Release()
	dst, err := core.CreateBuffer(ctx, gfx.MemoryGPUToCPU, 4, gfx.BufferUsageTransferDst)
	c.Assert(err, qt.IsNil)
	defer dst.Release()

	copy(src.Mapped(), []byte{1, 2, 3, 4})
	dev.Hold()
	go dev.Resume()

	err = imm.Run(func(cb gfx.CommandBuffer) error {
		cb.CopyBuffer(src.Resource(), dst.Resource(), gfx.BufferCopy{Size: 4})
		return nil
	})
	c.Assert(err, qt.IsNil)
	c.Assert(dev.Pending(), qt.Equals, 0)
	c.Assert(dst.Mapped(), qt.DeepEquals, []byte{1, 2, 3, 4})
}

func TestImmediateRecordErrorAborts(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newTestContext(c)
	imm := newTestImmediate(c, ctx)

	errRecord := errors.New("cannot record")
	err := imm.Run(func(cb gfx.CommandBuffer) error {
		return errRecord
	})
	c.Assert(errors.Cause(err), qt.Equals, errRecord)
	c.Assert(err, qt.ErrorMatches, "immediate: record: cannot record")
	c.Assert(dev.Stats().Submits, qt.Equals, 0)

	c.Assert(imm.Run(func(cb gfx.CommandBuffer) error { return nil }), qt.IsNil)
	c.Assert(dev.Stats().Submits, qt.Equals, 1)
}

func TestImmediateSerialisesCallers(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newTestContext(c)
	imm := newTestImmediate(c, ctx)

	const callers = 8
	var (
		wg   sync.WaitGroup
		errs = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- imm.Run(func(cb gfx.CommandBuffer) error { return nil })
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		c.Assert(err, qt.IsNil)
	}
	c.Assert(dev.Stats().Submits, qt.Equals, callers)
}
