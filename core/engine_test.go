package core_test

import (
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/aurora/core"
	"github.com/devblok/aurora/gfx"
	"github.com/devblok/aurora/gfx/gfxtest"
)

func testConfig() core.RendererConfiguration {
	cfg := core.DefaultConfiguration().Renderer
	cfg.FenceTimeout = 5 * time.Second
	return cfg
}

type testEngine struct {
	*core.Engine
	dev  *gfxtest.Device
	hook *test.Hook
}

func newTestEngine(c *qt.C) *testEngine {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	dev := gfxtest.NewDevice(gfx.Extent2D{Width: 640, Height: 480})
	ctx := core.NewDeviceContext(dev, logger, testConfig())
	e, err := core.NewEngine(ctx, testConfig())
	c.Assert(err, qt.IsNil)
	te := &testEngine{Engine: e, dev: dev, hook: hook}
	c.Cleanup(func() {
		dev.Resume()
		e.Destroy()
		dev.Destroy()
		c.Check(dev.Violations(), qt.HasLen, 0)
	})
	return te
}

func (e *testEngine) frame(c *qt.C) *core.Frame {
	f, err := e.StartFrame()
	c.Assert(err, qt.IsNil)
	return f
}

func releaseInto(dst *[]uint64, v uint64) gfx.Releasable {
	return gfx.ReleaseFunc(func() {
		*dst = append(*dst, v)
	})
}

func TestNewEngineBuildsSurface(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	c.Assert(e.Surface().Extent(), qt.Equals, gfx.Extent2D{Width: 640, Height: 480})
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(0))
	c.Assert(e.Surface().Len(), qt.Equals, 3)
	c.Assert(e.dev.Stats().Swapchains, qt.Equals, 1)
}

func TestNewEngineRejectsFramesInFlight(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice(gfx.Extent2D{Width: 640, Height: 480})
	defer dev.Destroy()

	cfg := testConfig()
	cfg.FramesInFlight = 3
	_, err := core.NewEngine(core.NewDeviceContext(dev, nil, cfg), cfg)
	c.Assert(err, qt.ErrorMatches, "new engine: 3 frames in flight, only 2 supported")
	c.Assert(dev.Live(), qt.HasLen, 0)
}

func TestNewEngineRollsBackOnFailure(t *testing.T) {
	c := qt.New(t)
	dev := gfxtest.NewDevice(gfx.Extent2D{Width: 640, Height: 480})

	// The swapchain has three images, the second view fails.
	dev.FailAllocationAfter(1)
	_, err := core.NewEngine(core.NewDeviceContext(dev, nil, testConfig()), testConfig())
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfxtest.ErrInjected)
	c.Assert(dev.Live(), qt.HasLen, 0)

	dev.Destroy()
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestFrameSlotsAlternate(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	for n := 0; n < 5; n++ {
		f := e.frame(c)
		c.Assert(f.Number, qt.Equals, uint64(n))
		c.Assert(f.Slot().Index(), qt.Equals, n%core.FramesInFlight)
		c.Assert(e.FinishFrame(f), qt.IsNil)
	}
	c.Assert(e.FrameNumber(), qt.Equals, uint64(5))
	c.Assert(e.dev.Stats().Presents, qt.Equals, 5)
}

func TestDeferredReleaseRunsWhenSlotIsReused(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	var released []uint64
	for n := uint64(0); n < 2; n++ {
		f := e.frame(c)
		f.Defer(releaseInto(&released, n))
		c.Assert(e.FinishFrame(f), qt.IsNil)
	}
	c.Assert(released, qt.HasLen, 0)

	f := e.frame(c)
	c.Assert(f.Slot().Index(), qt.Equals, 0)
	c.Assert(released, qt.DeepEquals, []uint64{0})
	c.Assert(e.FinishFrame(f), qt.IsNil)

	f = e.frame(c)
	c.Assert(released, qt.DeepEquals, []uint64{0, 1})
	c.Assert(e.FinishFrame(f), qt.IsNil)
}

func TestDeferredReleaseFlushedOnDestroy(t *testing.T) {
	c := qt.New(t)
	logger, _ := test.NewNullLogger()
	dev := gfxtest.NewDevice(gfx.Extent2D{Width: 640, Height: 480})
	e, err := core.NewEngine(core.NewDeviceContext(dev, logger, testConfig()), testConfig())
	c.Assert(err, qt.IsNil)

	var released []uint64
	e.Defer(releaseInto(&released, 100))
	f, err := e.StartFrame()
	c.Assert(err, qt.IsNil)
	f.Defer(releaseInto(&released, 1))
	c.Assert(e.FinishFrame(f), qt.IsNil)

	e.Destroy()
	e.Destroy()
	c.Assert(released, qt.DeepEquals, []uint64{100, 1})

	dev.Destroy()
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestStartFrameBlocksOnBusySlot(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.Hold()
	for n := 0; n < 2; n++ {
		f := e.frame(c)
		c.Assert(e.FinishFrame(f), qt.IsNil)
	}
	c.Assert(e.dev.Pending(), qt.Equals, 2)

	type result struct {
		frame *core.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := e.StartFrame()
		done <- result{f, err}
	}()

	select {
	case <-done:
		c.Fatal("frame 2 started before frame 0 finished")
	case <-time.After(50 * time.Millisecond):
	}
	c.Assert(e.Slot(0).Fence().(*gfxtest.Fence).Signaled(), qt.IsFalse)

	e.dev.Resume()
	r := <-done
	c.Assert(r.err, qt.IsNil)
	c.Assert(r.frame.Number, qt.Equals, uint64(2))
	c.Assert(r.frame.Slot().Index(), qt.Equals, 0)
	c.Assert(e.FinishFrame(r.frame), qt.IsNil)
}

func TestMinimizedEngineNeverAcquires(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.NotifyMinimized(true)
	for n := 0; n < 3; n++ {
		_, err := e.StartFrame()
		c.Assert(err, qt.Equals, core.ErrFrameSkipped)
		c.Assert(e.RunFrame(), qt.IsNil)
	}
	c.Assert(e.dev.Stats(), qt.DeepEquals, gfxtest.Stats{Swapchains: 1})

	e.NotifyMinimized(false)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.dev.Stats().Acquires, qt.Equals, 1)
	c.Assert(e.dev.Stats().Presents, qt.Equals, 1)
}

func TestEmptySurfaceSkipsUntilRestored(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.SetSurfaceExtent(gfx.Extent2D{})
	e.NotifyResize()
	_, err := e.StartFrame()
	c.Assert(err, qt.Equals, core.ErrFrameSkipped)
	c.Assert(e.dev.Stats().Acquires, qt.Equals, 0)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(0))

	e.dev.SetSurfaceExtent(gfx.Extent2D{Width: 800, Height: 600})
	f := e.frame(c)
	c.Assert(f.Generation, qt.Equals, uint64(1))
	c.Assert(f.Extent, qt.Equals, gfx.Extent2D{Width: 800, Height: 600})
	c.Assert(e.FinishFrame(f), qt.IsNil)
}

func TestResizeRegeneratesBeforeAcquire(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	c.Assert(e.RunFrame(), qt.IsNil)
	e.dev.SetSurfaceExtent(gfx.Extent2D{Width: 1024, Height: 768})
	e.NotifyResize()

	f := e.frame(c)
	c.Assert(f.Generation, qt.Equals, uint64(1))
	c.Assert(f.Extent, qt.Equals, gfx.Extent2D{Width: 1024, Height: 768})
	c.Assert(e.dev.Stats().WaitIdles, qt.Equals, 1)
	c.Assert(e.FinishFrame(f), qt.IsNil)
}

func TestResizeToUndefinedExtentUsesFallback(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.SetSurfaceExtent(gfx.ExtentUndefined)
	e.NotifyResizeTo(gfx.Extent2D{Width: 320, Height: 200})
	f := e.frame(c)
	c.Assert(f.Extent, qt.Equals, gfx.Extent2D{Width: 320, Height: 200})
	c.Assert(e.FinishFrame(f), qt.IsNil)
}

func TestStaleAcquireRetriesSameSlot(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAcquire(gfx.ErrSurfaceStale)
	_, err := e.StartFrame()
	c.Assert(err, qt.Equals, core.ErrFrameSkipped)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(1))
	c.Assert(e.FrameNumber(), qt.Equals, uint64(0))
	c.Assert(e.Slot(0).Fence().(*gfxtest.Fence).Signaled(), qt.IsTrue)

	f := e.frame(c)
	c.Assert(f.Number, qt.Equals, uint64(0))
	c.Assert(f.Slot().Index(), qt.Equals, 0)
	c.Assert(f.Generation, qt.Equals, uint64(1))
	c.Assert(e.FinishFrame(f), qt.IsNil)
}

func TestRepeatedStaleResultsConverge(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAcquire(gfx.ErrSurfaceStale, gfx.ErrSurfaceStale, gfx.ErrSurfaceStale)
	e.dev.FailPresent(gfx.ErrSurfaceStale)
	e.NotifyResize()

	var generations []uint64
	for n := 0; n < 10 && e.FrameNumber() < 3; n++ {
		c.Assert(e.RunFrame(), qt.IsNil)
		generations = append(generations, e.Surface().Generation())
	}
	c.Assert(e.FrameNumber(), qt.Equals, uint64(3))
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(5))
	for i := 1; i < len(generations); i++ {
		c.Assert(generations[i] >= generations[i-1], qt.IsTrue)
	}
}

func TestSuboptimalAcquireKeepsFrame(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAcquire(gfx.ErrSuboptimal)
	f := e.frame(c)
	c.Assert(f.Generation, qt.Equals, uint64(0))
	c.Assert(e.FinishFrame(f), qt.IsNil)
	c.Assert(e.dev.Stats().Presents, qt.Equals, 1)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(1))
}

func TestStalePresentIsNotAnError(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailPresent(gfx.ErrSuboptimal, gfx.ErrSurfaceStale)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(2))
	c.Assert(e.FrameNumber(), qt.Equals, uint64(2))
}

func TestFatalPresentPropagates(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailPresent(gfxtest.ErrInjected)
	err := e.RunFrame()
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfxtest.ErrInjected)
	c.Assert(e.hook.LastEntry().Level, qt.Equals, logrus.ErrorLevel)
	c.Assert(e.hook.LastEntry().Message, qt.Equals, "present frame")
}

func TestFatalAcquirePropagates(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAcquire(gfx.ErrTimeout)
	_, err := e.StartFrame()
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfx.ErrTimeout)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(0))
}

func TestFatalSubmitPropagates(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	f := e.frame(c)
	e.dev.FailSubmit(gfxtest.ErrInjected)
	err := e.FinishFrame(f)
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfxtest.ErrInjected)
	c.Assert(e.FrameNumber(), qt.Equals, uint64(0))
}

func TestRendererErrorPropagates(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	errBoom := errors.New("boom")
	var calls []string
	err := e.RunFrame(
		core.RendererFunc(func(f *core.Frame) error {
			calls = append(calls, "first")
			return nil
		}),
		core.RendererFunc(func(f *core.Frame) error {
			calls = append(calls, "second")
			return errBoom
		}),
		core.RendererFunc(func(f *core.Frame) error {
			calls = append(calls, "third")
			return nil
		}),
	)
	c.Assert(pkgerrors.Cause(err), qt.Equals, errBoom)
	c.Assert(calls, qt.DeepEquals, []string{"first", "second"})
	c.Assert(e.dev.Stats().Submits, qt.Equals, 0)
}

func TestRendererRecordsIntoFrame(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	var executed []uint64
	for n := 0; n < 3; n++ {
		c.Assert(e.RunFrame(core.RendererFunc(func(f *core.Frame) error {
			number := f.Number
			f.Commands.(*gfxtest.CommandBuffer).Record(func() {
				executed = append(executed, number)
			})
			return nil
		})), qt.IsNil)
	}
	c.Assert(e.Context().Device.WaitIdle(), qt.IsNil)
	c.Assert(executed, qt.DeepEquals, []uint64{0, 1, 2})
}

func TestStaleSurfaceTeardownIsNoop(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	for n := 0; n < 3; n++ {
		e.NotifyResize()
		c.Assert(e.RunFrame(), qt.IsNil)
	}
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(3))
	c.Assert(e.dev.Live()["swapchain"], qt.Equals, 1)
	c.Assert(e.dev.Live()["image view"], qt.Equals, 3)
}

func TestStaleAcquireOnEmptySurfaceWaitsForArea(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.SetSurfaceExtent(gfx.Extent2D{})
	e.dev.FailAcquire(gfx.ErrSurfaceStale)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(0))
	c.Assert(e.dev.Stats().Acquires, qt.Equals, 1)
	c.Assert(e.dev.Stats().Swapchains, qt.Equals, 1)

	e.dev.SetSurfaceExtent(gfx.Extent2D{Width: 640, Height: 480})
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(1))
	c.Assert(e.FrameNumber(), qt.Equals, uint64(1))
	c.Assert(e.dev.Stats().Presents, qt.Equals, 1)
}

func TestStalePresentOnEmptySurfaceWaitsForArea(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	f := e.frame(c)
	e.dev.SetSurfaceExtent(gfx.Extent2D{})
	e.dev.FailPresent(gfx.ErrSurfaceStale)
	c.Assert(e.FinishFrame(f), qt.IsNil)
	c.Assert(e.FrameNumber(), qt.Equals, uint64(1))
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(0))

	_, err := e.StartFrame()
	c.Assert(err, qt.Equals, core.ErrFrameSkipped)
	c.Assert(e.dev.Stats().Acquires, qt.Equals, 1)

	e.dev.SetSurfaceExtent(gfx.Extent2D{Width: 320, Height: 240})
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(1))
	c.Assert(e.Surface().Extent(), qt.Equals, gfx.Extent2D{Width: 320, Height: 240})
	c.Assert(e.dev.Stats().Presents, qt.Equals, 2)
}

func TestFailedRegenerationIsRetried(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAllocationAfter(0)
	e.NotifyResize()
	err := e.RunFrame()
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfxtest.ErrInjected)
	c.Assert(e.Surface().Swapchain(), qt.IsNil)

	e.dev.FailAllocationAfter(-1)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.Surface().Swapchain(), qt.Not(qt.IsNil))
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(2))
	c.Assert(e.dev.Stats().Presents, qt.Equals, 1)
}

func TestFailedStaleRegenerationIsRetried(t *testing.T) {
	c := qt.New(t)
	e := newTestEngine(c)

	e.dev.FailAcquire(gfx.ErrSurfaceStale)
	e.dev.FailAllocationAfter(0)
	_, err := e.StartFrame()
	c.Assert(pkgerrors.Cause(err), qt.Equals, gfxtest.ErrInjected)

	e.dev.FailAllocationAfter(-1)
	c.Assert(e.RunFrame(), qt.IsNil)
	c.Assert(e.FrameNumber(), qt.Equals, uint64(1))
	c.Assert(e.Surface().Generation(), qt.Equals, uint64(2))
}
