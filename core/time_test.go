package core_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/aurora/core"
)

func TestTime(t *testing.T) {
	c := qt.New(t)

	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 100, EventPollDelay: 5})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 100)
	c.Assert(tm.AverageFrameTime(), qt.Equals, time.Duration(0))

	<-tm.FpsTicker().C
	<-tm.EventTicker().C
	delta := tm.Tick()
	c.Assert(delta > 0, qt.IsTrue)
	tm.Tick()
	c.Assert(tm.Frames(), qt.Equals, uint64(2))
	c.Assert(tm.AverageFrameTime() > 0, qt.IsTrue)
}

func TestTimeUnlimited(t *testing.T) {
	c := qt.New(t)

	tm := core.NewTime(core.TimeConfiguration{})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 0)
	<-tm.FpsTicker().C
}
