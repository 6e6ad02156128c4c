package core_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/aurora/core"
)

func TestDeletionQueueReverseOrder(t *testing.T) {
	c := qt.New(t)

	var (
		q     core.DeletionQueue
		order []int
	)
	for i := 0; i < 4; i++ {
		i := i
		q.PushFunc(func() { order = append(order, i) })
	}
	c.Assert(q.Len(), qt.Equals, 4)

	q.Flush()
	c.Assert(order, qt.DeepEquals, []int{3, 2, 1, 0})
	c.Assert(q.Len(), qt.Equals, 0)

	q.Flush()
	c.Assert(order, qt.HasLen, 4)
}

func TestDeletionQueueIgnoresNil(t *testing.T) {
	c := qt.New(t)

	var q core.DeletionQueue
	q.Push(nil)
	q.PushFunc(nil)
	c.Assert(q.Len(), qt.Equals, 0)
	q.Flush()
}

func TestDeletionQueuePushDuringFlush(t *testing.T) {
	c := qt.New(t)

	var (
		q     core.DeletionQueue
		order []string
	)
	q.PushFunc(func() { order = append(order, "outer") })
	q.PushFunc(func() {
		order = append(order, "parent")
		q.PushFunc(func() { order = append(order, "child") })
	})

	q.Flush()
	c.Assert(order, qt.DeepEquals, []string{"parent", "child", "outer"})
	c.Assert(q.Len(), qt.Equals, 0)
}
