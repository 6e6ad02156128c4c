// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import "github.com/devblok/aurora/gfx"

// DeletionQueue holds release actions that run later, in reverse order
// of registration. The zero value is ready to use.
type DeletionQueue struct {
	entries []gfx.Releasable
}

// Push registers an entry.
func (q *DeletionQueue) Push(entry gfx.Releasable) {
	if entry == nil {
		return
	}
	q.entries = append(q.entries, entry)
}

// PushFunc registers a function as an entry.
func (q *DeletionQueue) PushFunc(f func()) {
	if f == nil {
		return
	}
	q.Push(gfx.ReleaseFunc(f))
}

// Len returns the number of pending entries.
func (q *DeletionQueue) Len() int {
	return len(q.entries)
}

// Flush releases every pending entry, newest first, and empties the queue.
// Entries pushed while flushing are released by the same call.
func (q *DeletionQueue) Flush() {
	for len(q.entries) > 0 {
		last := len(q.entries) - 1
		entry := q.entries[last]
		q.entries[last] = nil
		q.entries = q.entries[:last]
		entry.Release()
	}
}
