// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stdio

import (
	"context"
	"sync"

	"github.com/AleutianAI/ternbridge/services/bridge/watch"
)

// job is an editor message or a template change.
type job struct {
	msg    Message
	change *watch.Change
}

// inbox is an unbounded FIFO. push never blocks, so the reader keeps
// routing replies while the worker waits on a menu.
type inbox struct {
	mu     sync.Mutex
	items  []job
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (q *inbox) push(j job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()
	q.wake()
}

// close lets pop drain what is queued and then report false.
func (q *inbox) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *inbox) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks for the next job. It returns false once the inbox is closed
// and empty, and ctx.Err() when ctx ends first.
func (q *inbox) pop(ctx context.Context) (job, bool, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			j := q.items[0]
			q.items[0] = job{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return j, true, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return job{}, false, nil
		}
		select {
		case <-ctx.Done():
			return job{}, false, ctx.Err()
		case <-q.signal:
		}
	}
}
