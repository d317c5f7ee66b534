// Copyright 2023 The croncatd Authors
// This file is part of the croncatd library.
//
// The croncatd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The croncatd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the croncatd library. If not, see <http://www.gnu.org/licenses/>.

package blockstream

import "sync"

// FeedChanSize is the buffer of every subscriber channel. When a subscriber
// falls this far behind, the newest block is dropped for that subscriber
// only; producers never block.
const FeedChanSize = 32

// Feed fans observed blocks out to every subscribed loop.
type Feed struct {
	mu     sync.Mutex
	subs   []chan Block
	closed bool
}

// NewFeed creates an empty block feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe registers a new consumer channel.
func (f *Feed) Subscribe() <-chan Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan Block, FeedChanSize)
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Publish delivers a block to every subscriber without blocking. A full
// subscriber misses this block; the next delivery catches it up.
func (f *Feed) Publish(b Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- b:
		default:
			logger.Debug("Dropping block for slow consumer", "height", b.Height)
		}
	}
}

// Close terminates every subscriber channel. Publish becomes a no-op.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
