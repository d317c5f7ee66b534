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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_FansOutToEverySubscriber(t *testing.T) {
	feed := NewFeed()
	a := feed.Subscribe()
	b := feed.Subscribe()

	feed.Publish(Block{Height: 7, ChainID: "test-1"})

	assert.Equal(t, uint64(7), (<-a).Height)
	assert.Equal(t, uint64(7), (<-b).Height)
}

func TestFeed_DropsNewestForSlowSubscriber(t *testing.T) {
	feed := NewFeed()
	slow := feed.Subscribe()
	fast := feed.Subscribe()

	// Overflow the slow subscriber without draining it.
	for h := uint64(1); h <= FeedChanSize+5; h++ {
		feed.Publish(Block{Height: h})
		// Keep the fast subscriber drained; it must see every block.
		assert.Equal(t, h, (<-fast).Height)
	}

	// The slow subscriber holds the oldest FeedChanSize blocks; the newest
	// five were dropped for it.
	require.Len(t, slow, FeedChanSize)
	assert.Equal(t, uint64(1), (<-slow).Height)
}

func TestFeed_CloseTerminatesSubscribers(t *testing.T) {
	feed := NewFeed()
	sub := feed.Subscribe()
	feed.Close()

	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}

	// Publishing after close is a no-op, not a panic.
	feed.Publish(Block{Height: 1})

	// Subscribing after close yields a closed channel.
	_, open := <-feed.Subscribe()
	assert.False(t, open)
}

func TestIntervalCounter(t *testing.T) {
	c := NewIntervalCounter(10)
	assert.False(t, c.AtInterval())

	for i := 0; i < 9; i++ {
		c.Tick()
	}
	assert.False(t, c.AtInterval())
	c.Tick()
	assert.True(t, c.AtInterval())

	c.Tick()
	assert.False(t, c.AtInterval())
}
