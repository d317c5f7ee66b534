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

import "sync/atomic"

// IntervalCounter counts stream deliveries and fires every nth tick. The
// coarse loops (agent status, tasks-cache refresh) key off it.
type IntervalCounter struct {
	count    uint64
	interval uint64
}

// NewIntervalCounter fires every interval ticks.
func NewIntervalCounter(interval uint64) *IntervalCounter {
	return &IntervalCounter{interval: interval}
}

// Tick records one delivery.
func (c *IntervalCounter) Tick() {
	atomic.AddUint64(&c.count, 1)
}

// AtInterval reports whether the current count is a non-zero multiple of
// the interval.
func (c *IntervalCounter) AtInterval() bool {
	n := atomic.LoadUint64(&c.count)
	return n > 0 && n%c.interval == 0
}
