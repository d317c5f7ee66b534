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
	"sort"
	"time"
)

// pidWindowCap bounds the rolling sample window.
const pidWindowCap = 5

// BlockPID estimates the time until the next block from a bounded window of
// (height, timestamp) samples, so the poller wakes just after the block
// lands instead of drifting past it. All arithmetic is in milliseconds.
type BlockPID struct {
	heights map[uint64]int64 // height → timestamp (ms)

	// current is the most recent (height, timestamp) observation.
	currentHeight uint64
	currentTime   int64
}

// NewBlockPID returns an empty estimator.
func NewBlockPID() *BlockPID {
	return &BlockPID{heights: make(map[uint64]int64)}
}

// Seed inserts a sample without recomputing, used for the synthetic
// previous block on the first poll.
func (p *BlockPID) Seed(height uint64, tsMillis int64) {
	p.heights[height] = tsMillis
}

// CurrentHeight returns the latest observed height, zero before any sample.
func (p *BlockPID) CurrentHeight() uint64 { return p.currentHeight }

// ComputeAvgs returns the average block duration and the variance of the
// per-sample durations. Durations are anchored at the oldest sample and
// amortized over skipped heights, so one late observation cannot swing the
// estimate; the variance is the truncated mean offset from the first
// duration, reported as an absolute value.
func (p *BlockPID) ComputeAvgs() (time.Duration, int64) {
	if len(p.heights) < 2 {
		return 0, 0
	}

	keys := make([]uint64, 0, len(p.heights))
	for h := range p.heights {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	anchorHeight, anchorTime := keys[0], p.heights[keys[0]]
	diffs := make([]int64, 0, len(keys)-1)
	for _, h := range keys[1:] {
		gap := int64(h - anchorHeight)
		if gap <= 0 {
			gap = 1
		}
		diffs = append(diffs, (p.heights[h]-anchorTime)/gap)
	}

	var sumDur int64
	for _, d := range diffs {
		sumDur += d
	}
	avgDur := sumDur / int64(len(diffs))

	var variance int64
	if len(diffs) > 1 {
		base := diffs[0]
		var sumVar int64
		for _, d := range diffs[1:] {
			sumVar += d - base
		}
		variance = sumVar / int64(len(diffs)-1)
		if variance < 0 {
			variance = -variance
		}
	}

	return time.Duration(avgDur) * time.Millisecond, variance
}

// GetNext records a fresh sample and returns how long to sleep so the next
// wake lands just after the following block, plus the current variance in
// milliseconds. With fewer than two samples the fallback is returned
// unchanged. The result is never negative: when the target instant already
// passed, the sleep saturates at min(avg, now − target).
func (p *BlockPID) GetNext(nowMillis int64, height uint64, tsMillis int64, fallback time.Duration) (time.Duration, int64) {
	p.heights[height] = tsMillis
	p.currentHeight = height
	p.currentTime = tsMillis

	if len(p.heights) < 2 {
		return fallback, 0
	}

	avgDur, variance := p.ComputeAvgs()
	p.trim()

	target := tsMillis + avgDur.Milliseconds() + variance
	sleep := target - nowMillis
	if sleep < 0 {
		over := nowMillis - target
		if avg := avgDur.Milliseconds(); avg < over {
			sleep = avg
		} else {
			sleep = over
		}
	}
	return time.Duration(sleep) * time.Millisecond, variance
}

// trim evicts the oldest samples beyond the window cap. Eviction runs after
// computation so a freshly seeded window is measured in full.
func (p *BlockPID) trim() {
	for len(p.heights) > pidWindowCap {
		oldest := uint64(0)
		for h := range p.heights {
			if oldest == 0 || h < oldest {
				oldest = h
			}
		}
		delete(p.heights, oldest)
	}
}
