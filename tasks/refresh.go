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

package tasks

import (
	"context"

	"github.com/croncats/croncatd/blockstream"
)

// refreshCheckInterval is the block cadence of cache refresh checks. The
// cache TTL does the real gating; the counter only bounds how often we look.
const refreshCheckInterval = 50

// cacheLoader is satisfied by *Tasks.
type cacheLoader interface {
	Load(ctx context.Context) (bool, error)
}

// RefreshLoop reloads the evented-task cache when its TTL lapses.
type RefreshLoop struct {
	chainID string
	loader  cacheLoader
	counter *blockstream.IntervalCounter

	lastHeight uint64
}

// NewRefreshLoop wires the cache refresh loop.
func NewRefreshLoop(chainID string, loader cacheLoader) *RefreshLoop {
	return &RefreshLoop{
		chainID: chainID,
		loader:  loader,
		counter: blockstream.NewIntervalCounter(refreshCheckInterval),
	}
}

// Run consumes the block stream until ctx is cancelled.
func (l *RefreshLoop) Run(ctx context.Context, blocks <-chan blockstream.Block) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			if block.Height <= l.lastHeight {
				continue
			}
			l.lastHeight = block.Height
			l.counter.Tick()
			if !l.counter.AtInterval() {
				continue
			}
			reloaded, err := l.loader.Load(ctx)
			if err != nil {
				return err
			}
			if reloaded {
				logger.Info("Tasks cache reloaded", "chain", l.chainID)
			}
		}
	}
}
