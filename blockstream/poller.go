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
	"context"
	"time"

	tmtypes "github.com/tendermint/tendermint/types"
)

// blockFetcher is the slice of the rpc pool the poller needs.
type blockFetcher interface {
	LatestBlock(ctx context.Context) (*tmtypes.Block, error)
}

// Poller observes chain tips by HTTP polling and publishes them into the
// feed. Between polls it sleeps the BlockPID estimate so the next request
// lands just after the next block.
type Poller struct {
	fetcher  blockFetcher
	feed     *Feed
	interval time.Duration
	pid      *BlockPID
}

// NewPoller builds a block poller with the configured poll interval.
func NewPoller(fetcher blockFetcher, feed *Feed, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		feed:     feed,
		interval: interval,
		pid:      NewBlockPID(),
	}
}

// Run polls until ctx is cancelled. A failed or timed-out poll sleeps the
// full interval and retries; the supervisor owns crash restarts.
func (p *Poller) Run(ctx context.Context) error {
	for {
		sleep := p.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) time.Duration {
	callCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	tmBlock, err := p.fetcher.LatestBlock(callCtx)
	if err != nil {
		logger.Debug("Failed to poll latest block", "err", err)
		return p.interval
	}

	block := FromTendermint(tmBlock)
	blockMillis := block.Time.UnixMilli()

	// Seed a synthetic previous sample on the first observation so the
	// first delta is reasonable instead of the window being single-entry.
	if p.pid.CurrentHeight() == 0 && block.Height > 0 {
		p.pid.Seed(block.Height-1, blockMillis-p.interval.Milliseconds())
	}

	now := time.Now().UnixMilli()
	sleep, variance := p.pid.GetNext(now, block.Height, blockMillis, p.interval)
	logger.Trace("Polled block", "chain", block.ChainID, "height", block.Height, "nextIn", sleep, "variance", variance)

	p.feed.Publish(block)
	return sleep
}
