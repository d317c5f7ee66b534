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

	"github.com/pkg/errors"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/rpc"
)

const (
	// wsSubscriber identifies our subscription on the node.
	wsSubscriber = "croncatd"
	// wsRecvTimeout restarts the subscription when no block arrives in time.
	wsRecvTimeout = 30 * time.Second
)

// endpointPicker is the slice of the rpc pool the subscriber needs.
type endpointPicker interface {
	PickEndpoint() (rpc.Endpoint, error)
	Disqualify(provider string)
}

// WSSource subscribes to NewBlock events over the node WebSocket and
// publishes them into the feed.
type WSSource struct {
	cfg  *config.ChainConfig
	pool endpointPicker
	feed *Feed
}

// NewWSSource builds a WebSocket block source fed from the endpoint pool.
func NewWSSource(cfg *config.ChainConfig, pool endpointPicker, feed *Feed) *WSSource {
	return &WSSource{cfg: cfg, pool: pool, feed: feed}
}

// Run connects to one healthy endpoint and streams blocks until ctx is
// cancelled or the subscription dies; the supervisor restarts it with
// backoff. A failing endpoint is disqualified before returning.
func (w *WSSource) Run(ctx context.Context) error {
	ep, err := w.pool.PickEndpoint()
	if err != nil {
		return err
	}

	client, err := rpc.NewClient(w.cfg, ep.URL, nil)
	if err != nil {
		w.pool.Disqualify(ep.Provider)
		return err
	}
	tm := client.Tendermint()

	if err := tm.Start(); err != nil {
		w.pool.Disqualify(ep.Provider)
		return errors.Wrapf(err, "cannot open websocket to %s", ep.URL)
	}
	defer func() {
		_ = tm.UnsubscribeAll(context.Background(), wsSubscriber)
		_ = tm.Stop()
	}()

	sub, err := tm.Subscribe(ctx, wsSubscriber, tmtypes.EventQueryNewBlock.String(), FeedChanSize)
	if err != nil {
		w.pool.Disqualify(ep.Provider)
		return errors.Wrap(err, "cannot subscribe to NewBlock events")
	}
	logger.Info("Subscribed to NewBlock events", "provider", ep.Provider)

	timer := time.NewTimer(wsRecvTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wsRecvTimeout)

		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			// No block for a while: the subscription may be dead even though
			// the socket looks healthy. Re-subscribe on the same endpoint.
			logger.Warn("No block received in time, restarting subscription", "provider", ep.Provider, "timeout", wsRecvTimeout)
			if err := tm.UnsubscribeAll(ctx, wsSubscriber); err != nil {
				return errors.Wrap(err, "cannot reset subscription")
			}
			sub, err = tm.Subscribe(ctx, wsSubscriber, tmtypes.EventQueryNewBlock.String(), FeedChanSize)
			if err != nil {
				w.pool.Disqualify(ep.Provider)
				return errors.Wrap(err, "cannot resubscribe to NewBlock events")
			}

		case ev, ok := <-sub:
			if !ok {
				return errors.New("block subscription closed")
			}
			newBlock, ok := ev.Data.(tmtypes.EventDataNewBlock)
			if !ok || newBlock.Block == nil {
				logger.Warn("Unexpected event on block subscription", "event", ev.Query)
				continue
			}
			block := FromTendermint(newBlock.Block)
			logger.Trace("Received block", "chain", block.ChainID, "height", block.Height)
			w.feed.Publish(block)
		}
	}
}
