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

	"github.com/rcrowley/go-metrics"

	"github.com/croncats/croncatd/agent"
	"github.com/croncats/croncatd/blockstream"
	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/rpc"
)

var (
	eventedBatchCounter = metrics.NewRegisteredCounter("tasks/evented/batches", nil)
	eventedFailCounter  = metrics.NewRegisteredCounter("tasks/evented/failures", nil)
)

// eventedSource is the cache surface the evented loop needs; satisfied by
// *Tasks.
type eventedSource interface {
	Unbounded() []contracts.TaskInfo
	Ranged(index uint64) []contracts.TaskInfo
	Stats() (unbounded, ranged uint64)
	ValidateQueries(ctx context.Context, sets []QuerySet) ([]string, error)
}

// eventedCaller is the manager surface the evented loop needs; satisfied by
// *manager.Manager.
type eventedCaller interface {
	ProxyCallEventedBatch(ctx context.Context, taskHashes []string) (*rpc.TxResponse, error)
}

// EventedLoop re-evaluates predicate-gated tasks each block and submits one
// batch with every task whose predicates held.
type EventedLoop struct {
	chainID string
	status  *agent.StatusCell
	source  eventedSource
	mgr     eventedCaller
	monitor pinger

	lastHeight uint64
}

// NewEventedLoop wires the evented execution loop.
func NewEventedLoop(chainID string, status *agent.StatusCell, source eventedSource, mgr eventedCaller, monitor pinger) *EventedLoop {
	return &EventedLoop{
		chainID: chainID,
		status:  status,
		source:  source,
		mgr:     mgr,
		monitor: monitor,
	}
}

// Run consumes the block stream until ctx is cancelled, skipping heights a
// second source already delivered.
func (l *EventedLoop) Run(ctx context.Context, blocks <-chan blockstream.Block) error {
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

			if l.status.Get() != contracts.AgentStatusActive {
				continue
			}
			if err := l.runBlock(ctx, block); err != nil {
				return err
			}
		}
	}
}

func (l *EventedLoop) runBlock(ctx context.Context, block blockstream.Block) error {
	sets := l.candidates(block)
	if len(sets) == 0 {
		return nil
	}

	ready, err := l.source.ValidateQueries(ctx, sets)
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return nil
	}

	unbounded, ranged := l.source.Stats()
	logger.Info("Evented tasks ready",
		"chain", l.chainID, "height", block.Height,
		"ready", len(ready), "unbounded", unbounded, "ranged", ranged)

	failed := false
	res, err := l.mgr.ProxyCallEventedBatch(ctx, ready)
	if err != nil {
		failed = true
		eventedFailCounter.Inc(1)
		logger.Error("Evented proxy call batch failed", "chain", l.chainID, "height", block.Height, "err", err)
	} else {
		eventedBatchCounter.Inc(1)
		logger.Info("Finished evented task batch", "tx", res.TxHash, "height", res.Height, "events", len(res.Events))
	}

	if !failed {
		l.monitor.Ping(ctx)
	}
	return nil
}

// candidates assembles the block's query sets in priority order: ranged by
// height, ranged by time, then unbounded. Tasks outside their boundary or
// without queries are skipped; duplicates keep their first (highest
// priority) slot.
func (l *EventedLoop) candidates(block blockstream.Block) []QuerySet {
	timeNanos := block.UnixNanos()

	var sets []QuerySet
	seen := make(map[string]bool)

	appendTasks := func(tasks []contracts.TaskInfo) {
		for _, t := range tasks {
			if len(t.Queries) == 0 || seen[t.TaskHash] {
				continue
			}
			if !t.Boundary.Contains(block.Height, timeNanos) {
				continue
			}
			seen[t.TaskHash] = true
			sets = append(sets, QuerySet{TaskHash: t.TaskHash, Queries: t.Queries})
		}
	}

	appendTasks(l.source.Ranged(block.Height))
	appendTasks(l.source.Ranged(block.UnixSeconds()))
	appendTasks(l.source.Unbounded())
	return sets
}
