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
	scheduledBatchCounter = metrics.NewRegisteredCounter("tasks/scheduled/batches", nil)
	scheduledFailCounter  = metrics.NewRegisteredCounter("tasks/scheduled/failures", nil)
)

// agentTasksQuerier is the agent-contract surface the scheduled loop needs;
// satisfied by *agent.Agent.
type agentTasksQuerier interface {
	AccountID() string
	GetTasks(ctx context.Context, accountID string) (*contracts.AgentTaskResponse, error)
}

// batchCaller is the manager surface the scheduled loop needs; satisfied by
// *manager.Manager.
type batchCaller interface {
	ProxyCallBatch(ctx context.Context, count int) (*rpc.TxResponse, error)
}

// statsSource reports cached evented totals for the per-block log line.
type statsSource interface {
	Stats() (unbounded, ranged uint64)
}

// pinger notifies the uptime monitor after a healthy iteration.
type pinger interface {
	Ping(ctx context.Context)
}

// ScheduledLoop submits one proxy-call batch per block for the agent's due
// scheduled tasks.
type ScheduledLoop struct {
	chainID string
	status  *agent.StatusCell
	agent   agentTasksQuerier
	mgr     batchCaller
	stats   statsSource
	monitor pinger

	lastHeight uint64
}

// NewScheduledLoop wires the scheduled execution loop.
func NewScheduledLoop(chainID string, status *agent.StatusCell, ag agentTasksQuerier, mgr batchCaller, stats statsSource, monitor pinger) *ScheduledLoop {
	return &ScheduledLoop{
		chainID: chainID,
		status:  status,
		agent:   ag,
		mgr:     mgr,
		stats:   stats,
		monitor: monitor,
	}
}

// Run consumes the block stream until ctx is cancelled. Both block sources
// feed the stream, so already-seen heights are skipped.
func (l *ScheduledLoop) Run(ctx context.Context, blocks <-chan blockstream.Block) error {
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

// runBlock submits at most one batched transaction. The loop never retries
// within a block; a dropped block is picked up by the next slot.
func (l *ScheduledLoop) runBlock(ctx context.Context, block blockstream.Block) error {
	resp, err := l.agent.GetTasks(ctx, l.agent.AccountID())
	if err != nil {
		return err
	}

	taskCount := int(resp.Stats.Total())
	unbounded, ranged := l.stats.Stats()
	logger.Info("Block tasks",
		"chain", l.chainID, "height", block.Height,
		"block", resp.Stats.NumBlockTasks, "cron", resp.Stats.NumCronTasks,
		"unbounded", unbounded, "ranged", ranged)

	failed := false
	if taskCount > 0 {
		res, err := l.mgr.ProxyCallBatch(ctx, taskCount)
		if err != nil {
			failed = true
			scheduledFailCounter.Inc(1)
			logger.Error("Proxy call batch failed", "chain", l.chainID, "height", block.Height, "err", err)
		} else {
			scheduledBatchCounter.Inc(1)
			logger.Info("Finished task batch", "tx", res.TxHash, "height", res.Height, "events", len(res.Events))
		}
	} else {
		logger.Info("No tasks for block", "chain", l.chainID, "height", block.Height)
	}

	if !failed {
		l.monitor.Ping(ctx)
	}
	return nil
}
