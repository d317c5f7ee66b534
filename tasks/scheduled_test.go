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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croncats/croncatd/agent"
	"github.com/croncats/croncatd/blockstream"
	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/rpc"
)

type fakeAgentTasks struct {
	calls int
	resp  *contracts.AgentTaskResponse
	err   error
}

func (f *fakeAgentTasks) AccountID() string { return "juno1agent" }

func (f *fakeAgentTasks) GetTasks(ctx context.Context, accountID string) (*contracts.AgentTaskResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeBatcher struct {
	counts []int
	hashes [][]string
	err    error
}

func (f *fakeBatcher) ProxyCallBatch(ctx context.Context, count int) (*rpc.TxResponse, error) {
	f.counts = append(f.counts, count)
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.TxResponse{TxHash: "ABC123", Height: 100}, nil
}

func (f *fakeBatcher) ProxyCallEventedBatch(ctx context.Context, taskHashes []string) (*rpc.TxResponse, error) {
	f.hashes = append(f.hashes, taskHashes)
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.TxResponse{TxHash: "DEF456", Height: 100}, nil
}

type fakeStats struct{}

func (fakeStats) Stats() (uint64, uint64) { return 0, 0 }

type fakePinger struct{ pings int }

func (f *fakePinger) Ping(ctx context.Context) { f.pings++ }

func taskStats(block, cron uint64) *contracts.AgentTaskResponse {
	return &contracts.AgentTaskResponse{Stats: contracts.AgentTaskStats{
		NumBlockTasks: contracts.Uint64(block),
		NumCronTasks:  contracts.Uint64(cron),
	}}
}

// runScheduled feeds blocks through a closed channel so Run returns when the
// stream drains.
func runScheduled(t *testing.T, l *ScheduledLoop, blocks ...blockstream.Block) {
	ch := make(chan blockstream.Block, len(blocks))
	for _, b := range blocks {
		ch <- b
	}
	close(ch)
	require.NoError(t, l.Run(context.Background(), ch))
}

func TestScheduledLoop_SubmitsOneBatchPerBlock(t *testing.T) {
	status := agent.NewStatusCell(contracts.AgentStatusActive)
	agents := &fakeAgentTasks{resp: taskStats(2, 1)}
	batcher := &fakeBatcher{}
	pinger := &fakePinger{}
	loop := NewScheduledLoop("test-1", status, agents, batcher, fakeStats{}, pinger)

	runScheduled(t, loop, blockstream.Block{Height: 5, Time: time.Now()})

	// Exactly one batch of three proxy calls.
	require.Equal(t, []int{3}, batcher.counts)
	assert.Equal(t, 1, pinger.pings)
}

func TestScheduledLoop_GatedOnActiveStatus(t *testing.T) {
	for _, status := range []contracts.AgentStatus{contracts.AgentStatusPending, contracts.AgentStatusNominated} {
		agents := &fakeAgentTasks{resp: taskStats(2, 1)}
		batcher := &fakeBatcher{}
		loop := NewScheduledLoop("test-1", agent.NewStatusCell(status), agents, batcher, fakeStats{}, &fakePinger{})

		runScheduled(t, loop, blockstream.Block{Height: 5, Time: time.Now()})

		assert.Zero(t, agents.calls, "status %s must not query tasks", status)
		assert.Empty(t, batcher.counts, "status %s must not submit", status)
	}
}

func TestScheduledLoop_ZeroTasksSkipsBatch(t *testing.T) {
	status := agent.NewStatusCell(contracts.AgentStatusActive)
	batcher := &fakeBatcher{}
	pinger := &fakePinger{}
	loop := NewScheduledLoop("test-1", status, &fakeAgentTasks{resp: taskStats(0, 0)}, batcher, fakeStats{}, pinger)

	runScheduled(t, loop, blockstream.Block{Height: 5, Time: time.Now()})

	assert.Empty(t, batcher.counts)
	// A healthy empty block still pings the monitor.
	assert.Equal(t, 1, pinger.pings)
}

func TestScheduledLoop_FailedBatchSkipsPing(t *testing.T) {
	status := agent.NewStatusCell(contracts.AgentStatusActive)
	batcher := &fakeBatcher{err: errors.New("out of gas")}
	pinger := &fakePinger{}
	loop := NewScheduledLoop("test-1", status, &fakeAgentTasks{resp: taskStats(1, 0)}, batcher, fakeStats{}, pinger)

	runScheduled(t, loop, blockstream.Block{Height: 5, Time: time.Now()})

	assert.Zero(t, pinger.pings)
}

func TestScheduledLoop_DedupesRepeatedHeights(t *testing.T) {
	status := agent.NewStatusCell(contracts.AgentStatusActive)
	agents := &fakeAgentTasks{resp: taskStats(1, 0)}
	batcher := &fakeBatcher{}
	loop := NewScheduledLoop("test-1", status, agents, batcher, fakeStats{}, &fakePinger{})

	// The websocket and polling sources both deliver height 5.
	runScheduled(t, loop,
		blockstream.Block{Height: 5, Time: time.Now()},
		blockstream.Block{Height: 5, Time: time.Now()},
		blockstream.Block{Height: 4, Time: time.Now()},
		blockstream.Block{Height: 6, Time: time.Now()},
	)

	assert.Equal(t, 2, agents.calls, "heights 5 and 6 processed once each")
	assert.Equal(t, []int{1, 1}, batcher.counts)
}

func TestScheduledLoop_PropagatesQueryErrors(t *testing.T) {
	status := agent.NewStatusCell(contracts.AgentStatusActive)
	agents := &fakeAgentTasks{err: errors.New("agent not found")}
	loop := NewScheduledLoop("test-1", status, agents, &fakeBatcher{}, fakeStats{}, &fakePinger{})

	ch := make(chan blockstream.Block, 1)
	ch <- blockstream.Block{Height: 5, Time: time.Now()}
	close(ch)
	err := loop.Run(context.Background(), ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent not found")
}
