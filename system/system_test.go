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

package system

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croncats/croncatd/agent"
	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/rpc"
)

func testSystem() *System {
	s := New(&config.ChainConfig{ChainID: "test-1"}, rpc.NewRegistry(), "")
	s.retryEvery = 5 * time.Millisecond
	return s
}

func TestSupervise_RestartsTransientFailures(t *testing.T) {
	s := testSystem()

	attempts := 0
	err := s.supervise(context.Background(), "flaky", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("ws disconnect")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSupervise_TerminalErrorsAreNotRetried(t *testing.T) {
	s := testSystem()

	attempts := 0
	err := s.supervise(context.Background(), "doomed", func(ctx context.Context) error {
		attempts++
		return agent.ErrInsufficientBalance
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrInsufficientBalance)
	assert.Equal(t, 1, attempts)
}

func TestSupervise_ChainTerminalStringsAreNotRetried(t *testing.T) {
	s := testSystem()

	attempts := 0
	err := s.supervise(context.Background(), "doomed", func(ctx context.Context) error {
		attempts++
		return errors.New("query failed: agent not registered")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestSupervise_ContextCancellationIsClean(t *testing.T) {
	s := testSystem()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.supervise(ctx, "cancelled", func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestJitteredConstant_Bounds(t *testing.T) {
	b := newJitteredConstant(3 * time.Second)
	for i := 0; i < 100; i++ {
		next := b.NextBackOff()
		assert.GreaterOrEqual(t, next, 3*time.Second)
		assert.Less(t, next, 4500*time.Millisecond)
	}
}

func TestIsTerminalClassification(t *testing.T) {
	assert.True(t, isTerminal(agent.ErrAgentUnregistered))
	assert.True(t, isTerminal(errors.Wrap(agent.ErrInsufficientBalance, "loop")))
	assert.True(t, isTerminal(errors.New("rpc: account not found")))
	assert.False(t, isTerminal(errors.New("connection reset by peer")))
}
