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

package agent

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/pkg/errors"

	"github.com/croncats/croncatd/blockstream"
	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/rpc"
)

// statusCheckInterval is the block cadence of the reconcile loop. Status
// changes happen off-process; a coarse poll is sufficient and cheap.
const statusCheckInterval = 10

// agentOps is the agent-contract surface the loop needs; satisfied by
// *Agent.
type agentOps interface {
	AccountID() string
	Get(ctx context.Context, accountID string) (*contracts.AgentResponse, error)
	CheckIn(ctx context.Context) (*rpc.TxResponse, error)
	NativeBalance(ctx context.Context, accountID string) (sdk.Coin, error)
}

// rewardWithdrawer is the manager-contract surface the loop needs;
// satisfied by *manager.Manager.
type rewardWithdrawer interface {
	WithdrawReward(ctx context.Context) (*rpc.TxResponse, error)
}

// StatusLoop reconciles the shared agent status with chain every nth block
// and enforces the configured balance threshold.
type StatusLoop struct {
	cfg     *config.ChainConfig
	agent   agentOps
	rewards rewardWithdrawer
	status  *StatusCell
	counter *blockstream.IntervalCounter

	lastHeight uint64
}

// NewStatusLoop wires the reconcile loop.
func NewStatusLoop(cfg *config.ChainConfig, ag agentOps, rewards rewardWithdrawer, status *StatusCell) *StatusLoop {
	return &StatusLoop{
		cfg:     cfg,
		agent:   ag,
		rewards: rewards,
		status:  status,
		counter: blockstream.NewIntervalCounter(statusCheckInterval),
	}
}

// Run consumes the block stream until ctx is cancelled or a terminal
// condition (ErrAgentUnregistered, ErrInsufficientBalance) surfaces.
func (l *StatusLoop) Run(ctx context.Context, blocks <-chan blockstream.Block) error {
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
			if err := l.checkOnce(ctx, block); err != nil {
				return err
			}
		}
	}
}

func (l *StatusLoop) checkOnce(ctx context.Context, block blockstream.Block) error {
	accountID := l.agent.AccountID()
	logger.Info("Checking agent status", "height", block.Height, "account", accountID)

	record, err := l.fetchRecord(ctx, accountID)
	if err != nil {
		return err
	}
	l.status.Set(record.Status)
	logger.Info("Agent status", "status", record.Status)

	if record.Status == contracts.AgentStatusNominated {
		res, err := l.agent.CheckIn(ctx)
		if err != nil {
			return errors.Wrap(err, "check-in failed")
		}
		logger.Info("Checked in agent", "tx", res.TxHash)

		record, err = l.fetchRecord(ctx, accountID)
		if err != nil {
			return err
		}
		l.status.Set(record.Status)
		logger.Info("Agent status", "status", record.Status)
	}

	if l.cfg.HasBalanceThreshold() {
		return l.enforceThreshold(ctx, accountID, record)
	}
	return nil
}

func (l *StatusLoop) fetchRecord(ctx context.Context, accountID string) (*contracts.AgentInfo, error) {
	resp, err := l.agent.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if resp.Agent == nil {
		return nil, ErrAgentUnregistered
	}
	return resp.Agent, nil
}

// enforceThreshold tops the account up from unclaimed rewards when the
// native balance drops below the configured minimum. When rewards cannot
// cover it the loop returns ErrInsufficientBalance so the daemon dies and
// an operator refills the account.
func (l *StatusLoop) enforceThreshold(ctx context.Context, accountID string, record *contracts.AgentInfo) error {
	threshold := sdk.NewIntFromUint64(l.cfg.BalanceThreshold)

	balance, err := l.agent.NativeBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if balance.Amount.GTE(threshold) {
		return nil
	}

	reward := record.Balance
	if reward.IsNil() || !reward.IsPositive() {
		logger.Error("Balance below threshold and no reward to withdraw",
			"balance", balance.Amount, "threshold", threshold, "denom", balance.Denom)
		return ErrInsufficientBalance
	}

	logger.Info("Balance below threshold, withdrawing agent reward", "reward", reward)
	res, err := l.rewards.WithdrawReward(ctx)
	if err != nil {
		return errors.Wrap(err, "reward withdrawal failed")
	}
	logger.Info("Withdrew agent reward", "tx", res.TxHash)

	balance, err = l.agent.NativeBalance(ctx, accountID)
	if err != nil {
		return err
	}
	if balance.Amount.LT(threshold) {
		logger.Error("Balance still below threshold after withdrawal",
			"balance", balance.Amount, "threshold", threshold, "denom", balance.Denom)
		return ErrInsufficientBalance
	}
	return nil
}
