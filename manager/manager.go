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

// Package manager submits proxy-call batches and reward withdrawals to the
// croncat manager contract.
package manager

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/rpc"
)

// ChainClient is the slice of the rpc pool the manager module needs.
type ChainClient interface {
	ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*rpc.TxResponse, error)
	ExecuteBatch(ctx context.Context, batch []rpc.BatchMsg) (*rpc.TxResponse, error)
}

// Manager executes tasks against one manager contract deployment.
type Manager struct {
	client       ChainClient
	contractAddr string
}

// New builds a manager module targeting the resolved manager address.
func New(client ChainClient, contractAddr string) *Manager {
	return &Manager{client: client, contractAddr: contractAddr}
}

// ContractAddr returns the manager contract address.
func (m *Manager) ContractAddr() string { return m.contractAddr }

// ProxyCall executes a single task; a nil hash lets the contract pick the
// agent's next scheduled task.
func (m *Manager) ProxyCall(ctx context.Context, taskHash *string) (*rpc.TxResponse, error) {
	return m.client.ExecuteContract(ctx, m.contractAddr, contracts.NewProxyCall(taskHash))
}

// ProxyCallBatch submits count proxy calls for scheduled tasks in one
// atomic transaction.
func (m *Manager) ProxyCallBatch(ctx context.Context, count int) (*rpc.TxResponse, error) {
	if count <= 0 {
		return nil, errors.New("proxy call batch needs at least one task")
	}
	msg, err := json.Marshal(contracts.NewProxyCall(nil))
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode proxy_call")
	}
	batch := make([]rpc.BatchMsg, count)
	for i := range batch {
		batch[i] = rpc.BatchMsg{ContractAddr: m.contractAddr, Msg: msg}
	}
	return m.client.ExecuteBatch(ctx, batch)
}

// ProxyCallEventedBatch submits one proxy call per ready task hash in one
// atomic transaction.
func (m *Manager) ProxyCallEventedBatch(ctx context.Context, taskHashes []string) (*rpc.TxResponse, error) {
	if len(taskHashes) == 0 {
		return nil, errors.New("evented batch needs at least one task hash")
	}
	batch := make([]rpc.BatchMsg, 0, len(taskHashes))
	for i := range taskHashes {
		msg, err := json.Marshal(contracts.NewProxyCall(&taskHashes[i]))
		if err != nil {
			return nil, errors.Wrap(err, "cannot encode proxy_call")
		}
		batch = append(batch, rpc.BatchMsg{ContractAddr: m.contractAddr, Msg: msg})
	}
	return m.client.ExecuteBatch(ctx, batch)
}

// WithdrawReward claims the agent's accumulated reward.
func (m *Manager) WithdrawReward(ctx context.Context) (*rpc.TxResponse, error) {
	return m.client.ExecuteContract(ctx, m.contractAddr, contracts.NewAgentWithdraw())
}
