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

// Package agent tracks the daemon's registration with the croncat agents
// contract and keeps its eligibility alive.
package agent

import (
	"context"
	"sync"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/pkg/errors"

	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/log"
	"github.com/croncats/croncatd/rpc"
)

var logger = log.NewModuleLogger(log.Agent)

// ErrAgentUnregistered is fatal: the chain no longer knows this account.
var ErrAgentUnregistered = errors.New("agent not registered")

// ErrInsufficientBalance terminates the daemon with exit code 1; a stale
// agent that cannot pay for transactions only pollutes the network.
var ErrInsufficientBalance = errors.New("agent balance below configured threshold")

// ChainClient is the slice of the rpc pool the agent module needs.
type ChainClient interface {
	AccountID() string
	QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error
	ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*rpc.TxResponse, error)
	QueryBalance(ctx context.Context, addr string) (sdk.Coin, error)
}

// StatusCell is the shared agent status snapshot read by every task loop.
type StatusCell struct {
	mu     sync.Mutex
	status contracts.AgentStatus
}

// NewStatusCell seeds the cell with the status read from chain at startup.
func NewStatusCell(initial contracts.AgentStatus) *StatusCell {
	return &StatusCell{status: initial}
}

// Get copies the current status.
func (c *StatusCell) Get() contracts.AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Set replaces the current status.
func (c *StatusCell) Set(s contracts.AgentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// Agent wraps the agents contract for one account.
type Agent struct {
	client       ChainClient
	contractAddr string
}

// New builds an agent module targeting the resolved agents contract.
func New(client ChainClient, contractAddr string) *Agent {
	return &Agent{client: client, contractAddr: contractAddr}
}

// AccountID returns the agent's bech32 account address.
func (a *Agent) AccountID() string { return a.client.AccountID() }

// Register registers the account as an agent, optionally routing rewards to
// another account.
func (a *Agent) Register(ctx context.Context, payableAccountID *string) (*rpc.TxResponse, error) {
	msg := contracts.AgentExecute{RegisterAgent: &contracts.RegisterAgentMsg{PayableAccountID: payableAccountID}}
	return a.client.ExecuteContract(ctx, a.contractAddr, msg)
}

// Unregister removes the account from the agent set.
func (a *Agent) Unregister(ctx context.Context) (*rpc.TxResponse, error) {
	msg := contracts.AgentExecute{UnregisterAgent: &contracts.UnregisterAgentMsg{}}
	return a.client.ExecuteContract(ctx, a.contractAddr, msg)
}

// Update changes the reward recipient.
func (a *Agent) Update(ctx context.Context, payableAccountID string) (*rpc.TxResponse, error) {
	msg := contracts.AgentExecute{UpdateAgent: &contracts.UpdateAgentMsg{PayableAccountID: payableAccountID}}
	return a.client.ExecuteContract(ctx, a.contractAddr, msg)
}

// CheckIn accepts a nomination, promoting the agent towards Active.
func (a *Agent) CheckIn(ctx context.Context) (*rpc.TxResponse, error) {
	msg := contracts.AgentExecute{CheckInAgent: &contracts.Empty{}}
	return a.client.ExecuteContract(ctx, a.contractAddr, msg)
}

// Get fetches the agent record; the inner Agent is nil for unregistered
// accounts.
func (a *Agent) Get(ctx context.Context, accountID string) (*contracts.AgentResponse, error) {
	var resp contracts.AgentResponse
	query := contracts.AgentQuery{GetAgent: &contracts.AccountQuery{AccountID: accountID}}
	if err := a.client.QueryContract(ctx, a.contractAddr, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status resolves the current on-chain status of the account.
func (a *Agent) Status(ctx context.Context, accountID string) (contracts.AgentStatus, error) {
	resp, err := a.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if resp.Agent == nil {
		return "", ErrAgentUnregistered
	}
	return resp.Agent.Status, nil
}

// GetTasks fetches the scheduled task counts assigned to the account.
func (a *Agent) GetTasks(ctx context.Context, accountID string) (*contracts.AgentTaskResponse, error) {
	var resp contracts.AgentTaskResponse
	query := contracts.AgentQuery{GetAgentTasks: &contracts.AccountQuery{AccountID: accountID}}
	if err := a.client.QueryContract(ctx, a.contractAddr, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NativeBalance returns the account's balance in the chain fee denom.
func (a *Agent) NativeBalance(ctx context.Context, accountID string) (sdk.Coin, error) {
	return a.client.QueryBalance(ctx, accountID)
}
