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

package rpc

import (
	"context"

	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"

	"github.com/croncats/croncatd/config"
)

// Signer is the transacting per-call client handed to pool callbacks.
type Signer struct {
	client       *Client
	contractAddr string
}

// NewSigner connects a signing client to one endpoint.
func NewSigner(cfg *config.ChainConfig, remote, contractAddr string, key cryptotypes.PrivKey) (*Signer, error) {
	if contractAddr == "" {
		contractAddr = cfg.FactoryAddress
	}
	client, err := NewClient(cfg, remote, key)
	if err != nil {
		return nil, err
	}
	return &Signer{client: client, contractAddr: contractAddr}, nil
}

// Address returns the signer's bech32 account address.
func (s *Signer) Address() string { return s.client.Address() }

// ExecuteContract executes msg against an explicit contract address.
func (s *Signer) ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*TxResponse, error) {
	return s.client.ExecuteContract(ctx, contractAddr, msg)
}

// Execute executes msg against the signer's default contract.
func (s *Signer) Execute(ctx context.Context, msg interface{}) (*TxResponse, error) {
	return s.client.ExecuteContract(ctx, s.contractAddr, msg)
}

// ExecuteBatch commits all batch messages in one atomic transaction.
func (s *Signer) ExecuteBatch(ctx context.Context, batch []BatchMsg) (*TxResponse, error) {
	return s.client.ExecuteBatch(ctx, batch)
}

// QueryContract lets execute flows read state without a second client.
func (s *Signer) QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error {
	return s.client.QueryContract(ctx, contractAddr, msg, out)
}

// SendFunds transfers native funds from the signer account.
func (s *Signer) SendFunds(ctx context.Context, to, denom string, amount uint64) (*TxResponse, error) {
	return s.client.SendFunds(ctx, to, denom, amount)
}
