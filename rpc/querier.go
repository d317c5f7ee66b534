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

	sdk "github.com/cosmos/cosmos-sdk/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/config"
)

// Querier is the read-only per-call client handed to pool callbacks. The
// default contract address targets the chain's croncat factory.
type Querier struct {
	client       *Client
	contractAddr string
}

// NewQuerier connects a query client to one endpoint.
func NewQuerier(cfg *config.ChainConfig, remote, contractAddr string) (*Querier, error) {
	if contractAddr == "" {
		contractAddr = cfg.FactoryAddress
	}
	client, err := NewClient(cfg, remote, nil)
	if err != nil {
		return nil, err
	}
	return &Querier{client: client, contractAddr: contractAddr}, nil
}

// QueryContract queries an explicit contract address.
func (q *Querier) QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error {
	return q.client.QueryContract(ctx, contractAddr, msg, out)
}

// Query queries the querier's default contract.
func (q *Querier) Query(ctx context.Context, msg, out interface{}) error {
	return q.client.QueryContract(ctx, q.contractAddr, msg, out)
}

// QueryBalance returns addr's native balance in the fee denom.
func (q *Querier) QueryBalance(ctx context.Context, addr string) (sdk.Coin, error) {
	return q.client.QueryBalance(ctx, addr)
}

// LatestBlock fetches the chain tip from this endpoint.
func (q *Querier) LatestBlock(ctx context.Context) (*tmtypes.Block, error) {
	return q.client.LatestBlock(ctx)
}
