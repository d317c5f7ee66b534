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

package manager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croncats/croncatd/rpc"
)

// fakeChain records every execute going through the pool surface.
type fakeChain struct {
	singles []json.RawMessage
	batches [][]rpc.BatchMsg
}

func (f *fakeChain) ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*rpc.TxResponse, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	f.singles = append(f.singles, raw)
	return &rpc.TxResponse{TxHash: "SINGLE"}, nil
}

func (f *fakeChain) ExecuteBatch(ctx context.Context, batch []rpc.BatchMsg) (*rpc.TxResponse, error) {
	f.batches = append(f.batches, batch)
	return &rpc.TxResponse{TxHash: "BATCH"}, nil
}

func TestManager_ProxyCallBatch(t *testing.T) {
	chain := &fakeChain{}
	mgr := New(chain, "juno1manageraddr")

	res, err := mgr.ProxyCallBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "BATCH", res.TxHash)

	// One transaction, three identical proxy_call messages.
	require.Len(t, chain.batches, 1)
	batch := chain.batches[0]
	require.Len(t, batch, 3)
	for _, bm := range batch {
		assert.Equal(t, "juno1manageraddr", bm.ContractAddr)
		assert.JSONEq(t, `{"proxy_call":{"task_hash":null}}`, string(bm.Msg))
	}

	_, err = mgr.ProxyCallBatch(context.Background(), 0)
	assert.Error(t, err)
}

func TestManager_ProxyCallEventedBatch(t *testing.T) {
	chain := &fakeChain{}
	mgr := New(chain, "juno1manageraddr")

	_, err := mgr.ProxyCallEventedBatch(context.Background(), []string{"hash-a", "hash-b"})
	require.NoError(t, err)

	require.Len(t, chain.batches, 1)
	batch := chain.batches[0]
	require.Len(t, batch, 2)
	assert.JSONEq(t, `{"proxy_call":{"task_hash":"hash-a"}}`, string(batch[0].Msg))
	assert.JSONEq(t, `{"proxy_call":{"task_hash":"hash-b"}}`, string(batch[1].Msg))

	_, err = mgr.ProxyCallEventedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestManager_SingleCalls(t *testing.T) {
	chain := &fakeChain{}
	mgr := New(chain, "juno1manageraddr")

	hash := "hash-x"
	_, err := mgr.ProxyCall(context.Background(), &hash)
	require.NoError(t, err)
	_, err = mgr.WithdrawReward(context.Background())
	require.NoError(t, err)

	require.Len(t, chain.singles, 2)
	assert.JSONEq(t, `{"proxy_call":{"task_hash":"hash-x"}}`, string(chain.singles[0]))
	assert.JSONEq(t, `{"agent_withdraw":null}`, string(chain.singles[1]))
}
