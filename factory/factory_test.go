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

package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/store"
)

type fakeChain struct {
	handler func(contractAddr string, msg []byte) (interface{}, error)
	calls   int
}

func (f *fakeChain) QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error {
	f.calls++
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	res, err := f.handler(contractAddr, raw)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

func entryFixture(name string, major, minor uint8, addr string) contracts.EntryResponse {
	return contracts.EntryResponse{
		ContractName: name,
		Metadata: contracts.ContractMetadata{
			Version:      contracts.ContractVersion{major, minor},
			ContractAddr: addr,
		},
	}
}

func latestContractsChain(t *testing.T, entries []contracts.EntryResponse) *fakeChain {
	return &fakeChain{handler: func(addr string, msg []byte) (interface{}, error) {
		var envelope struct {
			LatestContracts *contracts.Empty `json:"latest_contracts"`
		}
		require.NoError(t, json.Unmarshal(msg, &envelope))
		if envelope.LatestContracts == nil {
			return nil, fmt.Errorf("unexpected query %s", msg)
		}
		return entries, nil
	}}
}

func TestFactory_LoadAndResolve(t *testing.T) {
	entries := []contracts.EntryResponse{
		entryFixture("manager", 0, 1, "juno1manageraddr"),
		entryFixture("tasks", 0, 1, "juno1tasksaddr"),
		entryFixture("agents", 0, 1, "juno1agentsaddr"),
	}
	chain := latestContractsChain(t, entries)

	st, err := store.NewFactoryStore(t.TempDir())
	require.NoError(t, err)
	f := New(chain, "juno1factoryaddr", st)

	reloaded, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, reloaded)

	addr, err := f.GetContractAddr(ContractManager)
	require.NoError(t, err)
	assert.Equal(t, "juno1manageraddr", addr)

	// Resolution is deterministic within one cache lifetime: a second
	// lookup returns the same address without touching chain.
	before := chain.calls
	again, err := f.GetContractAddr(ContractManager)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, before, chain.calls)

	_, err = f.GetContractAddr("nonexistent")
	assert.Error(t, err)
}

func TestFactory_LoadUsesUnexpiredCache(t *testing.T) {
	entries := []contracts.EntryResponse{entryFixture("manager", 0, 1, "juno1manageraddr")}
	chain := latestContractsChain(t, entries)

	dir := t.TempDir()
	st, err := store.NewFactoryStore(dir)
	require.NoError(t, err)
	f := New(chain, "juno1factoryaddr", st)
	_, err = f.Load(context.Background())
	require.NoError(t, err)

	// A second factory over the same directory rides the persisted cache.
	st2, err := store.NewFactoryStore(dir)
	require.NoError(t, err)
	chain2 := &fakeChain{handler: func(addr string, msg []byte) (interface{}, error) {
		return nil, fmt.Errorf("chain must not be queried")
	}}
	f2 := New(chain2, "juno1factoryaddr", st2)

	reloaded, err := f2.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, reloaded)

	addr, err := f2.GetContractAddr(ContractManager)
	require.NoError(t, err)
	assert.Equal(t, "juno1manageraddr", addr)
}

func TestFactory_EmptyFactoryIsAnError(t *testing.T) {
	chain := latestContractsChain(t, []contracts.EntryResponse{})
	st, err := store.NewFactoryStore(t.TempDir())
	require.NoError(t, err)

	_, err = New(chain, "juno1factoryaddr", st).Load(context.Background())
	assert.Error(t, err)
}

func TestFactory_AllEntriesPaginates(t *testing.T) {
	all := make([]contracts.EntryResponse, 130)
	for i := range all {
		all[i] = entryFixture(fmt.Sprintf("contract-%03d", i), 0, 1, fmt.Sprintf("juno1addr%03d", i))
	}

	chain := &fakeChain{handler: func(addr string, msg []byte) (interface{}, error) {
		var envelope struct {
			AllEntries *struct {
				FromIndex *contracts.Uint64 `json:"from_index"`
				Limit     *contracts.Uint64 `json:"limit"`
			} `json:"all_entries"`
		}
		require.NoError(t, json.Unmarshal(msg, &envelope))
		require.NotNil(t, envelope.AllEntries)

		from := int(*envelope.AllEntries.FromIndex)
		end := from + defaultPageLimit
		if end > len(all) {
			end = len(all)
		}
		if from >= end {
			return []contracts.EntryResponse{}, nil
		}
		return all[from:end], nil
	}}

	st, err := store.NewFactoryStore(t.TempDir())
	require.NoError(t, err)
	got, err := New(chain, "juno1factoryaddr", st).AllEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 130)
	assert.Equal(t, 2, chain.calls)
}
