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

// Package factory resolves croncat contract addresses through the on-chain
// factory registry, cached on disk with a TTL.
package factory

import (
	"context"

	"github.com/pkg/errors"

	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/log"
	"github.com/croncats/croncatd/store"
)

var logger = log.NewModuleLogger(log.Factory)

// defaultPageLimit is the page size for the listing queries.
const defaultPageLimit = 100

// Names of the croncat contracts indexed by the factory.
const (
	ContractManager = "manager"
	ContractTasks   = "tasks"
	ContractAgents  = "agents"
)

// ChainClient is the slice of the rpc pool the factory needs.
type ChainClient interface {
	QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error
}

// Factory loads and caches the factory contract's version registry.
type Factory struct {
	client       ChainClient
	contractAddr string
	store        *store.FactoryStore
}

// New builds a factory module targeting the chain's factory contract.
func New(client ChainClient, contractAddr string, st *store.FactoryStore) *Factory {
	return &Factory{client: client, contractAddr: contractAddr, store: st}
}

// Load ensures the cache holds unexpired factory data, fetching
// LatestContracts from chain when needed. It reports whether a reload
// happened.
func (f *Factory) Load(ctx context.Context) (bool, error) {
	if f.store.Get() != nil {
		return false, nil
	}

	entries, err := f.LatestContracts(ctx)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, errors.New("factory returned no contracts")
	}

	latest := make(map[string]contracts.ContractVersion, len(entries))
	versions := make(map[string]contracts.ContractMetadata, len(entries))
	for _, entry := range entries {
		latest[entry.ContractName] = entry.Metadata.Version
		versions[store.VersionKey(entry.ContractName, entry.Metadata.Version)] = entry.Metadata
	}
	if err := f.store.Insert(latest, versions); err != nil {
		return false, err
	}
	logger.Info("Factory cache reloaded", "contracts", len(entries))
	return true, nil
}

// GetContractAddr resolves the deployed address of the latest version of a
// named contract from the cache.
func (f *Factory) GetContractAddr(name string) (string, error) {
	entry := f.store.Get()
	if entry == nil {
		return "", errors.New("factory cache is empty, call Load first")
	}
	version, ok := entry.Latest[name]
	if !ok {
		return "", errors.Errorf("no version found for contract %q", name)
	}
	metadata, ok := entry.Versions[store.VersionKey(name, version)]
	if !ok {
		return "", errors.Errorf("no metadata found for contract %q version %v", name, version)
	}
	return metadata.ContractAddr, nil
}

// LatestContracts queries the newest version of every factory entry.
func (f *Factory) LatestContracts(ctx context.Context) ([]contracts.EntryResponse, error) {
	var entries []contracts.EntryResponse
	query := contracts.FactoryQuery{LatestContracts: &contracts.Empty{}}
	if err := f.client.QueryContract(ctx, f.contractAddr, query, &entries); err != nil {
		return nil, errors.Wrap(err, "cannot fetch latest contracts")
	}
	return entries, nil
}

// LatestContract queries the newest metadata of one named contract.
func (f *Factory) LatestContract(ctx context.Context, name string) (*contracts.ContractMetadata, error) {
	var metadata contracts.ContractMetadata
	query := contracts.FactoryQuery{LatestContract: &contracts.NameQuery{ContractName: name}}
	if err := f.client.QueryContract(ctx, f.contractAddr, query, &metadata); err != nil {
		return nil, errors.Wrapf(err, "cannot fetch latest contract %q", name)
	}
	return &metadata, nil
}

// VersionsByContractName pages through every version of one contract.
func (f *Factory) VersionsByContractName(ctx context.Context, name string) ([]contracts.ContractMetadata, error) {
	var all []contracts.ContractMetadata
	for from := uint64(0); ; from += defaultPageLimit {
		var page []contracts.ContractMetadata
		query := contracts.FactoryQuery{VersionsByName: &contracts.VersionsQuery{
			ContractName: name,
			FromIndex:    u64ptr(from),
			Limit:        u64ptr(defaultPageLimit),
		}}
		if err := f.client.QueryContract(ctx, f.contractAddr, query, &page); err != nil {
			return nil, errors.Wrapf(err, "cannot fetch versions of %q", name)
		}
		all = append(all, page...)
		if len(page) < defaultPageLimit {
			return all, nil
		}
	}
}

// ContractNames pages through every contract name the factory knows.
func (f *Factory) ContractNames(ctx context.Context) ([]string, error) {
	var all []string
	for from := uint64(0); ; from += defaultPageLimit {
		var page []string
		query := contracts.FactoryQuery{ContractNames: contracts.NewPageQuery(from, defaultPageLimit)}
		if err := f.client.QueryContract(ctx, f.contractAddr, query, &page); err != nil {
			return nil, errors.Wrap(err, "cannot fetch contract names")
		}
		all = append(all, page...)
		if len(page) < defaultPageLimit {
			return all, nil
		}
	}
}

// AllEntries pages through every (name, version) entry of the factory.
func (f *Factory) AllEntries(ctx context.Context) ([]contracts.EntryResponse, error) {
	var all []contracts.EntryResponse
	for from := uint64(0); ; from += defaultPageLimit {
		var page []contracts.EntryResponse
		query := contracts.FactoryQuery{AllEntries: contracts.NewPageQuery(from, defaultPageLimit)}
		if err := f.client.QueryContract(ctx, f.contractAddr, query, &page); err != nil {
			return nil, errors.Wrap(err, "cannot fetch factory entries")
		}
		all = append(all, page...)
		if len(page) < defaultPageLimit {
			return all, nil
		}
	}
}

func u64ptr(v uint64) *contracts.Uint64 {
	u := contracts.Uint64(v)
	return &u
}
