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

// Package tasks maintains the evented-task cache and runs the scheduled and
// evented execution loops.
package tasks

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/croncats/croncatd/contracts"
	"github.com/croncats/croncatd/log"
	"github.com/croncats/croncatd/store"
)

var logger = log.NewModuleLogger(log.Tasks)

// pageLimit is the page size for the tasks-contract listing queries.
const pageLimit = 100

// ChainClient is the slice of the rpc pool the tasks module needs.
type ChainClient interface {
	QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error
}

// QuerySet pairs one task hash with the predicates gating it.
type QuerySet struct {
	TaskHash string
	Queries  []contracts.CroncatQuery
}

// Tasks wraps the tasks contract and the local evented cache.
type Tasks struct {
	client       ChainClient
	contractAddr string
	store        *store.EventStore
}

// New builds a tasks module targeting the resolved tasks contract.
func New(client ChainClient, contractAddr string, st *store.EventStore) *Tasks {
	return &Tasks{client: client, contractAddr: contractAddr, store: st}
}

// Load ensures the cache holds unexpired evented tasks, repopulating from
// chain when needed. It reports whether a reload happened.
func (t *Tasks) Load(ctx context.Context) (bool, error) {
	if t.store.Get() != nil {
		return false, nil
	}
	if err := t.loadAllEvented(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// loadAllEvented walks EventedIds and then pages every range key's tasks
// into the store.
func (t *Tasks) loadAllEvented(ctx context.Context) error {
	var rangeKeys []contracts.Uint64
	for from := uint64(0); ; from += pageLimit {
		var page []contracts.Uint64
		query := contracts.TasksQuery{EventedIds: contracts.NewPageQuery(from, pageLimit)}
		if err := t.client.QueryContract(ctx, t.contractAddr, query, &page); err != nil {
			return errors.Wrap(err, "cannot fetch evented ids")
		}
		rangeKeys = append(rangeKeys, page...)
		if len(page) < pageLimit {
			break
		}
	}

	for _, key := range rangeKeys {
		var all []contracts.TaskInfo
		for from := uint64(0); ; from += pageLimit {
			page, err := t.EventedTasks(ctx, uint64(key), from, pageLimit)
			if err != nil {
				return err
			}
			all = append(all, page...)
			if len(page) < pageLimit {
				break
			}
		}
		if err := t.store.Insert(uint64(key), all); err != nil {
			return err
		}
	}
	return nil
}

// EventedTasks fetches one page of evented tasks under a range key.
func (t *Tasks) EventedTasks(ctx context.Context, start, fromIndex, limit uint64) ([]contracts.TaskInfo, error) {
	s, f, l := contracts.Uint64(start), contracts.Uint64(fromIndex), contracts.Uint64(limit)
	var page []contracts.TaskInfo
	query := contracts.TasksQuery{EventedTasks: &contracts.EventedTasksQuery{
		Start:     &s,
		FromIndex: &f,
		Limit:     &l,
	}}
	if err := t.client.QueryContract(ctx, t.contractAddr, query, &page); err != nil {
		return nil, errors.Wrapf(err, "cannot fetch evented tasks at %d", start)
	}
	return page, nil
}

// GetAll pages through every task the contract stores, evented or not.
func (t *Tasks) GetAll(ctx context.Context) ([]contracts.TaskInfo, error) {
	var all []contracts.TaskInfo
	for from := uint64(0); ; from += pageLimit {
		var page []contracts.TaskInfo
		query := contracts.TasksQuery{Tasks: contracts.NewPageQuery(from, pageLimit)}
		if err := t.client.QueryContract(ctx, t.contractAddr, query, &page); err != nil {
			return nil, errors.Wrap(err, "cannot fetch tasks")
		}
		all = append(all, page...)
		if len(page) < pageLimit {
			return all, nil
		}
	}
}

// Unbounded returns the cached always-evaluable tasks.
func (t *Tasks) Unbounded() []contracts.TaskInfo {
	return t.store.EventsByIndex(store.UnboundedIndex)
}

// Ranged returns the cached tasks under one activation index; callers pass
// the current height and the current UNIX-second.
func (t *Tasks) Ranged(index uint64) []contracts.TaskInfo {
	return t.store.EventsByIndex(index)
}

// Stats totals the cached unbounded and ranged tasks.
func (t *Tasks) Stats() (unbounded, ranged uint64) {
	return t.store.Stats()
}

// ValidateQueries re-runs each set's checked predicates against their
// contracts and returns the hashes whose predicates all held. Evaluation
// short-circuits on the first falsy or failed query; a set with no checked
// predicate is not ready — the chain would re-check and reject it anyway.
func (t *Tasks) ValidateQueries(ctx context.Context, sets []QuerySet) ([]string, error) {
	var ready []string

	for _, set := range sets {
		checked := 0
		passed := 0
		for _, q := range set.Queries {
			if !q.CheckResult {
				continue
			}
			checked++

			var resp contracts.QueryResponse
			err := t.client.QueryContract(ctx, q.ContractAddr, json.RawMessage(q.Msg), &resp)
			if err != nil {
				// Most likely the response payload no longer matches; the
				// task is not ready this block.
				logger.Debug("Predicate query failed", "task", set.TaskHash, "contract", q.ContractAddr, "err", err)
				break
			}
			if !resp.Result {
				break
			}
			passed++
		}
		if checked > 0 && passed == checked {
			ready = append(ready, set.TaskHash)
		}
	}
	return ready, nil
}
