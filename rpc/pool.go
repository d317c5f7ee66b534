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
	"math/rand"
	"sync"
	"time"

	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/log"
)

var logger = log.NewModuleLogger(log.RPC)

// raceTimeout bounds the initial qualification query per endpoint.
const raceTimeout = 5 * time.Second

var (
	disqualifiedCounter = metrics.NewRegisteredCounter("rpc/endpoints/disqualified", nil)
	callFailureCounter  = metrics.NewRegisteredCounter("rpc/calls/failed", nil)
)

// Endpoint is one candidate RPC source. Disqualification is a one-way flip:
// a source never recovers within the process lifetime.
type Endpoint struct {
	Provider     string
	URL          string
	Disqualified bool
}

// endpointSet is the mutable per-chain pool shared by every loop.
type endpointSet struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint // keyed by provider label
}

func (s *endpointSet) healthy() []*Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Endpoint
	for _, ep := range s.endpoints {
		if !ep.Disqualified {
			out = append(out, &Endpoint{Provider: ep.Provider, URL: ep.URL})
		}
	}
	return out
}

func (s *endpointSet) disqualify(provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[provider]; ok && !ep.Disqualified {
		ep.Disqualified = true
		disqualifiedCounter.Inc(1)
	}
}

// Registry holds one endpoint set per chain. The daemon constructs exactly
// one; an explicit holder (rather than a package global) keeps tests
// hermetic.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*endpointSet
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*endpointSet)}
}

// poolFor races the chain's endpoints on first use and returns the shared
// set afterwards.
func (r *Registry) poolFor(cfg *config.ChainConfig) *endpointSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.pools[cfg.ChainID]; ok {
		return set
	}
	set := raceEndpoints(cfg)
	r.pools[cfg.ChainID] = set
	return set
}

// raceEndpoints qualifies every distinct endpoint with a cheap latest-block
// query. Losers join the pool disqualified; they are still listed so the
// operator sees the full roster in logs.
func raceEndpoints(cfg *config.ChainConfig) *endpointSet {
	logger.Info("Picking best sources for chain", "chain", cfg.ChainID)

	set := &endpointSet{endpoints: make(map[string]*Endpoint)}
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for _, ep := range cfg.RPCEndpoints {
		if ep.URL == "" || seen[ep.URL] {
			continue
		}
		seen[ep.URL] = true

		entry := &Endpoint{Provider: ep.Provider, URL: ep.URL}
		set.endpoints[ep.Provider] = entry

		wg.Add(1)
		go func(entry *Endpoint) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), raceTimeout)
			defer cancel()

			client, err := NewClient(cfg, entry.URL, nil)
			if err == nil {
				_, err = client.LatestBlock(ctx)
			}
			if err != nil {
				logger.Debug("Endpoint lost the qualification race", "provider", entry.Provider, "url", entry.URL, "err", err)
				set.disqualify(entry.Provider)
			}
		}(entry)
	}
	wg.Wait()

	var available []string
	for _, ep := range set.healthy() {
		available = append(available, ep.Provider)
	}
	logger.Info("Sources available", "chain", cfg.ChainID, "count", len(available), "providers", available)
	return set
}

// ClientService routes calls through the chain's endpoint pool. One call
// picks one healthy endpoint at random, builds a fresh per-call client and
// runs the callback; operational failures disqualify the endpoint and the
// call moves on.
type ClientService struct {
	cfg          *config.ChainConfig
	key          cryptotypes.PrivKey
	address      string
	contractAddr string
	set          *endpointSet
	rng          *rand.Rand
	rngMu        sync.Mutex
}

// NewClientService builds a pool-backed service. contractAddr defaults to
// the chain's factory when empty; key may be nil for query-only services.
func NewClientService(registry *Registry, cfg *config.ChainConfig, key cryptotypes.PrivKey, contractAddr string) (*ClientService, error) {
	if contractAddr == "" {
		contractAddr = cfg.FactoryAddress
	}
	s := &ClientService{
		cfg:          cfg,
		key:          key,
		contractAddr: contractAddr,
		set:          registry.poolFor(cfg),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if key != nil {
		addr, err := Bech32Address(key, cfg.Bech32Prefix)
		if err != nil {
			return nil, err
		}
		s.address = addr
	}
	return s, nil
}

// AccountID returns the bech32 address of the service key.
func (s *ClientService) AccountID() string { return s.address }

// ContractAddr returns the default contract this service targets.
func (s *ClientService) ContractAddr() string { return s.contractAddr }

// PickEndpoint returns one healthy endpoint, for callers that hold a
// long-lived connection (the WebSocket block source).
func (s *ClientService) PickEndpoint() (Endpoint, error) {
	healthy := s.set.healthy()
	if len(healthy) == 0 {
		return Endpoint{}, ErrNoValidSources
	}
	return *healthy[s.intn(len(healthy))], nil
}

// Disqualify marks an endpoint bad on behalf of a long-lived consumer.
func (s *ClientService) Disqualify(provider string) {
	s.set.disqualify(provider)
}

func (s *ClientService) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// Query runs fn with a fresh Querier, retrying across endpoints.
func (s *ClientService) Query(ctx context.Context, fn func(ctx context.Context, q *Querier) error) error {
	return s.call(ctx, func(ctx context.Context, remote string) error {
		querier, err := NewQuerier(s.cfg, remote, s.contractAddr)
		if err != nil {
			return err
		}
		return fn(ctx, querier)
	})
}

// Execute runs fn with a fresh Signer, retrying across endpoints.
func (s *ClientService) Execute(ctx context.Context, fn func(ctx context.Context, sg *Signer) error) error {
	if s.key == nil {
		return errors.New("client service has no signing key")
	}
	return s.call(ctx, func(ctx context.Context, remote string) error {
		signer, err := NewSigner(s.cfg, remote, s.contractAddr, s.key)
		if err != nil {
			return err
		}
		return fn(ctx, signer)
	})
}

// call is the endpoint-selection loop shared by Query and Execute.
func (s *ClientService) call(ctx context.Context, fn func(ctx context.Context, remote string) error) error {
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		healthy := s.set.healthy()
		if len(healthy) == 0 {
			if lastErr != nil {
				return lastErr
			}
			return ErrNoValidSources
		}
		ep := healthy[s.intn(len(healthy))]

		err := fn(ctx, ep.URL)
		if err == nil {
			return nil
		}
		callFailureCounter.Inc(1)

		switch {
		case IsTerminal(err):
			// No endpoint answers this differently; surface it untouched.
			logger.Debug("Terminal chain error", "provider", ep.Provider, "err", err)
			return err
		case isContractNotFound(err):
			// The endpoint may simply lag behind; try another without blame.
			logger.Debug("Contract not found on endpoint", "provider", ep.Provider, "err", err)
			lastErr = err
			continue
		default:
			logger.Debug("Endpoint call failed, disqualifying", "provider", ep.Provider, "url", ep.URL, "err", err)
			s.set.disqualify(ep.Provider)
			lastErr = err
			continue
		}
	}
}

// QueryContract runs one wasm smart query via the pool.
func (s *ClientService) QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error {
	return s.Query(ctx, func(ctx context.Context, q *Querier) error {
		return q.QueryContract(ctx, contractAddr, msg, out)
	})
}

// ExecuteContract commits one contract execution via the pool.
func (s *ClientService) ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*TxResponse, error) {
	var res *TxResponse
	err := s.Execute(ctx, func(ctx context.Context, sg *Signer) error {
		var err error
		res, err = sg.ExecuteContract(ctx, contractAddr, msg)
		return err
	})
	return res, err
}

// ExecuteBatch commits one atomic multi-message transaction via the pool.
func (s *ClientService) ExecuteBatch(ctx context.Context, batch []BatchMsg) (*TxResponse, error) {
	var res *TxResponse
	err := s.Execute(ctx, func(ctx context.Context, sg *Signer) error {
		var err error
		res, err = sg.ExecuteBatch(ctx, batch)
		return err
	})
	return res, err
}

// LatestBlock fetches the chain tip via the pool.
func (s *ClientService) LatestBlock(ctx context.Context) (*tmtypes.Block, error) {
	var block *tmtypes.Block
	err := s.Query(ctx, func(ctx context.Context, q *Querier) error {
		var err error
		block, err = q.LatestBlock(ctx)
		return err
	})
	return block, err
}

// QueryBalance returns an address's native balance via the pool.
func (s *ClientService) QueryBalance(ctx context.Context, addr string) (sdk.Coin, error) {
	var coin sdk.Coin
	err := s.Query(ctx, func(ctx context.Context, q *Querier) error {
		var err error
		coin, err = q.QueryBalance(ctx, addr)
		return err
	})
	return coin, err
}

// SendFunds transfers native funds via the pool.
func (s *ClientService) SendFunds(ctx context.Context, to, denom string, amount uint64) (*TxResponse, error) {
	var res *TxResponse
	err := s.Execute(ctx, func(ctx context.Context, sg *Signer) error {
		var err error
		res, err = sg.SendFunds(ctx, to, denom, amount)
		return err
	})
	return res, err
}
