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

// Package system supervises the daemon: it wires the block sources, the
// task loops and the caches together, restarts crashed loops with backoff
// and owns orderly shutdown.
package system

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/croncats/croncatd/agent"
	"github.com/croncats/croncatd/blockstream"
	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/factory"
	"github.com/croncats/croncatd/log"
	"github.com/croncats/croncatd/manager"
	"github.com/croncats/croncatd/monitor"
	"github.com/croncats/croncatd/rpc"
	"github.com/croncats/croncatd/store"
	"github.com/croncats/croncatd/tasks"
)

var logger = log.NewModuleLogger(log.System)

const (
	// retryInterval is the fixed restart delay for supervised loops; a
	// jitter of up to half the interval is added per attempt.
	retryInterval = 3 * time.Second
	// maxRetries caps restarts of one supervised loop.
	maxRetries = 1200
)

// System runs the agent daemon for one chain.
type System struct {
	cfg        *config.ChainConfig
	registry   *rpc.Registry
	mnemonic   string
	monitor    *monitor.Monitor
	retryEvery time.Duration
}

// New assembles a daemon for one chain config and agent identity.
func New(cfg *config.ChainConfig, registry *rpc.Registry, mnemonic string) *System {
	return &System{
		cfg:        cfg,
		registry:   registry,
		mnemonic:   mnemonic,
		monitor:    monitor.FromEnv(),
		retryEvery: retryInterval,
	}
}

// Run blocks until ctx is cancelled or a terminal error surfaces. A nil or
// context-cancellation result is a clean shutdown;
// agent.ErrInsufficientBalance maps to exit code 1 at the CLI.
func (s *System) Run(ctx context.Context) error {
	key, err := rpc.DerivePrivKey(s.mnemonic)
	if err != nil {
		return err
	}

	storageDir, err := store.DefaultDir()
	if err != nil {
		return err
	}
	factoryStore, err := store.NewFactoryStore(storageDir)
	if err != nil {
		return err
	}
	eventStore, err := store.NewEventStore(storageDir)
	if err != nil {
		return err
	}

	// The factory seeds every other contract address; resolving it is the
	// first chain I/O and also warms the endpoint pool race.
	factoryClient, err := rpc.NewClientService(s.registry, s.cfg, key, s.cfg.FactoryAddress)
	if err != nil {
		return err
	}
	factoryModule := factory.New(factoryClient, s.cfg.FactoryAddress, factoryStore)
	if _, err := factoryModule.Load(ctx); err != nil {
		return errors.Wrap(err, "cannot load factory cache")
	}

	managerAddr, err := factoryModule.GetContractAddr(factory.ContractManager)
	if err != nil {
		return err
	}
	tasksAddr, err := factoryModule.GetContractAddr(factory.ContractTasks)
	if err != nil {
		return err
	}
	agentsAddr, err := factoryModule.GetContractAddr(factory.ContractAgents)
	if err != nil {
		return err
	}

	managerClient, err := rpc.NewClientService(s.registry, s.cfg, key, managerAddr)
	if err != nil {
		return err
	}
	tasksClient, err := rpc.NewClientService(s.registry, s.cfg, key, tasksAddr)
	if err != nil {
		return err
	}
	agentsClient, err := rpc.NewClientService(s.registry, s.cfg, key, agentsAddr)
	if err != nil {
		return err
	}

	managerModule := manager.New(managerClient, managerAddr)
	tasksModule := tasks.New(tasksClient, tasksAddr, eventStore)
	agentModule := agent.New(agentsClient, agentsAddr)

	initialStatus, err := agentModule.Status(ctx, agentModule.AccountID())
	if err != nil {
		return errors.Wrap(err, "cannot read initial agent status")
	}
	logger.Info("Agent found on chain", "account", agentModule.AccountID(), "status", initialStatus)
	statusCell := agent.NewStatusCell(initialStatus)

	if _, err := tasksModule.Load(ctx); err != nil {
		return errors.Wrap(err, "cannot load tasks cache")
	}
	unbounded, ranged := tasksModule.Stats()
	logger.Info("Tasks cache ready", "unbounded", unbounded, "ranged", ranged)

	feed := blockstream.NewFeed()
	defer feed.Close()

	poller := blockstream.NewPoller(factoryClient, feed, s.cfg.PollInterval())
	wsSource := blockstream.NewWSSource(s.cfg, factoryClient, feed)
	statusLoop := agent.NewStatusLoop(s.cfg, agentModule, managerModule, statusCell)
	scheduledLoop := tasks.NewScheduledLoop(s.cfg.ChainID, statusCell, agentModule, managerModule, tasksModule, s.monitor)
	refreshLoop := tasks.NewRefreshLoop(s.cfg.ChainID, tasksModule)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	spawn := func(name string, run func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.supervise(runCtx, name, run); err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}()
	}

	spawn("ws-block-source", wsSource.Run)
	spawn("http-block-source", poller.Run)
	spawn("agent-status", func(ctx context.Context) error {
		return statusLoop.Run(ctx, feed.Subscribe())
	})
	spawn("scheduled-tasks", func(ctx context.Context) error {
		return scheduledLoop.Run(ctx, feed.Subscribe())
	})
	spawn("tasks-cache-refresh", func(ctx context.Context) error {
		return refreshLoop.Run(ctx, feed.Subscribe())
	})
	if s.cfg.IncludeEvented {
		eventedLoop := tasks.NewEventedLoop(s.cfg.ChainID, statusCell, tasksModule, managerModule, s.monitor)
		spawn("evented-tasks", func(ctx context.Context) error {
			return eventedLoop.Run(ctx, feed.Subscribe())
		})
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// supervise restarts a loop under a fixed-interval jittered backoff.
// Terminal errors stop the whole system instead of being retried.
func (s *System) supervise(ctx context.Context, name string, run func(ctx context.Context) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newJitteredConstant(s.retryEvery), maxRetries), ctx)

	err := backoff.Retry(func() error {
		err := run(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case isTerminal(err):
			logger.Error("Task hit terminal error", "task", name, "err", err)
			return backoff.Permanent(err)
		default:
			logger.Error("Task failed, restarting", "task", name, "err", err)
			return err
		}
	}, policy)

	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "task %s gave up", name)
	}
	return nil
}

// isTerminal matches conditions no restart can fix.
func isTerminal(err error) bool {
	return errors.Is(err, agent.ErrAgentUnregistered) ||
		errors.Is(err, agent.ErrInsufficientBalance) ||
		rpc.IsTerminal(err)
}

// jitteredConstant is a constant backoff with up to half an interval of
// random smear, so a fleet of agents does not reconnect in lockstep.
type jitteredConstant struct {
	interval time.Duration
}

func newJitteredConstant(interval time.Duration) backoff.BackOff {
	return &jitteredConstant{interval: interval}
}

func (b *jitteredConstant) NextBackOff() time.Duration {
	return b.interval + time.Duration(rand.Int63n(int64(b.interval/2)))
}

func (b *jitteredConstant) Reset() {}

// HandleInterrupts cancels the run context on the first interrupt and
// force-exits on the second, for operators whose shutdown hangs on I/O.
func HandleInterrupts(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		logger.Info("Shutting down croncatd...")
		cancel()
		<-ch
		logger.Warn("Forced exit")
		os.Exit(1)
	}()
}
