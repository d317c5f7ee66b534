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

// croncatd is the CronCat agent daemon: it watches a chain, executes due
// tasks through the manager contract and keeps its agent registration
// alive.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/croncats/croncatd/agent"
	"github.com/croncats/croncatd/cmd/utils"
	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/factory"
	"github.com/croncats/croncatd/log"
	"github.com/croncats/croncatd/manager"
	"github.com/croncats/croncatd/rpc"
	"github.com/croncats/croncatd/store"
	"github.com/croncats/croncatd/system"
	"github.com/croncats/croncatd/tasks"
)

var logger = log.NewModuleLogger(log.CMDCroncatd)

var app = utils.NewApp("The CronCat agent daemon")

func init() {
	app.Flags = []cli.Flag{
		utils.ChainIDFlag,
		utils.AgentFlag,
		utils.ConfigFileFlag,
		utils.VerbosityFlag,
	}
	app.Before = utils.SetupLogging
	app.Commands = []cli.Command{
		{
			Name:   "go",
			Usage:  "Run the agent daemon",
			Action: runDaemon,
		},
		{
			Name:   "register",
			Usage:  "Register this agent with the agents contract",
			Flags:  []cli.Flag{utils.PayableFlag},
			Action: registerAgent,
		},
		{
			Name:   "unregister",
			Usage:  "Remove this agent from the agents contract",
			Action: unregisterAgent,
		},
		{
			Name:   "update-agent",
			Usage:  "Change the reward recipient of this agent",
			Flags:  []cli.Flag{utils.PayableFlag},
			Action: updateAgent,
		},
		{
			Name:   "withdraw",
			Usage:  "Withdraw this agent's accumulated reward",
			Action: withdrawReward,
		},
		{
			Name:   "status",
			Usage:  "Print this agent's on-chain record",
			Action: printStatus,
		},
		{
			Name:   "tasks",
			Usage:  "Print all tasks stored by the tasks contract",
			Action: printTasks,
		},
		{
			Name:   "generate-mnemonic",
			Usage:  "Create and store a new agent key",
			Flags:  []cli.Flag{utils.PayableFlag},
			Action: generateMnemonic,
		},
		{
			Name:   "service",
			Usage:  "Write a systemd unit file for this chain",
			Action: writeService,
		},
	}
	sort.Sort(cli.CommandsByName(app.Commands))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.Error("croncatd exited with error", "err", err)
		os.Exit(1)
	}
}

// env is the assembled context shared by the chain-touching commands.
type env struct {
	cfg      *config.ChainConfig
	mnemonic string
	key      cryptotypes.PrivKey
	registry *rpc.Registry
	factory  *factory.Factory
}

func makeEnv(ctx *cli.Context) (*env, error) {
	cfg, err := utils.LoadChainConfig(ctx)
	if err != nil {
		return nil, err
	}

	logsDir, err := store.LogsDir()
	if err != nil {
		return nil, err
	}
	if err := log.UseChainFiles(logsDir, cfg.ChainID); err != nil {
		return nil, err
	}

	storageDir, err := store.DefaultDir()
	if err != nil {
		return nil, err
	}
	keyStore, err := store.NewKeyStore(storageDir)
	if err != nil {
		return nil, err
	}
	name := ctx.GlobalString(utils.AgentFlag.Name)
	entry, ok := keyStore.Get(name)
	if !ok {
		return nil, errors.Errorf("no agent %q in key store, run generate-mnemonic first", name)
	}
	key, err := rpc.DerivePrivKey(entry.Mnemonic)
	if err != nil {
		return nil, err
	}

	factoryStore, err := store.NewFactoryStore(storageDir)
	if err != nil {
		return nil, err
	}
	registry := rpc.NewRegistry()
	factoryClient, err := rpc.NewClientService(registry, cfg, key, cfg.FactoryAddress)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:      cfg,
		mnemonic: entry.Mnemonic,
		key:      key,
		registry: registry,
		factory:  factory.New(factoryClient, cfg.FactoryAddress, factoryStore),
	}, nil
}

// agentModule resolves the agents contract and builds the module around it.
func (e *env) agentModule(ctx context.Context) (*agent.Agent, error) {
	if _, err := e.factory.Load(ctx); err != nil {
		return nil, err
	}
	addr, err := e.factory.GetContractAddr(factory.ContractAgents)
	if err != nil {
		return nil, err
	}
	client, err := rpc.NewClientService(e.registry, e.cfg, e.key, addr)
	if err != nil {
		return nil, err
	}
	return agent.New(client, addr), nil
}

// managerModule resolves the manager contract and builds the module.
func (e *env) managerModule(ctx context.Context) (*manager.Manager, error) {
	if _, err := e.factory.Load(ctx); err != nil {
		return nil, err
	}
	addr, err := e.factory.GetContractAddr(factory.ContractManager)
	if err != nil {
		return nil, err
	}
	client, err := rpc.NewClientService(e.registry, e.cfg, e.key, addr)
	if err != nil {
		return nil, err
	}
	return manager.New(client, addr), nil
}

func runDaemon(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	system.HandleInterrupts(cancel)

	err = system.New(e.cfg, e.registry, e.mnemonic).Run(runCtx)
	switch {
	case err == nil || errors.Is(err, context.Canceled):
		logger.Info("croncatd shut down cleanly")
		return nil
	case errors.Is(err, agent.ErrInsufficientBalance):
		logger.Error("Stopping the agent: balance below threshold", "err", err)
		return cli.NewExitError(err.Error(), 1)
	default:
		return err
	}
}

func registerAgent(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	ag, err := e.agentModule(context.Background())
	if err != nil {
		return err
	}
	var payable *string
	if p := ctx.String(utils.PayableFlag.Name); p != "" {
		payable = &p
	}
	res, err := ag.Register(context.Background(), payable)
	if err != nil {
		return err
	}
	logger.Info("Registered agent", "account", ag.AccountID(), "tx", res.TxHash)
	return nil
}

func unregisterAgent(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	ag, err := e.agentModule(context.Background())
	if err != nil {
		return err
	}
	res, err := ag.Unregister(context.Background())
	if err != nil {
		return err
	}
	logger.Info("Unregistered agent", "account", ag.AccountID(), "tx", res.TxHash)
	return nil
}

func updateAgent(ctx *cli.Context) error {
	payable := ctx.String(utils.PayableFlag.Name)
	if payable == "" {
		return errors.New("--payable-account-id is required")
	}
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	ag, err := e.agentModule(context.Background())
	if err != nil {
		return err
	}
	res, err := ag.Update(context.Background(), payable)
	if err != nil {
		return err
	}
	logger.Info("Updated agent", "payable", payable, "tx", res.TxHash)
	return nil
}

func withdrawReward(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	mgr, err := e.managerModule(context.Background())
	if err != nil {
		return err
	}
	res, err := mgr.WithdrawReward(context.Background())
	if err != nil {
		return err
	}
	logger.Info("Withdrew agent reward", "tx", res.TxHash)
	return nil
}

func printStatus(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	ag, err := e.agentModule(context.Background())
	if err != nil {
		return err
	}
	record, err := ag.Get(context.Background(), ag.AccountID())
	if err != nil {
		return err
	}
	return printJSON(record)
}

func printTasks(ctx *cli.Context) error {
	e, err := makeEnv(ctx)
	if err != nil {
		return err
	}
	bg := context.Background()
	if _, err := e.factory.Load(bg); err != nil {
		return err
	}
	addr, err := e.factory.GetContractAddr(factory.ContractTasks)
	if err != nil {
		return err
	}
	client, err := rpc.NewClientService(e.registry, e.cfg, e.key, addr)
	if err != nil {
		return err
	}
	storageDir, err := store.DefaultDir()
	if err != nil {
		return err
	}
	eventStore, err := store.NewEventStore(storageDir)
	if err != nil {
		return err
	}
	all, err := tasks.New(client, addr, eventStore).GetAll(bg)
	if err != nil {
		return err
	}
	return printJSON(all)
}

func generateMnemonic(ctx *cli.Context) error {
	storageDir, err := store.DefaultDir()
	if err != nil {
		return err
	}
	keyStore, err := store.NewKeyStore(storageDir)
	if err != nil {
		return err
	}
	mnemonic, err := rpc.GenerateMnemonic()
	if err != nil {
		return err
	}
	name := ctx.GlobalString(utils.AgentFlag.Name)
	if err := keyStore.Register(name, mnemonic, ctx.String(utils.PayableFlag.Name)); err != nil {
		return err
	}
	fmt.Println(mnemonic)
	return nil
}

func writeService(ctx *cli.Context) error {
	cfg, err := utils.LoadChainConfig(ctx)
	if err != nil {
		return err
	}
	path, err := system.WriteServiceFile(cfg.ChainID)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\nNext steps:\n  1. sudo systemctl link %s\n  2. sudo systemctl enable --now croncatd-%s\n", path, path, cfg.ChainID)
	return nil
}

func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
