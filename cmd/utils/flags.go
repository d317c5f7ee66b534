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

// Package utils holds the shared CLI flags and app scaffolding for the
// croncatd binary.
package utils

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/croncats/croncatd/config"
	"github.com/croncats/croncatd/log"
)

var (
	// ChainIDFlag selects which config.<chain-id>.yaml to run against.
	ChainIDFlag = cli.StringFlag{
		Name:  "chain-id",
		Usage: "Chain to operate on (loads config.<chain-id>.yaml)",
		Value: "local",
	}
	// AgentFlag selects the named key in agents.json.
	AgentFlag = cli.StringFlag{
		Name:  "agent",
		Usage: "Named agent key to sign with",
		Value: "agent",
	}
	// ConfigFileFlag overrides the config file path entirely.
	ConfigFileFlag = cli.StringFlag{
		Name:  "config-file",
		Usage: "Explicit chain config file path (overrides --chain-id lookup)",
	}
	// VerbosityFlag adjusts the log level.
	VerbosityFlag = cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log level: debug, info, warn or error",
		Value: "info",
	}
	// PayableFlag routes agent rewards to another account.
	PayableFlag = cli.StringFlag{
		Name:  "payable-account-id",
		Usage: "Account to receive this agent's rewards",
	}
)

// NewApp creates a cli app with the croncatd defaults.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.Name = "croncatd"
	app.Usage = usage
	app.Version = "1.0.0"
	return app
}

// LoadChainConfig resolves the chain config from the global flags.
func LoadChainConfig(ctx *cli.Context) (*config.ChainConfig, error) {
	if path := ctx.GlobalString(ConfigFileFlag.Name); path != "" {
		return config.LoadFile(path)
	}
	return config.Load(ctx.GlobalString(ChainIDFlag.Name))
}

// LogLevelEnv overrides the verbosity flag, for operators driving the
// daemon through systemd units.
const LogLevelEnv = "CRONCAT_LOG"

// SetupLogging applies the verbosity flag (or CRONCAT_LOG) to the global
// logger.
func SetupLogging(ctx *cli.Context) error {
	verbosity := ctx.GlobalString(VerbosityFlag.Name)
	if env := os.Getenv(LogLevelEnv); env != "" {
		verbosity = env
	}
	var lvl zapcore.Level
	if err := lvl.Set(verbosity); err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// Fatalf prints an error and exits with a failing status.
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}
