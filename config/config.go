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

// Package config loads and validates per-chain agent configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultRPCTimeout applies when rpc_timeout_seconds is unset.
const DefaultRPCTimeout = 20 * time.Second

// RpcEndpoint is one candidate data source for a chain.
type RpcEndpoint struct {
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
}

// ChainConfig is the per-chain bundle the daemon runs against.
type ChainConfig struct {
	ChainID          string        `yaml:"chain_id"`
	Denom            string        `yaml:"denom"`
	Bech32Prefix     string        `yaml:"bech32_prefix"`
	FactoryAddress   string        `yaml:"factory"`
	GasPrices        float64       `yaml:"gas_prices"`
	GasAdjustment    float64       `yaml:"gas_adjustment"`
	BlockPollSeconds float64       `yaml:"block_poll_seconds"`
	RPCTimeoutSecs   float64       `yaml:"rpc_timeout_seconds"`
	BalanceThreshold uint64        `yaml:"balance_threshold"`
	IncludeEvented   bool          `yaml:"include_evented_tasks"`
	RPCEndpoints     []RpcEndpoint `yaml:"rpc_endpoints"`
}

// Load reads config.<name>.yaml from the working directory. When a matching
// config.<name>.override.yaml exists it wins entirely; operators use the
// override file to pin endpoints without touching the tracked config.
func Load(name string) (*ChainConfig, error) {
	override := fmt.Sprintf("config.%s.override.yaml", name)
	if _, err := os.Stat(override); err == nil {
		return LoadFile(override)
	}
	return LoadFile(fmt.Sprintf("config.%s.yaml", name))
}

// LoadFile reads and validates a chain config from an explicit path.
func LoadFile(path string) (*ChainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config file %s", path)
	}
	var cfg ChainConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}
	return &cfg, nil
}

// Validate checks the fields the runtime cannot operate without.
func (c *ChainConfig) Validate() error {
	switch {
	case c.ChainID == "":
		return errors.New("chain_id is required")
	case c.Denom == "":
		return errors.New("denom is required")
	case c.Bech32Prefix == "":
		return errors.New("bech32_prefix is required")
	case c.FactoryAddress == "":
		return errors.New("factory is required")
	case c.GasAdjustment < 1.0:
		return errors.New("gas_adjustment must be at least 1.0")
	case c.GasPrices < 0:
		return errors.New("gas_prices must not be negative")
	case len(c.RPCEndpoints) == 0:
		return errors.New("at least one rpc endpoint is required")
	}
	for i, ep := range c.RPCEndpoints {
		if ep.URL == "" {
			return errors.Errorf("rpc_endpoints[%d]: url is required", i)
		}
	}
	return nil
}

// PollInterval returns the HTTP block-poll interval, defaulting to 5s.
func (c *ChainConfig) PollInterval() time.Duration {
	if c.BlockPollSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BlockPollSeconds * float64(time.Second))
}

// RPCTimeout returns the per-call RPC deadline.
func (c *ChainConfig) RPCTimeout() time.Duration {
	if c.RPCTimeoutSecs <= 0 {
		return DefaultRPCTimeout
	}
	return time.Duration(c.RPCTimeoutSecs * float64(time.Second))
}

// HasBalanceThreshold reports whether the operator configured a minimum
// native balance the agent must hold.
func (c *ChainConfig) HasBalanceThreshold() bool {
	return c.BalanceThreshold > 0
}
