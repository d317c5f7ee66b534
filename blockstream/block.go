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

// Package blockstream produces the daemon's stream of observed chain tips
// from a WebSocket subscription and an adaptive HTTP poller.
package blockstream

import (
	"time"

	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/log"
)

var logger = log.NewModuleLogger(log.BlockStream)

// Block is one observed chain tip. The WebSocket and polling sources will
// frequently deliver the same height; consumers dedupe by tracking the last
// height they acted on.
type Block struct {
	Height  uint64
	Time    time.Time
	ChainID string
}

// UnixNanos returns the block time in nanoseconds since epoch.
func (b Block) UnixNanos() uint64 {
	return uint64(b.Time.UnixNano())
}

// UnixSeconds returns the block time in whole seconds since epoch.
func (b Block) UnixSeconds() uint64 {
	return uint64(b.Time.Unix())
}

// FromTendermint normalizes a full tendermint block.
func FromTendermint(b *tmtypes.Block) Block {
	return Block{
		Height:  uint64(b.Header.Height),
		Time:    b.Header.Time,
		ChainID: b.Header.ChainID,
	}
}
