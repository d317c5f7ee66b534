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
	"strings"

	"github.com/pkg/errors"
)

// ErrNoValidSources is returned when every endpoint of a chain has been
// disqualified and no more specific error was recorded.
var ErrNoValidSources = errors.New("no valid rpc sources available")

// terminalErrSubstrings classifies chain errors that no other endpoint can
// answer differently: retrying elsewhere would just repeat them. This is a
// living policy; the node returns stable English strings, matched lowercase.
var terminalErrSubstrings = []string{
	"agent not registered",
	"agent already registered",
	"agent not found",
	"account not found",
}

// IsTerminal reports whether err is a logical-terminal chain error that must
// be surfaced to the caller without disqualifying the endpoint.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range terminalErrSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isContractNotFound matches queries against contracts a lagging endpoint has
// not indexed yet; the call moves to another endpoint without blame.
func isContractNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "contract: not found")
}
