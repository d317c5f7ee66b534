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

// Package contracts defines the JSON message and response types spoken by the
// croncat factory, manager, agents and tasks contracts.
package contracts

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/pkg/errors"
)

// Uint64 marshals the CosmWasm Uint64 convention: a decimal string on the
// wire, while tolerating bare JSON numbers on decode.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(u), 10))
}

func (u *Uint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid uint64 value %s", string(data))
	}
	*u = Uint64(v)
	return nil
}

// Binary is a base64 payload, the CosmWasm Binary type.
type Binary []byte

func (b Binary) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

func (b *Binary) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return errors.Wrap(err, "invalid base64 binary")
	}
	*b = raw
	return nil
}

// AgentStatus is the agent lifecycle state recorded by the agents contract.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusNominated AgentStatus = "nominated"
	AgentStatusActive    AgentStatus = "active"
)

func (s *AgentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch strings.ToLower(raw) {
	case "pending":
		*s = AgentStatusPending
	case "nominated":
		*s = AgentStatusNominated
	case "active":
		*s = AgentStatusActive
	default:
		return errors.Errorf("unknown agent status %q", raw)
	}
	return nil
}

// BoundaryRange is one optional-sided activation window.
type BoundaryRange struct {
	Start *Uint64 `json:"start,omitempty"`
	End   *Uint64 `json:"end,omitempty"`
}

// Boundary restricts when a task may activate, in block heights or in
// nanoseconds since epoch. Exactly one side is set.
type Boundary struct {
	Height *BoundaryRange `json:"height,omitempty"`
	Time   *BoundaryRange `json:"time,omitempty"`
}

// Contains reports whether the boundary admits the given block height and
// block time (nanoseconds). A nil boundary admits everything.
func (b *Boundary) Contains(height uint64, timeNanos uint64) bool {
	switch {
	case b == nil:
		return true
	case b.Height != nil:
		return b.Height.contains(height)
	case b.Time != nil:
		return b.Time.contains(timeNanos)
	}
	return true
}

func (r *BoundaryRange) contains(v uint64) bool {
	if r.Start != nil && v < uint64(*r.Start) {
		return false
	}
	if r.End != nil && v > uint64(*r.End) {
		return false
	}
	return true
}

// CroncatQuery is one predicate a task re-evaluates before execution.
type CroncatQuery struct {
	ContractAddr string `json:"contract_addr"`
	Msg          Binary `json:"msg"`
	CheckResult  bool   `json:"check_result"`
}

// QueryResponse is the mod-sdk shaped result of a predicate query.
type QueryResponse struct {
	Result bool   `json:"result"`
	Data   Binary `json:"data,omitempty"`
}

// TaskInfo is the task record stored by the tasks contract. Fields the agent
// does not act on are carried opaquely so cache round-trips are lossless.
type TaskInfo struct {
	TaskHash string          `json:"task_hash"`
	Owner    string          `json:"owner_addr,omitempty"`
	Interval json.RawMessage `json:"interval,omitempty"`
	Boundary *Boundary       `json:"boundary,omitempty"`
	Queries  []CroncatQuery  `json:"queries,omitempty"`
}

// ContractVersion is the (major, minor) pair the factory indexes by.
type ContractVersion [2]uint8

// ContractMetadata describes one deployed contract version.
type ContractMetadata struct {
	Version      ContractVersion `json:"version"`
	ContractAddr string          `json:"contract_addr"`
}

// EntryResponse pairs a contract name with its metadata.
type EntryResponse struct {
	ContractName string           `json:"contract_name"`
	Metadata     ContractMetadata `json:"metadata"`
}

// AgentInfo is the registered agent record.
type AgentInfo struct {
	Status AgentStatus `json:"status"`
	// Balance is the unclaimed reward held by the manager contract.
	Balance          sdk.Int `json:"balance"`
	PayableAccountID string  `json:"payable_account_id,omitempty"`
}

// AgentResponse wraps GetAgent; Agent is nil for unregistered accounts.
type AgentResponse struct {
	Agent *AgentInfo `json:"agent"`
}

// AgentTaskStats counts the scheduled work currently assigned to an agent.
type AgentTaskStats struct {
	NumBlockTasks Uint64 `json:"num_block_tasks"`
	NumCronTasks  Uint64 `json:"num_cron_tasks"`
}

// Total is the batch size for the next proxy-call transaction.
func (s AgentTaskStats) Total() uint64 {
	return uint64(s.NumBlockTasks) + uint64(s.NumCronTasks)
}

// AgentTaskResponse wraps GetAgentTasks.
type AgentTaskResponse struct {
	Stats AgentTaskStats `json:"stats"`
}
