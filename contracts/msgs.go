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

package contracts

import "encoding/json"

// jsonNull renders an enum variant that carries no payload, e.g.
// {"agent_withdraw":null}.
var jsonNull = json.RawMessage("null")

// Empty is the payload of unit enum variants, e.g. {"latest_contracts":{}}.
type Empty struct{}

// PageQuery is the shared from_index/limit pagination envelope.
type PageQuery struct {
	FromIndex *Uint64 `json:"from_index,omitempty"`
	Limit     *Uint64 `json:"limit,omitempty"`
}

// NewPageQuery builds a pagination envelope with both fields set.
func NewPageQuery(fromIndex, limit uint64) *PageQuery {
	f, l := Uint64(fromIndex), Uint64(limit)
	return &PageQuery{FromIndex: &f, Limit: &l}
}

// --- factory contract ---

// NameQuery addresses a factory entry by contract name.
type NameQuery struct {
	ContractName string `json:"contract_name"`
}

// VersionsQuery paginates the versions of one named contract.
type VersionsQuery struct {
	ContractName string  `json:"contract_name"`
	FromIndex    *Uint64 `json:"from_index,omitempty"`
	Limit        *Uint64 `json:"limit,omitempty"`
}

// FactoryQuery is the query envelope of the factory contract. Exactly one
// field is set per message.
type FactoryQuery struct {
	LatestContracts *Empty         `json:"latest_contracts,omitempty"`
	LatestContract  *NameQuery     `json:"latest_contract,omitempty"`
	VersionsByName  *VersionsQuery `json:"versions_by_contract_name,omitempty"`
	ContractNames   *PageQuery     `json:"contract_names,omitempty"`
	AllEntries      *PageQuery     `json:"all_entries,omitempty"`
}

// --- tasks contract ---

// EventedTasksQuery paginates evented tasks under one range key.
type EventedTasksQuery struct {
	Start     *Uint64 `json:"start,omitempty"`
	FromIndex *Uint64 `json:"from_index,omitempty"`
	Limit     *Uint64 `json:"limit,omitempty"`
}

// TasksQuery is the query envelope of the tasks contract.
type TasksQuery struct {
	Tasks        *PageQuery         `json:"tasks,omitempty"`
	EventedIds   *PageQuery         `json:"evented_ids,omitempty"`
	EventedTasks *EventedTasksQuery `json:"evented_tasks,omitempty"`
}

// --- manager contract ---

// ProxyCallMsg executes one due task; a nil TaskHash lets the contract pick
// the next scheduled task for the calling agent.
type ProxyCallMsg struct {
	TaskHash *string `json:"task_hash"`
}

// ManagerExecute is the execute envelope of the manager contract.
type ManagerExecute struct {
	ProxyCall     *ProxyCallMsg   `json:"proxy_call,omitempty"`
	AgentWithdraw json.RawMessage `json:"agent_withdraw,omitempty"`
}

// NewProxyCall builds a proxy_call message; hash may be nil.
func NewProxyCall(hash *string) ManagerExecute {
	return ManagerExecute{ProxyCall: &ProxyCallMsg{TaskHash: hash}}
}

// NewAgentWithdraw builds the agent_withdraw message with no recipient
// override, serialized as {"agent_withdraw":null}.
func NewAgentWithdraw() ManagerExecute {
	return ManagerExecute{AgentWithdraw: jsonNull}
}

// --- agents contract ---

// RegisterAgentMsg registers the calling account as an agent.
type RegisterAgentMsg struct {
	PayableAccountID *string `json:"payable_account_id,omitempty"`
}

// UnregisterAgentMsg removes the calling agent from the active set.
type UnregisterAgentMsg struct {
	FromBehind *bool `json:"from_behind,omitempty"`
}

// UpdateAgentMsg changes the reward recipient.
type UpdateAgentMsg struct {
	PayableAccountID string `json:"payable_account_id"`
}

// AgentExecute is the execute envelope of the agents contract.
type AgentExecute struct {
	RegisterAgent   *RegisterAgentMsg   `json:"register_agent,omitempty"`
	UnregisterAgent *UnregisterAgentMsg `json:"unregister_agent,omitempty"`
	UpdateAgent     *UpdateAgentMsg     `json:"update_agent,omitempty"`
	CheckInAgent    *Empty              `json:"check_in_agent,omitempty"`
}

// AccountQuery addresses agent records by account id.
type AccountQuery struct {
	AccountID string `json:"account_id"`
}

// AgentQuery is the query envelope of the agents contract.
type AgentQuery struct {
	GetAgent      *AccountQuery `json:"get_agent,omitempty"`
	GetAgentTasks *AccountQuery `json:"get_agent_tasks,omitempty"`
}
