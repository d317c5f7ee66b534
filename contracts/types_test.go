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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyCallEncoding(t *testing.T) {
	raw, err := json.Marshal(NewProxyCall(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"proxy_call":{"task_hash":null}}`, string(raw))

	hash := "osmosistestnet:f9a4e4e6"
	raw, err = json.Marshal(NewProxyCall(&hash))
	require.NoError(t, err)
	assert.JSONEq(t, `{"proxy_call":{"task_hash":"osmosistestnet:f9a4e4e6"}}`, string(raw))
}

func TestAgentWithdrawEncoding(t *testing.T) {
	raw, err := json.Marshal(NewAgentWithdraw())
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_withdraw":null}`, string(raw))
}

func TestAgentExecuteEncoding(t *testing.T) {
	raw, err := json.Marshal(AgentExecute{CheckInAgent: &Empty{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"check_in_agent":{}}`, string(raw))

	payable := "juno1payable"
	raw, err = json.Marshal(AgentExecute{RegisterAgent: &RegisterAgentMsg{PayableAccountID: &payable}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"register_agent":{"payable_account_id":"juno1payable"}}`, string(raw))
}

func TestUint64Wire(t *testing.T) {
	raw, err := json.Marshal(Uint64(42))
	require.NoError(t, err)
	assert.Equal(t, `"42"`, string(raw))

	var fromString Uint64
	require.NoError(t, json.Unmarshal([]byte(`"300001"`), &fromString))
	assert.Equal(t, Uint64(300001), fromString)

	var fromNumber Uint64
	require.NoError(t, json.Unmarshal([]byte(`300001`), &fromNumber))
	assert.Equal(t, Uint64(300001), fromNumber)
}

func TestAgentStatusDecoding(t *testing.T) {
	var s AgentStatus
	require.NoError(t, json.Unmarshal([]byte(`"active"`), &s))
	assert.Equal(t, AgentStatusActive, s)

	require.NoError(t, json.Unmarshal([]byte(`"Nominated"`), &s))
	assert.Equal(t, AgentStatusNominated, s)

	assert.Error(t, json.Unmarshal([]byte(`"retired"`), &s))
}

func TestTaskInfoRoundTrip(t *testing.T) {
	start, end := Uint64(100), Uint64(200)
	task := TaskInfo{
		TaskHash: "juno:abc123",
		Owner:    "juno1owner",
		Boundary: &Boundary{Height: &BoundaryRange{Start: &start, End: &end}},
		Queries: []CroncatQuery{
			{ContractAddr: "juno1query", Msg: Binary(`{"get_price":{}}`), CheckResult: true},
		},
	}

	raw, err := json.Marshal(task)
	require.NoError(t, err)
	var back TaskInfo
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, task, back)
}

func TestBoundaryContains(t *testing.T) {
	start, end := Uint64(100), Uint64(200)

	var none *Boundary
	assert.True(t, none.Contains(1, 1))

	height := &Boundary{Height: &BoundaryRange{Start: &start, End: &end}}
	assert.False(t, height.Contains(99, 0))
	assert.True(t, height.Contains(100, 0))
	assert.True(t, height.Contains(150, 0))
	assert.True(t, height.Contains(200, 0))
	assert.False(t, height.Contains(201, 0))

	openEnd := &Boundary{Height: &BoundaryRange{Start: &start}}
	assert.True(t, openEnd.Contains(1_000_000, 0))
	assert.False(t, openEnd.Contains(99, 0))

	timeBound := &Boundary{Time: &BoundaryRange{Start: &start, End: &end}}
	assert.True(t, timeBound.Contains(0, 150))
	assert.False(t, timeBound.Contains(0, 201))
}

func TestAgentTaskStatsTotal(t *testing.T) {
	var resp AgentTaskResponse
	require.NoError(t, json.Unmarshal([]byte(`{"stats":{"num_block_tasks":"2","num_cron_tasks":"1"}}`), &resp))
	assert.Equal(t, uint64(3), resp.Stats.Total())
}
