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
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	abci "github.com/tendermint/tendermint/abci/types"
	tmjson "github.com/tendermint/tendermint/libs/json"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/config"
)

// abciHandler lets a test script the fake node's ABCI query surface.
type abciHandler func(path string, data []byte) abci.ResponseQuery

// fakeNode is a minimal tendermint JSON-RPC endpoint backed by httptest.
type fakeNode struct {
	srv     *httptest.Server
	chainID string
	height  int64

	onABCIQuery abciHandler
	// broadcasts collects every committed raw tx.
	broadcasts [][]byte
	// deliverCode/deliverLog script the deliver phase of commits.
	deliverCode uint32
	deliverLog  string
}

func newFakeNode(chainID string, height int64) *fakeNode {
	n := &fakeNode{chainID: chainID, height: height}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	return n
}

func (n *fakeNode) Close()      { n.srv.Close() }
func (n *fakeNode) URL() string { return n.srv.URL }

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	// The client may batch; handle single requests only.
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result interface{}
	switch req.Method {
	case "block":
		result = n.blockResult()
	case "abci_query":
		result = n.abciResult(req.Params)
	case "broadcast_tx_commit":
		result = n.broadcastResult(req.Params)
	case "status":
		result = &ctypes.ResultStatus{}
	default:
		http.Error(w, "unknown method "+req.Method, http.StatusNotFound)
		return
	}

	raw, err := tmjson.Marshal(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      req.ID,
		"result":  raw,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) blockResult() *ctypes.ResultBlock {
	block := &tmtypes.Block{
		Header: tmtypes.Header{
			ChainID: n.chainID,
			Height:  n.height,
			Time:    time.Now().UTC(),
		},
	}
	return &ctypes.ResultBlock{Block: block}
}

func (n *fakeNode) abciResult(params json.RawMessage) *ctypes.ResultABCIQuery {
	var p struct {
		Path string `json:"path"`
		Data string `json:"data"`
	}
	_ = json.Unmarshal(params, &p)
	data, _ := hex.DecodeString(p.Data)

	if n.onABCIQuery == nil {
		return &ctypes.ResultABCIQuery{Response: abci.ResponseQuery{Code: 1, Log: "no handler"}}
	}
	return &ctypes.ResultABCIQuery{Response: n.onABCIQuery(p.Path, data)}
}

func (n *fakeNode) broadcastResult(params json.RawMessage) *ctypes.ResultBroadcastTxCommit {
	var p struct {
		Tx []byte `json:"tx"`
	}
	_ = json.Unmarshal(params, &p)
	n.broadcasts = append(n.broadcasts, p.Tx)

	tx := tmtypes.Tx(p.Tx)
	return &ctypes.ResultBroadcastTxCommit{
		CheckTx:   abci.ResponseCheckTx{Code: 0},
		DeliverTx: abci.ResponseDeliverTx{Code: n.deliverCode, Log: n.deliverLog, GasWanted: 180000, GasUsed: 150000},
		Hash:      tx.Hash(),
		Height:    n.height + 1,
	}
}

// wasmEcho answers every smart query with a fixed JSON payload.
func wasmEcho(payload string) abciHandler {
	return func(path string, data []byte) abci.ResponseQuery {
		resp := wasmtypes.QuerySmartContractStateResponse{Data: wasmtypes.RawContractMessage(payload)}
		value, _ := resp.Marshal()
		return abci.ResponseQuery{Code: 0, Value: value}
	}
}

// testChainConfig points a config at the given endpoint URLs. The cosmos
// prefix keeps sdk address handling on its defaults.
func testChainConfig(endpoints ...config.RpcEndpoint) *config.ChainConfig {
	return &config.ChainConfig{
		ChainID:        "test-1",
		Denom:          "ujunox",
		Bech32Prefix:   "cosmos",
		FactoryAddress: "cosmos1factoryaddr",
		GasPrices:      0.04,
		GasAdjustment:  1.5,
		RPCTimeoutSecs: 3,
		RPCEndpoints:   endpoints,
	}
}
