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
	"context"
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"

	txtypes "github.com/cosmos/cosmos-sdk/types/tx"

	"github.com/croncats/croncatd/config"
)

// testMnemonic is the well-known bip39 test vector phrase.
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

func TestGasFee(t *testing.T) {
	gas, fee := GasFee(100000, 1.5, 0.04)
	assert.Equal(t, uint64(150000), gas)
	assert.Equal(t, uint64(6000), fee)

	// Rounding is always up.
	gas, fee = GasFee(100001, 1.5, 0.025)
	assert.Equal(t, uint64(150002), gas)
	assert.Equal(t, uint64(3751), fee)

	// Adjustment of exactly 1.0 keeps the simulated amount.
	gas, _ = GasFee(77777, 1.0, 0)
	assert.Equal(t, uint64(77777), gas)
}

func TestDeriveKeyAndAddress(t *testing.T) {
	key, err := DerivePrivKey(testMnemonic)
	require.NoError(t, err)

	addr, err := Bech32Address(key, "cosmos")
	require.NoError(t, err)
	assert.Contains(t, addr, "cosmos1")

	junoAddr, err := Bech32Address(key, "juno")
	require.NoError(t, err)
	assert.Contains(t, junoAddr, "juno1")
	assert.NotEqual(t, addr, junoAddr)

	_, err = DerivePrivKey("definitely not a mnemonic")
	assert.Error(t, err)
}

func TestGenerateMnemonic(t *testing.T) {
	m1, err := GenerateMnemonic()
	require.NoError(t, err)
	m2, err := GenerateMnemonic()
	require.NoError(t, err)

	assert.NotEqual(t, m1, m2)
	_, err = DerivePrivKey(m1)
	assert.NoError(t, err)
}

func TestClient_QueryContract(t *testing.T) {
	node := newFakeNode("test-1", 10)
	defer node.Close()
	node.onABCIQuery = wasmEcho(`{"result":true}`)

	client, err := NewClient(testChainConfig(config.RpcEndpoint{Provider: "n", URL: node.URL()}), node.URL(), nil)
	require.NoError(t, err)

	var out struct {
		Result bool `json:"result"`
	}
	require.NoError(t, client.QueryContract(context.Background(), "cosmos1contract", map[string]interface{}{}, &out))
	assert.True(t, out.Result)
}

// TestClient_BroadcastTxPipeline drives the full simulate → gas/fee → sign
// → commit path against the fake node and checks the gas law on the wire.
func TestClient_BroadcastTxPipeline(t *testing.T) {
	const simulatedGas = 100000

	node := newFakeNode("test-1", 10)
	defer node.Close()

	cfg := testChainConfig(config.RpcEndpoint{Provider: "n", URL: node.URL()})
	key, err := DerivePrivKey(testMnemonic)
	require.NoError(t, err)
	client, err := NewClient(cfg, node.URL(), key)
	require.NoError(t, err)

	baseAccount := &authtypes.BaseAccount{
		Address:       client.Address(),
		AccountNumber: 7,
		Sequence:      3,
	}
	node.onABCIQuery = func(path string, data []byte) abci.ResponseQuery {
		switch path {
		case accountPath:
			anyAcc, err := codectypes.NewAnyWithValue(baseAccount)
			require.NoError(t, err)
			resp := authtypes.QueryAccountResponse{Account: anyAcc}
			value, _ := resp.Marshal()
			return abci.ResponseQuery{Code: 0, Value: value}
		case simulatePath:
			resp := txtypes.SimulateResponse{GasInfo: &sdk.GasInfo{GasUsed: simulatedGas}}
			value, _ := resp.Marshal()
			return abci.ResponseQuery{Code: 0, Value: value}
		default:
			return abci.ResponseQuery{Code: 1, Log: "unexpected path " + path}
		}
	}

	res, err := client.ExecuteContract(context.Background(), "cosmos1contract", map[string]interface{}{
		"proxy_call": map[string]interface{}{"task_hash": nil},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.Equal(t, int64(11), res.Height)

	// Decode the committed bytes and verify the gas and fee maths.
	require.Len(t, node.broadcasts, 1)
	enc := newEncodingConfig()
	decoded, err := enc.TxConfig.TxDecoder()(node.broadcasts[0])
	require.NoError(t, err)
	signedTx, ok := decoded.(authsigning.Tx)
	require.True(t, ok)

	wantGas, wantFee := GasFee(simulatedGas, cfg.GasAdjustment, cfg.GasPrices)
	assert.Equal(t, wantGas, signedTx.GetGas())
	require.Len(t, signedTx.GetFee(), 1)
	assert.Equal(t, cfg.Denom, signedTx.GetFee()[0].Denom)
	assert.Equal(t, int64(wantFee), signedTx.GetFee()[0].Amount.Int64())

	sigs, err := signedTx.GetSignaturesV2()
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, uint64(3), sigs[0].Sequence)
}

func TestClient_DeliverFailureSurfacesAsError(t *testing.T) {
	node := newFakeNode("test-1", 10)
	defer node.Close()

	// Reuse the happy-path handlers but fail the deliver phase.
	cfg := testChainConfig(config.RpcEndpoint{Provider: "n", URL: node.URL()})
	key, err := DerivePrivKey(testMnemonic)
	require.NoError(t, err)
	client, err := NewClient(cfg, node.URL(), key)
	require.NoError(t, err)

	baseAccount := &authtypes.BaseAccount{Address: client.Address()}
	node.onABCIQuery = func(path string, data []byte) abci.ResponseQuery {
		switch path {
		case accountPath:
			anyAcc, _ := codectypes.NewAnyWithValue(baseAccount)
			resp := authtypes.QueryAccountResponse{Account: anyAcc}
			value, _ := resp.Marshal()
			return abci.ResponseQuery{Code: 0, Value: value}
		case simulatePath:
			resp := txtypes.SimulateResponse{GasInfo: &sdk.GasInfo{GasUsed: 50000}}
			value, _ := resp.Marshal()
			return abci.ResponseQuery{Code: 0, Value: value}
		}
		return abci.ResponseQuery{Code: 1}
	}
	node.deliverCode = 11
	node.deliverLog = "out of gas"

	_, err = client.ExecuteContract(context.Background(), "cosmos1contract", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of gas")
}

func TestNormalizeRPCURL(t *testing.T) {
	assert.Equal(t, "https://rpc.example.com", normalizeRPCURL("rpc.example.com"))
	assert.Equal(t, "http://127.0.0.1:26657", normalizeRPCURL("http://127.0.0.1:26657"))
	assert.Equal(t, "https://rpc.example.com:443", normalizeRPCURL("https://rpc.example.com:443"))
}
