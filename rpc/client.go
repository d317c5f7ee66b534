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
	"encoding/json"
	"math"
	"strings"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	signingtypes "github.com/cosmos/cosmos-sdk/types/tx/signing"
	clienttx "github.com/cosmos/cosmos-sdk/client/tx"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/pkg/errors"
	abci "github.com/tendermint/tendermint/abci/types"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	rpchttp "github.com/tendermint/tendermint/rpc/client/http"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/croncats/croncatd/config"
)

// simulatePath and friends are the ABCI grpc-gateway paths the client talks
// to besides wasm smart queries.
const (
	simulatePath  = "/cosmos.tx.v1beta1.Service/Simulate"
	accountPath   = "/cosmos.auth.v1beta1.Query/Account"
	balancePath   = "/cosmos.bank.v1beta1.Query/Balance"
	wasmQueryPath = "/cosmwasm.wasm.v1.Query/SmartContractState"
)

// TxResponse is the flattened result of a committed transaction.
type TxResponse struct {
	TxHash    string
	Height    int64
	Code      uint32
	RawLog    string
	GasWanted int64
	GasUsed   int64
	Events    []abci.Event
}

// BatchMsg is one contract call inside a multi-message transaction.
type BatchMsg struct {
	ContractAddr string
	Msg          []byte
}

type protoMarshaler interface{ Marshal() ([]byte, error) }
type protoUnmarshaler interface{ Unmarshal([]byte) error }

// Client is a per-call chain client bound to one RPC endpoint. Construction
// is cheap; the pool builds a fresh one for every call so endpoint selection
// stays dynamic.
type Client struct {
	cfg     *config.ChainConfig
	remote  string
	rpc     *rpchttp.HTTP
	enc     encodingConfig
	key     cryptotypes.PrivKey // nil on query-only clients
	address string              // bech32, derived from key
	timeout time.Duration
}

// NewClient connects a client to one endpoint. A non-nil key enables the
// execute surface.
func NewClient(cfg *config.ChainConfig, remote string, key cryptotypes.PrivKey) (*Client, error) {
	remote = normalizeRPCURL(remote)
	timeout := cfg.RPCTimeout()
	rc, err := rpchttp.NewWithTimeout(remote, "/websocket", uint(timeout.Seconds()))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create rpc client for %s", remote)
	}

	c := &Client{
		cfg:     cfg,
		remote:  remote,
		rpc:     rc,
		enc:     newEncodingConfig(),
		key:     key,
		timeout: timeout,
	}
	if key != nil {
		addr, err := Bech32Address(key, cfg.Bech32Prefix)
		if err != nil {
			return nil, err
		}
		c.address = addr
	}
	return c, nil
}

// normalizeRPCURL defaults the scheme to https for bare host:port endpoints.
func normalizeRPCURL(remote string) string {
	if strings.Contains(remote, "://") {
		return remote
	}
	return "https://" + remote
}

// Remote returns the endpoint URL this client is bound to.
func (c *Client) Remote() string { return c.remote }

// Address returns the signer's bech32 account address; empty for queriers.
func (c *Client) Address() string { return c.address }

// Tendermint exposes the underlying endpoint client for block subscriptions.
func (c *Client) Tendermint() *rpchttp.HTTP { return c.rpc }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// LatestBlock fetches the current chain tip.
func (c *Client) LatestBlock(ctx context.Context) (*tmtypes.Block, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.rpc.Block(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot fetch latest block")
	}
	return res.Block, nil
}

// abciQuery issues one protobuf query through the endpoint's ABCI surface.
func (c *Client) abciQuery(ctx context.Context, path string, req protoMarshaler, resp protoUnmarshaler) error {
	data, err := req.Marshal()
	if err != nil {
		return errors.Wrapf(err, "cannot marshal request for %s", path)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.rpc.ABCIQueryWithOptions(ctx, path, data, rpcclient.DefaultABCIQueryOptions)
	if err != nil {
		return errors.Wrapf(err, "abci query %s failed", path)
	}
	if res.Response.Code != 0 {
		// The log line carries the chain's error string; the pool classifies
		// terminal conditions from it.
		return errors.Errorf("abci query %s failed: %s", path, res.Response.Log)
	}
	if err := resp.Unmarshal(res.Response.Value); err != nil {
		return errors.Wrapf(err, "cannot unmarshal response of %s", path)
	}
	return nil
}

// QueryContract runs a wasm smart query and JSON-decodes the reply into out.
func (c *Client) QueryContract(ctx context.Context, contractAddr string, msg, out interface{}) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "cannot encode contract query")
	}
	req := wasmtypes.QuerySmartContractStateRequest{
		Address:   contractAddr,
		QueryData: wasmtypes.RawContractMessage(payload),
	}
	var resp wasmtypes.QuerySmartContractStateResponse
	if err := c.abciQuery(ctx, wasmQueryPath, &req, &resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return errors.Wrapf(err, "cannot decode contract reply from %s", contractAddr)
	}
	return nil
}

// QueryBalance returns the native balance of addr in the chain fee denom.
func (c *Client) QueryBalance(ctx context.Context, addr string) (sdk.Coin, error) {
	req := banktypes.QueryBalanceRequest{Address: addr, Denom: c.cfg.Denom}
	var resp banktypes.QueryBalanceResponse
	if err := c.abciQuery(ctx, balancePath, &req, &resp); err != nil {
		return sdk.Coin{}, err
	}
	if resp.Balance == nil {
		return sdk.NewCoin(c.cfg.Denom, sdk.ZeroInt()), nil
	}
	return *resp.Balance, nil
}

// Account resolves the on-chain account metadata needed for signing.
func (c *Client) Account(ctx context.Context, addr string) (authtypes.AccountI, error) {
	req := authtypes.QueryAccountRequest{Address: addr}
	var resp authtypes.QueryAccountResponse
	if err := c.abciQuery(ctx, accountPath, &req, &resp); err != nil {
		return nil, err
	}
	var acc authtypes.AccountI
	if err := c.enc.Codec.UnpackAny(resp.Account, &acc); err != nil {
		return nil, errors.Wrapf(err, "cannot unpack account %s", addr)
	}
	return acc, nil
}

// ExecuteContract signs and commits a single contract execution.
func (c *Client) ExecuteContract(ctx context.Context, contractAddr string, msg interface{}) (*TxResponse, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode contract msg")
	}
	return c.ExecuteBatch(ctx, []BatchMsg{{ContractAddr: contractAddr, Msg: payload}})
}

// ExecuteBatch signs and commits one transaction carrying every batch
// message; the chain applies them atomically.
func (c *Client) ExecuteBatch(ctx context.Context, batch []BatchMsg) (*TxResponse, error) {
	if len(batch) == 0 {
		return nil, errors.New("empty batch")
	}
	msgs := make([]sdk.Msg, 0, len(batch))
	for _, bm := range batch {
		msgs = append(msgs, &wasmtypes.MsgExecuteContract{
			Sender:   c.address,
			Contract: bm.ContractAddr,
			Msg:      wasmtypes.RawContractMessage(bm.Msg),
		})
	}
	return c.BroadcastTx(ctx, msgs...)
}

// SendFunds transfers amount of denom from the signer to another account.
func (c *Client) SendFunds(ctx context.Context, to, denom string, amount uint64) (*TxResponse, error) {
	msg := &banktypes.MsgSend{
		FromAddress: c.address,
		ToAddress:   to,
		Amount:      sdk.NewCoins(sdk.NewCoin(denom, sdk.NewIntFromUint64(amount))),
	}
	return c.BroadcastTx(ctx, msg)
}

// BroadcastTx builds, simulates, signs and commits one transaction. The gas
// limit is the simulated usage scaled by the configured adjustment and the
// fee follows the configured gas price, both rounded up.
func (c *Client) BroadcastTx(ctx context.Context, msgs ...sdk.Msg) (*TxResponse, error) {
	if c.key == nil {
		return nil, errors.New("no signing key set")
	}

	acc, err := c.Account(ctx, c.address)
	if err != nil {
		return nil, err
	}

	txb := c.enc.TxConfig.NewTxBuilder()
	if err := txb.SetMsgs(msgs...); err != nil {
		return nil, errors.Wrap(err, "cannot set tx msgs")
	}

	// A placeholder signature makes the simulation payload well-formed.
	placeholder := signingtypes.SignatureV2{
		PubKey:   c.key.PubKey(),
		Data:     &signingtypes.SingleSignatureData{SignMode: signingtypes.SignMode_SIGN_MODE_DIRECT},
		Sequence: acc.GetSequence(),
	}
	if err := txb.SetSignatures(placeholder); err != nil {
		return nil, errors.Wrap(err, "cannot set placeholder signature")
	}
	simBytes, err := c.enc.TxConfig.TxEncoder()(txb.GetTx())
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode simulation tx")
	}

	simReq := txtypes.SimulateRequest{TxBytes: simBytes}
	var simResp txtypes.SimulateResponse
	if err := c.abciQuery(ctx, simulatePath, &simReq, &simResp); err != nil {
		return nil, errors.Wrap(err, "tx simulation failed")
	}
	if simResp.GasInfo == nil {
		return nil, errors.New("tx simulation returned no gas info")
	}

	gasLimit, fee := GasFee(simResp.GasInfo.GasUsed, c.cfg.GasAdjustment, c.cfg.GasPrices)
	txb.SetGasLimit(gasLimit)
	txb.SetFeeAmount(sdk.NewCoins(sdk.NewCoin(c.cfg.Denom, sdk.NewIntFromUint64(fee))))

	signerData := authsigning.SignerData{
		ChainID:       c.cfg.ChainID,
		AccountNumber: acc.GetAccountNumber(),
		Sequence:      acc.GetSequence(),
	}
	sig, err := clienttx.SignWithPrivKey(
		signingtypes.SignMode_SIGN_MODE_DIRECT,
		signerData, txb, c.key, c.enc.TxConfig, acc.GetSequence(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cannot sign tx")
	}
	if err := txb.SetSignatures(sig); err != nil {
		return nil, errors.Wrap(err, "cannot set signature")
	}

	txBytes, err := c.enc.TxConfig.TxEncoder()(txb.GetTx())
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode tx")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	res, err := c.rpc.BroadcastTxCommit(ctx, tmtypes.Tx(txBytes))
	if err != nil {
		return nil, errors.Wrap(err, "broadcast failed")
	}
	if res.CheckTx.Code != 0 {
		return nil, errors.Errorf("tx rejected in check phase (code %d): %s", res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.DeliverTx.Code != 0 {
		return nil, errors.Errorf("tx failed in deliver phase (code %d): %s", res.DeliverTx.Code, res.DeliverTx.Log)
	}

	return &TxResponse{
		TxHash:    res.Hash.String(),
		Height:    res.Height,
		Code:      res.DeliverTx.Code,
		RawLog:    res.DeliverTx.Log,
		GasWanted: res.DeliverTx.GasWanted,
		GasUsed:   res.DeliverTx.GasUsed,
		Events:    res.DeliverTx.Events,
	}, nil
}

// GasFee derives the gas limit and fee amount from simulated usage:
// gas_limit = ceil(gas_used × adjustment), fee = ceil(gas_limit × price).
func GasFee(gasUsed uint64, adjustment, price float64) (gasLimit, fee uint64) {
	gasLimit = uint64(math.Ceil(float64(gasUsed) * adjustment))
	fee = uint64(math.Ceil(float64(gasLimit) * price))
	return gasLimit, fee
}
