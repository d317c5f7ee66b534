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
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	bip39 "github.com/cosmos/go-bip39"
	"github.com/pkg/errors"
)

// DerivationPath is the cosmos-hub style BIP32 path every agent key uses.
const DerivationPath = "m/44'/118'/0'/0/0"

// GenerateMnemonic produces a fresh 24-word seed phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", errors.Wrap(err, "cannot gather entropy")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.Wrap(err, "cannot build mnemonic")
	}
	return mnemonic, nil
}

// DerivePrivKey turns a mnemonic into the agent's secp256k1 signing key.
func DerivePrivKey(mnemonic string) (cryptotypes.PrivKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}
	derived, err := hd.Secp256k1.Derive()(mnemonic, "", DerivationPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot derive key")
	}
	return hd.Secp256k1.Generate()(derived), nil
}

// Bech32Address renders the key's account address under the chain prefix.
func Bech32Address(key cryptotypes.PrivKey, prefix string) (string, error) {
	addr, err := bech32.ConvertAndEncode(prefix, key.PubKey().Address())
	if err != nil {
		return "", errors.Wrap(err, "cannot encode bech32 address")
	}
	return addr, nil
}
