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

package store

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// agentsFileName holds the named agent key map.
const agentsFileName = "agents.json"

// AgentEntry is one stored agent identity. The mnemonic is the root secret;
// account addresses are derived per chain prefix at use time.
type AgentEntry struct {
	Mnemonic         string `json:"mnemonic"`
	PayableAccountID string `json:"payable_account_id,omitempty"`
}

// KeyStore owns agents.json.
type KeyStore struct {
	path string
	data map[string]AgentEntry
}

// NewKeyStore opens the agent key map in dir, loading existing entries.
func NewKeyStore(dir string) (*KeyStore, error) {
	s := &KeyStore{
		path: filepath.Join(dir, agentsFileName),
		data: make(map[string]AgentEntry),
	}
	if _, err := readJSONFile(s.path, &s.data); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the entry stored under name.
func (s *KeyStore) Get(name string) (AgentEntry, bool) {
	entry, ok := s.data[name]
	return entry, ok
}

// Register stores a new agent identity. Existing names are never
// overwritten; losing a funded key to a typo is not a recoverable mistake.
func (s *KeyStore) Register(name, mnemonic, payableAccountID string) error {
	if _, exists := s.data[name]; exists {
		return errors.Errorf("agent %q already exists in key store", name)
	}
	s.data[name] = AgentEntry{Mnemonic: mnemonic, PayableAccountID: payableAccountID}
	if err := writeJSONFile(s.path, s.data); err != nil {
		return err
	}
	logger.Info("Stored new agent key", "name", name)
	return nil
}
