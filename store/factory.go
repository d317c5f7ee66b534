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
	"fmt"
	"path/filepath"
	"time"

	"github.com/croncats/croncatd/contracts"
)

// factoryFileName holds the factory contract cache.
const factoryFileName = "cache.json"

// FactoryTTL bounds how long resolved contract addresses are trusted.
const FactoryTTL = time.Hour

// FactoryCacheEntry is the persisted factory snapshot. Latest maps contract
// names to their newest version; Versions maps "name:major.minor" keys to
// the full metadata. For a given key the address never changes within one
// cache lifetime.
type FactoryCacheEntry struct {
	Expires  int64                                  `json:"expires"`
	Latest   map[string]contracts.ContractVersion   `json:"latest"`
	Versions map[string]contracts.ContractMetadata  `json:"versions"`
}

// VersionKey renders the map key for one (name, version) pair.
func VersionKey(name string, v contracts.ContractVersion) string {
	return fmt.Sprintf("%s:%d.%d", name, v[0], v[1])
}

// FactoryStore owns cache.json.
type FactoryStore struct {
	path string
	data *FactoryCacheEntry
}

// NewFactoryStore opens the factory cache in dir, loading existing data.
func NewFactoryStore(dir string) (*FactoryStore, error) {
	s := &FactoryStore{path: filepath.Join(dir, factoryFileName)}
	var entry FactoryCacheEntry
	ok, err := readJSONFile(s.path, &entry)
	if err != nil {
		return nil, err
	}
	if ok {
		s.data = &entry
	}
	return s, nil
}

// Get returns the cached entry, or nil when absent or expired.
func (s *FactoryStore) Get() *FactoryCacheEntry {
	if s.data == nil || time.Now().Unix() > s.data.Expires {
		return nil
	}
	return s.data
}

// Insert replaces the cache with fresh factory data and persists it.
func (s *FactoryStore) Insert(latest map[string]contracts.ContractVersion, versions map[string]contracts.ContractMetadata) error {
	s.data = &FactoryCacheEntry{
		Expires:  time.Now().Add(FactoryTTL).Unix(),
		Latest:   latest,
		Versions: versions,
	}
	return writeJSONFile(s.path, s.data)
}
