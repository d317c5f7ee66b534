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

// Package store persists the agent's small JSON caches under
// $HOME/.croncatd: the factory cache, the evented tasks cache and the agent
// key map. Each file has a single owning writer.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/croncats/croncatd/log"
)

var logger = log.NewModuleLogger(log.Store)

// DefaultDirName is the storage directory under $HOME.
const DefaultDirName = ".croncatd"

// DefaultDir resolves the agent storage directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "cannot resolve home directory")
	}
	return filepath.Join(home, DefaultDirName), nil
}

// LogsDir resolves the per-chain log directory under the storage dir.
func LogsDir() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// writeJSONFile writes v pretty-printed, creating parent directories.
func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "cannot create directory for %s", path)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cannot encode %s", path)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return nil
}

// readJSONFile loads path into v; ok is false when the file is absent.
func readJSONFile(path string, v interface{}) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cannot read %s", path)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "cannot decode %s", path)
	}
	return true, nil
}
