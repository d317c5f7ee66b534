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

package system

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/croncats/croncatd/store"
)

// servicesDirName is where generated unit files live under the storage dir.
const servicesDirName = "system-services"

const unitTemplate = `[Unit]
Description=croncatd %[1]s agent
After=multi-user.target

[Service]
Type=simple
User=%[2]s
WorkingDirectory=%[3]s
ExecStart=%[4]s go --chain-id %[1]s
StandardOutput=append:/var/log/croncatd-%[1]s.log
StandardError=append:/var/log/croncatd-%[1]s-error.log
Restart=on-failure
RestartSec=60
KillSignal=SIGINT
TimeoutStopSec=45
KillMode=mixed

[Install]
WantedBy=multi-user.target
`

// WriteServiceFile renders a systemd unit for the given chain into the
// storage directory and returns its path. Linking and enabling are left to
// the operator; the daemon never calls systemctl itself.
func WriteServiceFile(chainID string) (string, error) {
	storageDir, err := store.DefaultDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(storageDir, servicesDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "cannot create %s", dir)
	}

	usr, err := user.Current()
	if err != nil {
		return "", errors.Wrap(err, "cannot resolve current user")
	}
	exe, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "cannot resolve executable path")
	}

	path := filepath.Join(dir, fmt.Sprintf("croncatd-%s.service", chainID))
	unit := fmt.Sprintf(unitTemplate, chainID, usr.Username, dir, exe)
	if err := os.WriteFile(path, []byte(unit), 0o644); err != nil {
		return "", errors.Wrapf(err, "cannot write %s", path)
	}

	logger.Info("Created service file", "chain", chainID, "path", path)
	return path, nil
}
