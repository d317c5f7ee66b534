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

// Package monitor pings an external uptime monitor after successful work.
package monitor

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/croncats/croncatd/log"
)

var logger = log.NewModuleLogger(log.Monitor)

// PingURLEnv names the environment variable carrying the monitor URL. When
// unset, pings are a no-op.
const PingURLEnv = "UPTIME_MONITOR_PING_URL"

const pingTimeout = 10 * time.Second

// Monitor issues fire-and-forget GET probes. Failures are logged and never
// propagate: a broken monitor must not take the agent down with it.
type Monitor struct {
	url    string
	client *http.Client
}

// FromEnv builds a monitor from UPTIME_MONITOR_PING_URL.
func FromEnv() *Monitor {
	return &Monitor{
		url:    os.Getenv(PingURLEnv),
		client: &http.Client{Timeout: pingTimeout},
	}
}

// Ping notifies the uptime monitor once, if one is configured.
func (m *Monitor) Ping(ctx context.Context) {
	if m.url == "" {
		return
	}
	logger.Trace("Pinging uptime monitor")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		logger.Warn("Invalid uptime monitor url", "err", err)
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		logger.Warn("Failed to ping uptime monitor", "err", err)
		return
	}
	resp.Body.Close()
}
