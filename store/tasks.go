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
	"time"

	"github.com/croncats/croncatd/contracts"
)

// eventsFileName holds the evented tasks cache.
const eventsFileName = "events.json"

// EventsTTL bounds how long the evented task set is trusted before a
// reload from chain.
const EventsTTL = time.Hour

// UnboundedIndex is the range key of always-evaluable evented tasks.
const UnboundedIndex uint64 = 0

// TasksCacheEntry is the persisted evented-task snapshot. Events maps a
// range key — 0 for unbounded, otherwise the earliest activation height or
// UNIX-second — to the tasks indexed by hash under that key.
type TasksCacheEntry struct {
	Expires int64                                        `json:"expires"`
	Events  map[uint64]map[string]contracts.TaskInfo     `json:"events"`
}

// EventStore owns events.json.
type EventStore struct {
	path string
	data *TasksCacheEntry
}

// NewEventStore opens the evented tasks cache in dir, loading existing data.
func NewEventStore(dir string) (*EventStore, error) {
	s := &EventStore{path: filepath.Join(dir, eventsFileName)}
	var entry TasksCacheEntry
	ok, err := readJSONFile(s.path, &entry)
	if err != nil {
		return nil, err
	}
	if ok {
		s.data = &entry
	}
	return s, nil
}

// Get returns the cached entry, or nil when absent, expired or empty.
func (s *EventStore) Get() *TasksCacheEntry {
	if s.IsExpired() || !s.HasEvents() {
		return nil
	}
	return s.data
}

// IsExpired reports whether the cache must be reloaded from chain.
func (s *EventStore) IsExpired() bool {
	return s.data == nil || time.Now().Unix() > s.data.Expires
}

// HasEvents reports whether any task is cached.
func (s *EventStore) HasEvents() bool {
	if s.data == nil {
		return false
	}
	for _, tasks := range s.data.Events {
		if len(tasks) > 0 {
			return true
		}
	}
	return false
}

// Insert merges tasks under one range key, refreshes the TTL and persists.
func (s *EventStore) Insert(index uint64, tasks []contracts.TaskInfo) error {
	if s.data == nil {
		s.data = &TasksCacheEntry{Events: make(map[uint64]map[string]contracts.TaskInfo)}
	}
	s.data.Expires = time.Now().Add(EventsTTL).Unix()

	byHash := s.data.Events[index]
	if byHash == nil {
		byHash = make(map[string]contracts.TaskInfo)
		s.data.Events[index] = byHash
	}
	for _, t := range tasks {
		byHash[t.TaskHash] = t
	}
	return writeJSONFile(s.path, s.data)
}

// EventsByIndex returns the tasks under one range key of the unexpired
// cache; nil when nothing is cached there.
func (s *EventStore) EventsByIndex(index uint64) []contracts.TaskInfo {
	entry := s.Get()
	if entry == nil {
		return nil
	}
	byHash, ok := entry.Events[index]
	if !ok {
		return nil
	}
	out := make([]contracts.TaskInfo, 0, len(byHash))
	for _, t := range byHash {
		out = append(out, t)
	}
	return out
}

// Stats totals the unbounded and ranged task counts.
func (s *EventStore) Stats() (unbounded, ranged uint64) {
	if s.data == nil {
		return 0, 0
	}
	for index, tasks := range s.data.Events {
		if index == UnboundedIndex {
			unbounded += uint64(len(tasks))
		} else {
			ranged += uint64(len(tasks))
		}
	}
	return unbounded, ranged
}

// ClearAll drops every cached task and expires the cache immediately so the
// next refresh reloads from chain.
func (s *EventStore) ClearAll() error {
	s.data = &TasksCacheEntry{
		Expires: time.Now().Unix(),
		Events:  make(map[uint64]map[string]contracts.TaskInfo),
	}
	return writeJSONFile(s.path, s.data)
}

// ClearLTEIndex drops every range key at or below index, preserving the
// unbounded key.
func (s *EventStore) ClearLTEIndex(index uint64) error {
	if s.data == nil {
		return nil
	}
	for k := range s.data.Events {
		if k != UnboundedIndex && k <= index {
			delete(s.data.Events, k)
		}
	}
	return writeJSONFile(s.path, s.data)
}
