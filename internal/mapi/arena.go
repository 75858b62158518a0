/*
Oxmail Groupware Server - Exchange-compatible groupware and mail suite.
Copyright © 2021-2024 The Oxmail Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package mapi

import (
	"errors"
	"sync/atomic"
)

// ErrArenaReleased is returned when an allocation is attempted on an arena
// that has already been released. It indicates a bug in the caller: the
// importer binds an arena on entry and must not use it past release.
var ErrArenaReleased = errors.New("mapi: arena used after release")

// Arena is the per-import allocation scope. Everything allocated through it
// during one RFC-822 import is dropped together by Release, which bounds
// the lifetime of the pointer-heavy property trees the importer builds.
//
// An Arena is bound to a single import call; it is not safe for concurrent
// use.
type Arena struct {
	// Keeps allocated objects reachable until Release.
	refs []interface{}

	released atomic.Bool
}

func NewArena() *Arena {
	return &Arena{}
}

// Hold retains v in the arena until Release.
func (a *Arena) Hold(v interface{}) error {
	if a.released.Load() {
		return ErrArenaReleased
	}
	a.refs = append(a.refs, v)
	return nil
}

// PropIDs allocates a property-ID result array from the arena.
func (a *Arena) PropIDs(n int) ([]uint16, error) {
	if a.released.Load() {
		return nil, ErrArenaReleased
	}
	ids := make([]uint16, n)
	a.refs = append(a.refs, ids)
	return ids, nil
}

// Release drops everything held by the arena. Further allocations fail
// with ErrArenaReleased. Release is idempotent.
func (a *Arena) Release() {
	if a.released.Swap(true) {
		return
	}
	a.refs = nil
}

// Released reports whether Release was called.
func (a *Arena) Released() bool {
	return a.released.Load()
}
