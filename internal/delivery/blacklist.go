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

package delivery

import (
	"os"
	"strings"
	"sync"

	"github.com/oxmail/oxmail/framework/listfile"
)

// Blacklist is the optional recipient blacklist: listed addresses are
// treated as nonexistent users without a store call. The file is one
// address per line in the shared list-file format and can be reloaded at
// runtime.
type Blacklist struct {
	path string

	mu  sync.RWMutex
	set map[string]struct{}
}

// LoadBlacklist reads the blacklist at path. An empty path or a missing
// file yields an empty, still reloadable blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := &Blacklist{path: path, set: map[string]struct{}{}}
	if err := bl.Reload(); err != nil {
		return nil, err
	}
	return bl, nil
}

// Reload re-reads the backing file.
func (bl *Blacklist) Reload() error {
	if bl.path == "" {
		return nil
	}
	lines, err := listfile.ReadLines(bl.path)
	if err != nil {
		if os.IsNotExist(err) {
			lines = nil
		} else {
			return err
		}
	}

	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		set[strings.ToLower(line)] = struct{}{}
	}

	bl.mu.Lock()
	bl.set = set
	bl.mu.Unlock()
	return nil
}

// Contains reports whether the address is blacklisted.
func (bl *Blacklist) Contains(address string) bool {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	_, ok := bl.set[strings.ToLower(address)]
	return ok
}
