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

package directory

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/oxmail/oxmail/framework/listfile"
)

// FileDirectory is a list-file backed Directory for deployments without a
// directory database: one record per user with
// address, home directory, language and timezone fields, plus a domain
// list. Used by small installations and by integration setups.
type FileDirectory struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	users   map[string]UserInfo
	ids     map[string]int
	byID    map[int]string
}

// LoadFileDirectory reads the domain and user list files.
func LoadFileDirectory(domainsPath, usersPath string) (*FileDirectory, error) {
	fd := &FileDirectory{
		domains: make(map[string]struct{}),
		users:   make(map[string]UserInfo),
		ids:     make(map[string]int),
		byID:    make(map[int]string),
	}

	domains, err := listfile.ReadLines(domainsPath)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	for _, d := range domains {
		fd.domains[strings.ToLower(d)] = struct{}{}
	}

	users, err := listfile.ReadRecords(usersPath)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	for i, rec := range users {
		if len(rec) < 2 {
			return nil, fmt.Errorf("directory: user record %d: need at least address and home", i+1)
		}
		info := UserInfo{HomeDir: rec[1]}
		if len(rec) > 2 {
			info.Lang = rec[2]
		}
		if len(rec) > 3 {
			info.Timezone = rec[3]
		}
		addr := strings.ToLower(rec[0])
		fd.users[addr] = info
		fd.ids[addr] = i + 1
		fd.byID[i+1] = addr
	}
	return fd, nil
}

func (fd *FileDirectory) CheckDomain(domain string) bool {
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	_, ok := fd.domains[strings.ToLower(domain)]
	return ok
}

func (fd *FileDirectory) UserInfo(address string) (UserInfo, error) {
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	return fd.users[strings.ToLower(address)], nil
}

func (fd *FileDirectory) UserIDs(address string) (int, int, int, error) {
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	id, ok := fd.ids[strings.ToLower(address)]
	if !ok {
		return 0, 0, 0, fmt.Errorf("directory: no such user: %s", address)
	}
	return id, 1, 0, nil
}

func (fd *FileDirectory) Username(userID int) (string, error) {
	fd.mu.RLock()
	defer fd.mu.RUnlock()
	addr, ok := fd.byID[userID]
	if !ok {
		return "", fmt.Errorf("directory: no such user ID: %s", strconv.Itoa(userID))
	}
	return addr, nil
}
