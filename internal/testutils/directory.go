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

package testutils

import (
	"fmt"
	"strings"

	"github.com/oxmail/oxmail/internal/directory"
)

// Directory is a static user directory for tests.
type Directory struct {
	// Domains served locally.
	Domains []string
	// Users maps lowercased addresses to their records.
	Users map[string]directory.UserInfo
	// LookupErr, when set, fails every UserInfo call (data source down).
	LookupErr error
}

func (d *Directory) CheckDomain(domain string) bool {
	for _, dom := range d.Domains {
		if strings.EqualFold(dom, domain) {
			return true
		}
	}
	return false
}

func (d *Directory) UserInfo(address string) (directory.UserInfo, error) {
	if d.LookupErr != nil {
		return directory.UserInfo{}, d.LookupErr
	}
	// A local-domain address without a record is a valid "no such user"
	// answer, expressed as an empty home directory.
	return d.Users[strings.ToLower(address)], nil
}

func (d *Directory) UserIDs(address string) (int, int, int, error) {
	if _, ok := d.Users[strings.ToLower(address)]; !ok {
		return 0, 0, 0, fmt.Errorf("no such user: %s", address)
	}
	return 1, 1, 0, nil
}

func (d *Directory) Username(userID int) (string, error) {
	return "", fmt.Errorf("no such user ID: %d", userID)
}
