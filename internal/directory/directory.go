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

// Package directory defines the user directory capability and the pure
// locale/charset mapping utilities delivery and import rely on.
package directory

// UserInfo is the directory record of one mailbox user.
type UserInfo struct {
	// HomeDir is the mailbox store directory. Empty means the address
	// belongs to a local domain but no mailbox exists for it.
	HomeDir string
	// Lang is the user's language tag ("en", "de_DE"). May be empty.
	Lang string
	// Timezone is the user's IANA timezone name. May be empty.
	Timezone string
}

// Directory is the user directory capability bound at startup.
//
// All methods are safe for concurrent use.
type Directory interface {
	// CheckDomain reports whether the domain is served locally.
	CheckDomain(domain string) bool

	// UserInfo looks up the directory record for the address. An error
	// means the data source failed (treated as transient); a record with an
	// empty HomeDir means the user does not exist.
	UserInfo(address string) (UserInfo, error)

	// UserIDs resolves the address into numeric user and domain IDs plus
	// the address type.
	UserIDs(address string) (userID, domainID, addrType int, err error)

	// Username resolves a numeric user ID back to its primary address.
	Username(userID int) (string, error)
}
