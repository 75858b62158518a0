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

package exmdb

import (
	"github.com/oxmail/oxmail/internal/mapi"
)

// Unavailable is the Client used when no store transport is linked into
// the process. Every delivery reports a missing server, so messages stay
// in the retry cache until a transport shows up or the retry budget runs
// out.
type Unavailable struct{}

func (Unavailable) DeliveryMessage(homeDir, from, rcpt string, flags uint32, msg *mapi.Message, digest []byte) Result {
	return ResultNoServer
}

func (Unavailable) PoolInfo(homeDir string) (PoolInfo, bool) {
	return PoolInfo{}, false
}
