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
	"time"
)

// NTTime is a FILETIME timestamp: 100-nanosecond intervals since
// 1601-01-01 UTC.
type NTTime uint64

// Seconds between 1601-01-01 and 1970-01-01.
const ntUnixEpochDelta = 11644473600

// NTTimeFromTime converts t to NTTime.
func NTTimeFromTime(t time.Time) NTTime {
	return NTTime((t.Unix()+ntUnixEpochDelta)*10000000 + int64(t.Nanosecond())/100)
}

// NTTimeNow returns the current time as NTTime.
func NTTimeNow() NTTime {
	return NTTimeFromTime(time.Now())
}

// Time converts the timestamp back to time.Time.
func (nt NTTime) Time() time.Time {
	secs := int64(nt)/10000000 - ntUnixEpochDelta
	nsec := int64(nt) % 10000000 * 100
	return time.Unix(secs, nsec).UTC()
}
