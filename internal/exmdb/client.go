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

// Package exmdb defines the message store RPC client capability. The
// transport lives outside this repository; delivery only depends on this
// interface and the result taxonomy.
package exmdb

import (
	"github.com/oxmail/oxmail/internal/mapi"
)

// Result is the status of a store-side delivery call.
type Result int

const (
	ResultOK Result = iota
	ResultMailboxFull
	// ResultRuntimeError is a store-side execution failure.
	ResultRuntimeError
	// ResultNoServer means no connection to the store serving the mailbox.
	ResultNoServer
	// ResultRdwrError is a transport read/write failure mid-call.
	ResultRdwrError
	// ResultError is a malformed or unexpected store response.
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultMailboxFull:
		return "mailbox full"
	case ResultRuntimeError:
		return "runtime error"
	case ResultNoServer:
		return "no server"
	case ResultRdwrError:
		return "read/write error"
	case ResultError:
		return "result error"
	}
	return "unknown"
}

// PoolInfo describes the connection pool serving one mailbox directory;
// exposed through the console 'echo' command.
type PoolInfo struct {
	Addr  string
	Port  int
	Total int
	Alive int
}

// Client is the store RPC capability bound at startup.
//
// All methods are safe for concurrent use.
type Client interface {
	// DeliveryMessage stores the message into the mailbox at homeDir. The
	// digest is the JSON summary the store indexes the message by; it
	// references the .eml file which must be fully written and closed
	// before this call.
	DeliveryMessage(homeDir, from, rcpt string, flags uint32, msg *mapi.Message, digest []byte) Result

	// PoolInfo reports the connection pool state for the store serving
	// homeDir. ok is false when the directory is not known.
	PoolInfo(homeDir string) (info PoolInfo, ok bool)
}
