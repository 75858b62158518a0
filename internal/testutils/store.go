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
	"sync"

	"github.com/oxmail/oxmail/internal/exmdb"
	"github.com/oxmail/oxmail/internal/mapi"
)

// StoreCall records one DeliveryMessage invocation.
type StoreCall struct {
	HomeDir string
	From    string
	Rcpt    string
	Flags   uint32
	Digest  string

	// Decorated property values captured at call time.
	DeliveryTime  interface{}
	ChangeNumber  interface{}
	AutoRespSupp  interface{}
	ReceiptWanted interface{}
}

// Store is a scripted store client. Results are consumed per call in
// order; when the script runs out, DefaultResult is returned.
type Store struct {
	mu            sync.Mutex
	Results       []exmdb.Result
	DefaultResult exmdb.Result
	Calls         []StoreCall

	Pools map[string]exmdb.PoolInfo
}

func (s *Store) DeliveryMessage(homeDir, from, rcpt string, flags uint32, msg *mapi.Message, digest []byte) exmdb.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, StoreCall{
		HomeDir:       homeDir,
		From:          from,
		Rcpt:          rcpt,
		Flags:         flags,
		Digest:        string(digest),
		DeliveryTime:  msg.Props.Get(mapi.TagMessageDeliveryTime),
		ChangeNumber:  msg.Props.Get(mapi.TagChangeNumber),
		AutoRespSupp:  msg.Props.Get(mapi.TagAutoResponseSuppress),
		ReceiptWanted: msg.Props.Get(mapi.TagOriginatorDeliveryReportRequested),
	})

	if len(s.Results) != 0 {
		res := s.Results[0]
		s.Results = s.Results[1:]
		return res
	}
	return s.DefaultResult
}

func (s *Store) PoolInfo(homeDir string) (exmdb.PoolInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.Pools[homeDir]
	return info, ok
}

// CallCount returns the number of store calls so far.
func (s *Store) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// LastCall returns the most recent call, or a zero value.
func (s *Store) LastCall() StoreCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return StoreCall{}
	}
	return s.Calls[len(s.Calls)-1]
}
