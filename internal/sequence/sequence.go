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

// Package sequence issues the process-wide rolling counter used to make
// delivered message filenames unique.
package sequence

import (
	"sync"
)

// Sequencer returns strictly increasing 31-bit values, wrapping to 1 after
// reaching 0x7FFFFFFF. Uniqueness holds only within one wrap window;
// filenames combine the value with wall-clock seconds and the hostname, so
// callers must not depend on uniqueness across wraps.
type Sequencer struct {
	mu sync.Mutex
	id int32
}

func New() *Sequencer {
	return &Sequencer{id: 1}
}

// Next returns the next sequence value.
func (s *Sequencer) Next() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id >= 0x7FFFFFFF {
		s.id = 1
	} else {
		s.id++
	}
	return s.id
}
