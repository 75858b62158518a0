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
	"fmt"
	"strings"

	"github.com/oxmail/oxmail/framework/listfile"
)

// PropNameKind discriminates the two forms of a named property.
type PropNameKind int

const (
	KindLID PropNameKind = iota
	KindName
)

// PropertyName identifies a named property: a GUID plus either a 32-bit LID
// or an ASCII name.
type PropertyName struct {
	Kind PropNameKind
	GUID string
	LID  uint32
	Name string
}

func (pn PropertyName) key() string {
	var s string
	if pn.Kind == KindLID {
		s = fmt.Sprintf("GUID=%s,LID=%d", pn.GUID, pn.LID)
	} else {
		s = fmt.Sprintf("GUID=%s,NAME=%s", pn.GUID, pn.Name)
	}
	return strings.ToLower(s)
}

// firstNamedPropID is where named-property ID assignment starts; IDs below
// it belong to the fixed property range.
const firstNamedPropID = 0x8001

// PropNameTable maps named properties to 16-bit property IDs.
//
// The table is loaded from a list file once at startup and is read-only
// afterwards, so lookups need no locking. IDs are assigned sequentially in
// file order starting at 0x8001; a duplicated key keeps the later
// assignment (and its ID position stays consumed, matching the stores this
// table has to agree with).
type PropNameTable struct {
	ids map[string]uint16
}

// LoadPropNames reads the named-property list file. Each line is
// 'GUID=<guid>,LID=<n>' or 'GUID=<guid>,NAME=<s>', compared
// case-insensitively.
func LoadPropNames(path string) (*PropNameTable, error) {
	lines, err := listfile.ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("mapi: cannot read property name list: %w", err)
	}

	t := &PropNameTable{ids: make(map[string]uint16, len(lines))}
	next := uint16(firstNamedPropID)
	for _, line := range lines {
		t.ids[strings.ToLower(line)] = next
		next++
	}
	return t, nil
}

// Len returns the number of distinct keys in the table.
func (t *PropNameTable) Len() int {
	return len(t.ids)
}

// Lookup returns the property ID assigned to the key, or 0 on a miss. The
// importer treats 0 as "unknown, skip".
func (t *PropNameTable) Lookup(name PropertyName) uint16 {
	return t.ids[name.key()]
}

// GetPropIDs resolves a batch of property names into an ID array allocated
// from the arena. Misses yield 0 entries.
func (t *PropNameTable) GetPropIDs(arena *Arena, names []PropertyName) ([]uint16, error) {
	if arena == nil {
		return nil, fmt.Errorf("mapi: GetPropIDs called without a bound arena")
	}
	ids, err := arena.PropIDs(len(names))
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		ids[i] = t.Lookup(name)
	}
	return ids, nil
}
