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

// TaggedPropval is a single property tag together with its value.
type TaggedPropval struct {
	Tag   PropTag
	Value interface{}
}

// PropList is an ordered property-tag to value mapping. The zero value is
// ready to use.
type PropList struct {
	vals []TaggedPropval
}

// Set stores the value for tag, replacing an existing one.
func (pl *PropList) Set(tag PropTag, value interface{}) {
	for i := range pl.vals {
		if pl.vals[i].Tag == tag {
			pl.vals[i].Value = value
			return
		}
	}
	pl.vals = append(pl.vals, TaggedPropval{Tag: tag, Value: value})
}

// Get returns the value stored for tag, or nil.
func (pl *PropList) Get(tag PropTag) interface{} {
	for i := range pl.vals {
		if pl.vals[i].Tag == tag {
			return pl.vals[i].Value
		}
	}
	return nil
}

// Remove deletes the value stored for tag, if any.
func (pl *PropList) Remove(tag PropTag) {
	for i := range pl.vals {
		if pl.vals[i].Tag == tag {
			pl.vals = append(pl.vals[:i], pl.vals[i+1:]...)
			return
		}
	}
}

// Has reports whether tag is present.
func (pl *PropList) Has(tag PropTag) bool {
	return pl.Get(tag) != nil
}

// Len returns the number of stored properties.
func (pl *PropList) Len() int {
	return len(pl.vals)
}

// All returns the stored properties in insertion order. The returned slice
// is shared with the list and must not be modified.
func (pl *PropList) All() []TaggedPropval {
	return pl.vals
}

// GetUint32 returns the uint32 value stored for tag and whether it was
// present with that type.
func (pl *PropList) GetUint32(tag PropTag) (uint32, bool) {
	v, ok := pl.Get(tag).(uint32)
	return v, ok
}

// GetBool returns the bool value stored for tag and whether it was present
// with that type.
func (pl *PropList) GetBool(tag PropTag) (bool, bool) {
	v, ok := pl.Get(tag).(bool)
	return v, ok
}

// GetString returns the string value stored for tag and whether it was
// present with that type.
func (pl *PropList) GetString(tag PropTag) (string, bool) {
	v, ok := pl.Get(tag).(string)
	return v, ok
}

// Attachment is a single attachment of a message.
type Attachment struct {
	Props PropList
}

// Message is the structured message object sent to the store: the top-level
// property list plus attachments.
type Message struct {
	Props       PropList
	Attachments []*Attachment
}
