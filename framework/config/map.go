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

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type matcher struct {
	name       string
	required   bool
	defaultVal func() (interface{}, error)
	mapper     func(*Map, Node) (interface{}, error)
	store      *reflect.Value
}

func (m *matcher) assign(val interface{}) {
	valRefl := reflect.ValueOf(val)
	// Convert untyped nil into typed nil, a bare reflect.Set would panic.
	if !valRefl.IsValid() {
		valRefl = reflect.Zero(m.store.Type())
	}

	m.store.Set(valRefl)
}

// Map implements reflection-based conversion between configuration
// directives and Go variables.
type Map struct {
	allowUnknown bool

	// All values saved by Map during Process.
	Values map[string]interface{}

	entries map[string]matcher

	// Configuration block Process reads directives from.
	Block Node
}

func NewMap(block Node) *Map {
	return &Map{Block: block}
}

// AllowUnknown makes Map skip unknown directives instead of failing.
func (m *Map) AllowUnknown() {
	m.allowUnknown = true
}

// Bool maps the directive to a bool variable.
//
// The directive may have no arguments (meaning true) or exactly one of
// yes/no/true/false/on/off.
func (m *Map) Bool(name string, defaultVal bool, store *bool) {
	m.Custom(name, false, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) == 0 {
			return true, nil
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected at most one argument")
		}
		switch strings.ToLower(node.Args[0]) {
		case "1", "true", "on", "yes":
			return true, nil
		case "0", "false", "off", "no":
			return false, nil
		}
		return nil, NodeErr(node, "bool argument should be 'yes' or 'no'")
	}, store)
}

// Int maps the directive with a single integer argument to an int variable.
func (m *Map) Int(name string, required bool, defaultVal int, store *int) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected exactly one argument")
		}
		i, err := strconv.Atoi(node.Args[0])
		if err != nil {
			return nil, NodeErr(node, "invalid integer: %s", node.Args[0])
		}
		return i, nil
	}, store)
}

// UInt32 maps the directive with a single unsigned integer argument to an
// uint32 variable.
func (m *Map) UInt32(name string, required bool, defaultVal uint32, store *uint32) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected exactly one argument")
		}
		i, err := strconv.ParseUint(node.Args[0], 10, 32)
		if err != nil {
			return nil, NodeErr(node, "invalid integer: %s", node.Args[0])
		}
		return uint32(i), nil
	}, store)
}

// String maps the directive with a single argument to a string variable.
func (m *Map) String(name string, required bool, defaultVal string, store *string) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected exactly one argument")
		}
		return node.Args[0], nil
	}, store)
}

// Enum maps the directive with a single argument restricted to the allowed
// set to a string variable.
func (m *Map) Enum(name string, required bool, allowed []string, defaultVal string, store *string) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected exactly one argument")
		}
		for _, str := range allowed {
			if str == node.Args[0] {
				return node.Args[0], nil
			}
		}
		return nil, NodeErr(node, "invalid argument, valid values are: %v", allowed)
	}, store)
}

// Duration maps the directive to a time.Duration variable.
//
// Arguments are joined and parsed with ParseInterval, so both Go duration
// notation ("5m30s") and the classic day notation ("1d12h") are accepted.
// The result must not be negative.
func (m *Map) Duration(name string, required bool, defaultVal time.Duration, store *time.Duration) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) == 0 {
			return nil, NodeErr(node, "at least one argument is required")
		}
		dur, err := ParseInterval(strings.Join(node.Args, ""))
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		if dur < 0 {
			return nil, NodeErr(node, "duration must not be negative")
		}
		return dur, nil
	}, store)
}

// DataSize maps the directive to an int variable holding a byte count.
// The argument is a number with an optional B/K/M/G suffix.
func (m *Map) DataSize(name string, required bool, defaultVal int, store *int) {
	m.Custom(name, required, func() (interface{}, error) {
		return defaultVal, nil
	}, func(_ *Map, node Node) (interface{}, error) {
		if len(node.Children) != 0 {
			return nil, NodeErr(node, "can't declare a block here")
		}
		if len(node.Args) != 1 {
			return nil, NodeErr(node, "expected exactly one argument")
		}
		sz, err := ParseDataSize(node.Args[0])
		if err != nil {
			return nil, NodeErr(node, "%v", err)
		}
		return sz, nil
	}, store)
}

// Custom maps the directive to an arbitrary value produced by the mapper
// callback.
//
// If required is true and the directive is missing from the block, Process
// fails; otherwise defaultVal provides the value. store must be a non-nil
// pointer of the type the mapper returns.
func (m *Map) Custom(name string, required bool, defaultVal func() (interface{}, error), mapper func(*Map, Node) (interface{}, error), store interface{}) {
	if m.entries == nil {
		m.entries = make(map[string]matcher)
	}
	if _, ok := m.entries[name]; ok {
		panic("config: duplicate matcher: " + name)
	}

	val := reflect.ValueOf(store).Elem()
	m.entries[name] = matcher{
		name:       name,
		required:   required,
		defaultVal: defaultVal,
		mapper:     mapper,
		store:      &val,
	}
}

// Process maps the directives of the configuration block to variables
// registered with the matcher methods.
func (m *Map) Process() (unknown []Node, err error) {
	return m.ProcessWith(m.Block)
}

// ProcessWith is Process for an arbitrary block.
func (m *Map) ProcessWith(block Node) (unknown []Node, err error) {
	matched := make(map[string]bool)
	m.Values = make(map[string]interface{})

	for _, subnode := range block.Children {
		matcher, ok := m.entries[subnode.Name]
		if !ok {
			if !m.allowUnknown {
				return nil, NodeErr(subnode, "unexpected directive: %s", subnode.Name)
			}
			unknown = append(unknown, subnode)
			continue
		}

		if matched[subnode.Name] {
			return nil, NodeErr(subnode, "directive specified twice: %s", subnode.Name)
		}
		matched[subnode.Name] = true

		val, err := matcher.mapper(m, subnode)
		if err != nil {
			return nil, err
		}
		m.Values[matcher.name] = val
		if matcher.store != nil {
			matcher.assign(val)
		}
	}

	for _, matcher := range m.entries {
		if matched[matcher.name] {
			continue
		}
		if matcher.required {
			return nil, NodeErr(block, "missing required directive: %s", matcher.name)
		}
		if matcher.defaultVal == nil {
			continue
		}
		val, err := matcher.defaultVal()
		if err != nil {
			return nil, err
		}
		m.Values[matcher.name] = val
		if matcher.store != nil {
			matcher.assign(val)
		}
	}

	return unknown, nil
}

// ParseDataSize converts a number with an optional B/K/M/G suffix into a
// byte count.
func ParseDataSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("missing a number")
	}

	numEnd := len(s)
	for i, ch := range s {
		if ch < '0' || ch > '9' {
			numEnd = i
			break
		}
	}
	num, err := strconv.Atoi(s[:numEnd])
	if err != nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}

	switch s[numEnd:] {
	case "G":
		return num * 1024 * 1024 * 1024, nil
	case "M":
		return num * 1024 * 1024, nil
	case "K":
		return num * 1024, nil
	case "B", "b", "":
		return num, nil
	}
	return 0, fmt.Errorf("unknown size suffix: %s", s[numEnd:])
}
