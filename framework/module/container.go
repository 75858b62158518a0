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

package module

import (
	"fmt"
)

// Container holds host-provided capabilities keyed by name.
//
// It replaces lookups of individual host entry points scattered across the
// code: every capability is bound exactly once during startup and the
// container is read-only afterwards. Set panics on a nil or duplicate
// binding and Get/GetAs return an error naming a missing capability,
// instead of letting a nil collaborator surface as a crash mid-delivery.
type Container struct {
	caps map[string]interface{}

	sealed bool
}

func NewContainer() *Container {
	return &Container{caps: make(map[string]interface{})}
}

// Set binds the capability value under name. Binding after Seal or binding
// a name twice is a programming error and panics.
func (c *Container) Set(name string, v interface{}) {
	if c.sealed {
		panic("module: capability bound after container was sealed")
	}
	if _, ok := c.caps[name]; ok {
		panic("module: duplicate capability: " + name)
	}
	if v == nil {
		panic("module: nil capability: " + name)
	}
	c.caps[name] = v
}

// Seal marks the container read-only. All startup binding must happen before
// modules initialize.
func (c *Container) Seal() {
	c.sealed = true
}

// Get returns the capability bound under name.
func (c *Container) Get(name string) (interface{}, error) {
	v, ok := c.caps[name]
	if !ok {
		return nil, fmt.Errorf("module: missing capability: %q", name)
	}
	return v, nil
}

// GetAs fetches the capability bound under name and type-asserts it into T.
//
// Startup code uses it to turn the untyped container entry into the concrete
// collaborator interface, aborting with a precise diagnostic when either the
// binding or the type is wrong.
func GetAs[T any](c *Container, name string) (T, error) {
	var empty T

	v, err := c.Get(name)
	if err != nil {
		return empty, err
	}
	t, ok := v.(T)
	if !ok {
		return empty, fmt.Errorf("module: capability %q has wrong type %T", name, v)
	}
	return t, nil
}
