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

// Package module contains the module interface, the Init lifecycle helper
// and the capability container.
//
// Each self-contained part of the server (the local delivery hook, the retry
// cache, the async notification waiter, the console) is a "module". Modules
// are constructed from their configuration blocks and initialized during
// startup in the order they are passed to Lifecycle.
//
// Collaborators provided by the host process (the MTA queue runtime, the
// user directory, the message store client, the session table) are
// "capabilities". They are bound into a Container exactly once before any
// module starts; a missing capability aborts startup with a diagnostic
// naming it.
package module

import (
	"github.com/oxmail/oxmail/framework/config"
)

// Module is implemented by all module instances.
//
// A module can additionally implement io.Closer if it needs cleanup on
// shutdown. Long-lived goroutines started by the module must be stopped
// before Close returns.
type Module interface {
	// Init reads the module configuration and prepares the module for use.
	//
	// It is separate from the constructor so that all instances exist by the
	// time initialization runs and modules can reference each other
	// regardless of configuration order.
	Init(*config.Map) error

	// Name reports the module name used in configuration and logs.
	Name() string

	// InstanceName reports the unique name of this instance, or an empty
	// string for unnamed instances.
	InstanceName() string
}

// Lifecycle runs Init on every module in order, stopping at the first
// failure. Configuration blocks are matched to modules by Name.
func Lifecycle(mods []Module, blocks map[string]config.Node) error {
	for _, mod := range mods {
		block := blocks[mod.Name()]
		if err := mod.Init(config.NewMap(block)); err != nil {
			return err
		}
	}
	return nil
}
