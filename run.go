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

package oxmail

import (
	"os"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/framework/module"
)

// ReadConfig parses the configuration file at path.
func ReadConfig(path string) ([]config.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return config.Read(f, path)
}

// Run assembles the server from the configuration file and the bound
// capabilities and runs it until a termination signal. The return value
// is the process exit code.
func Run(configPath string, caps *module.Container) int {
	cfg, err := ReadConfig(configPath)
	if err != nil {
		log.Println(err)
		return 2
	}

	srv, err := Assemble(cfg, caps)
	if err != nil {
		log.Println(err)
		return 2
	}
	if err := srv.Init(); err != nil {
		log.Println(err)
		return 2
	}
	if err := srv.Start(); err != nil {
		log.Println(err)
		return 1
	}

	handleSignals()
	srv.Stop()
	return 0
}
