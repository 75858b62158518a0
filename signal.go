//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

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
	"os/signal"
	"syscall"

	"github.com/oxmail/oxmail/framework/hooks"
	"github.com/oxmail/oxmail/framework/log"
)

// handleSignals listens on the OS signal channel and returns when a
// termination signal (SIGTERM, SIGHUP, SIGINT) arrives.
//
// SIGUSR2 triggers the reload hooks without returning.
func handleSignals() os.Signal {
	sig := make(chan os.Signal, 5)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT, syscall.SIGUSR2)

	for {
		switch s := <-sig; s {
		case syscall.SIGUSR2:
			log.Println("SIGUSR2 received, reloading secondary resources")
			hooks.RunHooks(hooks.EventReload)
		default:
			go func() {
				s := handleSignals()
				log.Printf("forced shutdown due to signal (%v)!", s)
				os.Exit(1)
			}()

			log.Printf("signal received (%v), next signal will force immediate shutdown.", s)
			return s
		}
	}
}
