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

// oxmaild runs the local delivery pipeline standalone: the user directory
// comes from list files, outgoing messages (bounces, auto-replies) go to
// a spool directory, and the store transport is whatever the build links
// in (without one, deliveries park in the retry cache).
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/oxmail/oxmail"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/framework/module"
	"github.com/oxmail/oxmail/internal/asyncwait"
	"github.com/oxmail/oxmail/internal/directory"
	"github.com/oxmail/oxmail/internal/exmdb"
	"github.com/oxmail/oxmail/internal/mta"
)

// noSessions is the session table used when no emsmdb front-end is
// linked into the process: every handle is invalid.
type noSessions struct{}

func (noSessions) ResolveHandle(asyncwait.Handle, bool) (string, uint16, bool) {
	return "", 0, false
}

func (noSessions) HasPending(asyncwait.Handle) bool { return false }

// noResponder drops replies for the same reason.
type noResponder struct{}

func (noResponder) BuildEnvironment(uint32) bool     { return false }
func (noResponder) Reply(uint32, *asyncwait.WaitOut) {}

func main() {
	app := &cli.App{
		Name:  "oxmaild",
		Usage: "oxmail local delivery daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "configuration file to use",
				EnvVars: []string{"OXMAIL_CONFIG"},
				Value:   "/etc/oxmail/oxmail.conf",
			},
			&cli.StringFlag{
				Name:  "domains",
				Usage: "local domain list file",
				Value: "/etc/oxmail/domains.list",
			},
			&cli.StringFlag{
				Name:  "users",
				Usage: "user list file",
				Value: "/etc/oxmail/users.list",
			},
			&cli.StringFlag{
				Name:  "spool",
				Usage: "spool directory for generated messages",
				Value: "/var/spool/oxmail",
			},
			&cli.StringFlag{
				Name:  "hostname",
				Usage: "host identifier used in delivered file names",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Println(err)
		os.Exit(2)
	}
}

func run(ctx *cli.Context) error {
	log.DefaultLogger.Debug = ctx.Bool("debug")

	hostname := ctx.String("hostname")
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	userDir, err := directory.LoadFileDirectory(ctx.String("domains"), ctx.String("users"))
	if err != nil {
		return err
	}

	spool := ctx.String("spool")
	if err := os.MkdirAll(spool, 0o777); err != nil {
		return err
	}
	host := mta.NewContextPool(256, firstDomain(ctx.String("domains")), hostname, func(mctx *mta.MessageContext) {
		path := filepath.Join(spool, uuid.New().String()+".eml")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
		if err != nil {
			log.Printf("spool: %v", err)
			return
		}
		defer f.Close()
		if err := mctx.Mail.WriteTo(f); err != nil {
			log.Printf("spool: %v", err)
			os.Remove(path)
		}
	})

	caps := module.NewContainer()
	caps.Set(oxmail.CapHost, host)
	caps.Set(oxmail.CapDirectory, userDir)
	caps.Set(oxmail.CapStoreClient, exmdb.Unavailable{})
	caps.Set(oxmail.CapSessionTable, noSessions{})
	caps.Set(oxmail.CapRPCResponder, noResponder{})

	if code := oxmail.Run(ctx.String("config"), caps); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// firstDomain picks the postmaster domain for the standalone setup.
func firstDomain(domainsPath string) string {
	raw, err := os.ReadFile(domainsPath)
	if err != nil {
		return "localhost"
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line[0] != '#' {
			return line
		}
	}
	return "localhost"
}
