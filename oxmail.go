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

// Package oxmail assembles the local delivery pipeline and the async
// notification waiter from a configuration file and a set of host-bound
// capabilities, and runs them until shutdown.
package oxmail

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/framework/hooks"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/framework/module"
	"github.com/oxmail/oxmail/internal/asyncwait"
	"github.com/oxmail/oxmail/internal/audit"
	"github.com/oxmail/oxmail/internal/autoreply"
	"github.com/oxmail/oxmail/internal/bounce"
	"github.com/oxmail/oxmail/internal/console"
	"github.com/oxmail/oxmail/internal/delivery"
	"github.com/oxmail/oxmail/internal/directory"
	"github.com/oxmail/oxmail/internal/exmdb"
	"github.com/oxmail/oxmail/internal/importer"
	"github.com/oxmail/oxmail/internal/mapi"
	"github.com/oxmail/oxmail/internal/mta"
	"github.com/oxmail/oxmail/internal/retrycache"
)

// Capability names looked up in the module container during assembly.
const (
	CapHost         = "mta_host"
	CapDirectory    = "user_directory"
	CapStoreClient  = "store_client"
	CapSessionTable = "session_table"
	CapRPCResponder = "rpc_responder"
)

// Server is the assembled delivery service.
type Server struct {
	Log log.Logger

	Delivery *delivery.LocalDelivery
	Waiter   *asyncwait.Registry
	Cache    *retrycache.Cache
	Console  *console.Server

	modules []module.Module
	blocks  map[string]config.Node
}

// Assemble builds the server from the parsed configuration and the bound
// capabilities. Missing capabilities or directives fail with diagnostics
// naming the missing piece.
func Assemble(cfgNodes []config.Node, caps *module.Container) (*Server, error) {
	caps.Seal()

	host, err := module.GetAs[mta.Host](caps, CapHost)
	if err != nil {
		return nil, err
	}
	userDir, err := module.GetAs[directory.Directory](caps, CapDirectory)
	if err != nil {
		return nil, err
	}
	store, err := module.GetAs[exmdb.Client](caps, CapStoreClient)
	if err != nil {
		return nil, err
	}
	sessions, err := module.GetAs[asyncwait.SessionTable](caps, CapSessionTable)
	if err != nil {
		return nil, err
	}
	responder, err := module.GetAs[asyncwait.Responder](caps, CapRPCResponder)
	if err != nil {
		return nil, err
	}

	// Top-level directives; per-module blocks are dispatched to the
	// modules themselves afterwards.
	var (
		stateDir       string
		defaultDomain  string
		hostname       string
		propnamePath   string
		blacklistPath  string
		bounceDir      string
		contextNum     int
		threadsNum     int
		cacheScan      time.Duration
		retryInterval  time.Duration
		retryingTimes  int
		maxParallelism int
		bounceCapacity int
		bounceInterval time.Duration
		responseItvl   time.Duration
		alarmTimes     int
		statInterval   time.Duration
		alarmInterval  time.Duration
		consoleListen  string
	)
	root := config.Node{Children: topLevel(cfgNodes)}
	m := config.NewMap(root)
	m.String("state_dir", false, "/var/lib/oxmail", &stateDir)
	m.String("default_domain", true, "", &defaultDomain)
	m.String("hostname", false, "", &hostname)
	m.String("propname_list", true, "", &propnamePath)
	m.String("blacklist", false, "", &blacklistPath)
	m.String("bounce_resource_dir", false, "", &bounceDir)
	m.Int("context_num", false, 200, &contextNum)
	m.Int("threads_num", false, 4, &threadsNum)
	m.Duration("cache_scan_interval", false, 3*time.Minute, &cacheScan)
	m.Duration("retry_interval", false, 15*time.Minute, &retryInterval)
	m.Int("retrying_times", false, 30, &retryingTimes)
	m.Int("max_parallelism", false, 16, &maxParallelism)
	m.Int("bounce_capacity", false, 5, &bounceCapacity)
	m.Duration("bounce_interval", false, time.Hour, &bounceInterval)
	m.Duration("response_interval", false, 3*time.Minute, &responseItvl)
	m.Int("alarm_times", false, 100, &alarmTimes)
	m.Duration("statistic_interval", false, time.Hour, &statInterval)
	m.Duration("alarm_interval", false, 30*time.Minute, &alarmInterval)
	m.String("console_listen", false, "tcp:127.0.0.1:7788", &consoleListen)
	if _, err := m.Process(); err != nil {
		return nil, err
	}
	if hostname == "" {
		hostname = host.HostID()
	}

	if err := os.MkdirAll(stateDir, 0o777); err != nil {
		return nil, err
	}

	propnames, err := mapi.LoadPropNames(propnamePath)
	if err != nil {
		return nil, err
	}

	state, err := config.OpenKVFile(filepath.Join(stateDir, "runtime.cfg"))
	if err != nil {
		return nil, err
	}
	applyRuntimeOverrides(state, &retryingTimes, &cacheScan, &responseItvl,
		&alarmTimes, &statInterval, &alarmInterval)

	cache, err := retrycache.Open(filepath.Join(stateDir, "cache"),
		cacheScan, retryInterval, retryingTimes, maxParallelism)
	if err != nil {
		return nil, err
	}

	producer, err := bounce.NewProducer(hostname, defaultDomain, bounceDir)
	if err != nil {
		return nil, err
	}

	var blacklist *delivery.Blacklist
	if blacklistPath != "" {
		blacklist, err = delivery.LoadBlacklist(blacklistPath)
		if err != nil {
			return nil, err
		}
	}

	hook, err := delivery.New(delivery.Config{
		Host:         host,
		Directory:    userDir,
		Store:        store,
		Importer:     importer.New(propnames),
		Producer:     producer,
		Responder:    autoreply.New(host, responseItvl),
		Cache:        cache,
		Audit:        audit.New(bounceCapacity, bounceInterval),
		Stats:        delivery.NewStats(alarmTimes, statInterval, alarmInterval),
		Blacklist:    blacklist,
		RuntimeState: state,
	})
	if err != nil {
		return nil, err
	}

	waiter := asyncwait.New(sessions, responder, threadsNum, contextNum)

	network, addr, err := splitListen(consoleListen)
	if err != nil {
		return nil, err
	}
	cons := console.NewServer(network, addr, hook.Name())
	cons.Register(hook.Name(), hook.ConsoleTalk)

	srv := &Server{
		Log:      log.Logger{Name: "oxmail"},
		Delivery: hook,
		Waiter:   waiter,
		Cache:    cache,
		Console:  cons,
		modules:  []module.Module{hook, waiter, cons},
		blocks:   blockMap(cfgNodes),
	}

	hooks.AddHook(hooks.EventReload, func() {
		if err := producer.Refresh(); err != nil {
			srv.Log.Error("bounce resource reload", err)
		}
		if blacklist != nil {
			if err := blacklist.Reload(); err != nil {
				srv.Log.Error("blacklist reload", err)
			}
		}
	})

	return srv, nil
}

// Init runs module initialization against the per-module config blocks.
func (s *Server) Init() error {
	return module.Lifecycle(s.modules, s.blocks)
}

// Start brings up the background machinery: retry scanner, waiter
// workers, console listener.
func (s *Server) Start() error {
	if err := s.Waiter.Start(); err != nil {
		return err
	}
	s.Cache.Start()
	if err := s.Console.Start(); err != nil {
		s.Cache.Stop()
		s.Waiter.Stop()
		return err
	}
	s.Log.Msg("server started")
	return nil
}

// Stop shuts everything down in reverse order and runs shutdown hooks.
func (s *Server) Stop() {
	s.Console.Stop()
	s.Cache.Stop()
	s.Waiter.Stop()
	hooks.RunHooks(hooks.EventShutdown)
	s.Log.Msg("server stopped")
}

// topLevel filters out the block directives owned by modules.
func topLevel(nodes []config.Node) []config.Node {
	var out []config.Node
	for _, n := range nodes {
		if n.Children != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func blockMap(nodes []config.Node) map[string]config.Node {
	blocks := make(map[string]config.Node)
	for _, n := range nodes {
		if n.Children != nil {
			blocks[n.Name] = n
		}
	}
	return blocks
}

// applyRuntimeOverrides folds console-persisted settings over the file
// configuration.
func applyRuntimeOverrides(state *config.KVFile, retryingTimes *int,
	cacheScan, responseItvl *time.Duration, alarmTimes *int,
	statInterval, alarmInterval *time.Duration) {
	if v := state.Get("RETRYING_TIMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*retryingTimes = n
		}
	}
	if v := state.Get("CACHE_SCAN_INTERVAL"); v != "" {
		if d, err := config.ParseInterval(v); err == nil && d > 0 {
			*cacheScan = d
		}
	}
	if v := state.Get("RESPONSE_INTERVAL"); v != "" {
		if d, err := config.ParseInterval(v); err == nil && d > 0 {
			*responseItvl = d
		}
	}
	if v := state.Get("FAILURE_TIMES_FOR_ALARM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*alarmTimes = n
		}
	}
	if v := state.Get("INTERVAL_FOR_FAILURE_STATISTIC"); v != "" {
		if d, err := config.ParseInterval(v); err == nil && d > 0 {
			*statInterval = d
		}
	}
	if v := state.Get("ALARM_INTERVAL"); v != "" {
		if d, err := config.ParseInterval(v); err == nil && d > 0 {
			*alarmInterval = d
		}
	}
}

// splitListen parses "tcp:host:port" or "unix:/path".
func splitListen(listen string) (network, addr string, err error) {
	idx := strings.IndexByte(listen, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("oxmail: invalid listen address: %s", listen)
	}
	network = listen[:idx]
	addr = listen[idx+1:]
	switch network {
	case "tcp", "unix":
		return network, addr, nil
	}
	return "", "", fmt.Errorf("oxmail: unsupported listen network: %s", network)
}
