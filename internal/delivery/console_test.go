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

package delivery_test

import (
	"strings"
	"testing"
	"time"
)

func talk(e *env, args ...string) string {
	return e.hook.ConsoleTalk(append([]string{"exmdb_local"}, args...))
}

func TestConsole_StatusAndInfo(t *testing.T) {
	e := newEnv(t, 5)

	ctx := e.newContext("sender@remote.example", true, sampleMail, "a@"+testDomain, "x@"+testDomain)
	e.hook.Hook(ctx)

	status := talk(e, "status")
	if !strings.HasPrefix(status, "250 ") {
		t.Fatalf("status response: %q", status)
	}
	if !strings.Contains(status, "OK                       1") ||
		!strings.Contains(status, "no user                  1") {
		t.Fatalf("status counters wrong:\n%s", status)
	}

	info := talk(e, "info")
	if !strings.HasPrefix(info, "250 ") || !strings.Contains(info, "retrying times           3") {
		t.Fatalf("info response:\n%s", info)
	}
}

func TestConsole_SetCommands(t *testing.T) {
	e := newEnv(t, 5)

	if resp := talk(e, "set", "cache-scan", "2m"); !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("cache-scan: %q", resp)
	}
	if e.cache.ScanInterval() != 2*time.Minute {
		t.Fatal("cache-scan not applied")
	}

	if resp := talk(e, "set", "retrying-times", "9"); !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("retrying-times: %q", resp)
	}
	if e.cache.RetryingTimes() != 9 {
		t.Fatal("retrying-times not applied")
	}

	if resp := talk(e, "set", "alarm-frequncy", "50/30m"); !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("alarm-frequncy: %q", resp)
	}
	if e.stats.AlarmTimes() != 50 || e.stats.StatInterval() != 30*time.Minute {
		t.Fatal("alarm frequency not applied")
	}

	if resp := talk(e, "set", "alarm-interval", "10m"); !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("alarm-interval: %q", resp)
	}
	if resp := talk(e, "set", "response-interval", "1h"); !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("response-interval: %q", resp)
	}
}

func TestConsole_Rejections(t *testing.T) {
	e := newEnv(t, 5)

	for _, tc := range [][]string{
		{"set", "alarm-frequncy", "nonsense"},
		{"set", "alarm-frequncy", "0/1h"},
		{"set", "retrying-times", "-1"},
		{"set", "cache-scan", "bogus"},
		{"nothere"},
	} {
		if resp := talk(e, tc...); !strings.HasPrefix(resp, "550 ") {
			t.Errorf("%v: wanted 550, got %q", tc, resp)
		}
	}
	if resp := e.hook.ConsoleTalk([]string{"exmdb_local"}); !strings.HasPrefix(resp, "550 ") {
		t.Errorf("bare module name: wanted 550, got %q", resp)
	}
}

func TestConsole_Help(t *testing.T) {
	e := newEnv(t, 5)
	help := talk(e, "--help")
	if !strings.HasPrefix(help, "250 ") {
		t.Fatalf("help response: %q", help)
	}
	for _, want := range []string{"alarm-frequncy", "cache-scan", "retrying-times", "response-interval", "echo"} {
		if !strings.Contains(help, want) {
			t.Errorf("help misses %q", want)
		}
	}
}

func TestConsole_Echo(t *testing.T) {
	e := newEnv(t, 5)
	if resp := talk(e, "echo", "/no/such/dir"); !strings.HasPrefix(resp, "250 no information") {
		t.Fatalf("echo miss: %q", resp)
	}
}
