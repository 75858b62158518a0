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

package console

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func echoTalk(argv []string) string {
	return "250 " + strings.Join(argv, "|")
}

func TestDispatch_Routing(t *testing.T) {
	s := NewServer("tcp", "127.0.0.1:0", "exmdb_local")
	s.Register("exmdb_local", echoTalk)
	s.Register("other", func(argv []string) string { return "250 other" })

	for _, tc := range []struct {
		line string
		want string
	}{
		// Explicit module prefix.
		{"exmdb_local status", "250 exmdb_local|status"},
		{"other anything", "250 other"},
		// Bare commands go to the default module with argv[0] filled in.
		{"status", "250 exmdb_local|status"},
		{`set alarm-frequncy "100/1h"`, "250 exmdb_local|set|alarm-frequncy|100/1h"},
		{"unknowncmd x", "250 exmdb_local|unknowncmd|x"},
	} {
		if got := s.Dispatch(tc.line); got != tc.want {
			t.Errorf("%q: wanted %q, got %q", tc.line, tc.want, got)
		}
	}
}

func TestDispatch_NoModules(t *testing.T) {
	s := NewServer("tcp", "127.0.0.1:0", "missing")
	if got := s.Dispatch("status"); !strings.HasPrefix(got, "550 ") {
		t.Fatalf("wanted 5xx for unroutable command, got %q", got)
	}
}

func TestServer_RoundTrip(t *testing.T) {
	s := NewServer("tcp", "127.0.0.1:0", "exmdb_local")
	s.Register("exmdb_local", echoTalk)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("status\n")); err != nil {
		t.Fatal(err)
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp, "250 ") {
		t.Fatalf("response: %q", resp)
	}
}
