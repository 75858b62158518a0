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

package delivery

import (
	"strings"
	"testing"
	"time"

	"github.com/oxmail/oxmail/framework/log"
)

func TestStats_Counters(t *testing.T) {
	s := NewStats(100, time.Hour, time.Hour)
	s.Record(1, 0, 0, 0)
	s.Record(1, 0, 0, 0)
	s.Record(0, 1, 0, 0)
	s.Record(0, 0, 1, 1)

	if s.OK() != 2 || s.Temp() != 1 || s.Permanent() != 1 || s.NoUser() != 1 {
		t.Fatalf("counters: %d %d %d %d", s.OK(), s.Temp(), s.Permanent(), s.NoUser())
	}
}

func TestStats_AlarmOncePerInterval(t *testing.T) {
	var lines []string
	now := time.Unix(5000, 0)

	s := NewStats(3, time.Minute, 10*time.Minute)
	s.now = func() time.Time { return now }
	s.Log = log.Logger{
		Out: log.FuncOutput(func(_ time.Time, _ bool, msg string) {
			lines = append(lines, msg)
		}, func() error { return nil }),
	}

	alarms := func() int {
		n := 0
		for _, l := range lines {
			if strings.Contains(l, "temporary failure alarm") {
				n++
			}
		}
		return n
	}

	s.Record(0, 1, 0, 0)
	s.Record(0, 1, 0, 0)
	if alarms() != 0 {
		t.Fatal("alarm fired below the threshold")
	}

	s.Record(0, 1, 0, 0)
	if alarms() != 1 {
		t.Fatalf("alarm should fire at the threshold, got %d", alarms())
	}

	// More failures within the alarm interval stay quiet.
	s.Record(0, 3, 0, 0)
	if alarms() != 1 {
		t.Fatalf("alarm must be muted within the interval, got %d", alarms())
	}

	// After the alarm interval it may fire again.
	now = now.Add(11 * time.Minute)
	s.Record(0, 3, 0, 0)
	if alarms() != 2 {
		t.Fatalf("alarm should fire again after the interval, got %d", alarms())
	}
}
