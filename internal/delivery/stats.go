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
	"sync"
	"sync/atomic"
	"time"

	"github.com/oxmail/oxmail/framework/log"
)

// Stats tracks delivery outcome counters and raises an alarm log line when
// temporary failures cluster: reaching alarmTimes temporary failures
// within one statistic window emits the alarm, which is then muted for the
// alarm interval.
type Stats struct {
	Log log.Logger

	ok        atomic.Int64
	temp      atomic.Int64
	permanent atomic.Int64
	noUser    atomic.Int64

	mu            sync.Mutex
	alarmTimes    int
	statInterval  time.Duration
	alarmInterval time.Duration
	windowStart   time.Time
	windowTemp    int
	lastAlarm     time.Time

	// Test hook; time.Now when nil.
	now func() time.Time
}

func NewStats(alarmTimes int, statInterval, alarmInterval time.Duration) *Stats {
	return &Stats{
		Log:           log.Logger{Name: "delivery"},
		alarmTimes:    alarmTimes,
		statInterval:  statInterval,
		alarmInterval: alarmInterval,
	}
}

func (s *Stats) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Record adds outcome counts. Mirrors of the four console-visible counters.
func (s *Stats) Record(ok, temp, permanent, noUser int) {
	s.ok.Add(int64(ok))
	s.temp.Add(int64(temp))
	s.permanent.Add(int64(permanent))
	s.noUser.Add(int64(noUser))

	if temp > 0 {
		s.noteTemp(temp)
	}
}

func (s *Stats) noteTemp(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	if now.Sub(s.windowStart) >= s.statInterval {
		s.windowStart = now
		s.windowTemp = 0
	}
	s.windowTemp += n
	if s.windowTemp < s.alarmTimes {
		return
	}
	if now.Sub(s.lastAlarm) < s.alarmInterval {
		return
	}
	s.lastAlarm = now
	s.Log.Msg("temporary failure alarm",
		"failures", s.windowTemp, "window", s.statInterval)
}

func (s *Stats) OK() int64        { return s.ok.Load() }
func (s *Stats) Temp() int64      { return s.temp.Load() }
func (s *Stats) Permanent() int64 { return s.permanent.Load() }
func (s *Stats) NoUser() int64    { return s.noUser.Load() }

func (s *Stats) AlarmTimes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarmTimes
}

func (s *Stats) StatInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statInterval
}

func (s *Stats) AlarmInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alarmInterval
}

// SetAlarmFrequency adjusts the times/interval pair at runtime.
func (s *Stats) SetAlarmFrequency(times int, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarmTimes = times
	s.statInterval = interval
}

func (s *Stats) SetAlarmInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarmInterval = d
}
