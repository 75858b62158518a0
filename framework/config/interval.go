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

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval notation used by the configuration and the console: a
// concatenation of <number><unit> terms with units d, h, m, s. A bare
// number means seconds. "1d12h" = 36 hours.
//
// This is the historical operator-facing format; it is kept so existing
// tooling that drives the console keeps working.

// ParseInterval converts the interval notation into a time.Duration.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	num := ""
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			num += string(ch)
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid interval: %s", s)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid interval: %s", s)
		}
		switch ch {
		case 'd':
			total += time.Duration(n) * 24 * time.Hour
		case 'h':
			total += time.Duration(n) * time.Hour
		case 'm':
			total += time.Duration(n) * time.Minute
		case 's':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("unknown interval unit: %c", ch)
		}
		num = ""
	}
	if num != "" {
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, fmt.Errorf("invalid interval: %s", s)
		}
		total += time.Duration(n) * time.Second
	}
	return total, nil
}

// FormatInterval renders d in the interval notation, largest units first.
// Zero is rendered as "0s".
func FormatInterval(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs == 0 {
		return "0s"
	}

	var b strings.Builder
	write := func(n int64, unit byte) {
		if n != 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteByte(unit)
		}
	}
	write(secs/86400, 'd')
	write(secs%86400/3600, 'h')
	write(secs%3600/60, 'm')
	write(secs%60, 's')
	return b.String()
}
