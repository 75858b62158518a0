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

// Package listfile reads and writes the line-oriented list files shared
// with the rest of the suite: one record per line, tab-separated fields,
// with backslash escaping of '\\', ' ', '\t' and '#'.
//
// The format is an on-disk compatibility surface (named-property tables,
// retry-cache metadata, recipient blacklists) and must not change.
package listfile

import (
	"bufio"
	"os"
	"strings"
)

// Escape protects the characters that have structural meaning in a list
// file: the field separator, the comment marker, spaces and the escape
// character itself.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch ch {
		case '\\', ' ', '\t', '#':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Unescape reverses Escape. A trailing bare backslash is dropped.
func Unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, ch := range s {
		if !escaped && ch == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(ch)
	}
	return b.String()
}

// splitFields splits a line on unescaped tabs.
func splitFields(line string) []string {
	var (
		fields  []string
		current strings.Builder
		escaped bool
	)
	for _, ch := range line {
		if escaped {
			current.WriteByte('\\')
			current.WriteRune(ch)
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '\t':
			fields = append(fields, Unescape(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if escaped {
		current.WriteByte('\\')
	}
	fields = append(fields, Unescape(current.String()))
	return fields
}

// commentAt finds the first unescaped '#' in line, or -1.
func commentAt(line string) int {
	escaped := false
	for i, ch := range line {
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			escaped = true
		case '#':
			return i
		}
	}
	return -1
}

// ReadLines reads a list file with one entry per line, unescaped. Empty
// lines and comment lines are skipped; a trailing unescaped '#' starts a
// comment.
func ReadLines(path string) ([]string, error) {
	recs, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, rec[0])
	}
	return lines, nil
}

// ReadRecords reads a list file with tab-separated fields per line.
func ReadRecords(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := commentAt(line); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		recs = append(recs, splitFields(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// FormatRecord renders fields as a single escaped, tab-separated line
// without the trailing newline.
func FormatRecord(fields []string) string {
	escaped := make([]string, 0, len(fields))
	for _, f := range fields {
		escaped = append(escaped, Escape(f))
	}
	return strings.Join(escaped, "\t")
}

// WriteRecords writes the records to path atomically (write to a temporary
// file in the same directory, then rename).
func WriteRecords(path string, recs [][]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range recs {
		if _, err := w.WriteString(FormatRecord(rec) + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
