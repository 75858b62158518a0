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

package mta

// LineStream is a replayable stream of lines, used for the recipient list
// of a message context (one address per line). Reads consume from a cursor
// that Rewind resets; writes always append.
type LineStream struct {
	lines []string
	pos   int
}

func NewLineStream(lines ...string) *LineStream {
	return &LineStream{lines: append([]string(nil), lines...)}
}

// WriteLine appends a line to the stream.
func (s *LineStream) WriteLine(line string) {
	s.lines = append(s.lines, line)
}

// ReadLine returns the next unread line. ok is false at end of stream.
func (s *LineStream) ReadLine() (line string, ok bool) {
	if s.pos >= len(s.lines) {
		return "", false
	}
	line = s.lines[s.pos]
	s.pos++
	return line, true
}

// Rewind resets the read cursor to the beginning.
func (s *LineStream) Rewind() {
	s.pos = 0
}

// Len returns the total number of lines in the stream.
func (s *LineStream) Len() int {
	return len(s.lines)
}

// Lines returns a copy of all lines regardless of cursor position.
func (s *LineStream) Lines() []string {
	return append([]string(nil), s.lines...)
}

// ReplaceWith discards the stream contents and takes over other's lines,
// with the cursor rewound. Used by the hook to rewrite the recipient list
// with the remote-only remainder.
func (s *LineStream) ReplaceWith(other *LineStream) {
	s.lines = append(s.lines[:0], other.lines...)
	s.pos = 0
}

// Reset empties the stream for reuse.
func (s *LineStream) Reset() {
	s.lines = s.lines[:0]
	s.pos = 0
}
