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

// Package config implements the directive configuration file format and
// reflection-based mapping of directives onto Go variables.
//
// The format is line-oriented:
//
//	# comment
//	directive arg1 "arg 2"
//	block_directive arg {
//	    child_directive arg
//	}
//
// Arguments are whitespace-separated; double quotes keep whitespace and `#`
// inside a single argument.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Node is a single configuration directive together with its child block,
// if any.
type Node struct {
	Name string
	Args []string

	Children []Node

	File string
	Line int
}

// NodeErr returns an error prefixed with the node location for use in
// directive handlers.
func NodeErr(node Node, format string, args ...interface{}) error {
	if node.File == "" {
		return fmt.Errorf(format, args...)
	}
	return fmt.Errorf("%s:%d: %s", node.File, node.Line, fmt.Sprintf(format, args...))
}

// Read parses the configuration from r. location is used in error messages
// and node positions.
func Read(r io.Reader, location string) ([]Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	nodes, eof, err := readBlock(scanner, location, new(int))
	if err != nil {
		return nil, err
	}
	if !eof {
		return nil, fmt.Errorf("%s: unexpected '}'", location)
	}
	return nodes, nil
}

// readBlock reads directives until a closing '}' or EOF. The second return
// value is true when EOF terminated the block.
func readBlock(scanner *bufio.Scanner, location string, lineNum *int) ([]Node, bool, error) {
	var nodes []Node

	for scanner.Scan() {
		*lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "}" {
			return nodes, false, nil
		}

		openBlock := strings.HasSuffix(line, "{")
		if openBlock {
			line = strings.TrimSpace(strings.TrimSuffix(line, "{"))
		}

		fields, err := splitFields(line)
		if err != nil {
			return nil, false, fmt.Errorf("%s:%d: %v", location, *lineNum, err)
		}
		if len(fields) == 0 {
			return nil, false, fmt.Errorf("%s:%d: missing directive name", location, *lineNum)
		}

		node := Node{
			Name: fields[0],
			Args: fields[1:],
			File: location,
			Line: *lineNum,
		}

		if openBlock {
			children, eof, err := readBlock(scanner, location, lineNum)
			if err != nil {
				return nil, false, err
			}
			if eof {
				return nil, false, fmt.Errorf("%s:%d: unterminated block", location, node.Line)
			}
			node.Children = children
			if node.Children == nil {
				node.Children = []Node{}
			}
		}

		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("%s: %v", location, err)
	}
	return nodes, true, nil
}

func splitFields(line string) ([]string, error) {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
		started  bool
	)
	flush := func() {
		if started {
			fields = append(fields, current.String())
			current.Reset()
			started = false
		}
	}
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			started = true
		case !inQuotes && (ch == ' ' || ch == '\t'):
			flush()
		case !inQuotes && ch == '#':
			// Trailing comment.
			flush()
			return fields, nil
		default:
			current.WriteRune(ch)
			started = true
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string")
	}
	flush()
	return fields, nil
}
