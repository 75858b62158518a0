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

import (
	"bufio"
	"bytes"
	"io"

	"github.com/emersion/go-message/textproto"
)

// Mail is the parsed mail object of a message context: the RFC-822 header
// plus the raw body bytes. The header is parsed once so the delivery path
// and the importer do not re-read it.
type Mail struct {
	Header textproto.Header
	body   []byte
}

// ReadMail parses a full RFC-822 message from r.
func ReadMail(r io.Reader) (*Mail, error) {
	br := bufio.NewReader(r)
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	return &Mail{Header: hdr, body: body}, nil
}

// Body returns the raw body bytes. The slice is shared, not copied.
func (m *Mail) Body() []byte {
	return m.body
}

// WriteTo writes the full message, header and body, to w.
func (m *Mail) WriteTo(w io.Writer) error {
	if err := textproto.WriteHeader(w, m.Header); err != nil {
		return err
	}
	_, err := w.Write(m.body)
	return err
}

// Bytes renders the full message into a byte slice.
func (m *Mail) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reader returns a reader over the full rendered message.
func (m *Mail) Reader() (io.Reader, error) {
	b, err := m.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// CheckDot reports whether any body line begins with a '.', i.e. whether
// the body still carries SMTP dot transparency stuffing.
func (m *Mail) CheckDot() bool {
	body := m.body
	for len(body) > 0 {
		if body[0] == '.' {
			return true
		}
		idx := bytes.IndexByte(body, '\n')
		if idx < 0 {
			break
		}
		body = body[idx+1:]
	}
	return false
}

// TransferDot fills dst with a copy of the message with dot transparency
// undone: one leading '.' is stripped from every body line that starts
// with one. The receiver is left untouched; the MTA still owns it.
func (m *Mail) TransferDot(dst *Mail) bool {
	var out bytes.Buffer
	out.Grow(len(m.body))

	body := m.body
	for len(body) > 0 {
		idx := bytes.IndexByte(body, '\n')
		var line []byte
		if idx < 0 {
			line = body
			body = nil
		} else {
			line = body[:idx+1]
			body = body[idx+1:]
		}
		if len(line) > 0 && line[0] == '.' {
			line = line[1:]
		}
		out.Write(line)
	}

	dst.Header = m.Header.Copy()
	dst.body = out.Bytes()
	return true
}

// SetBody replaces the body bytes. Used by tests and bounce assembly.
func (m *Mail) SetBody(body []byte) {
	m.body = body
}

// Reset clears the mail for context reuse.
func (m *Mail) Reset() {
	m.Header = textproto.Header{}
	m.body = nil
}
