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

package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/emersion/go-message"

	"github.com/oxmail/oxmail/internal/mta"
)

// MaxDigestSize bounds the digest envelope handed to the store.
const MaxDigestSize = 256 * 1024

type digestPart struct {
	ID     string `json:"id"`
	CType  string `json:"ctype"`
	Length int    `json:"length"`
	Name   string `json:"name,omitempty"`
}

// digestBody is the part of the digest after the "file" member. Size is
// always present so the envelope never ends up with a dangling comma.
type digestBody struct {
	Size     int          `json:"size"`
	From     string       `json:"from,omitempty"`
	To       string       `json:"to,omitempty"`
	Cc       string       `json:"cc,omitempty"`
	Subject  string       `json:"subject,omitempty"`
	Received int64        `json:"received,omitempty"`
	MsgID    string       `json:"msgid,omitempty"`
	Priority int          `json:"priority"`
	Parts    []digestPart `json:"structure,omitempty"`
}

// Digest produces the store digest for the message materialized under
// filename. The envelope byte shape is fixed:
//
//	{"file":"<filename>",<body members>}
//
// and the result must stay under MaxDigestSize.
func Digest(m *mta.Mail, filename string) ([]byte, error) {
	raw, err := m.Bytes()
	if err != nil {
		return nil, err
	}

	body := digestBody{
		Size:     len(raw),
		From:     strings.TrimSpace(m.Header.Get("From")),
		To:       strings.TrimSpace(m.Header.Get("To")),
		Cc:       strings.TrimSpace(m.Header.Get("Cc")),
		Subject:  strings.TrimSpace(m.Header.Get("Subject")),
		MsgID:    strings.TrimSpace(m.Header.Get("Message-Id")),
		Priority: 3,
	}
	if date := m.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			body.Received = t.Unix()
		}
	}
	if prio := strings.TrimSpace(m.Header.Get("X-Priority")); prio != "" && prio[0] >= '1' && prio[0] <= '5' {
		body.Priority = int(prio[0] - '0')
	}
	body.Parts = digestStructure(m)

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("importer: digest: %w", err)
	}
	fileJSON, err := json.Marshal(filename)
	if err != nil {
		return nil, fmt.Errorf("importer: digest: %w", err)
	}

	// bodyJSON is a non-empty object; splice its members after the file
	// member to get the exact envelope shape.
	out := make([]byte, 0, len(bodyJSON)+len(fileJSON)+16)
	out = append(out, `{"file":`...)
	out = append(out, fileJSON...)
	out = append(out, ',')
	out = append(out, bodyJSON[1:]...)

	if len(out) > MaxDigestSize {
		return nil, fmt.Errorf("importer: digest exceeds %d bytes", MaxDigestSize)
	}
	return out, nil
}

// digestStructure summarizes the MIME leaves. Parse problems degrade to an
// empty structure list, they do not fail the digest.
func digestStructure(m *mta.Mail) []digestPart {
	r, err := m.Reader()
	if err != nil {
		return nil
	}
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil
	}

	var parts []digestPart
	var walk func(e *message.Entity, id string)
	walk = func(e *message.Entity, id string) {
		mr := e.MultipartReader()
		if mr == nil {
			ctype, params, err := e.Header.ContentType()
			if err != nil {
				ctype = "text/plain"
			}
			body, _ := io.ReadAll(e.Body)
			parts = append(parts, digestPart{
				ID:     id,
				CType:  ctype,
				Length: len(body),
				Name:   params["name"],
			})
			return
		}
		child := 1
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			walk(part, id+"."+fmt.Sprint(child))
			child++
		}
	}
	walk(entity, "1")
	return parts
}
