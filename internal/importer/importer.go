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

// Package importer converts RFC-822 messages into the structured message
// objects the store accepts, and produces the digest the store indexes
// them by.
package importer

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"github.com/oxmail/oxmail/internal/mapi"
	"github.com/oxmail/oxmail/internal/mta"
)

// PropIDSource resolves named properties into 16-bit IDs, allocating the
// result array from the arena. A zero ID means "unknown, skip".
type PropIDSource interface {
	GetPropIDs(arena *mapi.Arena, names []mapi.PropertyName) ([]uint16, error)
}

// PS_PUBLIC_STRINGS, the property set of free-form named properties such
// as message keywords.
const psPublicStrings = "00020329-0000-0000-c000-000000000046"

// Importer performs RFC-822 to store-message conversion.
type Importer struct {
	PropIDs PropIDSource
}

func New(propIDs PropIDSource) *Importer {
	return &Importer{PropIDs: propIDs}
}

// Import converts m into a store message under the given charset and
// timezone. All conversion state lives in the arena, which the caller
// binds before the call and releases after the message is no longer
// needed.
func (im *Importer) Import(charset, timezone string, m *mta.Mail, arena *mapi.Arena) (*mapi.Message, error) {
	if arena == nil {
		return nil, fmt.Errorf("importer: no arena bound")
	}
	if arena.Released() {
		return nil, mapi.ErrArenaReleased
	}

	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}

	msg := &mapi.Message{}
	if err := arena.Hold(msg); err != nil {
		return nil, err
	}

	hdr := m.Header
	msg.Props.Set(mapi.TagMessageClass, "IPM.Note")

	if subj := hdr.Get("Subject"); subj != "" {
		msg.Props.Set(mapi.TagSubject, decodeWord(subj))
	}
	if msgID := hdr.Get("Message-Id"); msgID != "" {
		msg.Props.Set(mapi.TagInternetMessageID, strings.TrimSpace(msgID))
	}
	if from := hdr.Get("From"); from != "" {
		name, addr := splitAddress(from)
		if name != "" {
			msg.Props.Set(mapi.TagSenderName, name)
		}
		if addr != "" {
			msg.Props.Set(mapi.TagSenderSmtpAddress, addr)
		}
	}
	if to := hdr.Get("To"); to != "" {
		msg.Props.Set(mapi.TagDisplayTo, decodeWord(to))
	}
	if cc := hdr.Get("Cc"); cc != "" {
		msg.Props.Set(mapi.TagDisplayCc, decodeWord(cc))
	}
	if date := hdr.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.Props.Set(mapi.TagClientSubmitTime, mapi.NTTimeFromTime(t.In(loc)))
		}
	}
	if prio := hdr.Get("X-Priority"); prio != "" {
		msg.Props.Set(mapi.TagImportance, importanceFromPriority(prio))
	}
	if hdr.Get("Return-Receipt-To") != "" {
		msg.Props.Set(mapi.TagOriginatorDeliveryReportRequested, true)
	}
	if supp := hdr.Get("X-Auto-Response-Suppress"); supp != "" {
		msg.Props.Set(mapi.TagAutoResponseSuppress, parseSuppress(supp))
	}

	var rawHdr strings.Builder
	fields := hdr.Fields()
	for fields.Next() {
		rawHdr.WriteString(fields.Key())
		rawHdr.WriteString(": ")
		rawHdr.WriteString(fields.Value())
		rawHdr.WriteString("\r\n")
	}
	msg.Props.Set(mapi.TagTransportMessageHeaders, rawHdr.String())

	im.importKeywords(arena, hdr.Get("Keywords"), msg)

	r, err := m.Reader()
	if err != nil {
		return nil, err
	}
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("importer: parse: %w", err)
	}
	if err := im.importBody(arena, entity, msg); err != nil {
		return nil, err
	}

	return msg, nil
}

// importKeywords resolves the Keywords header into a named property. A
// resolver miss (ID 0) drops the value, it never fails the import.
func (im *Importer) importKeywords(arena *mapi.Arena, keywords string, msg *mapi.Message) {
	if keywords == "" || im.PropIDs == nil {
		return
	}
	ids, err := im.PropIDs.GetPropIDs(arena, []mapi.PropertyName{{
		Kind: mapi.KindName,
		GUID: psPublicStrings,
		Name: "Keywords",
	}})
	if err != nil || len(ids) == 0 || ids[0] == 0 {
		return
	}
	tag := mapi.PropTag(uint32(ids[0])<<16) | mapi.PtUnicode
	msg.Props.Set(tag, decodeWord(keywords))
}

// importBody walks the MIME structure: the first text part becomes the
// message body, every non-text leaf becomes an attachment.
func (im *Importer) importBody(arena *mapi.Arena, entity *message.Entity, msg *mapi.Message) error {
	mr := entity.MultipartReader()
	if mr == nil {
		return im.importLeaf(arena, entity, msg)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("importer: multipart: %w", err)
		}
		if err := im.importBody(arena, part, msg); err != nil {
			return err
		}
	}
}

func (im *Importer) importLeaf(arena *mapi.Arena, entity *message.Entity, msg *mapi.Message) error {
	mediaType, params, err := entity.Header.ContentType()
	if err != nil {
		mediaType = "text/plain"
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return fmt.Errorf("importer: body: %w", err)
	}
	if err := arena.Hold(body); err != nil {
		return err
	}

	if strings.HasPrefix(mediaType, "text/") && !msg.Props.Has(mapi.TagBody) {
		msg.Props.Set(mapi.TagBody, string(body))
		return nil
	}

	att := &mapi.Attachment{}
	att.Props.Set(mapi.TagAttachDataBinary, body)
	att.Props.Set(mapi.TagAttachMimeTag, mediaType)
	filename := params["name"]
	if disp, dispParams, err := entity.Header.ContentDisposition(); err == nil && disp == "attachment" {
		if fn := dispParams["filename"]; fn != "" {
			filename = fn
		}
	}
	if filename != "" {
		att.Props.Set(mapi.TagAttachFilename, decodeWord(filename))
	}
	msg.Attachments = append(msg.Attachments, att)
	return nil
}

func importanceFromPriority(prio string) uint32 {
	prio = strings.TrimSpace(prio)
	if prio == "" {
		return 1
	}
	switch prio[0] {
	case '1', '2':
		return 2
	case '4', '5':
		return 0
	}
	return 1
}

// parseSuppress converts the X-Auto-Response-Suppress value list into the
// suppress bitmask.
func parseSuppress(value string) uint32 {
	var mask uint32
	for _, item := range strings.Split(value, ",") {
		switch strings.ToLower(strings.TrimSpace(item)) {
		case "all":
			return mapi.SuppressAll
		case "dr":
			mask |= mapi.SuppressDR
		case "ndr":
			mask |= mapi.SuppressNDR
		case "rn":
			mask |= mapi.SuppressRN
		case "nrn":
			mask |= mapi.SuppressNRN
		case "oof":
			mask |= mapi.SuppressOOF
		case "autoreply":
			mask |= mapi.SuppressAutoReply
		case "none":
		}
	}
	return mask
}

func decodeWord(s string) string {
	// go-message hands out decoded header values already; only stray
	// whitespace is normalized here.
	return strings.TrimSpace(s)
}

// splitAddress separates "Display Name <addr@host>" into its parts.
func splitAddress(s string) (name, addr string) {
	s = strings.TrimSpace(s)
	lt := strings.LastIndexByte(s, '<')
	gt := strings.LastIndexByte(s, '>')
	if lt >= 0 && gt > lt {
		name = strings.Trim(strings.TrimSpace(s[:lt]), `"`)
		addr = s[lt+1 : gt]
		return name, addr
	}
	if strings.ContainsRune(s, '@') {
		return "", s
	}
	return s, ""
}
