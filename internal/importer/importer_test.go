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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oxmail/oxmail/internal/mapi"
	"github.com/oxmail/oxmail/internal/mta"
)

func readMail(t *testing.T, raw string) *mta.Mail {
	t.Helper()
	m, err := mta.ReadMail(strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func propTable(t *testing.T, lines ...string) *mapi.PropNameTable {
	t.Helper()
	path := filepath.Join(t.TempDir(), "propnames.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	table, err := mapi.LoadPropNames(path)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

const plainMail = "From: Alice Example <alice@remote.example>\r\n" +
	"To: <bob@local.example>\r\n" +
	"Cc: <carol@local.example>\r\n" +
	"Subject: quarterly numbers\r\n" +
	"Date: Mon, 2 Jan 2023 15:04:05 +0000\r\n" +
	"Message-Id: <abc@remote.example>\r\n" +
	"X-Priority: 1\r\n" +
	"Keywords: finance\r\n" +
	"\r\n" +
	"The numbers are in.\r\n"

func TestImport_HeaderProperties(t *testing.T) {
	im := New(propTable(t, "GUID=00020329-0000-0000-c000-000000000046,NAME=Keywords"))
	arena := mapi.NewArena()
	defer arena.Release()

	msg, err := im.Import("utf-8", "UTC", readMail(t, plainMail), arena)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		tag  mapi.PropTag
		want interface{}
	}{
		{mapi.TagMessageClass, "IPM.Note"},
		{mapi.TagSubject, "quarterly numbers"},
		{mapi.TagSenderName, "Alice Example"},
		{mapi.TagSenderSmtpAddress, "alice@remote.example"},
		{mapi.TagDisplayTo, "<bob@local.example>"},
		{mapi.TagDisplayCc, "<carol@local.example>"},
		{mapi.TagInternetMessageID, "<abc@remote.example>"},
		{mapi.TagImportance, uint32(2)},
	} {
		if got := msg.Props.Get(tc.tag); got != tc.want {
			t.Errorf("tag %08X: wanted %v, got %v", uint32(tc.tag), tc.want, got)
		}
	}
	if body, _ := msg.Props.GetString(mapi.TagBody); !strings.Contains(body, "The numbers are in.") {
		t.Errorf("body not imported: %q", body)
	}
	if _, ok := msg.Props.Get(mapi.TagClientSubmitTime).(mapi.NTTime); !ok {
		t.Error("client submit time not imported")
	}

	// Keywords resolve through the named-property table to 0x8001.
	keywordTag := mapi.PropTag(0x8001)<<16 | mapi.PtUnicode
	if got := msg.Props.Get(keywordTag); got != "finance" {
		t.Errorf("keywords named property: wanted finance, got %v", got)
	}
}

func TestImport_UnknownKeywordsSkipped(t *testing.T) {
	im := New(propTable(t, "GUID=00020329-0000-0000-c000-000000000046,LID=34080"))
	arena := mapi.NewArena()
	defer arena.Release()

	msg, err := im.Import("utf-8", "UTC", readMail(t, plainMail), arena)
	if err != nil {
		t.Fatal(err)
	}
	keywordTag := mapi.PropTag(0x8001)<<16 | mapi.PtUnicode
	if msg.Props.Has(keywordTag) {
		t.Error("unresolvable named property must be skipped")
	}
}

func TestImport_SuppressHeader(t *testing.T) {
	im := New(nil)

	for _, tc := range []struct {
		value string
		want  uint32
	}{
		{"All", mapi.SuppressAll},
		{"DR", mapi.SuppressDR},
		{"DR, OOF", mapi.SuppressDR | mapi.SuppressOOF},
		{"NDR, RN, NRN, AutoReply", mapi.SuppressNDR | mapi.SuppressRN | mapi.SuppressNRN | mapi.SuppressAutoReply},
		{"None", 0},
	} {
		raw := "X-Auto-Response-Suppress: " + tc.value + "\r\n" + plainMail
		arena := mapi.NewArena()
		msg, err := im.Import("utf-8", "UTC", readMail(t, raw), arena)
		if err != nil {
			t.Fatal(err)
		}
		got, _ := msg.Props.GetUint32(mapi.TagAutoResponseSuppress)
		if got != tc.want {
			t.Errorf("%q: wanted %08X, got %08X", tc.value, tc.want, got)
		}
		arena.Release()
	}
}

const multipartMail = "From: <alice@remote.example>\r\n" +
	"Subject: report attached\r\n" +
	"Content-Type: multipart/mixed; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"see attachment\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf; name=report.pdf\r\n" +
	"Content-Disposition: attachment; filename=report.pdf\r\n" +
	"\r\n" +
	"%PDF-1.4 fake\r\n" +
	"--frontier--\r\n"

func TestImport_Attachments(t *testing.T) {
	im := New(nil)
	arena := mapi.NewArena()
	defer arena.Release()

	msg, err := im.Import("utf-8", "UTC", readMail(t, multipartMail), arena)
	if err != nil {
		t.Fatal(err)
	}
	if body, _ := msg.Props.GetString(mapi.TagBody); !strings.Contains(body, "see attachment") {
		t.Errorf("text part must become the body, got %q", body)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("wanted 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if mime, _ := att.Props.GetString(mapi.TagAttachMimeTag); mime != "application/pdf" {
		t.Errorf("attachment mime: %s", mime)
	}
	if name, _ := att.Props.GetString(mapi.TagAttachFilename); name != "report.pdf" {
		t.Errorf("attachment filename: %s", name)
	}
}

func TestImport_ReleasedArena(t *testing.T) {
	im := New(nil)
	arena := mapi.NewArena()
	arena.Release()

	if _, err := im.Import("utf-8", "UTC", readMail(t, plainMail), arena); err == nil {
		t.Fatal("import on a released arena must fail")
	}
}

func TestImport_NoArena(t *testing.T) {
	im := New(nil)
	if _, err := im.Import("utf-8", "UTC", readMail(t, plainMail), nil); err == nil {
		t.Fatal("import without an arena must fail")
	}
}

func TestDigest_EnvelopeShape(t *testing.T) {
	digest, err := Digest(readMail(t, plainMail), "1672671845.7.mx1")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(digest), `{"file":"1672671845.7.mx1",`) {
		t.Fatalf("digest prefix: %.60s", digest)
	}
	if digest[len(digest)-1] != '}' {
		t.Fatal("digest must close with }")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(digest, &decoded); err != nil {
		t.Fatalf("digest is not valid JSON: %v", err)
	}
	if decoded["file"] != "1672671845.7.mx1" {
		t.Fatalf("file member: %v", decoded["file"])
	}
	if decoded["subject"] != "quarterly numbers" {
		t.Fatalf("subject member: %v", decoded["subject"])
	}
	if decoded["priority"] != float64(1) {
		t.Fatalf("priority member: %v", decoded["priority"])
	}
	if len(digest) >= MaxDigestSize {
		t.Fatal("digest size out of bounds")
	}
}

func TestDigest_Structure(t *testing.T) {
	digest, err := Digest(readMail(t, multipartMail), "f")
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Structure []struct {
			ID    string `json:"id"`
			CType string `json:"ctype"`
		} `json:"structure"`
	}
	if err := json.Unmarshal(digest, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Structure) != 2 {
		t.Fatalf("wanted 2 parts, got %+v", decoded.Structure)
	}
	if decoded.Structure[0].ID != "1.1" || decoded.Structure[0].CType != "text/plain" {
		t.Fatalf("first part: %+v", decoded.Structure[0])
	}
	if decoded.Structure[1].CType != "application/pdf" {
		t.Fatalf("second part: %+v", decoded.Structure[1])
	}
}
