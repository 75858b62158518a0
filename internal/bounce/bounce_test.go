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

package bounce

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oxmail/oxmail/internal/mta"
)

const origRaw = "From: <sender@remote.example>\r\n" +
	"To: <rcpt@local.example>\r\n" +
	"Subject: original subject\r\n" +
	"\r\n" +
	"original body\r\n"

func makeBounce(t *testing.T, p *Producer, kind Kind) *mta.Mail {
	t.Helper()
	orig, err := mta.ReadMail(strings.NewReader(origRaw))
	if err != nil {
		t.Fatal(err)
	}
	var out mta.Mail
	err = p.Make("sender@remote.example", "rcpt@local.example", orig,
		time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC), kind, &out)
	if err != nil {
		t.Fatal(err)
	}
	return &out
}

func TestMake_ReportStructure(t *testing.T) {
	p, err := NewProducer("mx1.local.example", "local.example", "")
	if err != nil {
		t.Fatal(err)
	}

	out := makeBounce(t, p, KindNoUser)

	if got := out.Header.Get("To"); got != "<sender@remote.example>" {
		t.Fatalf("To: %s", got)
	}
	if got := out.Header.Get("From"); !strings.Contains(got, "postmaster@local.example") {
		t.Fatalf("From: %s", got)
	}
	if got := out.Header.Get("Auto-Submitted"); got != "auto-replied" {
		t.Fatalf("Auto-Submitted: %s", got)
	}
	if !strings.Contains(out.Header.Get("Content-Type"), "multipart/report") {
		t.Fatalf("Content-Type: %s", out.Header.Get("Content-Type"))
	}

	body := string(out.Body())
	for _, want := range []string{
		"Reporting-MTA: dns; mx1.local.example",
		"Final-Recipient: rfc822; rcpt@local.example",
		"Action: failed",
		"Status: 5.1.1",
		"Subject: original subject",
		"the recipient address does not exist",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report body misses %q", want)
		}
	}
	if strings.Contains(body, "original body") {
		t.Error("report must carry only the original headers, not the body")
	}
}

func TestMake_KindStatuses(t *testing.T) {
	p, err := NewProducer("mx1.local.example", "local.example", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		kind    Kind
		action  string
		status  string
		subject string
	}{
		{KindNoUser, "failed", "5.1.1", "Undelivered Mail Returned to Sender"},
		{KindMailboxFull, "failed", "5.2.2", "Undelivered Mail Returned to Sender"},
		{KindOperationError, "failed", "5.3.0", "Undelivered Mail Returned to Sender"},
		{KindTimeout, "failed", "5.4.7", "Undelivered Mail Returned to Sender"},
		{KindDelivered, "delivered", "2.0.0", "Successful Mail Delivery Report"},
	} {
		out := makeBounce(t, p, tc.kind)
		if got := out.Header.Get("Subject"); got != tc.subject {
			t.Errorf("%v: subject %s", tc.kind, got)
		}
		body := string(out.Body())
		if !strings.Contains(body, "Action: "+tc.action) {
			t.Errorf("%v: action missing", tc.kind)
		}
		if !strings.Contains(body, "Status: "+tc.status) {
			t.Errorf("%v: status missing", tc.kind)
		}
	}
}

func TestRefresh_TemplateOverride(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProducer("mx1.local.example", "local.example", dir)
	if err != nil {
		t.Fatal(err)
	}

	override := filepath.Join(dir, "no_user.tmpl")
	if err := os.WriteFile(override, []byte("custom text for {{.Recipient}}\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(); err != nil {
		t.Fatal(err)
	}

	out := makeBounce(t, p, KindNoUser)
	if !strings.Contains(string(out.Body()), "custom text for rcpt@local.example") {
		t.Fatal("template override not used")
	}

	// Kinds without an override keep the built-in text.
	out = makeBounce(t, p, KindMailboxFull)
	if !strings.Contains(string(out.Body()), "mailbox is full") {
		t.Fatal("built-in template lost")
	}
}

func TestRefresh_BrokenTemplate(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProducer("mx1.local.example", "local.example", dir)
	if err != nil {
		t.Fatal(err)
	}

	broken := filepath.Join(dir, "timeout.tmpl")
	if err := os.WriteFile(broken, []byte("{{.Unclosed"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := p.Refresh(); err == nil {
		t.Fatal("broken template must fail the reload")
	}

	// The previous template set stays in effect.
	out := makeBounce(t, p, KindTimeout)
	if !strings.Contains(string(out.Body()), "repeated attempts") {
		t.Fatal("previous templates must survive a failed reload")
	}
}
