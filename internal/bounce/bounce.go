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

// Package bounce generates the delivery status notifications the local
// delivery hook sends back to envelope senders: non-delivery reports,
// delivery receipts and retry-timeout notices.
//
// Reports follow RFC 3464/3462 (multipart/report with a machine-readable
// delivery-status part and the original header section). The human-readable
// part comes from per-kind templates that operators can override in the
// resource directory and reload at runtime.
package bounce

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/internal/mta"
)

// Kind selects the report flavor.
type Kind int

const (
	KindNoUser Kind = iota
	KindMailboxFull
	KindOperationError
	KindDelivered
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNoUser:
		return "no_user"
	case KindMailboxFull:
		return "mailbox_full"
	case KindOperationError:
		return "operation_error"
	case KindDelivered:
		return "delivered"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

type kindInfo struct {
	action  string
	status  smtp.EnhancedCode
	code    int
	subject string
}

var kindInfos = map[Kind]kindInfo{
	KindNoUser: {
		action:  "failed",
		status:  smtp.EnhancedCode{5, 1, 1},
		code:    550,
		subject: "Undelivered Mail Returned to Sender",
	},
	KindMailboxFull: {
		action:  "failed",
		status:  smtp.EnhancedCode{5, 2, 2},
		code:    552,
		subject: "Undelivered Mail Returned to Sender",
	},
	KindOperationError: {
		action:  "failed",
		status:  smtp.EnhancedCode{5, 3, 0},
		code:    554,
		subject: "Undelivered Mail Returned to Sender",
	},
	KindDelivered: {
		action:  "delivered",
		status:  smtp.EnhancedCode{2, 0, 0},
		code:    250,
		subject: "Successful Mail Delivery Report",
	},
	KindTimeout: {
		action:  "failed",
		status:  smtp.EnhancedCode{5, 4, 7},
		code:    554,
		subject: "Undelivered Mail Returned to Sender",
	},
}

// Producer builds bounce mails.
type Producer struct {
	Log log.Logger

	// Hostname is the Reporting-MTA identity.
	Hostname string
	// Domain is the postmaster domain used in the From header.
	Domain string
	// ResourceDir holds template overrides, one <kind>.tmpl per kind.
	// Empty means built-ins only.
	ResourceDir string

	mu    sync.RWMutex
	tmpls map[Kind]*template.Template
}

func NewProducer(hostname, domain, resourceDir string) (*Producer, error) {
	p := &Producer{
		Log:         log.Logger{Name: "bounce"},
		Hostname:    hostname,
		Domain:      domain,
		ResourceDir: resourceDir,
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh reloads template overrides from the resource directory. Kinds
// without an override keep the built-in text. Invoked at startup and by the
// console 'bounce reload' command.
func (p *Producer) Refresh() error {
	tmpls := make(map[Kind]*template.Template, len(kindInfos))
	for kind := range kindInfos {
		tmpls[kind] = builtinTemplate
		if p.ResourceDir == "" {
			continue
		}
		path := filepath.Join(p.ResourceDir, kind.String()+".tmpl")
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("bounce: read %s: %w", path, err)
		}
		tmpl, err := template.New(kind.String()).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("bounce: parse %s: %w", path, err)
		}
		tmpls[kind] = tmpl
	}

	p.mu.Lock()
	p.tmpls = tmpls
	p.mu.Unlock()
	return nil
}

type templateData struct {
	ReportingMTA string
	Recipient    string
	Sender       string
	Time         string
	Reason       string
}

var builtinTemplate = template.Must(template.New("bounce").Parse(`This is the mail delivery system at {{.ReportingMTA}}.

{{.Reason}}

  Recipient: {{.Recipient}}
  Time: {{.Time}}

If the problem persists, contact the postmaster and include this report.
`))

var kindReasons = map[Kind]string{
	KindNoUser:         "Your message could not be delivered: the recipient address does not exist.",
	KindMailboxFull:    "Your message could not be delivered: the recipient's mailbox is full.",
	KindOperationError: "Your message could not be delivered because of a processing error on the destination server.",
	KindDelivered:      "Your message was successfully delivered to the destination mailbox.",
	KindTimeout:        "Your message could not be delivered after repeated attempts over the retry period.",
}

// Make fills out with a bounce mail of the given kind for the delivery of
// orig to rcpt. from is the original envelope sender and becomes the
// report's destination in the To header; the caller sets the envelope on
// the message context.
func (p *Producer) Make(from, rcpt string, orig *mta.Mail, now time.Time, kind Kind, out *mta.Mail) error {
	info, ok := kindInfos[kind]
	if !ok {
		return fmt.Errorf("bounce: unknown kind %d", kind)
	}

	p.mu.RLock()
	tmpl := p.tmpls[kind]
	p.mu.RUnlock()
	if tmpl == nil {
		tmpl = builtinTemplate
	}

	var body bytes.Buffer
	partWriter := textproto.NewMultipartWriter(&body)

	hdr := textproto.Header{}
	hdr.Add("Date", now.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	hdr.Add("Message-Id", fmt.Sprintf("<%s@%s>", uuid.New().String(), p.Hostname))
	hdr.Add("Content-Transfer-Encoding", "8bit")
	hdr.Add("Content-Type", "multipart/report; report-type=delivery-status; boundary="+partWriter.Boundary())
	hdr.Add("MIME-Version", "1.0")
	hdr.Add("Auto-Submitted", "auto-replied")
	hdr.Add("To", "<"+from+">")
	hdr.Add("From", "Mail Delivery System <postmaster@"+p.Domain+">")
	hdr.Add("Subject", info.subject)

	if err := p.writeHumanPart(partWriter, tmpl, templateData{
		ReportingMTA: p.Hostname,
		Recipient:    rcpt,
		Sender:       from,
		Time:         now.Format(time.RFC1123Z),
		Reason:       kindReasons[kind],
	}); err != nil {
		return err
	}
	if err := p.writeStatusPart(partWriter, rcpt, now, kind, info); err != nil {
		return err
	}
	if err := p.writeHeadersPart(partWriter, orig); err != nil {
		return err
	}
	if err := partWriter.Close(); err != nil {
		return err
	}

	out.Header = hdr
	out.SetBody(body.Bytes())
	return nil
}

func (p *Producer) writeHumanPart(w *textproto.MultipartWriter, tmpl *template.Template, data templateData) error {
	partHdr := textproto.Header{}
	partHdr.Add("Content-Transfer-Encoding", "8bit")
	partHdr.Add("Content-Type", `text/plain; charset="utf-8"`)
	partHdr.Add("Content-Description", "Notification")
	pw, err := w.CreatePart(partHdr)
	if err != nil {
		return err
	}
	return tmpl.Execute(pw, data)
}

func (p *Producer) writeStatusPart(w *textproto.MultipartWriter, rcpt string, now time.Time, kind Kind, info kindInfo) error {
	partHdr := textproto.Header{}
	partHdr.Add("Content-Type", "message/delivery-status")
	partHdr.Add("Content-Description", "Delivery report")
	pw, err := w.CreatePart(partHdr)
	if err != nil {
		return err
	}

	mtaHdr := textproto.Header{}
	mtaHdr.AddRaw([]byte("Reporting-MTA: dns; " + p.Hostname + "\r\n"))
	mtaHdr.Add("Arrival-Date", now.Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	if err := textproto.WriteHeader(pw, mtaHdr); err != nil {
		return err
	}

	rcptHdr := textproto.Header{}
	rcptHdr.Add("Final-Recipient", "rfc822; "+rcpt)
	rcptHdr.Add("Action", info.action)
	rcptHdr.Add("Status", fmt.Sprintf("%d.%d.%d", info.status[0], info.status[1], info.status[2]))
	rcptHdr.Add("Diagnostic-Code", fmt.Sprintf("smtp; %d %d.%d.%d %s",
		info.code, info.status[0], info.status[1], info.status[2],
		strings.ReplaceAll(kindReasons[kind], "\n", " ")))
	return textproto.WriteHeader(pw, rcptHdr)
}

func (p *Producer) writeHeadersPart(w *textproto.MultipartWriter, orig *mta.Mail) error {
	partHdr := textproto.Header{}
	partHdr.Add("Content-Description", "Undelivered message header")
	partHdr.Add("Content-Type", "message/rfc822-headers")
	partHdr.Add("Content-Transfer-Encoding", "8bit")
	pw, err := w.CreatePart(partHdr)
	if err != nil {
		return err
	}
	if orig == nil {
		return nil
	}
	return textproto.WriteHeader(pw, orig.Header)
}
