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

// Package autoreply sends out-of-office replies after successful local
// deliveries. Replies are best effort: every failure is logged and
// swallowed, delivery classification is never affected.
package autoreply

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/internal/audit"
	"github.com/oxmail/oxmail/internal/mta"
)

// Responder sends OOF replies, throttled to one reply per (mailbox,
// sender) pair per interval.
type Responder struct {
	Log  log.Logger
	Host mta.Host

	throttle *audit.Audit
}

func New(host mta.Host, interval time.Duration) *Responder {
	return &Responder{
		Log:      log.Logger{Name: "autoreply"},
		Host:     host,
		throttle: audit.New(1, interval),
	}
}

// Interval returns the current per-pair throttle interval.
func (r *Responder) Interval() time.Duration {
	return r.throttle.Interval()
}

// SetInterval adjusts the throttle interval at runtime.
func (r *Responder) SetInterval(d time.Duration) {
	r.throttle.SetInterval(d)
}

// Reply sends the out-of-office reply of the mailbox at homeDir, owned by
// rcpt, to sender. A no-op when the mailbox has no active OOF state or the
// pair was served within the current interval.
func (r *Responder) Reply(homeDir, rcpt, sender string) {
	state, err := config.OpenKVFile(filepath.Join(homeDir, "config", "autoreply.cfg"))
	if err != nil {
		r.Log.Error("cannot read autoreply state", err, "home", homeDir)
		return
	}
	if v := state.Get("OOF_STATE"); v != "1" && strings.ToLower(v) != "on" {
		return
	}

	if !r.throttle.Check(strings.ToLower(homeDir + "|" + sender)) {
		r.Log.Debugf("reply to %s for %s suppressed by interval", sender, rcpt)
		return
	}

	subject := state.Get("SUBJECT")
	if subject == "" {
		subject = "Out of Office"
	}
	body, err := os.ReadFile(filepath.Join(homeDir, "config", "autoreply.txt"))
	if err != nil && !os.IsNotExist(err) {
		r.Log.Error("cannot read autoreply text", err, "home", homeDir)
		return
	}
	if len(body) == 0 {
		body = []byte("The recipient is currently out of office and will read your message later.\r\n")
	}

	ctx := r.Host.GetContext()
	if ctx == nil {
		r.Log.Printf("cannot get reply context for %s", rcpt)
		return
	}

	hdr := textproto.Header{}
	hdr.Add("Date", time.Now().Format("Mon, 2 Jan 2006 15:04:05 -0700"))
	hdr.Add("Message-Id", "<"+uuid.New().String()+"@"+r.Host.HostID()+">")
	hdr.Add("From", "<"+rcpt+">")
	hdr.Add("To", "<"+sender+">")
	hdr.Add("Subject", subject)
	hdr.Add("Auto-Submitted", "auto-replied")
	hdr.Add("X-Auto-Response-Suppress", "All")
	hdr.Add("Content-Type", `text/plain; charset="utf-8"`)

	ctx.Mail.Header = hdr
	ctx.Mail.SetBody(body)
	ctx.Ctrl.BoundType = mta.BoundApp
	// The reply itself must never bounce or trigger further replies.
	ctx.Ctrl.From = "none@none"
	ctx.Ctrl.NeedBounce = false
	ctx.Ctrl.RcptTo.WriteLine(sender)
	r.Host.EnqueueContext(ctx)

	r.Log.Msg("auto response sent", "rcpt", rcpt, "sender", sender)
}
