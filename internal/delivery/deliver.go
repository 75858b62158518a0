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

// Package delivery implements the local delivery hook: the per-recipient
// delivery unit that materializes, converts and stores a message into the
// recipient's mailbox, and the hook dispatcher that routes every recipient
// of a message context into local delivery, remote forwarding, bounce
// production or the retry cache.
package delivery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/internal/audit"
	"github.com/oxmail/oxmail/internal/autoreply"
	"github.com/oxmail/oxmail/internal/bounce"
	"github.com/oxmail/oxmail/internal/directory"
	"github.com/oxmail/oxmail/internal/exmdb"
	"github.com/oxmail/oxmail/internal/importer"
	"github.com/oxmail/oxmail/internal/mapi"
	"github.com/oxmail/oxmail/internal/mta"
	"github.com/oxmail/oxmail/internal/retrycache"
	"github.com/oxmail/oxmail/internal/sequence"
)

// noBounceSender is the envelope sender that marks messages which must
// never produce bounces, whatever happens to them.
const noBounceSender = "none@none"

// Config wires the collaborators of the local delivery hook. Every field
// is required unless stated otherwise; New reports the first missing one.
type Config struct {
	Host      mta.Host
	Directory directory.Directory
	Store     exmdb.Client
	Importer  *importer.Importer
	Producer  *bounce.Producer
	Responder *autoreply.Responder
	Cache     *retrycache.Cache
	Audit     *audit.Audit
	Stats     *Stats

	// Blacklist is optional; nil disables blacklisting.
	Blacklist *Blacklist

	// RuntimeState persists console-adjusted settings; optional.
	RuntimeState *config.KVFile
}

// LocalDelivery is the delivery hook instance.
type LocalDelivery struct {
	Log log.Logger

	host      mta.Host
	dir       directory.Directory
	store     exmdb.Client
	imp       *importer.Importer
	producer  *bounce.Producer
	responder *autoreply.Responder
	cache     *retrycache.Cache
	seq       *sequence.Sequencer
	audit     *audit.Audit
	stats     *Stats
	blacklist *Blacklist
	state     *config.KVFile

	defaultCharset  string
	defaultTimezone string
}

func New(cfg Config) (*LocalDelivery, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"mta host", cfg.Host == nil},
		{"user directory", cfg.Directory == nil},
		{"store client", cfg.Store == nil},
		{"importer", cfg.Importer == nil},
		{"bounce producer", cfg.Producer == nil},
		{"auto responder", cfg.Responder == nil},
		{"retry cache", cfg.Cache == nil},
		{"bounce audit", cfg.Audit == nil},
		{"statistics", cfg.Stats == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("delivery: missing capability: %s", r.name)
		}
	}
	d := &LocalDelivery{
		Log:             log.Logger{Name: "delivery"},
		host:            cfg.Host,
		dir:             cfg.Directory,
		store:           cfg.Store,
		imp:             cfg.Importer,
		producer:        cfg.Producer,
		responder:       cfg.Responder,
		cache:           cfg.Cache,
		seq:             sequence.New(),
		audit:           cfg.Audit,
		stats:           cfg.Stats,
		blacklist:       cfg.Blacklist,
		state:           cfg.RuntimeState,
		defaultCharset:  "windows-1252",
		defaultTimezone: "UTC",
	}
	d.cache.Handler = d
	return d, nil
}

// Deliver performs the full single-recipient delivery protocol and
// classifies the result. It never returns an error: every failure mode
// maps onto an Outcome.
func (d *LocalDelivery) Deliver(ctx *mta.MessageContext, address string) Outcome {
	outcome := d.deliver(ctx, address)
	deliveryOutcomes.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (d *LocalDelivery) deliver(ctx *mta.MessageContext, address string) Outcome {
	if d.blacklist != nil && d.blacklist.Contains(address) {
		d.logInfo(ctx, address, "recipient is blacklisted")
		return OutcomeNoUser
	}

	info, err := d.dir.UserInfo(address)
	if err != nil {
		d.logInfo(ctx, address, "failed to get user information from data source: %v", err)
		return OutcomeTransient
	}
	charset := ""
	if info.Lang != "" {
		charset = directory.ValidateCharset(directory.LangToCharset(info.Lang))
	}
	if charset == "" {
		charset = d.defaultCharset
	}
	if info.HomeDir == "" {
		d.logInfo(ctx, address, "no such user in the mail system")
		return OutcomeNoUser
	}
	timezone := info.Timezone
	if timezone == "" {
		timezone = d.defaultTimezone
	}

	// Undo dot transparency on a private copy; the MTA-owned mail stays
	// untouched.
	m := ctx.Mail
	var dotCtx *mta.MessageContext
	if m.CheckDot() {
		dotCtx = d.host.GetContext()
		if dotCtx != nil {
			if m.TransferDot(dotCtx.Mail) {
				m = dotCtx.Mail
			} else {
				d.host.PutContext(dotCtx)
				dotCtx = nil
			}
		}
	}
	defer func() {
		if dotCtx != nil {
			d.host.PutContext(dotCtx)
		}
	}()

	hostname := d.host.HostID()
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil || hostname == "" {
			hostname = "localhost"
		}
	}
	filename := fmt.Sprintf("%d.%d.%s", time.Now().Unix(), d.seq.Next(), hostname)
	emlPath := filepath.Join(info.HomeDir, "eml", filename)

	f, err := os.OpenFile(emlPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o666)
	if err != nil {
		d.logInfo(ctx, address, "failed to create mail file in directory %s/eml: %v", info.HomeDir, err)
		return OutcomeTransient
	}
	if err := m.WriteTo(f); err != nil {
		f.Close()
		os.Remove(emlPath)
		d.logInfo(ctx, address, "failed to write mail file in directory %s/eml: %v", info.HomeDir, err)
		return OutcomeTransient
	}
	if err := f.Close(); err != nil {
		os.Remove(emlPath)
		d.logInfo(ctx, address, "failed to write mail file in directory %s/eml: %v", info.HomeDir, err)
		return OutcomeTransient
	}

	digest, err := importer.Digest(m, filename)
	if err != nil {
		os.Remove(emlPath)
		d.logInfo(ctx, address, "permanent failure computing the mail digest: %v", err)
		return OutcomePermanent
	}

	arena := mapi.NewArena()
	defer arena.Release()
	msg, err := d.imp.Import(charset, timezone, m, arena)
	if err != nil {
		os.Remove(emlPath)
		d.logInfo(ctx, address, "failed to convert rfc822 mail into a message object: %v", err)
		return OutcomePermanent
	}

	msg.Props.Set(mapi.TagMessageDeliveryTime, mapi.NTTimeNow())
	if !ctx.Ctrl.NeedBounce {
		msg.Props.Set(mapi.TagAutoResponseSuppress, mapi.SuppressAll)
	}
	msg.Props.Remove(mapi.TagChangeNumber)

	result := d.store.DeliveryMessage(info.HomeDir, ctx.Ctrl.From, address, 0, msg, digest)

	var suppressMask uint32
	bounceDelivered := false
	if result == exmdb.ResultOK {
		suppressMask, _ = msg.Props.GetUint32(mapi.TagAutoResponseSuppress)
		if requested, ok := msg.Props.GetBool(mapi.TagOriginatorDeliveryReportRequested); ok && requested {
			bounceDelivered = suppressMask&mapi.SuppressDR == 0
		}
	}

	switch result {
	case exmdb.ResultOK:
		d.logInfo(ctx, address, "message %s delivered OK", emlPath)
		if ctx.Ctrl.NeedBounce && !strings.EqualFold(ctx.Ctrl.From, noBounceSender) &&
			suppressMask&mapi.SuppressOOF == 0 {
			d.responder.Reply(info.HomeDir, address, ctx.Ctrl.From)
		}
		if bounceDelivered {
			return OutcomeDelivered
		}
		return OutcomeOK
	case exmdb.ResultMailboxFull:
		d.logInfo(ctx, address, "user's mailbox is full")
		return OutcomeMailboxFull
	case exmdb.ResultRuntimeError:
		d.logInfo(ctx, address, "rpc run-time error delivering into directory %s", info.HomeDir)
	case exmdb.ResultNoServer:
		d.logInfo(ctx, address, "no store server connection for directory %s", info.HomeDir)
	case exmdb.ResultRdwrError:
		d.logInfo(ctx, address, "read/write error with store server for directory %s", info.HomeDir)
	case exmdb.ResultError:
		d.logInfo(ctx, address, "error result delivering into directory %s", info.HomeDir)
	default:
		d.logInfo(ctx, address, "unexpected store result %d for directory %s", result, info.HomeDir)
	}
	return OutcomeTransient
}

// logInfo logs a delivery event with the envelope context: SMTP-bound
// messages carry the queue ID, in-process messages are marked as such.
func (d *LocalDelivery) logInfo(ctx *mta.MessageContext, rcpt, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch ctx.Ctrl.BoundType {
	case mta.BoundIn, mta.BoundOut, mta.BoundRelay:
		d.Log.Msg(msg, "queue_id", ctx.Ctrl.QueueID, "from", ctx.Ctrl.From, "rcpt", rcpt)
	default:
		d.Log.Msg(msg, "source", "app", "from", ctx.Ctrl.From, "rcpt", rcpt)
	}
}
