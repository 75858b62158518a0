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

package delivery

import (
	"strings"
	"time"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/internal/bounce"
	"github.com/oxmail/oxmail/internal/mta"
)

// Hook processes one message context from the queue runtime. It routes
// every recipient into local delivery or back to the remote stream and
// reports whether the context was fully handled: false means the
// recipient list was rewritten to the non-local remainder and the next
// hook owns the message.
func (d *LocalDelivery) Hook(ctx *mta.MessageContext) bool {
	if ctx.Ctrl.BoundType == mta.BoundNotLocal {
		return false
	}

	remote := mta.NewLineStream()
	remoteFound := false

	ctx.Ctrl.RcptTo.Rewind()
	for {
		rcpt, ok := ctx.Ctrl.RcptTo.ReadLine()
		if !ok {
			break
		}
		at := strings.IndexByte(rcpt, '@')
		if at < 0 {
			// Not an address we can classify; it goes to the remote stream
			// but does not by itself hand the context to the next hook.
			remote.WriteLine(rcpt)
			continue
		}
		if !d.dir.CheckDomain(rcpt[at+1:]) {
			remoteFound = true
			remote.WriteLine(rcpt)
			continue
		}
		d.dispatch(ctx, rcpt, d.Deliver(ctx, rcpt))
	}

	if remoteFound {
		ctx.Ctrl.RcptTo.ReplaceWith(remote)
		return false
	}
	return true
}

// dispatch turns an outcome into counters, bounces and retry-cache
// entries, as seen from the hook path.
func (d *LocalDelivery) dispatch(ctx *mta.MessageContext, rcpt string, outcome Outcome) {
	switch outcome {
	case OutcomeOK:
		d.stats.Record(1, 0, 0, 0)
	case OutcomeDelivered:
		d.stats.Record(1, 0, 0, 0)
		d.produceBounce(ctx, rcpt, bounce.KindDelivered)
	case OutcomeNoUser:
		d.stats.Record(0, 0, 0, 1)
		d.produceBounce(ctx, rcpt, bounce.KindNoUser)
	case OutcomeMailboxFull:
		// A user condition, not a delivery failure; bounce without
		// touching the counters.
		d.produceBounce(ctx, rcpt, bounce.KindMailboxFull)
	case OutcomePermanent:
		d.stats.Record(0, 0, 1, 0)
		d.produceBounce(ctx, rcpt, bounce.KindOperationError)
	case OutcomeTransient:
		d.stats.Record(0, 1, 0, 0)
		cacheID, err := d.cache.Put(ctx, rcpt, time.Now())
		if err != nil {
			d.logInfo(ctx, rcpt, "failed to put message into the retry cache: %v", err)
			return
		}
		d.logInfo(ctx, rcpt,
			"message put into the retry cache with cache ID %d, waiting for the next attempt", cacheID)
	}
}

// produceBounce builds and enqueues a bounce of the given kind to the
// envelope sender. Best effort: failures are logged, never propagated.
func (d *LocalDelivery) produceBounce(ctx *mta.MessageContext, rcpt string, kind bounce.Kind) {
	if !ctx.Ctrl.NeedBounce || strings.EqualFold(ctx.Ctrl.From, noBounceSender) {
		return
	}

	bctx := d.host.GetContext()
	if bctx == nil {
		d.logInfo(ctx, rcpt, "failed to get a bounce context")
		return
	}
	if !d.audit.Check(rcpt) {
		d.logInfo(ctx, rcpt,
			"will not produce a bounce message, too many mails to %s", rcpt)
		bouncesSuppressed.Inc()
		d.host.PutContext(bctx)
		return
	}

	if err := d.producer.Make(ctx.Ctrl.From, rcpt, ctx.Mail, time.Now(), kind, bctx.Mail); err != nil {
		d.logInfo(ctx, rcpt, "failed to produce a bounce message: %v", err)
		d.host.PutContext(bctx)
		return
	}
	bctx.Ctrl.BoundType = mta.BoundApp
	bctx.Ctrl.NeedBounce = false
	bctx.Ctrl.From = "postmaster@" + d.host.DefaultDomain()
	bctx.Ctrl.RcptTo.WriteLine(ctx.Ctrl.From)
	d.host.EnqueueContext(bctx)
	bouncesProduced.WithLabelValues(kind.String()).Inc()
}

// Redeliver implements retrycache.Handler: it re-runs the delivery unit
// for a cached entry. Transient failures keep the entry queued; terminal
// outcomes perform the same side effects as the hook path, minus the
// retry-cache insertion.
func (d *LocalDelivery) Redeliver(ctx *mta.MessageContext, rcpt string) bool {
	outcome := d.Deliver(ctx, rcpt)
	if outcome == OutcomeTransient {
		return true
	}
	d.dispatch(ctx, rcpt, outcome)
	return false
}

// Timeout implements retrycache.Handler for entries that spent their
// attempt budget.
func (d *LocalDelivery) Timeout(ctx *mta.MessageContext, rcpt string) {
	d.logInfo(ctx, rcpt, "giving up on the message after %d attempts", d.cache.RetryingTimes())
	d.produceBounce(ctx, rcpt, bounce.KindTimeout)
}

// Name implements module.Module.
func (d *LocalDelivery) Name() string { return "exmdb_local" }

// InstanceName implements module.Module.
func (d *LocalDelivery) InstanceName() string { return "exmdb_local" }

// Init implements module.Module.
func (d *LocalDelivery) Init(cfg *config.Map) error {
	cfg.Bool("debug", false, &d.Log.Debug)
	cfg.String("default_charset", false, d.defaultCharset, &d.defaultCharset)
	cfg.String("default_timezone", false, d.defaultTimezone, &d.defaultTimezone)
	_, err := cfg.Process()
	return err
}
