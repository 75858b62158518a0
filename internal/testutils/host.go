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

package testutils

import (
	"sync"

	"github.com/oxmail/oxmail/internal/mta"
)

// EnqueuedMessage is a snapshot of one context handed to EnqueueContext,
// taken before the context goes back to the pool.
type EnqueuedMessage struct {
	BoundType  mta.BoundType
	From       string
	RcptTo     []string
	NeedBounce bool
	Subject    string
	Body       []byte
}

// Host is an in-memory MTA host for tests: a real context pool plus a log
// of everything enqueued.
type Host struct {
	*mta.ContextPool

	mu       sync.Mutex
	enqueued []EnqueuedMessage
}

func NewHost(contexts int, defaultDomain, hostID string) *Host {
	h := &Host{}
	h.ContextPool = mta.NewContextPool(contexts, defaultDomain, hostID, func(ctx *mta.MessageContext) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.enqueued = append(h.enqueued, EnqueuedMessage{
			BoundType:  ctx.Ctrl.BoundType,
			From:       ctx.Ctrl.From,
			RcptTo:     ctx.Ctrl.RcptTo.Lines(),
			NeedBounce: ctx.Ctrl.NeedBounce,
			Subject:    ctx.Mail.Header.Get("Subject"),
			Body:       append([]byte(nil), ctx.Mail.Body()...),
		})
	})
	return h
}

// Enqueued returns the messages enqueued so far.
func (h *Host) Enqueued() []EnqueuedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]EnqueuedMessage(nil), h.enqueued...)
}
