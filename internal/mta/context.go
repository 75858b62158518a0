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

// Package mta defines the interface between the queue runtime that invokes
// delivery hooks and the hooks themselves: message contexts, the recipient
// stream and the host capability.
package mta

import (
	"github.com/google/uuid"
)

// BoundType tags the direction a message context travels in.
type BoundType int

const (
	BoundIn BoundType = iota
	BoundOut
	BoundRelay
	// BoundNotLocal marks contexts a previous hook already classified as
	// not locally deliverable; the local delivery hook declines them.
	BoundNotLocal
	// BoundApp marks contexts created in-process (bounces, auto-replies)
	// rather than accepted over SMTP.
	BoundApp
)

func (b BoundType) String() string {
	switch b {
	case BoundIn:
		return "in"
	case BoundOut:
		return "out"
	case BoundRelay:
		return "relay"
	case BoundNotLocal:
		return "notlocal"
	case BoundApp:
		return "app"
	}
	return "unknown"
}

// Control carries the envelope of a message context.
type Control struct {
	BoundType  BoundType
	From       string
	RcptTo     *LineStream
	NeedBounce bool

	// QueueID identifies the message in the queue runtime; logged on every
	// delivery event.
	QueueID string
}

// MessageContext is one message borrowed from the queue runtime. Hooks must
// not retain references to it past their return; the only sanctioned way to
// keep the message is serializing it into the retry cache.
type MessageContext struct {
	Ctrl Control
	Mail *Mail
}

// Host is the capability provided by the queue runtime to hooks.
//
// All methods are safe for concurrent use.
type Host interface {
	// GetContext borrows a free message context, or nil when the pool is
	// exhausted.
	GetContext() *MessageContext
	// PutContext returns a context to the pool without sending it.
	PutContext(*MessageContext)
	// EnqueueContext hands a filled context to the queue runtime for
	// delivery and returns it to the pool afterwards.
	EnqueueContext(*MessageContext)
	// DefaultDomain returns the domain used for postmaster addresses.
	DefaultDomain() string
	// HostID returns the host identifier used in message filenames.
	HostID() string
}

// ContextPool is a fixed-capacity MessageContext pool with a pluggable
// enqueue sink. The queue runtime embeds one; tests use it directly.
type ContextPool struct {
	free    chan *MessageContext
	enqueue func(*MessageContext)

	defaultDomain string
	hostID        string
}

// NewContextPool creates a pool of n contexts. enqueue receives contexts
// handed to EnqueueContext; the pool reclaims them after enqueue returns.
func NewContextPool(n int, defaultDomain, hostID string, enqueue func(*MessageContext)) *ContextPool {
	p := &ContextPool{
		free:          make(chan *MessageContext, n),
		enqueue:       enqueue,
		defaultDomain: defaultDomain,
		hostID:        hostID,
	}
	for i := 0; i < n; i++ {
		p.free <- &MessageContext{
			Ctrl: Control{RcptTo: NewLineStream()},
			Mail: &Mail{},
		}
	}
	return p
}

func (p *ContextPool) GetContext() *MessageContext {
	select {
	case ctx := <-p.free:
		ctx.Ctrl.BoundType = BoundApp
		ctx.Ctrl.From = ""
		ctx.Ctrl.NeedBounce = false
		ctx.Ctrl.QueueID = uuid.New().String()
		ctx.Ctrl.RcptTo.Reset()
		ctx.Mail.Reset()
		return ctx
	default:
		return nil
	}
}

func (p *ContextPool) PutContext(ctx *MessageContext) {
	if ctx == nil {
		return
	}
	select {
	case p.free <- ctx:
	default:
		// Double put; drop the extra context instead of blocking.
	}
}

func (p *ContextPool) EnqueueContext(ctx *MessageContext) {
	if p.enqueue != nil {
		p.enqueue(ctx)
	}
	p.PutContext(ctx)
}

func (p *ContextPool) DefaultDomain() string {
	return p.defaultDomain
}

func (p *ContextPool) HostID() string {
	return p.hostID
}
