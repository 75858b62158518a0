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

/*
Package asyncwait parks async_wait RPC calls until a new-mail notification
arrives for their (username, context index) pair, a timeout expires, or
the client cancels.

The registry keeps every parked waiter in two indices: the tag index keyed
by (username, cxr) and, for RPC-bound waiters, the async-ID index. Both
live under one mutex so a waiter is either reachable through both or
through neither; the wake, reclaim and remove paths rely on that to hand
ownership over atomically. Woken waiters move into a FIFO wake queue
drained by a fixed pool of workers; a sweeper detaches waiters that parked
for too long and fires them without the pending flag.

Waiters come from a fixed-capacity pool sized to twice the RPC context
count. The wake queue has the same capacity, so queue sends never block
while the registry lock is not held.
*/
package asyncwait

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oxmail/oxmail/framework/config"
	"github.com/oxmail/oxmail/framework/log"
)

// WaitingInterval is how long a waiter may stay parked. The sweeper fires
// waiters a few seconds early so the transport's own timeout never wins
// the race.
const (
	WaitingInterval = 300 * time.Second
	sweepSlack      = 3 * time.Second
	sweepPeriod     = time.Second
)

// FlagNotificationPending is the flags_out bit telling the client that
// notifications are waiting to be fetched.
const FlagNotificationPending uint32 = 0x00000001

// Result is the RPC-level status of an async_wait call.
type Result uint32

const (
	ResultSuccess Result = 0x00000000
	// ResultRejected is returned on authentication mismatch, duplicate
	// registration and pool exhaustion (MS-OXCRPC ecRejected).
	ResultRejected Result = 0x000007EE
)

// Dispatch tells the transport what to do with the call.
type Dispatch int

const (
	// DispatchSuccess means the out-parameters are final; reply now.
	DispatchSuccess Dispatch = iota
	// DispatchPending means the call is parked; the reply is delivered
	// later through the Responder or the HTTP activator.
	DispatchPending
)

// Handle is the opaque session handle (acxh) issued by the emsmdb session
// manager; only the session table can interpret it.
type Handle uint64

// SessionTable validates handles and maps them to their session identity.
type SessionTable interface {
	// ResolveHandle checks the handle and returns the session's username
	// and context index. touch extends the session's lifetime.
	ResolveHandle(h Handle, touch bool) (username string, cxr uint16, ok bool)

	// HasPending reports whether the session already has notifications
	// queued, in which case async_wait returns immediately.
	HasPending(h Handle) bool
}

// Responder delivers deferred replies for RPC-bound waiters.
type Responder interface {
	// BuildEnvironment re-establishes the RPC environment of the parked
	// call. A false return drops the reply (the call is gone).
	BuildEnvironment(asyncID uint32) bool
	// Reply sends the filled out-parameters for the parked call.
	Reply(asyncID uint32, out *WaitOut)
}

// WaitIn carries the async_wait in-parameters.
type WaitIn struct {
	Handle Handle
	Flags  uint32
}

// WaitOut carries the async_wait out-parameters. For in-process long-poll
// registrations (async ID 0) FlagsOut holds the HTTP context ID on input.
type WaitOut struct {
	FlagsOut uint32
	Result   Result
}

// wait is one parked call. Output routing is a tagged variant over
// asyncID: 0 means HTTP long-poll (httpContextID), anything else means
// RPC reply slot (out).
type wait struct {
	username      string // lowercased
	cxr           uint16
	asyncID       uint32
	registeredAt  time.Time
	out           *WaitOut
	httpContextID int
}

func (w *wait) reset() {
	*w = wait{}
}

func tagKey(username string, cxr uint16) string {
	return strings.ToLower(fmt.Sprintf("%s:%d", username, cxr))
}

// Registry is the async_wait registry.
type Registry struct {
	Log log.Logger

	sessions  SessionTable
	responder Responder
	// activateHTTP fires in-process long-poll waiters; registered by the
	// HTTP processor before Start.
	activateHTTP func(contextID int, pending bool)

	threads int

	// mu covers tags and asyncs together; the bidirectional-index
	// invariant is exactly why both live under one lock.
	mu     sync.Mutex
	tags   map[string]*wait
	asyncs map[uint32]*wait
	tagMax int

	pool chan *wait
	wake chan *wait

	stop chan struct{}
	wg   sync.WaitGroup

	// Test hook; time.Now when nil.
	now func() time.Time
}

// New sizes the registry for contextNum concurrent RPC contexts and
// threads worker goroutines.
func New(sessions SessionTable, responder Responder, threads, contextNum int) *Registry {
	capacity := 2 * contextNum
	r := &Registry{
		Log:       log.Logger{Name: "asyncwait"},
		sessions:  sessions,
		responder: responder,
		threads:   threads,
		tags:      make(map[string]*wait, capacity),
		asyncs:    make(map[uint32]*wait, capacity),
		tagMax:    capacity,
		pool:      make(chan *wait, capacity),
		wake:      make(chan *wait, capacity),
		stop:      make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		r.pool <- &wait{}
	}
	return r
}

// RegisterActivateHTTP installs the long-poll activation callback. Must
// be called before Start.
func (r *Registry) RegisterActivateHTTP(f func(contextID int, pending bool)) {
	r.activateHTTP = f
}

func (r *Registry) timeNow() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Start launches the workers and the sweeper.
func (r *Registry) Start() error {
	if r.sessions == nil {
		return fmt.Errorf("asyncwait: missing capability: session table")
	}
	if r.responder == nil {
		return fmt.Errorf("asyncwait: missing capability: rpc responder")
	}
	for i := 0; i < r.threads; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.wg.Add(1)
	go r.sweeper()
	return nil
}

// Stop terminates the workers and the sweeper. Parked waiters are not
// fired; the process is going away together with their transports.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Registry) getWait() *wait {
	select {
	case w := <-r.pool:
		return w
	default:
		return nil
	}
}

func (r *Registry) putWait(w *wait) {
	w.reset()
	select {
	case r.pool <- w:
	default:
		// Cannot happen: the pool is sized to hold every waiter.
	}
}

func reject(out *WaitOut) Dispatch {
	out.FlagsOut = 0
	out.Result = ResultRejected
	return DispatchSuccess
}

// AsyncWait registers a parked notification call. rpcUser is the
// authenticated username of the RPC channel; it must match the session
// bound to the handle. asyncID 0 marks an in-process HTTP long-poll
// registration whose context ID arrives in out.FlagsOut.
func (r *Registry) AsyncWait(asyncID uint32, rpcUser string, in *WaitIn, out *WaitOut) Dispatch {
	w := r.getWait()
	if w == nil {
		return reject(out)
	}

	username, cxr, ok := r.sessions.ResolveHandle(in.Handle, true)
	if !ok || !strings.EqualFold(rpcUser, username) {
		r.putWait(w)
		return reject(out)
	}
	if r.sessions.HasPending(in.Handle) {
		r.putWait(w)
		out.FlagsOut = FlagNotificationPending
		out.Result = ResultSuccess
		return DispatchSuccess
	}

	w.username = strings.ToLower(username)
	w.cxr = cxr
	w.asyncID = asyncID
	w.registeredAt = r.timeNow()
	if asyncID == 0 {
		w.httpContextID = int(out.FlagsOut)
	} else {
		w.out = out
	}
	key := tagKey(w.username, w.cxr)

	r.mu.Lock()
	if asyncID != 0 {
		if _, dup := r.asyncs[asyncID]; dup {
			r.mu.Unlock()
			r.putWait(w)
			return reject(out)
		}
		r.asyncs[asyncID] = w
	}
	if _, dup := r.tags[key]; !dup && len(r.tags) < r.tagMax {
		r.tags[key] = w
		parkedWaiters.Set(float64(len(r.tags)))
		r.mu.Unlock()
		return DispatchPending
	}
	if asyncID != 0 {
		delete(r.asyncs, asyncID)
	}
	r.mu.Unlock()
	r.putWait(w)
	return reject(out)
}

// Wakeup fires the waiter parked under (username, cxr) with the pending
// flag. A no-op when none is parked; a registration that loses the race
// against this call waits for the next notification.
func (r *Registry) Wakeup(username string, cxr uint16) {
	key := tagKey(username, cxr)

	r.mu.Lock()
	w, ok := r.tags[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.tags, key)
	if w.asyncID != 0 {
		delete(r.asyncs, w.asyncID)
	}
	parkedWaiters.Set(float64(len(r.tags)))
	r.mu.Unlock()

	// The queue is sized to the pool, the send cannot block.
	r.wake <- w
}

// Reclaim cancels the parked waiter registered under asyncID, releasing
// it without firing. Called when the RPC channel of a parked call dies.
func (r *Registry) Reclaim(asyncID uint32) {
	r.mu.Lock()
	w, ok := r.asyncs[asyncID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.tags, tagKey(w.username, w.cxr))
	delete(r.asyncs, asyncID)
	parkedWaiters.Set(float64(len(r.tags)))
	r.mu.Unlock()

	r.putWait(w)
}

// Remove cancels the parked waiter of the session behind the handle.
// Called by the HTTP processor when a long-poll connection goes away.
func (r *Registry) Remove(h Handle) {
	username, cxr, ok := r.sessions.ResolveHandle(h, false)
	if !ok {
		return
	}
	key := tagKey(username, cxr)

	r.mu.Lock()
	w, found := r.tags[key]
	if !found {
		r.mu.Unlock()
		return
	}
	delete(r.tags, key)
	if w.asyncID != 0 {
		delete(r.asyncs, w.asyncID)
	}
	parkedWaiters.Set(float64(len(r.tags)))
	r.mu.Unlock()

	r.putWait(w)
}

// activate fires a detached waiter. The caller owns it exclusively; after
// the reply is delivered the waiter goes back to the pool.
func (r *Registry) activate(w *wait, pending bool) {
	if w.asyncID == 0 {
		if r.activateHTTP != nil {
			r.activateHTTP(w.httpContextID, pending)
		}
	} else if r.responder.BuildEnvironment(w.asyncID) {
		w.out.Result = ResultSuccess
		if pending {
			w.out.FlagsOut = FlagNotificationPending
		} else {
			w.out.FlagsOut = 0
		}
		r.responder.Reply(w.asyncID, w.out)
	}
	if pending {
		firedWaiters.WithLabelValues("wakeup").Inc()
	} else {
		firedWaiters.WithLabelValues("timeout").Inc()
	}
	r.putWait(w)
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case w := <-r.wake:
			r.activate(w, true)
		}
	}
}

func (r *Registry) sweeper() {
	defer r.wg.Done()
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		r.sweep(r.timeNow())
	}
}

// sweep detaches every waiter parked longer than the waiting interval
// minus the scheduler slack and fires the batch outside the lock.
func (r *Registry) sweep(now time.Time) {
	var batch []*wait

	r.mu.Lock()
	for key, w := range r.tags {
		if now.Sub(w.registeredAt) <= WaitingInterval-sweepSlack {
			continue
		}
		delete(r.tags, key)
		if w.asyncID != 0 {
			delete(r.asyncs, w.asyncID)
		}
		batch = append(batch, w)
	}
	parkedWaiters.Set(float64(len(r.tags)))
	r.mu.Unlock()

	for _, w := range batch {
		r.activate(w, false)
	}
}

// Parked reports the number of currently parked waiters.
func (r *Registry) Parked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tags)
}

// Name implements module.Module.
func (r *Registry) Name() string { return "asyncemsmdb" }

// InstanceName implements module.Module.
func (r *Registry) InstanceName() string { return "asyncemsmdb" }

// Init implements module.Module.
func (r *Registry) Init(cfg *config.Map) error {
	cfg.Bool("debug", false, &r.Log.Debug)
	cfg.Int("threads_num", false, r.threads, &r.threads)
	_, err := cfg.Process()
	if err != nil {
		return err
	}
	if r.threads < 1 {
		return fmt.Errorf("asyncwait: threads_num must be at least 1")
	}
	return nil
}
