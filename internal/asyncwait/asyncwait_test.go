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

package asyncwait

import (
	"sync"
	"testing"
	"time"
)

type fakeSession struct {
	username string
	cxr      uint16
	pending  bool
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[Handle]fakeSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[Handle]fakeSession)}
}

func (fs *fakeSessions) add(h Handle, username string, cxr uint16) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sessions[h] = fakeSession{username: username, cxr: cxr}
}

func (fs *fakeSessions) setPending(h Handle, pending bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s := fs.sessions[h]
	s.pending = pending
	fs.sessions[h] = s
}

func (fs *fakeSessions) ResolveHandle(h Handle, touch bool) (string, uint16, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, ok := fs.sessions[h]
	return s.username, s.cxr, ok
}

func (fs *fakeSessions) HasPending(h Handle) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.sessions[h].pending
}

type reply struct {
	asyncID  uint32
	flagsOut uint32
	result   Result
}

type fakeResponder struct {
	mu      sync.Mutex
	replies []reply
	broken  map[uint32]bool
	ch      chan reply
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{ch: make(chan reply, 64)}
}

func (fr *fakeResponder) BuildEnvironment(asyncID uint32) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return !fr.broken[asyncID]
}

func (fr *fakeResponder) Reply(asyncID uint32, out *WaitOut) {
	rep := reply{asyncID: asyncID, flagsOut: out.FlagsOut, result: out.Result}
	fr.mu.Lock()
	fr.replies = append(fr.replies, rep)
	fr.mu.Unlock()
	fr.ch <- rep
}

func (fr *fakeResponder) wait(t *testing.T) reply {
	t.Helper()
	select {
	case rep := <-fr.ch:
		return rep
	case <-time.After(5 * time.Second):
		t.Fatal("no async reply within 5 seconds")
		return reply{}
	}
}

func testRegistry(t *testing.T, threads, contextNum int) (*Registry, *fakeSessions, *fakeResponder) {
	t.Helper()
	sessions := newFakeSessions()
	responder := newFakeResponder()
	r := New(sessions, responder, threads, contextNum)
	return r, sessions, responder
}

func register(r *Registry, asyncID uint32, user string, h Handle) (Dispatch, *WaitOut) {
	out := &WaitOut{}
	disp := r.AsyncWait(asyncID, user, &WaitIn{Handle: h}, out)
	return disp, out
}

func TestAsyncWait_Park(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	disp, _ := register(r, 10, "user1", 1)
	if disp != DispatchPending {
		t.Fatalf("wanted DispatchPending, got %v", disp)
	}
	if r.Parked() != 1 {
		t.Fatalf("wanted 1 parked waiter, got %d", r.Parked())
	}
}

func TestAsyncWait_AuthMismatch(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	disp, out := register(r, 10, "someoneelse", 1)
	if disp != DispatchSuccess {
		t.Fatalf("wanted DispatchSuccess, got %v", disp)
	}
	if out.Result != ResultRejected || out.FlagsOut != 0 {
		t.Fatalf("wanted rejection, got %+v", out)
	}
	if r.Parked() != 0 {
		t.Fatalf("rejected registration left a parked waiter")
	}
}

func TestAsyncWait_UnknownHandle(t *testing.T) {
	r, _, _ := testRegistry(t, 1, 4)

	disp, out := register(r, 10, "user1", 99)
	if disp != DispatchSuccess || out.Result != ResultRejected {
		t.Fatalf("wanted rejection for unknown handle, got %v %+v", disp, out)
	}
}

func TestAsyncWait_PendingShortCircuit(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)
	sessions.setPending(1, true)

	disp, out := register(r, 10, "user1", 1)
	if disp != DispatchSuccess {
		t.Fatalf("wanted DispatchSuccess, got %v", disp)
	}
	if out.Result != ResultSuccess || out.FlagsOut != FlagNotificationPending {
		t.Fatalf("wanted immediate pending success, got %+v", out)
	}
	if r.Parked() != 0 {
		t.Fatalf("immediate return must not park")
	}
}

// Two concurrent registrations for the same (username, cxr): exactly one
// parks, the other is rejected.
func TestAsyncWait_DuplicateTag(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "u", 5)
	sessions.add(2, "U", 5) // same tag, case-insensitive

	type res struct {
		disp Dispatch
		out  *WaitOut
	}
	results := make(chan res, 2)
	var wg sync.WaitGroup
	for i, h := range []Handle{1, 2} {
		wg.Add(1)
		go func(asyncID uint32, h Handle) {
			defer wg.Done()
			disp, out := register(r, asyncID, "u", h)
			results <- res{disp, out}
		}(uint32(i+1), h)
	}
	wg.Wait()
	close(results)

	var pending, rejected int
	for rr := range results {
		switch {
		case rr.disp == DispatchPending:
			pending++
		case rr.disp == DispatchSuccess && rr.out.Result == ResultRejected && rr.out.FlagsOut == 0:
			rejected++
		default:
			t.Fatalf("unexpected result: %v %+v", rr.disp, rr.out)
		}
	}
	if pending != 1 || rejected != 1 {
		t.Fatalf("wanted exactly one pending and one rejected, got %d/%d", pending, rejected)
	}
	if r.Parked() != 1 {
		t.Fatalf("wanted 1 parked waiter, got %d", r.Parked())
	}
}

func TestAsyncWait_PopulationBound(t *testing.T) {
	// contextNum 1 means at most 2 parked waiters.
	r, sessions, _ := testRegistry(t, 1, 1)
	for i := Handle(1); i <= 3; i++ {
		sessions.add(i, "user", uint16(i))
	}

	if disp, _ := register(r, 1, "user", 1); disp != DispatchPending {
		t.Fatal("first registration should park")
	}
	if disp, _ := register(r, 2, "user", 2); disp != DispatchPending {
		t.Fatal("second registration should park")
	}
	disp, out := register(r, 3, "user", 3)
	if disp != DispatchSuccess || out.Result != ResultRejected {
		t.Fatalf("third registration should be rejected, got %v %+v", disp, out)
	}
	if r.Parked() != 2 {
		t.Fatalf("wanted 2 parked waiters, got %d", r.Parked())
	}
}

// register before wakeup fires with the pending flag (scenario: wake one
// second after park).
func TestAsyncWait_Wakeup(t *testing.T) {
	r, sessions, responder := testRegistry(t, 2, 4)
	sessions.add(1, "User1", 5)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if disp, _ := register(r, 10, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park")
	}

	r.Wakeup("USER1", 5)

	rep := responder.wait(t)
	if rep.asyncID != 10 {
		t.Fatalf("wanted reply for async ID 10, got %d", rep.asyncID)
	}
	if rep.result != ResultSuccess || rep.flagsOut != FlagNotificationPending {
		t.Fatalf("wanted pending success, got %+v", rep)
	}
	if r.Parked() != 0 {
		t.Fatalf("woken waiter still parked")
	}
}

// wakeup with no matching waiter is a no-op, and a registration that
// happens after the wakeup does not see it.
func TestAsyncWait_WakeupOrdering(t *testing.T) {
	r, sessions, responder := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	r.Wakeup("user1", 5)

	if disp, _ := register(r, 10, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park")
	}
	select {
	case rep := <-responder.ch:
		t.Fatalf("waiter fired by an earlier wakeup: %+v", rep)
	case <-time.After(100 * time.Millisecond):
	}
	if r.Parked() != 1 {
		t.Fatalf("waiter should still be parked")
	}
}

func TestAsyncWait_Reclaim(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	if disp, _ := register(r, 10, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park")
	}
	r.Reclaim(10)
	if r.Parked() != 0 {
		t.Fatalf("reclaimed waiter still parked")
	}

	// The tag is free again.
	if disp, _ := register(r, 11, "user1", 1); disp != DispatchPending {
		t.Fatal("re-registration after reclaim should park")
	}
}

func TestAsyncWait_Remove(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	if disp, _ := register(r, 0, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park")
	}
	r.Remove(1)
	if r.Parked() != 0 {
		t.Fatalf("removed waiter still parked")
	}
}

// Waiters parked longer than the waiting interval minus slack fire
// without the pending flag.
func TestAsyncWait_SweepTimeout(t *testing.T) {
	r, sessions, responder := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	registered := time.Now()
	r.now = func() time.Time { return registered }
	if disp, _ := register(r, 10, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park")
	}

	// One second before the deadline nothing happens.
	r.sweep(registered.Add(WaitingInterval - sweepSlack - time.Second))
	if r.Parked() != 1 {
		t.Fatal("sweeper fired a waiter before its deadline")
	}

	r.sweep(registered.Add(WaitingInterval - sweepSlack + time.Second))
	if r.Parked() != 0 {
		t.Fatal("sweeper did not fire an expired waiter")
	}

	rep := responder.wait(t)
	if rep.result != ResultSuccess || rep.flagsOut != 0 {
		t.Fatalf("timeout fire must clear the pending flag, got %+v", rep)
	}
}

// HTTP long-poll waiters (async ID 0) fire through the registered
// callback with the context ID smuggled in flags_out.
func TestAsyncWait_HTTPActivation(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 4)
	sessions.add(1, "user1", 5)

	type activation struct {
		contextID int
		pending   bool
	}
	fired := make(chan activation, 1)
	r.RegisterActivateHTTP(func(contextID int, pending bool) {
		fired <- activation{contextID, pending}
	})

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	out := &WaitOut{FlagsOut: 42} // context ID 42
	if disp := r.AsyncWait(0, "user1", &WaitIn{Handle: 1}, out); disp != DispatchPending {
		t.Fatal("registration should park")
	}
	r.Wakeup("user1", 5)

	select {
	case act := <-fired:
		if act.contextID != 42 || !act.pending {
			t.Fatalf("wanted pending activation of context 42, got %+v", act)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no HTTP activation within 5 seconds")
	}
}

func TestAsyncWait_PoolExhaustion(t *testing.T) {
	r, sessions, _ := testRegistry(t, 1, 1)
	sessions.add(1, "user1", 1)
	sessions.add(2, "user2", 2)
	sessions.add(3, "user3", 3)

	// Drain the pool (capacity 2) without registering.
	w1 := r.getWait()
	w2 := r.getWait()
	if w1 == nil || w2 == nil {
		t.Fatal("pool should hold 2 waiters")
	}

	disp, out := register(r, 10, "user1", 1)
	if disp != DispatchSuccess || out.Result != ResultRejected {
		t.Fatalf("exhausted pool should reject, got %v %+v", disp, out)
	}

	r.putWait(w1)
	r.putWait(w2)
	if disp, _ := register(r, 11, "user1", 1); disp != DispatchPending {
		t.Fatal("registration should park after the pool refills")
	}
}
