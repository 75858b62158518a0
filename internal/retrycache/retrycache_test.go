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

package retrycache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oxmail/oxmail/internal/mta"
)

type recordedAttempt struct {
	rcpt     string
	from     string
	needB    bool
	subject  string
	timedOut bool
}

type fakeHandler struct {
	mu sync.Mutex
	// retries counts down: while positive, Redeliver reports a transient
	// failure.
	retries  int
	attempts []recordedAttempt
}

func (h *fakeHandler) Redeliver(ctx *mta.MessageContext, rcpt string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, recordedAttempt{
		rcpt:    rcpt,
		from:    ctx.Ctrl.From,
		needB:   ctx.Ctrl.NeedBounce,
		subject: ctx.Mail.Header.Get("Subject"),
	})
	if h.retries > 0 {
		h.retries--
		return true
	}
	return false
}

func (h *fakeHandler) Timeout(ctx *mta.MessageContext, rcpt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, recordedAttempt{rcpt: rcpt, timedOut: true})
}

func (h *fakeHandler) log() []recordedAttempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedAttempt(nil), h.attempts...)
}

const cachedMail = "From: <sender@remote.example>\r\n" +
	"Subject: deferred\r\n" +
	"\r\n" +
	"body\r\n"

func newContext(t *testing.T, rcpt string) *mta.MessageContext {
	t.Helper()
	m, err := mta.ReadMail(strings.NewReader(cachedMail))
	if err != nil {
		t.Fatal(err)
	}
	return &mta.MessageContext{
		Ctrl: mta.Control{
			BoundType:  mta.BoundIn,
			From:       "sender@remote.example",
			RcptTo:     mta.NewLineStream(rcpt),
			NeedBounce: true,
			QueueID:    "q7",
		},
		Mail: m,
	}
}

func testCache(t *testing.T, retryingTimes int) (*Cache, *fakeHandler) {
	t.Helper()
	h := &fakeHandler{}
	c, err := Open(t.TempDir(), time.Hour, time.Minute, retryingTimes, 4)
	if err != nil {
		t.Fatal(err)
	}
	c.Handler = h
	return c, h
}

// scan runs one scanner pass and waits for all attempts to finish.
func scan(c *Cache, now time.Time) {
	c.scanOnce(now)
	c.attempts.Wait()
}

func TestPutAssignsMonotonicIDs(t *testing.T) {
	c, _ := testCache(t, 3)
	now := time.Now()

	id1, err := c.Put(newContext(t, "r1@x"), "r1@x", now)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := c.Put(newContext(t, "r2@x"), "r2@x", now)
	if err != nil {
		t.Fatal(err)
	}
	if id1 < 0 || id2 <= id1 {
		t.Fatalf("cache IDs not monotonic: %d, %d", id1, id2)
	}
	if c.Len() != 2 {
		t.Fatalf("wanted 2 entries, got %d", c.Len())
	}
}

func TestScanSkipsFreshEntries(t *testing.T) {
	c, h := testCache(t, 3)
	now := time.Now()

	if _, err := c.Put(newContext(t, "r@x"), "r@x", now); err != nil {
		t.Fatal(err)
	}
	scan(c, now.Add(30*time.Second))
	if len(h.log()) != 0 {
		t.Fatal("entry attempted before its retry interval elapsed")
	}
}

func TestTransientFailureIncrementsAttempts(t *testing.T) {
	c, h := testCache(t, 3)
	h.retries = 1
	now := time.Now()

	if _, err := c.Put(newContext(t, "r@x"), "r@x", now); err != nil {
		t.Fatal(err)
	}

	scan(c, now.Add(2*time.Minute))
	if got := h.log(); len(got) != 1 || got[0].rcpt != "r@x" || got[0].timedOut {
		t.Fatalf("wanted one redelivery attempt, got %+v", got)
	}
	if c.Len() != 1 {
		t.Fatal("transiently failed entry must stay queued")
	}

	entries, err := c.readAll()
	if err != nil || len(entries) != 1 {
		t.Fatal(err)
	}
	if entries[0].Attempts != 1 {
		t.Fatalf("wanted attempts 1, got %d", entries[0].Attempts)
	}
	if entries[0].From != "sender@remote.example" || !entries[0].NeedBounce {
		t.Fatalf("metadata not preserved: %+v", entries[0])
	}
}

func TestTerminalOutcomeRemovesEntry(t *testing.T) {
	c, h := testCache(t, 3)
	now := time.Now()

	if _, err := c.Put(newContext(t, "r@x"), "r@x", now); err != nil {
		t.Fatal(err)
	}
	scan(c, now.Add(2*time.Minute))

	if got := h.log(); len(got) != 1 || got[0].subject != "deferred" {
		t.Fatalf("handler did not see the cached message: %+v", got)
	}
	if c.Len() != 0 {
		t.Fatal("resolved entry must be removed")
	}
}

func TestAttemptExhaustionFiresTimeout(t *testing.T) {
	c, h := testCache(t, 2)
	h.retries = 99
	now := time.Now()

	if _, err := c.Put(newContext(t, "r@x"), "r@x", now); err != nil {
		t.Fatal(err)
	}

	scan(c, now.Add(2*time.Minute))
	scan(c, now.Add(4*time.Minute))
	if c.Len() != 1 {
		t.Fatal("entry should still be queued after 2 attempts")
	}

	scan(c, now.Add(6*time.Minute))
	if c.Len() != 0 {
		t.Fatal("exhausted entry must be removed")
	}
	got := h.log()
	if len(got) != 3 || !got[2].timedOut {
		t.Fatalf("wanted 2 attempts and a timeout, got %+v", got)
	}
}

// The high-water mark for cache IDs survives a reopen.
func TestReopenRecoversIDs(t *testing.T) {
	h := &fakeHandler{}
	dir := t.TempDir()
	c, err := Open(dir, time.Hour, time.Minute, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	c.Handler = h

	now := time.Now()
	id1, err := c.Put(newContext(t, "r@x"), "r@x", now)
	if err != nil {
		t.Fatal(err)
	}

	c2, err := Open(dir, time.Hour, time.Minute, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	c2.Handler = h
	if c2.Len() != 1 {
		t.Fatal("entry lost across reopen")
	}
	id2, err := c2.Put(newContext(t, "r2@x"), "r2@x", now)
	if err != nil {
		t.Fatal(err)
	}
	if id2 <= id1 {
		t.Fatalf("cache IDs must keep increasing across restarts: %d then %d", id1, id2)
	}
}

func TestRuntimeSettings(t *testing.T) {
	c, _ := testCache(t, 3)

	c.SetScanInterval(42 * time.Second)
	if c.ScanInterval() != 42*time.Second {
		t.Fatal("scan interval not applied")
	}
	c.SetRetryingTimes(7)
	if c.RetryingTimes() != 7 {
		t.Fatal("retrying times not applied")
	}
}
