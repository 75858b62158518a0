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
Package retrycache keeps messages that failed delivery with a transient
error on disk and retries them until they either deliver, fail
permanently, or exhaust the configured number of attempts.

Each entry is a (message, recipient) pair stored as two files named by the
cache ID: <id>.eml with the full message and <id>.meta with a single
tab-separated metadata record (see framework/listfile for the escaping
rules). The meta file is rewritten after every attempt, so a crash between
attempts at worst repeats one delivery.

A scanner wakes up every scan interval and walks all entries. Due entries
are redelivered through the Handler; entries whose attempt budget is spent
are handed to the Handler's Timeout hook and removed. Side effects of
terminal outcomes (bounces, statistics) are entirely the Handler's
business, the cache only tracks attempts.
*/
package retrycache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/oxmail/oxmail/framework/exterrors"
	"github.com/oxmail/oxmail/framework/listfile"
	"github.com/oxmail/oxmail/framework/log"
	"github.com/oxmail/oxmail/internal/mta"
)

// Handler performs redelivery attempts for cached entries.
type Handler interface {
	// Redeliver re-attempts local delivery of the cached message to its
	// single recipient. It returns true when the entry should stay queued
	// (the attempt failed transiently); on false the handler has already
	// produced whatever bounces and statistics the terminal outcome calls
	// for.
	Redeliver(ctx *mta.MessageContext, rcpt string) (retry bool)

	// Timeout is invoked when an entry runs out of attempts. The handler
	// produces the timeout bounce if the entry still wants one.
	Timeout(ctx *mta.MessageContext, rcpt string)
}

// Entry is the metadata record of one cached message.
type Entry struct {
	ID           int64
	BoundType    mta.BoundType
	QueueID      string
	From         string
	Rcpt         string
	NeedBounce   bool
	FirstAttempt time.Time
	LastAttempt  time.Time
	Attempts     int
}

// Cache is the on-disk retry queue.
type Cache struct {
	Log     log.Logger
	Handler Handler

	dir string

	scanInterval  atomic.Int64 // nanoseconds
	retryInterval atomic.Int64 // nanoseconds
	retryingTimes atomic.Int32

	nextID atomic.Int64

	// Serializes meta rewrites and removals per scan; redeliveries
	// themselves run outside it.
	mu sync.Mutex

	sem      *semaphore.Weighted
	stop     chan struct{}
	done     chan struct{}
	attempts sync.WaitGroup
}

// Open prepares the cache at dir, creating it if needed, and recovers the
// cache-ID high-water mark from the entries already on disk.
func Open(dir string, scanInterval, retryInterval time.Duration, retryingTimes, maxParallelism int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("retrycache: %w", err)
	}

	c := &Cache{
		Log:  log.Logger{Name: "cache"},
		dir:  dir,
		sem:  semaphore.NewWeighted(int64(maxParallelism)),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	c.scanInterval.Store(int64(scanInterval))
	c.retryInterval.Store(int64(retryInterval))
	c.retryingTimes.Store(int32(retryingTimes))

	entries, err := c.readAll()
	if err != nil {
		return nil, err
	}
	var maxID int64
	for _, e := range entries {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	c.nextID.Store(maxID)

	return c, nil
}

// Start launches the scanner. Stop shuts it down.
func (c *Cache) Start() {
	go c.scanLoop()
}

func (c *Cache) Stop() {
	close(c.stop)
	<-c.done
	c.attempts.Wait()
}

// Put serializes the message and its recipient into the cache and returns
// the assigned cache ID.
func (c *Cache) Put(ctx *mta.MessageContext, rcpt string, now time.Time) (int64, error) {
	id := c.nextID.Add(1)

	// Disk trouble while queueing is itself transient; the caller already
	// classified the delivery as retriable.
	putErr := func(err error) error {
		return exterrors.WithTemporary(
			exterrors.WithFields(fmt.Errorf("retrycache: %w", err),
				map[string]interface{}{"cache_id": id}), true)
	}

	emlPath := c.emlPath(id)
	f, err := os.OpenFile(emlPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return -1, putErr(err)
	}
	if err := ctx.Mail.WriteTo(f); err != nil {
		f.Close()
		os.Remove(emlPath)
		return -1, putErr(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(emlPath)
		return -1, putErr(err)
	}

	e := Entry{
		ID:           id,
		BoundType:    ctx.Ctrl.BoundType,
		QueueID:      ctx.Ctrl.QueueID,
		From:         ctx.Ctrl.From,
		Rcpt:         rcpt,
		NeedBounce:   ctx.Ctrl.NeedBounce,
		FirstAttempt: now,
		LastAttempt:  now,
		Attempts:     0,
	}
	if err := c.writeMeta(e); err != nil {
		os.Remove(emlPath)
		return -1, err
	}
	return id, nil
}

// Len reports the number of entries currently on disk.
func (c *Cache) Len() int {
	entries, err := c.readAll()
	if err != nil {
		return 0
	}
	return len(entries)
}

func (c *Cache) ScanInterval() time.Duration {
	return time.Duration(c.scanInterval.Load())
}

func (c *Cache) SetScanInterval(d time.Duration) {
	c.scanInterval.Store(int64(d))
}

func (c *Cache) RetryingTimes() int {
	return int(c.retryingTimes.Load())
}

func (c *Cache) SetRetryingTimes(n int) {
	c.retryingTimes.Store(int32(n))
}

func (c *Cache) emlPath(id int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(id, 10)+".eml")
}

func (c *Cache) metaPath(id int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(id, 10)+".meta")
}

func (c *Cache) writeMeta(e Entry) error {
	rec := []string{
		strconv.FormatInt(e.ID, 10),
		strconv.Itoa(int(e.BoundType)),
		e.QueueID,
		e.From,
		e.Rcpt,
		strconv.FormatInt(e.FirstAttempt.Unix(), 10),
		strconv.FormatInt(e.LastAttempt.Unix(), 10),
		strconv.Itoa(e.Attempts),
		strconv.FormatBool(e.NeedBounce),
	}
	if err := listfile.WriteRecords(c.metaPath(e.ID), [][]string{rec}); err != nil {
		return fmt.Errorf("retrycache: %w", err)
	}
	return nil
}

func parseMeta(rec []string) (Entry, error) {
	if len(rec) != 9 {
		return Entry{}, fmt.Errorf("retrycache: malformed meta record: %d fields", len(rec))
	}
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("retrycache: bad cache ID: %v", err)
	}
	bound, err := strconv.Atoi(rec[1])
	if err != nil {
		return Entry{}, fmt.Errorf("retrycache: bad bound type: %v", err)
	}
	first, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("retrycache: bad first attempt: %v", err)
	}
	last, err := strconv.ParseInt(rec[6], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("retrycache: bad last attempt: %v", err)
	}
	attempts, err := strconv.Atoi(rec[7])
	if err != nil {
		return Entry{}, fmt.Errorf("retrycache: bad attempts: %v", err)
	}
	return Entry{
		ID:           id,
		BoundType:    mta.BoundType(bound),
		QueueID:      rec[2],
		From:         rec[3],
		Rcpt:         rec[4],
		FirstAttempt: time.Unix(first, 0),
		LastAttempt:  time.Unix(last, 0),
		Attempts:     attempts,
		NeedBounce:   rec[8] == "true",
	}, nil
}

func (c *Cache) readAll() ([]Entry, error) {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("retrycache: %w", err)
	}
	var entries []Entry
	for _, de := range des {
		if !strings.HasSuffix(de.Name(), ".meta") {
			continue
		}
		recs, err := listfile.ReadRecords(filepath.Join(c.dir, de.Name()))
		if err != nil || len(recs) == 0 {
			c.Log.Printf("skipping unreadable meta file %s: %v", de.Name(), err)
			continue
		}
		e, err := parseMeta(recs[0])
		if err != nil {
			c.Log.Printf("skipping %s: %v", de.Name(), err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Cache) remove(id int64) {
	os.Remove(c.emlPath(id))
	os.Remove(c.metaPath(id))
}

func (c *Cache) scanLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case <-time.After(c.ScanInterval()):
		}
		c.scanOnce(time.Now())
	}
}

// scanOnce walks all entries and processes the due ones. Tests call it
// through the scan helper in retrycache_test.go.
func (c *Cache) scanOnce(now time.Time) {
	entries, err := c.readAll()
	if err != nil {
		c.Log.Error("scan", err)
		return
	}

	maxTries := c.RetryingTimes()
	retryAfter := time.Duration(c.retryInterval.Load())
	for _, e := range entries {
		e := e
		if e.Attempts < maxTries && now.Sub(e.LastAttempt) < retryAfter {
			continue
		}

		if err := c.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		c.attempts.Add(1)
		go func() {
			defer c.sem.Release(1)
			defer c.attempts.Done()
			c.attempt(e, now)
		}()
	}
}

func (c *Cache) attempt(e Entry, now time.Time) {
	ctx, err := c.load(e)
	if err != nil {
		c.Log.Error("cannot load cached message", err, "cache_id", e.ID)
		c.mu.Lock()
		c.remove(e.ID)
		c.mu.Unlock()
		return
	}

	if e.Attempts >= c.RetryingTimes() {
		c.Handler.Timeout(ctx, e.Rcpt)
		c.mu.Lock()
		c.remove(e.ID)
		c.mu.Unlock()
		c.Log.Msg("retry attempts exhausted", "cache_id", e.ID, "rcpt", e.Rcpt, "attempts", e.Attempts)
		return
	}

	if c.Handler.Redeliver(ctx, e.Rcpt) {
		e.Attempts++
		e.LastAttempt = now
		c.mu.Lock()
		if err := c.writeMeta(e); err != nil {
			c.Log.Error("cannot update meta", err, "cache_id", e.ID)
		}
		c.mu.Unlock()
		c.Log.Msg("redelivery failed temporarily", "cache_id", e.ID, "rcpt", e.Rcpt, "attempts", e.Attempts)
		return
	}

	c.mu.Lock()
	c.remove(e.ID)
	c.mu.Unlock()
	c.Log.Msg("cache entry resolved", "cache_id", e.ID, "rcpt", e.Rcpt)
}

// load reconstructs a message context from the entry files. The context is
// owned by the cache, not borrowed from the queue runtime.
func (c *Cache) load(e Entry) (*mta.MessageContext, error) {
	f, err := os.Open(c.emlPath(e.ID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mta.ReadMail(f)
	if err != nil {
		return nil, err
	}
	return &mta.MessageContext{
		Ctrl: mta.Control{
			BoundType:  e.BoundType,
			From:       e.From,
			RcptTo:     mta.NewLineStream(e.Rcpt),
			NeedBounce: e.NeedBounce,
			QueueID:    e.QueueID,
		},
		Mail: m,
	}, nil
}
