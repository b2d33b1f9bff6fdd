/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package pwq holds the prepare-write queue: partial writes buffered per
// client, service and attribute until the client executes or cancels them.
package pwq

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

type WriteEntry struct {
	Key     BleConnKey
	SvcId   uint32
	AttrOff uint16
	ValOff  int
	MaxLen  int
	Len     int
	Buf     []byte

	touched time.Time
}

// NewWriteEntry allocates an entry with a MaxLen byte buffer.
func NewWriteEntry(key BleConnKey, svcId uint32, attrOff uint16, valOff int,
	maxLen int) *WriteEntry {

	return &WriteEntry{
		Key:     key,
		SvcId:   svcId,
		AttrOff: attrOff,
		ValOff:  valOff,
		MaxLen:  maxLen,
		Buf:     make([]byte, maxLen),
		touched: time.Now(),
	}
}

// Append copies data after the buffered bytes.  The caller validates the
// lengths first; an append that does not fit is refused.
func (e *WriteEntry) Append(data []byte) error {
	if e.Len+len(data) > e.MaxLen || e.ValOff+e.Len+len(data) > e.MaxLen {
		return fmt.Errorf("append of %d bytes overflows entry (len=%d max=%d)",
			len(data), e.Len, e.MaxLen)
	}

	copy(e.Buf[e.Len:], data)
	e.Len += len(data)
	e.touched = time.Now()

	return nil
}

func (e *WriteEntry) Bytes() []byte {
	return e.Buf[:e.Len]
}

func (e *WriteEntry) String() string {
	return fmt.Sprintf("conn=%s svc=%d attr=%d off=%d len=%d max_len=%d",
		e.Key.String(), e.SvcId, e.AttrOff, e.ValOff, e.Len, e.MaxLen)
}

// EntryInfo is a point-in-time copy of an entry's metadata.
type EntryInfo struct {
	Key     BleConnKey
	SvcId   uint32
	AttrOff uint16
	ValOff  int
	Len     int
	MaxLen  int
	Idle    time.Duration
}

type Queue struct {
	mtx        sync.Mutex
	entries    []*WriteEntry
	maxEntries int
	closed     bool
}

// NewQueue creates an empty queue.  maxEntries limits the number of live
// entries across all clients; 0 means no limit.
func NewQueue(maxEntries int) *Queue {
	return &Queue{
		maxEntries: maxEntries,
	}
}

// Lock acquires the queue.  It fails once the queue has been closed.
func (q *Queue) Lock() error {
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		return gsutil.NewClosedError("prepare write queue closed")
	}

	return nil
}

func (q *Queue) Unlock() {
	q.mtx.Unlock()
}

// Insert appends an entry.  Caller must hold the lock.
func (q *Queue) Insert(e *WriteEntry) bool {
	if e == nil || e.SvcId == 0 || e.AttrOff == 0 {
		return false
	}

	if q.maxEntries > 0 && len(q.entries) >= q.maxEntries {
		log.Debugf("Prepare write queue full (%d entries); rejecting %s",
			len(q.entries), e.String())
		return false
	}

	q.entries = append(q.entries, e)
	return true
}

func (q *Queue) removeAt(i int) *WriteEntry {
	e := q.entries[i]

	copy(q.entries[i:], q.entries[i+1:])
	q.entries[len(q.entries)-1] = nil
	q.entries = q.entries[:len(q.entries)-1]

	return e
}

// FindAndRemoveByKey unlinks and returns the first entry for the client and
// service.  Caller must hold the lock.
func (q *Queue) FindAndRemoveByKey(key BleConnKey, svcId uint32) *WriteEntry {
	if key.IsZero() || svcId == 0 {
		return nil
	}

	for i, e := range q.entries {
		if e.Key == key && e.SvcId == svcId {
			return q.removeAt(i)
		}
	}

	return nil
}

// FindAndRemoveByPointer unlinks the given entry.  Caller must hold the
// lock.
func (q *Queue) FindAndRemoveByPointer(entry *WriteEntry) bool {
	for i, e := range q.entries {
		if e == entry {
			q.removeAt(i)
			return true
		}
	}

	return false
}

// CombineSearch returns the entry that the chunk at valOff directly extends,
// or nil.  Caller must hold the lock.
func (q *Queue) CombineSearch(key BleConnKey, svcId uint32, attrOff uint16,
	valOff int) *WriteEntry {

	for _, e := range q.entries {
		if e.Key == key && e.SvcId == svcId && e.AttrOff == attrOff &&
			e.ValOff+e.Len == valOff {

			return e
		}
	}

	return nil
}

// PurgeAll drops every entry and returns the number dropped.
func (q *Queue) PurgeAll() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.purgeAll()
}

func (q *Queue) purgeAll() int {
	n := len(q.entries)
	q.entries = nil

	return n
}

func (q *Queue) purgeIf(pred func(e *WriteEntry) bool) int {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if !pred(e) {
			kept = append(kept, e)
		}
	}

	n := len(q.entries) - len(kept)
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept

	return n
}

// PurgeConnection drops every entry belonging to the client, across all
// services.
func (q *Queue) PurgeConnection(key BleConnKey) int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.purgeIf(func(e *WriteEntry) bool {
		return e.Key == key
	})
}

// PurgeIdle drops entries not extended since cutoff.
func (q *Queue) PurgeIdle(cutoff time.Time) int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.purgeIf(func(e *WriteEntry) bool {
		return e.touched.Before(cutoff)
	})
}

// Close drops every entry and makes later Lock calls fail.
func (q *Queue) Close() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	q.closed = true
	return q.purgeAll()
}

func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return len(q.entries)
}

func (q *Queue) Snapshot() []EntryInfo {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	now := time.Now()
	infos := make([]EntryInfo, len(q.entries))
	for i, e := range q.entries {
		infos[i] = EntryInfo{
			Key:     e.Key,
			SvcId:   e.SvcId,
			AttrOff: e.AttrOff,
			ValOff:  e.ValOff,
			Len:     e.Len,
			MaxLen:  e.MaxLen,
			Idle:    now.Sub(e.touched),
		}
	}

	return infos
}
