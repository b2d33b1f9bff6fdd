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

// Package gatm is the GATT server side of the manager: it answers the
// attribute requests the stack forwards, buffering prepared writes until
// they are executed.
package gatm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/gattsrv/attdir"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/pwq"
)

// Responder delivers request results back to the client.  Request ids are
// assigned by whoever feeds events to the server.
type Responder interface {
	WriteResponse(reqId uint32) error
	ReadResponse(reqId uint32, data []byte) error
	ErrorResponse(reqId uint32, status BleAttStatus) error
}

type ServerCfg struct {
	// Maximum number of pending prepared writes; 0 means unlimited.
	MaxEntries int

	// Pending entries not extended for this long are dropped.  0 disables
	// the sweep; entries are then reclaimed only on disconnect.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func NewServerCfg() ServerCfg {
	return ServerCfg{
		SweepInterval: time.Second,
	}
}

type Server struct {
	cfg ServerCfg
	dir *attdir.Dir
	q   *pwq.Queue
	rsp Responder

	mtx      sync.Mutex
	conns    map[BleConnKey]time.Time
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewServer(cfg ServerCfg, dir *attdir.Dir, rsp Responder) *Server {
	return &Server{
		cfg:   cfg,
		dir:   dir,
		q:     pwq.NewQueue(cfg.MaxEntries),
		rsp:   rsp,
		conns: map[BleConnKey]time.Time{},
	}
}

func (s *Server) Dir() *attdir.Dir {
	return s.dir
}

func (s *Server) Queue() *pwq.Queue {
	return s.q
}

func (s *Server) Start() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.started {
		return fmt.Errorf("GATT server started twice")
	}
	s.started = true
	s.stopChan = make(chan struct{})

	if s.cfg.IdleTimeout > 0 {
		interval := s.cfg.SweepInterval
		if interval <= 0 {
			interval = time.Second
		}

		s.wg.Add(1)
		go s.sweep(interval, s.stopChan)
	}

	return nil
}

// Stop ends the idle sweep and tears down the prepare write queue.
func (s *Server) Stop() error {
	s.mtx.Lock()
	if !s.started {
		s.mtx.Unlock()
		return fmt.Errorf("GATT server stopped twice")
	}
	s.started = false
	close(s.stopChan)
	s.mtx.Unlock()

	s.wg.Wait()

	if n := s.q.Close(); n > 0 {
		log.Debugf("Dropped %d pending prepared writes at shutdown", n)
	}

	return nil
}

func (s *Server) sweep(interval time.Duration, stopChan chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return

		case now := <-ticker.C:
			n := s.q.PurgeIdle(now.Add(-s.cfg.IdleTimeout))
			if n > 0 {
				log.Infof("Dropped %d idle prepared writes", n)
			}
		}
	}
}

func (s *Server) sendStatus(reqId uint32, err error) {
	var txErr error

	if err == nil {
		txErr = s.rsp.WriteResponse(reqId)
	} else {
		status := gsutil.ToAttStatus(err)
		log.Debugf("Request %d failed: %s", reqId, err.Error())
		txErr = s.rsp.ErrorResponse(reqId, status)
	}

	if txErr != nil {
		log.Errorf("Failed to respond to request %d: %s", reqId, txErr.Error())
	}
}

// lookupAttr resolves an attribute for a request.  A miss is reported as an
// invalid handle; any other directory failure as an unlikely error.
func (s *Server) lookupAttr(svcId uint32, attrOff uint16) (*attdir.Attr, error) {
	a, err := s.dir.Lookup(svcId, attrOff)
	if err != nil {
		if gsutil.IsNotFound(err) {
			return nil, gsutil.NewAttError(BLE_ATT_ERR_INVALID_HANDLE,
				err.Error())
		}
		return nil, gsutil.NewAttError(BLE_ATT_ERR_UNLIKELY, err.Error())
	}

	return a, nil
}

func (s *Server) prepareWrite(key BleConnKey, svcId uint32, attrOff uint16,
	valOff int, data []byte) error {

	a, err := s.lookupAttr(svcId, attrOff)
	if err != nil {
		return err
	}
	if !a.Writable() {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_HANDLE,
			"svc=%d attr=%d is not a writable value", svcId, attrOff)
	}
	if key.IsZero() {
		return gsutil.FmtAttError(BLE_ATT_ERR_UNLIKELY,
			"prepare write without a connection")
	}

	maxLen := a.MaxLen

	if err := s.q.Lock(); err != nil {
		return gsutil.NewAttError(BLE_ATT_ERR_UNLIKELY, err.Error())
	}
	defer s.q.Unlock()

	created := false
	e := s.q.CombineSearch(key, svcId, attrOff, valOff)
	if e == nil {
		e = pwq.NewWriteEntry(key, svcId, attrOff, valOff, maxLen)
		if !s.q.Insert(e) {
			return gsutil.FmtAttError(BLE_ATT_ERR_INSUFFICIENT_RES,
				"cannot queue prepared write for svc=%d attr=%d", svcId, attrOff)
		}
		created = true
	}

	err = validatePrep(e, valOff, len(data))
	if err == nil {
		if appendErr := e.Append(data); appendErr != nil {
			err = gsutil.NewAttError(BLE_ATT_ERR_UNLIKELY, appendErr.Error())
		}
	}

	if err != nil {
		if created {
			s.q.FindAndRemoveByPointer(e)
		}
		return err
	}

	log.Debugf("Prepared write: %s", e.String())
	return nil
}

func validatePrep(e *pwq.WriteEntry, valOff int, dataLen int) error {
	if valOff < 0 || valOff >= e.MaxLen {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_OFFSET,
			"offset %d; max length %d", valOff, e.MaxLen)
	}

	if valOff+dataLen > e.MaxLen {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_ATTR_LEN,
			"offset %d + length %d exceeds max length %d",
			valOff, dataLen, e.MaxLen)
	}

	if e.Len+dataLen > e.MaxLen {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_ATTR_LEN,
			"buffered %d + length %d exceeds max length %d",
			e.Len, dataLen, e.MaxLen)
	}

	return nil
}

// HandlePrepareWrite buffers one chunk of a long or reliable write and
// answers the request.
func (s *Server) HandlePrepareWrite(key BleConnKey, svcId uint32,
	attrOff uint16, valOff int, reqId uint32, data []byte) {

	err := s.prepareWrite(key, svcId, attrOff, valOff, data)
	s.sendStatus(reqId, err)
}

// HandleExecuteWrite applies (commit=true) or discards every write the
// client prepared for the service.  The only failure is an unusable queue,
// reported as an "unlikely error" AttError.
func (s *Server) HandleExecuteWrite(key BleConnKey, svcId uint32,
	commit bool) error {

	if err := s.q.Lock(); err != nil {
		log.Errorf("Execute write for %s svc=%d: %s",
			key.String(), svcId, err.Error())
		return gsutil.FmtAttError(BLE_ATT_ERR_UNLIKELY,
			"execute write: %s", err.Error())
	}

	var entries []*pwq.WriteEntry
	for {
		e := s.q.FindAndRemoveByKey(key, svcId)
		if e == nil {
			break
		}
		entries = append(entries, e)
	}
	s.q.Unlock()

	if !commit {
		log.Debugf("Cancelled %d prepared writes for %s svc=%d",
			len(entries), key.String(), svcId)
		return nil
	}

	for _, e := range entries {
		s.commitEntry(e)
	}

	return nil
}

func (s *Server) commitEntry(e *pwq.WriteEntry) {
	a, err := s.dir.Lookup(e.SvcId, e.AttrOff)
	if err != nil {
		// The attribute went away after the write was prepared.
		log.Debugf("Dropping prepared write (%s): %s", e.String(), err.Error())
		return
	}

	if e.ValOff+e.Len > a.MaxLen {
		log.Debugf("Skipping prepared write past max length %d (%s)",
			a.MaxLen, e.String())
		return
	}

	s.dir.PromoteToOwnedStorage(a)
	if !a.WriteAt(e.ValOff, e.Bytes()) {
		log.Debugf("Skipping prepared write (%s)", e.String())
		return
	}

	log.Debugf("Committed prepared write: %s; attr len=%d", e.String(), a.Len())
}

func (s *Server) read(svcId uint32, attrOff uint16,
	valOff int) ([]byte, error) {

	a, err := s.lookupAttr(svcId, attrOff)
	if err != nil {
		return nil, err
	}
	if !a.IsValueKind() {
		return nil, gsutil.FmtAttError(BLE_ATT_ERR_INVALID_HANDLE,
			"svc=%d attr=%d has no value", svcId, attrOff)
	}
	if !a.Readable() {
		return nil, gsutil.FmtAttError(BLE_ATT_ERR_READ_NOT_PERMITTED,
			"svc=%d attr=%d", svcId, attrOff)
	}

	v := a.Value()
	if valOff < 0 || valOff > len(v) {
		return nil, gsutil.FmtAttError(BLE_ATT_ERR_INVALID_OFFSET,
			"offset %d; value length %d", valOff, len(v))
	}

	return v[valOff:], nil
}

// HandleRead answers a read or read blob request.
func (s *Server) HandleRead(key BleConnKey, svcId uint32, attrOff uint16,
	valOff int, reqId uint32) {

	data, err := s.read(svcId, attrOff, valOff)

	var txErr error
	if err != nil {
		log.Debugf("Read from %s failed: %s", key.String(), err.Error())
		txErr = s.rsp.ErrorResponse(reqId, gsutil.ToAttStatus(err))
	} else {
		txErr = s.rsp.ReadResponse(reqId, data)
	}

	if txErr != nil {
		log.Errorf("Failed to respond to request %d: %s", reqId, txErr.Error())
	}
}

func (s *Server) write(svcId uint32, attrOff uint16, data []byte,
	signed bool) error {

	a, err := s.lookupAttr(svcId, attrOff)
	if err != nil {
		return err
	}
	if !a.IsValueKind() {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_HANDLE,
			"svc=%d attr=%d has no value", svcId, attrOff)
	}

	permitted := a.Writable()
	if signed {
		permitted = a.SignedWritable()
	}
	if !permitted {
		return gsutil.FmtAttError(BLE_ATT_ERR_WRITE_NOT_PERMIT,
			"svc=%d attr=%d", svcId, attrOff)
	}

	if !a.SetValue(data) {
		return gsutil.FmtAttError(BLE_ATT_ERR_INVALID_ATTR_LEN,
			"length %d exceeds max length %d", len(data), a.MaxLen)
	}

	return nil
}

// HandleWrite replaces an attribute value.  A zero request id denotes a
// write command, which gets no response.
func (s *Server) HandleWrite(key BleConnKey, svcId uint32, attrOff uint16,
	reqId uint32, data []byte) {

	err := s.write(svcId, attrOff, data, false)
	if reqId == 0 {
		if err != nil {
			log.Debugf("Write command from %s dropped: %s",
				key.String(), err.Error())
		}
		return
	}

	s.sendStatus(reqId, err)
}

// HandleSignedWrite applies a signed write command.  The stack has already
// verified the signature.
func (s *Server) HandleSignedWrite(key BleConnKey, svcId uint32,
	attrOff uint16, data []byte) {

	if err := s.write(svcId, attrOff, data, true); err != nil {
		log.Debugf("Signed write from %s dropped: %s",
			key.String(), err.Error())
	}
}

func (s *Server) HandleConnect(key BleConnKey) {
	s.mtx.Lock()
	s.conns[key] = time.Now()
	n := len(s.conns)
	s.mtx.Unlock()

	log.Infof("Connected: %s (%d connections)", key.String(), n)
}

// HandleDisconnect forgets the connection and drops everything it had
// prepared.
func (s *Server) HandleDisconnect(key BleConnKey) {
	s.mtx.Lock()
	delete(s.conns, key)
	s.mtx.Unlock()

	n := s.PurgeConnection(key)
	log.Infof("Disconnected: %s; dropped %d prepared writes", key.String(), n)
}

// HandleRegistrationLost drops the whole queue.  It is called when the
// stack's event registration goes away.
func (s *Server) HandleRegistrationLost() {
	s.mtx.Lock()
	s.conns = map[BleConnKey]time.Time{}
	s.mtx.Unlock()

	n := s.PurgeAll()
	log.Warnf("Event registration lost; dropped %d prepared writes", n)
}

func (s *Server) PurgeConnection(key BleConnKey) int {
	return s.q.PurgeConnection(key)
}

func (s *Server) PurgeAll() int {
	return s.q.PurgeAll()
}

// Connections returns the connected clients, ordered by address.
func (s *Server) Connections() []BleConnKey {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	keys := make([]BleConnKey, 0, len(s.conns))
	for k := range s.conns {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Dispatch routes an event to its handler.
func (s *Server) Dispatch(evt Event) error {
	switch e := evt.(type) {
	case *ConnectEvt:
		s.HandleConnect(e.ConnKey)

	case *DisconnectEvt:
		s.HandleDisconnect(e.ConnKey)

	case *RegLostEvt:
		s.HandleRegistrationLost()

	case *PrepWriteReqEvt:
		s.HandlePrepareWrite(e.ConnKey, e.SvcId, e.AttrOff, e.ValOff, e.ReqId,
			e.Data)

	case *ExecWriteReqEvt:
		return s.HandleExecuteWrite(e.ConnKey, e.SvcId, e.Commit)

	case *ReadReqEvt:
		s.HandleRead(e.ConnKey, e.SvcId, e.AttrOff, e.ValOff, e.ReqId)

	case *WriteReqEvt:
		s.HandleWrite(e.ConnKey, e.SvcId, e.AttrOff, e.ReqId, e.Data)

	case *SignedWriteEvt:
		s.HandleSignedWrite(e.ConnKey, e.SvcId, e.AttrOff, e.Data)

	default:
		return errors.Errorf("unsupported GATT event: %T", evt)
	}

	return nil
}
