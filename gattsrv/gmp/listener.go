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

package gmp

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/gattsrv/gatm"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

type Dispatcher interface {
	Dispatch(evt gatm.Event) error
}

type pendingReq struct {
	peer xport.Peer
	seq  uint32
}

// Listener is the server end of GMP.  It turns inbound requests into
// events and routes the server's responses back to the requester.
type Listener struct {
	xp xport.Xport
	d  Dispatcher

	mtx       sync.Mutex
	nextReqId uint32
	pending   map[uint32]pendingReq
}

func NewListener(xp xport.Xport) *Listener {
	return &Listener{
		xp:        xp,
		nextReqId: 1,
		pending:   map[uint32]pendingReq{},
	}
}

func (l *Listener) Start(d Dispatcher) error {
	l.d = d
	return l.xp.Start(l.rx)
}

func (l *Listener) Stop() error {
	return l.xp.Stop()
}

func (l *Listener) allocReq(peer xport.Peer, seq uint32) uint32 {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	id := l.nextReqId
	l.nextReqId++
	if l.nextReqId == 0 {
		l.nextReqId = 1
	}

	l.pending[id] = pendingReq{peer, seq}
	return id
}

func (l *Listener) takeReq(reqId uint32) (pendingReq, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	pr, ok := l.pending[reqId]
	if !ok {
		return pr, gsutil.FmtNotFoundError("No pending request with id %d",
			reqId)
	}
	delete(l.pending, reqId)

	return pr, nil
}

// NumPending returns the number of requests still awaiting a response.
func (l *Listener) NumPending() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	return len(l.pending)
}

func (l *Listener) tx(peer xport.Peer, m *Msg) error {
	b, err := EncodeMsg(m)
	if err != nil {
		return err
	}

	return l.xp.Tx(peer, b)
}

func (l *Listener) txErr(peer xport.Peer, seq uint32, status BleAttStatus) {
	rsp := &Msg{Op: OP_ERR_RSP, Seq: seq, Status: uint8(status)}
	if err := l.tx(peer, rsp); err != nil {
		log.Errorf("Failed to send GMP error response: %s", err.Error())
	}
}

func (l *Listener) rx(peer xport.Peer, data []byte) {
	m, err := DecodeMsg(data)
	if err != nil {
		log.Debugf("Dropping invalid GMP message: %s", err.Error())
		return
	}

	log.Debugf("Rx GMP request: %s", m.String())

	if m.Op.IsRsp() {
		log.Debugf("Ignoring GMP response at server: %s", m.String())
		return
	}

	var reqId uint32
	switch m.Op {
	case OP_PREP_WRITE, OP_READ, OP_WRITE:
		reqId = l.allocReq(peer, m.Seq)
	}

	evt, err := MsgToEvent(m, reqId)
	if err != nil {
		log.Debugf("Malformed GMP request (%s): %s", m.String(), err.Error())
		if reqId != 0 {
			l.takeReq(reqId)
		}
		if m.Seq != 0 {
			l.txErr(peer, m.Seq, BLE_ATT_ERR_INVALID_PDU)
		}
		return
	}

	err = l.d.Dispatch(evt)
	if err != nil {
		log.Errorf("GMP dispatch failed: %s", err.Error())
	}

	// The server handles execute writes without a response of its own.
	if m.Op == OP_EXEC_WRITE && m.Seq != 0 {
		if err != nil {
			l.txErr(peer, m.Seq, gsutil.ToAttStatus(err))
			return
		}
		if err := l.tx(peer, &Msg{Op: OP_EXEC_RSP, Seq: m.Seq}); err != nil {
			log.Errorf("Failed to send GMP exec response: %s", err.Error())
		}
	}
}

func (l *Listener) respond(reqId uint32, rsp *Msg) error {
	pr, err := l.takeReq(reqId)
	if err != nil {
		return err
	}

	// The requester asked not to be answered.
	if pr.seq == 0 {
		return nil
	}

	rsp.Seq = pr.seq
	return l.tx(pr.peer, rsp)
}

func (l *Listener) WriteResponse(reqId uint32) error {
	return l.respond(reqId, &Msg{Op: OP_WRITE_RSP})
}

func (l *Listener) ReadResponse(reqId uint32, data []byte) error {
	return l.respond(reqId, &Msg{Op: OP_READ_RSP, Data: data})
}

func (l *Listener) ErrorResponse(reqId uint32, status BleAttStatus) error {
	return l.respond(reqId, &Msg{Op: OP_ERR_RSP, Status: uint8(status)})
}
