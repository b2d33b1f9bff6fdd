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

package gatm

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"mynewt.apache.org/gattmgr/gattsrv/attdir"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

type rspRec struct {
	kind   string
	reqId  uint32
	status BleAttStatus
	data   []byte
}

type recorder struct {
	mtx  sync.Mutex
	recs []rspRec
}

func (r *recorder) add(rec rspRec) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.recs = append(r.recs, rec)
	return nil
}

func (r *recorder) WriteResponse(reqId uint32) error {
	return r.add(rspRec{kind: "write", reqId: reqId})
}

func (r *recorder) ReadResponse(reqId uint32, data []byte) error {
	return r.add(rspRec{kind: "read", reqId: reqId, data: data})
}

func (r *recorder) ErrorResponse(reqId uint32, status BleAttStatus) error {
	return r.add(rspRec{kind: "error", reqId: reqId, status: status})
}

func (r *recorder) last(t *testing.T) rspRec {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if len(r.recs) == 0 {
		t.Fatalf("no response sent")
	}
	return r.recs[len(r.recs)-1]
}

func (r *recorder) count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return len(r.recs)
}

var (
	keyA = BleConnKey{
		Type: BLE_CONN_TYPE_LE,
		Addr: BleAddr{Bytes: [6]byte{0xa0, 1, 2, 3, 4, 5}},
	}
	keyB = BleConnKey{
		Type: BLE_CONN_TYPE_LE,
		Addr: BleAddr{Bytes: [6]byte{0xb0, 1, 2, 3, 4, 5}},
	}
)

// Attribute offsets within the test services.
const (
	svcMain   uint32 = 1
	svcSigned uint32 = 2

	offRw      uint16 = 1 // read/write, max 20
	offRo      uint16 = 3 // read only, "abc"
	offWide    uint16 = 5 // read/write, max 30
	offWriteOn uint16 = 7 // write only descriptor, max 10

	offIncl   uint16 = 1
	offSigned uint16 = 2 // read + signed write, max 4
)

func testDir(t *testing.T) *attdir.Dir {
	d := attdir.NewDir()

	defs := []attdir.SvcDef{
		{
			Attrs: []attdir.AttrDef{
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Flags:  BLE_GATT_F_READ | BLE_GATT_F_WRITE,
					MaxLen: 20,
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Flags:  BLE_GATT_F_READ,
					MaxLen: 8,
					Value:  []byte("abc"),
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Flags:  BLE_GATT_F_READ | BLE_GATT_F_WRITE,
					MaxLen: 30,
				},
				{
					Type:   BLE_ATTR_TYPE_DSC,
					Flags:  BLE_GATT_F_WRITE,
					MaxLen: 10,
				},
			},
		},
		{
			Attrs: []attdir.AttrDef{
				{Type: BLE_ATTR_TYPE_INCLUDE},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Flags:  BLE_GATT_F_READ | BLE_GATT_F_AUTH_SIGN_WRITE,
					MaxLen: 4,
				},
			},
		},
	}

	for _, def := range defs {
		if _, err := d.Register(def); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	return d
}

func newTestServer(t *testing.T, cfg ServerCfg) (*Server, *recorder) {
	rec := &recorder{}
	return NewServer(cfg, testDir(t), rec), rec
}

func attrValue(t *testing.T, s *Server, svcId uint32, off uint16) []byte {
	a, err := s.Dir().Lookup(svcId, off)
	if err != nil {
		t.Fatalf("lookup svc=%d attr=%d: %v", svcId, off, err)
	}
	return a.Value()
}

func expectWriteRsp(t *testing.T, rec *recorder, reqId uint32) {
	r := rec.last(t)
	if r.kind != "write" || r.reqId != reqId {
		t.Fatalf("request %d: got %s response (req=%d status=%s), want write",
			reqId, r.kind, r.reqId, r.status.String())
	}
}

func expectErrRsp(t *testing.T, rec *recorder, reqId uint32,
	status BleAttStatus) {

	r := rec.last(t)
	if r.kind != "error" || r.reqId != reqId || r.status != status {
		t.Fatalf("request %d: got %s response (req=%d status=%s), "+
			"want error %s", reqId, r.kind, r.reqId, r.status.String(),
			status.String())
	}
}

func TestPrepareWriteCoalesces(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	chunks := []string{"ABCDEFGH", "IJKLMNOP", "QRST"}
	off := 0
	for i, c := range chunks {
		reqId := uint32(i + 1)
		s.HandlePrepareWrite(keyA, svcMain, offRw, off, reqId, []byte(c))
		expectWriteRsp(t, rec, reqId)
		off += len(c)
	}

	snap := s.Queue().Snapshot()
	if len(snap) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(snap))
	}
	if snap[0].ValOff != 0 || snap[0].Len != 20 {
		t.Fatalf("entry valOff=%d len=%d, want 0/20", snap[0].ValOff, snap[0].Len)
	}

	s.HandleExecuteWrite(keyA, svcMain, true)

	if s.Queue().Len() != 0 {
		t.Errorf("queue not drained: %d entries", s.Queue().Len())
	}
	got := attrValue(t, s, svcMain, offRw)
	if string(got) != "ABCDEFGHIJKLMNOPQRST" {
		t.Errorf("committed value %q", got)
	}
}

func TestPrepareWriteOverflowKeepsEntry(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1,
		[]byte("ABCDEFGHIJKLMNOPQRST"))
	expectWriteRsp(t, rec, 1)

	s.HandlePrepareWrite(keyA, svcMain, offRw, 20, 2, []byte("U"))
	expectErrRsp(t, rec, 2, BLE_ATT_ERR_INVALID_OFFSET)

	snap := s.Queue().Snapshot()
	if len(snap) != 1 || snap[0].Len != 20 {
		t.Fatalf("existing entry disturbed: %+v", snap)
	}
}

func TestPrepareWriteRollsBackNewEntry(t *testing.T) {
	tests := []struct {
		name   string
		valOff int
		data   string
		status BleAttStatus
	}{
		{"offset at max", 20, "x", BLE_ATT_ERR_INVALID_OFFSET},
		{"offset past max", 25, "x", BLE_ATT_ERR_INVALID_OFFSET},
		{"negative offset", -1, "x", BLE_ATT_ERR_INVALID_OFFSET},
		{"end past max", 18, "wxyz", BLE_ATT_ERR_INVALID_ATTR_LEN},
		{"too long", 0, "0123456789abcdefghijk", BLE_ATT_ERR_INVALID_ATTR_LEN},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, rec := newTestServer(t, NewServerCfg())

			s.HandlePrepareWrite(keyA, svcMain, offRw, tc.valOff, 7,
				[]byte(tc.data))
			expectErrRsp(t, rec, 7, tc.status)

			if n := s.Queue().Len(); n != 0 {
				t.Errorf("failed write left %d entries", n)
			}
		})
	}
}

func TestPrepareWriteInvalidHandle(t *testing.T) {
	tests := []struct {
		name    string
		svcId   uint32
		attrOff uint16
	}{
		{"unknown service", 9, offRw},
		{"unknown offset", svcMain, 2},
		{"include", svcSigned, offIncl},
		{"read only", svcMain, offRo},
		{"signed write only", svcSigned, offSigned},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, rec := newTestServer(t, NewServerCfg())

			s.HandlePrepareWrite(keyA, tc.svcId, tc.attrOff, 0, 3, []byte("a"))
			expectErrRsp(t, rec, 3, BLE_ATT_ERR_INVALID_HANDLE)

			if n := s.Queue().Len(); n != 0 {
				t.Errorf("queue has %d entries", n)
			}
		})
	}
}

func TestPrepareWriteClosed(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())
	s.Dir().Close()
	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("a"))
	expectErrRsp(t, rec, 1, BLE_ATT_ERR_UNLIKELY)

	s, rec = newTestServer(t, NewServerCfg())
	s.Queue().Close()
	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 2, []byte("a"))
	expectErrRsp(t, rec, 2, BLE_ATT_ERR_UNLIKELY)
}

func TestPrepareWriteZeroKey(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(BleConnKey{}, svcMain, offRw, 0, 1, []byte("a"))
	expectErrRsp(t, rec, 1, BLE_ATT_ERR_UNLIKELY)
}

func TestPrepareWriteQueueFull(t *testing.T) {
	cfg := NewServerCfg()
	cfg.MaxEntries = 2
	s, rec := newTestServer(t, cfg)

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("ab"))
	expectWriteRsp(t, rec, 1)
	s.HandlePrepareWrite(keyA, svcMain, offWide, 0, 2, []byte("cd"))
	expectWriteRsp(t, rec, 2)

	s.HandlePrepareWrite(keyB, svcMain, offRw, 0, 3, []byte("ef"))
	expectErrRsp(t, rec, 3, BLE_ATT_ERR_INSUFFICIENT_RES)

	// Extending an existing entry needs no new slot.
	s.HandlePrepareWrite(keyA, svcMain, offRw, 2, 4, []byte("gh"))
	expectWriteRsp(t, rec, 4)

	if n := s.Queue().Len(); n != 2 {
		t.Errorf("queue has %d entries, want 2", n)
	}
}

func TestExecuteWriteFirstChunkAtOffset(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offRw, 5, 1, []byte("xyz"))
	expectWriteRsp(t, rec, 1)
	s.HandleExecuteWrite(keyA, svcMain, true)

	got := attrValue(t, s, svcMain, offRw)
	want := []byte{0, 0, 0, 0, 0, 'x', 'y', 'z'}
	if !bytes.Equal(got, want) {
		t.Errorf("value %v, want %v", got, want)
	}

	// A commit inside the current value leaves its length alone.
	s.HandleWrite(keyA, svcMain, offWide, 2, []byte("0123456789abcdef"))
	expectWriteRsp(t, rec, 2)
	s.HandlePrepareWrite(keyA, svcMain, offWide, 5, 3, []byte("xyz"))
	s.HandleExecuteWrite(keyA, svcMain, true)

	got = attrValue(t, s, svcMain, offWide)
	if string(got) != "01234xyz89abcdef" {
		t.Errorf("value %q", got)
	}
}

func TestExecuteWriteWithGap(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offWide, 0, 1, []byte("0123456789"))
	s.HandlePrepareWrite(keyA, svcMain, offWide, 20, 2, []byte("KLMNO"))
	if n := s.Queue().Len(); n != 2 {
		t.Fatalf("queue has %d entries, want 2", n)
	}

	s.HandleExecuteWrite(keyA, svcMain, true)

	got := attrValue(t, s, svcMain, offWide)
	if len(got) != 25 {
		t.Fatalf("length %d, want 25", len(got))
	}
	if string(got[:10]) != "0123456789" || string(got[20:]) != "KLMNO" {
		t.Errorf("value %q", got)
	}
	for i := 10; i < 20; i++ {
		if got[i] != 0 {
			t.Errorf("gap byte %d = %#x", i, got[i])
		}
	}
}

func TestExecuteWriteCancel(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("abcd"))
	s.HandleExecuteWrite(keyA, svcMain, false)

	if n := s.Queue().Len(); n != 0 {
		t.Errorf("queue has %d entries", n)
	}

	a, err := s.Dir().Lookup(svcMain, offRw)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a.Len() != 0 || a.Owned() {
		t.Errorf("cancel touched the value: len=%d owned=%v", a.Len(), a.Owned())
	}
}

func TestExecuteWriteClosedQueue(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())
	s.Queue().Close()

	err := s.HandleExecuteWrite(keyA, svcMain, true)
	if gsutil.ToAttStatus(err) != BLE_ATT_ERR_UNLIKELY {
		t.Errorf("execute on closed queue: %v", err)
	}

	err = s.Dispatch(&ExecWriteReqEvt{ConnKey: keyA, SvcId: svcMain})
	if gsutil.ToAttStatus(err) != BLE_ATT_ERR_UNLIKELY {
		t.Errorf("dispatched execute on closed queue: %v", err)
	}
}

func TestExecuteWriteScopedToKeyAndService(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("from-a"))
	s.HandlePrepareWrite(keyB, svcMain, offRw, 0, 2, []byte("from-b"))

	s.HandleExecuteWrite(keyA, svcSigned, true)
	if n := s.Queue().Len(); n != 2 {
		t.Fatalf("wrong service drained entries; %d left", n)
	}

	s.HandleExecuteWrite(keyA, svcMain, true)
	if got := attrValue(t, s, svcMain, offRw); string(got) != "from-a" {
		t.Errorf("value %q", got)
	}

	snap := s.Queue().Snapshot()
	if len(snap) != 1 || snap[0].Key != keyB {
		t.Errorf("remaining entries: %+v", snap)
	}
}

func TestExecuteWriteAttrVanished(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("abcd"))
	if err := s.Dir().Unregister(svcMain); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	s.HandleExecuteWrite(keyA, svcMain, true)
	if n := s.Queue().Len(); n != 0 {
		t.Errorf("queue has %d entries", n)
	}
}

func TestDisconnectPurgesConnection(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandleConnect(keyA)
	s.HandleConnect(keyB)
	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("a"))
	s.HandlePrepareWrite(keyA, svcMain, offWide, 0, 2, []byte("a"))
	s.HandlePrepareWrite(keyB, svcMain, offRw, 0, 3, []byte("b"))

	s.HandleDisconnect(keyA)

	snap := s.Queue().Snapshot()
	if len(snap) != 1 || snap[0].Key != keyB {
		t.Errorf("remaining entries: %+v", snap)
	}

	conns := s.Connections()
	if len(conns) != 1 || conns[0] != keyB {
		t.Errorf("connections: %v", conns)
	}
}

func TestRegistrationLostPurgesAll(t *testing.T) {
	s, _ := newTestServer(t, NewServerCfg())

	s.HandleConnect(keyA)
	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("a"))
	s.HandlePrepareWrite(keyB, svcMain, offRw, 0, 2, []byte("b"))

	s.HandleRegistrationLost()

	if n := s.Queue().Len(); n != 0 {
		t.Errorf("queue has %d entries", n)
	}
	if n := len(s.Connections()); n != 0 {
		t.Errorf("%d connections remain", n)
	}
}

func TestHandleRead(t *testing.T) {
	tests := []struct {
		name    string
		svcId   uint32
		attrOff uint16
		valOff  int
		data    string
		status  BleAttStatus
	}{
		{"whole value", svcMain, offRo, 0, "abc", BLE_ATT_ERR_NONE},
		{"blob", svcMain, offRo, 1, "bc", BLE_ATT_ERR_NONE},
		{"at end", svcMain, offRo, 3, "", BLE_ATT_ERR_NONE},
		{"past end", svcMain, offRo, 4, "", BLE_ATT_ERR_INVALID_OFFSET},
		{"write only", svcMain, offWriteOn, 0, "", BLE_ATT_ERR_READ_NOT_PERMITTED},
		{"include", svcSigned, offIncl, 0, "", BLE_ATT_ERR_INVALID_HANDLE},
		{"unknown", 9, 1, 0, "", BLE_ATT_ERR_INVALID_HANDLE},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, rec := newTestServer(t, NewServerCfg())

			s.HandleRead(keyA, tc.svcId, tc.attrOff, tc.valOff, 5)
			if tc.status != BLE_ATT_ERR_NONE {
				expectErrRsp(t, rec, 5, tc.status)
				return
			}

			r := rec.last(t)
			if r.kind != "read" || r.reqId != 5 || string(r.data) != tc.data {
				t.Errorf("got %s response req=%d data=%q",
					r.kind, r.reqId, r.data)
			}
		})
	}
}

func TestHandleWrite(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	s.HandleWrite(keyA, svcMain, offRo, 1, []byte("x"))
	expectErrRsp(t, rec, 1, BLE_ATT_ERR_WRITE_NOT_PERMIT)

	s.HandleWrite(keyA, svcMain, offRw, 2, make([]byte, 21))
	expectErrRsp(t, rec, 2, BLE_ATT_ERR_INVALID_ATTR_LEN)

	s.HandleWrite(keyA, svcSigned, offIncl, 3, []byte("x"))
	expectErrRsp(t, rec, 3, BLE_ATT_ERR_INVALID_HANDLE)

	s.HandleWrite(keyA, svcMain, offRw, 4, []byte("hello"))
	expectWriteRsp(t, rec, 4)
	if got := attrValue(t, s, svcMain, offRw); string(got) != "hello" {
		t.Errorf("value %q", got)
	}

	// Write commands get no response.
	n := rec.count()
	s.HandleWrite(keyA, svcMain, offRw, 0, []byte("hi"))
	s.HandleWrite(keyA, svcMain, offRo, 0, []byte("hi"))
	if rec.count() != n {
		t.Errorf("write command produced a response")
	}
	if got := attrValue(t, s, svcMain, offRw); string(got) != "hi" {
		t.Errorf("value %q", got)
	}
}

func TestHandleSignedWrite(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	s.HandleSignedWrite(keyA, svcSigned, offSigned, []byte("sig"))
	if got := attrValue(t, s, svcSigned, offSigned); string(got) != "sig" {
		t.Errorf("value %q", got)
	}

	// Not signed-writable.
	s.HandleSignedWrite(keyA, svcMain, offRw, []byte("sig"))
	if got := attrValue(t, s, svcMain, offRw); len(got) != 0 {
		t.Errorf("value %q", got)
	}

	s.HandleWrite(keyA, svcSigned, offSigned, 1, []byte("x"))
	expectErrRsp(t, rec, 1, BLE_ATT_ERR_WRITE_NOT_PERMIT)
}

type bogusEvt struct{}

func (e *bogusEvt) Key() BleConnKey { return BleConnKey{} }

func TestDispatch(t *testing.T) {
	s, rec := newTestServer(t, NewServerCfg())

	evts := []Event{
		&ConnectEvt{ConnKey: keyA},
		&PrepWriteReqEvt{ConnKey: keyA, SvcId: svcMain, ReqId: 1,
			AttrOff: offRw, ValOff: 0, Data: []byte("abc")},
		&PrepWriteReqEvt{ConnKey: keyA, SvcId: svcMain, ReqId: 2,
			AttrOff: offRw, ValOff: 3, Data: []byte("def")},
		&ExecWriteReqEvt{ConnKey: keyA, SvcId: svcMain, Commit: true},
		&ReadReqEvt{ConnKey: keyA, SvcId: svcMain, ReqId: 3, AttrOff: offRw},
	}

	for _, evt := range evts {
		if err := s.Dispatch(evt); err != nil {
			t.Fatalf("dispatch %T: %v", evt, err)
		}
	}

	r := rec.last(t)
	if r.kind != "read" || string(r.data) != "abcdef" {
		t.Errorf("read after execute: %s %q", r.kind, r.data)
	}

	if err := s.Dispatch(&DisconnectEvt{ConnKey: keyA}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	if len(s.Connections()) != 0 {
		t.Errorf("connection not removed")
	}

	if err := s.Dispatch(&bogusEvt{}); err == nil {
		t.Errorf("unknown event accepted")
	}
}

func TestIdleSweep(t *testing.T) {
	cfg := NewServerCfg()
	cfg.IdleTimeout = 20 * time.Millisecond
	cfg.SweepInterval = 5 * time.Millisecond
	s, rec := newTestServer(t, cfg)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Errorf("second start succeeded")
	}

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 1, []byte("abc"))
	expectWriteRsp(t, rec, 1)

	deadline := time.Now().Add(2 * time.Second)
	for s.Queue().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("idle entry never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Errorf("second stop succeeded")
	}

	s.HandlePrepareWrite(keyA, svcMain, offRw, 0, 2, []byte("abc"))
	expectErrRsp(t, rec, 2, BLE_ATT_ERR_UNLIKELY)
}

func TestConcurrentConnections(t *testing.T) {
	const numConns = 8
	const iters = 200

	s, rec := newTestServer(t, NewServerCfg())

	var wg sync.WaitGroup
	for g := 0; g < numConns; g++ {
		key := BleConnKey{
			Type: BLE_CONN_TYPE_LE,
			Addr: BleAddr{Bytes: [6]byte{0xc0, byte(g), 2, 3, 4, 5}},
		}
		head := []byte(fmt.Sprintf("%02d", g))

		wg.Add(1)
		go func(g int, key BleConnKey, head []byte) {
			defer wg.Done()

			reqId := uint32(g*iters*2) + 1
			for i := 0; i < iters; i++ {
				s.HandlePrepareWrite(key, svcMain, offRw, 0, reqId, head)
				s.HandlePrepareWrite(key, svcMain, offRw, 2, reqId+1,
					[]byte("xx"))
				reqId += 2

				own := 0
				for _, info := range s.Queue().Snapshot() {
					if info.Len > info.MaxLen ||
						info.ValOff+info.Len > info.MaxLen {

						t.Errorf("entry out of bounds: %+v", info)
					}
					if info.Key != key {
						continue
					}

					own++
					if info.ValOff != 0 || info.Len != 4 {
						t.Errorf("conn %d: entry off=%d len=%d, want 0/4",
							g, info.ValOff, info.Len)
					}
				}
				if own != 1 {
					t.Errorf("conn %d: %d entries queued, want 1", g, own)
					return
				}

				if err := s.HandleExecuteWrite(key, svcMain,
					i%2 == 0); err != nil {

					t.Errorf("conn %d: execute: %v", g, err)
					return
				}
			}
		}(g, key, head)
	}
	wg.Wait()

	if n := s.Queue().Len(); n != 0 {
		t.Errorf("queue has %d entries", n)
	}

	rec.mtx.Lock()
	if len(rec.recs) != numConns*iters*2 {
		t.Errorf("%d responses, want %d", len(rec.recs), numConns*iters*2)
	}
	for _, r := range rec.recs {
		if r.kind != "write" {
			t.Errorf("request %d: got %s response (status=%s)",
				r.reqId, r.kind, r.status.String())
		}
	}
	rec.mtx.Unlock()

	// Each commit lands whole; the value belongs to exactly one connection.
	v := attrValue(t, s, svcMain, offRw)
	if len(v) != 4 || v[0] != '0' || v[1] < '0' ||
		v[1] >= '0'+numConns || string(v[2:]) != "xx" {

		t.Errorf("malformed value %q", v)
	}
}
