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
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
)

// Event is a notification delivered by the stack.
type Event interface {
	Key() BleConnKey
}

type ConnectEvt struct {
	ConnKey BleConnKey
}

type DisconnectEvt struct {
	ConnKey BleConnKey
}

// The stack dropped the server's event registration.
type RegLostEvt struct {
}

type ReadReqEvt struct {
	ConnKey BleConnKey
	SvcId   uint32
	ReqId   uint32
	AttrOff uint16
	ValOff  int
}

// ReqId is zero for a write command.
type WriteReqEvt struct {
	ConnKey BleConnKey
	SvcId   uint32
	ReqId   uint32
	AttrOff uint16
	Data    []byte
}

type SignedWriteEvt struct {
	ConnKey BleConnKey
	SvcId   uint32
	AttrOff uint16
	Data    []byte
}

type PrepWriteReqEvt struct {
	ConnKey BleConnKey
	SvcId   uint32
	ReqId   uint32
	AttrOff uint16
	ValOff  int
	Data    []byte
}

type ExecWriteReqEvt struct {
	ConnKey BleConnKey
	SvcId   uint32
	Commit  bool
}

func (e *ConnectEvt) Key() BleConnKey      { return e.ConnKey }
func (e *DisconnectEvt) Key() BleConnKey   { return e.ConnKey }
func (e *RegLostEvt) Key() BleConnKey      { return BleConnKey{} }
func (e *ReadReqEvt) Key() BleConnKey      { return e.ConnKey }
func (e *WriteReqEvt) Key() BleConnKey     { return e.ConnKey }
func (e *SignedWriteEvt) Key() BleConnKey  { return e.ConnKey }
func (e *PrepWriteReqEvt) Key() BleConnKey { return e.ConnKey }
func (e *ExecWriteReqEvt) Key() BleConnKey { return e.ConnKey }
