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

// Package gmp implements the GATT management protocol: the CBOR messages
// that carry stack events to the server and results back to the client.
package gmp

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"mynewt.apache.org/gattmgr/gattsrv/gatm"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

type MsgOp int

const (
	OP_NONE MsgOp = iota
	OP_PREP_WRITE
	OP_EXEC_WRITE
	OP_READ
	OP_WRITE
	OP_WRITE_CMD
	OP_SIGNED_WRITE
	OP_CONNECT
	OP_DISCONNECT
	OP_REG_LOST

	OP_WRITE_RSP
	OP_READ_RSP
	OP_EXEC_RSP
	OP_ERR_RSP
)

var msgOpStringMap = map[MsgOp]string{
	OP_PREP_WRITE:   "prep-write",
	OP_EXEC_WRITE:   "exec-write",
	OP_READ:         "read",
	OP_WRITE:        "write",
	OP_WRITE_CMD:    "write-cmd",
	OP_SIGNED_WRITE: "signed-write",
	OP_CONNECT:      "connect",
	OP_DISCONNECT:   "disconnect",
	OP_REG_LOST:     "reg-lost",
	OP_WRITE_RSP:    "write-rsp",
	OP_READ_RSP:     "read-rsp",
	OP_EXEC_RSP:     "exec-rsp",
	OP_ERR_RSP:      "err-rsp",
}

func MsgOpToString(op MsgOp) string {
	s := msgOpStringMap[op]
	if s == "" {
		return "???"
	}

	return s
}

func MsgOpFromString(s string) (MsgOp, error) {
	for op, name := range msgOpStringMap {
		if s == name {
			return op, nil
		}
	}

	return OP_NONE, fmt.Errorf("Invalid GMP op string: %s", s)
}

func (op MsgOp) String() string {
	return MsgOpToString(op)
}

func (op MsgOp) IsRsp() bool {
	return op >= OP_WRITE_RSP && op <= OP_ERR_RSP
}

// Msg is a single GMP message.  Requests that expect a response carry a
// nonzero sequence number; the response echoes it.
type Msg struct {
	Op       MsgOp  `codec:"-"`
	Seq      uint32 `codec:"seq"`
	ConnType string `codec:"conn_type,omitempty"`
	Addr     string `codec:"addr,omitempty"`
	SvcId    uint32 `codec:"svc,omitempty"`
	AttrOff  uint16 `codec:"attr,omitempty"`
	ValOff   int    `codec:"off,omitempty"`
	Commit   bool   `codec:"commit,omitempty"`
	Data     []byte `codec:"data,omitempty"`
	Status   uint8  `codec:"status,omitempty"`
}

func NewMsg(op MsgOp, key BleConnKey) *Msg {
	m := &Msg{Op: op}
	if key.Type != BLE_CONN_TYPE_NONE {
		m.ConnType = BleConnTypeToString(key.Type)
		m.Addr = key.Addr.String()
	}

	return m
}

func (m *Msg) ConnKey() (BleConnKey, error) {
	return ParseBleConnKey(m.ConnType, m.Addr)
}

func (m *Msg) String() string {
	return fmt.Sprintf("op=%s seq=%d conn=%s,%s svc=%d attr=%d off=%d "+
		"commit=%v status=%d len=%d",
		m.Op.String(), m.Seq, m.ConnType, m.Addr, m.SvcId, m.AttrOff,
		m.ValOff, m.Commit, m.Status, len(m.Data))
}

func EncodeMsg(m *Msg) ([]byte, error) {
	// Convert the struct to a map; the "codec" tag is compatible with
	// "structs".
	s := structs.New(m)
	s.TagName = "codec"
	fieldMap := s.Map()
	fieldMap["op"] = MsgOpToString(m.Op)

	b, err := gsutil.EncodeCborMap(fieldMap)
	if err != nil {
		return nil, err
	}

	log.Debugf("Serialized GMP message (%s):\n%s", m.String(), hex.Dump(b))
	return b, nil
}

func DecodeMsg(b []byte) (*Msg, error) {
	fm, err := gsutil.DecodeCborMap(b)
	if err != nil {
		return nil, err
	}

	m := &Msg{}

	opStr, err := cast.ToStringE(fm["op"])
	if err != nil {
		return nil, errors.Wrap(err, "invalid GMP op")
	}
	if m.Op, err = MsgOpFromString(opStr); err != nil {
		return nil, err
	}

	// Absent fields decode to their zero values.
	field := func(name string, fn func(v interface{}) error) {
		if err != nil {
			return
		}
		v, ok := fm[name]
		if !ok {
			return
		}
		if fnErr := fn(v); fnErr != nil {
			err = errors.Wrapf(fnErr, "invalid GMP field \"%s\"", name)
		}
	}

	field("seq", func(v interface{}) (e error) {
		m.Seq, e = cast.ToUint32E(v)
		return
	})
	field("conn_type", func(v interface{}) (e error) {
		m.ConnType, e = cast.ToStringE(v)
		return
	})
	field("addr", func(v interface{}) (e error) {
		m.Addr, e = cast.ToStringE(v)
		return
	})
	field("svc", func(v interface{}) (e error) {
		m.SvcId, e = cast.ToUint32E(v)
		return
	})
	field("attr", func(v interface{}) (e error) {
		m.AttrOff, e = cast.ToUint16E(v)
		return
	})
	field("off", func(v interface{}) (e error) {
		m.ValOff, e = cast.ToIntE(v)
		return
	})
	field("commit", func(v interface{}) (e error) {
		m.Commit, e = cast.ToBoolE(v)
		return
	})
	field("status", func(v interface{}) (e error) {
		m.Status, e = cast.ToUint8E(v)
		return
	})
	field("data", func(v interface{}) error {
		switch d := v.(type) {
		case []byte:
			m.Data = d
		case string:
			m.Data = []byte(d)
		default:
			return fmt.Errorf("unexpected type %T", v)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return m, nil
}

// MsgToEvent converts a request into the event the GATT server handles.
// reqId is the id the response will be matched against; 0 for requests
// that get none.
func MsgToEvent(m *Msg, reqId uint32) (gatm.Event, error) {
	if m.Op == OP_REG_LOST {
		return &gatm.RegLostEvt{}, nil
	}

	key, err := m.ConnKey()
	if err != nil {
		return nil, err
	}

	switch m.Op {
	case OP_CONNECT:
		return &gatm.ConnectEvt{ConnKey: key}, nil

	case OP_DISCONNECT:
		return &gatm.DisconnectEvt{ConnKey: key}, nil

	case OP_PREP_WRITE:
		return &gatm.PrepWriteReqEvt{
			ConnKey: key,
			SvcId:   m.SvcId,
			ReqId:   reqId,
			AttrOff: m.AttrOff,
			ValOff:  m.ValOff,
			Data:    m.Data,
		}, nil

	case OP_EXEC_WRITE:
		return &gatm.ExecWriteReqEvt{
			ConnKey: key,
			SvcId:   m.SvcId,
			Commit:  m.Commit,
		}, nil

	case OP_READ:
		return &gatm.ReadReqEvt{
			ConnKey: key,
			SvcId:   m.SvcId,
			ReqId:   reqId,
			AttrOff: m.AttrOff,
			ValOff:  m.ValOff,
		}, nil

	case OP_WRITE, OP_WRITE_CMD:
		return &gatm.WriteReqEvt{
			ConnKey: key,
			SvcId:   m.SvcId,
			ReqId:   reqId,
			AttrOff: m.AttrOff,
			Data:    m.Data,
		}, nil

	case OP_SIGNED_WRITE:
		return &gatm.SignedWriteEvt{
			ConnKey: key,
			SvcId:   m.SvcId,
			AttrOff: m.AttrOff,
			Data:    m.Data,
		}, nil

	default:
		return nil, fmt.Errorf("GMP op %s is not a request", m.Op.String())
	}
}
