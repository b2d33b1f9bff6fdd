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

package bledefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const BLE_ATT_ATTR_MAX_LEN = 512

const BLE_ATT_MTU_DFLT = 23

// Bytes of ATT overhead in a prepare write request (opcode, handle, offset).
const BLE_ATT_PREP_WRITE_OVERHEAD = 5

type BleConnType int

const (
	BLE_CONN_TYPE_NONE   BleConnType = 0
	BLE_CONN_TYPE_LE     BleConnType = 1
	BLE_CONN_TYPE_BR_EDR BleConnType = 2
)

var BleConnTypeStringMap = map[BleConnType]string{
	BLE_CONN_TYPE_NONE:   "none",
	BLE_CONN_TYPE_LE:     "le",
	BLE_CONN_TYPE_BR_EDR: "br_edr",
}

func BleConnTypeToString(connType BleConnType) string {
	s := BleConnTypeStringMap[connType]
	if s == "" {
		return "???"
	}

	return s
}

func BleConnTypeFromString(s string) (BleConnType, error) {
	for connType, name := range BleConnTypeStringMap {
		if s == name {
			return connType, nil
		}
	}

	return BleConnType(0), fmt.Errorf("Invalid BleConnType string: %s", s)
}

func (a BleConnType) MarshalJSON() ([]byte, error) {
	return json.Marshal(BleConnTypeToString(a))
}

func (a *BleConnType) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*a, err = BleConnTypeFromString(s)
	return err
}

type BleAddr struct {
	Bytes [6]byte
}

func ParseBleAddr(s string) (BleAddr, error) {
	ba := BleAddr{}

	toks := strings.Split(strings.ToLower(s), ":")
	if len(toks) != 6 {
		return ba, fmt.Errorf("invalid BLE addr string: %s", s)
	}

	for i, t := range toks {
		u64, err := strconv.ParseUint(t, 16, 8)
		if err != nil {
			return ba, fmt.Errorf("invalid BLE addr string: %s", s)
		}
		ba.Bytes[i] = byte(u64)
	}

	return ba, nil
}

func (ba BleAddr) IsZero() bool {
	return ba.Bytes == [6]byte{}
}

func (ba BleAddr) String() string {
	var buf bytes.Buffer
	buf.Grow(len(ba.Bytes) * 3)

	for i, b := range ba.Bytes {
		if i != 0 {
			buf.WriteString(":")
		}
		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

func (ba BleAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(ba.String())
}

func (ba *BleAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	*ba, err = ParseBleAddr(s)
	if err != nil {
		return err
	}

	return nil
}

// Identifies the remote client of a GATT connection.
type BleConnKey struct {
	Type BleConnType
	Addr BleAddr
}

func (k BleConnKey) IsZero() bool {
	return k.Type == BLE_CONN_TYPE_NONE || k.Addr.IsZero()
}

func (k BleConnKey) String() string {
	return fmt.Sprintf("%s,%s", BleConnTypeToString(k.Type), k.Addr.String())
}

func ParseBleConnKey(connType string, addr string) (BleConnKey, error) {
	key := BleConnKey{}

	var err error
	key.Type, err = BleConnTypeFromString(connType)
	if err != nil {
		return key, err
	}

	key.Addr, err = ParseBleAddr(addr)
	if err != nil {
		return key, err
	}

	return key, nil
}

type BleUuid16 uint16

func (bu16 BleUuid16) String() string {
	return fmt.Sprintf("0x%04x", uint16(bu16))
}

func ParseUuid16(s string) (BleUuid16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return BleUuid16(0), fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid16(val), nil
}

// Stored in the byte order used by the service tables (little endian).
type BleUuid128 [16]byte

func (bu128 BleUuid128) String() string {
	var buf bytes.Buffer
	buf.Grow(len(bu128)*2 + 4)

	for i := range bu128 {
		switch i {
		case 4, 6, 8, 10:
			buf.WriteString("-")
		}

		fmt.Fprintf(&buf, "%02x", bu128[len(bu128)-1-i])
	}

	return buf.String()
}

func ParseUuid128(s string) (BleUuid128, error) {
	var bu128 BleUuid128

	if len(s) != 36 {
		return bu128, fmt.Errorf("Invalid UUID: %s", s)
	}

	boff := len(bu128) - 1
	for i := 0; i < 36; {
		switch i {
		case 8, 13, 18, 23:
			if s[i] != '-' {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			i++

		default:
			u64, err := strconv.ParseUint(s[i:i+2], 16, 8)
			if err != nil {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			bu128[boff] = byte(u64)
			i += 2
			boff--
		}
	}

	return bu128, nil
}

func (bu128 BleUuid128) MarshalJSON() ([]byte, error) {
	return json.Marshal(bu128.String())
}

func (bu128 *BleUuid128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	*bu128, err = ParseUuid128(s)
	if err != nil {
		return err
	}

	return nil
}

type BleUuid struct {
	// Set to 0 if the 128-bit UUID should be used.
	U16 BleUuid16

	// Ignored if U16 is nonzero.
	U128 BleUuid128
}

func (bu BleUuid) String() string {
	if bu.U16 != 0 {
		return bu.U16.String()
	} else {
		return bu.U128.String()
	}
}

func ParseUuid(uuidStr string) (BleUuid, error) {
	bu := BleUuid{}
	var err error

	// First, try to parse as a 16-bit UUID.
	bu.U16, err = ParseUuid16(uuidStr)
	if err == nil {
		return bu, nil
	}

	// Try to parse as a 128-bit UUID.
	bu.U128, err = ParseUuid128(uuidStr)
	if err == nil {
		return bu, nil
	}

	return bu, err
}

func CompareUuids(a BleUuid, b BleUuid) int {
	if a.U16 != 0 || b.U16 != 0 {
		return int(a.U16) - int(b.U16)
	} else {
		return bytes.Compare(a.U128[:], b.U128[:])
	}
}

type BleAttrType int

const (
	BLE_ATTR_TYPE_INCLUDE BleAttrType = 0
	BLE_ATTR_TYPE_CHR     BleAttrType = 1
	BLE_ATTR_TYPE_DSC     BleAttrType = 2
)

var BleAttrTypeStringMap = map[BleAttrType]string{
	BLE_ATTR_TYPE_INCLUDE: "include",
	BLE_ATTR_TYPE_CHR:     "chr",
	BLE_ATTR_TYPE_DSC:     "dsc",
}

func BleAttrTypeToString(attrType BleAttrType) string {
	s := BleAttrTypeStringMap[attrType]
	if s == "" {
		return "???"
	}

	return s
}

func BleAttrTypeFromString(s string) (BleAttrType, error) {
	for attrType, name := range BleAttrTypeStringMap {
		if s == name {
			return attrType, nil
		}
	}

	return BleAttrType(0), fmt.Errorf("Invalid BleAttrType string: %s", s)
}

func (a BleAttrType) MarshalJSON() ([]byte, error) {
	return json.Marshal(BleAttrTypeToString(a))
}

func (a *BleAttrType) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*a, err = BleAttrTypeFromString(s)
	return err
}

// Characteristic and descriptor property flags.  Descriptors only use the
// read and write bits.
type BleChrFlags int

const (
	BLE_GATT_F_BROADCAST       BleChrFlags = 0x0001
	BLE_GATT_F_READ            BleChrFlags = 0x0002
	BLE_GATT_F_WRITE_NO_RSP    BleChrFlags = 0x0004
	BLE_GATT_F_WRITE           BleChrFlags = 0x0008
	BLE_GATT_F_NOTIFY          BleChrFlags = 0x0010
	BLE_GATT_F_INDICATE        BleChrFlags = 0x0020
	BLE_GATT_F_AUTH_SIGN_WRITE BleChrFlags = 0x0040
	BLE_GATT_F_RELIABLE_WRITE  BleChrFlags = 0x0080
)

var bleChrFlagNames = []struct {
	flag BleChrFlags
	name string
}{
	{BLE_GATT_F_BROADCAST, "broadcast"},
	{BLE_GATT_F_READ, "read"},
	{BLE_GATT_F_WRITE_NO_RSP, "write_no_rsp"},
	{BLE_GATT_F_WRITE, "write"},
	{BLE_GATT_F_NOTIFY, "notify"},
	{BLE_GATT_F_INDICATE, "indicate"},
	{BLE_GATT_F_AUTH_SIGN_WRITE, "auth_sign_write"},
	{BLE_GATT_F_RELIABLE_WRITE, "reliable_write"},
}

func (f BleChrFlags) String() string {
	var names []string
	for _, fn := range bleChrFlagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

type BleSecFlags int

const (
	BLE_SEC_F_NONE               BleSecFlags = 0x0000
	BLE_SEC_F_UNAUTH_ENC_READ    BleSecFlags = 0x0001
	BLE_SEC_F_AUTH_ENC_READ      BleSecFlags = 0x0002
	BLE_SEC_F_SECURE_CONN_READ   BleSecFlags = 0x0004
	BLE_SEC_F_UNAUTH_ENC_WRITE   BleSecFlags = 0x0008
	BLE_SEC_F_AUTH_ENC_WRITE     BleSecFlags = 0x0010
	BLE_SEC_F_SECURE_CONN_WRITE  BleSecFlags = 0x0020
	BLE_SEC_F_AUTH_SIGNED_WRITES BleSecFlags = 0x0040
)

// ATT error codes carried in error responses.
type BleAttStatus uint8

const (
	BLE_ATT_ERR_NONE               BleAttStatus = 0x00
	BLE_ATT_ERR_INVALID_HANDLE     BleAttStatus = 0x01
	BLE_ATT_ERR_READ_NOT_PERMITTED BleAttStatus = 0x02
	BLE_ATT_ERR_WRITE_NOT_PERMIT   BleAttStatus = 0x03
	BLE_ATT_ERR_INVALID_PDU        BleAttStatus = 0x04
	BLE_ATT_ERR_REQ_NOT_SUPPORTED  BleAttStatus = 0x06
	BLE_ATT_ERR_INVALID_OFFSET     BleAttStatus = 0x07
	BLE_ATT_ERR_PREPARE_QUEUE_FULL BleAttStatus = 0x09
	BLE_ATT_ERR_INVALID_ATTR_LEN   BleAttStatus = 0x0d
	BLE_ATT_ERR_UNLIKELY           BleAttStatus = 0x0e
	BLE_ATT_ERR_INSUFFICIENT_RES   BleAttStatus = 0x11
)

var BleAttStatusStringMap = map[BleAttStatus]string{
	BLE_ATT_ERR_NONE:               "success",
	BLE_ATT_ERR_INVALID_HANDLE:     "invalid handle",
	BLE_ATT_ERR_READ_NOT_PERMITTED: "read not permitted",
	BLE_ATT_ERR_WRITE_NOT_PERMIT:   "write not permitted",
	BLE_ATT_ERR_INVALID_PDU:        "invalid pdu",
	BLE_ATT_ERR_REQ_NOT_SUPPORTED:  "request not supported",
	BLE_ATT_ERR_INVALID_OFFSET:     "invalid offset",
	BLE_ATT_ERR_PREPARE_QUEUE_FULL: "prepare queue full",
	BLE_ATT_ERR_INVALID_ATTR_LEN:   "invalid attribute value length",
	BLE_ATT_ERR_UNLIKELY:           "unlikely error",
	BLE_ATT_ERR_INSUFFICIENT_RES:   "insufficient resources",
}

func BleAttStatusToString(status BleAttStatus) string {
	s := BleAttStatusStringMap[status]
	if s == "" {
		return "???"
	}

	return s
}

func (s BleAttStatus) String() string {
	return fmt.Sprintf("%s (0x%02x)", BleAttStatusToString(s), uint8(s))
}
