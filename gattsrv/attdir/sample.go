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

package attdir

import (
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
)

// All sample UUIDs share this base; only bytes 2 and 3 vary.
func sampleUuid(b2 byte, b3 byte) BleUuid128 {
	return BleUuid128{
		0x6A, 0xFE, b2, b3, 0x6C, 0x52, 0x10, 0x14,
		0x8B, 0x7A, 0x95, 0x02, 0x01, 0xB8, 0x65, 0xBC,
	}
}

var sampleLongValue = []byte("VUHhfCQDLvB~!%^&*()-_+={}[]|:;.<>?/#" +
	"uoPXonUEjisFQjbWGlXmAoQsSSqJwexZsugfFtamHcTun~!%^&*()-_+={}[]|:;.<>?/#" +
	"AfjLKCeuMia")

var sampleShortValue = []byte("rlgzzRztTCqnCBBrsm~!%^&*()-_+={}[]|")

var sampleHello = []byte("HelloWorld")

// SampleSvcs returns the service tables the server registers when started
// with the sample set.
func SampleSvcs() []SvcDef {
	return []SvcDef{
		{
			Uuid: sampleUuid(0x54, 0x81),
			Attrs: []AttrDef{
				{
					Type: BLE_ATTR_TYPE_CHR,
					Uuid: sampleUuid(0x4D, 0x41),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE |
						BLE_GATT_F_INDICATE,
					SecFlags: BLE_SEC_F_AUTH_ENC_WRITE,
					MaxLen:   117,
					Value:    sampleLongValue,
				},
				{
					Type: BLE_ATTR_TYPE_CHR,
					Uuid: sampleUuid(0x51, 0x96),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE |
						BLE_GATT_F_NOTIFY | BLE_GATT_F_AUTH_SIGN_WRITE,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_READ |
						BLE_SEC_F_UNAUTH_ENC_WRITE | BLE_SEC_F_AUTH_SIGNED_WRITES,
					MaxLen: 45,
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Uuid:   sampleUuid(0x52, 0x8B),
					Flags:  BLE_GATT_F_WRITE,
					MaxLen: 50,
				},
			},
		},
		{
			Flags: SVC_F_PERSISTENT_UID,
			Uuid:  sampleUuid(0x68, 0x65),
			Attrs: []AttrDef{
				{Type: BLE_ATTR_TYPE_INCLUDE},
				{
					Type: BLE_ATTR_TYPE_CHR,
					Uuid: sampleUuid(0x55, 0xA3),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE_NO_RSP |
						BLE_GATT_F_WRITE,
					SecFlags: BLE_SEC_F_AUTH_ENC_READ | BLE_SEC_F_UNAUTH_ENC_WRITE,
					MaxLen:   464,
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Uuid:   sampleUuid(0x56, 0x89),
					Flags:  BLE_GATT_F_READ | BLE_GATT_F_WRITE_NO_RSP,
					MaxLen: 36,
					Value:  sampleShortValue,
				},
				{
					Type:  BLE_ATTR_TYPE_CHR,
					Uuid:  sampleUuid(0x5C, 0x40),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_READ |
						BLE_SEC_F_UNAUTH_ENC_WRITE,
					MaxLen: 62,
				},
				{
					Type:     BLE_ATTR_TYPE_DSC,
					Uuid:     sampleUuid(0x5D, 0x2A),
					Flags:    BLE_GATT_F_READ,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_READ,
					MaxLen:   264,
					Value:    sampleHello,
				},
				{
					Type:  BLE_ATTR_TYPE_CHR,
					Uuid:  sampleUuid(0x5E, 0x32),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_READ |
						BLE_SEC_F_UNAUTH_ENC_WRITE,
					MaxLen: 321,
					Value:  sampleHello,
				},
				{
					Type:  BLE_ATTR_TYPE_CHR,
					Uuid:  sampleUuid(0x63, 0x01),
					Flags: BLE_GATT_F_READ | BLE_GATT_F_WRITE_NO_RSP,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_READ |
						BLE_SEC_F_AUTH_ENC_WRITE,
					MaxLen: 186,
				},
				{
					Type:     BLE_ATTR_TYPE_CHR,
					Uuid:     sampleUuid(0x66, 0xCA),
					Flags:    BLE_GATT_F_WRITE,
					SecFlags: BLE_SEC_F_UNAUTH_ENC_WRITE,
					MaxLen:   120,
				},
				{
					Type:   BLE_ATTR_TYPE_DSC,
					Uuid:   sampleUuid(0x67, 0x9A),
					Flags:  BLE_GATT_F_READ,
					MaxLen: 172,
					Value:  sampleHello,
				},
			},
		},
		{
			Flags: SVC_F_PERSISTENT_UID,
			Uuid:  sampleUuid(0x6E, 0x1B),
			Attrs: []AttrDef{
				{Type: BLE_ATTR_TYPE_INCLUDE},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Uuid:   sampleUuid(0x69, 0x37),
					Flags:  BLE_GATT_F_READ,
					MaxLen: 229,
					Value:  sampleHello,
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Uuid:   sampleUuid(0x69, 0xF2),
					Flags:  BLE_GATT_F_WRITE,
					MaxLen: 165,
				},
				{
					Type:   BLE_ATTR_TYPE_CHR,
					Uuid:   sampleUuid(0x6A, 0xA7),
					Flags:  BLE_GATT_F_WRITE,
					MaxLen: 495,
				},
				{
					Type:     BLE_ATTR_TYPE_DSC,
					Uuid:     sampleUuid(0x6B, 0x65),
					Flags:    BLE_GATT_F_READ | BLE_GATT_F_WRITE,
					SecFlags: BLE_SEC_F_AUTH_ENC_READ,
					MaxLen:   243,
				},
			},
		},
	}
}

// RegisterSampleSvcs registers every sample service and returns their ids
// in table order.
func RegisterSampleSvcs(d *Dir) ([]uint32, error) {
	var ids []uint32
	for _, def := range SampleSvcs() {
		id, err := d.Register(def)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}
