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

package gsutil

import (
	"testing"

	"github.com/pkg/errors"

	"mynewt.apache.org/gattmgr/gattsrv/bledefs"
)

func TestToAttStatus(t *testing.T) {
	tests := []struct {
		err  error
		want bledefs.BleAttStatus
	}{
		{nil, bledefs.BLE_ATT_ERR_NONE},
		{NewAttError(bledefs.BLE_ATT_ERR_INVALID_OFFSET, "off"),
			bledefs.BLE_ATT_ERR_INVALID_OFFSET},
		{errors.Wrap(NewAttError(bledefs.BLE_ATT_ERR_INVALID_ATTR_LEN, "len"),
			"prepare"), bledefs.BLE_ATT_ERR_INVALID_ATTR_LEN},
		{NewNotFoundError("svc 9"), bledefs.BLE_ATT_ERR_INVALID_HANDLE},
		{NewClosedError("queue closed"), bledefs.BLE_ATT_ERR_UNLIKELY},
		{errors.New("boom"), bledefs.BLE_ATT_ERR_UNLIKELY},
	}

	for i, tt := range tests {
		if got := ToAttStatus(tt.err); got != tt.want {
			t.Errorf("[%d] ToAttStatus(%v) = %v, want %v", i, tt.err, got, tt.want)
		}
	}
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	err := errors.Wrapf(NewClosedError("dir closed"), "lookup svc=%d", 3)
	if !IsClosed(err) {
		t.Errorf("IsClosed(%v) = false", err)
	}
	if IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = true", err)
	}
	if IsXport(nil) {
		t.Errorf("IsXport(nil) = true")
	}
	if !IsRspTimeout(FmtRspTimeoutError("seq=%d", 4)) {
		t.Errorf("IsRspTimeout = false")
	}
}

func TestNextSeqNeverZero(t *testing.T) {
	seqMutex.Lock()
	nextSeq = 0xfffffffe
	seqBeenRead = true
	seqMutex.Unlock()

	a := NextSeq()
	b := NextSeq()
	if a != 0xffffffff || b != 1 {
		t.Errorf("NextSeq() = %d, %d", a, b)
	}
}

func TestCborMap(t *testing.T) {
	b, err := EncodeCborMap(map[string]interface{}{"svc": 3, "addr": "x"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	m, err := DecodeCborMap(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["addr"] != "x" {
		t.Errorf("addr = %v", m["addr"])
	}

	if _, err := DecodeCborMap([]byte{0xa2, 0x61}); err == nil {
		t.Errorf("expected error decoding truncated map")
	}
}
