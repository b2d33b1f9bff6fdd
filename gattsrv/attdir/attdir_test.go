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
	"bytes"
	"testing"

	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

func TestAttrOffsets(t *testing.T) {
	svcs := SampleSvcs()

	want := [][]uint16{
		{1, 3, 5},
		{1, 2, 4, 6, 8, 9, 11, 13, 15},
		{1, 2, 4, 6, 8},
	}

	for i, svc := range svcs {
		got := AttrOffsets(svc.Attrs)
		if len(got) != len(want[i]) {
			t.Fatalf("svc %d: got %d offsets, want %d", i, len(got), len(want[i]))
		}
		for j := range got {
			if got[j] != want[i][j] {
				t.Errorf("svc %d attr %d: offset %d, want %d",
					i, j, got[j], want[i][j])
			}
		}
	}
}

func TestRegisterAssignsIdsAndHandles(t *testing.T) {
	d := NewDir()

	ids, err := RegisterSampleSvcs(d)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("ids = %v", ids)
	}

	svcs := d.Services()
	if svcs[0].StartHandle != 1 || svcs[0].EndHandle != 7 {
		t.Errorf("svc 1 handles %d-%d", svcs[0].StartHandle, svcs[0].EndHandle)
	}
	if svcs[1].StartHandle != 8 || svcs[1].EndHandle != 23 {
		t.Errorf("svc 2 handles %d-%d", svcs[1].StartHandle, svcs[1].EndHandle)
	}

	// Includes reference the previously registered service.
	if incl := svcs[1].Attrs[0]; incl.InclSvcId != 1 {
		t.Errorf("include references svc %d", incl.InclSvcId)
	}

	svc, a, err := d.LookupHandle(svcs[0].StartHandle + 2)
	if err != nil {
		t.Fatalf("LookupHandle: %v", err)
	}
	if svc.Id != 1 || a.Offset != 1 {
		t.Errorf("LookupHandle -> svc %d off %d", svc.Id, a.Offset)
	}
}

func TestRegisterRejectsBadDefs(t *testing.T) {
	d := NewDir()

	bad := []SvcDef{
		{Attrs: []AttrDef{{Type: BLE_ATTR_TYPE_CHR, MaxLen: 0}}},
		{Attrs: []AttrDef{{Type: BLE_ATTR_TYPE_CHR, MaxLen: 600}}},
		{Attrs: []AttrDef{{Type: BLE_ATTR_TYPE_DSC, MaxLen: 2,
			Value: []byte("abc")}}},
		{Attrs: []AttrDef{{Type: BLE_ATTR_TYPE_INCLUDE, MaxLen: 4}}},
	}

	for i, def := range bad {
		if _, err := d.Register(def); err == nil {
			t.Errorf("[%d] expected registration failure", i)
		}
	}
}

func TestRegisterIncludeNeedsPrecedingService(t *testing.T) {
	d := NewDir()
	incl := SvcDef{Attrs: []AttrDef{{Type: BLE_ATTR_TYPE_INCLUDE}}}

	if _, err := d.Register(incl); err == nil {
		t.Fatalf("registered include as the first service")
	}
	if n := len(d.Services()); n != 0 {
		t.Fatalf("%d services after failed registration", n)
	}

	id, err := d.Register(SvcDef{Attrs: []AttrDef{
		{Type: BLE_ATTR_TYPE_CHR, Flags: BLE_GATT_F_READ, MaxLen: 4},
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	inclId, err := d.Register(incl)
	if err != nil {
		t.Fatalf("register include: %v", err)
	}
	a, err := d.Lookup(inclId, 1)
	if err != nil {
		t.Fatalf("lookup include: %v", err)
	}
	if a.InclSvcId != id {
		t.Errorf("InclSvcId = %d, want %d", a.InclSvcId, id)
	}

	// The referenced service is gone.
	if err := d.Unregister(inclId); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, err := d.Register(incl); err == nil {
		t.Errorf("registered include after its target was removed")
	}
}

func TestLookup(t *testing.T) {
	d := NewDir()
	if _, err := RegisterSampleSvcs(d); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, err := d.Lookup(1, 3)
	if err != nil {
		t.Fatalf("Lookup(1, 3): %v", err)
	}
	if a.MaxLen != 45 || !a.Writable() || !a.SignedWritable() {
		t.Errorf("unexpected attr %s", a.String())
	}

	if _, err := d.Lookup(1, 2); !gsutil.IsNotFound(err) {
		t.Errorf("Lookup(1, 2) err = %v, want not found", err)
	}
	if _, err := d.Lookup(9, 1); !gsutil.IsNotFound(err) {
		t.Errorf("Lookup(9, 1) err = %v, want not found", err)
	}

	incl, err := d.Lookup(2, 1)
	if err != nil {
		t.Fatalf("Lookup(2, 1): %v", err)
	}
	if incl.Writable() || incl.Readable() {
		t.Errorf("include reported as a value attribute")
	}

	d.Close()
	if _, err := d.Lookup(1, 1); !gsutil.IsClosed(err) {
		t.Errorf("Lookup after close err = %v", err)
	}
}

func TestPromoteToOwnedStorage(t *testing.T) {
	d := NewDir()
	if _, err := RegisterSampleSvcs(d); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, _ := d.Lookup(1, 1)
	if a.Owned() {
		t.Fatalf("attribute starts owned")
	}
	if a.WriteAt(0, []byte("x")) {
		t.Fatalf("WriteAt succeeded on default storage")
	}

	buf := d.PromoteToOwnedStorage(a)
	if len(buf) != a.MaxLen || !a.Owned() {
		t.Fatalf("promote: len=%d owned=%v", len(buf), a.Owned())
	}
	if !bytes.Equal(a.Value(), sampleLongValue) {
		t.Errorf("promoted value differs from default")
	}

	if !a.WriteAt(0, []byte("zz")) {
		t.Fatalf("WriteAt on owned storage failed")
	}
	if sampleLongValue[0] != 'V' {
		t.Errorf("default value modified in place")
	}
	if a.Len() != 117 {
		t.Errorf("len = %d", a.Len())
	}

	// A second promotion keeps the existing buffer.
	buf2 := d.PromoteToOwnedStorage(a)
	if &buf2[0] != &buf[0] {
		t.Errorf("second promotion reallocated storage")
	}
}

func TestWriteAtHighWaterMark(t *testing.T) {
	d := NewDir()
	id, err := d.Register(SvcDef{Attrs: []AttrDef{
		{Type: BLE_ATTR_TYPE_CHR, Flags: BLE_GATT_F_WRITE, MaxLen: 30},
	}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	a, _ := d.Lookup(id, 1)
	d.PromoteToOwnedStorage(a)

	if !a.WriteAt(20, []byte("12345")) {
		t.Fatalf("WriteAt(20) failed")
	}
	if !a.WriteAt(0, []byte("abc")) {
		t.Fatalf("WriteAt(0) failed")
	}
	if a.Len() != 25 {
		t.Errorf("len = %d, want 25", a.Len())
	}
	if a.WriteAt(28, []byte("xyz")) {
		t.Errorf("WriteAt past max length succeeded")
	}
	if a.Len() != 25 {
		t.Errorf("failed write changed length to %d", a.Len())
	}
}

func TestSetValue(t *testing.T) {
	d := NewDir()
	if _, err := RegisterSampleSvcs(d); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, _ := d.Lookup(2, 4)
	if !a.SetValue([]byte("abc")) {
		t.Fatalf("SetValue failed")
	}
	if string(a.Value()) != "abc" {
		t.Errorf("value = %q", a.Value())
	}
	if a.SetValue(make([]byte, a.MaxLen+1)) {
		t.Errorf("SetValue beyond max length succeeded")
	}
}
