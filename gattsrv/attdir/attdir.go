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

// Package attdir is the server's attribute directory: the registered
// services and the live values of their characteristics and descriptors.
package attdir

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

type SvcFlags int

const (
	SVC_F_PERSISTENT_UID SvcFlags = 0x01
	SVC_F_SECONDARY      SvcFlags = 0x02
)

const maxHandle = 0xffff

type AttrDef struct {
	Type     BleAttrType
	Uuid     BleUuid128
	Flags    BleChrFlags
	SecFlags BleSecFlags
	MaxLen   int

	// Default value.  Never modified; a write promotes the attribute to its
	// own storage first.
	Value []byte
}

type SvcDef struct {
	Flags         SvcFlags
	PersistentUid uint32
	Uuid          BleUuid128
	Attrs         []AttrDef
}

type Attr struct {
	Type     BleAttrType
	Offset   uint16
	Handle   uint16
	Uuid     BleUuid128
	Flags    BleChrFlags
	SecFlags BleSecFlags
	MaxLen   int

	// Only set for includes.
	InclSvcId uint32

	mtx    sync.Mutex
	value  []byte
	length int
	owned  bool
}

type Svc struct {
	Id            uint32
	Flags         SvcFlags
	PersistentUid uint32
	Uuid          BleUuid128
	StartHandle   uint16
	EndHandle     uint16
	Attrs         []*Attr
}

type Dir struct {
	mtx        sync.RWMutex
	svcs       map[uint32]*Svc
	nextId     uint32
	nextHandle uint16
	closed     bool
}

func NewDir() *Dir {
	return &Dir{
		svcs:       map[uint32]*Svc{},
		nextId:     1,
		nextHandle: 1,
	}
}

// AttrOffsets computes the offset of each attribute in a service table:
//     1 + includes + 2*characteristics + descriptors
// counted over the attributes that precede it.
func AttrOffsets(defs []AttrDef) []uint16 {
	offs := make([]uint16, len(defs))

	cur := uint16(1)
	for i, d := range defs {
		offs[i] = cur
		if d.Type == BLE_ATTR_TYPE_CHR {
			cur += 2
		} else {
			cur++
		}
	}

	return offs
}

// Number of ATT handles a service occupies, including its declaration.
func numHandles(def SvcDef) int {
	offs := AttrOffsets(def.Attrs)
	if len(offs) == 0 {
		return 1
	}

	last := def.Attrs[len(def.Attrs)-1]
	n := int(offs[len(offs)-1]) + 1
	if last.Type == BLE_ATTR_TYPE_CHR {
		n++
	}
	return n
}

func validateDef(def SvcDef) error {
	for i, a := range def.Attrs {
		switch a.Type {
		case BLE_ATTR_TYPE_INCLUDE:
			if a.MaxLen != 0 || a.Value != nil {
				return fmt.Errorf("attr %d: include cannot carry a value", i)
			}

		case BLE_ATTR_TYPE_CHR, BLE_ATTR_TYPE_DSC:
			if a.MaxLen <= 0 || a.MaxLen > BLE_ATT_ATTR_MAX_LEN {
				return fmt.Errorf("attr %d: invalid max length %d", i, a.MaxLen)
			}
			if len(a.Value) > a.MaxLen {
				return fmt.Errorf(
					"attr %d: default value (%d bytes) exceeds max length %d",
					i, len(a.Value), a.MaxLen)
			}

		default:
			return fmt.Errorf("attr %d: invalid type %d", i, int(a.Type))
		}
	}

	return nil
}

// Register adds a service and returns its assigned id.
func (d *Dir) Register(def SvcDef) (uint32, error) {
	if err := validateDef(def); err != nil {
		return 0, err
	}

	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.closed {
		return 0, gsutil.NewClosedError("attribute directory closed")
	}

	// An include refers to the service registered just before this one.
	for i, ad := range def.Attrs {
		if ad.Type != BLE_ATTR_TYPE_INCLUDE {
			continue
		}
		if _, ok := d.svcs[d.nextId-1]; !ok {
			return 0, fmt.Errorf("attr %d: include without a preceding "+
				"service", i)
		}
	}

	n := numHandles(def)
	if int(d.nextHandle)+n-1 > maxHandle {
		return 0, fmt.Errorf("no room for service with %d handles", n)
	}

	svc := &Svc{
		Id:            d.nextId,
		Flags:         def.Flags,
		PersistentUid: def.PersistentUid,
		Uuid:          def.Uuid,
		StartHandle:   d.nextHandle,
		EndHandle:     d.nextHandle + uint16(n-1),
	}

	offs := AttrOffsets(def.Attrs)
	for i, ad := range def.Attrs {
		a := &Attr{
			Type:     ad.Type,
			Offset:   offs[i],
			Handle:   svc.StartHandle + offs[i],
			Uuid:     ad.Uuid,
			Flags:    ad.Flags,
			SecFlags: ad.SecFlags,
			MaxLen:   ad.MaxLen,
			value:    ad.Value,
			length:   len(ad.Value),
		}

		switch ad.Type {
		case BLE_ATTR_TYPE_INCLUDE:
			a.InclSvcId = d.nextId - 1
		case BLE_ATTR_TYPE_CHR:
			// Characteristic value follows its declaration.
			a.Handle++
		}

		svc.Attrs = append(svc.Attrs, a)
	}

	d.svcs[svc.Id] = svc
	d.nextId++
	d.nextHandle = svc.EndHandle + 1

	log.Debugf("Registered service id=%d uuid=%s handles=%d-%d",
		svc.Id, svc.Uuid.String(), svc.StartHandle, svc.EndHandle)

	return svc.Id, nil
}

func (d *Dir) Unregister(svcId uint32) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if _, ok := d.svcs[svcId]; !ok {
		return gsutil.FmtNotFoundError("no service with id %d", svcId)
	}

	delete(d.svcs, svcId)
	return nil
}

func (d *Dir) Clear() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.svcs = map[uint32]*Svc{}
}

// Close makes every later lookup fail.
func (d *Dir) Close() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.closed = true
}

// Services returns the registered services ordered by id.
func (d *Dir) Services() []*Svc {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	svcs := make([]*Svc, 0, len(d.svcs))
	for _, s := range d.svcs {
		svcs = append(svcs, s)
	}

	sort.Slice(svcs, func(i, j int) bool { return svcs[i].Id < svcs[j].Id })
	return svcs
}

func (d *Dir) Lookup(svcId uint32, attrOff uint16) (*Attr, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	if d.closed {
		return nil, gsutil.NewClosedError("attribute directory closed")
	}

	svc, ok := d.svcs[svcId]
	if !ok {
		return nil, gsutil.FmtNotFoundError("no service with id %d", svcId)
	}

	for _, a := range svc.Attrs {
		if a.Offset == attrOff {
			return a, nil
		}
	}

	return nil, gsutil.FmtNotFoundError(
		"no attribute at offset %d in service %d", attrOff, svcId)
}

func (d *Dir) LookupHandle(handle uint16) (*Svc, *Attr, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	if d.closed {
		return nil, nil, gsutil.NewClosedError("attribute directory closed")
	}

	for _, svc := range d.svcs {
		if handle < svc.StartHandle || handle > svc.EndHandle {
			continue
		}

		for _, a := range svc.Attrs {
			if a.Handle == handle {
				return svc, a, nil
			}
		}
	}

	return nil, nil, gsutil.FmtNotFoundError("no attribute with handle %d",
		handle)
}

// PromoteToOwnedStorage gives the attribute a private buffer of MaxLen bytes
// holding its current value, unless it already has one.  The buffer is
// returned.
func (d *Dir) PromoteToOwnedStorage(a *Attr) []byte {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.promote()
}

func (a *Attr) promote() []byte {
	if !a.owned {
		buf := make([]byte, a.MaxLen)
		copy(buf, a.value[:a.length])
		a.value = buf
		a.owned = true
	}

	return a.value
}

func (a *Attr) IsValueKind() bool {
	return a.Type == BLE_ATTR_TYPE_CHR || a.Type == BLE_ATTR_TYPE_DSC
}

func (a *Attr) Readable() bool {
	return a.IsValueKind() && a.Flags&BLE_GATT_F_READ != 0
}

func (a *Attr) Writable() bool {
	return a.IsValueKind() &&
		a.Flags&(BLE_GATT_F_WRITE|BLE_GATT_F_WRITE_NO_RSP) != 0
}

func (a *Attr) SignedWritable() bool {
	return a.Type == BLE_ATTR_TYPE_CHR && a.Flags&BLE_GATT_F_AUTH_SIGN_WRITE != 0
}

// Value returns a copy of the current value.
func (a *Attr) Value() []byte {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	v := make([]byte, a.length)
	copy(v, a.value[:a.length])
	return v
}

func (a *Attr) Len() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.length
}

func (a *Attr) Owned() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return a.owned
}

// WriteAt copies data into owned storage at off and raises the length to
// off+len(data) if that is past the current end.  Returns false, without
// modifying anything, if the attribute is still on default storage or the
// write would pass MaxLen.
func (a *Attr) WriteAt(off int, data []byte) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	end := off + len(data)
	if !a.owned || off < 0 || end > a.MaxLen {
		return false
	}

	copy(a.value[off:], data)
	if end > a.length {
		a.length = end
	}

	return true
}

// SetValue replaces the whole value, promoting the attribute to owned
// storage if necessary.
func (a *Attr) SetValue(data []byte) bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if len(data) > a.MaxLen {
		return false
	}

	buf := a.promote()
	copy(buf, data)
	for i := len(data); i < len(buf); i++ {
		buf[i] = 0
	}
	a.length = len(data)

	return true
}

func (a *Attr) String() string {
	return fmt.Sprintf("%s off=%d handle=%d uuid=%s flags=%s max_len=%d len=%d",
		BleAttrTypeToString(a.Type), a.Offset, a.Handle, a.Uuid.String(),
		a.Flags.String(), a.MaxLen, a.Len())
}
