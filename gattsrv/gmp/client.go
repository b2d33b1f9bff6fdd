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
	"time"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

var DfltTxOptions = TxOptions{
	Timeout: 10 * time.Second,
	Tries:   1,
}

type TxOptions struct {
	Timeout time.Duration
	Tries   int
}

func NewTxOptions() TxOptions {
	return DfltTxOptions
}

func (opt *TxOptions) AfterTimeout() <-chan time.Time {
	if opt.Timeout == 0 {
		return nil
	} else {
		return time.After(opt.Timeout)
	}
}

// Client is the requesting end of GMP.  It plays the role of the BLE stack
// when driving a server from the command line.
type Client struct {
	xp   xport.Xport
	peer xport.Peer

	mtx     sync.Mutex
	waiters map[uint32]chan *Msg
}

// NewClient creates a client that sends to peer over xp.  peer is nil for
// transports with a fixed destination.
func NewClient(xp xport.Xport, peer xport.Peer) *Client {
	return &Client{
		xp:      xp,
		peer:    peer,
		waiters: map[uint32]chan *Msg{},
	}
}

func (c *Client) Start() error {
	return c.xp.Start(c.rx)
}

func (c *Client) Stop() error {
	return c.xp.Stop()
}

func (c *Client) rx(peer xport.Peer, data []byte) {
	m, err := DecodeMsg(data)
	if err != nil {
		log.Debugf("Dropping invalid GMP message: %s", err.Error())
		return
	}

	c.mtx.Lock()
	ch := c.waiters[m.Seq]
	delete(c.waiters, m.Seq)
	c.mtx.Unlock()

	if ch == nil {
		log.Debugf("Unsolicited GMP response: %s", m.String())
		return
	}

	ch <- m
}

func (c *Client) addWaiter(seq uint32) chan *Msg {
	ch := make(chan *Msg, 1)

	c.mtx.Lock()
	c.waiters[seq] = ch
	c.mtx.Unlock()

	return ch
}

func (c *Client) removeWaiter(seq uint32) {
	c.mtx.Lock()
	delete(c.waiters, seq)
	c.mtx.Unlock()
}

// Send transmits a request that expects no response.
func (c *Client) Send(m *Msg) error {
	m.Seq = 0

	b, err := EncodeMsg(m)
	if err != nil {
		return err
	}

	return c.xp.Tx(c.peer, b)
}

// Request transmits m and waits for the matching response.  An error
// response is returned as an *gsutil.AttError.
func (c *Client) Request(m *Msg, opt TxOptions) (*Msg, error) {
	m.Seq = gsutil.NextSeq()

	b, err := EncodeMsg(m)
	if err != nil {
		return nil, err
	}

	ch := c.addWaiter(m.Seq)
	defer c.removeWaiter(m.Seq)

	tries := opt.Tries
	if tries < 1 {
		tries = 1
	}

	for i := 0; i < tries; i++ {
		if err := c.xp.Tx(c.peer, b); err != nil {
			return nil, err
		}

		select {
		case rsp := <-ch:
			if rsp.Op == OP_ERR_RSP {
				status := BleAttStatus(rsp.Status)
				return nil, gsutil.FmtAttError(status, "%s request failed: %s",
					m.Op.String(), status.String())
			}
			return rsp, nil

		case <-opt.AfterTimeout():
			log.Debugf("GMP %s request timed out (try %d of %d)",
				m.Op.String(), i+1, tries)
		}
	}

	return nil, gsutil.FmtRspTimeoutError(
		"GMP %s request timed out after %d tries", m.Op.String(), tries)
}

func (c *Client) PrepWrite(key BleConnKey, svcId uint32, attrOff uint16,
	valOff int, data []byte, opt TxOptions) error {

	m := NewMsg(OP_PREP_WRITE, key)
	m.SvcId = svcId
	m.AttrOff = attrOff
	m.ValOff = valOff
	m.Data = data

	_, err := c.Request(m, opt)
	return err
}

func (c *Client) ExecWrite(key BleConnKey, svcId uint32, commit bool,
	opt TxOptions) error {

	m := NewMsg(OP_EXEC_WRITE, key)
	m.SvcId = svcId
	m.Commit = commit

	_, err := c.Request(m, opt)
	return err
}

func (c *Client) Read(key BleConnKey, svcId uint32, attrOff uint16,
	valOff int, opt TxOptions) ([]byte, error) {

	m := NewMsg(OP_READ, key)
	m.SvcId = svcId
	m.AttrOff = attrOff
	m.ValOff = valOff

	rsp, err := c.Request(m, opt)
	if err != nil {
		return nil, err
	}

	return rsp.Data, nil
}

func (c *Client) Write(key BleConnKey, svcId uint32, attrOff uint16,
	data []byte, opt TxOptions) error {

	m := NewMsg(OP_WRITE, key)
	m.SvcId = svcId
	m.AttrOff = attrOff
	m.Data = data

	_, err := c.Request(m, opt)
	return err
}

func (c *Client) WriteCmd(key BleConnKey, svcId uint32, attrOff uint16,
	data []byte) error {

	m := NewMsg(OP_WRITE_CMD, key)
	m.SvcId = svcId
	m.AttrOff = attrOff
	m.Data = data

	return c.Send(m)
}

func (c *Client) SignedWrite(key BleConnKey, svcId uint32, attrOff uint16,
	data []byte) error {

	m := NewMsg(OP_SIGNED_WRITE, key)
	m.SvcId = svcId
	m.AttrOff = attrOff
	m.Data = data

	return c.Send(m)
}

func (c *Client) Connect(key BleConnKey) error {
	return c.Send(NewMsg(OP_CONNECT, key))
}

func (c *Client) Disconnect(key BleConnKey) error {
	return c.Send(NewMsg(OP_DISCONNECT, key))
}

func (c *Client) RegLost() error {
	return c.Send(NewMsg(OP_REG_LOST, BleConnKey{}))
}

// WriteLong writes a value too long for a single request as a series of
// prepared writes of at most chunkSz bytes, then commits them.  progressCb,
// if not nil, is called with the number of bytes prepared so far.
func (c *Client) WriteLong(key BleConnKey, svcId uint32, attrOff uint16,
	data []byte, chunkSz int, opt TxOptions,
	progressCb func(done int)) error {

	if chunkSz <= 0 {
		chunkSz = BLE_ATT_MTU_DFLT - BLE_ATT_PREP_WRITE_OVERHEAD
	}

	for off := 0; off < len(data); off += chunkSz {
		end := off + chunkSz
		if end > len(data) {
			end = len(data)
		}

		if err := c.PrepWrite(key, svcId, attrOff, off, data[off:end],
			opt); err != nil {

			// Don't leave partial state behind on the server.
			if cancelErr := c.ExecWrite(key, svcId, false,
				opt); cancelErr != nil {

				log.Debugf("Failed to cancel prepared writes: %s",
					cancelErr.Error())
			}
			return err
		}

		if progressCb != nil {
			progressCb(end)
		}
	}

	return c.ExecWrite(key, svcId, true, opt)
}
