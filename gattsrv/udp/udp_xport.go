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

// Package udp carries GMP packets in non-confirmable CoAP POSTs.
package udp

import (
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/runtimeco/go-coap"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

const MAX_PACKET_SIZE = 2048

const GATT_RES_PATH = "gatt"

type XportCfg struct {
	// Local address to bind; empty picks an ephemeral port.
	ListenAddr string

	// Destination for Tx calls that name no peer.
	PeerAddr string
}

func NewXportCfg() *XportCfg {
	return &XportCfg{}
}

type UdpXport struct {
	cfg  *XportCfg
	conn *net.UDPConn
	peer *net.UDPAddr

	wg      sync.WaitGroup
	mtx     sync.Mutex
	started bool
}

var messageIdMtx sync.Mutex
var nextMessageId uint16

func NextMessageId() uint16 {
	messageIdMtx.Lock()
	defer messageIdMtx.Unlock()

	id := nextMessageId
	nextMessageId++
	return id
}

// EncodeMsg wraps a GMP packet in a CoAP datagram.
func EncodeMsg(data []byte) ([]byte, error) {
	p := coap.MessageParams{
		Type:      coap.NonConfirmable,
		Code:      coap.POST,
		MessageID: NextMessageId(),
		Payload:   data,
	}

	m := coap.NewDgramMessage(p)
	m.SetPathString(GATT_RES_PATH)

	b, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("Failed to encode CoAP: %s", err.Error())
	}

	return b, nil
}

// DecodeMsg extracts the GMP packet from a CoAP datagram.
func DecodeMsg(b []byte) ([]byte, error) {
	m, err := coap.ParseDgramMessage(b)
	if err != nil {
		return nil, fmt.Errorf("CoAP parse failure: %s", err.Error())
	}

	if m.Code() != coap.POST {
		return nil, fmt.Errorf("Unexpected CoAP code: %s", m.Code().String())
	}
	if m.PathString() != GATT_RES_PATH {
		return nil, fmt.Errorf("Unexpected CoAP path: %s", m.PathString())
	}

	return m.Payload(), nil
}

func NewUdpXport(cfg *XportCfg) *UdpXport {
	return &UdpXport{
		cfg: cfg,
	}
}

func (ux *UdpXport) Start(rxCb xport.RxFn) error {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	if ux.started {
		return gsutil.NewXportError("UDP xport started twice")
	}

	var laddr *net.UDPAddr
	if ux.cfg.ListenAddr != "" {
		var err error
		laddr, err = net.ResolveUDPAddr("udp", ux.cfg.ListenAddr)
		if err != nil {
			return gsutil.FmtXportError("Failure resolving listen address: %s",
				err.Error())
		}
	}

	if ux.cfg.PeerAddr != "" {
		peer, err := net.ResolveUDPAddr("udp", ux.cfg.PeerAddr)
		if err != nil {
			return gsutil.FmtXportError("Failure resolving name for UDP peer: %s",
				err.Error())
		}
		ux.peer = peer
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return gsutil.FmtXportError("Failed to listen for UDP: %s",
			err.Error())
	}

	ux.conn = conn
	ux.started = true

	ux.wg.Add(1)
	go func() {
		defer ux.wg.Done()

		data := make([]byte, MAX_PACKET_SIZE)

		for {
			nr, srcAddr, err := conn.ReadFromUDP(data)
			if err != nil {
				// Connection closed or read error.
				return
			}

			log.Debugf("Received message from %v %d", srcAddr, nr)

			payload, err := DecodeMsg(data[:nr])
			if err != nil {
				gsutil.XportLog.Debugf("Dropping UDP packet from %v: %s",
					srcAddr, err.Error())
				continue
			}

			b := make([]byte, len(payload))
			copy(b, payload)
			rxCb(srcAddr, b)
		}
	}()

	return nil
}

func (ux *UdpXport) Stop() error {
	ux.mtx.Lock()
	if !ux.started {
		ux.mtx.Unlock()
		return gsutil.NewXportError("UDP xport stopped twice")
	}
	ux.started = false
	conn := ux.conn
	ux.mtx.Unlock()

	err := conn.Close()
	ux.wg.Wait()
	return err
}

// Addr returns the bound local address, or nil if not started.
func (ux *UdpXport) Addr() net.Addr {
	ux.mtx.Lock()
	defer ux.mtx.Unlock()

	if ux.conn == nil {
		return nil
	}
	return ux.conn.LocalAddr()
}

func (ux *UdpXport) Tx(peer xport.Peer, data []byte) error {
	ux.mtx.Lock()
	conn := ux.conn
	started := ux.started
	dst := ux.peer
	ux.mtx.Unlock()

	if !started {
		return gsutil.NewXportError("UDP xport not started")
	}

	if peer != nil {
		addr, ok := peer.(*net.UDPAddr)
		if !ok {
			return gsutil.FmtXportError("Invalid UDP peer: %s", peer.String())
		}
		dst = addr
	}
	if dst == nil {
		return gsutil.NewXportError("UDP tx: no peer address")
	}

	b, err := EncodeMsg(data)
	if err != nil {
		return err
	}

	log.Debugf("Tx UDP to %s\n%s", dst.String(), hex.Dump(b))

	if _, err := conn.WriteToUDP(b, dst); err != nil {
		return gsutil.FmtXportError("UDP write failed: %s", err.Error())
	}

	return nil
}
