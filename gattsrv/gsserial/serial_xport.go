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

// Package gsserial carries GMP packets over a serial console link using the
// newtmgr line framing.
package gsserial

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

type XportCfg struct {
	DevPath     string
	Baud        int
	ReadTimeout time.Duration

	// Pause between the lines of a multi-line frame.  Slow targets have
	// small receive buffers.
	LineDelay time.Duration
}

func NewXportCfg() *XportCfg {
	return &XportCfg{
		Baud:        115200,
		ReadTimeout: 10 * time.Second,
		LineDelay:   20 * time.Millisecond,
	}
}

type SerialXport struct {
	cfg  *XportCfg
	port io.ReadWriteCloser

	// Overridable for tests.
	openFn func(cfg *XportCfg) (io.ReadWriteCloser, error)

	wg      sync.WaitGroup
	mtx     sync.Mutex
	txMtx   sync.Mutex
	started bool
	closing bool
}

func openPort(cfg *XportCfg) (io.ReadWriteCloser, error) {
	c := &serial.Config{
		Name:        cfg.DevPath,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	}

	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}

	if err := port.Flush(); err != nil {
		port.Close()
		return nil, err
	}

	return port, nil
}

func NewSerialXport(cfg *XportCfg) *SerialXport {
	return &SerialXport{
		cfg:    cfg,
		openFn: openPort,
	}
}

func (sx *SerialXport) Start(rxCb xport.RxFn) error {
	sx.mtx.Lock()
	defer sx.mtx.Unlock()

	if sx.started {
		return gsutil.NewXportError("Serial transport already started")
	}

	port, err := sx.openFn(sx.cfg)
	if err != nil {
		return gsutil.FmtXportError("Failed to open %s: %s",
			sx.cfg.DevPath, err.Error())
	}

	sx.port = port
	sx.started = true
	sx.closing = false

	sx.wg.Add(1)
	go sx.rxLoop(rxCb)

	return nil
}

func (sx *SerialXport) isClosing() bool {
	sx.mtx.Lock()
	defer sx.mtx.Unlock()

	return sx.closing
}

func (sx *SerialXport) rxLoop(rxCb xport.RxFn) {
	defer sx.wg.Done()

	dec := &Decoder{}
	scanner := bufio.NewScanner(sx.port)

	for {
		for scanner.Scan() {
			line := scanner.Bytes()
			log.Debugf("Rx serial:\n%s", hex.Dump(line))

			pkt, err := dec.DecodeLine(line)
			if err != nil {
				gsutil.XportLog.Errorf("Serial rx: %s", err.Error())
				continue
			}
			if pkt != nil {
				// The scanner reuses its buffer.
				b := make([]byte, len(pkt))
				copy(b, pkt)
				rxCb(nil, b)
			}
		}

		if sx.isClosing() {
			return
		}

		if err := scanner.Err(); err != nil {
			gsutil.XportLog.Errorf("Serial rx: %s", err.Error())
			return
		}

		// Scanner hit EOF, which only happens on a read timeout.  A partial
		// frame does not survive it.
		log.Debugf("Serial read timeout; decoder %s", dec.String())
		dec = &Decoder{}
		scanner = bufio.NewScanner(sx.port)
	}
}

func (sx *SerialXport) Stop() error {
	sx.mtx.Lock()
	if !sx.started {
		sx.mtx.Unlock()
		return gsutil.NewXportError("Serial transport not started")
	}
	sx.closing = true
	sx.started = false
	sx.mtx.Unlock()

	err := sx.port.Close()
	sx.wg.Wait()
	return err
}

func (sx *SerialXport) txRaw(b []byte) error {
	log.Debugf("Tx serial\n%s", hex.Dump(b))

	if _, err := sx.port.Write(b); err != nil {
		return gsutil.FmtXportError("Serial write failed: %s", err.Error())
	}

	return nil
}

// Tx sends one packet.  The peer is ignored; a serial link has only one.
func (sx *SerialXport) Tx(peer xport.Peer, data []byte) error {
	sx.mtx.Lock()
	started := sx.started
	sx.mtx.Unlock()

	if !started {
		return gsutil.NewXportError("Serial transport not started")
	}

	log.Debugf("Base64 encoding request:\n%s", hex.Dump(data))

	sx.txMtx.Lock()
	defer sx.txMtx.Unlock()

	for i, line := range EncodeFrame(data) {
		if i > 0 && sx.cfg.LineDelay > 0 {
			time.Sleep(sx.cfg.LineDelay)
		}
		if err := sx.txRaw(line); err != nil {
			return err
		}
	}

	return nil
}

func (sx *SerialXport) String() string {
	return fmt.Sprintf("serial %s@%d", sx.cfg.DevPath, sx.cfg.Baud)
}
