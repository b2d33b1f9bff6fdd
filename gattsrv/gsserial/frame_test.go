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

package gsserial

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func decodeLines(t *testing.T, dec *Decoder, lines [][]byte) []byte {
	var pkt []byte
	for i, line := range lines {
		if line[len(line)-1] != '\n' {
			t.Fatalf("line %d not newline terminated", i)
		}

		got, err := dec.DecodeLine(line[:len(line)-1])
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got != nil {
			if i != len(lines)-1 {
				t.Fatalf("packet completed early at line %d", i)
			}
			pkt = got
		}
	}

	return pkt
}

func TestFrameRoundTrip(t *testing.T) {
	for _, n := range []int{1, 10, 89, 90, 91, 300, 1000} {
		data := payload(n)
		lines := EncodeFrame(data)

		for i, line := range lines {
			if len(line) > 128 {
				t.Errorf("n=%d line %d is %d bytes", n, i, len(line))
			}
			want := frameCont
			if i == 0 {
				want = frameStart
			}
			if !isDesig(line, want) {
				t.Errorf("n=%d line %d has designator %v", n, i, line[:2])
			}
		}

		got := decodeLines(t, &Decoder{}, lines)
		if !bytes.Equal(got, data) {
			t.Errorf("n=%d: decoded %d bytes, mismatch", n, len(got))
		}
	}
}

func TestEncodeFrameLeavesInputAlone(t *testing.T) {
	data := make([]byte, 4, 64)
	copy(data, "abcd")
	EncodeFrame(data)

	if !bytes.Equal(data[:cap(data)][4:6], []byte{0, 0}) {
		t.Errorf("encoder wrote into the caller's buffer")
	}
}

func TestDecodeIgnoresNoise(t *testing.T) {
	dec := &Decoder{}

	noise := [][]byte{
		[]byte("boot: console up"),
		{},
		{4},
		// Continuation with no frame in progress.
		append([]byte{4, 20}, []byte("AAAA")...),
	}
	for _, line := range noise {
		got, err := dec.DecodeLine(line)
		if got != nil || err != nil {
			t.Errorf("line %q: got %v, %v", line, got, err)
		}
	}

	// Carriage returns before the designator are stripped.
	lines := EncodeFrame([]byte("hello"))
	line := append([]byte("\r\r"), lines[0][:len(lines[0])-1]...)
	got, err := dec.DecodeLine(line)
	if err != nil || string(got) != "hello" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestDecodeBadCrc(t *testing.T) {
	data := []byte("hello")
	pkt := make([]byte, 2)
	binary.BigEndian.PutUint16(pkt, uint16(len(data)+2))
	pkt = append(pkt, data...)
	pkt = append(pkt, 0xde, 0xad)

	line := append([]byte{6, 9},
		[]byte(base64.StdEncoding.EncodeToString(pkt))...)

	dec := &Decoder{}
	_, err := dec.DecodeLine(line)
	if !gsutil.IsXport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	// The decoder recovers on the next frame.
	got := decodeLines(t, dec, EncodeFrame(data))
	if !bytes.Equal(got, data) {
		t.Errorf("got %q", got)
	}
}

func TestDecodeBadBase64(t *testing.T) {
	dec := &Decoder{}
	_, err := dec.DecodeLine([]byte{6, 9, '!', '!'})
	if !gsutil.IsXport(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

type pipePort struct {
	r *io.PipeReader

	mtx sync.Mutex
	out bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.out.Write(b)
}

func (p *pipePort) Close() error {
	return p.r.Close()
}

func (p *pipePort) written() []byte {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return append([]byte(nil), p.out.Bytes()...)
}

func TestSerialXport(t *testing.T) {
	r, w := io.Pipe()
	port := &pipePort{r: r}

	cfg := NewXportCfg()
	cfg.DevPath = "/dev/fake"
	cfg.LineDelay = 0

	sx := NewSerialXport(cfg)
	sx.openFn = func(cfg *XportCfg) (io.ReadWriteCloser, error) {
		return port, nil
	}

	if err := sx.Tx(nil, []byte("early")); err == nil {
		t.Errorf("tx before start succeeded")
	}

	rxChan := make(chan []byte, 4)
	err := sx.Start(func(peer xport.Peer, data []byte) {
		rxChan <- data
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	data := payload(200)
	go func() {
		w.Write([]byte("noise\n"))
		for _, line := range EncodeFrame(data) {
			w.Write(line)
		}
	}()

	select {
	case got := <-rxChan:
		if !bytes.Equal(got, data) {
			t.Errorf("received %d bytes, mismatch", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no packet received")
	}

	if err := sx.Tx(nil, []byte("reply")); err != nil {
		t.Fatalf("tx: %v", err)
	}

	lines := bytes.SplitAfter(port.written(), []byte{'\n'})
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if got := decodeLines(t, &Decoder{}, lines); string(got) != "reply" {
		t.Errorf("transmitted %q", got)
	}

	if err := sx.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := sx.Stop(); err == nil {
		t.Errorf("second stop succeeded")
	}
}
