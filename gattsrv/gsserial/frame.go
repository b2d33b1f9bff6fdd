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
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/joaojeronimo/go-crc16"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

// Line designators.
var (
	frameStart = []byte{6, 9}
	frameCont  = []byte{4, 20}
)

// A line, designator and newline included, must fit in 128 bytes.  Base64
// encodes 3 bytes as 4 characters, so this is a multiple of 4.
const maxLineData = 124

// EncodeFrame wraps a packet for the console link: a big-endian length and
// CRC-16 trailer around the data, base64 encoded and split into lines.
func EncodeFrame(data []byte) [][]byte {
	body := make([]byte, len(data), len(data)+2)
	copy(body, data)

	crc := make([]byte, 2)
	binary.BigEndian.PutUint16(crc, crc16.Crc16(data))
	body = append(body, crc...)

	pktData := make([]byte, 2, len(body)+2)
	binary.BigEndian.PutUint16(pktData, uint16(len(body)))
	pktData = append(pktData, body...)

	b64 := make([]byte, base64.StdEncoding.EncodedLen(len(pktData)))
	base64.StdEncoding.Encode(b64, pktData)

	var lines [][]byte
	for written := 0; written < len(b64); {
		n := util.Min(maxLineData, len(b64)-written)

		desig := frameCont
		if written == 0 {
			desig = frameStart
		}

		line := make([]byte, 0, len(desig)+n+1)
		line = append(line, desig...)
		line = append(line, b64[written:written+n]...)
		line = append(line, '\n')
		lines = append(lines, line)

		written += n
	}

	return lines
}

// Decoder reassembles packets from received lines.
type Decoder struct {
	pkt *Packet
}

func isDesig(line []byte, desig []byte) bool {
	return len(line) >= 2 && line[0] == desig[0] && line[1] == desig[1]
}

// DecodeLine consumes one line, without its newline.  It returns the
// packet contents once the final line of a frame arrives and nil before
// that.  Lines that are not part of a frame are ignored.
func (d *Decoder) DecodeLine(line []byte) ([]byte, error) {
	for len(line) > 1 && line[0] == '\r' {
		line = line[1:]
	}

	start := isDesig(line, frameStart)
	if !start && !isDesig(line, frameCont) {
		return nil, nil
	}

	b64 := string(line[2:])
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, gsutil.FmtXportError(
			"Couldn't decode base64 string: %s\nPacket hex dump:\n%s",
			b64, hex.Dump(line))
	}

	if start {
		if len(data) < 2 {
			return nil, nil
		}

		pktLen := binary.BigEndian.Uint16(data[0:2])
		d.pkt, err = NewPacket(pktLen)
		if err != nil {
			return nil, gsutil.NewXportError(err.Error())
		}
		data = data[2:]
	}

	if d.pkt == nil {
		return nil, nil
	}

	if !d.pkt.AddBytes(data) {
		return nil, nil
	}

	pkt := d.pkt
	d.pkt = nil

	if crc16.Crc16(pkt.GetBytes()) != 0 {
		return nil, gsutil.NewXportError("CRC error")
	}

	pkt.TrimEnd(2)
	b := pkt.GetBytes()

	log.Debugf("Decoded input:\n%s", hex.Dump(b))
	return b, nil
}

func (d *Decoder) String() string {
	if d.pkt == nil {
		return "idle"
	}
	return fmt.Sprintf("%d/%d bytes", d.pkt.buffer.Len(), d.pkt.expectedLen)
}
