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
	"fmt"
	"math/rand"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

var nextSeq uint32
var seqBeenRead bool
var seqMutex sync.Mutex

var logFormatter = log.TextFormatter{
	FullTimestamp:   true,
	TimestampFormat: "2006-01-02 15:04:05.999",
	ForceColors:     true,
}

// Logs frames crossing a transport; kept separate so wire dumps can be
// silenced independently of the rest of the library.
var XportLog = &log.Logger{
	Out:       os.Stderr,
	Formatter: &logFormatter,
	Level:     log.InfoLevel,
}

func SetLogLevel(level log.Level) {
	log.SetLevel(level)
	log.SetFormatter(&logFormatter)
	XportLog.Level = level
}

// NextSeq returns the next GMP sequence number.  Zero is never returned;
// it means "no response expected" on the wire.
func NextSeq() uint32 {
	seqMutex.Lock()
	defer seqMutex.Unlock()

	if !seqBeenRead {
		nextSeq = rand.Uint32()
		seqBeenRead = true
	}

	nextSeq++
	if nextSeq == 0 {
		nextSeq++
	}

	return nextSeq
}

func EncodeCborMap(value map[string]interface{}) ([]byte, error) {
	b := []byte{}
	enc := codec.NewEncoderBytes(&b, new(codec.CborHandle))
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("failure encoding cbor; %s", err.Error())
	}

	return b, nil
}

func DecodeCborMap(cbor []byte) (map[string]interface{}, error) {
	m := map[string]interface{}{}

	dec := codec.NewDecoderBytes(cbor, new(codec.CborHandle))
	if err := dec.Decode(&m); err != nil {
		log.Debugf("Attempt to decode invalid cbor: %#v", cbor)
		return nil, fmt.Errorf("failure decoding cbor; %s", err.Error())
	}

	return m, nil
}
