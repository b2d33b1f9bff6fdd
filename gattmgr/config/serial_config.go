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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/gsserial"
)

func einvalSerialConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid serial connstring; %s", suffix)
}

func ParseSerialConnString(cs string) (*gsserial.XportCfg, error) {
	sc := gsserial.NewXportCfg()
	if t := gmutil.Req.Timeout; t > 0 {
		sc.ReadTimeout = t
	}

	parts := strings.Split(cs, ",")
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		// Handle old-style conn string (single token indicating dev file).
		if len(kv) == 1 {
			kv = []string{"dev", kv[0]}
		}

		k := kv[0]
		v := kv[1]

		switch k {
		case "dev":
			sc.DevPath = v

		case "baud":
			var err error
			sc.Baud, err = cast.ToIntE(v)
			if err != nil || sc.Baud <= 0 {
				return sc, einvalSerialConnString("Invalid baud: %s", v)
			}

		case "linedelay":
			ms, err := cast.ToIntE(v)
			if err != nil || ms < 0 {
				return sc, einvalSerialConnString("Invalid line delay: %s", v)
			}
			sc.LineDelay = time.Duration(ms) * time.Millisecond

		default:
			return sc, einvalSerialConnString("Unrecognized key: %s", k)
		}
	}

	if sc.DevPath == "" {
		return sc, einvalSerialConnString("Missing dev")
	}

	return sc, nil
}

func BuildSerialXport(sc *gsserial.XportCfg) *gsserial.SerialXport {
	return gsserial.NewSerialXport(sc)
}
