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
	"net"
	"strings"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattsrv/udp"
)

type UdpConfig struct {
	// Address the server listens on and the client sends to.
	Addr string

	// Client-side local address; empty picks an ephemeral port.
	Local string
}

func einvalUdpConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid UDP connstring; %s", suffix)
}

func ParseUdpConnString(cs string) (*UdpConfig, error) {
	uc := &UdpConfig{}

	for _, p := range strings.Split(cs, ",") {
		kv := strings.SplitN(p, "=", 2)
		// A bare token is the address.
		if len(kv) == 1 {
			kv = []string{"addr", kv[0]}
		}

		k := kv[0]
		v := kv[1]

		switch k {
		case "addr":
			uc.Addr = v
		case "local":
			uc.Local = v
		default:
			return nil, einvalUdpConnString("Unrecognized key: %s", k)
		}
	}

	if uc.Addr == "" {
		return nil, einvalUdpConnString("Missing addr")
	}
	if _, _, err := net.SplitHostPort(uc.Addr); err != nil {
		return nil, einvalUdpConnString("Invalid addr: %s", uc.Addr)
	}

	return uc, nil
}

// BuildUdpXport creates the server (listening) or client end of a UDP
// link.
func BuildUdpXport(uc *UdpConfig, server bool) *udp.UdpXport {
	cfg := udp.NewXportCfg()
	if server {
		cfg.ListenAddr = uc.Addr
	} else {
		cfg.PeerAddr = uc.Addr
		cfg.ListenAddr = uc.Local
	}

	return udp.NewUdpXport(cfg)
}
