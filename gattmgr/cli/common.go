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

package cli

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/config"
	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/gatm"
	"mynewt.apache.org/gattmgr/gattsrv/gmp"
	"mynewt.apache.org/gattmgr/gattsrv/gsserial"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

// State of the running command.  serve sets globalServer; the gatt
// commands set globalClient.  Both set the transport they started.
var (
	globalXport  xport.Xport
	globalClient *gmp.Client
	globalServer *gatm.Server
)

// getConnProfile returns the selected profile, with any command line
// overrides applied.
func getConnProfile() (*config.ConnProfile, error) {
	sel := &gmutil.Conn

	var cp config.ConnProfile
	if sel.Type != "" {
		ct, err := config.ConnTypeFromString(sel.Type)
		if err != nil {
			return nil, err
		}

		cp.Name = "<command line>"
		cp.Type = ct
	} else {
		if sel.Profile == "" {
			return nil, util.NewNewtError(
				"No connection profile specified; use --conn or --conntype")
		}

		p, err := config.Profiles().Get(sel.Profile)
		if err != nil {
			return nil, err
		}
		cp = *p
	}

	cp.ConnString = sel.ApplyTo(cp.ConnString)
	return &cp, nil
}

// buildXport creates, but does not start, the transport for the selected
// profile.  server selects the listening end of datagram links.
func buildXport(server bool) (xport.Xport, error) {
	cp, err := getConnProfile()
	if err != nil {
		return nil, err
	}

	return cp.BuildXport(server)
}

// GetClient returns the GMP client, starting it and its transport on first
// use.
func GetClient() (*gmp.Client, error) {
	if globalClient != nil {
		return globalClient, nil
	}

	x, err := buildXport(false)
	if err != nil {
		return nil, err
	}

	c := gmp.NewClient(x, nil)
	if err := c.Start(); err != nil {
		return nil, util.ChildNewtError(err)
	}

	globalXport = x
	globalClient = c

	return globalClient, nil
}

var shutdownOnce sync.Once

// Shutdown stops the GATT server and the transport, if either is running.
// A serial port is left for the OS to close: on some platforms closing it
// blocks until the pending read returns.
func Shutdown() {
	shutdownOnce.Do(func() {
		if globalServer != nil {
			if err := globalServer.Stop(); err != nil {
				log.Debugf("Stopping server: %s", err.Error())
			}
		}

		if globalXport == nil {
			return
		}
		if _, ok := globalXport.(*gsserial.SerialXport); ok {
			return
		}
		if err := globalXport.Stop(); err != nil {
			log.Debugf("Stopping transport: %s", err.Error())
		}
	})
}
