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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/cli"
	"mynewt.apache.org/gattmgr/gattmgr/config"
)

// watchSignals shuts down cleanly on SIGINT / SIGTERM and dumps goroutine
// stacks on SIGQUIT.
func watchSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	for sig := range sigChan {
		if sig == syscall.SIGQUIT {
			util.PrintStacks()
			continue
		}

		log.Infof("Received %s; shutting down", sig.String())
		cli.Shutdown()
		os.Exit(0)
	}
}

func main() {
	if err := config.InitProfiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	go watchSignals()

	defer cli.Shutdown()
	cli.Commands().Execute()
}
