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

// Package gmutil holds the settings shared by every gattmgr command.
package gmutil

import (
	"mynewt.apache.org/gattmgr/gattsrv/gmp"
)

// Tool describes the executable for help and version text.
type Tool struct {
	ExeName     string
	ShortName   string
	LongName    string
	Version     string
	ProfileFile string
}

var ToolInfo = Tool{
	ExeName:     "gattmgr",
	ShortName:   "gattmgr",
	LongName:    "Apache Mynewt GATT manager",
	Version:     "0.1.0",
	ProfileFile: ".gattmgr.cp.json",
}

// ConnSelection is the transport chosen on the command line.  A non-empty
// Type bypasses the profile file.
type ConnSelection struct {
	Profile string
	Type    string
	String  string
	Extra   string
}

// ApplyTo returns base with the --connstring replacement and the
// --connextra suffix applied.
func (cs *ConnSelection) ApplyTo(base string) string {
	s := base
	if cs.String != "" {
		s = cs.String
	}

	if cs.Extra != "" {
		if s != "" {
			s += ","
		}
		s += cs.Extra
	}

	return s
}

var Conn ConnSelection

// Req is filled from --timeout and --tries and governs every GMP request
// the client commands send.
var Req = gmp.NewTxOptions()
