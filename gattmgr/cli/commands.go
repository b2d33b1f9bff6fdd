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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/gsutil"
)

var GattmgrLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	gmCmd := &cobra.Command{
		Use:   gmutil.ToolInfo.ExeName,
		Short: gmutil.ToolInfo.ShortName + " manages GATT prepared writes",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			GattmgrLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				gmUsage(nil, util.ChildNewtError(err))
			}

			err = util.Init(GattmgrLogLevel, "", util.VERBOSITY_DEFAULT)
			if err != nil {
				gmUsage(nil, err)
			}
			gsutil.SetLogLevel(GattmgrLogLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	pf := gmCmd.PersistentFlags()

	pf.StringVarP(&gmutil.Conn.Profile, "conn", "c", "",
		"connection profile to use")
	pf.StringVar(&gmutil.Conn.Type, "conntype", "",
		"connection type to use instead of the profile's type")
	pf.StringVar(&gmutil.Conn.String, "connstring", "",
		"connection key-value pairs to use instead of the profile's "+
			"connstring")
	pf.StringVar(&gmutil.Conn.Extra, "connextra", "",
		"additional key-value pairs to append to the connstring")

	pf.DurationVarP(&gmutil.Req.Timeout, "timeout", "t", gmutil.Req.Timeout,
		"time to wait for each GMP response (e.g. 500ms, 10s)")
	pf.IntVarP(&gmutil.Req.Tries, "tries", "r", gmutil.Req.Tries,
		"total number of tries in case of timeout")

	pf.StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + gmutil.ToolInfo.ShortName + " version number",
		Example: "  " + gmutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				gmutil.ToolInfo.LongName,
				gmutil.ToolInfo.Version)
		},
	}
	gmCmd.AddCommand(versCmd)

	gmCmd.AddCommand(serveCmd())
	gmCmd.AddCommand(svcCmd())
	gmCmd.AddCommand(gattCmd())
	gmCmd.AddCommand(connProfileCmd())
	gmCmd.AddCommand(interactiveCmd())

	return gmCmd
}
