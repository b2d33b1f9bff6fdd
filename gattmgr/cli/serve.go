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
	"mynewt.apache.org/gattmgr/gattsrv/attdir"
	"mynewt.apache.org/gattmgr/gattsrv/gatm"
	"mynewt.apache.org/gattmgr/gattsrv/gmp"
)

// Bound to the serve flags.
var serveCfg = gatm.NewServerCfg()

func serveRunCmd(cmd *cobra.Command, args []string) {
	cp, err := getConnProfile()
	if err != nil {
		gmUsage(cmd, err)
	}

	x, err := buildXport(true)
	if err != nil {
		gmUsage(cmd, err)
	}

	dir := attdir.NewDir()
	ids, err := attdir.RegisterSampleSvcs(dir)
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	cfg := serveCfg
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = gatm.NewServerCfg().SweepInterval
	}

	lis := gmp.NewListener(x)
	srv := gatm.NewServer(cfg, dir, lis)

	if err := srv.Start(); err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}
	globalServer = srv

	if err := lis.Start(srv); err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}
	globalXport = x

	log.Infof("Serving %d services over %s (max entries=%d, idle timeout=%s)",
		len(ids), cp.String(), cfg.MaxEntries,
		cfg.IdleTimeout.String())
	fmt.Printf("GATT server running; press Ctrl-C to stop\n")

	// Runs until a signal terminates the process.
	select {}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a GATT server with the sample services",
		Long: "Run a GATT server with the sample services.  The server " +
			"answers GMP\nrequests arriving over the selected connection " +
			"profile.",
		Example: "  " + gmutil.ToolInfo.ExeName +
			" serve --conntype udp --connstring addr=127.0.0.1:5683",
		Run: serveRunCmd,
	}

	cmd.Flags().IntVar(&serveCfg.MaxEntries, "max-entries",
		serveCfg.MaxEntries,
		"maximum number of pending prepared writes (0 = unlimited)")
	cmd.Flags().DurationVar(&serveCfg.IdleTimeout, "idle-timeout",
		serveCfg.IdleTimeout,
		"drop prepared writes idle this long, e.g. 30s (0 = never)")
	cmd.Flags().DurationVar(&serveCfg.SweepInterval, "sweep-interval",
		serveCfg.SweepInterval, "time between idle prepared write sweeps")

	return cmd
}
