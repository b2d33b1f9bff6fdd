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
	"io"
	"os"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/attdir"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
)

func printSvcs(w io.Writer, svcs []*attdir.Svc) {
	for _, svc := range svcs {
		fmt.Fprintf(w, "service id=%d uuid=%s handles=%d-%d",
			svc.Id, svc.Uuid.String(), svc.StartHandle, svc.EndHandle)
		if svc.Flags&attdir.SVC_F_PERSISTENT_UID != 0 {
			fmt.Fprintf(w, " persistent_uid=%d", svc.PersistentUid)
		}
		fmt.Fprintf(w, "\n")

		for _, a := range svc.Attrs {
			if a.Type == BLE_ATTR_TYPE_INCLUDE {
				fmt.Fprintf(w, "    [%2d] handle=%d include svc=%d\n",
					a.Offset, a.Handle, a.InclSvcId)
				continue
			}

			fmt.Fprintf(w, "    [%2d] handle=%d %s uuid=%s flags=%s "+
				"max_len=%d len=%d\n",
				a.Offset, a.Handle, BleAttrTypeToString(a.Type),
				a.Uuid.String(), a.Flags.String(), a.MaxLen, a.Len())
		}
	}
}

func svcListCmd(cmd *cobra.Command, args []string) {
	dir := attdir.NewDir()
	if _, err := attdir.RegisterSampleSvcs(dir); err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	printSvcs(os.Stdout, dir.Services())
}

func svcCmd() *cobra.Command {
	svcCmd := &cobra.Command{
		Use:   "svc",
		Short: "Inspect the services served by " + gmutil.ToolInfo.ShortName,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the sample services with their handles and attributes",
		Run:   svcListCmd,
	}
	svcCmd.AddCommand(listCmd)

	return svcCmd
}
