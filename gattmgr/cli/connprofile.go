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

	"mynewt.apache.org/gattmgr/gattmgr/config"
	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
)

// parseConnProfileVars builds a profile from "type=<t> connstring=<cs>"
// arguments and checks the connstring against the type.
func parseConnProfileVars(name string,
	vdefs []string) (*config.ConnProfile, error) {

	kv, err := extractKv(vdefs)
	if err != nil {
		return nil, err
	}

	cp := &config.ConnProfile{Name: name}
	for k, v := range kv {
		switch k {
		case "type":
			if cp.Type, err = config.ConnTypeFromString(v); err != nil {
				return nil, err
			}
		case "connstring":
			cp.ConnString = v
		default:
			return nil, util.FmtNewtError("Unknown variable: %s", k)
		}
	}

	if err := cp.Validate(); err != nil {
		return nil, err
	}

	return cp, nil
}

// printConnProfiles lists the profiles, or only the one called name if name
// is not empty.  It returns the number printed.
func printConnProfiles(w io.Writer, profiles []config.ConnProfile,
	name string) int {

	n := 0
	for _, cp := range profiles {
		if name != "" && cp.Name != name {
			continue
		}

		if n == 0 {
			fmt.Fprintf(w, "%-16s %-7s %s\n", "NAME", "TYPE", "CONNSTRING")
		}
		fmt.Fprintf(w, "%-16s %-7s %s\n", cp.Name, cp.Type.String(),
			cp.ConnString)
		n++
	}

	return n
}

func connProfileAddCmd(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		gmUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	cp, err := parseConnProfileVars(args[0], args[1:])
	if err != nil {
		gmUsage(cmd, err)
	}

	replaced, err := config.Profiles().Put(*cp)
	if err != nil {
		gmUsage(nil, err)
	}

	if replaced {
		fmt.Printf("Replaced connection profile %s\n", cp.Name)
	} else {
		fmt.Printf("Added connection profile %s\n", cp.Name)
	}
}

func connProfileShowCmd(cmd *cobra.Command, args []string) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	if printConnProfiles(os.Stdout, config.Profiles().List(), name) > 0 {
		return
	}

	if name == "" {
		fmt.Printf("No connection profiles; add one with \"%s conn add\"\n",
			gmutil.ToolInfo.ExeName)
	} else {
		fmt.Printf("No connection profile named %s\n", name)
	}
}

func connProfileDelCmd(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		gmUsage(cmd, util.NewNewtError("Need connection profile name"))
	}

	if err := config.Profiles().Delete(args[0]); err != nil {
		gmUsage(nil, err)
	}

	fmt.Printf("Deleted connection profile %s\n", args[0])
}

func connProfileCmd() *cobra.Command {
	exe := gmutil.ToolInfo.ExeName

	cpCmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage the transports gattmgr serves and connects over",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	cpCmd.AddCommand(&cobra.Command{
		Use:   "add <name> type=<serial|udp> connstring=<key=val,...>",
		Short: "Add or replace a connection profile",
		Example: "  " + exe + " conn add usb type=serial " +
			"connstring=\"dev=/dev/ttyUSB0,baud=115200\"\n" +
			"  " + exe + " conn add local type=udp " +
			"connstring=addr=127.0.0.1:5683",
		Run: connProfileAddCmd,
	})

	cpCmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a connection profile",
		Run:   connProfileDelCmd,
	})

	cpCmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "List connection profiles",
		Run:   connProfileShowCmd,
	})

	return cpCmd
}
