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
	"encoding/hex"
	"fmt"
	"io/ioutil"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gmp"
)

var gattAddr string
var gattAddrType string
var gattHex bool

var execCancel bool
var writeNoRsp bool
var writeSigned bool
var writeLongFile string
var writeLongChunk int

func gattKey() (BleConnKey, error) {
	key, err := ParseBleConnKey(gattAddrType, gattAddr)
	if err != nil {
		return key, util.ChildNewtError(err)
	}
	return key, nil
}

func parseSvcAttr(args []string) (uint32, uint16, error) {
	svcId, err := cast.ToUint32E(args[0])
	if err != nil {
		return 0, 0, util.FmtNewtError("Invalid service id: %s", args[0])
	}

	attrOff, err := cast.ToUint16E(args[1])
	if err != nil {
		return 0, 0, util.FmtNewtError("Invalid attribute offset: %s", args[1])
	}

	return svcId, attrOff, nil
}

func parseValOff(s string) (int, error) {
	off, err := cast.ToIntE(s)
	if err != nil || off < 0 {
		return 0, util.FmtNewtError("Invalid value offset: %s", s)
	}
	return off, nil
}

func parseValue(s string) ([]byte, error) {
	if !gattHex {
		return []byte(s), nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, util.FmtNewtError("Invalid hex value: %s", s)
	}
	return b, nil
}

// gattSetup performs the steps common to every gatt subcommand.
func gattSetup(cmd *cobra.Command, args []string,
	minArgs int) (*gmp.Client, BleConnKey) {

	if len(args) < minArgs {
		gmUsage(cmd, nil)
	}

	key, err := gattKey()
	if err != nil {
		gmUsage(cmd, err)
	}

	c, err := GetClient()
	if err != nil {
		gmUsage(nil, err)
	}

	return c, key
}

func gattConnectCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 0)
	if err := c.Connect(key); err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}
}

func gattDisconnectCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 0)
	if err := c.Disconnect(key); err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}
}

func gattPrepCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 4)

	svcId, attrOff, err := parseSvcAttr(args)
	if err != nil {
		gmUsage(cmd, err)
	}
	valOff, err := parseValOff(args[2])
	if err != nil {
		gmUsage(cmd, err)
	}
	val, err := parseValue(args[3])
	if err != nil {
		gmUsage(cmd, err)
	}

	err = c.PrepWrite(key, svcId, attrOff, valOff, val, gmutil.Req)
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("Prepared %d bytes at offset %d\n", len(val), valOff)
}

func gattExecCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 1)

	svcId, err := cast.ToUint32E(args[0])
	if err != nil {
		gmUsage(cmd, util.FmtNewtError("Invalid service id: %s", args[0]))
	}

	err = c.ExecWrite(key, svcId, !execCancel, gmutil.Req)
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	if execCancel {
		fmt.Printf("Prepared writes cancelled\n")
	} else {
		fmt.Printf("Prepared writes committed\n")
	}
}

func gattReadCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 2)

	svcId, attrOff, err := parseSvcAttr(args)
	if err != nil {
		gmUsage(cmd, err)
	}

	valOff := 0
	if len(args) > 2 {
		if valOff, err = parseValOff(args[2]); err != nil {
			gmUsage(cmd, err)
		}
	}

	val, err := c.Read(key, svcId, attrOff, valOff, gmutil.Req)
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	if gattHex {
		fmt.Printf("%s\n", hex.EncodeToString(val))
	} else {
		fmt.Printf("%d bytes:\n%s", len(val), hex.Dump(val))
	}
}

func gattWriteCmd(cmd *cobra.Command, args []string) {
	c, key := gattSetup(cmd, args, 3)

	svcId, attrOff, err := parseSvcAttr(args)
	if err != nil {
		gmUsage(cmd, err)
	}
	val, err := parseValue(args[2])
	if err != nil {
		gmUsage(cmd, err)
	}

	switch {
	case writeSigned:
		err = c.SignedWrite(key, svcId, attrOff, val)
	case writeNoRsp:
		err = c.WriteCmd(key, svcId, attrOff, val)
	default:
		err = c.Write(key, svcId, attrOff, val, gmutil.Req)
	}
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}
}

func gattWriteLongCmd(cmd *cobra.Command, args []string) {
	minArgs := 3
	if writeLongFile != "" {
		minArgs = 2
	}
	c, key := gattSetup(cmd, args, minArgs)

	svcId, attrOff, err := parseSvcAttr(args)
	if err != nil {
		gmUsage(cmd, err)
	}

	var val []byte
	if writeLongFile != "" {
		val, err = ioutil.ReadFile(writeLongFile)
		if err != nil {
			gmUsage(cmd, util.NewNewtError(err.Error()))
		}
	} else {
		if val, err = parseValue(args[2]); err != nil {
			gmUsage(cmd, err)
		}
	}

	bar := pb.StartNew(len(val))
	bar.SetUnits(pb.U_BYTES)

	err = c.WriteLong(key, svcId, attrOff, val, writeLongChunk,
		gmutil.Req, func(done int) { bar.Set(done) })
	bar.Finish()

	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("Done\n")
}

func gattCmd() *cobra.Command {
	gattCmd := &cobra.Command{
		Use:   "gatt",
		Short: "Send GATT requests to a running " + gmutil.ToolInfo.ShortName,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	gattCmd.PersistentFlags().StringVarP(&gattAddr, "addr", "a",
		"01:02:03:04:05:06", "peer address to send requests as")
	gattCmd.PersistentFlags().StringVar(&gattAddrType, "addrtype", "le",
		"connection type of the peer (le or br_edr)")
	gattCmd.PersistentFlags().BoolVarP(&gattHex, "hex", "x", false,
		"values are hex strings")

	gattCmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Report a connection from the peer",
		Run:   gattConnectCmd,
	})

	gattCmd.AddCommand(&cobra.Command{
		Use:   "disconnect",
		Short: "Report a disconnect; drops the peer's prepared writes",
		Run:   gattDisconnectCmd,
	})

	gattCmd.AddCommand(&cobra.Command{
		Use:     "prep <svc-id> <attr-off> <val-off> <value>",
		Short:   "Queue a prepared write",
		Example: "  " + gmutil.ToolInfo.ExeName + " gatt prep 1 3 0 hello",
		Run:     gattPrepCmd,
	})

	execCmd := &cobra.Command{
		Use:   "exec <svc-id>",
		Short: "Commit (or cancel) the peer's prepared writes to a service",
		Run:   gattExecCmd,
	}
	execCmd.Flags().BoolVar(&execCancel, "cancel", false,
		"discard the prepared writes instead of committing them")
	gattCmd.AddCommand(execCmd)

	gattCmd.AddCommand(&cobra.Command{
		Use:   "read <svc-id> <attr-off> [val-off]",
		Short: "Read an attribute value",
		Run:   gattReadCmd,
	})

	writeCmd := &cobra.Command{
		Use:   "write <svc-id> <attr-off> <value>",
		Short: "Write an attribute value",
		Run:   gattWriteCmd,
	}
	writeCmd.Flags().BoolVar(&writeNoRsp, "no-rsp", false,
		"send a write command; no response")
	writeCmd.Flags().BoolVar(&writeSigned, "signed", false,
		"send a signed write command")
	gattCmd.AddCommand(writeCmd)

	writeLongCmd := &cobra.Command{
		Use:   "write-long <svc-id> <attr-off> [value]",
		Short: "Write a long value as a series of prepared writes",
		Run:   gattWriteLongCmd,
	}
	writeLongCmd.Flags().StringVarP(&writeLongFile, "file", "f", "",
		"read the value from a file")
	writeLongCmd.Flags().IntVar(&writeLongChunk, "chunk",
		BLE_ATT_MTU_DFLT-BLE_ATT_PREP_WRITE_OVERHEAD,
		"bytes per prepared write")
	gattCmd.AddCommand(writeLongCmd)

	return gattCmd
}
