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
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/abiosoft/ishell.v2"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/attdir"
	. "mynewt.apache.org/gattmgr/gattsrv/bledefs"
	"mynewt.apache.org/gattmgr/gattsrv/gatm"
)

func extractKv(params []string) (map[string]string, error) {
	m := map[string]string{}

	for _, param := range params {
		parts := strings.SplitN(param, "=", 2)
		if len(parts) != 2 {
			return nil, util.FmtNewtError("invalid parameter: %s", param)
		}

		val := parts[1]
		if len(val) >= 2 && strings.HasPrefix(val, "\"") &&
			strings.HasSuffix(val, "\"") {

			val = val[1 : len(val)-1]
		}

		m[parts[0]] = val
	}

	return m, nil
}

type shellPrinter interface {
	Printf(format string, val ...interface{})
}

// shellResponder prints the server's responses.
type shellResponder struct {
	p shellPrinter
}

func (r *shellResponder) WriteResponse(reqId uint32) error {
	r.p.Printf("[req %d] write response\n", reqId)
	return nil
}

func (r *shellResponder) ReadResponse(reqId uint32, data []byte) error {
	r.p.Printf("[req %d] read response; %d bytes\n%s", reqId, len(data),
		hex.Dump(data))
	return nil
}

func (r *shellResponder) ErrorResponse(reqId uint32,
	status BleAttStatus) error {

	r.p.Printf("[req %d] error response: %s\n", reqId, status.String())
	return nil
}

// shellState is the in-process server plus the parameters remembered
// between commands.
type shellState struct {
	srv       *gatm.Server
	key       BleConnKey
	svcId     uint32
	attrOff   uint16
	nextReqId uint32
}

func newShellState(p shellPrinter) (*shellState, error) {
	dir := attdir.NewDir()
	if _, err := attdir.RegisterSampleSvcs(dir); err != nil {
		return nil, err
	}

	st := &shellState{
		srv:       gatm.NewServer(gatm.NewServerCfg(), dir, &shellResponder{p}),
		svcId:     1,
		attrOff:   1,
		nextReqId: 1,
	}

	st.key, _ = ParseBleConnKey("le", "01:02:03:04:05:06")
	return st, nil
}

func (st *shellState) reqId() uint32 {
	id := st.nextReqId
	st.nextReqId++
	if st.nextReqId == 0 {
		st.nextReqId = 1
	}
	return id
}

// update applies the connection and attribute parameters present in m.
func (st *shellState) update(m map[string]string) error {
	if m["addr"] != "" || m["type"] != "" {
		connType := BleConnTypeToString(st.key.Type)
		if m["type"] != "" {
			connType = m["type"]
		}
		addr := st.key.Addr.String()
		if m["addr"] != "" {
			addr = m["addr"]
		}

		key, err := ParseBleConnKey(connType, addr)
		if err != nil {
			return err
		}
		st.key = key
	}

	if v, ok := m["svc"]; ok {
		svcId, err := cast.ToUint32E(v)
		if err != nil {
			return util.FmtNewtError("invalid svc: %s", v)
		}
		st.svcId = svcId
	}

	if v, ok := m["attr"]; ok {
		attrOff, err := cast.ToUint16E(v)
		if err != nil {
			return util.FmtNewtError("invalid attr: %s", v)
		}
		st.attrOff = attrOff
	}

	return nil
}

func valOffArg(m map[string]string) (int, error) {
	v, ok := m["off"]
	if !ok {
		return 0, nil
	}

	off, err := cast.ToIntE(v)
	if err != nil || off < 0 {
		return 0, util.FmtNewtError("invalid off: %s", v)
	}
	return off, nil
}

func dataArg(m map[string]string) ([]byte, error) {
	if v, ok := m["hex"]; ok {
		b, err := hex.DecodeString(v)
		if err != nil {
			return nil, util.FmtNewtError("invalid hex: %s", v)
		}
		return b, nil
	}

	if v, ok := m["data"]; ok {
		return []byte(v), nil
	}

	return nil, util.NewNewtError("missing data= or hex=")
}

func boolArg(m map[string]string, key string, dflt bool) (bool, error) {
	v, ok := m[key]
	if !ok {
		return dflt, nil
	}

	b, err := cast.ToBoolE(v)
	if err != nil {
		return dflt, util.FmtNewtError("invalid %s: %s", key, v)
	}
	return b, nil
}

func (st *shellState) args(c *ishell.Context) (map[string]string, bool) {
	m, err := extractKv(c.Args)
	if err == nil {
		err = st.update(m)
	}
	if err != nil {
		c.Println("Error:", err)
		c.Println(c.HelpText())
		return nil, false
	}

	return m, true
}

func (st *shellState) connectCmd(c *ishell.Context) {
	if _, ok := st.args(c); ok {
		st.srv.HandleConnect(st.key)
	}
}

func (st *shellState) disconnectCmd(c *ishell.Context) {
	if _, ok := st.args(c); ok {
		st.srv.HandleDisconnect(st.key)
	}
}

func (st *shellState) prepCmd(c *ishell.Context) {
	m, ok := st.args(c)
	if !ok {
		return
	}

	valOff, err := valOffArg(m)
	if err != nil {
		c.Println("Error:", err)
		return
	}
	data, err := dataArg(m)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	st.srv.HandlePrepareWrite(st.key, st.svcId, st.attrOff, valOff,
		st.reqId(), data)
}

func (st *shellState) execCmd(c *ishell.Context) {
	m, ok := st.args(c)
	if !ok {
		return
	}

	commit, err := boolArg(m, "commit", true)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	if err := st.srv.HandleExecuteWrite(st.key, st.svcId, commit); err != nil {
		c.Println("Error:", err)
	}
}

func (st *shellState) readCmd(c *ishell.Context) {
	m, ok := st.args(c)
	if !ok {
		return
	}

	valOff, err := valOffArg(m)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	st.srv.HandleRead(st.key, st.svcId, st.attrOff, valOff, st.reqId())
}

func (st *shellState) writeCmd(c *ishell.Context) {
	m, ok := st.args(c)
	if !ok {
		return
	}

	data, err := dataArg(m)
	if err != nil {
		c.Println("Error:", err)
		return
	}
	rsp, err := boolArg(m, "rsp", true)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	var reqId uint32
	if rsp {
		reqId = st.reqId()
	}
	st.srv.HandleWrite(st.key, st.svcId, st.attrOff, reqId, data)
}

func (st *shellState) purgeCmd(c *ishell.Context) {
	m, ok := st.args(c)
	if !ok {
		return
	}

	var n int
	if m["addr"] != "" || m["type"] != "" {
		n = st.srv.PurgeConnection(st.key)
	} else {
		n = st.srv.PurgeAll()
	}
	c.Printf("Purged %d prepared writes\n", n)
}

func (st *shellState) queueCmd(c *ishell.Context) {
	snap := st.srv.Queue().Snapshot()
	if len(snap) == 0 {
		c.Println("Queue empty")
		return
	}

	for i, e := range snap {
		c.Printf("%2d: conn=%s svc=%d attr=%d off=%d len=%d/%d idle=%s\n",
			i, e.Key.String(), e.SvcId, e.AttrOff, e.ValOff, e.Len, e.MaxLen,
			e.Idle.Round(time.Millisecond).String())
	}
}

func (st *shellState) svcsCmd(c *ishell.Context) {
	var sb strings.Builder
	printSvcs(&sb, st.srv.Dir().Services())
	c.Print(sb.String())
}

func (st *shellState) valueCmd(c *ishell.Context) {
	if _, ok := st.args(c); !ok {
		return
	}

	a, err := st.srv.Dir().Lookup(st.svcId, st.attrOff)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	v := a.Value()
	c.Printf("svc=%d attr=%d len=%d/%d owned=%v\n%s",
		st.svcId, st.attrOff, len(v), a.MaxLen, a.Owned(), hex.Dump(v))
}

func startInteractive(cmd *cobra.Command, args []string) {
	// create new shell.
	// by default, new shell includes 'exit', 'help' and 'clear' commands.
	shell := ishell.New()
	shell.SetPrompt("> ")

	st, err := newShellState(shell)
	if err != nil {
		gmUsage(nil, util.ChildNewtError(err))
	}

	// display welcome info.
	shell.Println()
	shell.Println(" " + gmutil.ToolInfo.LongName + " shell mode:")
	shell.Println("	in-process GATT server with the sample services")
	shell.Println("	parameters are key=value; addr, type, svc and attr " +
		"are remembered")
	shell.Println()

	cmds := []*ishell.Cmd{
		{
			Name: "connect",
			Help: "Report a connection: connect addr=v [type=le]",
			Func: st.connectCmd,
		},
		{
			Name: "disconnect",
			Help: "Report a disconnect: disconnect [addr=v]",
			Func: st.disconnectCmd,
		},
		{
			Name: "prep",
			Help: "Prepare write: prep svc=v attr=v off=v data=v|hex=v",
			Func: st.prepCmd,
		},
		{
			Name: "exec",
			Help: "Execute write: exec svc=v [commit=false]",
			Func: st.execCmd,
		},
		{
			Name: "read",
			Help: "Read: read svc=v attr=v [off=v]",
			Func: st.readCmd,
		},
		{
			Name: "write",
			Help: "Write: write svc=v attr=v data=v|hex=v [rsp=false]",
			Func: st.writeCmd,
		},
		{
			Name: "purge",
			Help: "Drop prepared writes: purge [addr=v]",
			Func: st.purgeCmd,
		},
		{
			Name: "queue",
			Help: "Show the prepared write queue: queue",
			Func: st.queueCmd,
		},
		{
			Name: "svcs",
			Help: "List services: svcs",
			Func: st.svcsCmd,
		},
		{
			Name: "value",
			Help: "Show an attribute's stored value: value svc=v attr=v",
			Func: st.valueCmd,
		},
	}
	for _, c := range cmds {
		shell.AddCmd(c)
	}

	shell.Run()
	shell.Close()
}

func interactiveCmd() *cobra.Command {
	shellCmd := &cobra.Command{
		Use: "interactive",
		Short: "Run " + gmutil.ToolInfo.ShortName +
			" interactive mode against an in-process server",
		Run: startInteractive,
	}

	return shellCmd
}
