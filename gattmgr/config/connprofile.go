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
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/gmutil"
	"mynewt.apache.org/gattmgr/gattsrv/xport"
)

// ConnType selects the transport a GMP peer is reached over.
type ConnType int

const (
	CONN_TYPE_NONE ConnType = iota
	CONN_TYPE_SERIAL
	CONN_TYPE_UDP
)

var connTypeNames = [...]string{
	CONN_TYPE_NONE:   "",
	CONN_TYPE_SERIAL: "serial",
	CONN_TYPE_UDP:    "udp",
}

func (ct ConnType) String() string {
	if ct <= CONN_TYPE_NONE || int(ct) >= len(connTypeNames) {
		return "???"
	}
	return connTypeNames[ct]
}

func ConnTypeFromString(s string) (ConnType, error) {
	for i, name := range connTypeNames {
		if name != "" && name == s {
			return ConnType(i), nil
		}
	}

	return CONN_TYPE_NONE, util.FmtNewtError("Invalid connection type: %s", s)
}

func (ct ConnType) MarshalText() ([]byte, error) {
	return []byte(ct.String()), nil
}

// Unknown type names load as CONN_TYPE_NONE so that one stale profile does
// not prevent the rest from loading.
func (ct *ConnType) UnmarshalText(text []byte) error {
	t, err := ConnTypeFromString(string(text))
	if err != nil {
		log.Debugf("Ignoring connection type %q", string(text))
	}
	*ct = t
	return nil
}

// ConnProfile names a transport and the connection string that configures
// it.
type ConnProfile struct {
	Name       string   `json:"name"`
	Type       ConnType `json:"type"`
	ConnString string   `json:"connstring"`
}

func (p *ConnProfile) String() string {
	return fmt.Sprintf("name=%s type=%s connstring=%s",
		p.Name, p.Type.String(), p.ConnString)
}

// Validate checks that the profile has a type and that its connection
// string parses for that type.
func (p *ConnProfile) Validate() error {
	var err error
	switch p.Type {
	case CONN_TYPE_SERIAL:
		_, err = ParseSerialConnString(p.ConnString)
	case CONN_TYPE_UDP:
		_, err = ParseUdpConnString(p.ConnString)
	default:
		err = util.FmtNewtError("connection profile \"%s\" has no type",
			p.Name)
	}

	return err
}

// BuildXport creates, but does not start, the transport the profile
// describes.  server selects the listening end of a datagram link.
func (p *ConnProfile) BuildXport(server bool) (xport.Xport, error) {
	switch p.Type {
	case CONN_TYPE_SERIAL:
		sc, err := ParseSerialConnString(p.ConnString)
		if err != nil {
			return nil, err
		}
		return BuildSerialXport(sc), nil

	case CONN_TYPE_UDP:
		uc, err := ParseUdpConnString(p.ConnString)
		if err != nil {
			return nil, err
		}
		return BuildUdpXport(uc, server), nil

	default:
		return nil, util.FmtNewtError("Unknown connection type: %s (%d)",
			p.Type.String(), int(p.Type))
	}
}

// ProfileStore is the set of saved profiles, backed by one JSON file.
type ProfileStore struct {
	mtx      sync.Mutex
	filename string
	profiles map[string]ConnProfile
}

// OpenProfileStore loads the profiles saved in filename.  A missing file
// yields an empty store.
func OpenProfileStore(filename string) (*ProfileStore, error) {
	ps := &ProfileStore{
		filename: filename,
		profiles: map[string]ConnProfile{},
	}

	log.Debugf("Reading connection profiles from %s", filename)
	blob, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		return ps, nil
	}
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	var list []ConnProfile
	if err := json.Unmarshal(blob, &list); err != nil {
		return nil, util.FmtNewtError("error reading connection profiles "+
			"(%s): %s", filename, err.Error())
	}
	for _, p := range list {
		ps.profiles[p.Name] = p
	}

	return ps, nil
}

func (ps *ProfileStore) list() []ConnProfile {
	list := make([]ConnProfile, 0, len(ps.profiles))
	for _, p := range ps.profiles {
		list = append(list, p)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// List returns copies of every profile, sorted by name.
func (ps *ProfileStore) List() []ConnProfile {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	return ps.list()
}

// save rewrites the file through a temporary so a failed write leaves the
// old profiles intact.
func (ps *ProfileStore) save() error {
	b, err := json.MarshalIndent(ps.list(), "", "    ")
	if err != nil {
		return util.ChildNewtError(err)
	}

	tmp := ps.filename + ".tmp"
	if err := ioutil.WriteFile(tmp, b, 0644); err != nil {
		return util.ChildNewtError(err)
	}
	if err := os.Rename(tmp, ps.filename); err != nil {
		os.Remove(tmp)
		return util.ChildNewtError(err)
	}

	return nil
}

func (ps *ProfileStore) Get(name string) (*ConnProfile, error) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	p, ok := ps.profiles[name]
	if !ok {
		return nil, util.FmtNewtError("connection profile \"%s\" doesn't "+
			"exist", name)
	}

	return &p, nil
}

// Put validates and saves the profile, replacing any of the same name.  It
// reports whether an existing profile was replaced.
func (ps *ProfileStore) Put(p ConnProfile) (bool, error) {
	if p.Name == "" {
		return false, util.NewNewtError("connection profile has no name")
	}
	if err := p.Validate(); err != nil {
		return false, err
	}

	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	old, replaced := ps.profiles[p.Name]
	ps.profiles[p.Name] = p
	if err := ps.save(); err != nil {
		if replaced {
			ps.profiles[p.Name] = old
		} else {
			delete(ps.profiles, p.Name)
		}
		return false, err
	}

	return replaced, nil
}

func (ps *ProfileStore) Delete(name string) error {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	old, ok := ps.profiles[name]
	if !ok {
		return util.FmtNewtError("connection profile \"%s\" doesn't exist",
			name)
	}

	delete(ps.profiles, name)
	if err := ps.save(); err != nil {
		ps.profiles[name] = old
		return err
	}

	return nil
}

var globalProfiles *ProfileStore

// Profiles returns the store opened by InitProfiles.
func Profiles() *ProfileStore {
	if globalProfiles == nil {
		panic("connection profiles not loaded")
	}
	return globalProfiles
}

// InitProfiles opens the profile file in the user's home directory.
func InitProfiles() error {
	dir, err := homedir.Dir()
	if err != nil {
		return util.ChildNewtError(err)
	}

	ps, err := OpenProfileStore(filepath.Join(dir, gmutil.ToolInfo.ProfileFile))
	if err != nil {
		return err
	}

	globalProfiles = ps
	return nil
}
