// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fsserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	yuiha "github.com/higuruchi/yuiha-kmod"
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/net/netutil"
)

// maxControlConns bounds how many control connections ServeControl serves
// at once. The control socket guards the same fs.mu every FUSE op goroutine
// takes, so an unbounded number of slow or stalled clients could otherwise
// starve the mount itself; a handful of concurrent debug/control sessions
// is all this is meant to support.
const maxControlConns = 16

// controlCommands maps the line-oriented command name a control connection
// sends to the ControlOp it invokes.
var controlCommands = map[string]yuiha.ControlOp{
	"DELETE_VERSION": yuiha.OpDeleteVersion,
	"VLINK":          yuiha.OpVLink,
}

// ServeControl accepts connections on ln and serves line-oriented control
// commands against the mounted version tree: TREE, and the two
// ControlOps (DELETE_VERSION, VLINK) that an O_VSEARCH-addressed ioctl
// surface would carry but a plain FUSE op has no equivalent slot for
// (OpenFileOp carries neither a version-inode-number field nor a
// destination path, and fuseutil.FileSystem has no Link op of its own). It
// blocks until ln is closed.
func (fs *FileSystem) ServeControl(ln net.Listener) error {
	ln = netutil.LimitListener(ln, maxControlConns)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go fs.handleControlConn(conn)
	}
}

func (fs *FileSystem) handleControlConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fmt.Fprint(conn, fs.handleControlCommand(line))
	}
}

func (fs *FileSystem) handleControlCommand(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command\n"
	}

	if fields[0] == "TREE" {
		if len(fields) != 2 {
			return "ERR usage: TREE <ino>\n"
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return "ERR bad inode id\n"
		}
		return fs.debugTree(yuiha.InodeID(id))
	}

	op, ok := controlCommands[fields[0]]
	if !ok {
		return "ERR unknown command\n"
	}

	switch op {
	case yuiha.OpDeleteVersion:
		if len(fields) != 2 {
			return "ERR usage: DELETE_VERSION <ino>\n"
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return "ERR bad inode id\n"
		}
		return fs.deleteVersion(yuiha.InodeID(id))

	case yuiha.OpVLink:
		if len(fields) != 4 {
			return "ERR usage: VLINK <ino> <dir-ino> <name>\n"
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return "ERR bad inode id\n"
		}
		dirID, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return "ERR bad directory inode id\n"
		}
		return fs.vlink(yuiha.InodeID(id), fuseops.InodeID(dirID), fields[3])

	default:
		return "ERR unknown command\n"
	}
}

// debugTree renders id's version tree: every inode reachable by tracing to
// the root and walking down through ChildRef/sibling rings, one line each,
// naming parent/child/sibling links and each block pointer's producer bit.
// This is the yuihafs debug tree subcommand's rendering, the Go-idiomatic
// analogue of the original module's directory-entry dump experiments.
func (fs *FileSystem) debugTree(id yuiha.InodeID) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.store.Lookup(id)
	if in == nil {
		return fmt.Sprintf("ERR no such inode %d\n", id)
	}

	root, err := yuiha.TraceRoot(fs.store, in)
	if err != nil {
		return fmt.Sprintf("ERR %v\n", err)
	}

	var b strings.Builder
	fs.renderSubtree(&b, root, 0)
	return b.String()
}

func (fs *FileSystem) renderSubtree(w io.Writer, head *yuiha.Inode, depth int) {
	members, err := yuiha.Walk(fs.store, head)
	if err != nil {
		fmt.Fprintf(w, "%sERR %v\n", strings.Repeat("  ", depth), err)
		return
	}

	for _, m := range members {
		var blocks strings.Builder
		for i, ptr := range m.Blocks {
			if i > 0 {
				blocks.WriteByte(' ')
			}
			if ptr.IsHole() {
				blocks.WriteString("-")
			} else if ptr.IsProducer() {
				fmt.Fprintf(&blocks, "P%d", ptr.Number())
			} else {
				fmt.Fprintf(&blocks, "s%d", ptr.Number())
			}
		}

		fmt.Fprintf(w, "%sino=%d gen=%d vtree_nlink=%d phantom=%v blocks=[%s]\n",
			strings.Repeat("  ", depth), m.Self.ID, m.Self.Gen, m.VTreeNlink, m.Phantom, blocks.String())

		if m.HasChild() {
			if child, err := fs.store.Resolve(m.ChildRef); err == nil && child != nil {
				fs.renderSubtree(w, child, depth+1)
			}
		}
	}
}

// deleteVersion implements OpDeleteVersion: detach the named version from
// its tree, permitted only when it has a parent.
func (fs *FileSystem) deleteVersion(id yuiha.InodeID) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.store.Lookup(id)
	if in == nil {
		return fmt.Sprintf("ERR no such inode %d\n", id)
	}
	if in.IsRoot() {
		return "ERR cannot delete the root version\n"
	}

	jh := fs.journal.Start()
	if err := yuiha.Detach(jh, fs.store, in); err != nil {
		jh.Abort()
		return fmt.Sprintf("ERR %v\n", err)
	}
	if err := jh.Commit(); err != nil {
		return fmt.Sprintf("ERR %v\n", err)
	}

	if !in.HasChild() {
		jh2 := fs.journal.Start()
		fs.orphans.MarkPhantom(jh2, in)
		if err := jh2.Commit(); err != nil {
			return fmt.Sprintf("ERR %v\n", err)
		}
	}
	return "OK\n"
}

// vlink implements OpVLink: add a second directory entry under dirID naming
// the already-existing version-tree inode id, the way a plain hard link
// adds a second name for one inode. Unlike CreateFile's call to yuiha.Link
// (which seeds a brand new tree's initial VTreeNlink of 1), this call bumps
// the count on a tree that is already referenced, since a second name now
// exists for it.
func (fs *FileSystem) vlink(id yuiha.InodeID, dirID fuseops.InodeID, name string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, ok := fs.dirs[dirID]
	if !ok {
		return fmt.Sprintf("ERR no such directory %d\n", dirID)
	}
	if _, exists := dir.entries[name]; exists {
		return "ERR name already exists\n"
	}
	in := fs.store.Lookup(id)
	if in == nil {
		return fmt.Sprintf("ERR no such inode %d\n", id)
	}

	jh := fs.journal.Start()
	if err := yuiha.Link(jh, fs.store, in); err != nil {
		jh.Abort()
		return fmt.Sprintf("ERR %v\n", err)
	}
	if err := jh.Commit(); err != nil {
		return fmt.Sprintf("ERR %v\n", err)
	}

	dir.entries[name] = dirEntry{id: fuseops.InodeID(id), kind: kindFile}
	dir.attrs.Mtime = fs.clock.Now()
	return "OK\n"
}
