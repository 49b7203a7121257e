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

package yuiha

// OpenIntent holds the three mutually composable version-open bits, on top
// of the standard POSIX open(2) flags.
type OpenIntent uint32

const (
	// OVersion: on opening a regular file for write, create a snapshot of
	// the current contents first; the writer then modifies the new leaf.
	OVersion OpenIntent = 0o20000000

	// OParent: open the parent version of the named file. If combined with
	// write access, snapshot first, then open the snapshot.
	OParent OpenIntent = 0o40000000

	// OVSearch: interpret the "create mode" field of the open intent as a
	// version inode number; open that specific version. With write access,
	// snapshot that version first.
	OVSearch OpenIntent = 0o200000000
)

// Has reports whether the intent bit b is set in i.
func (i OpenIntent) Has(b OpenIntent) bool {
	return i&b != 0
}

// DirentType identifies the kind of pseudo-entry the version directory
// reader emits when a versioned file is read as if it were a directory.
type DirentType uint32

const (
	// DTParent marks the entry naming the parent version.
	DTParent DirentType = 0o20

	// DTChild marks an entry naming a direct child version.
	DTChild DirentType = 0o40

	// DTVRoot is OR'd into DTParent when the parent being named is itself
	// the root of the version tree.
	DTVRoot DirentType = 0o100
)

// ControlOp identifies an ioctl-style control operation.
type ControlOp int

const (
	// OpDeleteVersion detaches the version underlying the open file. Only
	// permitted if the file has a parent.
	OpDeleteVersion ControlOp = iota

	// OpVLink creates a hard link to the specific version identified by the
	// open file descriptor, using the versioned dentry hash on the
	// destination path.
	OpVLink
)
