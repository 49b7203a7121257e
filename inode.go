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

import (
	"encoding/binary"
	"os"
	"time"
)

// InodeID uniquely identifies a file or directory in the file system. File
// systems may mint inode IDs with any value except for RootInodeID.
type InodeID uint64

// Generation distinguishes successive incarnations of an inode ID: a link
// is only valid if its stored generation matches the current generation of
// the inode it names.
type Generation uint64

// NilIno is the ino+gen pair meaning "no link": e.g. a root version's
// ParentRef, or a childless version's ChildRef.
var NilIno = Ino{}

// Ino is an (ino, gen) pair used in place of raw pointers for every
// version-tree link: links are resolved through an arena/table of inodes
// keyed by ino with generation verification, rather than followed as raw
// aliased references, since version trees are cyclic and nodes are freed
// and reused.
type Ino struct {
	ID  InodeID
	Gen Generation
}

// IsNil reports whether this ino+gen pair denotes "no link" (ino 0).
func (r Ino) IsNil() bool {
	return r.ID == 0
}

// producerBit is the high bit (bit 31) of a direct block pointer: set means
// this version produced (allocated) the block; clear means this version
// shares it from an ancestor.
const producerBit = uint32(1) << 31

// blockNumberMask masks off the producer bit, leaving the 31-bit physical
// block number that is safe to pass to the allocator layer.
const blockNumberMask = producerBit - 1

// BlockPtr is a single 32-bit on-disk direct block pointer: the high bit is
// the producer flag, the low 31 bits are the physical block number.
type BlockPtr uint32

// NewBlockPtr packs a physical block number and producer flag into a
// BlockPtr. It panics if num doesn't fit in 31 bits, mirroring the kernel
// module's BUG_ON on an out-of-range allocator result.
func NewBlockPtr(num uint32, producer bool) BlockPtr {
	if num&producerBit != 0 {
		panic("yuiha: physical block number does not fit in 31 bits")
	}
	if producer {
		return BlockPtr(num | producerBit)
	}
	return BlockPtr(num)
}

// Number returns the masked 31-bit physical block number, safe to hand to
// the block allocator.
func (b BlockPtr) Number() uint32 {
	return uint32(b) & blockNumberMask
}

// IsProducer reports whether this version allocated (produced) the block,
// as opposed to merely sharing an ancestor's block.
func (b BlockPtr) IsProducer() bool {
	return uint32(b)&producerBit != 0
}

// WithProducer returns a copy of b with the producer bit set to producer.
func (b BlockPtr) WithProducer(producer bool) BlockPtr {
	return NewBlockPtr(b.Number(), producer)
}

// IsHole reports whether this pointer names no physical block at all (a
// sparse region of the file).
func (b BlockPtr) IsHole() bool {
	return b.Number() == 0 && !b.IsProducer()
}

// onDiskExtSize is the byte size of the on-disk inode extension.
const onDiskExtSize = 44

// Attributes mirrors the base filesystem inode fields that CreateSnapshot
// deep-copies: mode, size, time, ownership.
type Attributes struct {
	Size  uint64
	Mode  os.FileMode
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Inode is the versioned extension of a base filesystem inode. The version
// tree and snapshot operations mutate it exclusively through journaled
// operations; the accessors below expose its parent/child links directly.
type Inode struct {
	Self Ino

	// Version-tree links. ParentRef.ID == 0 marks the root of the tree.
	ParentRef Ino
	ChildRef  Ino // first (oldest) direct child, nil if none
	SibPrev   Ino
	SibNext   Ino

	// VTime is the version creation timestamp, distinct from Attrs.Mtime.
	VTime time.Time

	// VTreeNlink is valid only on the root of a version tree: the number of
	// directory entries that transitively pin any node of the tree.
	VTreeNlink uint32

	// Phantom is set when the inode has been unlinked from its directory
	// but remains reachable through the version graph.
	Phantom bool

	Attrs  Attributes
	Blocks []BlockPtr

	// parentHandle is the in-memory-only cached reference to the parent
	// inode while the file is open. It is released on last close; see
	// ReleaseParentHandle.
	parentHandle *Inode
}

// EncodeExt serializes the on-disk inode extension in little-endian byte
// order.
func (in *Inode) EncodeExt() []byte {
	buf := make([]byte, onDiskExtSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(in.ParentRef.ID))
	le.PutUint32(buf[4:8], uint32(in.ParentRef.Gen))
	le.PutUint32(buf[8:12], uint32(in.ChildRef.ID))
	le.PutUint32(buf[12:16], uint32(in.ChildRef.Gen))
	le.PutUint32(buf[16:20], uint32(in.SibPrev.ID))
	le.PutUint32(buf[20:24], uint32(in.SibPrev.Gen))
	le.PutUint32(buf[24:28], uint32(in.SibNext.ID))
	le.PutUint32(buf[28:32], uint32(in.SibNext.Gen))
	le.PutUint32(buf[32:36], uint32(in.VTime.Unix()))
	le.PutUint32(buf[36:40], uint32(in.VTime.Nanosecond()))
	le.PutUint32(buf[40:44], in.VTreeNlink)
	return buf
}

// DecodeExt populates in's version-tree fields from the on-disk extension
// layout. It does not touch Self, Attrs or Blocks.
func (in *Inode) DecodeExt(buf []byte) {
	if len(buf) < onDiskExtSize {
		panic("yuiha: short inode extension buffer")
	}
	le := binary.LittleEndian
	in.ParentRef = Ino{InodeID(le.Uint32(buf[0:4])), Generation(le.Uint32(buf[4:8]))}
	in.ChildRef = Ino{InodeID(le.Uint32(buf[8:12])), Generation(le.Uint32(buf[12:16]))}
	in.SibPrev = Ino{InodeID(le.Uint32(buf[16:20])), Generation(le.Uint32(buf[20:24]))}
	in.SibNext = Ino{InodeID(le.Uint32(buf[24:28])), Generation(le.Uint32(buf[28:32]))}
	sec := int64(le.Uint32(buf[32:36]))
	nsec := int64(le.Uint32(buf[36:40]))
	in.VTime = time.Unix(sec, nsec).UTC()
	in.VTreeNlink = le.Uint32(buf[40:44])
}

// IsRoot reports whether in is the root of its version tree.
func (in *Inode) IsRoot() bool {
	return in.ParentRef.IsNil()
}

// HasChild reports whether in has at least one direct child.
func (in *Inode) HasChild() bool {
	return !in.ChildRef.IsNil()
}

// SelfLooped reports whether in is the only member of its own sibling ring.
func (in *Inode) SelfLooped() bool {
	return in.SibNext == in.Self && in.SibPrev == in.Self
}
