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

// Package journal models the write-ahead journal the version-tree package
// mutates through. Every version-tree mutation runs inside a Handle:
// either every dirtied inode and every op record in the transaction
// reaches disk, or none of it does.
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// OpKind tags a single journal record.
type OpKind uint8

const (
	// OpDirty records that an inode's in-memory state changed and must be
	// written back as part of this transaction.
	OpDirty OpKind = iota

	// OpTransferOwnership is recorded once for each block the COW writer
	// produces, before the inode's block pointer is rewritten to it.
	OpTransferOwnership
)

// Record is one entry of a committed transaction.
type Record struct {
	Kind  OpKind
	Inode uint64
	Block uint32
}

// Handle represents one open journal transaction: callers Start one, mark
// dirty inodes and ownership transfers as they mutate the tree, then
// Commit or Abort it as a unit.
//
// A Handle is not safe for concurrent use; the caller's own per-inode/
// per-tree locking discipline is what serializes the mutators that share
// one.
type Handle struct {
	j       *Journal
	records []Record
	done    bool
}

// MarkDirty records that inode id was mutated during this transaction. It
// satisfies the dirtyMarker interface used throughout the root package.
func (h *Handle) MarkDirty(id uint64) {
	h.records = append(h.records, Record{Kind: OpDirty, Inode: id})
}

// TransferOwnership records that the physical block moved from a
// consumer's pointer to a producer's. It must be staged before the
// child's block pointer is rewritten, so a crash can't leave the parent
// pointing at freed space.
func (h *Handle) TransferOwnership(inode uint64, block uint32) {
	h.records = append(h.records, Record{Kind: OpTransferOwnership, Inode: inode, Block: block})
}

// Commit appends the transaction's records to the journal's backing file
// and fsyncs it, making the transaction durable. Once Commit returns nil,
// every mutation the caller made under this handle is considered to have
// happened atomically.
func (h *Handle) Commit() error {
	if h.done {
		return fmt.Errorf("journal: handle already closed")
	}
	h.done = true
	return h.j.append(h.records)
}

// Abort discards the transaction. The in-memory mutations the caller made
// under this handle must be undone by the caller; Abort itself only
// prevents the records from ever reaching disk.
func (h *Handle) Abort() {
	h.done = true
}

// Journal is a minimal write-ahead log: committed transactions are appended
// to a single backing file as a sequence of length-prefixed record batches,
// which Replay reads back in order. This gives the yuiha package's
// KindJournalAbort error concrete on-disk meaning without pulling in a
// full database engine.
type Journal struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the journal backing file at path.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{file: f}, nil
}

// Close releases the journal's backing file.
func (j *Journal) Close() error {
	return j.file.Close()
}

// Start begins a new transaction.
func (j *Journal) Start() *Handle {
	return &Handle{j: j}
}

func (j *Journal) append(records []Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	buf := make([]byte, 0, 4+len(records)*13)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(records)))
	buf = append(buf, countBuf[:]...)

	for _, r := range records {
		var rec [13]byte
		rec[0] = byte(r.Kind)
		binary.LittleEndian.PutUint64(rec[1:9], r.Inode)
		binary.LittleEndian.PutUint32(rec[9:13], r.Block)
		buf = append(buf, rec[:]...)
	}

	if _, err := j.file.Write(buf); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return j.file.Sync()
}

// Replay reads every committed transaction back in commit order, invoking
// fn once per record. A missing file yields no records and no error. Replay
// only delivers the records; whatever state is derived from them is up to
// fn.
func Replay(path string, fn func(Record)) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("journal: replay open: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var countBuf [4]byte
		if _, err := fullRead(r, countBuf[:]); err != nil {
			break
		}
		count := binary.LittleEndian.Uint32(countBuf[:])

		for i := uint32(0); i < count; i++ {
			var rec [13]byte
			if _, err := fullRead(r, rec[:]); err != nil {
				return fmt.Errorf("journal: truncated transaction: %w", err)
			}
			fn(Record{
				Kind:  OpKind(rec[0]),
				Inode: binary.LittleEndian.Uint64(rec[1:9]),
				Block: binary.LittleEndian.Uint32(rec[9:13]),
			})
		}
	}
	return nil
}

func fullRead(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
