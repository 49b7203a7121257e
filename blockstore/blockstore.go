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

// Package blockstore implements the physical block allocator that the
// version tree's copy-on-write writer allocates from. Physical blocks are
// fixed-size regions of a single backing file, grown with a real
// fallocate(2) call rather than simulated in memory, so the COW writer
// exercises genuine preallocation and ENOSPC behavior.
package blockstore

import (
	"fmt"
	"os"
	"sync"

	"github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// BlockSize is the fixed physical block size, matching the ext3 default
// this module was distilled from.
const BlockSize = 4096

// maxBlocks is the largest block number representable once the producer
// bit is masked off a 32-bit block pointer.
const maxBlocks = 1<<31 - 1

// Store is a file-backed block allocator: block N lives at byte offset
// N*BlockSize of the backing file. A freelist of reclaimed block numbers is
// consulted before the file is grown.
type Store struct {
	mu        sync.Mutex
	file      *os.File
	nextBlock uint32 // first never-yet-allocated block number
	free      []uint32
}

// Open opens (creating if necessary) the backing file at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open %s: %w", path, err)
	}
	return &Store{file: f, nextBlock: 1}, nil
}

// Close releases the backing file.
func (s *Store) Close() error {
	return s.file.Close()
}

// Allocate reserves a fresh physical block number and grows the backing
// file to cover it via fallocate(2), returning ErrNoSpace if the
// preallocation fails (the filesystem is full or the device rejects the
// call).
func (s *Store) Allocate() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var num uint32
	if n := len(s.free); n > 0 {
		num = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		if s.nextBlock > maxBlocks {
			return 0, ErrNoSpace
		}
		num = s.nextBlock
		s.nextBlock++
	}

	offset := int64(num) * BlockSize
	if err := fallocate.Fallocate(s.file, offset, BlockSize); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoSpace, err)
	}
	return num, nil
}

// Free returns a block to the freelist for reuse. It does not shrink the
// backing file; physical space is reclaimed only by a later Allocate.
func (s *Store) Free(num uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.free = append(s.free, num)
}

// ReadBlock reads the full contents of physical block num via a positioned
// pread(2), so concurrent readers never need to share (and serialize on) a
// single file offset the way ReadAt's generic io.ReaderAt contract would
// otherwise tempt a caller into assuming.
func (s *Store) ReadBlock(num uint32) ([]byte, error) {
	buf := make([]byte, BlockSize)
	off := int64(num) * BlockSize
	for read := 0; read < BlockSize; {
		n, err := unix.Pread(int(s.file.Fd()), buf[read:], off+int64(read))
		if err != nil {
			return nil, fmt.Errorf("blockstore: read block %d: %w", num, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("blockstore: read block %d: short read at %d bytes", num, read)
		}
		read += n
	}
	return buf, nil
}

// WriteBlock overwrites the full contents of physical block num via a
// positioned pwrite(2). len(data) must equal BlockSize.
func (s *Store) WriteBlock(num uint32, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("blockstore: write block %d: got %d bytes, want %d", num, len(data), BlockSize)
	}
	off := int64(num) * BlockSize
	for written := 0; written < BlockSize; {
		n, err := unix.Pwrite(int(s.file.Fd()), data[written:], off+int64(written))
		if err != nil {
			return fmt.Errorf("blockstore: write block %d: %w", num, err)
		}
		if n == 0 {
			return fmt.Errorf("blockstore: write block %d: short write at %d bytes", num, written)
		}
		written += n
	}
	return nil
}

// ErrNoSpace is returned by Allocate when the backing file cannot be grown
// any further.
var ErrNoSpace = fmt.Errorf("blockstore: no space")
