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

package blockstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAllocateNumbersSequentially(t *testing.T) {
	s := openTestStore(t)

	first, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	second, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second <= first {
		t.Fatalf("second allocation %d did not advance past first %d", second, first)
	}
}

func TestFreeThenAllocateReusesBlock(t *testing.T) {
	s := openTestStore(t)

	num, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	s.Free(num)

	reused, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	if reused != num {
		t.Fatalf("got block %d after free/allocate, want reused block %d", reused, num)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	s := openTestStore(t)

	num, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	data := bytes.Repeat([]byte{0xAB}, BlockSize)
	if err := s.WriteBlock(num, data); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got, err := s.ReadBlock(num)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back data differs from what was written")
	}
}

func TestWriteBlockRejectsWrongSize(t *testing.T) {
	s := openTestStore(t)

	num, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := s.WriteBlock(num, make([]byte, BlockSize-1)); err == nil {
		t.Fatalf("WriteBlock with short buffer succeeded, want error")
	}
}
