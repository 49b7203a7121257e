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

package journal

import (
	"path/filepath"
	"testing"
)

func TestCommitPersistsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	h := j.Start()
	h.MarkDirty(42)
	h.TransferOwnership(42, 7)
	if err := h.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []Record
	if err := Replay(path, func(r Record) { got = append(got, r) }); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	want := []Record{
		{Kind: OpDirty, Inode: 42},
		{Kind: OpTransferOwnership, Inode: 42, Block: 7},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAbortDiscardsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	h := j.Start()
	h.MarkDirty(1)
	h.Abort()

	var got []Record
	if err := Replay(path, func(r Record) { got = append(got, r) }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d records after Abort, want 0", len(got))
	}
}

func TestCommitTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	h := j.Start()
	h.MarkDirty(1)
	if err := h.Commit(); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := h.Commit(); err == nil {
		t.Fatalf("second Commit succeeded, want error")
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	var n int
	if err := Replay(path, func(Record) { n++ }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 0 {
		t.Fatalf("got %d records, want 0", n)
	}
}

func TestReplayOrdersAcrossMultipleTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, id := range []uint64{1, 2, 3} {
		h := j.Start()
		h.MarkDirty(id)
		if err := h.Commit(); err != nil {
			t.Fatalf("Commit %d: %v", id, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []uint64
	if err := Replay(path, func(r Record) { got = append(got, r.Inode) }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []uint64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
