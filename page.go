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

// This file models the per-block buffer-head bookkeeping a FUSE filesystem
// needs in place of the kernel's page cache: one Page per logical block of
// an open file, tracking the shared/dirty/uptodate bits the COW writer
// tests and clears.

// Page is the in-memory image of one logical block of a file, addressed by
// its index within the file rather than by page-cache offset (there is no
// kernel page cache to hook into from FUSE).
type Page struct {
	Index uint64

	// Shared is true when the block this page maps to is still the one
	// physically owned by an ancestor version, so the first write to it
	// must copy-on-write.
	Shared bool

	// Dirty means the in-memory contents differ from the on-disk block this
	// page maps to.
	Dirty bool

	// Uptodate means Data holds the full, current contents of the block.
	Uptodate bool

	Data []byte
}

// NewPage returns a page for logical block index, initially holding
// blockSize zero bytes and marked neither dirty nor uptodate.
func NewPage(index uint64, blockSize int) *Page {
	return &Page{Index: index, Data: make([]byte, blockSize)}
}

// MarkShared sets p's Shared bit, as CreateSnapshot does for every live page
// of a file that just became a COW parent.
func (p *Page) MarkShared() {
	p.Shared = true
}

// ClearShared clears p's Shared bit, as the COW writer does once it has
// given the page its own freshly produced block.
func (p *Page) ClearShared() {
	p.Shared = false
}

// NeedsCOW reports whether a write to p must copy-on-write before
// proceeding: the page is backed by an inherited, not self-produced, block.
func (p *Page) NeedsCOW(ptr BlockPtr) bool {
	return p.Shared && !ptr.IsHole() && !ptr.IsProducer()
}
