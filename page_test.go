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

import "testing"

func TestNewPageIsNotDirtyOrUptodate(t *testing.T) {
	p := NewPage(3, 4096)
	if p.Index != 3 {
		t.Errorf("Index = %d, want 3", p.Index)
	}
	if len(p.Data) != 4096 {
		t.Errorf("len(Data) = %d, want 4096", len(p.Data))
	}
	if p.Dirty || p.Uptodate || p.Shared {
		t.Errorf("a fresh page has a bit set: %+v", p)
	}
}

func TestNeedsCOW(t *testing.T) {
	cases := []struct {
		name   string
		shared bool
		ptr    BlockPtr
		want   bool
	}{
		{"unshared page never needs cow", false, NewBlockPtr(1, false), false},
		{"shared page over a hole needs nothing to copy", true, BlockPtr(0), false},
		{"shared page already producing needs no cow", true, NewBlockPtr(1, true), false},
		{"shared page over an inherited block needs cow", true, NewBlockPtr(1, false), true},
	}

	for _, tc := range cases {
		p := &Page{Shared: tc.shared}
		if got := p.NeedsCOW(tc.ptr); got != tc.want {
			t.Errorf("%s: NeedsCOW = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkAndClearShared(t *testing.T) {
	p := &Page{}
	p.MarkShared()
	if !p.Shared {
		t.Fatalf("MarkShared did not set Shared")
	}
	p.ClearShared()
	if p.Shared {
		t.Fatalf("ClearShared did not clear Shared")
	}
}
