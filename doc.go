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

// Package yuiha implements a file-versioning layer on top of a FUSE-served
// tree: a regular file is not a single mutable stream but the current leaf
// of a version tree, and opening a file with a snapshot intent freezes its
// current contents as a new immutable version and forks a writable
// descendant that shares on-disk blocks with its parent until the first
// write diverges them.
//
// The primary elements of interest are:
//
//  *  versiontree, which holds the per-inode version-tree links and the
//     algorithms (insert, splice, detach, trace-root) that keep them
//     well-formed.
//
//  *  snapshot, which atomically forks a new version from the current one.
//
//  *  cow, which intercepts writes to shared pages, copies the prior
//     contents up to the parent version, and breaks the sharing.
//
//  *  namei, which interprets the O_VERSION / O_PARENT / O_VSEARCH open
//     intents and computes the version-aware dentry hash.
//
//  *  fsserver, which wires all of the above into a fuseutil.FileSystem
//     that can be served with github.com/jacobsa/fuse.
package yuiha
