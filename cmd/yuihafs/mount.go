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

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/higuruchi/yuiha-kmod/blockstore"
	"github.com/higuruchi/yuiha-kmod/fsserver"
	"github.com/higuruchi/yuiha-kmod/journal"
	"github.com/higuruchi/yuiha-kmod/metrics"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/timeutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func doMount(mountPoint string, cfg Config) error {
	if cfg.BackingDir == "" {
		return fmt.Errorf("--backing-dir is required")
	}
	if err := os.MkdirAll(cfg.BackingDir, 0o700); err != nil {
		return fmt.Errorf("creating backing dir: %w", err)
	}

	sessionID := uuid.New().String()
	logger := log.New(os.Stderr, fmt.Sprintf("yuihafs[%s] ", sessionID[:8]), log.LstdFlags)

	j, err := journal.Open(filepath.Join(cfg.BackingDir, "journal"))
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	// The journal makes a crash mid-transaction detectable within the
	// current run (KindJournalAbort); replaying it here only counts the
	// records a prior run committed, since there is no on-disk inode image
	// to rebuild from. This mount always starts from an
	// empty version tree, matching the in-memory model samples/memfs uses.
	var replayed int
	if err := journal.Replay(filepath.Join(cfg.BackingDir, "journal"), func(journal.Record) {
		replayed++
	}); err != nil {
		return fmt.Errorf("replaying journal: %w", err)
	}
	if replayed > 0 {
		logger.Printf("replayed %d journal records from a prior run", replayed)
	}

	blocks, err := blockstore.Open(filepath.Join(cfg.BackingDir, "blocks"))
	if err != nil {
		return fmt.Errorf("opening block store: %w", err)
	}
	defer blocks.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	fs := fsserver.New(timeutil.RealClock(), j, blocks, m)
	fs.SetRootAttrs(cfg.Uid, cfg.Gid, os.FileMode(cfg.Mode))
	server := fuseutil.NewFileSystemServer(fs)

	controlSockPath := filepath.Join(cfg.BackingDir, "control.sock")
	os.Remove(controlSockPath)
	controlLn, err := net.Listen("unix", controlSockPath)
	if err != nil {
		return fmt.Errorf("listening on control socket: %w", err)
	}
	defer controlLn.Close()
	go func() {
		if err := fs.ServeControl(controlLn); err != nil {
			logger.Printf("control socket: %v", err)
		}
	}()

	mountCfg := &fuse.MountConfig{
		DisableWritebackCaching: true,
	}
	if cfg.Debug {
		mountCfg.DebugLogger = logger
	}

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	logger.Printf("mounted at %s, backing dir %s, control socket %s", mountPoint, cfg.BackingDir, controlSockPath)
	return mfs.Join(context.Background())
}
