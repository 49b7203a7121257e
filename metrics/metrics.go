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

// Package metrics exposes the Prometheus counters and gauges fsserver
// updates as it serves a mounted version tree.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector fsserver touches. Register them all with
// a single Registry so cmd/yuihafs can serve /metrics from one handler.
type Metrics struct {
	SnapshotsCreated prometheus.Counter
	CowFaults        prometheus.Counter
	CowBytesCopied   prometheus.Counter
	PhantomInodes    prometheus.Gauge
	OrphanListLength prometheus.Gauge
	NoSpaceErrors    prometheus.Counter
}

// New constructs a Metrics bundle and registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SnapshotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yuiha",
			Name:      "snapshots_created_total",
			Help:      "Number of version-tree snapshots created.",
		}),
		CowFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yuiha",
			Name:      "cow_faults_total",
			Help:      "Number of writes that triggered a copy-on-write block fault.",
		}),
		CowBytesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yuiha",
			Name:      "cow_bytes_copied_total",
			Help:      "Bytes copied up to a parent version during copy-on-write.",
		}),
		PhantomInodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yuiha",
			Name:      "phantom_inodes",
			Help:      "Inodes with zero directory nlink still reachable through the version tree.",
		}),
		OrphanListLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yuiha",
			Name:      "orphan_list_length",
			Help:      "Current length of the on-disk orphan list.",
		}),
		NoSpaceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yuiha",
			Name:      "no_space_errors_total",
			Help:      "Block allocation failures returned to callers as NoSpace.",
		}),
	}

	reg.MustRegister(
		m.SnapshotsCreated,
		m.CowFaults,
		m.CowBytesCopied,
		m.PhantomInodes,
		m.OrphanListLength,
		m.NoSpaceErrors,
	)
	return m
}
