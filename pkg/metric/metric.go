// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meflash"

// MetricOpts contains naming pieces of the exposed metric
type MetricOpts struct {
	Subsystem string
	Name      string
	Help      string
}

// Registry holds every collector of the tool. It is not the global default
// registry so the output only carries what the tool measured.
var Registry = prometheus.NewRegistry()

var (
	// Transactions counts hardware sequencing cycles by cycle type and result.
	Transactions = CounterVec(MetricOpts{"spi", "transactions_total", "Hardware sequencing cycles issued."}, []string{"cycle", "result"})
	// TransferBytes counts bytes moved between flash and host by direction.
	TransferBytes = CounterVec(MetricOpts{"transfer", "bytes_total", "Bytes moved between flash and host."}, []string{"direction"})
	// VerifyMismatches is the mismatch count of the last verify pass.
	VerifyMismatches = Gauge(MetricOpts{"transfer", "verify_mismatch_bytes", "Mismatching bytes found by the last verify pass."})
	// RestoreAttempts counts restore passes started after a failed verify.
	RestoreAttempts = Counter(MetricOpts{"transfer", "restore_attempts_total", "Restore passes after a failed verify."})
)

// Counter creates and registers a prometheus.Counter
func Counter(opts MetricOpts) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts(toOpts(opts)))
	Registry.MustRegister(c)
	return c
}

// CounterVec creates and registers a prometheus.CounterVec
func CounterVec(opts MetricOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts(toOpts(opts)), labels)
	Registry.MustRegister(c)
	return c
}

// Gauge creates and registers a prometheus.Gauge
func Gauge(opts MetricOpts) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts(toOpts(opts)))
	Registry.MustRegister(g)
	return g
}

// WriteTextfile dumps all metrics in the node_exporter textfile format
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

func toOpts(opts MetricOpts) prometheus.Opts {
	return prometheus.Opts{
		Namespace: namespace,
		Subsystem: strings.ToLower(opts.Subsystem),
		Name:      opts.Name,
		Help:      opts.Help,
	}
}
