package main

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Relay metrics
var (
	relayQueriesTotal   atomic.Int64
	relayEventsReceived atomic.Int64
	relayPublishesTotal atomic.Int64
	droppedEventCount   atomic.Int64
)

// Cache metrics
var (
	cacheHits           atomic.Int64
	cacheMisses         atomic.Int64
	cacheEventsIngested atomic.Int64
)

// Wallet metrics
var (
	nwcRequestsTotal atomic.Int64
	zapAttemptsTotal atomic.Int64
)

var processStartTime = time.Now()

// MetricsSnapshot renders the counters as a plain-text report
func MetricsSnapshot() string {
	var b strings.Builder

	fmt.Fprintf(&b, "uptime_seconds %.0f\n", time.Since(processStartTime).Seconds())
	fmt.Fprintf(&b, "go_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(&b, "relay_queries_total %d\n", relayQueriesTotal.Load())
	fmt.Fprintf(&b, "relay_events_received_total %d\n", relayEventsReceived.Load())
	fmt.Fprintf(&b, "relay_publishes_total %d\n", relayPublishesTotal.Load())
	fmt.Fprintf(&b, "relay_events_dropped_total %d\n", droppedEventCount.Load())

	hits := cacheHits.Load()
	misses := cacheMisses.Load()
	fmt.Fprintf(&b, "cache_hits_total %d\n", hits)
	fmt.Fprintf(&b, "cache_misses_total %d\n", misses)
	fmt.Fprintf(&b, "cache_events_ingested_total %d\n", cacheEventsIngested.Load())
	var hitRatio float64
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}
	fmt.Fprintf(&b, "cache_hit_ratio %.4f\n", hitRatio)
	fmt.Fprintf(&b, "cache_backend %s\n", cacheBackendType)

	fmt.Fprintf(&b, "nwc_requests_total %d\n", nwcRequestsTotal.Load())
	fmt.Fprintf(&b, "zap_attempts_total %d\n", zapAttemptsTotal.Load())

	return b.String()
}
