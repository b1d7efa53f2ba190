// Package config holds the process-wide tunables for tracker scrape
// sessions: per-protocol retry/timeout policy and protocol constants. It is
// read far more often than it is written, so the active Config is kept
// behind an atomic.Value rather than a mutex — sessions read it on every
// connect without contending with each other or with an occasional Update.
package config

import (
	"sync/atomic"
	"time"
)

// Config holds every tunable a Session consults. Zero-value Config is not
// meaningful; use Default or Init.
type Config struct {
	// MaxMultiScrape is the largest infohash batch a non-DHT session may
	// carry. BEP15 and common HTTP scrape implementations cap this; 74
	// is the value the BitTorrent ecosystem has converged on.
	MaxMultiScrape int

	// UDPRecheckInterval is the base UDP retry interval; the schedule is
	// UDPRecheckInterval * 2^retries.
	UDPRecheckInterval time.Duration
	// UDPMaxRetries is the maximum number of retries a scheduler may
	// attempt for a UDP session.
	UDPMaxRetries int
	// UDPInactivityTimeout bounds how long a UdpScraper waits for a
	// datagram before timing out, on both CONNECT and SCRAPE phases.
	UDPInactivityTimeout time.Duration
	// UDPInitConnectionID is the BEP15 protocol magic used for the first
	// CONNECT request of a session.
	UDPInitConnectionID uint64

	// HTTPRecheckInterval is the interval an external scheduler should
	// wait before re-scraping an HTTP tracker.
	HTTPRecheckInterval time.Duration
	// HTTPMaxRetries is the maximum retries for an HTTP session; the
	// protocol affords none — a non-200 or malformed body is terminal.
	HTTPMaxRetries int
	// HTTPConnectTimeout bounds the HTTP client's dial+handshake time.
	HTTPConnectTimeout time.Duration

	// DHTRecheckInterval is the interval an external scheduler should
	// wait before re-querying the DHT for an infohash.
	DHTRecheckInterval time.Duration
	// DHTMaxRetries is the maximum retries for a DHT lookup.
	DHTMaxRetries int
}

// Default returns the tunables from spec section 6, as shipped.
func Default() Config {
	return Config{
		MaxMultiScrape:       74,
		UDPRecheckInterval:   15 * time.Second,
		UDPMaxRetries:        8,
		UDPInactivityTimeout: 15 * time.Second,
		UDPInitConnectionID:  0x41727101980,
		HTTPRecheckInterval:  60 * time.Second,
		HTTPMaxRetries:       0,
		HTTPConnectTimeout:   15 * time.Second,
		DHTRecheckInterval:   60 * time.Second,
		DHTMaxRetries:        8,
	}
}

var cfg atomic.Value

// Init installs Default as the active config. Safe to call more than once;
// later calls simply reset to defaults.
func Init() {
	cfg.Store(Default())
}

// Load returns the active Config. If Init was never called, it lazily
// installs and returns Default so callers never observe a zero Config.
func Load() Config {
	v := cfg.Load()
	if v == nil {
		d := Default()
		cfg.Store(d)
		return d
	}
	return v.(Config)
}

// Update atomically applies mut to a copy of the active config and installs
// the result, returning it. mut must not retain c beyond its call.
func Update(mut func(c *Config)) Config {
	next := Load()
	mut(&next)
	cfg.Store(next)
	return next
}

// Swap installs next as the active config wholesale and returns it.
func Swap(next Config) Config {
	cfg.Store(next)
	return next
}
