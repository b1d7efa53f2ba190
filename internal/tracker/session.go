package tracker

import (
	"context"
	"time"

	"github.com/prxssh/scrape/internal/config"
)

// Kind identifies which of the three protocol variants a Session implements.
// It is immutable after construction — the design note calls for a tagged
// variant over {Http, Udp, Dht} rather than an inheritance hierarchy, and
// Kind is the tag.
type Kind int

const (
	KindHTTP Kind = iota
	KindUDP
	KindDHT
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindUDP:
		return "udp"
	case KindDHT:
		return "dht"
	default:
		return "unknown"
	}
}

// Status is a session's lifecycle state. Exactly one of the terminal values
// (Finished, Failed, TimedOut) holds once a Connect attempt resolves; a
// Connect cancelled through ctx, or a Cleanup before any of those, leaves
// the session Cleaned instead.
type Status int

const (
	StatusNew Status = iota
	StatusInitiated
	StatusFinished
	StatusFailed
	StatusTimedOut
	StatusCleaned
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInitiated:
		return "initiated"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// Session is the common contract every protocol variant satisfies. A
// session owns one tracker endpoint and one batch of infohashes: it is
// built empty, accepts infohashes up to a per-kind cap, is initiated when
// Connect starts, and resolves to a ResultMap or a typed error exactly
// once.
//
// Connect is the Go mapping of a cancellable one-shot future: it blocks the
// calling goroutine until resolution, and ctx cancellation is the
// cancellation path. Cancelling ctx mid-Connect transitions the session to
// Cleaned and returns Cancelled without ever populating a result.
type Session interface {
	// Kind reports which protocol variant this session implements.
	Kind() Kind
	// TrackerURL returns the endpoint this session was constructed for.
	// Empty for DHT sessions, which have no URL.
	TrackerURL() string
	// InfohashList returns the infohashes queued so far, in add order.
	InfohashList() []Infohash
	// CanAddRequest reports whether AddRequest would currently succeed.
	CanAddRequest() bool
	// HasRequest reports whether h was already added.
	HasRequest(h Infohash) bool
	// AddRequest queues h. Calling it when CanAddRequest is false or when
	// h is already present is a programmer error (it panics), matching
	// the base contract's "violation is a programmer error" wording.
	AddRequest(h Infohash)
	// Connect initiates network activity and blocks until the session
	// resolves or ctx is cancelled.
	Connect(ctx context.Context) (ResultMap, error)
	// Cleanup releases any owned resources (sockets, timers, registry
	// entries). Idempotent; safe to call without an in-flight Connect.
	Cleanup()
	// Status reports the session's current lifecycle state.
	Status() Status
	// Retries reports how many retry attempts a caller has recorded.
	Retries() uint32
	// IncreaseRetries increments the retry counter. The session never
	// calls this itself — retry scheduling lives in an external
	// scheduler, per spec.
	IncreaseRetries()
	// MaxRetries is this session kind's retry budget.
	MaxRetries() int
	// RetryInterval is the wait before the next retry, given the current
	// retry count.
	RetryInterval() time.Duration
	// LastContact reports the wall-clock instant of last outbound
	// activity.
	LastContact() time.Time
}

// maxRetries returns the retry budget for kind, per the policy table.
func maxRetries(kind Kind) int {
	cfg := config.Load()
	switch kind {
	case KindHTTP:
		return cfg.HTTPMaxRetries
	case KindUDP:
		return cfg.UDPMaxRetries
	case KindDHT:
		return cfg.DHTMaxRetries
	default:
		return 0
	}
}

// retryInterval returns the wait before retry number `retries`, per the
// policy table: HTTP is a single attempt, UDP backs off exponentially from
// its base interval, DHT waits a constant interval.
func retryInterval(kind Kind, retries uint32) time.Duration {
	cfg := config.Load()
	switch kind {
	case KindHTTP:
		return cfg.HTTPRecheckInterval
	case KindUDP:
		shift := retries
		const maxShift = 30 // guards against overflow on pathological retry counts
		if shift > maxShift {
			shift = maxShift
		}
		return cfg.UDPRecheckInterval * time.Duration(uint64(1)<<shift)
	case KindDHT:
		return cfg.DHTRecheckInterval
	default:
		return 0
	}
}
