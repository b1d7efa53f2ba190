package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// dhtQueryTimeout bounds a single per-infohash DHT lookup. spec.md leaves
// the exact value to the implementer ("given an infohash and a timeout");
// 30s matches the order of magnitude of an iterative Kademlia lookup.
const dhtQueryTimeout = 30 * time.Second

// DhtSession implements Session as the degenerate DHT-backed fallback: it
// has no batching cap, and each AddRequest dispatches its own query and
// delivers its own result rather than waiting for a batched Connect. This
// is the one place result delivery uses a callback instead of the Connect
// future, a documented quirk carried over from the design this module is
// based on: DHT sessions stream per-infohash results as they arrive.
type DhtSession struct {
	provider DHTMetainfoProvider
	onResult func(Infohash, SeedLeech)
	log      *slog.Logger

	mu         sync.Mutex
	infohashes []Infohash
	seen       map[Infohash]struct{}
	status     Status
	retries    uint32

	wg sync.WaitGroup
}

type DhtSessionOption func(*DhtSession)

func WithDHTLogger(l *slog.Logger) DhtSessionOption {
	return func(s *DhtSession) { s.log = l }
}

// NewDhtSession constructs a DhtSession. onResult is invoked once per
// AddRequest, from a goroutine, with the metainfo (or zero counts when the
// query times out or fails with any other error) for that single infohash.
func NewDhtSession(provider DHTMetainfoProvider, onResult func(Infohash, SeedLeech), opts ...DhtSessionOption) *DhtSession {
	s := &DhtSession{
		provider: provider,
		onResult: onResult,
		seen:     make(map[Infohash]struct{}),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DhtSession) Kind() Kind         { return KindDHT }
func (s *DhtSession) TrackerURL() string { return "" }
func (s *DhtSession) MaxRetries() int    { return maxRetries(KindDHT) }
func (s *DhtSession) RetryInterval() time.Duration {
	return retryInterval(KindDHT, s.Retries())
}

// LastContact always reports now, so an external scheduler never
// garbage-collects a DHT session for looking idle.
func (s *DhtSession) LastContact() time.Time { return time.Now() }

func (s *DhtSession) InfohashList() []Infohash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Infohash(nil), s.infohashes...)
}

// CanAddRequest is always true: DHT sessions have no batching cap and
// accept requests even after Connect has been called.
func (s *DhtSession) CanAddRequest() bool { return true }

func (s *DhtSession) HasRequest(h Infohash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[h]
	return ok
}

// AddRequest records h and immediately dispatches a DHT query for it; the
// result reaches onResult asynchronously rather than through Connect.
func (s *DhtSession) AddRequest(h Infohash) {
	s.mu.Lock()
	if _, ok := s.seen[h]; ok {
		s.mu.Unlock()
		panic("tracker: AddRequest called with a duplicate infohash")
	}
	s.seen[h] = struct{}{}
	s.infohashes = append(s.infohashes, h)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.query(h)
}

func (s *DhtSession) query(h Infohash) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), dhtQueryTimeout)
	defer cancel()

	info, err := s.provider.GetMetainfo(ctx, h)
	if err != nil {
		s.log.Debug("dht metainfo query failed", "infohash", h, "error", err)
		s.onResult(h, SeedLeech{})
		return
	}

	s.onResult(h, SeedLeech{Seeders: info.Seeders, Leechers: info.Leechers})
}

// Connect resolves immediately with an empty map; a DHT session does not
// batch, it streams per-infohash results through onResult as AddRequest is
// called.
func (s *DhtSession) Connect(ctx context.Context) (ResultMap, error) {
	s.mu.Lock()
	s.status = StatusFinished
	s.mu.Unlock()
	return ResultMap{}, nil
}

// Cleanup clears queued state. Outstanding queries already in flight are
// left to complete and deliver through onResult; they hold no session
// resources worth cancelling early.
func (s *DhtSession) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isTerminal(s.status) {
		s.status = StatusCleaned
	}
	s.infohashes = nil
	s.seen = make(map[Infohash]struct{})
}

func (s *DhtSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *DhtSession) Retries() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

func (s *DhtSession) IncreaseRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}
