package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prxssh/scrape/internal/config"
	"github.com/prxssh/scrape/pkg/cast"
)

const maxHTTPScrapeResponseSize = 2 * 1024 * 1024 // 2 MiB; a scrape dict is small

// HttpSession implements Session for BEP3 HTTP(S) scrape trackers. A single
// GET is issued against the tracker's scrape endpoint and the bencoded
// reply is projected into a ResultMap; the protocol affords no retries of
// its own (that is the scheduler's job).
type HttpSession struct {
	trackerURL string

	client  HTTPDoer
	decoder Decoder
	log     *slog.Logger

	mu          sync.Mutex
	infohashes  []Infohash
	seen        map[Infohash]struct{}
	initiated   bool
	status      Status
	retries     uint32
	lastContact time.Time
	cancel      context.CancelFunc
}

// HttpSessionOption configures an HttpSession at construction.
type HttpSessionOption func(*HttpSession)

// WithHTTPClient overrides the default HTTP client (useful for tests and
// for callers who already manage connection pooling).
func WithHTTPClient(c HTTPDoer) HttpSessionOption {
	return func(s *HttpSession) { s.client = c }
}

// WithHTTPDecoder overrides the default bencode decoder.
func WithHTTPDecoder(d Decoder) HttpSessionOption {
	return func(s *HttpSession) { s.decoder = d }
}

// WithHTTPLogger overrides the logger; sessions log through an injected
// *slog.Logger rather than the package default.
func WithHTTPLogger(l *slog.Logger) HttpSessionOption {
	return func(s *HttpSession) { s.log = l }
}

// NewHttpSession constructs an empty HttpSession for trackerURL (an
// announce URL; the scrape path is derived from it per request).
func NewHttpSession(trackerURL string, opts ...HttpSessionOption) *HttpSession {
	s := &HttpSession{
		trackerURL: trackerURL,
		seen:       make(map[Infohash]struct{}),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewDefaultHTTPClient(config.Load().HTTPConnectTimeout)
	}
	if s.decoder == nil {
		s.decoder = DefaultDecoder{}
	}
	return s
}

func (s *HttpSession) Kind() Kind           { return KindHTTP }
func (s *HttpSession) TrackerURL() string   { return s.trackerURL }
func (s *HttpSession) MaxRetries() int      { return maxRetries(KindHTTP) }
func (s *HttpSession) RetryInterval() time.Duration {
	return retryInterval(KindHTTP, s.Retries())
}

func (s *HttpSession) InfohashList() []Infohash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Infohash(nil), s.infohashes...)
}

func (s *HttpSession) CanAddRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.initiated && len(s.infohashes) < config.Load().MaxMultiScrape
}

func (s *HttpSession) HasRequest(h Infohash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[h]
	return ok
}

func (s *HttpSession) AddRequest(h Infohash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initiated || len(s.infohashes) >= config.Load().MaxMultiScrape {
		panic("tracker: AddRequest called when CanAddRequest is false")
	}
	if _, ok := s.seen[h]; ok {
		panic("tracker: AddRequest called with a duplicate infohash")
	}

	s.seen[h] = struct{}{}
	s.infohashes = append(s.infohashes, h)
}

func (s *HttpSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *HttpSession) Retries() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

func (s *HttpSession) IncreaseRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

func (s *HttpSession) LastContact() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContact
}

// Connect issues the scrape GET and projects the response. It blocks until
// the HTTP round trip completes or ctx is cancelled.
func (s *HttpSession) Connect(ctx context.Context) (ResultMap, error) {
	s.mu.Lock()
	s.initiated = true
	s.status = StatusInitiated
	s.lastContact = time.Now()
	infohashes := append([]Infohash(nil), s.infohashes...)
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	result, err := s.doScrape(reqCtx, infohashes)
	if err != nil {
		s.setStatus(classifyTerminalStatus(err))
		return nil, err
	}

	s.setStatus(StatusFinished)
	return result, nil
}

func (s *HttpSession) doScrape(ctx context.Context, infohashes []Infohash) (ResultMap, error) {
	scrapeURL, err := BuildScrapeURL(s.trackerURL, infohashes)
	if err != nil {
		return nil, &MalformedResponse{Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scrapeURL, nil)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Cancelled
		}
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TrackerRejected{Status: resp.StatusCode, Phrase: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPScrapeResponseSize))
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	if len(body) == 0 {
		return nil, &MalformedResponse{Detail: "empty body"}
	}

	decoded, err := s.decoder.Decode(body)
	if err != nil {
		return nil, &MalformedResponse{Detail: fmt.Sprintf("undecodable body: %v", err)}
	}

	dict, ok := decoded.(map[string]any)
	if !ok {
		return nil, &MalformedResponse{Detail: fmt.Sprintf("expected dict, got %T", decoded)}
	}

	if reasonRaw, ok := dict["failure reason"]; ok {
		reason, _ := cast.ToString(reasonRaw)
		return nil, &TrackerFailure{Reason: reason}
	}

	result := make(ResultMap, len(infohashes))

	if filesRaw, ok := dict["files"]; ok {
		files, ok := filesRaw.(map[string]any)
		if !ok {
			return nil, &MalformedResponse{Detail: fmt.Sprintf("files: expected dict, got %T", filesRaw)}
		}

		for key, statsRaw := range files {
			if len(key) != len(Infohash{}) {
				// Not a valid 20-byte infohash key; skip rather than fail
				// the whole batch over one malformed entry.
				continue
			}
			var h Infohash
			copy(h[:], key)

			stats, _ := statsRaw.(map[string]any)
			complete, _ := cast.ToInt(stats["complete"])
			incomplete, _ := cast.ToInt(stats["incomplete"])

			result[h] = SeedLeech{Seeders: uint32(complete), Leechers: uint32(incomplete)}
		}
	}

	zeroFill(result, infohashes)
	return result, nil
}

// Cleanup aborts any in-flight request and marks the session cleaned. Safe
// to call multiple times.
func (s *HttpSession) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if !isTerminal(s.status) {
		s.status = StatusCleaned
	}
	s.infohashes = nil
	s.seen = make(map[Infohash]struct{})
}

func (s *HttpSession) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func isTerminal(s Status) bool {
	switch s {
	case StatusFinished, StatusFailed, StatusTimedOut, StatusCleaned:
		return true
	default:
		return false
	}
}

// classifyTerminalStatus maps an error returned from a Connect attempt to
// the terminal status a scheduler observing the session would see.
func classifyTerminalStatus(err error) Status {
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return StatusTimedOut
	}
	if errors.Is(err, Cancelled) {
		return StatusCleaned
	}
	return StatusFailed
}
