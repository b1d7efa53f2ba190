package tracker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prxssh/scrape/internal/config"
)

const (
	udpActionConnect uint32 = 0
	udpActionScrape  uint32 = 2
	udpActionError   uint32 = 3

	connectRequestSize     = 16
	connectResponseMinSize = 16
	scrapeResponseMinSize  = 8
	scrapeTupleSize        = 12
	maxUDPDatagram         = 4096
)

// UdpSession implements Session for BEP15 UDP scrape trackers: a two-phase
// CONNECT/SCRAPE exchange over a connected datagram socket, each phase
// carrying its own transaction id drawn from a shared TxRegistry and its
// own inactivity timer.
type UdpSession struct {
	trackerURL string

	resolver Resolver
	socket   UDPSocket // injected via WithUDPSocket or dialed by Connect; nil again after Connect returns or Cleanup runs
	registry *TxRegistry
	log      *slog.Logger

	mu           sync.Mutex
	infohashes   []Infohash
	seen         map[Infohash]struct{}
	initiated    bool
	status       Status
	retries      uint32
	lastContact  time.Time
	connectionID uint64
	txID         uint32
}

// UdpSessionOption configures a UdpSession at construction.
type UdpSessionOption func(*UdpSession)

func WithUDPSocket(s UDPSocket) UdpSessionOption {
	return func(u *UdpSession) { u.socket = s }
}

func WithUDPResolver(r Resolver) UdpSessionOption {
	return func(u *UdpSession) { u.resolver = r }
}

func WithUDPRegistry(r *TxRegistry) UdpSessionOption {
	return func(u *UdpSession) { u.registry = r }
}

func WithUDPLogger(l *slog.Logger) UdpSessionOption {
	return func(u *UdpSession) { u.log = l }
}

// NewUdpSession constructs an empty UdpSession for trackerURL, a
// "udp://host:port" string.
func NewUdpSession(trackerURL string, opts ...UdpSessionOption) *UdpSession {
	s := &UdpSession{
		trackerURL:   trackerURL,
		seen:         make(map[Infohash]struct{}),
		log:          slog.Default(),
		connectionID: config.Load().UDPInitConnectionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = DefaultResolver{}
	}
	if s.registry == nil {
		s.registry = DefaultRegistry
	}
	return s
}

func (s *UdpSession) Kind() Kind         { return KindUDP }
func (s *UdpSession) TrackerURL() string { return s.trackerURL }
func (s *UdpSession) MaxRetries() int    { return maxRetries(KindUDP) }
func (s *UdpSession) RetryInterval() time.Duration {
	return retryInterval(KindUDP, s.Retries())
}

func (s *UdpSession) InfohashList() []Infohash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Infohash(nil), s.infohashes...)
}

func (s *UdpSession) CanAddRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.initiated && len(s.infohashes) < config.Load().MaxMultiScrape
}

func (s *UdpSession) HasRequest(h Infohash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[h]
	return ok
}

func (s *UdpSession) AddRequest(h Infohash) {
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

func (s *UdpSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *UdpSession) Retries() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

func (s *UdpSession) IncreaseRetries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

func (s *UdpSession) LastContact() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContact
}

// Connect runs the full CONNECT/SCRAPE exchange. It blocks until the
// session resolves or ctx is cancelled.
func (s *UdpSession) Connect(ctx context.Context) (ResultMap, error) {
	s.mu.Lock()
	s.initiated = true
	s.status = StatusInitiated
	s.lastContact = time.Now()
	infohashes := append([]Infohash(nil), s.infohashes...)
	s.mu.Unlock()

	result, err := s.run(ctx, infohashes)

	s.mu.Lock()
	s.status = classifyUDPTerminalStatus(err)
	s.mu.Unlock()

	s.releaseSocket()
	return result, err
}

func (s *UdpSession) run(ctx context.Context, infohashes []Infohash) (ResultMap, error) {
	parsed, err := (DefaultURLParser{}).Parse(s.trackerURL)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	host := net.JoinHostPort(parsed.Host, parsed.Port)

	addr, err := s.resolver.ResolveUDPAddr(ctx, host)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}

	if s.socket == nil {
		sock, err := DialUDPSocket(addr)
		if err != nil {
			return nil, &NetworkError{Cause: err}
		}
		s.socket = sock
	}

	connID, err := s.doConnect(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.connectionID = connID
	s.lastContact = time.Now()
	s.mu.Unlock()

	return s.doScrape(ctx, infohashes)
}

func (s *UdpSession) doConnect(ctx context.Context) (uint64, error) {
	txID, err := s.registry.Generate()
	if err != nil {
		return 0, &NetworkError{Cause: err}
	}
	s.mu.Lock()
	s.txID = txID
	s.mu.Unlock()

	var req [connectRequestSize]byte
	binary.BigEndian.PutUint64(req[0:8], s.connectionID)
	binary.BigEndian.PutUint32(req[8:12], udpActionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	resp := make([]byte, maxUDPDatagram)
	n, err := s.roundTrip(ctx, req[:], resp, config.Load().UDPInactivityTimeout, "connect")
	if err != nil {
		s.registry.Release(txID)
		return 0, err
	}

	if n < connectResponseMinSize {
		s.registry.Release(txID)
		return 0, &MalformedResponse{Detail: fmt.Sprintf("connect response too short: %d bytes", n)}
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])

	if action != udpActionConnect || gotTxID != txID {
		s.registry.Release(txID)
		return 0, &TrackerProtocolError{Payload: append([]byte(nil), resp[8:n]...)}
	}

	s.registry.Release(txID)
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func (s *UdpSession) doScrape(ctx context.Context, infohashes []Infohash) (ResultMap, error) {
	txID, err := s.registry.Generate()
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	s.mu.Lock()
	s.txID = txID
	s.mu.Unlock()
	defer s.registry.Release(txID)

	n := len(infohashes)
	req := make([]byte, connectRequestSize+20*n)
	binary.BigEndian.PutUint64(req[0:8], s.connectionID)
	binary.BigEndian.PutUint32(req[8:12], udpActionScrape)
	binary.BigEndian.PutUint32(req[12:16], txID)
	for i, h := range infohashes {
		copy(req[16+20*i:16+20*(i+1)], h[:])
	}

	resp := make([]byte, maxUDPDatagram)
	nread, err := s.roundTrip(ctx, req, resp, config.Load().UDPInactivityTimeout, "scrape")
	if err != nil {
		return nil, err
	}

	if nread < scrapeResponseMinSize {
		return nil, &MalformedResponse{Detail: fmt.Sprintf("scrape response too short: %d bytes", nread)}
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action != udpActionScrape || gotTxID != txID {
		return nil, &TrackerProtocolError{Payload: append([]byte(nil), resp[8:nread]...)}
	}

	if nread-scrapeResponseMinSize != scrapeTupleSize*n {
		return nil, &MalformedResponse{
			Detail: fmt.Sprintf("scrape payload length %d, expected %d for %d infohashes", nread-scrapeResponseMinSize, scrapeTupleSize*n, n),
		}
	}

	result := make(ResultMap, n)
	for i, h := range infohashes {
		off := scrapeResponseMinSize + scrapeTupleSize*i
		seeders := binary.BigEndian.Uint32(resp[off : off+4])
		// downloaded at resp[off+4:off+8] is discarded per spec.
		leechers := binary.BigEndian.Uint32(resp[off+8 : off+12])
		result[h] = SeedLeech{Seeders: seeders, Leechers: leechers}
	}

	return result, nil
}

// roundTrip arms the socket deadline, writes packet, and waits for a
// datagram into buf, honoring ctx cancellation by closing the socket to
// unblock the pending read.
func (s *UdpSession) roundTrip(ctx context.Context, packet, buf []byte, timeout time.Duration, phase string) (int, error) {
	if err := s.socket.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, &NetworkError{Cause: err}
	}
	if _, err := s.socket.Write(packet); err != nil {
		return 0, &NetworkError{Cause: err}
	}

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := s.socket.Read(buf)
		ch <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		s.socket.Close()
		<-ch
		return 0, Cancelled
	case r := <-ch:
		if r.err != nil {
			var netErr net.Error
			if errors.As(r.err, &netErr) && netErr.Timeout() {
				return 0, &TimeoutError{Phase: phase}
			}
			return 0, &NetworkError{Cause: r.err}
		}
		return r.n, nil
	}
}

// Cleanup closes the socket, cancels the pending deadline by doing so, and
// releases the session's reserved transaction id. Idempotent.
func (s *UdpSession) Cleanup() {
	s.mu.Lock()
	txID := s.txID
	terminal := isTerminal(s.status)
	if !terminal {
		s.status = StatusCleaned
	}
	s.infohashes = nil
	s.seen = make(map[Infohash]struct{})
	s.mu.Unlock()

	s.registry.Release(txID)
	s.releaseSocket()
}

func (s *UdpSession) releaseSocket() {
	s.mu.Lock()
	sock := s.socket
	s.socket = nil
	s.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
}

func classifyUDPTerminalStatus(err error) Status {
	if err == nil {
		return StatusFinished
	}
	return classifyTerminalStatus(err)
}
