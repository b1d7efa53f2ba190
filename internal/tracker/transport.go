package tracker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prxssh/scrape/internal/bencode"
)

// HTTPDoer is the byte-stream HTTP client collaborator. *http.Client
// already satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewDefaultHTTPClient returns an *http.Client tuned the way the pack's
// HTTP trackers are: bounded connect timeout, redirect-following, no
// custom body size cap since HTTP scrape bodies are small dictionaries.
func NewDefaultHTTPClient(connectTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Resolver is the DNS resolution collaborator, consumed by UdpSession to
// turn a hostname into a dialable address.
type Resolver interface {
	ResolveUDPAddr(ctx context.Context, host string) (*net.UDPAddr, error)
}

// DefaultResolver wraps net.Resolver.
type DefaultResolver struct {
	Resolver *net.Resolver
}

func (r DefaultResolver) ResolveUDPAddr(ctx context.Context, host string) (*net.UDPAddr, error) {
	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	hostname, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return nil, fmt.Errorf("tracker: split host:port %q: %w", host, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("tracker: invalid port %q: %w", portStr, err)
	}

	addrs, err := resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("tracker: no addresses for %q", hostname)
	}

	return &net.UDPAddr{IP: addrs[0].IP, Port: port, Zone: addrs[0].Zone}, nil
}

// UDPSocket is the datagram endpoint collaborator: connect/send/receive and
// deadline-based timer scheduling. *net.UDPConn satisfies it.
type UDPSocket interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	SetDeadline(t time.Time) error
	Close() error
}

// DialUDPSocket opens a UDPSocket connected to addr, the default
// implementation UdpSession uses absent an injected one.
func DialUDPSocket(addr *net.UDPAddr) (UDPSocket, error) {
	return net.DialUDP("udp", nil, addr)
}

// Decoder is the bencoding-decoder collaborator: raw bytes in, a
// dynamically-typed dict/list/integer/byte-string tree out.
type Decoder interface {
	Decode(data []byte) (any, error)
}

// DefaultDecoder wraps internal/bencode.Unmarshal.
type DefaultDecoder struct{}

func (DefaultDecoder) Decode(data []byte) (any, error) { return bencode.Unmarshal(data) }
