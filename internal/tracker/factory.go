package tracker

import "fmt"

// SessionFactory dispatches a tracker URL's scheme to the matching Session
// constructor. DHT sessions are constructed directly by the caller (no URL
// is involved), so this factory only ever produces HttpSession or
// UdpSession values.
type SessionFactory struct {
	registry *TxRegistry
}

// NewSessionFactory returns a factory whose UdpSessions share registry for
// transaction-id uniqueness. A nil registry falls back to DefaultRegistry.
func NewSessionFactory(registry *TxRegistry) *SessionFactory {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &SessionFactory{registry: registry}
}

// Create parses rawURL and returns a UdpSession for scheme "udp", otherwise
// an HttpSession (for "http"/"https").
func (f *SessionFactory) Create(rawURL string) (Session, error) {
	parsed, err := (DefaultURLParser{}).Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: create session: %w", err)
	}

	if parsed.Scheme == "udp" {
		return NewUdpSession(rawURL, WithUDPRegistry(f.registry)), nil
	}
	return NewHttpSession(rawURL), nil
}
