package tracker

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/prxssh/scrape/pkg/syncmap"
)

// TxRegistry tracks which UDP transaction ids are currently in use, so a
// freshly generated id can be checked for collision against every live UDP
// session rather than just the session generating it. The design note
// explicitly calls out the original's module-level dictionary as something
// to re-architect away from a process global: TxRegistry is constructed and
// owned by whoever creates UdpSessions (normally the scheduler) and passed
// in, rather than reached for implicitly.
type TxRegistry struct {
	ids *syncmap.Map[uint32, struct{}]
}

// NewTxRegistry returns an empty registry.
func NewTxRegistry() *TxRegistry {
	return &TxRegistry{ids: syncmap.New[uint32, struct{}]()}
}

// DefaultRegistry exists purely for ergonomics — a caller wiring up a
// single UdpSession ad hoc doesn't have to construct a registry just for
// it. It is the registry NewUdpSession uses when no WithUDPRegistry option
// is given, and the one NewSessionFactory uses when passed a nil registry.
var DefaultRegistry = NewTxRegistry()

// Generate produces a fresh, registry-unique 32-bit transaction id and
// reserves it. Regenerates on collision, per spec.
func (r *TxRegistry) Generate() (uint32, error) {
	for attempt := 0; attempt < 64; attempt++ {
		id, err := randUint32()
		if err != nil {
			return 0, fmt.Errorf("tracker: generate transaction id: %w", err)
		}
		if _, exists := r.ids.Get(id); exists {
			continue
		}
		r.ids.Put(id, struct{}{})
		return id, nil
	}
	return 0, fmt.Errorf("tracker: could not find a free transaction id")
}

// Release removes id from the registry. Safe to call for an id that was
// never reserved or already released.
func (r *TxRegistry) Release(id uint32) {
	r.ids.Delete(id)
}

// Contains reports whether id is currently reserved. Used by tests to
// assert the "no entry after cleanup" invariant.
func (r *TxRegistry) Contains(id uint32) bool {
	_, ok := r.ids.Get(id)
	return ok
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
