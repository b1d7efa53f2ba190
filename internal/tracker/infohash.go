// Package tracker implements BitTorrent tracker scrape sessions: HTTP(S)
// scrape (BEP3), UDP scrape (BEP15), and a DHT-backed fallback, unified
// behind a single Session interface.
package tracker

import "crypto/sha1"

// Infohash is the 20-byte SHA-1 digest identifying a torrent. It is a value
// type so it can be compared and used directly as a map key.
type Infohash [sha1.Size]byte

// String renders the infohash as lowercase hex, mainly for logging.
func (h Infohash) String() string {
	const hextable = "0123456789abcdef"

	var buf [2 * sha1.Size]byte
	for i, b := range h {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf[:])
}

// SeedLeech is a tracker's reported peer counts for one infohash.
type SeedLeech struct {
	Seeders  uint32
	Leechers uint32
}

// ResultMap maps every infohash a session was asked about to its counts.
// Completeness is an invariant of a successful Connect: every key the
// session was given appears, zero-filled if the tracker never mentioned it.
type ResultMap map[Infohash]SeedLeech

// zeroFill ensures every infohash in want has an entry in m, defaulting to
// the zero SeedLeech for any the tracker didn't mention.
func zeroFill(m ResultMap, want []Infohash) {
	for _, h := range want {
		if _, ok := m[h]; !ok {
			m[h] = SeedLeech{}
		}
	}
}
