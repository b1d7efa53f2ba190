package tracker

import "context"

// Metainfo is what a DHTMetainfoProvider reports for a single infohash.
type Metainfo struct {
	Seeders  uint32
	Leechers uint32
}

// DHTMetainfoProvider is the DHT metainfo service collaborator: given an
// infohash and a timeout carried by ctx, it yields either a Metainfo or a
// timeout signal (ctx.Err() == context.DeadlineExceeded). This module ships
// no concrete DHT node — no routing table, no bootstrap, no token
// issuance — only this interface and the session that consumes it; running
// an actual DHT node is explicitly out of scope.
type DHTMetainfoProvider interface {
	GetMetainfo(ctx context.Context, h Infohash) (Metainfo, error)
}
