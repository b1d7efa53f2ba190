package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDHTProvider struct {
	info Metainfo
	err  error
	wait time.Duration
}

func (f *fakeDHTProvider) GetMetainfo(ctx context.Context, h Infohash) (Metainfo, error) {
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return Metainfo{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Metainfo{}, f.err
	}
	return f.info, nil
}

func TestDhtSession_DeliversResultViaCallback(t *testing.T) {
	h1 := Infohash{1}
	provider := &fakeDHTProvider{info: Metainfo{Seeders: 4, Leechers: 9}}

	var mu sync.Mutex
	results := make(map[Infohash]SeedLeech)
	done := make(chan struct{})

	s := NewDhtSession(provider, func(h Infohash, sl SeedLeech) {
		mu.Lock()
		results[h] = sl
		mu.Unlock()
		close(done)
	})

	s.AddRequest(h1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onResult was never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if got := results[h1]; got != (SeedLeech{Seeders: 4, Leechers: 9}) {
		t.Fatalf("got %+v, want {4 9}", got)
	}
}

func TestDhtSession_QueryErrorYieldsZero(t *testing.T) {
	h1 := Infohash{1}
	provider := &fakeDHTProvider{err: errors.New("lookup failed")}

	done := make(chan SeedLeech, 1)
	s := NewDhtSession(provider, func(h Infohash, sl SeedLeech) { done <- sl })
	s.AddRequest(h1)

	select {
	case got := <-done:
		if got != (SeedLeech{}) {
			t.Fatalf("got %+v, want zero value", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onResult was never called")
	}
}

func TestDhtSession_CanAddRequestAlwaysTrue(t *testing.T) {
	s := NewDhtSession(&fakeDHTProvider{}, func(Infohash, SeedLeech) {})
	for i := 0; i < 200; i++ {
		if !s.CanAddRequest() {
			t.Fatal("want CanAddRequest always true for DHT sessions")
		}
		var h Infohash
		h[0], h[1] = byte(i), byte(i>>8)
		s.AddRequest(h)
	}
}

func TestDhtSession_AddRequest_PanicsOnDuplicate(t *testing.T) {
	s := NewDhtSession(&fakeDHTProvider{}, func(Infohash, SeedLeech) {})
	h := Infohash{1}
	s.AddRequest(h)

	defer func() {
		if recover() == nil {
			t.Fatal("want panic on duplicate AddRequest")
		}
	}()
	s.AddRequest(h)
}

func TestDhtSession_ConnectResolvesEmpty(t *testing.T) {
	s := NewDhtSession(&fakeDHTProvider{}, func(Infohash, SeedLeech) {})
	got, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty ResultMap, got %d entries", len(got))
	}
	if s.Status() != StatusFinished {
		t.Fatalf("status = %v, want Finished", s.Status())
	}
}
