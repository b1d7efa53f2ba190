package tracker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prxssh/scrape/internal/bencode"
)

type fakeHTTPDoer struct {
	status int
	body   []byte
	err    error
}

func (f *fakeHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(string(f.body))),
	}, nil
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := bencode.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func TestHttpSession_PartialCoverage(t *testing.T) {
	h1, h2, h3 := Infohash{1}, Infohash{2}, Infohash{3}

	body := mustMarshal(t, map[string]any{
		"files": map[string]any{
			string(h1[:]): map[string]any{"complete": 7, "incomplete": 3},
			string(h3[:]): map[string]any{"complete": 0, "incomplete": 1},
		},
	})

	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: body}))
	s.AddRequest(h1)
	s.AddRequest(h2)
	s.AddRequest(h3)

	got, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := ResultMap{
		h1: {Seeders: 7, Leechers: 3},
		h2: {Seeders: 0, Leechers: 0},
		h3: {Seeders: 0, Leechers: 1},
	}
	for h, sl := range want {
		if got[h] != sl {
			t.Errorf("h=%v: got %+v, want %+v", h, got[h], sl)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d entries, want %d", len(got), len(want))
	}
	if s.Status() != StatusFinished {
		t.Errorf("status = %v, want Finished", s.Status())
	}
}

func TestHttpSession_FailureReason(t *testing.T) {
	body := mustMarshal(t, map[string]any{"failure reason": "unregistered torrent"})
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: body}))
	s.AddRequest(Infohash{1})

	_, err := s.Connect(context.Background())

	var failure *TrackerFailure
	if !errors.As(err, &failure) {
		t.Fatalf("want *TrackerFailure, got %v (%T)", err, err)
	}
	if failure.Reason != "unregistered torrent" {
		t.Fatalf("got reason %q", failure.Reason)
	}
	if s.Status() != StatusFailed {
		t.Fatalf("status = %v, want Failed", s.Status())
	}
}

func TestHttpSession_NonOKStatus(t *testing.T) {
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 404, body: nil}))
	s.AddRequest(Infohash{1})

	_, err := s.Connect(context.Background())

	var rejected *TrackerRejected
	if !errors.As(err, &rejected) || rejected.Status != 404 {
		t.Fatalf("want *TrackerRejected{404}, got %v (%T)", err, err)
	}
}

func TestHttpSession_EmptyBody(t *testing.T) {
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: nil}))

	_, err := s.Connect(context.Background())

	var malformed *MalformedResponse
	if !errors.As(err, &malformed) {
		t.Fatalf("want *MalformedResponse, got %v (%T)", err, err)
	}
}

func TestHttpSession_NonBencodeBody(t *testing.T) {
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: []byte("not bencode")}))

	_, err := s.Connect(context.Background())

	var malformed *MalformedResponse
	if !errors.As(err, &malformed) {
		t.Fatalf("want *MalformedResponse, got %v (%T)", err, err)
	}
}

func TestHttpSession_ZeroInfohashes(t *testing.T) {
	body := mustMarshal(t, map[string]any{})
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: body}))

	got, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty result map, got %d entries", len(got))
	}
}

func TestHttpSession_AddRequest_PanicsOnDuplicate(t *testing.T) {
	s := NewHttpSession("http://tracker.example/announce")
	h := Infohash{1}
	s.AddRequest(h)

	defer func() {
		if recover() == nil {
			t.Fatal("want panic on duplicate AddRequest")
		}
	}()
	s.AddRequest(h)
}

func TestHttpSession_AddRequest_PanicsAfterCap(t *testing.T) {
	s := NewHttpSession("http://tracker.example/announce")
	for i := 0; i < 74; i++ {
		var h Infohash
		h[0] = byte(i)
		h[1] = byte(i >> 8)
		s.AddRequest(h)
	}
	if s.CanAddRequest() {
		t.Fatal("want CanAddRequest false at cap")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("want panic adding the 75th infohash")
		}
	}()
	s.AddRequest(Infohash{0xff})
}

func TestHttpSession_AddRequest_PanicsAfterInitiated(t *testing.T) {
	body := mustMarshal(t, map[string]any{})
	s := NewHttpSession("http://tracker.example/announce", WithHTTPClient(&fakeHTTPDoer{status: 200, body: body}))
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("want panic adding after initiated")
		}
	}()
	s.AddRequest(Infohash{1})
}
