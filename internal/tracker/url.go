package tracker

import (
	"fmt"
	"net/url"
	"strings"
)

// TrackerURL is the normalised form a URLParser produces: scheme, host,
// port, and the announce path, kept apart so sessions can rewrite the path
// without re-parsing.
type TrackerURL struct {
	Scheme       string
	Host         string // host only, no port
	Port         string
	AnnouncePath string // path + any pre-existing query string
	Raw          string
}

// URLParser normalises a tracker URL string into a TrackerURL. It is an
// out-of-scope external collaborator per spec; DefaultURLParser is the
// net/url-backed implementation, and the one SessionFactory and UdpSession
// always use (neither accepts another URLParser).
type URLParser interface {
	Parse(raw string) (TrackerURL, error)
}

// DefaultURLParser implements URLParser with net/url.
type DefaultURLParser struct{}

func (DefaultURLParser) Parse(raw string) (TrackerURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return TrackerURL{}, fmt.Errorf("tracker: parse url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "udp":
	default:
		return TrackerURL{}, fmt.Errorf("tracker: unsupported scheme %q", u.Scheme)
	}

	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return TrackerURL{
		Scheme:       u.Scheme,
		Host:         u.Hostname(),
		Port:         u.Port(),
		AnnouncePath: path,
		Raw:          raw,
	}, nil
}

// BuildScrapeURL rewrites an HTTP(S) announce URL into its scrape
// counterpart: the last path segment has "announce" substituted by
// "scrape" (BEP48's convention), and one info_hash query parameter is added
// per infohash, raw 20 bytes, URL-encoded by net/url's query encoder.
// Pre-existing query parameters (a tracker's passkey, for instance) are
// preserved untouched.
func BuildScrapeURL(raw string, infohashes []Infohash) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("tracker: parse announce url %q: %w", raw, err)
	}

	segStart := strings.LastIndex(u.Path, "/") + 1
	idx := strings.LastIndex(u.Path[segStart:], "announce")
	if idx < 0 {
		return "", fmt.Errorf("tracker: %q does not support scrape (no \"announce\" in last path segment)", raw)
	}
	idx += segStart
	u.Path = u.Path[:idx] + "scrape" + u.Path[idx+len("announce"):]

	q := u.Query()
	for _, h := range infohashes {
		q.Add("info_hash", string(h[:]))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// SupportsScrape reports whether the announce URL's last path segment
// begins with "announce", the BEP48 convention a scrape endpoint requires.
func SupportsScrape(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	segment := u.Path
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	return strings.HasPrefix(segment, "announce")
}
