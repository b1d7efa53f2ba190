package tracker

import "testing"

func TestSessionFactory_Create(t *testing.T) {
	f := NewSessionFactory(nil)

	tests := []struct {
		name    string
		rawURL  string
		wantUDP bool
	}{
		{"udp-scheme", "udp://tracker.example:6969", true},
		{"http-scheme", "http://tracker.example/announce", false},
		{"https-scheme", "https://tracker.example/announce", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := f.Create(tc.rawURL)
			if err != nil {
				t.Fatalf("Create(%q): %v", tc.rawURL, err)
			}

			_, isUDP := s.(*UdpSession)
			if isUDP != tc.wantUDP {
				t.Fatalf("Create(%q): got UDP=%v, want %v (%T)", tc.rawURL, isUDP, tc.wantUDP, s)
			}
		})
	}
}

func TestSessionFactory_Create_InvalidURL(t *testing.T) {
	f := NewSessionFactory(nil)
	if _, err := f.Create("ftp://tracker.example/announce"); err == nil {
		t.Fatal("want error for unsupported scheme")
	}
}
