package tracker

import (
	"testing"
	"time"

	"github.com/prxssh/scrape/internal/config"
)

func TestRetryPolicy_MaxRetries(t *testing.T) {
	config.Init()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindHTTP, 0},
		{KindUDP, 8},
		{KindDHT, 8},
	}
	for _, tc := range tests {
		if got := maxRetries(tc.kind); got != tc.want {
			t.Errorf("maxRetries(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestRetryPolicy_RetryInterval(t *testing.T) {
	config.Init()

	if got := retryInterval(KindHTTP, 0); got != 60*time.Second {
		t.Errorf("HTTP retry interval = %v, want 60s", got)
	}
	if got := retryInterval(KindDHT, 3); got != 60*time.Second {
		t.Errorf("DHT retry interval = %v, want constant 60s", got)
	}

	if got := retryInterval(KindUDP, 0); got != 15*time.Second {
		t.Errorf("UDP retry interval at 0 retries = %v, want 15s", got)
	}
	if got := retryInterval(KindUDP, 1); got != 30*time.Second {
		t.Errorf("UDP retry interval at 1 retry = %v, want 30s", got)
	}
	if got := retryInterval(KindUDP, 2); got != 60*time.Second {
		t.Errorf("UDP retry interval at 2 retries = %v, want 60s", got)
	}
}
