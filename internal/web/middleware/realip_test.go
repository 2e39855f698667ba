package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	trusted := []string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"}

	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{"untrusted keeps remote", "203.0.113.9:5000", "1.2.3.4", "", "203.0.113.9:5000"},
		{"trusted cidr uses X-Real-IP", "10.1.2.3:5000", "1.2.3.4", "", "1.2.3.4"},
		{"trusted single address", "192.168.1.5:443", "1.2.3.4", "", "1.2.3.4"},
		{"first forwarded hop", "10.1.2.3:5000", "", "5.6.7.8, 10.0.0.1", "5.6.7.8"},
		{"X-Real-IP wins", "10.1.2.3:5000", "1.2.3.4", "5.6.7.8", "1.2.3.4"},
		{"invalid header ignored", "10.1.2.3:5000", "garbage", "", "10.1.2.3:5000"},
		{"no headers", "10.1.2.3:5000", "", "", "10.1.2.3:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	got := parsePrefixes([]string{"10.0.0.0/8", " ", "127.0.0.1", "::1", "bogus"})
	if len(got) != 3 {
		t.Fatalf("parsePrefixes() returned %d prefixes, want 3", len(got))
	}
	if got[1].Bits() != 32 {
		t.Errorf("single IPv4 prefix bits = %d, want 32", got[1].Bits())
	}
	if got[2].Bits() != 128 {
		t.Errorf("single IPv6 prefix bits = %d, want 128", got[2].Bits())
	}
}
