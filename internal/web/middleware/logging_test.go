package middleware

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/ipampa/internal/logging"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	logging.SetupWriter(&buf, "debug", "text")
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"ok", http.StatusOK, "hello", "level=INFO"},
		{"implicit ok", 0, "", "level=INFO"},
		{"client error", http.StatusNotFound, "nope", "level=WARN"},
		{"server error", http.StatusInternalServerError, "boom", "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte(tt.body))
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/indices", nil))

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log line %q missing %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, "path=/api/indices") {
				t.Errorf("log line %q missing path", out)
			}
			want := tt.status
			if want == 0 {
				want = http.StatusOK
			}
			if !strings.Contains(out, fmt.Sprintf("status=%d", want)) {
				t.Errorf("log line %q missing status=%d", out, want)
			}
			if !strings.Contains(out, fmt.Sprintf("bytes=%d", len(tt.body))) {
				t.Errorf("log line %q missing bytes=%d", out, len(tt.body))
			}
		})
	}
}
