package utils

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// TestErrorBody tests the JSON error shape shared by every listener
func TestErrorBody(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		expected string
	}{
		{
			name:     "not found",
			status:   http.StatusNotFound,
			message:  "not found",
			expected: `{"error": "not found", "status": 404}`,
		},
		{
			name:     "message with quotes",
			status:   http.StatusForbidden,
			message:  `ip "x" blocked`,
			expected: `{"error": "ip \"x\" blocked", "status": 403}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(ErrorBody(tt.status, tt.message)); got != tt.expected {
				t.Errorf("ErrorBody() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusUnauthorized, "unauthorized")

	want := `{"error": "unauthorized", "status": 401}`
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr.Body.String() != want {
		t.Errorf("expected %s, got %s", want, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json, got %q", got)
	}
	if got := rr.Header().Get("Content-Length"); got != strconv.Itoa(len(want)) {
		t.Errorf("expected Content-Length %d, got %q", len(want), got)
	}
}

// TestRemoteIP tests peer address extraction
func TestRemoteIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{"IPv4 with port", "192.168.1.1:54321", "192.168.1.1"},
		{"IPv6 with port", "[2001:db8::1]:8080", "2001:db8::1"},
		{"no port", "192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			req.Header.Set("X-Forwarded-For", "203.0.113.195")
			if got := RemoteIP(req); got != tt.expected {
				t.Errorf("RemoteIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}
