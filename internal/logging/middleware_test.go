package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/sensord/internal/config"
)

const (
	testCustomReqHeader = "X-Custom-Req"
	testReqID           = "req-1"
)

var jsonConfig = config.LoggingConfig{Format: "json"}

func swapLoggerForTest(logger zerolog.Logger) func() {
	previous := L()
	setBase(logger)
	return func() { setBase(previous) }
}

func firstLine(b []byte) []byte {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		return b[:idx]
	}
	return b
}

func TestRequestContextMiddleware_GeneratesIdentifier(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true},
	}

	buffer := bytes.Buffer{}
	restore := swapLoggerForTest(New(&buffer, jsonConfig))
	defer restore()

	var capturedRequestID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedRequestID = RequestID(r.Context())
		logger := WithContext(r.Context())
		logger.Info().Msg("test")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sensors", nil)

	RequestContextMiddleware(cfg)(handler).ServeHTTP(rr, req)

	if capturedRequestID == "" {
		t.Fatal("expected generated request id")
	}
	if got := rr.Header().Get(defaultRequestHeader); got != capturedRequestID {
		t.Fatalf("expected response header request id %q, got %q", capturedRequestID, got)
	}

	line := firstLine(buffer.Bytes())
	if len(line) == 0 {
		t.Fatal("expected log output")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(line, &payload); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if payload["request_id"] != capturedRequestID {
		t.Fatalf("expected log request_id %q, got %v", capturedRequestID, payload["request_id"])
	}
}

func TestRequestContextMiddleware_RespectsHeader(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true, Header: testCustomReqHeader},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestID(r.Context()); got != testReqID {
			t.Fatalf("expected request id %s, got %s", testReqID, got)
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sensors", nil)
	req.Header.Set(testCustomReqHeader, testReqID)

	RequestContextMiddleware(cfg)(handler).ServeHTTP(rr, req)

	if got := rr.Header().Get(testCustomReqHeader); got != testReqID {
		t.Fatalf("expected response header %s, got %s", testReqID, got)
	}
}

func TestRequestContextMiddleware_Disabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestID(r.Context()); got != "" {
			t.Fatalf("expected no request id, got %s", got)
		}
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sensors", nil)

	RequestContextMiddleware(config.LoggingConfig{})(handler).ServeHTTP(rr, req)

	if got := rr.Header().Get(defaultRequestHeader); got != "" {
		t.Fatalf("expected no request id header, got %s", got)
	}
}

func TestAccessLogMiddleware(t *testing.T) {
	buffer := bytes.Buffer{}
	restore := swapLoggerForTest(New(&buffer, jsonConfig))
	defer restore()

	handler := AccessLogMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/other", nil))

	var payload map[string]interface{}
	if err := json.Unmarshal(firstLine(buffer.Bytes()), &payload); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if payload["path"] != "/other" {
		t.Errorf("expected path /other, got %v", payload["path"])
	}
	if payload["status"] != float64(http.StatusNotFound) {
		t.Errorf("expected status 404, got %v", payload["status"])
	}
	if payload["bytes"] != float64(4) {
		t.Errorf("expected 4 bytes, got %v", payload["bytes"])
	}
	if payload["level"] != "info" {
		t.Errorf("expected info level, got %v", payload["level"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewFormats(t *testing.T) {
	var jsonOut, textOut bytes.Buffer

	jsonLogger := New(&jsonOut, config.LoggingConfig{Format: "JSON", Level: "debug"})
	jsonLogger.Debug().Str("k", "v").Msg("hello")
	textLogger := New(&textOut, config.LoggingConfig{})
	textLogger.Info().Str("k", "v").Msg("hello")

	var payload map[string]interface{}
	if err := json.Unmarshal(firstLine(jsonOut.Bytes()), &payload); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", jsonOut.String(), err)
	}
	if payload["message"] != "hello" || payload["k"] != "v" {
		t.Errorf("unexpected payload %v", payload)
	}
	if bytes.HasPrefix(textOut.Bytes(), []byte("{")) {
		t.Errorf("expected console output, got %q", textOut.String())
	}
	if !bytes.Contains(textOut.Bytes(), []byte("k=v")) {
		t.Errorf("expected k=v in console output, got %q", textOut.String())
	}
}

func TestWithContextOutsideRequest(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("expected no request id, got %q", got)
	}
	buffer := bytes.Buffer{}
	restore := swapLoggerForTest(New(&buffer, jsonConfig))
	defer restore()

	logger := WithContext(context.Background())
	logger.Info().Msg("plain")
	if !bytes.Contains(buffer.Bytes(), []byte(`"plain"`)) {
		t.Errorf("expected process logger output, got %q", buffer.String())
	}
}
