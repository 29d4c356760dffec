package utils

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
)

const contentTypeJSON = "application/json"

// WriteJSON writes body as a complete JSON response with an exact
// Content-Length.
func WriteJSON(w http.ResponseWriter, status int, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ErrorBody renders {"error": "<message>", "status": <code>} with the same
// separators as the reading payload.
func ErrorBody(status int, message string) []byte {
	quoted, err := json.Marshal(message)
	if err != nil {
		quoted = []byte(`"error"`)
	}
	buf := make([]byte, 0, len(quoted)+32)
	buf = append(buf, `{"error": `...)
	buf = append(buf, quoted...)
	buf = append(buf, `, "status": `...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	return append(buf, '}')
}

// WriteError writes the JSON error body for status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody(status, message))
}

// RemoteIP returns the host part of r.RemoteAddr, or RemoteAddr unchanged
// when it carries no port. Forwarding headers are not consulted; they are
// applied upstream only when trusted.
func RemoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
