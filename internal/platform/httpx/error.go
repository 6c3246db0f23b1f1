package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WriteError writes the canonical JSON error envelope returned by the API:
// {"error": message}. The storefront surfaces the message to the shopper
// verbatim, so callers must only pass user-safe text.
func WriteError(w http.ResponseWriter, status int, message string) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, map[string]any{
		"error": sanitize(message, 512),
	})
}

// WriteJSON writes an arbitrary payload as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteRaw relays an upstream JSON body without re-encoding it, preserving
// the exact payload for the caller.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	if len(body) == 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
