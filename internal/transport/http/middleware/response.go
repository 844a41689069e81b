package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorBody matches the handler package's error envelope so clients see one
// shape whether a request was refused by middleware or by a handler.
type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, errorBody{Error: msg})
}

// writeTooManyRequests sets Retry-After in seconds and mirrors it in the body.
func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs < 1 {
		retryAfterSecs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	writeBody(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", RetryAfter: retryAfterSecs})
}

func writeBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
