package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNilRequest is returned when a nil descriptor reaches the client.
	ErrNilRequest = errors.New("apiclient: nil request")
	// ErrEmptyAccessToken is returned when the refresh endpoint answers without a token.
	ErrEmptyAccessToken = errors.New("apiclient: refresh returned empty access token")
)

// HTTPError is a response with status >= 400.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backoffice api: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backoffice api: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

func newHTTPError(req *Request, status int, body []byte) *HTTPError {
	return &HTTPError{
		StatusCode: status,
		Method:     req.Method,
		Path:       req.Path,
		Body:       body,
		Detail:     parseDetail(body),
	}
}

// parseDetail extracts the FastAPI "detail" member, which is either a string
// or a list of validation errors.
func parseDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(envelope.Detail)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func IsUnauthorized(err error) bool { return StatusCode(err) == http.StatusUnauthorized }

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }
