package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Response is a fully read 2xx/3xx reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out. Empty bodies (204) leave out untouched.
func (r *Response) Decode(out any) error {
	if r == nil || out == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}
