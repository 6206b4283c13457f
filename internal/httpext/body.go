package httpext

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 10 << 20

// IsJSON reports whether a Content-Type header declares a JSON body
// (application/json or any +json suffix).
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// MalformedBodyError is returned by DecodeBody when a body declared as JSON
// does not parse. Raw holds the body text.
type MalformedBodyError struct {
	Raw string
	Err error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("invalid JSON response: %v", e.Err)
}

func (e *MalformedBodyError) Unwrap() error {
	return e.Err
}

// DecodeBody reads resp.Body according to its declared content type: JSON
// bodies decode into any (objects become map[string]any), everything else is
// returned as a string. An empty body decodes to nil.
func DecodeBody(resp *http.Response) (any, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !IsJSON(resp.Header.Get("Content-Type")) {
		return string(data), nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &MalformedBodyError{Raw: string(data), Err: err}
	}
	return v, nil
}

// DecodeErrorBody is DecodeBody for error responses: a declared-JSON body
// that fails to parse is returned as raw text instead of failing.
func DecodeErrorBody(resp *http.Response) any {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if IsJSON(resp.Header.Get("Content-Type")) {
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
