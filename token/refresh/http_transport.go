package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/internal/httpext"
	"github.com/jrsteele09/go-session-client/session"
	pkgerrors "github.com/pkg/errors"
)

var _ Transport = (*HTTPTransport)(nil)

// HTTPTransport posts {"refresh_token": ...} as JSON to a refresh endpoint and
// expects a login-shaped response.
type HTTPTransport struct {
	url    string
	client *http.Client
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func NewHTTPTransport(url string, client *http.Client) (*HTTPTransport, error) {
	if url == "" {
		return nil, pkgerrors.New("[NewHTTPTransport] refresh url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{url: url, client: client}, nil
}

func (t *HTTPTransport) Exchange(ctx context.Context, refreshToken string) (session.Session, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := t.client.Do(req)
	if err != nil {
		return session.Session{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.Session{}, &ExchangeError{Status: resp.StatusCode, Body: httpext.DecodeErrorBody(resp)}
	}

	decoded, err := httpext.DecodeBody(resp)
	if err != nil {
		return session.Session{}, err
	}
	s, ok := session.FromPayload(decoded)
	if !ok {
		return session.Session{}, fmt.Errorf("refresh response is not a session: %w", session.ErrIncompleteSession)
	}
	return s, nil
}
