package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/apierrors"
	"github.com/jrsteele09/go-session-client/internal/httpext"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const RequestIDHeader = "X-Request-ID"

// SessionSource provides the access token attached to outgoing requests.
type SessionSource interface {
	Current() (session.Session, bool)
}

// Refresher renews the session after the server rejected staleAccessToken.
type Refresher interface {
	RefreshAfter(ctx context.Context, staleAccessToken string) (session.Session, error)
}

// Options describe one logical request.
type Options struct {
	Method   string // defaults to GET
	Header   http.Header
	Body     any // io.Reader, []byte and string are sent as is; anything else is JSON encoded
	SkipAuth bool
}

type Executor struct {
	sessions  SessionSource
	refresher Refresher
	client    *http.Client
	leeway    time.Duration
}

type Option func(*Executor)

func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// WithProactiveRefresh refreshes before sending when the access token is a JWT
// expiring within leeway. Zero disables it.
func WithProactiveRefresh(leeway time.Duration) Option {
	return func(e *Executor) {
		e.leeway = leeway
	}
}

func New(sessions SessionSource, refresher Refresher, options ...Option) (*Executor, error) {
	if sessions == nil {
		return nil, pkgerrors.New("[request New] session source is required")
	}
	if refresher == nil {
		return nil, pkgerrors.New("[request New] refresher is required")
	}
	e := &Executor{
		sessions:  sessions,
		refresher: refresher,
		client:    http.DefaultClient,
	}
	for _, opt := range options {
		opt(e)
	}
	if e.client == nil {
		e.client = http.DefaultClient
	}
	return e, nil
}

// Execute performs the request and returns the decoded response body: nil for
// 204 or an empty body, map/slice/scalar values for JSON, a string otherwise.
// A 401 on an authenticated request triggers one refresh and one retry.
// Failures are *apierrors.Error values.
func (e *Executor) Execute(ctx context.Context, url string, opts Options) (any, error) {
	body, isJSON, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}

	accessToken := ""
	if !opts.SkipAuth {
		if accessToken, err = e.accessToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := e.send(ctx, url, opts, body, isJSON, accessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !opts.SkipAuth {
		drain(resp)
		log.Debug().Str("url", url).Msg("Request unauthorized, refreshing session")

		refreshed, err := e.refresher.RefreshAfter(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		if resp, err = e.send(ctx, url, opts, body, isJSON, refreshed.AccessToken); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	return interpret(resp)
}

// accessToken returns the token to attach, refreshing first when proactive
// refresh is enabled and the token is about to expire.
func (e *Executor) accessToken(ctx context.Context) (string, error) {
	current, ok := e.sessions.Current()
	if !ok {
		return "", nil
	}
	if e.leeway <= 0 || !token.ExpiresWithin(current.AccessToken, e.leeway) {
		return current.AccessToken, nil
	}

	log.Debug().Dur("leeway", e.leeway).Msg("Access token about to expire, refreshing before request")
	refreshed, err := e.refresher.RefreshAfter(ctx, current.AccessToken)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (e *Executor) send(ctx context.Context, url string, opts Options, body []byte, isJSON bool, accessToken string) (*http.Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if isJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := e.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Str("method", method).Str("url", url).Msg("Request failed")
		return nil, apierrors.Network(err)
	}
	log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Msg("Request completed")
	return resp, nil
}

func interpret(resp *http.Response) (any, error) {
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierrors.FromStatus(resp.StatusCode, httpext.DecodeErrorBody(resp))
	}
	decoded, err := httpext.DecodeBody(resp)
	if err != nil {
		var malformed *httpext.MalformedBodyError
		if errors.As(err, &malformed) {
			return nil, apierrors.MalformedResponse(resp.StatusCode, malformed.Raw, err)
		}
		return nil, apierrors.Network(err)
	}
	return decoded, nil
}

// encodeBody buffers the request body so it can be replayed on retry.
func encodeBody(body any) ([]byte, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, false, nil
	case string:
		return []byte(b), false, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read request body: %w", err)
		}
		return data, false, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, true, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
