package fakebackend_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-session-client/internal/fakebackend"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, b *fakebackend.Backend, path string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := b.Client().Post(b.URL()+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func get(t *testing.T, b *fakebackend.Backend, path, accessToken string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.URL()+path, nil)
	require.NoError(t, err)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := b.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func tokens(t *testing.T, payload map[string]any) (string, string) {
	t.Helper()
	pair, ok := payload["tokens"].(map[string]any)
	require.True(t, ok)
	return pair["access"].(string), pair["refresh"].(string)
}

func newBackend(t *testing.T) *fakebackend.Backend {
	t.Helper()
	b := fakebackend.New()
	t.Cleanup(b.Close)
	b.AddUser(fakebackend.User{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com", Password: "secret"})
	b.PutPaper("p1", map[string]any{"title": "On Computable Numbers"})
	return b
}

func TestLogin(t *testing.T) {
	b := newBackend(t)

	status, body := post(t, b, "/auth/login", map[string]string{"email": "ada@example.com", "password": "secret"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "user-1", body["id_user"])
	access, refresh := tokens(t, body)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	status, body = post(t, b, "/auth/login", map[string]string{"email": "ada@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid_credentials", body["error"])
	require.Equal(t, 2, b.Hits(fakebackend.RouteLogin))
}

func TestRefreshTokensAreSingleUse(t *testing.T) {
	b := newBackend(t)
	payload, err := b.Login("ada@example.com")
	require.NoError(t, err)
	_, refresh := tokens(t, payload)

	status, body := post(t, b, "/auth/refresh", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, status)
	_, rotated := tokens(t, body)
	require.NotEqual(t, refresh, rotated)

	status, body = post(t, b, "/auth/refresh", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token_inactive", body["error"])

	status, body = post(t, b, "/auth/refresh", map[string]string{"refresh_token": "nope"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token_not_found", body["error"])

	b.ExpireRefreshTokens()
	status, body = post(t, b, "/auth/refresh", map[string]string{"refresh_token": rotated})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "token_expired", body["error"])
	require.Equal(t, "Refresh token expired", body["message"])
	require.Equal(t, 4, b.RefreshCalls())
}

func TestPaperRequiresValidAccessToken(t *testing.T) {
	b := newBackend(t)
	payload, err := b.Login("ada@example.com")
	require.NoError(t, err)
	access, _ := tokens(t, payload)

	resp, body := get(t, b, "/paper/p1", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "On Computable Numbers")

	resp, _ = get(t, b, "/paper/missing", access)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, b, "/paper/p1", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	b.ExpireAccessTokens()
	resp, body = get(t, b, "/paper/p1", access)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.JSONEq(t, `{"error":"access_token_expired"}`, string(body))

	fresh, err := b.Login("ada@example.com")
	require.NoError(t, err)
	access, _ = tokens(t, fresh)
	resp, _ = get(t, b, "/paper/p1", access)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeletePaperReturnsNoContent(t *testing.T) {
	b := newBackend(t)
	payload, err := b.Login("ada@example.com")
	require.NoError(t, err)
	access, _ := tokens(t, payload)

	req, err := http.NewRequest(http.MethodDelete, b.URL()+"/paper/p1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := b.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok := b.Paper("p1")
	require.False(t, ok)
}

func TestStatusIsPlainText(t *testing.T) {
	b := newBackend(t)
	resp, body := get(t, b, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	require.Equal(t, "ok", string(body))
}
