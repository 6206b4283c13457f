package config

import "time"

type HTTPConfig interface {
	GetRefreshTransport() string
	GetRefreshService() string
	GetRefreshPath() string
	GetHTTPTimeout() time.Duration
	GetProactiveRefreshLeeway() time.Duration
}

// Refresh transports.
const (
	TransportHTTP   = "http"
	TransportOAuth2 = "oauth2"
)

type HTTP struct{}

var _ HTTPConfig = HTTP{}

func (HTTP) GetRefreshTransport() string {
	return GetEnv("REFRESH_TRANSPORT", TransportHTTP)
}

func (HTTP) GetRefreshService() string {
	return GetEnv("REFRESH_SERVICE", "auth")
}

func (HTTP) GetRefreshPath() string {
	return GetEnv("REFRESH_PATH", "/auth/refresh")
}

func (HTTP) GetHTTPTimeout() time.Duration {
	return GetDuration("HTTP_TIMEOUT", 30*time.Second)
}

// GetProactiveRefreshLeeway returns zero when proactive refresh is off.
func (HTTP) GetProactiveRefreshLeeway() time.Duration {
	return GetDuration("PROACTIVE_REFRESH_LEEWAY", 0)
}
