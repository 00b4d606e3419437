package factories

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
)

// SessionAPIConfig describes an HTTP endpoint that returns a SessionConfig
// JSON payload. It is called once per new session, so prompts and providers
// can vary per learner.
type SessionAPIConfig struct {
	// URL is the endpoint to request. The session id is sent in X-Session-ID.
	URL string `json:"url"`
	// Method is the HTTP method. Defaults to "POST" when Body is set, "GET" otherwise.
	Method string `json:"method,omitempty"`
	// Headers are additional HTTP headers to include in the request.
	Headers map[string]string `json:"headers,omitempty"`
	// Body is an optional JSON body to send with the request.
	Body json.RawMessage `json:"body,omitempty"`
}

var sessionAPIClient = &http.Client{Timeout: 10 * time.Second}

// Fetch calls the configured endpoint and parses the response as a SessionConfig.
func (c *SessionAPIConfig) Fetch(ctx context.Context, sessionID string) (SessionConfig, error) {
	method := c.Method
	if method == "" {
		if len(c.Body) > 0 {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL, bytes.NewReader(c.Body))
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: %w", err)
	}
	if len(c.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Session-ID", sessionID)
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := sessionAPIClient.Do(req)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SessionConfig{}, fmt.Errorf("session api: unexpected status %d from %s", resp.StatusCode, c.URL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("session api: read response: %w", err)
	}
	return SessionConfigFromJSON(data)
}

// ServerConfig configures the web transport.
type ServerConfig struct {
	Addr string `json:"addr"`
	// MaxSessions caps concurrent conversations; 0 means unlimited.
	MaxSessions int `json:"max_sessions"`
	// IdleTimeoutSeconds expires sessions nobody has used for this long; 0 disables expiry.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
	// AllowedOrigins lists CORS origins for the browser frontend.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// IdleTimeout returns IdleTimeoutSeconds as a duration.
func (c ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	// Session is the inline session config used when SessionAPI is not set.
	Session SessionConfig `json:"session"`
	// SessionAPI, when set, is called per session to fetch the SessionConfig dynamically.
	SessionAPI *SessionAPIConfig `json:"session_api,omitempty"`
	Server     ServerConfig      `json:"server"`
	Latency    LatencyConfig     `json:"latency"`
	// LogDir receives one JSONL log per session. Empty disables session logs.
	LogDir string `json:"log_dir,omitempty"`
	// ScenariosPath points to a scenario catalogue file. Empty uses the
	// built-in catalogue.
	ScenariosPath string `json:"scenarios_path,omitempty"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Session: DefaultSessionConfig(),
		Server: ServerConfig{
			Addr:               ":5000",
			MaxSessions:        100,
			IdleTimeoutSeconds: 1800,
		},
		Latency: LatencyConfig{CSVPath: "latency_log.csv"},
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig. Fields
// absent from the JSON keep their defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// SettingsConfigFromBase64 parses a base64-encoded JSON SettingsConfig, as
// passed through SETTINGS_JSON_B64.
func SettingsConfigFromBase64(b64 string) (SettingsConfig, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: decode base64: %w", err)
	}
	return SettingsConfigFromJSON(data)
}
