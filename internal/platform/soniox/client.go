package soniox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/casestudy-backend/internal/platform/envutil"
	"github.com/yungbote/casestudy-backend/internal/platform/httpx"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

const (
	DefaultBaseURL      = "https://api.soniox.com"
	DefaultWebSocketURL = "wss://stt-rt.soniox.com/transcribe-websocket"
	DefaultModel        = "stt-rt-v3"

	// Provider maximum for temporary keys.
	MaxTemporaryKeyTTL = time.Hour
)

// TemporaryKey is a short-lived credential scoped to real-time transcription.
type TemporaryKey struct {
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KeyIssuer issues temporary transcription credentials.
type KeyIssuer interface {
	TemporaryKey(ctx context.Context) (TemporaryKey, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	KeyTTL     time.Duration
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("SONIOX_API_KEY", ""),
		BaseURL:    envutil.String("SONIOX_BASE_URL", DefaultBaseURL),
		KeyTTL:     envutil.Duration("SONIOX_KEY_TTL_SECONDS", MaxTemporaryKeyTTL),
		Timeout:    envutil.Duration("SONIOX_TIMEOUT_SECONDS", 15*time.Second),
		MaxRetries: envutil.Int("SONIOX_MAX_RETRIES", 2),
	}
}

type client struct {
	log        *logger.Logger
	apiKey     string
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	maxRetries int
	now        func() time.Time
}

func NewClient(log *logger.Logger, cfg Config) (KeyIssuer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing SONIOX_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ttl := cfg.KeyTTL
	if ttl <= 0 || ttl > MaxTemporaryKeyTTL {
		ttl = MaxTemporaryKeyTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &client{
		log:        log.With("service", "SonioxClient"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
	}, nil
}

type temporaryKeyRequest struct {
	UsageType        string `json:"usage_type"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type temporaryKeyResponse struct {
	APIKey    string `json:"api_key"`
	ExpiresAt string `json:"expires_at"`
}

func (c *client) TemporaryKey(ctx context.Context) (TemporaryKey, error) {
	body, err := json.Marshal(temporaryKeyRequest{
		UsageType:        "transcribe_websocket",
		ExpiresInSeconds: int(c.ttl / time.Second),
	})
	if err != nil {
		return TemporaryKey{}, err
	}

	var out temporaryKeyResponse
	err = httpx.Do(ctx, httpx.RetryPolicy{
		MaxRetries:     c.maxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, sleep time.Duration, err error) {
			c.log.Warn("temporary key request retrying", "attempt", attempt, "sleep", sleep.String(), "error", err.Error())
		},
	}, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/temporary-api-key", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return resp, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpx.StatusError{Service: "soniox", StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp, fmt.Errorf("soniox decode error: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return TemporaryKey{}, err
	}
	if strings.TrimSpace(out.APIKey) == "" {
		return TemporaryKey{}, fmt.Errorf("soniox returned empty api_key")
	}

	key := TemporaryKey{APIKey: out.APIKey, ExpiresAt: c.now().Add(c.ttl).UTC()}
	if ts, perr := time.Parse(time.RFC3339, strings.TrimSpace(out.ExpiresAt)); perr == nil {
		key.ExpiresAt = ts.UTC()
	}
	return key, nil
}
