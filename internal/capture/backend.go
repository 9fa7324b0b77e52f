package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/casestudy-backend/internal/platform/httpx"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
	"github.com/yungbote/casestudy-backend/internal/transcription/audiostream"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoleCode     string `json:"role_code"`
	SpeakerLabel string `json:"speaker_label,omitempty"`
}

type StreamCredentials struct {
	APIKey               string              `json:"api_key"`
	ExpiresAt            time.Time           `json:"expires_at"`
	WebSocketURL         string              `json:"websocket_url"`
	Config               soniox.StreamConfig `json:"config"`
	ChunkIntervalSeconds int                 `json:"chunk_interval_seconds"`
	Session              struct {
		ID           string        `json:"id"`
		Name         string        `json:"name"`
		Status       string        `json:"status"`
		Participants []Participant `json:"participants"`
	} `json:"session"`
}

type ChunkRequest struct {
	RawText         string            `json:"raw_text"`
	DurationSeconds int               `json:"duration_seconds"`
	SpeakerMapping  map[string]string `json:"speaker_mapping,omitempty"`
	Kind            string            `json:"kind"`
}

type ChunkResponse struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Kind    string `json:"kind"`
}

// Correction is an operator's naming of a speaker tag, posted to the server while recording.
type Correction struct {
	Seq        int64  `json:"seq"`
	SpeakerTag int    `json:"speaker_tag"`
	Name       string `json:"name"`
}

// Backend is the capture client's view of the processing server for one session.
type Backend struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	maxRetries int
}

func NewBackend(baseURL, sessionID string, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Backend{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		sessionID:  strings.TrimSpace(sessionID),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
	}
}

func (b *Backend) SessionID() string { return b.sessionID }

func (b *Backend) StreamCredentials(ctx context.Context) (*StreamCredentials, error) {
	var out StreamCredentials
	if err := b.do(ctx, http.MethodPost, "stream-credentials", "stream_credentials", b.maxRetries, nil, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.APIKey) == "" {
		return nil, fmt.Errorf("stream credentials: empty api key")
	}
	return &out, nil
}

// Credentials fetches a fresh temporary key for every connection attempt.
func (b *Backend) Credentials() audiostream.CredentialSource {
	return audiostream.CredentialFunc(func(ctx context.Context) (audiostream.Credential, error) {
		creds, err := b.StreamCredentials(ctx)
		if err != nil {
			return audiostream.Credential{}, err
		}
		return audiostream.Credential{APIKey: creds.APIKey, ExpiresAt: creds.ExpiresAt}, nil
	})
}

// AppendChunk is sent once: appends are not idempotent, and a retried 5xx could store the same
// text under two versions. A 409 means the session left the discussion phase.
func (b *Backend) AppendChunk(ctx context.Context, req ChunkRequest) (*ChunkResponse, error) {
	var out ChunkResponse
	if err := b.do(ctx, http.MethodPost, "chunks", "append_chunk", 0, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Corrections returns operator corrections newer than after, oldest first.
func (b *Backend) Corrections(ctx context.Context, after int64) ([]Correction, error) {
	var out struct {
		Corrections []Correction `json:"corrections"`
	}
	path := fmt.Sprintf("speakers/corrections?after=%d", after)
	if err := b.do(ctx, http.MethodGet, path, "speaker_corrections", 1, nil, &out); err != nil {
		return nil, err
	}
	return out.Corrections, nil
}

// Inferrer sends speaker identification through the server.
func (b *Backend) Inferrer() speakerid.NameInferrer {
	return speakerid.NewHTTPInferrer(b.baseURL, b.sessionID, b.httpClient.Timeout)
}

func (b *Backend) do(ctx context.Context, method, path, service string, retries int, body any, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = raw
	}
	url := fmt.Sprintf("%s/api/sessions/%s/%s", b.baseURL, b.sessionID, path)
	return httpx.Do(ctx, httpx.RetryPolicy{MaxRetries: retries}, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpx.StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if out == nil {
			return resp, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return resp, fmt.Errorf("%s decode: %w", service, err)
		}
		return resp, nil
	})
}
