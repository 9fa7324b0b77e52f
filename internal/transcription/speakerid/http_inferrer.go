package speakerid

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
)

// HTTPInferrer delegates inference to the backend's identify endpoint so the capture client never
// holds an LLM key.
type HTTPInferrer struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	maxRetries int
}

func NewHTTPInferrer(baseURL, sessionID string, timeout time.Duration) *HTTPInferrer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPInferrer{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 1,
	}
}

type identifyResponse struct {
	Guess Guess `json:"guess"`
}

func (h *HTTPInferrer) Infer(ctx context.Context, req Request) (Guess, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Guess{}, err
	}
	url := fmt.Sprintf("%s/api/sessions/%s/speakers/identify", h.baseURL, h.sessionID)
	var out identifyResponse
	err = httpx.Do(ctx, httpx.RetryPolicy{MaxRetries: h.maxRetries}, func(ctx context.Context) (*http.Response, error) {
		hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		hreq.Header.Set("Content-Type", "application/json")
		resp, err := h.httpClient.Do(hreq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpx.StatusError{Service: "identify", StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return resp, fmt.Errorf("identify decode: %w", err)
		}
		return resp, nil
	})
	if err != nil {
		return Guess{}, err
	}
	return out.Guess, nil
}
