package audiostream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
)

// Conn is one duplex connection to the transcription provider. Writes come from a single
// goroutine and reads from another.
type Conn interface {
	WriteText(b []byte) error
	WriteBinary(b []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type Credential struct {
	APIKey    string
	ExpiresAt time.Time
}

// CredentialSource issues a fresh short-lived credential for each connection attempt.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
}

type CredentialFunc func(ctx context.Context) (Credential, error)

func (f CredentialFunc) Credential(ctx context.Context) (Credential, error) { return f(ctx) }

// IssuerCredentials adapts a provider key issuer.
func IssuerCredentials(issuer soniox.KeyIssuer) CredentialSource {
	return CredentialFunc(func(ctx context.Context) (Credential, error) {
		key, err := issuer.TemporaryKey(ctx)
		if err != nil {
			return Credential{}, err
		}
		return Credential{APIKey: key.APIKey, ExpiresAt: key.ExpiresAt}, nil
	})
}

type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	hs := d.HandshakeTimeout
	if hs <= 0 {
		hs = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: hs,
		Proxy:            websocket.DefaultDialer.Proxy,
	}
	c, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	return &wsConn{c: c, writeTimeout: wt}, nil
}

type wsConn struct {
	c            *websocket.Conn
	writeTimeout time.Duration
}

func (w *wsConn) write(kind int, b []byte) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.c.WriteMessage(kind, b)
}

func (w *wsConn) WriteText(b []byte) error   { return w.write(websocket.TextMessage, b) }
func (w *wsConn) WriteBinary(b []byte) error { return w.write(websocket.BinaryMessage, b) }

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) Close() error {
	_ = w.c.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.c.Close()
}
