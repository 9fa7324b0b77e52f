package audiostream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
)

// AudioSource yields encoded audio frames. ReadFrame returns io.EOF (or any error) when the
// audio ends; Close must unblock a pending ReadFrame.
type AudioSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

type Config struct {
	URL string

	SpeakerCount int
	ContextTerms []string
	AudioFormat  string
	SampleRate   int
	NumChannels  int

	SendInterval         time.Duration
	MaxQueuedFrames      int
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	CredentialTimeout    time.Duration
	DialTimeout          time.Duration
	FinalizeTimeout      time.Duration
	EventBuffer          int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = soniox.DefaultWebSocketURL
	}
	if c.SendInterval <= 0 {
		c.SendInterval = 100 * time.Millisecond
	}
	if c.MaxQueuedFrames <= 0 {
		c.MaxQueuedFrames = 50
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.CredentialTimeout <= 0 {
		c.CredentialTimeout = 10 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 5 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

func (c Config) streamConfig(apiKey string) soniox.StreamConfig {
	sc := soniox.DiscussionConfig(apiKey, c.SpeakerCount, c.ContextTerms)
	if c.AudioFormat != "" {
		sc.AudioFormat = c.AudioFormat
		sc.SampleRate = c.SampleRate
		sc.NumChannels = c.NumChannels
	}
	return sc
}

var keepaliveMessage = []byte(`{"type":"keepalive"}`)

var (
	ErrAlreadyStarted = errors.New("audio stream already started")
	errProviderClosed = errors.New("provider ended the stream")
)

// Session streams one audio source to the transcription provider. All mutable state is owned by a
// single loop goroutine; callers observe it through Events and State.
type Session struct {
	cfg   Config
	creds CredentialSource
	dial  Dialer
	log   *logger.Logger

	state  atomic.Int32
	events chan Event

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce        sync.Once
	closeSourceOnce sync.Once
	src             AudioSource

	// loop-owned
	frames     chan []byte
	queue      *sendQueue
	audioEnded bool
	healthy    bool
}

func New(cfg Config, creds CredentialSource, dialer Dialer, log *logger.Logger) *Session {
	cfg = cfg.withDefaults()
	if dialer == nil {
		dialer = WebSocketDialer{HandshakeTimeout: cfg.DialTimeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		cfg:    cfg,
		creds:  creds,
		dial:   dialer,
		log:    log.With("component", "AudioStreamSession"),
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
		queue:  newSendQueue(cfg.MaxQueuedFrames),
	}
}

// Events must be drained until it is closed.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reaches Finished or Error.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Start(ctx context.Context, src AudioSource) error {
	if src == nil {
		return fmt.Errorf("audio source required")
	}
	if s.creds == nil {
		return fmt.Errorf("credential source required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.src = src
	frames := make(chan []byte, 64)
	s.frames = frames

	go s.readAudio(src, frames)
	go func() {
		defer cancel()
		s.run(ctx)
	}()
	return nil
}

// Stop ends the session from any state and waits for the final tokens to be delivered. It is
// safe to call more than once and from any goroutine.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.stopOnce.Do(func() {
			s.setState(StateFinished)
			s.emit(Closed{State: StateFinished})
			close(s.events)
			close(s.done)
		})
		return
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		s.stopOnce.Do(cancel)
	}
	<-s.done
}

func (s *Session) readAudio(src AudioSource, out chan<- []byte) {
	defer close(out)
	for {
		frame, err := src.ReadFrame()
		if err != nil {
			return
		}
		if len(frame) == 0 {
			continue
		}
		select {
		case out <- frame:
		case <-s.done:
			return
		}
	}
}

func (s *Session) closeSource() {
	s.closeSourceOnce.Do(func() {
		if s.src != nil {
			if err := s.src.Close(); err != nil {
				s.log.Warn("audio source close failed", "error", err)
			}
		}
	})
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.log.Debug("stream state changed", "from", from.String(), "to", to.String())
	s.emit(StateChanged{From: from, To: to})
}

func (s *Session) emit(ev Event) {
	s.events <- ev
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.closeSource()
		s.emit(Closed{State: s.State()})
		close(s.events)
		close(s.done)
	}()

	s.setState(StateConnecting)
	failures := 0
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.setState(StateFinished)
			return
		}
		attempt++
		conn, err := s.connect(ctx)
		if err == nil {
			s.healthy = false
			err = s.stream(ctx, conn, attempt)
			if err == nil {
				s.setState(StateFinished)
				return
			}
			// Only a connection that delivered clean provider messages resets the budget.
			if s.healthy {
				failures = 0
			}
		}
		if ctx.Err() != nil {
			s.setState(StateFinished)
			return
		}

		failures++
		observability.Current().IncStreamReconnect("failure")
		if failures > s.cfg.MaxReconnectAttempts {
			terminal := &StreamError{Attempts: failures}
			var se *StreamError
			if errors.As(err, &se) {
				terminal.Code = se.Code
				terminal.Message = se.Message
				terminal.Err = se.Err
			} else {
				terminal.Err = err
			}
			s.log.Error("stream failed permanently", "attempts", failures, "error", err)
			s.emit(Errored{Err: terminal, Terminal: true})
			s.setState(StateError)
			return
		}
		s.log.Warn("stream interrupted, reconnecting", "failures", failures, "error", err)
		s.emit(Errored{Err: err})
		s.setState(StateReconnecting)
		if !s.waitReconnect(ctx) {
			s.setState(StateFinished)
			return
		}
	}
}

// waitReconnect keeps buffering audio during the reconnect delay. It reports false when the
// session was stopped meanwhile.
func (s *Session) waitReconnect(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.ReconnectDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case f, ok := <-s.frames:
			if !ok {
				s.frames = nil
				s.audioEnded = true
				continue
			}
			s.queue.push(f)
		}
	}
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	credCtx, cancel := context.WithTimeout(ctx, s.cfg.CredentialTimeout)
	cred, err := s.creds.Credential(credCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("temporary credential: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	conn, err := s.dial.Dial(dialCtx, s.cfg.URL)
	cancel()
	if err != nil {
		return nil, err
	}

	msg, err := json.Marshal(s.cfg.streamConfig(cred.APIKey))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteText(msg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send stream config: %w", err)
	}
	return conn, nil
}

type inbound struct {
	msg []byte
	err error
}

// stream runs one connection. It returns nil after a clean finalize and an error when the
// connection failed while the session was still active. conn is closed exactly once on return.
func (s *Session) stream(ctx context.Context, conn Conn, attempt int) error {
	quit := make(chan struct{})
	reads := make(chan inbound, 16)
	defer func() {
		close(quit)
		if err := conn.Close(); err != nil {
			s.log.Debug("transport close", "error", err)
		}
	}()
	go func() {
		for {
			msg, err := conn.ReadMessage()
			select {
			case reads <- inbound{msg: msg, err: err}:
			case <-quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	s.setState(StateStreaming)
	s.emit(Opened{Attempt: attempt})
	if attempt > 1 {
		observability.Current().IncStreamReconnect("success")
	}
	if s.audioEnded {
		return s.finalize(conn, reads)
	}

	sendTicker := time.NewTicker(s.cfg.SendInterval)
	defer sendTicker.Stop()
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.finalize(conn, reads)

		case f, ok := <-s.frames:
			if !ok {
				s.frames = nil
				s.audioEnded = true
				return s.finalize(conn, reads)
			}
			s.queue.push(f)

		case <-sendTicker.C:
			f := s.queue.pop()
			if f == nil {
				continue
			}
			if err := conn.WriteBinary(f); err != nil {
				s.queue.pushFront(f)
				return &StreamError{Err: fmt.Errorf("send audio: %w", err)}
			}

		case <-heartbeat.C:
			if err := conn.WriteText(keepaliveMessage); err != nil {
				return &StreamError{Err: fmt.Errorf("send keepalive: %w", err)}
			}

		case in := <-reads:
			if in.err != nil {
				return &StreamError{Err: in.err}
			}
			finished, err := s.handleMessage(in.msg)
			if err != nil {
				return err
			}
			if finished {
				return &StreamError{Err: errProviderClosed}
			}
		}
	}
}

// handleMessage reports whether the provider marked the stream finished.
func (s *Session) handleMessage(raw []byte) (bool, error) {
	resp, err := soniox.ParseResponse(raw)
	if err != nil {
		s.log.Warn("unparseable provider message", "error", err)
		return false, nil
	}
	if resp.ErrorCode != 0 || resp.ErrorMessage != "" {
		return false, &StreamError{Code: resp.ErrorCode, Message: resp.ErrorMessage}
	}
	s.healthy = true
	if len(resp.Tokens) > 0 {
		s.emit(TokensReceived{Tokens: tokensFromProvider(resp.Tokens), FinalAudioProcMs: resp.FinalAudioProcMs})
	}
	return resp.Finished, nil
}

// drainFrames moves audio the reader already handed over into the send queue without blocking.
func (s *Session) drainFrames() {
	for s.frames != nil {
		select {
		case f, ok := <-s.frames:
			if !ok {
				s.frames = nil
				s.audioEnded = true
				return
			}
			s.queue.push(f)
		default:
			return
		}
	}
}

// finalize flushes buffered audio, signals end of audio with an empty frame and waits for the
// provider to report finished.
func (s *Session) finalize(conn Conn, reads <-chan inbound) error {
	s.drainFrames()
	s.log.Debug("finalizing stream", "queued_frames", s.queue.len(), "coalesced_frames", s.queue.merged)
	for f := s.queue.pop(); f != nil; f = s.queue.pop() {
		if err := conn.WriteBinary(f); err != nil {
			s.log.Warn("flush audio failed", "error", err)
			return nil
		}
	}
	if err := conn.WriteBinary([]byte{}); err != nil {
		s.log.Warn("end-of-audio send failed", "error", err)
		return nil
	}
	timer := time.NewTimer(s.cfg.FinalizeTimeout)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			s.log.Warn("provider did not finish in time", "timeout", s.cfg.FinalizeTimeout.String())
			return nil
		case in := <-reads:
			if in.err != nil {
				return nil
			}
			finished, err := s.handleMessage(in.msg)
			if err != nil {
				s.emit(Errored{Err: err})
				return nil
			}
			if finished {
				return nil
			}
		}
	}
}
