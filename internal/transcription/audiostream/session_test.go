package audiostream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
)

type fakeConn struct {
	mu       sync.Mutex
	texts    [][]byte
	binaries [][]byte
	sentAt   []time.Time

	in     chan []byte
	closed chan struct{}
	once   sync.Once
	closeN int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) WriteText(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) WriteBinary(b []byte) error {
	c.mu.Lock()
	c.binaries = append(c.binaries, append([]byte(nil), b...))
	c.sentAt = append(c.sentAt, time.Now())
	c.mu.Unlock()
	if len(b) == 0 {
		c.in <- []byte(`{"tokens":[{"text":"bye","speaker":2,"is_final":true}],"finished":true}`)
	}
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	atomic.AddInt32(&c.closeN, 1)
	c.drop()
	return nil
}

func (c *fakeConn) drop() { c.once.Do(func() { close(c.closed) }) }

func (c *fakeConn) snapshot() ([][]byte, [][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.texts...), append([][]byte(nil), c.binaries...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	d.calls++
	if idx < len(d.conns) {
		return d.conns[idx], nil
	}
	return nil, errors.New("dial refused")
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeSource struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
	closeN int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (s *fakeSource) ReadFrame() ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeSource) Close() error {
	atomic.AddInt32(&s.closeN, 1)
	s.once.Do(func() { close(s.closed) })
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(ch <-chan Event) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func isOpened(ev Event) bool {
	_, ok := ev.(Opened)
	return ok
}

func countingCreds(n *int32) CredentialSource {
	return CredentialFunc(func(ctx context.Context) (Credential, error) {
		atomic.AddInt32(n, 1)
		return Credential{APIKey: "tmp-key"}, nil
	})
}

func fastConfig() Config {
	return Config{
		SpeakerCount:      2,
		SendInterval:      time.Millisecond,
		HeartbeatInterval: time.Hour,
		ReconnectDelay:    time.Millisecond,
		FinalizeTimeout:   time.Second,
	}
}

func TestSessionSendsConfigThenAudioAndStopsCleanly(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	var credCalls int32
	s := New(fastConfig(), countingCreds(&credCalls), dialer, logger.Nop())
	rec := record(s.Events())
	src := newFakeSource()

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), src); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start: %v", err)
	}
	src.frames <- []byte("a")
	src.frames <- []byte("b")
	waitFor(t, "audio frames", func() bool {
		_, bins := conn.snapshot()
		return len(bins) >= 2
	})
	conn.in <- []byte(`{"tokens":[{"text":"hi","speaker":"1","start_ms":40,"end_ms":140,"is_final":true}]}`)
	waitFor(t, "tokens", func() bool {
		return rec.count(func(ev Event) bool {
			_, ok := ev.(TokensReceived)
			return ok
		}) >= 1
	})

	s.Stop()
	s.Stop()
	<-rec.done

	texts, bins := conn.snapshot()
	var cfg soniox.StreamConfig
	if err := json.Unmarshal(texts[0], &cfg); err != nil {
		t.Fatalf("first message must be the JSON config: %v", err)
	}
	if cfg.APIKey != "tmp-key" || cfg.SpeakerDiarization == nil || cfg.SpeakerDiarization.MaxSpeakers != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if string(bins[0]) != "a" || string(bins[1]) != "b" {
		t.Fatalf("audio order: %q %q", bins[0], bins[1])
	}
	if last := bins[len(bins)-1]; len(last) != 0 {
		t.Fatalf("last frame must be the empty end-of-audio signal, got %q", last)
	}
	if n := atomic.LoadInt32(&conn.closeN); n != 1 {
		t.Fatalf("transport closed %d times", n)
	}
	if n := atomic.LoadInt32(&src.closeN); n != 1 {
		t.Fatalf("source closed %d times", n)
	}
	if s.State() != StateFinished {
		t.Fatalf("state: %s", s.State())
	}
	if atomic.LoadInt32(&credCalls) != 1 {
		t.Fatalf("credential calls: %d", credCalls)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var tokens []Token
	for _, ev := range rec.events {
		if tr, ok := ev.(TokensReceived); ok {
			tokens = append(tokens, tr.Tokens...)
		}
	}
	if len(tokens) != 2 || tokens[0].Speaker != 1 || tokens[0].DurationMs != 100 || tokens[1].Text != "bye" {
		t.Fatalf("tokens: %+v", tokens)
	}
	if _, ok := rec.events[len(rec.events)-1].(Closed); !ok {
		t.Fatalf("last event must be Closed, got %T", rec.events[len(rec.events)-1])
	}
}

func TestSessionReconnectsWithFreshCredential(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	var credCalls int32
	s := New(fastConfig(), countingCreds(&credCalls), dialer, logger.Nop())
	rec := record(s.Events())

	if err := s.Start(context.Background(), newFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first open", func() bool { return rec.count(isOpened) == 1 })
	conn1.drop()
	waitFor(t, "reopen", func() bool { return rec.count(isOpened) == 2 })
	s.Stop()
	<-rec.done

	if dialer.callCount() != 2 || atomic.LoadInt32(&credCalls) != 2 {
		t.Fatalf("dials=%d creds=%d", dialer.callCount(), credCalls)
	}
	if n := atomic.LoadInt32(&conn1.closeN); n != 1 {
		t.Fatalf("dropped transport closed %d times", n)
	}
	reconnecting := rec.count(func(ev Event) bool {
		sc, ok := ev.(StateChanged)
		return ok && sc.To == StateReconnecting
	})
	if reconnecting != 1 {
		t.Fatalf("reconnecting transitions: %d", reconnecting)
	}
	if s.State() != StateFinished {
		t.Fatalf("state: %s", s.State())
	}
}

func TestSessionGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := fastConfig()
	cfg.MaxReconnectAttempts = 2
	var credCalls int32
	s := New(cfg, countingCreds(&credCalls), dialer, logger.Nop())
	rec := record(s.Events())

	if err := s.Start(context.Background(), newFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not terminate")
	}
	<-rec.done
	if s.State() != StateError {
		t.Fatalf("state: %s", s.State())
	}
	if dialer.callCount() != 3 {
		t.Fatalf("dial calls: %d", dialer.callCount())
	}
	var terminal *StreamError
	rec.mu.Lock()
	for _, ev := range rec.events {
		if e, ok := ev.(Errored); ok && e.Terminal {
			if !errors.As(e.Err, &terminal) {
				t.Fatalf("terminal error type: %T", e.Err)
			}
		}
	}
	rec.mu.Unlock()
	if terminal == nil || terminal.Attempts != 3 {
		t.Fatalf("terminal error: %+v", terminal)
	}
	s.Stop()
}

func TestSessionProviderErrorCodeIsSurfaced(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	conn1.in <- []byte(`{"error_code":401,"error_message":"bad key"}`)
	conn2.in <- []byte(`{"error_code":401,"error_message":"bad key"}`)
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}
	cfg := fastConfig()
	cfg.MaxReconnectAttempts = 1
	var credCalls int32
	s := New(cfg, countingCreds(&credCalls), dialer, logger.Nop())
	rec := record(s.Events())

	if err := s.Start(context.Background(), newFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-s.Done()
	<-rec.done

	var terminal *StreamError
	rec.mu.Lock()
	for _, ev := range rec.events {
		if e, ok := ev.(Errored); ok && e.Terminal {
			_ = errors.As(e.Err, &terminal)
		}
	}
	rec.mu.Unlock()
	if terminal == nil || terminal.Code != 401 || terminal.Message != "bad key" {
		t.Fatalf("terminal error: %+v", terminal)
	}
	if atomic.LoadInt32(&conn1.closeN) != 1 || atomic.LoadInt32(&conn2.closeN) != 1 {
		t.Fatalf("each transport must be closed once")
	}
}

func TestStopBeforeStart(t *testing.T) {
	s := New(fastConfig(), countingCreds(new(int32)), &fakeDialer{}, nil)
	s.Stop()
	select {
	case <-s.Done():
	default:
		t.Fatalf("done should be closed")
	}
	var last Event
	for ev := range s.Events() {
		last = ev
	}
	if _, ok := last.(Closed); !ok {
		t.Fatalf("last event: %T", last)
	}
	if err := s.Start(context.Background(), newFakeSource()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Start after Stop: %v", err)
	}
}

func TestSessionSendsKeepaliveWhileIdle(t *testing.T) {
	conn := newFakeConn()
	cfg := fastConfig()
	cfg.HeartbeatInterval = 30 * time.Millisecond
	s := New(cfg, countingCreds(new(int32)), &fakeDialer{conns: []*fakeConn{conn}}, logger.Nop())
	rec := record(s.Events())

	if err := s.Start(context.Background(), newFakeSource()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "keepalives", func() bool {
		texts, _ := conn.snapshot()
		return len(texts) >= 4
	})
	texts, bins := conn.snapshot()
	s.Stop()
	<-rec.done

	for i, msg := range texts[1:] {
		if string(msg) != `{"type":"keepalive"}` {
			t.Fatalf("text %d after config: %s", i+1, msg)
		}
	}
	if len(bins) != 0 {
		t.Fatalf("no audio was read, yet %d binary frames were sent", len(bins))
	}
}

func TestSessionSendsAtMostOneFramePerInterval(t *testing.T) {
	conn := newFakeConn()
	cfg := fastConfig()
	cfg.SendInterval = 50 * time.Millisecond
	s := New(cfg, countingCreds(new(int32)), &fakeDialer{conns: []*fakeConn{conn}}, logger.Nop())
	rec := record(s.Events())
	src := newFakeSource()

	if err := s.Start(context.Background(), src); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "open", func() bool { return rec.count(isOpened) == 1 })
	for i := 0; i < 10; i++ {
		src.frames <- []byte{byte('a' + i)}
	}
	time.Sleep(260 * time.Millisecond)

	conn.mu.Lock()
	sent := len(conn.binaries)
	times := append([]time.Time(nil), conn.sentAt...)
	conn.mu.Unlock()
	if sent < 2 || sent > 6 {
		t.Fatalf("binaries after 260ms: %d, want about 5", sent)
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 25*time.Millisecond {
			t.Fatalf("frames %d and %d sent %s apart", i-1, i, gap)
		}
	}

	s.Stop()
	<-rec.done
	_, bins := conn.snapshot()
	if len(bins) != 11 {
		t.Fatalf("binaries after stop: %d, want 10 audio frames plus end-of-audio", len(bins))
	}
	for i := 0; i < 10; i++ {
		if len(bins[i]) != 1 || bins[i][0] != byte('a'+i) {
			t.Fatalf("frame %d out of order: %q", i, bins[i])
		}
	}
	if len(bins[10]) != 0 {
		t.Fatalf("last frame must be empty, got %q", bins[10])
	}
}

func TestSendQueueCoalescesInsteadOfDropping(t *testing.T) {
	q := newSendQueue(2)
	q.push([]byte("a"))
	q.push([]byte("b"))
	q.push([]byte("c"))
	if q.len() != 2 || q.merged != 1 || q.bytes != 3 {
		t.Fatalf("len=%d merged=%d bytes=%d", q.len(), q.merged, q.bytes)
	}
	if got := string(q.pop()); got != "a" {
		t.Fatalf("first: %q", got)
	}
	q.pushFront([]byte("z"))
	if got := string(q.pop()); got != "z" {
		t.Fatalf("requeued: %q", got)
	}
	if got := string(q.pop()); got != "bc" {
		t.Fatalf("merged: %q", got)
	}
	if q.pop() != nil || q.bytes != 0 {
		t.Fatalf("queue should be empty")
	}
}
