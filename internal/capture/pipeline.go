package capture

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/transcription/audiostream"
	"github.com/yungbote/casestudy-backend/internal/transcription/segmenter"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

const (
	kindRolling = "rolling"
	kindFull    = "full"

	maxRollingSeconds = 120
)

// ChunkSink receives transcript chunks; Backend implements it.
type ChunkSink interface {
	AppendChunk(ctx context.Context, req ChunkRequest) (*ChunkResponse, error)
}

// CorrectionSource yields operator speaker corrections newer than a cursor; Backend implements it.
type CorrectionSource interface {
	Corrections(ctx context.Context, after int64) ([]Correction, error)
}

// Stream is the part of audiostream.Session the pipeline drives.
type Stream interface {
	Start(ctx context.Context, src audiostream.AudioSource) error
	Stop()
	Events() <-chan audiostream.Event
}

type Config struct {
	ChunkInterval      time.Duration
	TickInterval       time.Duration
	CorrectionInterval time.Duration
	AppendTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 60 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.CorrectionInterval <= 0 {
		c.CorrectionInterval = 2 * time.Second
	}
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = 30 * time.Second
	}
	return c
}

type Summary struct {
	RollingChunks int
	FullVersion   int64
	Duration      time.Duration
	Corrections   int
	Mapping       speakerid.Mapping
	StreamErr     error
}

// Pipeline turns one audio stream into rolling transcript chunks plus a final full transcript.
type Pipeline struct {
	cfg      Config
	log      *logger.Logger
	sink     ChunkSink
	resolver *speakerid.Resolver
	now      func() time.Time

	corrections   CorrectionSource
	correctionSeq int64
	corrected     int

	mu        sync.Mutex
	acc       segmenter.Accumulator
	finalIdx  int
	started   time.Time
	lastFlush time.Time
	posted    int
}

func NewPipeline(cfg Config, sink ChunkSink, resolver *speakerid.Resolver, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		cfg:      cfg.withDefaults(),
		log:      log.With("component", "CapturePipeline"),
		sink:     sink,
		resolver: resolver,
		now:      time.Now,
	}
}

// WithCorrections makes the pipeline poll src for operator corrections while it runs and apply
// them to the resolver.
func (p *Pipeline) WithCorrections(src CorrectionSource) *Pipeline {
	p.corrections = src
	return p
}

// Run streams src until the audio ends or ctx is cancelled, then stops the stream gracefully and
// posts the full transcript. Cancelling ctx is the normal way to end a live capture.
func (p *Pipeline) Run(ctx context.Context, stream Stream, src audiostream.AudioSource) (*Summary, error) {
	p.mu.Lock()
	p.started = p.now()
	p.lastFlush = p.started
	p.mu.Unlock()

	// The stream outlives ctx so Stop can finalize it.
	if err := stream.Start(context.WithoutCancel(ctx), src); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}

	closed := make(chan struct{})
	var streamErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(closed)
		streamErr = p.consume(stream.Events())
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			stream.Stop()
		case <-closed:
		}
		return nil
	})
	g.Go(func() error {
		p.tickLoop(gctx, closed)
		return nil
	})
	g.Go(func() error {
		p.chunkLoop(gctx, closed)
		return nil
	})
	g.Go(func() error {
		p.correctionLoop(gctx, closed)
		return nil
	})
	_ = g.Wait()

	// Everything below runs after a possible signal, so it gets its own deadline.
	finishCtx := context.WithoutCancel(ctx)
	p.pollCorrections(finishCtx)
	p.flushRolling(finishCtx)
	full, err := p.postFull(finishCtx)

	p.mu.Lock()
	summary := &Summary{
		RollingChunks: p.posted,
		Corrections:   p.corrected,
		Duration:      p.now().Sub(p.started),
		StreamErr:     streamErr,
	}
	p.mu.Unlock()
	if p.resolver != nil {
		summary.Mapping = p.resolver.Mapping()
	}
	if full != nil {
		summary.FullVersion = full.Version
	}
	if err != nil {
		return summary, err
	}
	return summary, streamErr
}

func (p *Pipeline) consume(events <-chan audiostream.Event) error {
	var streamErr error
	for ev := range events {
		switch e := ev.(type) {
		case audiostream.Opened:
			p.log.Info("stream opened", "attempt", e.Attempt)
		case audiostream.TokensReceived:
			p.mu.Lock()
			p.acc.Add(e.Tokens)
			segs := p.acc.Segments()
			p.mu.Unlock()
			if p.resolver != nil {
				p.resolver.Observe(segs)
			}
		case audiostream.StateChanged:
			p.log.Debug("stream state", "from", e.From.String(), "to", e.To.String())
		case audiostream.Errored:
			p.log.Warn("stream error", "error", e.Err, "terminal", e.Terminal)
			if e.Terminal {
				streamErr = e.Err
			}
		case audiostream.Closed:
			p.log.Info("stream closed", "state", e.State.String())
		}
	}
	return streamErr
}

func (p *Pipeline) tickLoop(ctx context.Context, closed <-chan struct{}) {
	if p.resolver == nil {
		return
	}
	t := time.NewTicker(p.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-t.C:
			p.resolver.Tick(ctx, p.elapsed())
		}
	}
}

func (p *Pipeline) chunkLoop(ctx context.Context, closed <-chan struct{}) {
	t := time.NewTicker(p.cfg.ChunkInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-t.C:
			p.flushRolling(ctx)
		}
	}
}

func (p *Pipeline) correctionLoop(ctx context.Context, closed <-chan struct{}) {
	if p.corrections == nil || p.resolver == nil {
		return
	}
	p.pollCorrections(ctx)
	t := time.NewTicker(p.cfg.CorrectionInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-t.C:
			p.pollCorrections(ctx)
		}
	}
}

// pollCorrections applies new corrections in server order. Only correctionLoop and the final
// pass after it call this, never concurrently.
func (p *Pipeline) pollCorrections(ctx context.Context) {
	if p.corrections == nil || p.resolver == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.AppendTimeout)
	defer cancel()
	list, err := p.corrections.Corrections(callCtx, p.correctionSeq)
	if err != nil {
		p.log.Warn("speaker corrections poll failed", "error", err)
		return
	}
	for _, c := range list {
		if c.Seq <= p.correctionSeq {
			continue
		}
		p.resolver.Correct(c.SpeakerTag, c.Name)
		p.correctionSeq = c.Seq
		p.mu.Lock()
		p.corrected++
		p.mu.Unlock()
		p.log.Info("speaker correction applied", "seq", c.Seq, "speaker", c.SpeakerTag, "released", speakerid.IsPlaceholder(c.Name))
	}
}

func (p *Pipeline) elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Sub(p.started)
}

// flushRolling posts the final tokens that arrived since the previous flush. Non-final tokens
// wait for the next flush, so no text is sent twice.
func (p *Pipeline) flushRolling(ctx context.Context) {
	p.mu.Lock()
	tokens, next := p.acc.FinalSince(p.finalIdx)
	now := p.now()
	secs := int(now.Sub(p.lastFlush).Round(time.Second) / time.Second)
	p.mu.Unlock()

	segs := segmenter.Build(tokens)
	if len(segs) == 0 {
		return
	}
	if secs < 1 {
		secs = 1
	}
	if secs > maxRollingSeconds {
		secs = maxRollingSeconds
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.AppendTimeout)
	defer cancel()
	resp, err := p.sink.AppendChunk(callCtx, ChunkRequest{
		RawText:         segmenter.Format(segs, speakerid.Placeholder),
		DurationSeconds: secs,
		SpeakerMapping:  p.mapping(),
		Kind:            kindRolling,
	})
	if err != nil {
		// The tokens stay unflushed and go out with the next chunk.
		p.log.Warn("rolling chunk post failed", "error", err)
		return
	}

	p.mu.Lock()
	p.finalIdx = next
	p.lastFlush = now
	p.posted++
	p.mu.Unlock()
	p.log.Info("rolling chunk posted", "version", resp.Version, "duration_seconds", secs, "segments", len(segs))
}

func (p *Pipeline) postFull(ctx context.Context) (*ChunkResponse, error) {
	p.mu.Lock()
	segs := p.acc.Segments()
	secs := int(p.now().Sub(p.started).Round(time.Second) / time.Second)
	p.mu.Unlock()
	if len(segs) == 0 {
		return nil, nil
	}
	if secs < 1 {
		secs = 1
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.AppendTimeout)
	defer cancel()
	resp, err := p.sink.AppendChunk(callCtx, ChunkRequest{
		RawText:         segmenter.Format(segs, speakerid.Placeholder),
		DurationSeconds: secs,
		SpeakerMapping:  p.mapping(),
		Kind:            kindFull,
	})
	if err != nil {
		return nil, fmt.Errorf("post full transcript: %w", err)
	}
	p.log.Info("full transcript posted", "version", resp.Version, "duration_seconds", secs)
	return resp, nil
}

// mapping sends only resolved tags; the server keeps unmapped labels as they are.
func (p *Pipeline) mapping() map[string]string {
	if p.resolver == nil {
		return nil
	}
	out := map[string]string{}
	for tag, name := range p.resolver.Mapping() {
		if speakerid.IsPlaceholder(name) {
			continue
		}
		out[speakerid.Placeholder(tag)] = name
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseCorrections reads "tag=name" pairs such as "1=Alice".
func ParseCorrections(pairs []string) (map[int]string, error) {
	out := map[int]string{}
	for _, raw := range pairs {
		tagStr, name, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("speaker correction %q: want tag=name", raw)
		}
		var tag int
		if _, err := fmt.Sscanf(strings.TrimSpace(tagStr), "%d", &tag); err != nil || tag <= 0 {
			return nil, fmt.Errorf("speaker correction %q: tag must be a positive integer", raw)
		}
		out[tag] = strings.TrimSpace(name)
	}
	return out, nil
}

// SortedTags lists mapping keys in order, for stable output.
func SortedTags(m speakerid.Mapping) []int {
	tags := make([]int, 0, len(m))
	for t := range m {
		tags = append(tags, t)
	}
	sort.Ints(tags)
	return tags
}

// Hints converts the session roster into resolver hints.
func Hints(participants []Participant) []speakerid.ParticipantHint {
	out := make([]speakerid.ParticipantHint, 0, len(participants))
	for _, p := range participants {
		out = append(out, speakerid.ParticipantHint{Name: p.Name, RoleCode: p.RoleCode})
	}
	return out
}
