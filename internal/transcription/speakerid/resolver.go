package speakerid

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/transcription/segmenter"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Accepted reports whether a guess at this confidence may update the mapping.
func (c Confidence) Accepted() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

type ParticipantHint struct {
	Name     string `json:"name"`
	RoleCode string `json:"role_code,omitempty"`
}

type Request struct {
	Speaker      int               `json:"speaker"`
	Sample       string            `json:"sample"`
	KnownNames   map[int]string    `json:"known_names,omitempty"`
	Participants []ParticipantHint `json:"participants,omitempty"`
}

type Guess struct {
	Name       string     `json:"name"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

type NameInferrer interface {
	Infer(ctx context.Context, req Request) (Guess, error)
}

var placeholderPattern = regexp.MustCompile(`^Speaker \d+$`)

func Placeholder(tag int) string { return fmt.Sprintf("Speaker %d", tag) }

func IsPlaceholder(name string) bool { return placeholderPattern.MatchString(strings.TrimSpace(name)) }

// Mapping is total over every observed tag; unresolved tags carry their placeholder.
type Mapping map[int]string

type Config struct {
	StartAfter     time.Duration
	IntervalMin    time.Duration
	IntervalMax    time.Duration
	SampleChars    int
	MinSampleChars int
	HistorySize    int
	CallTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.StartAfter <= 0 {
		c.StartAfter = 30 * time.Second
	}
	if c.IntervalMin <= 0 {
		c.IntervalMin = 10 * time.Second
	}
	if c.IntervalMax < c.IntervalMin {
		c.IntervalMax = c.IntervalMin
	}
	if c.SampleChars <= 0 {
		c.SampleChars = 1000
	}
	if c.MinSampleChars <= 0 {
		c.MinSampleChars = 30
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return c
}

func DefaultConfig() Config {
	return Config{IntervalMax: 30 * time.Second}.withDefaults()
}

type tagState struct {
	text      string
	name      string
	history   *ring
	confirmed bool
	manual    bool
}

// Resolver maps diarization tags to participant names from what each speaker says.
type Resolver struct {
	cfg      Config
	inferrer NameInferrer
	log      *logger.Logger

	mu           sync.Mutex
	tags         map[int]*tagState
	participants []ParticipantHint
	lastRound    time.Duration
	ranOnce      bool
	nextInterval time.Duration
	jitter       func() float64
}

func NewResolver(cfg Config, inferrer NameInferrer, participants []ParticipantHint, log *logger.Logger) *Resolver {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	r := &Resolver{
		cfg:          cfg,
		inferrer:     inferrer,
		log:          log.With("component", "SpeakerIdentityResolver"),
		tags:         map[int]*tagState{},
		participants: participants,
		jitter:       rand.Float64,
	}
	r.nextInterval = r.pickInterval()
	return r
}

func (r *Resolver) pickInterval() time.Duration {
	spread := r.cfg.IntervalMax - r.cfg.IntervalMin
	if spread <= 0 {
		return r.cfg.IntervalMin
	}
	return r.cfg.IntervalMin + time.Duration(r.jitter()*float64(spread))
}

func (r *Resolver) state(tag int) *tagState {
	st, ok := r.tags[tag]
	if !ok {
		st = &tagState{history: newRing(r.cfg.HistorySize)}
		r.tags[tag] = st
	}
	return st
}

// Observe replaces each speaker's text with the text of the given segments, which are expected
// to be rebuilt from the full token history.
func (r *Resolver) Observe(segments []segmenter.Segment) {
	texts := map[int]*strings.Builder{}
	for _, s := range segments {
		if s.Speaker <= 0 {
			continue
		}
		b, ok := texts[s.Speaker]
		if !ok {
			b = &strings.Builder{}
			texts[s.Speaker] = b
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Text)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for tag, b := range texts {
		r.state(tag).text = b.String()
	}
}

func (r *Resolver) dueLocked(elapsed time.Duration) bool {
	if elapsed < r.cfg.StartAfter {
		return false
	}
	if !r.ranOnce {
		return true
	}
	return elapsed-r.lastRound >= r.nextInterval
}

type candidate struct {
	tag    int
	sample string
}

// Tick runs one identification round when due. It reports whether a round ran.
func (r *Resolver) Tick(ctx context.Context, elapsed time.Duration) bool {
	r.mu.Lock()
	if !r.dueLocked(elapsed) {
		r.mu.Unlock()
		return false
	}
	r.ranOnce = true
	r.lastRound = elapsed
	r.nextInterval = r.pickInterval()

	var cands []candidate
	for tag, st := range r.tags {
		if st.manual || st.confirmed {
			continue
		}
		sample := lastRunes(st.text, r.cfg.SampleChars)
		if len([]rune(sample)) < r.cfg.MinSampleChars {
			continue
		}
		cands = append(cands, candidate{tag: tag, sample: sample})
	}
	known := r.knownLocked()
	participants := append([]ParticipantHint(nil), r.participants...)
	r.mu.Unlock()

	sort.Slice(cands, func(i, j int) bool { return cands[i].tag < cands[j].tag })
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		guess, err := r.inferrer.Infer(callCtx, Request{
			Speaker:      c.tag,
			Sample:       c.sample,
			KnownNames:   known,
			Participants: participants,
		})
		cancel()
		if err != nil {
			r.log.Warn("speaker identification failed", "speaker", c.tag, "error", err)
			continue
		}
		observability.Current().IncSpeakerGuess(string(guess.Confidence))
		r.apply(c.tag, guess)
	}
	return true
}

func (r *Resolver) apply(tag int, g Guess) {
	name := strings.TrimSpace(g.Name)
	if !g.Confidence.Accepted() || name == "" || IsPlaceholder(name) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(tag)
	// A correction that arrived during the call wins.
	if st.manual || st.confirmed {
		return
	}
	st.name = name
	st.history.push(name)
	if st.history.agreed() {
		st.confirmed = true
		r.log.Info("speaker confirmed", "speaker", tag)
	}
}

// knownLocked returns names that are settled: manual corrections and confirmed guesses.
func (r *Resolver) knownLocked() map[int]string {
	out := map[int]string{}
	for tag, st := range r.tags {
		if (st.manual || st.confirmed) && st.name != "" {
			out[tag] = st.name
		}
	}
	return out
}

// Correct applies an operator correction. The tag is frozen for the rest of the session unless
// the name is a placeholder such as "Speaker 3", which releases a frozen tag back to automatic
// resolution. A placeholder for a tag that was never frozen changes nothing.
func (r *Resolver) Correct(tag int, name string) {
	if tag <= 0 {
		return
	}
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(tag)
	if name == "" || IsPlaceholder(name) {
		if !st.manual {
			return
		}
		st.manual = false
		st.confirmed = false
		st.name = ""
		st.history.reset()
		return
	}
	st.manual = true
	st.name = name
}

func (r *Resolver) Mapping() Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Mapping{}
	for tag, st := range r.tags {
		if st.name != "" {
			out[tag] = st.name
		} else {
			out[tag] = Placeholder(tag)
		}
	}
	return out
}

// Label returns the display name of a tag.
func (r *Resolver) Label(tag int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tags[tag]; ok && st.name != "" {
		return st.name
	}
	return Placeholder(tag)
}

type TagStatus struct {
	Tag       int    `json:"tag"`
	Name      string `json:"name"`
	Confirmed bool   `json:"confirmed"`
	Manual    bool   `json:"manual"`
}

func (r *Resolver) Status() []TagStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TagStatus, 0, len(r.tags))
	for tag, st := range r.tags {
		name := st.name
		if name == "" {
			name = Placeholder(tag)
		}
		out = append(out, TagStatus{Tag: tag, Name: name, Confirmed: st.confirmed, Manual: st.manual})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func lastRunes(s string, n int) string {
	rs := []rune(strings.TrimSpace(s))
	if len(rs) <= n {
		return string(rs)
	}
	return string(rs[len(rs)-n:])
}
