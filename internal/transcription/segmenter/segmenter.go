package segmenter

import (
	"fmt"
	"strings"

	"github.com/yungbote/casestudy-backend/internal/transcription/audiostream"
)

type Segment struct {
	Speaker int                 `json:"speaker"`
	Text    string              `json:"text"`
	StartMs int64               `json:"start_ms"`
	EndMs   int64               `json:"end_ms"`
	Tokens  []audiostream.Token `json:"-"`
}

var controlMarkers = map[string]bool{
	"<end>":   true,
	"<start>": true,
	"<fin>":   true,
}

func skip(t audiostream.Token) bool {
	if t.Speaker <= 0 {
		return true
	}
	text := strings.TrimSpace(t.Text)
	return text == "" || controlMarkers[text]
}

// Build groups consecutive tokens of the same speaker. Skipped tokens (speaker 0, blank text,
// control markers) neither close nor extend a segment. Build does not modify its input.
func Build(tokens []audiostream.Token) []Segment {
	var out []Segment
	var cur *Segment
	for _, t := range tokens {
		if skip(t) {
			continue
		}
		if cur != nil && cur.Speaker == t.Speaker {
			cur.Text += t.Text
			if end := t.EndMs(); end > cur.EndMs {
				cur.EndMs = end
			}
			cur.Tokens = append(cur.Tokens, t)
			continue
		}
		if cur != nil {
			out = append(out, *cur)
		}
		cur = &Segment{
			Speaker: t.Speaker,
			Text:    t.Text,
			StartMs: t.StartMs,
			EndMs:   t.EndMs(),
			Tokens:  []audiostream.Token{t},
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	for i := range out {
		out[i].Text = strings.TrimSpace(out[i].Text)
	}
	return out
}

// Labeler names a speaker tag for display.
type Labeler func(speaker int) string

func TagLabel(speaker int) string { return fmt.Sprintf("%d", speaker) }

// Format renders one "<label>: text" line per segment.
func Format(segments []Segment, label Labeler) string {
	if label == nil {
		label = TagLabel
	}
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label(s.Speaker))
		b.WriteString(": ")
		b.WriteString(s.Text)
	}
	return b.String()
}

// Accumulator keeps the token history of one stream. Final tokens are kept forever; the
// non-final tail is replaced by each new batch, since the provider re-sends it.
type Accumulator struct {
	final   []audiostream.Token
	pending []audiostream.Token
}

func (a *Accumulator) Add(batch []audiostream.Token) {
	a.pending = a.pending[:0]
	for _, t := range batch {
		if t.IsFinal {
			a.final = append(a.final, t)
		} else {
			a.pending = append(a.pending, t)
		}
	}
}

// Tokens returns the full history: finals followed by the current non-final tail.
func (a *Accumulator) Tokens() []audiostream.Token {
	out := make([]audiostream.Token, 0, len(a.final)+len(a.pending))
	out = append(out, a.final...)
	return append(out, a.pending...)
}

// FinalSince returns final tokens starting at index from and the index to use next time.
func (a *Accumulator) FinalSince(from int) ([]audiostream.Token, int) {
	if from < 0 {
		from = 0
	}
	if from > len(a.final) {
		from = len(a.final)
	}
	out := make([]audiostream.Token, len(a.final)-from)
	copy(out, a.final[from:])
	return out, len(a.final)
}

func (a *Accumulator) Segments() []Segment { return Build(a.Tokens()) }
