package audiostream

import (
	"github.com/yungbote/casestudy-backend/internal/platform/soniox"
)

// Token is one recognized fragment. Speaker 0 means unassigned.
type Token struct {
	Text       string  `json:"text"`
	Speaker    int     `json:"speaker"`
	StartMs    int64   `json:"start_ms"`
	DurationMs int64   `json:"duration_ms"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
}

func (t Token) EndMs() int64 { return t.StartMs + t.DurationMs }

func tokenFromProvider(in soniox.ResponseToken) Token {
	dur := in.EndMs - in.StartMs
	if dur < 0 {
		dur = 0
	}
	return Token{
		Text:       in.Text,
		Speaker:    int(in.Speaker),
		StartMs:    in.StartMs,
		DurationMs: dur,
		IsFinal:    in.IsFinal,
		Confidence: in.Confidence,
	}
}

func tokensFromProvider(in []soniox.ResponseToken) []Token {
	out := make([]Token, 0, len(in))
	for _, t := range in {
		out = append(out, tokenFromProvider(t))
	}
	return out
}
