package speakerid

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/casestudy-backend/internal/platform/openai"
)

const identifySystemPrompt = `You identify speakers in a recorded group discussion.
Participants usually introduce themselves or address each other by name. Given a sample of what one
speaker said, decide which participant it is.
Rules:
- Only answer with a name from the participant list when one is given.
- Never reuse a name already assigned to another speaker.
- If nothing in the sample identifies the speaker, answer confidence "none" and an empty name.
Return JSON only.`

func identifySchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name", "confidence", "reasoning"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"confidence": map[string]any{
				"type": "string",
				"enum": []string{"high", "medium", "low", "none"},
			},
			"reasoning": map[string]any{"type": "string"},
		},
	}
}

// LLMInferrer asks a language model to name a speaker from a text sample.
type LLMInferrer struct {
	ai openai.Client
}

func NewLLMInferrer(ai openai.Client) *LLMInferrer {
	return &LLMInferrer{ai: ai}
}

func (l *LLMInferrer) Infer(ctx context.Context, req Request) (Guess, error) {
	if l == nil || l.ai == nil {
		return Guess{}, fmt.Errorf("speakerid: llm client not configured")
	}
	if strings.TrimSpace(req.Sample) == "" {
		return Guess{Confidence: ConfidenceNone}, nil
	}
	obj, err := l.ai.GenerateJSON(ctx, identifySystemPrompt, buildIdentifyPrompt(req), "speaker_identification", identifySchema())
	if err != nil {
		return Guess{}, fmt.Errorf("speakerid: infer speaker %d: %w", req.Speaker, err)
	}
	return guessFromObject(obj), nil
}

func buildIdentifyPrompt(req Request) string {
	var b strings.Builder
	if len(req.Participants) > 0 {
		b.WriteString("PARTICIPANTS:\n")
		for _, p := range req.Participants {
			if p.RoleCode != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", p.Name, p.RoleCode)
			} else {
				fmt.Fprintf(&b, "- %s\n", p.Name)
			}
		}
		b.WriteString("\n")
	}
	if len(req.KnownNames) > 0 {
		tags := make([]int, 0, len(req.KnownNames))
		for tag := range req.KnownNames {
			tags = append(tags, tag)
		}
		sort.Ints(tags)
		b.WriteString("ALREADY IDENTIFIED:\n")
		for _, tag := range tags {
			fmt.Fprintf(&b, "- %s: %s\n", Placeholder(tag), req.KnownNames[tag])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "SAMPLE FROM %s:\n%s\n", Placeholder(req.Speaker), req.Sample)
	return b.String()
}

func guessFromObject(obj map[string]any) Guess {
	g := Guess{}
	if v, ok := obj["name"].(string); ok {
		g.Name = strings.TrimSpace(v)
	}
	if v, ok := obj["confidence"].(string); ok {
		g.Confidence = Confidence(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := obj["reasoning"].(string); ok {
		g.Reasoning = v
	}
	if !g.Confidence.Accepted() || g.Name == "" {
		g.Confidence = ConfidenceNone
	}
	return g
}

// ParseGuess decodes a guess from raw model text, tolerating prose around the JSON object.
func ParseGuess(text string) (Guess, error) {
	obj, err := openai.ParseJSONObject(text)
	if err != nil {
		return Guess{}, err
	}
	return guessFromObject(obj), nil
}

// MarshalMapping renders a mapping with string keys, the form stored alongside chunks.
func MarshalMapping(m Mapping) ([]byte, error) {
	out := make(map[string]string, len(m))
	for tag, name := range m {
		out[Placeholder(tag)] = name
	}
	return json.Marshal(out)
}
