package soniox

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StreamConfig is the first text message sent on a real-time transcription socket.
type StreamConfig struct {
	APIKey                       string              `json:"api_key"`
	Model                        string              `json:"model"`
	AudioFormat                  string              `json:"audio_format"`
	SampleRate                   int                 `json:"sample_rate,omitempty"`
	NumChannels                  int                 `json:"num_channels,omitempty"`
	LanguageHints                []string            `json:"language_hints,omitempty"`
	EnableLanguageIdentification bool                `json:"enable_language_identification"`
	EnableSpeakerDiarization     bool                `json:"enable_speaker_diarization"`
	EnableEndpointDetection      bool                `json:"enable_endpoint_detection"`
	Context                      *StreamContext      `json:"context,omitempty"`
	SpeakerDiarization           *SpeakerDiarization `json:"speaker_diarization,omitempty"`
}

type StreamContext struct {
	General []ContextEntry `json:"general,omitempty"`
	Terms   []string       `json:"terms,omitempty"`
}

type ContextEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SpeakerDiarization struct {
	MinSpeakers int `json:"min_speakers"`
	MaxSpeakers int `json:"max_speakers"`
}

// DiscussionConfig returns the configuration used for a group discussion with speakerCount voices.
func DiscussionConfig(apiKey string, speakerCount int, terms []string) StreamConfig {
	cfg := StreamConfig{
		APIKey:                       apiKey,
		Model:                        DefaultModel,
		AudioFormat:                  "auto",
		LanguageHints:                []string{"vi", "en"},
		EnableLanguageIdentification: true,
		EnableSpeakerDiarization:     true,
		EnableEndpointDetection:      true,
		Context: &StreamContext{
			General: []ContextEntry{
				{Key: "domain", Value: "business_discussion"},
				{Key: "topic", Value: "banking_case_study"},
			},
			Terms: terms,
		},
	}
	if speakerCount > 0 {
		cfg.SpeakerDiarization = &SpeakerDiarization{MinSpeakers: speakerCount, MaxSpeakers: speakerCount}
	}
	return cfg
}

// Response is one message received from the transcription socket.
type Response struct {
	Tokens           []ResponseToken `json:"tokens"`
	FinalAudioProcMs int64           `json:"final_audio_proc_ms"`
	TotalAudioProcMs int64           `json:"total_audio_proc_ms"`
	Finished         bool            `json:"finished"`
	ErrorCode        int             `json:"error_code,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

type ResponseToken struct {
	Text       string    `json:"text"`
	StartMs    int64     `json:"start_ms"`
	EndMs      int64     `json:"end_ms"`
	Confidence float64   `json:"confidence"`
	IsFinal    bool      `json:"is_final"`
	Speaker    SpeakerID `json:"speaker,omitempty"`
	Language   string    `json:"language,omitempty"`
}

// SpeakerID accepts the speaker as either a JSON string ("2") or number (2). Missing or
// unparseable speakers decode to 0.
type SpeakerID int

func (s *SpeakerID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	if strings.HasPrefix(raw, "\"") {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(str), "Speaker"))
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		*s = 0
		return nil
	}
	*s = SpeakerID(n)
	return nil
}

func ParseResponse(raw []byte) (Response, error) {
	var r Response
	err := json.Unmarshal(raw, &r)
	return r, err
}
