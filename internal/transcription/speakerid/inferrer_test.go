package speakerid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeAI struct {
	user string
	out  map[string]any
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.user = user
	return f.out, nil
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func (f *fakeAI) Model() string { return "fake" }

func TestLLMInferrerPromptAndParse(t *testing.T) {
	ai := &fakeAI{out: map[string]any{"name": "Lan", "confidence": "HIGH", "reasoning": "introduced herself"}}
	inf := NewLLMInferrer(ai)
	g, err := inf.Infer(context.Background(), Request{
		Speaker:      2,
		Sample:       "Xin chào, tôi là Lan",
		KnownNames:   map[int]string{1: "Minh"},
		Participants: []ParticipantHint{{Name: "Lan", RoleCode: "A"}, {Name: "Minh", RoleCode: "B"}},
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if g.Name != "Lan" || g.Confidence != ConfidenceHigh {
		t.Fatalf("unexpected guess: %+v", g)
	}
	for _, want := range []string{"- Lan (A)", "Speaker 1: Minh", "SAMPLE FROM Speaker 2"} {
		if !strings.Contains(ai.user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, ai.user)
		}
	}
}

func TestParseGuessToleratesProse(t *testing.T) {
	g, err := ParseGuess("Sure! {\"name\":\"Minh\",\"confidence\":\"bogus\"} hope that helps")
	if err != nil {
		t.Fatalf("ParseGuess: %v", err)
	}
	if g.Confidence != ConfidenceNone {
		t.Fatalf("unknown confidence must map to none: %+v", g)
	}
}

func TestHTTPInferrerPostsToIdentifyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/s-1/speakers/identify" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Speaker != 3 || req.KnownNames[1] != "Minh" {
			t.Errorf("unexpected body: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"guess": map[string]any{"name": "Huong", "confidence": "low"}})
	}))
	defer srv.Close()

	inf := NewHTTPInferrer(srv.URL+"/", "s-1", time.Second)
	g, err := inf.Infer(context.Background(), Request{Speaker: 3, Sample: "x", KnownNames: map[int]string{1: "Minh"}})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if g.Name != "Huong" || g.Confidence != ConfidenceLow {
		t.Fatalf("unexpected guess: %+v", g)
	}
}

func TestHTTPInferrerSurfacesClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	if _, err := NewHTTPInferrer(srv.URL, "s-1", time.Second).Infer(context.Background(), Request{Speaker: 1}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMarshalMappingUsesPlaceholderKeys(t *testing.T) {
	raw, err := MarshalMapping(Mapping{1: "Lan", 2: "Speaker 2"})
	if err != nil {
		t.Fatalf("MarshalMapping: %v", err)
	}
	var out map[string]string
	_ = json.Unmarshal(raw, &out)
	if out["Speaker 1"] != "Lan" || out["Speaker 2"] != "Speaker 2" {
		t.Fatalf("unexpected: %v", out)
	}
}
