package speakerid

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/transcription/segmenter"
)

type fakeInferrer struct {
	mu      sync.Mutex
	guesses map[int]Guess
	calls   map[int]int
	err     error
	during  func(tag int)
}

func newFakeInferrer() *fakeInferrer {
	return &fakeInferrer{guesses: map[int]Guess{}, calls: map[int]int{}}
}

func (f *fakeInferrer) Infer(ctx context.Context, req Request) (Guess, error) {
	f.mu.Lock()
	f.calls[req.Speaker]++
	g := f.guesses[req.Speaker]
	err := f.err
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during(req.Speaker)
	}
	return g, err
}

func (f *fakeInferrer) callCount(tag int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tag]
}

func testConfig() Config {
	return Config{
		StartAfter:     30 * time.Second,
		IntervalMin:    10 * time.Second,
		IntervalMax:    10 * time.Second,
		SampleChars:    1000,
		MinSampleChars: 30,
		HistorySize:    3,
		CallTimeout:    time.Second,
	}
}

func longText(prefix string) string {
	return prefix + " " + strings.Repeat("we should look at the budget first ", 3)
}

func seg(tag int, text string) segmenter.Segment {
	return segmenter.Segment{Speaker: tag, Text: text}
}

func TestTickWaitsForStartAndInterval(t *testing.T) {
	inf := newFakeInferrer()
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("Hi, I'm Lan."))})

	if r.Tick(context.Background(), 29*time.Second) {
		t.Fatalf("round ran before start delay")
	}
	if !r.Tick(context.Background(), 30*time.Second) {
		t.Fatalf("first round should run at start delay")
	}
	if r.Tick(context.Background(), 35*time.Second) {
		t.Fatalf("round ran before interval elapsed")
	}
	if !r.Tick(context.Background(), 40*time.Second) {
		t.Fatalf("round should run after interval")
	}
	if got := inf.callCount(1); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestShortSamplesAreSkipped(t *testing.T) {
	inf := newFakeInferrer()
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, "ok"), seg(2, longText("Minh here."))})
	r.Tick(context.Background(), time.Minute)
	if inf.callCount(1) != 0 {
		t.Fatalf("short sample should not be sent")
	}
	if inf.callCount(2) != 1 {
		t.Fatalf("long sample should be sent once")
	}
}

func TestGuessesUpdateMappingAndConfirmAfterThreeAgreeing(t *testing.T) {
	inf := newFakeInferrer()
	inf.guesses[1] = Guess{Name: "Lan", Confidence: ConfidenceMedium}
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("Hi, I'm Lan."))})

	r.Tick(context.Background(), 30*time.Second)
	if got := r.Mapping()[1]; got != "Lan" {
		t.Fatalf("mapping after first guess: %q", got)
	}
	r.Tick(context.Background(), 40*time.Second)
	r.Tick(context.Background(), 50*time.Second)
	if st := r.Status(); len(st) != 1 || !st[0].Confirmed {
		t.Fatalf("expected confirmed after 3 agreeing guesses: %+v", st)
	}
	r.Tick(context.Background(), 60*time.Second)
	if got := inf.callCount(1); got != 3 {
		t.Fatalf("confirmed tag must not be re-queried: calls=%d", got)
	}
}

func TestDisagreeingGuessesDoNotConfirm(t *testing.T) {
	inf := newFakeInferrer()
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("hello"))})
	names := []string{"Lan", "Minh", "Lan"}
	for i, n := range names {
		inf.mu.Lock()
		inf.guesses[1] = Guess{Name: n, Confidence: ConfidenceHigh}
		inf.mu.Unlock()
		r.Tick(context.Background(), time.Duration(30+10*i)*time.Second)
	}
	if st := r.Status(); st[0].Confirmed {
		t.Fatalf("mixed guesses confirmed: %+v", st)
	}
	if got := r.Label(1); got != "Lan" {
		t.Fatalf("latest guess should be live: %q", got)
	}
}

func TestNoneConfidenceAndErrorsAreIgnored(t *testing.T) {
	inf := newFakeInferrer()
	inf.guesses[1] = Guess{Name: "Lan", Confidence: ConfidenceNone}
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("hello"))})
	r.Tick(context.Background(), 30*time.Second)
	if got := r.Mapping()[1]; got != "Speaker 1" {
		t.Fatalf("none confidence must not map: %q", got)
	}

	inf.mu.Lock()
	inf.err = errors.New("boom")
	inf.mu.Unlock()
	r.Tick(context.Background(), 40*time.Second)
	if got := r.Mapping()[1]; got != "Speaker 1" {
		t.Fatalf("error must not map: %q", got)
	}
}

func TestManualCorrectionWinsOverInFlightGuess(t *testing.T) {
	inf := newFakeInferrer()
	inf.guesses[1] = Guess{Name: "Minh", Confidence: ConfidenceHigh}
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("hello"))})
	inf.during = func(tag int) { r.Correct(tag, "Lan") }

	r.Tick(context.Background(), 30*time.Second)
	if got := r.Label(1); got != "Lan" {
		t.Fatalf("manual correction must win: %q", got)
	}
	inf.during = nil
	r.Tick(context.Background(), 40*time.Second)
	if got := inf.callCount(1); got != 1 {
		t.Fatalf("frozen tag must not be queried again: calls=%d", got)
	}
}

func TestPlaceholderCorrectionUnfreezes(t *testing.T) {
	inf := newFakeInferrer()
	inf.guesses[2] = Guess{Name: "Huong", Confidence: ConfidenceLow}
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(2, longText("hello"))})

	r.Correct(2, "Lan")
	r.Correct(2, "Speaker 2")
	if got := r.Label(2); got != "Speaker 2" {
		t.Fatalf("placeholder correction should clear the name: %q", got)
	}
	r.Tick(context.Background(), 30*time.Second)
	if got := r.Label(2); got != "Huong" {
		t.Fatalf("unfrozen tag should resolve again: %q", got)
	}
}

func TestPlaceholderCorrectionKeepsAutomaticProgress(t *testing.T) {
	inf := newFakeInferrer()
	inf.guesses[1] = Guess{Name: "Lan", Confidence: ConfidenceMedium}
	r := NewResolver(testConfig(), inf, nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, longText("Hi, I'm Lan."))})

	r.Tick(context.Background(), 30*time.Second)
	r.Tick(context.Background(), 40*time.Second)
	r.Correct(1, "Speaker 1")
	if got := r.Label(1); got != "Lan" {
		t.Fatalf("placeholder on an automatic tag must not clear it: %q", got)
	}
	r.Tick(context.Background(), 50*time.Second)
	if st := r.Status(); len(st) != 1 || !st[0].Confirmed || st[0].Manual {
		t.Fatalf("guess history should survive and confirm: %+v", st)
	}
}

func TestMappingIsTotal(t *testing.T) {
	r := NewResolver(testConfig(), newFakeInferrer(), nil, logger.Nop())
	r.Observe([]segmenter.Segment{seg(1, "a"), seg(3, "b"), seg(0, "ignored")})
	m := r.Mapping()
	if len(m) != 2 || m[1] != "Speaker 1" || m[3] != "Speaker 3" {
		t.Fatalf("unexpected mapping: %v", m)
	}
}

func TestRingAgreement(t *testing.T) {
	rg := newRing(3)
	rg.push("a")
	rg.push("a")
	if rg.agreed() {
		t.Fatalf("partial ring must not agree")
	}
	rg.push("a")
	if !rg.agreed() {
		t.Fatalf("full equal ring must agree")
	}
	rg.push("b")
	if rg.agreed() {
		t.Fatalf("overwritten slot must break agreement")
	}
	rg.reset()
	if rg.agreed() || rg.size != 0 {
		t.Fatalf("reset ring: %+v", rg)
	}
}

func TestIsPlaceholder(t *testing.T) {
	cases := map[string]bool{"Speaker 1": true, " Speaker 12 ": true, "Speaker": false, "Lan": false, "speaker 1": false}
	for in, want := range cases {
		if got := IsPlaceholder(in); got != want {
			t.Fatalf("IsPlaceholder(%q): want=%v got=%v", in, want, got)
		}
	}
}
