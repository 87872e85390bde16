package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/usecase/detect"
)

// --- Mocks ---

type mockDetector struct {
	mu       sync.Mutex
	verdicts map[domain.Kind]domain.Verdict
	errs     map[domain.Kind]error
	gotOpts  map[domain.Kind]detect.Options
}

func (m *mockDetector) Evaluate(
	_ context.Context, kind domain.Kind, _ string, opts detect.Options,
) (domain.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gotOpts == nil {
		m.gotOpts = make(map[domain.Kind]detect.Options)
	}
	m.gotOpts[kind] = opts
	if err := m.errs[kind]; err != nil {
		return domain.Verdict{}, err
	}
	return m.verdicts[kind], nil
}

type mockGenerator struct {
	content string
	err     error
	called  bool
}

func (m *mockGenerator) Generate(_ context.Context, _ string) (domain.GenerationResult, error) {
	m.called = true
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	return domain.GenerationResult{Content: m.content, Model: "test-model"}, nil
}

func cleanVerdicts() map[domain.Kind]domain.Verdict {
	return map[domain.Kind]domain.Verdict{
		domain.KindAnomaly:   {Flagged: false, Risk: domain.RiskLow},
		domain.KindMalicious: {Flagged: false, Risk: domain.RiskLow},
	}
}

func newTestPipeline(d Detector, g Generator) *Service {
	return New(d, g, DefaultConfig(), zap.NewNop())
}

// --- Tests ---

func TestRun_BothClean_Generates(t *testing.T) {
	gen := &mockGenerator{content: "here is your answer"}
	svc := newTestPipeline(&mockDetector{verdicts: cleanVerdicts()}, gen)

	res, err := svc.Run(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Passed {
		t.Error("clean checks must pass")
	}
	if res.Response != "here is your answer" {
		t.Errorf("response: got %q", res.Response)
	}
	if !gen.called {
		t.Error("generator must be invoked on pass")
	}
}

func TestRun_MaliciousFlagged_Blocked(t *testing.T) {
	verdicts := cleanVerdicts()
	verdicts[domain.KindMalicious] = domain.Verdict{
		Flagged:    true,
		Confidence: 0.9,
		Reasons:    []string{"request closely matches known malicious patterns"},
		Risk:       domain.RiskHigh,
	}
	gen := &mockGenerator{content: "should not appear"}
	svc := newTestPipeline(&mockDetector{verdicts: verdicts}, gen)

	res, err := svc.Run(context.Background(), Request{Text: "attack"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Passed {
		t.Error("flagged malicious check must block")
	}
	if gen.called {
		t.Error("generator must not be invoked when blocked")
	}
	if !strings.HasPrefix(res.Response, apologyMessage) {
		t.Errorf("blocked response must start with the apology, got %q", res.Response)
	}
	if !strings.Contains(res.Response, "Reasons: request closely matches known malicious patterns") {
		t.Errorf("blocked response must carry the reasons, got %q", res.Response)
	}
}

func TestRun_AnomalyAloneBlocks(t *testing.T) {
	verdicts := cleanVerdicts()
	verdicts[domain.KindAnomaly] = domain.Verdict{
		Flagged: true,
		Reasons: []string{"request appears unusual compared to baseline"},
		Risk:    domain.RiskMedium,
	}
	svc := newTestPipeline(&mockDetector{verdicts: verdicts}, &mockGenerator{})

	res, err := svc.Run(context.Background(), Request{Text: "odd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Passed {
		t.Error("flagged anomaly check alone must block")
	}
}

func TestRun_BothFlagged_MaliciousReasonsFirst(t *testing.T) {
	verdicts := map[domain.Kind]domain.Verdict{
		domain.KindMalicious: {Flagged: true, Reasons: []string{"malicious reason"}},
		domain.KindAnomaly:   {Flagged: true, Reasons: []string{"anomaly reason"}},
	}
	svc := newTestPipeline(&mockDetector{verdicts: verdicts}, &mockGenerator{})

	res, err := svc.Run(context.Background(), Request{Text: "bad"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(res.Response, "malicious reason; anomaly reason") {
		t.Errorf("reasons must be joined malicious-first, got %q", res.Response)
	}
}

func TestRun_UnflaggedReasons_NotIncluded(t *testing.T) {
	// The malicious side carries no reasons; only the anomaly side
	// flagged. The blocked message must not include anything from the
	// unflagged check.
	verdicts := map[domain.Kind]domain.Verdict{
		domain.KindMalicious: {Flagged: false, Reasons: []string{"leftover"}},
		domain.KindAnomaly:   {Flagged: true, Reasons: []string{"anomaly reason"}},
	}
	svc := newTestPipeline(&mockDetector{verdicts: verdicts}, &mockGenerator{})

	res, err := svc.Run(context.Background(), Request{Text: "odd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(res.Response, "leftover") {
		t.Errorf("unflagged check's reasons leaked into %q", res.Response)
	}
}

func TestRun_CheckError_FailsOpen(t *testing.T) {
	det := &mockDetector{
		verdicts: cleanVerdicts(),
		errs: map[domain.Kind]error{
			domain.KindMalicious: domain.ErrStoreUnavailable,
		},
	}
	gen := &mockGenerator{content: "served anyway"}
	svc := newTestPipeline(det, gen)

	res, err := svc.Run(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("fail-open must not surface the check error, got %v", err)
	}

	if !res.Passed {
		t.Error("failed check must count as not flagged")
	}
	if !res.Malicious.FailOpen {
		t.Error("outcome must record the fail-open")
	}
	if res.Malicious.FailReason == "" {
		t.Error("fail-open outcome must carry the reason")
	}
	if res.Anomaly.FailOpen {
		t.Error("healthy check must not be marked fail-open")
	}
	if res.Response != "served anyway" {
		t.Errorf("response: got %q", res.Response)
	}
}

func TestRun_BothChecksFail_StillServes(t *testing.T) {
	det := &mockDetector{
		errs: map[domain.Kind]error{
			domain.KindMalicious: errors.New("timeout"),
			domain.KindAnomaly:   errors.New("timeout"),
		},
	}
	svc := newTestPipeline(det, &mockGenerator{content: "ok"})

	res, err := svc.Run(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Passed || res.Response != "ok" {
		t.Errorf("total guardrail outage must still serve: passed=%v response=%q", res.Passed, res.Response)
	}
}

func TestRun_GenerationFails_Apology(t *testing.T) {
	gen := &mockGenerator{err: domain.ErrGenerationFailed}
	svc := newTestPipeline(&mockDetector{verdicts: cleanVerdicts()}, gen)

	res, err := svc.Run(context.Background(), Request{Text: "hello"})
	if err != nil {
		t.Fatalf("generation failure must not surface, got %v", err)
	}

	if !res.Passed {
		t.Error("guardrails passed; generation failure does not change that")
	}
	if res.Response != apologyMessage {
		t.Errorf("response: got %q, want the fixed apology", res.Response)
	}
}

func TestRun_ThresholdOverrides_ReachChecks(t *testing.T) {
	det := &mockDetector{verdicts: cleanVerdicts()}
	svc := newTestPipeline(det, &mockGenerator{content: "ok"})

	at, mt := 0.5, 0.3
	_, err := svc.Run(context.Background(), Request{
		Text:               "hello",
		AnomalyThreshold:   &at,
		MaliciousThreshold: &mt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := det.gotOpts[domain.KindAnomaly].Threshold; got == nil || *got != 0.5 {
		t.Errorf("anomaly threshold override not forwarded: %v", got)
	}
	if got := det.gotOpts[domain.KindMalicious].Threshold; got == nil || *got != 0.3 {
		t.Errorf("malicious threshold override not forwarded: %v", got)
	}
}

func TestRun_DefaultThresholds_ReachChecks(t *testing.T) {
	det := &mockDetector{verdicts: cleanVerdicts()}
	svc := newTestPipeline(det, &mockGenerator{content: "ok"})

	if _, err := svc.Run(context.Background(), Request{Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := det.gotOpts[domain.KindAnomaly].Threshold; got == nil || *got != 0.8 {
		t.Errorf("anomaly default threshold: got %v, want 0.8", got)
	}
	if got := det.gotOpts[domain.KindMalicious].Threshold; got == nil || *got != 0.1 {
		t.Errorf("malicious default threshold: got %v, want 0.1", got)
	}
}

func TestRun_CancelledContext_Abandons(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(&mockDetector{verdicts: cleanVerdicts()}, &mockGenerator{}, Config{
		AnomalyThreshold:   0.8,
		MaliciousThreshold: 0.1,
		CheckTimeout:       time.Second,
		GenerationTimeout:  time.Second,
	}, zap.NewNop())

	_, err := svc.Run(ctx, Request{Text: "hello"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
