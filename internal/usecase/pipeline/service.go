package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardrail/internal/domain"
	"github.com/kailas-cloud/guardrail/internal/metrics"
	"github.com/kailas-cloud/guardrail/internal/usecase/detect"
)

// apologyMessage is what the user sees when generation fails.
const apologyMessage = "I'm sorry, but I cannot process your request at this time."

// blockedPreamble opens every blocked response; reasons are appended.
const blockedPreamble = apologyMessage +
	" Our safety systems have detected potential issues with your input." +
	" Please rephrase your request or contact support if you believe this is an error."

// Config holds the pipeline-level settings. Thresholds here are the
// per-request defaults (overridable by the caller), distinct from the
// policy defaults inside the detection service.
type Config struct {
	AnomalyThreshold   float64
	MaliciousThreshold float64
	CheckTimeout       time.Duration
	GenerationTimeout  time.Duration
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold:   0.8,
		MaliciousThreshold: 0.1,
		CheckTimeout:       10 * time.Second,
		GenerationTimeout:  30 * time.Second,
	}
}

// Request is one pipeline execution: the input text plus optional
// per-request threshold overrides.
type Request struct {
	Text               string
	AnomalyThreshold   *float64
	MaliciousThreshold *float64
}

// CheckOutcome is the result of one guardrail check stage. FailOpen
// marks a check that defaulted to not-flagged because a collaborator
// failed; FailReason carries the error for operators.
type CheckOutcome struct {
	Verdict    domain.Verdict
	FailOpen   bool
	FailReason string
}

// Result is the final pipeline state returned to the transport layer.
type Result struct {
	Response  string
	Passed    bool
	Malicious CheckOutcome
	Anomaly   CheckOutcome
}

// Service runs the guardrail decision pipeline:
// START → CheckMalicious → CheckAnomaly → EvaluateGuardrails →
// {Generate | Blocked} → END. The two checks query independent corpora
// and run concurrently; the combine waits on both.
type Service struct {
	detector  Detector
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates a pipeline service.
func New(detector Detector, generator Generator, cfg Config, logger *zap.Logger) *Service {
	return &Service{detector: detector, generator: generator, cfg: cfg, logger: logger}
}

// Run executes the pipeline once. The only error it returns is context
// cancellation: collaborator failures inside the stages never surface
// to the caller (checks fail open, generation fails to an apology).
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	maliciousThreshold := s.cfg.MaliciousThreshold
	if req.MaliciousThreshold != nil {
		maliciousThreshold = *req.MaliciousThreshold
	}
	anomalyThreshold := s.cfg.AnomalyThreshold
	if req.AnomalyThreshold != nil {
		anomalyThreshold = *req.AnomalyThreshold
	}

	var res Result

	// Fork-join: independent corpora, join barrier before the combine.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Malicious = s.runCheck(ctx, domain.KindMalicious, req.Text, maliciousThreshold)
	}()
	go func() {
		defer wg.Done()
		res.Anomaly = s.runCheck(ctx, domain.KindAnomaly, req.Text, anomalyThreshold)
	}()
	wg.Wait()

	// Abandon partial work on cancellation; no partial verdict.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res.Passed = !(res.Malicious.Verdict.Flagged || res.Anomaly.Verdict.Flagged)
	s.logger.Info("evaluate_guardrails",
		zap.Bool("malicious_flagged", res.Malicious.Verdict.Flagged),
		zap.Bool("anomaly_flagged", res.Anomaly.Verdict.Flagged),
		zap.Bool("passed", res.Passed),
	)

	if res.Passed {
		res.Response = s.generate(ctx, req.Text)
	} else {
		res.Response = s.blocked(req.Text, res)
	}

	return res, nil
}

// runCheck executes one guardrail check stage with a bounded timeout.
// Any failure — embedding, store, timeout — fails open: the check
// records not-flagged so a guardrail outage never blocks legitimate
// traffic. The event is logged and counted for alerting.
func (s *Service) runCheck(
	ctx context.Context, kind domain.Kind, text string, threshold float64,
) CheckOutcome {
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	verdict, err := s.detector.Evaluate(checkCtx, kind, text, detect.Options{Threshold: &threshold})
	if err != nil {
		metrics.FailOpenTotal.WithLabelValues(string(kind)).Inc()
		s.logger.Warn("guardrail check failed open",
			zap.String("corpus", string(kind)),
			zap.String("input", text),
			zap.Error(err),
		)
		return CheckOutcome{
			Verdict:    domain.Verdict{Flagged: false, Risk: domain.RiskLow},
			FailOpen:   true,
			FailReason: err.Error(),
		}
	}

	s.logger.Info("check_"+string(kind),
		zap.String("input", text),
		zap.Bool("flagged", verdict.Flagged),
		zap.Float64("confidence", verdict.Confidence),
	)
	return CheckOutcome{Verdict: verdict}
}

// generate invokes the generation port; on failure the user gets the
// fixed apology instead of an error.
func (s *Service) generate(ctx context.Context, text string) string {
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	gen, err := s.generator.Generate(genCtx, text)
	if err != nil {
		metrics.PipelineRequestsTotal.WithLabelValues("generation_failed").Inc()
		s.logger.Error("generate_response failed", zap.String("input", text), zap.Error(err))
		return apologyMessage
	}

	metrics.PipelineRequestsTotal.WithLabelValues("generated").Inc()
	s.logger.Info("generate_response",
		zap.String("input", text),
		zap.String("model", gen.Model),
		zap.Int("prompt_tokens", gen.PromptTokens),
		zap.Int("completion_tokens", gen.CompletionTokens),
		zap.Int("total_tokens", gen.TotalTokens),
	)
	return gen.Content
}

// blocked composes the canned refusal: preamble plus the union of
// reasons from whichever checks flagged, malicious side first.
func (s *Service) blocked(text string, res Result) string {
	var reasons []string
	if res.Malicious.Verdict.Flagged {
		reasons = append(reasons, res.Malicious.Verdict.Reasons...)
	}
	if res.Anomaly.Verdict.Flagged {
		reasons = append(reasons, res.Anomaly.Verdict.Reasons...)
	}

	metrics.PipelineRequestsTotal.WithLabelValues("blocked").Inc()
	s.logger.Info("blocked_response",
		zap.String("input", text),
		zap.Bool("malicious_detected", res.Malicious.Verdict.Flagged),
		zap.Bool("anomaly_detected", res.Anomaly.Verdict.Flagged),
		zap.Strings("reasons", reasons),
	)

	msg := blockedPreamble
	if len(reasons) > 0 {
		msg += "\n\nReasons: " + strings.Join(reasons, "; ")
	}
	return msg
}
