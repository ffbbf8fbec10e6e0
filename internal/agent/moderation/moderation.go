// Package moderation classifies the latest user message before any reasoning
// stage sees it.
package moderation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/parsers"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/graph/prompts"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/metrics"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// Detector returns the findings for text. A non-empty list whose first entry
// is positive means the text is inappropriate.
type Detector interface {
	Detect(ctx context.Context, text string) ([]model.Detection, error)
}

// FailPolicy decides the verdict when the detector cannot answer.
type FailPolicy string

const (
	FailClosed FailPolicy = "closed"
	FailOpen   FailPolicy = "open"
)

// ParseFailPolicy accepts "open" and "closed"; anything else is closed.
func ParseFailPolicy(s string) FailPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(FailOpen)) {
		return FailOpen
	}
	return FailClosed
}

// Gate turns detector output into a verdict with an explicit failure policy.
type Gate struct {
	detector Detector
	timeout  time.Duration
	policy   FailPolicy
}

func NewGate(detector Detector, timeout time.Duration, policy FailPolicy) *Gate {
	return &Gate{detector: detector, timeout: timeout, policy: policy}
}

// Moderate never fails: detector errors and timeouts resolve to the policy verdict.
func (g *Gate) Moderate(ctx context.Context, text string) model.Verdict {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	detections, err := g.detector.Detect(ctx, text)
	if err != nil {
		verdict := model.VerdictInappropriate
		if g.policy == FailOpen {
			verdict = model.VerdictSafe
		}
		metrics.ModerationFailures.Inc()
		logx.Error().
			Err(errx.WrapModel(err)).
			Str("fail_policy", string(g.policy)).
			Str("verdict", string(verdict)).
			Msg("Moderation failed; applying fail policy")
		metrics.ModerationVerdicts.WithLabelValues(string(verdict)).Inc()
		return verdict
	}

	verdict := model.VerdictSafe
	if len(detections) > 0 && detections[0].Positive() {
		verdict = model.VerdictInappropriate
		logx.Info().
			Str("detection_type", detections[0].DetectionType).
			Float64("score", detections[0].Score).
			Msg("Message flagged by moderation")
	}
	metrics.ModerationVerdicts.WithLabelValues(string(verdict)).Inc()
	return verdict
}

// LLMDetector asks a chat model to classify text and applies a score threshold.
type LLMDetector struct {
	chatModel einomodel.BaseChatModel
	threshold float64
}

func NewLLMDetector(cm einomodel.BaseChatModel, threshold float64) *LLMDetector {
	return &LLMDetector{chatModel: cm, threshold: threshold}
}

// Detect returns detections ordered by severity: positives above the
// threshold first, then by descending score. Positives below the threshold
// are downgraded to "No".
func (d *LLMDetector) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	msgs, err := prompts.RenderModeration(ctx, text)
	if err != nil {
		return nil, err
	}
	out, err := d.chatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("moderation model: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("moderation model: empty reply")
	}

	res := parsers.ParseDetections(out.Content)
	list, ok := res.Value()
	if !ok {
		return nil, fmt.Errorf("moderation model: %s", res.Reason())
	}

	detections := list.Detections
	for i := range detections {
		if detections[i].Positive() && detections[i].Score < d.threshold {
			detections[i].Detection = "No"
		}
	}
	sort.SliceStable(detections, func(i, j int) bool {
		pi, pj := detections[i].Positive(), detections[j].Positive()
		if pi != pj {
			return pi
		}
		return detections[i].Score > detections[j].Score
	})
	return detections, nil
}
