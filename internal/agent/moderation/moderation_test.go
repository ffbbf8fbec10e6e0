package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
)

type stubDetector struct {
	detections []model.Detection
	err        error
	block      bool
}

func (d *stubDetector) Detect(ctx context.Context, _ string) ([]model.Detection, error) {
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.detections, d.err
}

type replyModel struct {
	content string
	err     error
	input   []*schema.Message
}

func (m *replyModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.content, nil), nil
}

func (m *replyModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestParseFailPolicy(t *testing.T) {
	assert.Equal(t, FailOpen, ParseFailPolicy(" OPEN "))
	assert.Equal(t, FailClosed, ParseFailPolicy("closed"))
	assert.Equal(t, FailClosed, ParseFailPolicy("whatever"))
}

func TestGate_Moderate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		detector *stubDetector
		policy   FailPolicy
		want     model.Verdict
	}{
		{"no detections", &stubDetector{}, FailClosed, model.VerdictSafe},
		{"first positive", &stubDetector{detections: []model.Detection{{Detection: "Yes", Score: 0.9}}}, FailClosed, model.VerdictInappropriate},
		{"first negative", &stubDetector{detections: []model.Detection{{Detection: "No", Score: 0.1}, {Detection: "yes", Score: 0.9}}}, FailClosed, model.VerdictSafe},
		{"error fail closed", &stubDetector{err: errors.New("boom")}, FailClosed, model.VerdictInappropriate},
		{"error fail open", &stubDetector{err: errors.New("boom")}, FailOpen, model.VerdictSafe},
		{"timeout fail closed", &stubDetector{block: true}, FailClosed, model.VerdictInappropriate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.detector, 20*time.Millisecond, tt.policy)
			assert.Equal(t, tt.want, g.Moderate(ctx, "some text"))
		})
	}
}

func TestLLMDetector_Detect(t *testing.T) {
	ctx := context.Background()

	t.Run("orders positives first and applies threshold", func(t *testing.T) {
		m := &replyModel{content: "```json\n" + `{"detections":[
			{"detection":"No","detection_type":"spam","score":0.2},
			{"detection":"Yes","detection_type":"toxicity","score":0.4},
			{"detection":"Yes","detection_type":"insult","score":0.95}
		]}` + "\n```"}
		d := NewLLMDetector(m, 0.6)

		got, err := d.Detect(ctx, "you idiot")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "insult", got[0].DetectionType)
		assert.True(t, got[0].Positive())
		// below threshold is downgraded
		assert.False(t, got[1].Positive())
		assert.Equal(t, "toxicity", got[1].DetectionType)

		require.Len(t, m.input, 2)
		assert.Equal(t, "you idiot", m.input[1].Content)
	})

	t.Run("empty text skips the model", func(t *testing.T) {
		m := &replyModel{}
		got, err := NewLLMDetector(m, 0.6).Detect(ctx, "   ")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Nil(t, m.input)
	})

	t.Run("model error", func(t *testing.T) {
		_, err := NewLLMDetector(&replyModel{err: errors.New("down")}, 0.6).Detect(ctx, "hi")
		assert.Error(t, err)
	})

	t.Run("malformed reply", func(t *testing.T) {
		_, err := NewLLMDetector(&replyModel{content: "I think it's fine"}, 0.6).Detect(ctx, "hi")
		assert.Error(t, err)
	})
}
