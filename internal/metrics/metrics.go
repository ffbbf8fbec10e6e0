package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_turns_total",
			Help: "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loanadvisor_turn_duration_seconds",
			Help:    "Duration of one conversation turn in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loanadvisor_node_duration_seconds",
			Help: "Duration of graph component executions in seconds",
		},
		[]string{"component", "name"},
	)

	ModerationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_moderation_verdicts_total",
			Help: "Moderation verdicts by outcome",
		},
		[]string{"verdict"},
	)

	ModerationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loanadvisor_moderation_failures_total",
			Help: "Moderation calls that failed and fell back to the configured policy",
		},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_tool_calls_total",
			Help: "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "loanadvisor_tool_duration_seconds",
			Help: "Duration of tool invocations in seconds",
		},
		[]string{"tool"},
	)

	ToolRoundCapHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_tool_round_cap_total",
			Help: "Turns ended because a stage exceeded its tool round limit",
		},
		[]string{"stage"},
	)

	ModelFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_model_failures_total",
			Help: "Failed language-model calls by stage",
		},
		[]string{"stage"},
	)

	StructuredOutputFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_structured_output_fallbacks_total",
			Help: "Model replies that failed schema validation and were shown as raw text",
		},
		[]string{"stage"},
	)

	Applications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_applications_total",
			Help: "Eligibility decisions by result",
		},
		[]string{"result"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_llm_cost_usd_total",
			Help: "Accumulated language-model cost in USD",
		},
		[]string{"model"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanadvisor_llm_tokens_total",
			Help: "Language-model tokens by model and kind",
		},
		[]string{"model", "kind"},
	)
)
