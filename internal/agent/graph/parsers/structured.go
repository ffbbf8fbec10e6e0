package parsers

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024
	maxErrSnippet = 200
)

var (
	//go:embed schema/advisory.json
	advisorySchemaJSON []byte
	//go:embed schema/eligibility.json
	eligibilitySchemaJSON []byte
	//go:embed schema/detections.json
	detectionsSchemaJSON []byte

	advisorySchema    = mustSchema("advisory", advisorySchemaJSON)
	eligibilitySchema = mustSchema("eligibility", eligibilitySchemaJSON)
	detectionsSchema  = mustSchema("detections", detectionsSchemaJSON)
)

func mustSchema(name string, raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s schema: %v", name, err))
	}
	return s
}

// AdvisorySchema returns the JSON schema the advisory stage must answer with.
func AdvisorySchema() string { return compact(advisorySchemaJSON) }

// EligibilitySchema returns the JSON schema of an eligibility decision.
func EligibilitySchema() string { return compact(eligibilitySchemaJSON) }

// DetectionsSchema returns the JSON schema of a moderation reply.
func DetectionsSchema() string { return compact(detectionsSchemaJSON) }

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Result is either Parsed (a schema-valid value) or Unparsed (the raw text
// plus the reason it was rejected).
type Result[T any] struct {
	value  T
	parsed bool
	raw    string
	reason string
}

func Parsed[T any](v T, raw string) Result[T] {
	return Result[T]{value: v, parsed: true, raw: raw}
}

func Unparsed[T any](raw, reason string) Result[T] {
	return Result[T]{raw: raw, reason: reason}
}

// Value returns the parsed value and whether parsing succeeded.
func (r Result[T]) Value() (T, bool) { return r.value, r.parsed }

// Raw returns the completion text exactly as the model produced it.
func (r Result[T]) Raw() string { return r.raw }

// Reason explains an Unparsed result.
func (r Result[T]) Reason() string { return r.reason }

// ParseAdvisory validates content against the advisory schema.
func ParseAdvisory(content string) Result[model.AdvisoryOutput] {
	return parse[model.AdvisoryOutput]("advisory", advisorySchema, content)
}

// ParseEligibility validates content against the eligibility schema.
func ParseEligibility(content string) Result[model.EligibilityOutput] {
	return parse[model.EligibilityOutput]("eligibility", eligibilitySchema, content)
}

// ParseDetections validates a moderation reply.
func ParseDetections(content string) Result[model.DetectionList] {
	return parse[model.DetectionList]("detections", detectionsSchema, content)
}

func parse[T any](name string, schema *gojsonschema.Schema, content string) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "structured_parser").Str("schema", name).Msgf("panic recovered: %v", r)
			res = Unparsed[T](content, "parser panic")
		}
	}()

	if len(content) > maxContentLen {
		return Unparsed[T](content, "content too large")
	}

	doc, ok := extractJSONObject(content)
	if !ok {
		return Unparsed[T](content, "no json object found")
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return Unparsed[T](content, "invalid json: "+snippet(err.Error()))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Unparsed[T](content, "schema violation: "+snippet(strings.Join(msgs, "; ")))
	}

	var v T
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return Unparsed[T](content, "decode: "+snippet(err.Error()))
	}
	return Parsed(v, content)
}

// extractJSONObject strips markdown fences and returns the outermost {...}.
func extractJSONObject(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func snippet(s string) string {
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}
