package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"prognos/internal/forecast"
	"prognos/internal/logging"
)

const elicitSystemPrompt = `You are a careful probabilistic forecaster.
Answer with the single JSON object requested and nothing else.
Percentiles are cumulative: "percentile": 0.10 means a 10% chance the true
value is at or below "value". Never return percentiles out of order.`

// Elicitor turns an LLM client into typed forecast inputs. Every response is
// parsed and validated here; malformed payloads are ValidationErrors, never
// repaired by guessing.
type Elicitor struct {
	client Client
}

// NewElicitor creates an elicitor over client.
func NewElicitor(client Client) *Elicitor {
	return &Elicitor{client: client}
}

// ElicitPercentiles asks for percentile estimates for a numeric question.
func (e *Elicitor) ElicitPercentiles(ctx context.Context, question string, bounds forecast.DistributionBounds) ([]forecast.PercentileEstimate, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("QUESTION: %s\n\n", question))
	if bounds.Lower != nil {
		sb.WriteString(fmt.Sprintf("Lower bound: %v (open=%v)\n", *bounds.Lower, bounds.LowerOpen))
	}
	if bounds.Upper != nil {
		sb.WriteString(fmt.Sprintf("Upper bound: %v (open=%v)\n", *bounds.Upper, bounds.UpperOpen))
	}
	if bounds.LogScale {
		sb.WriteString("The value scale is logarithmic; all values must be positive.\n")
	}
	sb.WriteString(`
Provide your 10th, 20th, 40th, 60th, 80th and 90th percentile estimates.
Return JSON only:
{"percentiles": [{"percentile": 0.10, "value": 0.0}, ...]}`)

	resp, err := e.client.CompleteWithSystem(ctx, elicitSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Percentiles []forecast.PercentileEstimate `json:"percentiles"`
	}
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &parsed); err != nil {
		return nil, forecast.Validationf("percentiles", "unparseable agent payload: %v", err)
	}
	if len(parsed.Percentiles) < 2 {
		return nil, forecast.Validationf("percentiles", "agent returned %d points, need at least 2", len(parsed.Percentiles))
	}

	sort.Slice(parsed.Percentiles, func(i, j int) bool {
		return parsed.Percentiles[i].Percentile < parsed.Percentiles[j].Percentile
	})

	logging.Get(logging.CategoryAgent).Debug("elicited percentiles",
		zap.Int("points", len(parsed.Percentiles)))
	return parsed.Percentiles, nil
}

// ElicitBinary asks for a single probability for a binary question.
func (e *Elicitor) ElicitBinary(ctx context.Context, question string) (float64, error) {
	prompt := fmt.Sprintf(`QUESTION: %s

What is the probability this resolves YES?
Return JSON only: {"probability": 0.0}`, question)

	resp, err := e.client.CompleteWithSystem(ctx, elicitSystemPrompt, prompt)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Probability float64 `json:"probability"`
	}
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &parsed); err != nil {
		return 0, forecast.Validationf("probability", "unparseable agent payload: %v", err)
	}
	if parsed.Probability <= 0 || parsed.Probability >= 1 {
		return 0, forecast.Validationf("probability", "%v outside (0,1)", parsed.Probability)
	}
	return parsed.Probability, nil
}

// ElicitCategorical asks for a probability per option. The returned map is
// validated to cover only the offered options; normalization happens in the
// aggregator, not here.
func (e *Elicitor) ElicitCategorical(ctx context.Context, question string, options []string) (map[string]float64, error) {
	if len(options) < 2 {
		return nil, forecast.Validationf("options", "need at least 2 categories, got %d", len(options))
	}

	prompt := fmt.Sprintf(`QUESTION: %s

OPTIONS: %s

Assign each option a probability. Probabilities should sum to roughly 1.
Return JSON only: {"probabilities": {"option": 0.0, ...}}`,
		question, strings.Join(options, ", "))

	resp, err := e.client.CompleteWithSystem(ctx, elicitSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &parsed); err != nil {
		return nil, forecast.Validationf("probabilities", "unparseable agent payload: %v", err)
	}

	allowed := make(map[string]bool, len(options))
	for _, o := range options {
		allowed[o] = true
	}
	out := make(map[string]float64, len(options))
	for k, v := range parsed.Probabilities {
		if !allowed[k] {
			return nil, forecast.Validationf("probabilities", "unknown category %q", k)
		}
		if v < 0 {
			return nil, forecast.Validationf("probabilities", "category %q has negative probability %v", k, v)
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, forecast.Validationf("probabilities", "agent returned no recognized categories")
	}
	return out, nil
}

// ProposeSubQuestions asks the agent to decompose a hard question into at
// most maxSubs weighted sub-questions at the given depth.
func (e *Elicitor) ProposeSubQuestions(ctx context.Context, question string, maxSubs, depth int) ([]forecast.SubQuestion, error) {
	prompt := fmt.Sprintf(`QUESTION: %s

Decompose this question into at most %d independent sub-questions whose
answers, combined, inform the original. Assign each a relative weight.
Kinds: "binary", "numeric", "categorical".
Return JSON only:
{"sub_questions": [{"kind": "binary", "prompt": "...", "weight": 1.0}]}`,
		question, maxSubs)

	resp, err := e.client.CompleteWithSystem(ctx, elicitSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SubQuestions []struct {
			Kind   string  `json:"kind"`
			Prompt string  `json:"prompt"`
			Weight float64 `json:"weight"`
		} `json:"sub_questions"`
	}
	if err := json.Unmarshal([]byte(cleanJSONResponse(resp)), &parsed); err != nil {
		return nil, forecast.Validationf("sub_questions", "unparseable agent payload: %v", err)
	}

	subs := make([]forecast.SubQuestion, 0, len(parsed.SubQuestions))
	for i, raw := range parsed.SubQuestions {
		if i >= maxSubs {
			break
		}
		kind := forecast.QuestionKind(raw.Kind)
		if !kind.Valid() {
			return nil, forecast.Validationf("sub_questions", "entry %d: unknown kind %q", i, raw.Kind)
		}
		if strings.TrimSpace(raw.Prompt) == "" {
			return nil, forecast.Validationf("sub_questions", "entry %d: empty prompt", i)
		}
		weight := raw.Weight
		if weight <= 0 {
			weight = 1
		}
		subs = append(subs, forecast.NewSubQuestion(kind, raw.Prompt, weight, depth))
	}

	logging.Get(logging.CategoryAgent).Info("proposed sub-questions",
		zap.Int("count", len(subs)), zap.Int("depth", depth))
	return subs, nil
}

// cleanJSONResponse strips markdown code fences from a model response.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
