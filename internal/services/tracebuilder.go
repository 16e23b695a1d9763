package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/decision-timeline-backend/internal/types"
)

// TraceBuilder synthesizes a canonical step sequence for decisions
// submitted without explicit steps. The order is fixed: input ->
// reasoning -> decision -> action -> outcome, and stages with no
// backing data are omitted.
type TraceBuilder struct{}

func NewTraceBuilder() *TraceBuilder {
	return &TraceBuilder{}
}

func (tb *TraceBuilder) BuildSteps(input CreateDecisionInput) []StepInput {
	var steps []StepInput

	steps = append(steps, StepInput{
		StepType: types.StepInput,
		Content:  "Input received: " + tb.summarizePayload(input.InputData, "No input data"),
		Metadata: map[string]interface{}{"input_data": input.InputData},
	})

	if len(input.SystemState) > 0 {
		steps = append(steps, StepInput{
			StepType: types.StepReasoning,
			Content:  "System state: " + tb.summarizePayload(input.SystemState, "No state data"),
			Metadata: map[string]interface{}{"system_state": input.SystemState},
		})
	}

	if input.Reasoning != "" {
		steps = append(steps, StepInput{
			StepType: types.StepReasoning,
			Content:  input.Reasoning,
			Metadata: map[string]interface{}{
				"source":     string(input.Source),
				"confidence": confidenceOf(input),
			},
		})
	}

	decisionContent := "Decision: " + input.Decision
	if confidenceOf(input) < 0.7 {
		decisionContent += " (Low confidence - may require review)"
	}
	steps = append(steps, StepInput{
		StepType: types.StepDecision,
		Content:  decisionContent,
		Metadata: map[string]interface{}{
			"decision":   input.Decision,
			"confidence": confidenceOf(input),
			"source":     string(input.Source),
		},
	})

	steps = append(steps, StepInput{
		StepType: types.StepAction,
		Content:  tb.actionText(input.Decision),
		Metadata: map[string]interface{}{"auto_generated": true},
	})

	if input.Outcome != nil && *input.Outcome != "" {
		metadata := map[string]interface{}{}
		if input.OutcomeData != nil {
			metadata = input.OutcomeData
		}
		steps = append(steps, StepInput{
			StepType: types.StepOutcome,
			Content:  *input.Outcome,
			Metadata: metadata,
		})
	}

	return steps
}

// summarizePayload renders up to three key=value pairs from an opaque
// payload. Keys are sorted so the summary is deterministic.
func (tb *TraceBuilder) summarizePayload(payload map[string]interface{}, emptyText string) string {
	if len(payload) == 0 {
		return emptyText
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 1 {
		return fmt.Sprintf("%s = %v", keys[0], payload[keys[0]])
	}

	shown := keys
	if len(shown) > 3 {
		shown = shown[:3]
	}
	parts := make([]string, 0, len(shown))
	for _, k := range shown {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	summary := strings.Join(parts, ", ")
	if len(keys) > 3 {
		summary += fmt.Sprintf(", +%d more", len(keys)-3)
	}
	return summary
}

func (tb *TraceBuilder) actionText(decision string) string {
	text := strings.ToLower(decision)
	switch {
	case strings.Contains(text, "approve"):
		return "Executing approval workflow"
	case strings.Contains(text, "reject"), strings.Contains(text, "deny"):
		return "Executing rejection workflow"
	case strings.Contains(text, "escalate"):
		return "Escalating to human review"
	case strings.Contains(text, "route"):
		return "Routing to appropriate handler"
	default:
		return "Executing decision action"
	}
}

func confidenceOf(input CreateDecisionInput) float64 {
	if input.Confidence == nil {
		return 0
	}
	return *input.Confidence
}
