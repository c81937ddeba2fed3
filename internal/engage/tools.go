package engage

import (
	"encoding/json"
	"fmt"

	"github.com/lurebox/lurebox/internal/intel"
	"github.com/lurebox/lurebox/internal/oracle"
	"github.com/lurebox/lurebox/internal/session"
)

const (
	toolExtractIntelligence   = "extract_intelligence"
	toolEvaluateStopCondition = "evaluate_stop_condition"
)

// toolset declares the capabilities offered to the oracle on every first
// call of a turn.
func toolset() []oracle.Tool {
	return []oracle.Tool{
		{
			Type: "function",
			Function: oracle.ToolFunction{
				Name:        toolExtractIntelligence,
				Description: "Extract UPI IDs, bank account numbers, phone numbers, and URLs from text.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string", "description": "Text to extract entities from"},
					},
					"required":             []string{"text"},
					"additionalProperties": false,
				},
			},
		},
		{
			Type: "function",
			Function: oracle.ToolFunction{
				Name:        toolEvaluateStopCondition,
				Description: "Signal that the engagement has served its purpose and the conversation should end.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"should_stop": map[string]any{"type": "boolean"},
						"reason":      map[string]any{"type": "string"},
					},
					"required":             []string{"should_stop", "reason"},
					"additionalProperties": false,
				},
			},
		},
	}
}

// stopArgs are the oracle-supplied arguments of evaluate_stop_condition.
type stopArgs struct {
	ShouldStop bool   `json:"should_stop"`
	Reason     string `json:"reason"`
}

// toolOutcome is the result of executing one requested tool call.
type toolOutcome struct {
	Output string // fed back to the oracle as the tool's result
	Stop   bool
	Reason string
}

// toolHandler executes one tool call against the session and the latest
// inbound text.
type toolHandler func(s *session.Session, inboundText string, call oracle.ToolCall) (toolOutcome, error)

// toolHandlers dispatches oracle tool requests by function name. Unknown
// names fall through to an error output so the oracle can recover.
func (o *Orchestrator) toolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		toolExtractIntelligence:   o.handleExtract,
		toolEvaluateStopCondition: o.handleStopCondition,
	}
}

// handleExtract runs the extractor against the latest inbound message only,
// never against oracle-supplied text, so a prompt-injected argument cannot
// fabricate intelligence.
func (o *Orchestrator) handleExtract(s *session.Session, inboundText string, call oracle.ToolCall) (toolOutcome, error) {
	found := intel.Extract(inboundText)
	intel.Merge(&s.Intelligence, found)

	output, err := json.Marshal(found)
	if err != nil {
		return toolOutcome{}, fmt.Errorf("failed to serialize extraction result: %w", err)
	}
	return toolOutcome{Output: string(output)}, nil
}

// handleStopCondition short-circuits the turn when the oracle decides the
// engagement is over. The minimum-turn guardrail is enforced here rather
// than trusted to the directive text.
func (o *Orchestrator) handleStopCondition(s *session.Session, inboundText string, call oracle.ToolCall) (toolOutcome, error) {
	var args stopArgs
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return toolOutcome{Output: `{"error":"malformed arguments"}`}, nil
	}

	if args.ShouldStop && s.AgentTurns >= o.cfg.StopMinTurns {
		return toolOutcome{Stop: true, Reason: args.Reason}, nil
	}

	output, err := json.Marshal(args)
	if err != nil {
		return toolOutcome{}, err
	}
	return toolOutcome{Output: string(output)}, nil
}
