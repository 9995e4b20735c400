// Package agents drives the reasoning loop of an agent and defines the
// currency and reporting agents.
//
// # Loop Detection
//
// A turn is bounded two ways:
//
//  1. Step budget: at most MaxSteps actions are proposed per turn. Running
//     out ends the task in error with reason loop_budget_exceeded. This is
//     what stops two agents that keep delegating to each other.
//  2. Repeating pattern: the same tool called with the same arguments
//     RepeatLimit times in a row ends the task in error with reason
//     repeated_tool_calls.
//
//	Step 1: engine calls get_exchange_rate({"currency_from":"USD"})
//	Step 2: engine calls get_exchange_rate({"currency_from":"USD"})
//	Step 3: engine calls get_exchange_rate({"currency_from":"USD"})
//	-> Loop detected, the third call is not executed
package agents

import (
	"log/slog"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// LoopDetector handles loop detection for one turn.
type LoopDetector struct {
	repeatLimit int
	lastCall    string
	consecutive int
}

// NewLoopDetector creates a new loop detector. repeatLimit below 2 disables
// pattern detection.
func NewLoopDetector(repeatLimit int) *LoopDetector {
	return &LoopDetector{repeatLimit: repeatLimit}
}

// Observe records a proposed tool call and reports whether it completes a
// run of repeatLimit identical calls.
func (ld *LoopDetector) Observe(call *core.ToolCall) bool {
	signature := call.Signature()
	if signature == ld.lastCall {
		ld.consecutive++
	} else {
		ld.lastCall = signature
		ld.consecutive = 1
	}

	if ld.repeatLimit >= 2 && ld.consecutive >= ld.repeatLimit {
		slog.Warn("Detected loop", "tool", call.Name, "consecutive_calls", ld.consecutive)
		return true
	}
	return false
}
