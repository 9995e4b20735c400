package agents

import (
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/tools"
)

const reportingInstruction = "You are a specialized assistant for generating currency conversion reports. " +
	"Your sole purpose is to use the 'generate_currency_report' and 'format_conversion_summary' tools to create reports about currency conversions. " +
	"If the user asks about anything other than currency reporting or conversion summaries, " +
	"politely state that you cannot help with that topic and can only assist with currency reporting queries. " +
	"Do not attempt to answer unrelated questions or use tools for other purposes."

const reportingFormatInstruction = "Set response status to input_required if the user needs to provide more information to complete the request. " +
	"Set response status to error if there is an error while processing the request. " +
	"Set response status to completed if the request is complete."

// ReportingCard returns the reporting agent's card.
func ReportingCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "Reporting Agent",
		Description: "Generates comprehensive reports for currency conversion results",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: false,
		},
		DefaultInputModes:  []string{"text", "text/plain"},
		DefaultOutputModes: []string{"text", "text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          "generate_report",
			Name:        "Currency Report Generator",
			Description: "Creates detailed reports and summaries for currency conversions",
			Tags:        []string{"currency report", "conversion summary"},
			Examples:    []string{"Generate a report for a USD to EUR conversion at rate 0.92"},
		}},
	}
}

// NewReportingAgent assembles the reporting agent. Its tools run locally.
func NewReportingAgent(url string, toolTimeout time.Duration) (*Definition, error) {
	registry, err := tools.NewRegistry(toolTimeout,
		tools.NewCurrencyReportTool(),
		tools.NewConversionSummaryTool(),
	)
	if err != nil {
		return nil, err
	}

	return &Definition{
		Card:        ReportingCard(url),
		Instruction: reportingInstruction + "\n\n" + reportingFormatInstruction,
		Registry:    registry,
	}, nil
}
