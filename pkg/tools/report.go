package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// ReportArgs are the arguments of generate_currency_report.
type ReportArgs struct {
	ConversionResult map[string]any `json:"conversion_result" jsonschema:"required,description=The currency conversion result data containing from and to and rate and raw data"`
	SessionID        string         `json:"session_id,omitempty" jsonschema:"description=Session identifier for the request"`
}

// SummaryArgs are the arguments of format_conversion_summary.
type SummaryArgs struct {
	ConversionResult map[string]any `json:"conversion_result" jsonschema:"required,description=The currency conversion result data"`
}

// BuildCurrencyReport renders the long-form conversion report.
func BuildCurrencyReport(conversion map[string]any, sessionID string) string {
	from := valueOr(conversion, "from")
	to := valueOr(conversion, "to")
	rate := valueOr(conversion, "rate")

	raw, _ := conversion["raw"].(map[string]any)
	date := valueOr(raw, "date")
	rawJSON := "{}"
	if raw != nil {
		if data, err := json.Marshal(raw); err == nil {
			rawJSON = string(data)
		}
	}
	if sessionID == "" {
		sessionID = "default-session"
	}

	var sb strings.Builder
	sb.WriteString("Currency Conversion Report\n")
	sb.WriteString("========================\n\n")
	sb.WriteString("Conversion Details:\n")
	fmt.Fprintf(&sb, "- From: %v\n", from)
	fmt.Fprintf(&sb, "- To: %v\n", to)
	fmt.Fprintf(&sb, "- Exchange Rate: %v\n", rate)
	fmt.Fprintf(&sb, "- Date: %v\n\n", date)
	sb.WriteString("Analysis:\n")
	fmt.Fprintf(&sb, "This conversion shows the current exchange rate between %v and %v.\n", from, to)
	fmt.Fprintf(&sb, "The rate of %v means that 1 %v equals %v %v.\n\n", rate, from, rate, to)
	sb.WriteString("Raw API Response:\n")
	sb.WriteString(rawJSON + "\n\n")
	fmt.Fprintf(&sb, "Session ID: %s\n", sessionID)
	sb.WriteString("Report Generated Successfully")
	return sb.String()
}

// FormatConversionSummary renders the one-line summary.
func FormatConversionSummary(conversion map[string]any) string {
	return fmt.Sprintf("Conversion Summary: 1 %v = %v %v", valueOr(conversion, "from"), valueOr(conversion, "rate"), valueOr(conversion, "to"))
}

// NewCurrencyReportTool returns the generate_currency_report tool.
func NewCurrencyReportTool() *FunctionTool[ReportArgs] {
	return MustFunctionTool("generate_currency_report",
		"Generate a detailed report for currency conversion results.",
		core.ToolKindCompute,
		func(ctx context.Context, args ReportArgs, toolCtx *core.ToolContext) (any, error) {
			if len(args.ConversionResult) == 0 {
				return nil, fmt.Errorf("conversion_result is required")
			}
			return map[string]any{
				"status":  "completed",
				"report":  BuildCurrencyReport(args.ConversionResult, args.SessionID),
				"summary": fmt.Sprintf("Generated report for %v to %v conversion", valueOr(args.ConversionResult, "from"), valueOr(args.ConversionResult, "to")),
			}, nil
		})
}

// NewConversionSummaryTool returns the format_conversion_summary tool.
func NewConversionSummaryTool() *FunctionTool[SummaryArgs] {
	return MustFunctionTool("format_conversion_summary",
		"Format a brief summary of the conversion result.",
		core.ToolKindCompute,
		func(ctx context.Context, args SummaryArgs, toolCtx *core.ToolContext) (any, error) {
			if len(args.ConversionResult) == 0 {
				return nil, fmt.Errorf("conversion_result is required")
			}
			return map[string]any{
				"status":  "completed",
				"summary": FormatConversionSummary(args.ConversionResult),
			}, nil
		})
}
