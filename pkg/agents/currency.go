package agents

import (
	"net/http"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/a2a"
	"github.com/agent-protocol/a2a-delegation/pkg/tools"
)

// Definition is everything an agent server needs besides its reasoning
// engine: the card it publishes, its instruction and its tools.
type Definition struct {
	Card        *a2a.AgentCard
	Instruction string
	Registry    *tools.Registry
}

const currencyInstruction = "You are a specialized assistant for currency conversions. " +
	"Your primary purpose is to use the 'get_exchange_rate' tool to get currency exchange rates, " +
	"and then use the 'call_reporting_agent' tool to generate comprehensive reports about the conversions. " +
	"Always follow this workflow: 1) Get exchange rate, 2) Call reporting agent with the results. " +
	"If the user asks about anything other than currency conversion or exchange rates, " +
	"politely state that you cannot help with that topic and can only assist with currency-related queries. " +
	"Do not attempt to answer unrelated questions or use tools for other purposes."

const currencyFormatInstruction = "Set response status to input_required if the user needs to provide more information to complete the request. " +
	"Set response status to error if there is an error while processing the request. " +
	"Set response status to completed if the request is complete and both exchange rate and report have been generated."

// CurrencyOptions configures the currency agent.
type CurrencyOptions struct {
	// URL is the base URL published in the card.
	URL string
	// RatesURL is the exchange-rate API base URL.
	RatesURL string
	// ReportingAgentURL is the base URL of the reporting agent.
	ReportingAgentURL string
	// ToolTimeout bounds every tool invocation.
	ToolTimeout time.Duration
	// DelegationTimeout bounds one nested call to the reporting agent.
	DelegationTimeout time.Duration
	// HTTPClient is used for exchange-rate lookups.
	HTTPClient *http.Client
	// Resolver resolves the reporting agent card.
	Resolver a2a.CardResolver
	// Client configures the nested A2A client.
	Client *a2a.ClientConfig
}

// CurrencyCard returns the currency agent's card.
func CurrencyCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "Currency Agent",
		Description: "Helps with exchange rates for currencies and delegates conversion reports to the Reporting Agent",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: false,
		},
		DefaultInputModes:  []string{"text", "text/plain"},
		DefaultOutputModes: []string{"text", "text/plain"},
		Skills: []a2a.AgentSkill{{
			ID:          "convert_currency",
			Name:        "Currency Exchange Rates Tool",
			Description: "Helps with exchange values between various currencies",
			Tags:        []string{"currency conversion", "currency exchange"},
			Examples:    []string{"What is exchange rate between USD and GBP?"},
		}},
	}
}

// NewCurrencyAgent assembles the currency agent: an exchange-rate lookup and
// a delegation to the reporting agent.
func NewCurrencyAgent(opts CurrencyOptions) (*Definition, error) {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = a2a.NewCachingResolver(a2a.NewAgentCardResolver(opts.HTTPClient))
	}

	delegator := tools.NewDelegator(tools.DelegateConfig{
		AgentURL: opts.ReportingAgentURL,
		Timeout:  opts.DelegationTimeout,
		Client:   opts.Client,
	}, resolver)

	registry, err := tools.NewRegistry(opts.ToolTimeout,
		tools.NewExchangeRateTool(tools.NewExchangeRateClient(opts.RatesURL, opts.HTTPClient)),
		tools.NewReportingDelegateTool(delegator),
	)
	if err != nil {
		return nil, err
	}

	return &Definition{
		Card:        CurrencyCard(opts.URL),
		Instruction: currencyInstruction + "\n\n" + currencyFormatInstruction,
		Registry:    registry,
	}, nil
}
