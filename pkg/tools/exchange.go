package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agent-protocol/a2a-delegation/pkg/core"
)

// DefaultRatesURL is the public exchange-rate API.
const DefaultRatesURL = "https://api.frankfurter.app"

// LookupError is an external data lookup failure. It is reported to the
// reasoning engine as an observation.
type LookupError struct {
	Message string
	Err     error
}

func (e *LookupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ExchangeRateArgs are the arguments of get_exchange_rate.
type ExchangeRateArgs struct {
	CurrencyFrom string `json:"currency_from,omitempty" jsonschema:"description=The currency to convert from (e.g. USD),default=USD"`
	CurrencyTo   string `json:"currency_to,omitempty" jsonschema:"description=The currency to convert to (e.g. EUR),default=EUR"`
	CurrencyDate string `json:"currency_date,omitempty" jsonschema:"description=The date for the exchange rate or latest,default=latest"`
}

// ExchangeRateClient fetches rates from a Frankfurter-compatible API.
type ExchangeRateClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewExchangeRateClient creates a rate client. An empty baseURL uses DefaultRatesURL.
func NewExchangeRateClient(baseURL string, httpClient *http.Client) *ExchangeRateClient {
	if baseURL == "" {
		baseURL = DefaultRatesURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &ExchangeRateClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Fetch issues one GET for the rate. No retries.
func (c *ExchangeRateClient) Fetch(ctx context.Context, args ExchangeRateArgs) (map[string]any, error) {
	if args.CurrencyFrom == "" {
		args.CurrencyFrom = "USD"
	}
	if args.CurrencyTo == "" {
		args.CurrencyTo = "EUR"
	}
	if args.CurrencyDate == "" {
		args.CurrencyDate = "latest"
	}

	query := url.Values{}
	query.Set("from", strings.ToUpper(args.CurrencyFrom))
	query.Set("to", strings.ToUpper(args.CurrencyTo))
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(args.CurrencyDate), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &LookupError{Message: "API request failed", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Message: "API request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &LookupError{Message: "API request failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &LookupError{
			Message: "API request failed",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &LookupError{Message: "Invalid JSON response from API."}
	}
	if _, ok := data["rates"]; !ok {
		return nil, &LookupError{Message: "Invalid API response format."}
	}
	return data, nil
}

// NewExchangeRateTool returns the get_exchange_rate lookup tool.
func NewExchangeRateTool(client *ExchangeRateClient) *FunctionTool[ExchangeRateArgs] {
	return MustFunctionTool("get_exchange_rate",
		"Use this to get current exchange rate. Returns the exchange rate data, or an error message if the request fails.",
		core.ToolKindLookup,
		func(ctx context.Context, args ExchangeRateArgs, toolCtx *core.ToolContext) (any, error) {
			data, err := client.Fetch(ctx, args)
			if err != nil {
				toolLogger(toolCtx).Warn("Exchange rate lookup failed", "from", args.CurrencyFrom, "to", args.CurrencyTo, "error", err)
				return nil, err
			}
			return data, nil
		})
}
