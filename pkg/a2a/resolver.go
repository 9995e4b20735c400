package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// maxCardSize bounds how much of a card response is read.
const maxCardSize = 1 << 20

var cardValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateAgentCard checks the required card fields.
func ValidateAgentCard(card *AgentCard) error {
	if card == nil {
		return fmt.Errorf("agent card cannot be nil")
	}
	if err := cardValidator.Struct(card); err != nil {
		return fmt.Errorf("invalid agent card: %w", err)
	}
	return nil
}

// CardResolver resolves an agent card for a base URL.
type CardResolver interface {
	Resolve(ctx context.Context, baseURL string) (*AgentCard, error)
}

// AgentCardResolver fetches agent cards from the well-known path.
type AgentCardResolver struct {
	httpClient *http.Client
}

var _ CardResolver = (*AgentCardResolver)(nil)

// NewAgentCardResolver creates a new agent card resolver
func NewAgentCardResolver(httpClient *http.Client) *AgentCardResolver {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &AgentCardResolver{httpClient: httpClient}
}

// CardURL returns the well-known card location for a base URL.
func CardURL(baseURL string) (string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return base + AgentCardPath, nil
}

// Resolve issues a single GET against <baseURL>/.well-known/agent.json.
// Every failure is reported as *CardUnavailableError.
func (r *AgentCardResolver) Resolve(ctx context.Context, baseURL string) (*AgentCard, error) {
	cardURL, err := CardURL(baseURL)
	if err != nil {
		return nil, &CardUnavailableError{URL: baseURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, &CardUnavailableError{URL: cardURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &CardUnavailableError{URL: cardURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCardSize))
	if err != nil {
		return nil, &CardUnavailableError{URL: cardURL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CardUnavailableError{
			URL:        cardURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body))),
		}
	}

	var card AgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, &CardUnavailableError{URL: cardURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode agent card: %w", err)}
	}
	if err := ValidateAgentCard(&card); err != nil {
		return nil, &CardUnavailableError{URL: cardURL, StatusCode: resp.StatusCode, Err: err}
	}

	slog.Debug("Resolved agent card", "url", cardURL, "name", card.Name, "version", card.Version)
	return &card, nil
}

// CachingResolver memoises resolved cards per base URL. Failures are not cached.
type CachingResolver struct {
	next CardResolver

	mu    sync.Mutex
	cards map[string]*AgentCard
}

var _ CardResolver = (*CachingResolver)(nil)

// NewCachingResolver wraps next with a per-URL cache.
func NewCachingResolver(next CardResolver) *CachingResolver {
	return &CachingResolver{
		next:  next,
		cards: make(map[string]*AgentCard),
	}
}

// Resolve returns the cached card or resolves it through the wrapped resolver.
// The lock is not held while fetching.
func (r *CachingResolver) Resolve(ctx context.Context, baseURL string) (*AgentCard, error) {
	key := strings.TrimSuffix(baseURL, "/")

	r.mu.Lock()
	card, ok := r.cards[key]
	r.mu.Unlock()
	if ok {
		return card, nil
	}

	card, err := r.next.Resolve(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cards[key] = card
	r.mu.Unlock()
	return card, nil
}
