package quote_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raceloop/typerace/go/clients"
)

// QuoteClient talks to the remote quote API that supplies race prompt
// text.
type QuoteClient struct {
	*clients.BaseClient
}

// NewQuoteClient creates a client against baseURL. Pass BaseURL for the
// production API; tests point it at a local server.
func NewQuoteClient(baseURL string) *QuoteClient {
	return &QuoteClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}

// Quote is one entry of the API's response array.
type Quote struct {
	Quote  string `json:"q"`
	Author string `json:"a"`
}

// Prompt renders the quote as race prompt text.
func (q Quote) Prompt() string {
	return q.Quote + " — " + q.Author
}

// RandomQuote fetches a single random quote.
func (c *QuoteClient) RandomQuote(ctx context.Context) (Quote, error) {
	body, err := c.Get(ctx, RandomQuoteEndpoint)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch random quote: %w", err)
	}

	var quotes []Quote
	if err := json.Unmarshal(body, &quotes); err != nil {
		return Quote{}, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if len(quotes) == 0 || quotes[0].Quote == "" {
		return Quote{}, fmt.Errorf("quote response was empty")
	}

	return quotes[0], nil
}
