package prompt

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raceloop/typerace/go/clients/quote_client"
	"github.com/raceloop/typerace/go/internal/race"
)

// QuoteFetcher is what the provider needs from the remote quote API.
type QuoteFetcher interface {
	RandomQuote(ctx context.Context) (quote_client.Quote, error)
}

// DefaultFetchTimeout bounds a whole prompt fetch, across however many
// quote requests it takes.
const DefaultFetchTimeout = 5 * time.Second

// maxQuoteRequests caps how many quotes a single fetch may stitch
// together before giving up on the remote API.
const maxQuoteRequests = 6

// Provider assembles prompt text of roughly the length a mode asks for.
// It never fails: any remote problem degrades to the local fallback
// corpus, so rooms always get a prompt.
type Provider struct {
	quotes  QuoteFetcher
	timeout time.Duration
}

// NewProvider creates a provider over the given quote source. A zero
// timeout means DefaultFetchTimeout.
func NewProvider(quotes QuoteFetcher, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Provider{quotes: quotes, timeout: timeout}
}

// Fetch returns prompt text for the mode, stitching quotes together until
// the target length is reached. On any failure the fallback corpus
// substitutes.
func (p *Provider) Fetch(ctx context.Context, mode race.Mode) string {
	target := mode.PromptLength()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var b strings.Builder
	for requests := 0; b.Len() < target; requests++ {
		if requests >= maxQuoteRequests {
			break
		}
		quote, err := p.quotes.RandomQuote(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("mode", string(mode)).
				Msg("quote fetch failed, using fallback prompt")
			return fallbackPrompt(target)
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quote.Prompt())
	}

	if b.Len() == 0 {
		return fallbackPrompt(target)
	}
	return b.String()
}

// fallbackPrompt stitches random local sentences up to roughly the target
// length.
func fallbackPrompt(target int) string {
	var b strings.Builder
	for b.Len() < target {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fallbackPrompts[rand.IntN(len(fallbackPrompts))])
	}
	return b.String()
}
