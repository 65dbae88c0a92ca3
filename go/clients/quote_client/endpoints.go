package quote_client

const (
	// Base URL
	BaseURL = "https://zenquotes.io"

	// API Endpoints
	RandomQuoteEndpoint = "/api/random"
)
