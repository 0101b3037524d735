package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is a time-bounded quote for one side of a fixed amount. It is
// confirmed by reference to its ID.
type Offer struct {
	ID            string
	Side          OrderSide
	Price         decimal.Decimal // effective price per unit of the base asset
	Amount        decimal.Decimal
	QuoteCurrency bool // Amount is denominated in the quote asset
	ExpiresAt     time.Time
}

// ExecutedTrade is one entry of the exchange's trade history.
type ExecutedTrade struct {
	ID         string
	OfferID    string
	Side       OrderSide
	Price      decimal.Decimal
	Amount     decimal.Decimal
	ExecutedAt time.Time
}

// Balances maps an asset symbol to the available quantity.
type Balances map[string]decimal.Decimal

// Available returns the balance for symbol, or zero when absent.
func (b Balances) Available(symbol string) decimal.Decimal {
	if v, ok := b[symbol]; ok {
		return v
	}
	return decimal.Zero
}

// RateLimit is the advertised request budget of one endpoint: at most
// MaxRequests calls per WindowMs milliseconds.
type RateLimit struct {
	Endpoint    string
	WindowMs    int64
	MaxRequests int64
}

// Meta is the subset of the exchange metadata the bot depends on.
type Meta struct {
	BaseAsset  string
	QuoteAsset string
	RateLimits []RateLimit
}

// Limit returns the rate limit for the named endpoint.
func (m Meta) Limit(endpoint string) (RateLimit, bool) {
	for _, rl := range m.RateLimits {
		if rl.Endpoint == endpoint {
			return rl, true
		}
	}
	return RateLimit{}, false
}
