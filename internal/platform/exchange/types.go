package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

type balanceEntry struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
}

type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type rateLimitEntry struct {
	Endpoint    string `json:"endpoint"`
	WindowMs    int64  `json:"window_ms"`
	MaxRequests int64  `json:"max_requests"`
}

type metaResponse struct {
	Market     string           `json:"market"`
	BaseAsset  string           `json:"base_asset"`
	QuoteAsset string           `json:"quote_asset"`
	RateLimits []rateLimitEntry `json:"rate_limits"`
}

type offerRequest struct {
	Market        string          `json:"market"`
	Side          string          `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	QuoteCurrency bool            `json:"quote_currency"`
}

type offerResponse struct {
	ID            string          `json:"id"`
	Side          string          `json:"side"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	QuoteCurrency bool            `json:"quote_currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

type confirmResponse struct {
	OfferID string `json:"offer_id"`
	Status  string `json:"status"`
}

type tradeEntry struct {
	ID         string          `json:"id"`
	OfferID    string          `json:"offer_id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	ExecutedAt time.Time       `json:"executed_at"`
}

type tradesResponse struct {
	Trades []tradeEntry `json:"trades"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
