package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// EndpointOffer is the metadata name of the quoting endpoint whose rate
// limit drives the polling interval.
const EndpointOffer = "offer"

// Credential is an API key pair. The zero-th credential of a rotation is the
// primary; every other one is a polling-only helper.
type Credential struct {
	Name   string
	Key    string
	Secret string
}

// Exchange is one authenticated session against the spot market.
type Exchange interface {
	Balance(ctx context.Context) (Balances, error)
	Meta(ctx context.Context) (Meta, error)
	Offer(ctx context.Context, amount decimal.Decimal, quoteCurrency bool, side OrderSide) (Offer, error)
	ConfirmOffer(ctx context.Context, offerID string) error
	Trades(ctx context.Context, side OrderSide) ([]ExecutedTrade, error)
}
