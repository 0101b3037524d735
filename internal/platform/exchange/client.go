// Package exchange is the signed REST client for the spot market the bot
// trades on. One Client holds one credential.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/crypto"
	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// confirmedStatus is the only confirmation status that means the offer settled.
const confirmedStatus = "confirmed"

// Client implements domain.Exchange over HTTPS.
type Client struct {
	baseURL    string
	market     string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

// NewClient creates a client for market (e.g. "BTC-EUR") authenticated with
// cred.
func NewClient(baseURL, market string, cred domain.Credential, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		market:     market,
		auth:       &crypto.HMACAuth{Key: cred.Key, Secret: cred.Secret},
		httpClient: &http.Client{Timeout: timeout},
	}
}

var _ domain.Exchange = (*Client)(nil)

// Balance returns the available balance per asset.
func (c *Client) Balance(ctx context.Context) (domain.Balances, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/v1/balances", nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: balance: %w", err)
	}
	var resp balancesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode balance: %w", err)
	}
	out := make(domain.Balances, len(resp.Balances))
	for _, b := range resp.Balances {
		out[strings.ToUpper(b.Asset)] = b.Available
	}
	return out, nil
}

// Meta returns the market symbols and advertised rate limits.
func (c *Client) Meta(ctx context.Context) (domain.Meta, error) {
	path := "/v1/markets/" + url.PathEscape(c.market) + "/meta"
	body, err := c.doSignedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.Meta{}, fmt.Errorf("exchange: meta: %w", err)
	}
	var resp metaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Meta{}, fmt.Errorf("exchange: decode meta: %w", err)
	}
	meta := domain.Meta{
		BaseAsset:  strings.ToUpper(resp.BaseAsset),
		QuoteAsset: strings.ToUpper(resp.QuoteAsset),
		RateLimits: make([]domain.RateLimit, 0, len(resp.RateLimits)),
	}
	for _, rl := range resp.RateLimits {
		meta.RateLimits = append(meta.RateLimits, domain.RateLimit{
			Endpoint:    rl.Endpoint,
			WindowMs:    rl.WindowMs,
			MaxRequests: rl.MaxRequests,
		})
	}
	return meta, nil
}

// Offer requests a quote for amount on side.
func (c *Client) Offer(ctx context.Context, amount decimal.Decimal, quoteCurrency bool, side domain.OrderSide) (domain.Offer, error) {
	if !side.Valid() {
		return domain.Offer{}, fmt.Errorf("exchange: offer: unknown side %q", side)
	}
	req := offerRequest{
		Market:        c.market,
		Side:          string(side),
		Amount:        amount,
		QuoteCurrency: quoteCurrency,
	}
	body, err := c.doSignedRequest(ctx, http.MethodPost, "/v1/offers", req)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("exchange: %s offer: %w", side, err)
	}
	var resp offerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Offer{}, fmt.Errorf("exchange: decode offer: %w", err)
	}
	if resp.ID == "" {
		return domain.Offer{}, errors.New("exchange: offer response without id")
	}
	return domain.Offer{
		ID:            resp.ID,
		Side:          domain.OrderSide(resp.Side),
		Price:         resp.Price,
		Amount:        resp.Amount,
		QuoteCurrency: resp.QuoteCurrency,
		ExpiresAt:     resp.ExpiresAt,
	}, nil
}

// ConfirmOffer accepts a previously quoted offer.
func (c *Client) ConfirmOffer(ctx context.Context, offerID string) error {
	path := "/v1/offers/" + url.PathEscape(offerID) + "/confirm"
	body, err := c.doSignedRequest(ctx, http.MethodPost, path, struct{}{})
	if err != nil {
		return fmt.Errorf("exchange: confirm %s: %w", offerID, err)
	}
	var resp confirmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("exchange: decode confirm: %w", err)
	}
	if resp.Status != confirmedStatus {
		return fmt.Errorf("exchange: confirm %s: status %q", offerID, resp.Status)
	}
	return nil
}

// Trades returns the recent trade history for side.
func (c *Client) Trades(ctx context.Context, side domain.OrderSide) ([]domain.ExecutedTrade, error) {
	params := url.Values{}
	params.Set("market", c.market)
	params.Set("side", string(side))
	body, err := c.doSignedRequest(ctx, http.MethodGet, "/v1/trades?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: %s trades: %w", side, err)
	}
	var resp tradesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("exchange: decode trades: %w", err)
	}
	out := make([]domain.ExecutedTrade, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		out = append(out, domain.ExecutedTrade{
			ID:         t.ID,
			OfferID:    t.OfferID,
			Side:       domain.OrderSide(t.Side),
			Price:      t.Price,
			Amount:     t.Amount,
			ExecutedAt: t.ExecutedAt,
		})
	}
	return out, nil
}

// doSignedRequest builds, signs, sends and reads one request.
func (c *Client) doSignedRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Headers(method, path, string(payload)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx responses to domain errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
