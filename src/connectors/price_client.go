// REST PRICE FEED CLIENT
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// ErrNoPrice is returned when the feed has no usable quote for a symbol.
var ErrNoPrice = errors.New("no price available")

type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// PriceClient reads last-trade prices from a public ticker endpoint.
type PriceClient struct {
	baseURL   string
	tickerURI string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewPriceClient(cfg Config) *PriceClient {
	retryCount := defaultRetryAttempts - 1

	baseURL := cfg.PriceBaseURL
	if baseURL == "" {
		baseURL = "https://api.binance.com"
		logger.Warnf("No price base URL provided, using default: %s", baseURL)
	}
	tickerURI := cfg.PriceTickerURI
	if tickerURI == "" {
		tickerURI = "/api/v3/ticker/price"
	}
	timeout := cfg.PriceTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &PriceClient{
		baseURL:   baseURL,
		tickerURI: tickerURI,
		http:      httpClient,
	}
}

// CurrentPrice returns the last traded price of symbol.
func (c *PriceClient) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, errors.New("symbol is required")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get(c.tickerURI)
	if err != nil {
		return decimal.Zero, err
	}

	if resp.StatusCode() != 200 {
		return decimal.Zero, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var ticker tickerResponse
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return decimal.Zero, err
	}
	if ticker.Price == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", ticker.Price, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s quoted at %s", ErrNoPrice, symbol, price)
	}

	logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"price":  price.String(),
	}).Debug("Fetched ticker price")

	return price, nil
}
