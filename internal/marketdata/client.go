package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"nova-trader/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.binance.com/api/v3"

// Bar is a single OHLCV candle. Series handed to the strategy are ascending
// by timestamp with no duplicates; gaps are allowed.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ClientInterface defines the interface for the market data client.
type ClientInterface interface {
	GetServerTime() (int64, error)
	GetBars(symbol, interval string, limit int) ([]Bar, error)
	GetTickerPrice(symbol string) (float64, error)
}

// Client is a REST client for an exchange-style market data API.
// It implements ClientInterface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new market data client.
func NewClient(cfg *config.Market, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().SetBaseURL(baseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetServerTime fetches the current server time.
// This is a good endpoint to test connectivity.
func (c *Client) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// GetBars fetches up to limit closed candles for a symbol, ascending by open time.
// The kline payload is a JSON array per candle:
// [openTime, open, high, low, close, volume, closeTime, ...] with prices as strings.
func (c *Client) GetBars(symbol, interval string, limit int) ([]Bar, error) {
	var raw [][]any

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/klines", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}

	result := resp.Result().(*[][]any)
	bars := make([]Bar, 0, len(*result))
	for _, k := range *result {
		bar, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("failed to parse kline for %s: %w", symbol, err)
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

func parseKline(k []any) (Bar, error) {
	if len(k) < 6 {
		return Bar{}, fmt.Errorf("kline has %d fields, want at least 6", len(k))
	}

	openTime, ok := k[0].(float64) // JSON numbers decode as float64
	if !ok {
		return Bar{}, fmt.Errorf("kline open time is %T, want number", k[0])
	}

	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		s, ok := k[i].(string)
		if !ok {
			return Bar{}, fmt.Errorf("kline field %d is %T, want string", i, k[i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		fields[i-1] = v
	}

	return Bar{
		Timestamp: time.UnixMilli(int64(openTime)).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice fetches the latest price for a single symbol.
func (c *Client) GetTickerPrice(symbol string) (float64, error) {
	var ticker TickerPrice

	req := c.client.R().
		SetResult(&ticker).
		SetQueryParam("symbol", symbol).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/ticker/price", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	result := resp.Result().(*TickerPrice)
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ticker price %q for %s: %w", result.Price, symbol, err)
	}

	return price, nil
}
