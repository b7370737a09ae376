package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/internal/domain/service"
	pkghttp "github.com/carmandale/SPY-tracker-sub000/pkg/http"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// Client implements service.MarketData against the provider's REST API.
// A rate limiter guards the provider's quota; transient failures retry
// with exponential backoff before surfacing ErrProviderUnavailable.
type Client struct {
	baseURL  string
	apiKey   string
	symbol   string
	http     *pkghttp.Client
	limiter  *rate.Limiter
	retryMax int
	stream   *QuoteStream
	log      *logger.Logger
}

type Option func(*Client)

// WithStream attaches a live quote stream; when its last quote is fresh,
// LivePrice uses it instead of a REST round trip.
func WithStream(s *QuoteStream) Option {
	return func(c *Client) {
		c.stream = s
	}
}

func WithHTTPClient(h *pkghttp.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

func New(baseURL, apiKey, symbol string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		symbol:   symbol,
		http:     pkghttp.NewClient(pkghttp.WithTimeout(10 * time.Second)),
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		retryMax: 3,
		log:      log.With("marketdata"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ service.MarketData = (*Client)(nil)

type checkpointResponse struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"`
	Price  *float64 `json:"price"`
}

func (c *Client) OfficialCheckpointPrice(ctx context.Context, date models.Date, cp models.Checkpoint) (float64, error) {
	var resp checkpointResponse
	err := c.get(ctx, "/v1/checkpoint", map[string]string{
		"symbol":     c.symbol,
		"date":       date.String(),
		"checkpoint": string(cp),
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Price == nil || *resp.Price <= 0 {
		return 0, fmt.Errorf("no official price for %s %s: %w", date, cp, models.ErrNotFound)
	}
	return *resp.Price, nil
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	At     int64   `json:"at"` // unix ms
}

func (c *Client) LivePrice(ctx context.Context) (float64, error) {
	if c.stream != nil {
		if price, ok := c.stream.LatestQuote(); ok {
			return price, nil
		}
	}

	var resp quoteResponse
	if err := c.get(ctx, "/v1/quote", map[string]string{"symbol": c.symbol}, &resp); err != nil {
		return 0, err
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("no live quote for %s: %w", c.symbol, models.ErrNotFound)
	}
	return resp.Price, nil
}

type historyResponse struct {
	Symbol string `json:"symbol"`
	Bars   []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"bars"`
}

func (c *Client) RecentHistory(ctx context.Context, days int) ([]models.DailyBar, error) {
	var resp historyResponse
	err := c.get(ctx, "/v1/history", map[string]string{
		"symbol": c.symbol,
		"days":   fmt.Sprintf("%d", days),
	}, &resp)
	if err != nil {
		return nil, err
	}

	bars := make([]models.DailyBar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		date, err := models.ParseDate(b.Date)
		if err != nil {
			continue
		}
		bars = append(bars, models.DailyBar{
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no history for %s: %w", c.symbol, models.ErrNotFound)
	}
	return bars, nil
}

// get performs one rate-limited, retried GET. 404 maps to ErrNotFound and
// is not retried; other failures exhaust the backoff budget first.
func (c *Client) get(ctx context.Context, path string, params map[string]string, dest interface{}) error {
	opts := &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
		Headers:     map[string]string{"Authorization": "Bearer " + c.apiKey},
	}

	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.http.SendAndParse(ctx, opts, dest)
		if err == nil {
			return nil
		}

		var se *pkghttp.StatusError
		if errors.As(err, &se) {
			if se.Status == http.StatusNotFound {
				return backoff.Permanent(fmt.Errorf("%s: %w", path, models.ErrNotFound))
			}
			if se.Status >= 400 && se.Status < 500 {
				return backoff.Permanent(fmt.Errorf("%s: %v: %w", path, err, models.ErrProviderUnavailable))
			}
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retryMax)), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrProviderUnavailable) {
			return err
		}
		c.log.Warn("provider unreachable",
			logger.String("path", path),
			logger.Error(err))
		return fmt.Errorf("%s: %v: %w", path, err, models.ErrProviderUnavailable)
	}
	return nil
}
