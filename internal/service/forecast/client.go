package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/internal/domain/service"
	pkghttp "github.com/carmandale/SPY-tracker-sub000/pkg/http"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// Client implements service.Forecaster against the forecasting service's
// HTTP API. The response is untrusted: it is validated field by field
// before anything is returned, and a malformed payload yields
// models.ErrValidation so the caller records a day with no band rather
// than a fabricated one.
type Client struct {
	baseURL string
	http    *pkghttp.Client
	log     *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *pkghttp.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    pkghttp.NewClient(pkghttp.WithTimeout(30 * time.Second)),
		log:     log.With("forecast"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ service.Forecaster = (*Client)(nil)

func (c *Client) Forecast(ctx context.Context, req *models.ForecastRequest) (*models.DayForecast, error) {
	var resp models.DayForecast
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    c.baseURL + "/v1/forecast",
		Body:   req,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %v: %w", err, models.ErrProviderUnavailable)
	}

	if err := c.validateForecast(req.Date, &resp); err != nil {
		c.log.Warn("forecast payload rejected",
			logger.String("date", req.Date.String()),
			logger.Error(err))
		return nil, err
	}
	return &resp, nil
}

// validateForecast enforces the payload contract: the echoed date must
// match, and exactly one well-formed entry must exist per forecast
// checkpoint.
func (c *Client) validateForecast(date models.Date, f *models.DayForecast) error {
	if f.Date != date {
		return fmt.Errorf("forecast date %q does not match requested %q: %w",
			f.Date, date, models.ErrValidation)
	}
	if err := pkghttp.Validate(f); err != nil {
		return fmt.Errorf("forecast payload: %v: %w", err, models.ErrValidation)
	}

	seen := make(map[string]bool, len(f.Checkpoints))
	for _, cp := range f.Checkpoints {
		if seen[cp.Checkpoint] {
			return fmt.Errorf("duplicate forecast checkpoint %q: %w", cp.Checkpoint, models.ErrValidation)
		}
		seen[cp.Checkpoint] = true
	}
	for _, cp := range models.ForecastCheckpoints() {
		if !seen[string(cp)] {
			return fmt.Errorf("missing forecast checkpoint %q: %w", cp, models.ErrValidation)
		}
	}
	return nil
}
