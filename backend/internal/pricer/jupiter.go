// Package pricer quotes token prices in SOL from the Jupiter price API.
package pricer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/user/papertrade/backend/internal/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL        = "https://lite-api.jup.ag/price/v2"
	DefaultSettlementMint = "So11111111111111111111111111111111111111112" // Wrapped SOL
	DefaultTimeout        = 5 * time.Second
	DefaultRateLimit      = 10 // Requests per second
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL        string
	SettlementMint string
	Timeout        time.Duration
	RateLimit      int
}

// Client is the price oracle. It is safe for concurrent use.
type Client struct {
	http           *resty.Client
	settlementMint string
	timeout        time.Duration
	limiter        *rate.Limiter
	log            *logrus.Entry
}

type priceEntry struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Price *string `json:"price"`
}

type priceResponse struct {
	Data map[string]*priceEntry `json:"data"`
}

// New creates a Jupiter price client.
func New(cfg Config, log *logrus.Entry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SettlementMint == "" {
		cfg.SettlementMint = DefaultSettlementMint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	// No retries: a failed quote fails the trade and the caller decides whether to retry.
	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:           httpClient,
		settlementMint: cfg.SettlementMint,
		timeout:        cfg.Timeout,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		log:            log,
	}
}

// Quote returns the price of one unit of assetID in SOL. Every failure, including a
// timeout, is reported as models.ErrPriceUnavailable.
func (c *Client) Quote(ctx context.Context, assetID string) (decimal.Decimal, error) {
	if assetID == "" {
		return decimal.Zero, errors.Wrap(models.ErrInvalidRequest, "asset id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.log.WithField("asset", assetID).Warnf("Price request not sent, rate limiter: %v", err)
		return decimal.Zero, errors.Wrapf(models.ErrPriceUnavailable, "rate limited: %v", err)
	}

	var out priceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", assetID).
		SetQueryParam("vsToken", c.settlementMint).
		SetResult(&out).
		Get("")
	if err != nil {
		c.log.WithFields(logrus.Fields{"asset": assetID, "failure": "transport"}).Warnf("Price request failed: %v", err)
		return decimal.Zero, errors.Wrapf(models.ErrPriceUnavailable, "request failed: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.log.WithFields(logrus.Fields{"asset": assetID, "failure": "upstream", "status": resp.StatusCode()}).
			Warnf("Price API returned %s", resp.Status())
		return decimal.Zero, errors.Wrapf(models.ErrPriceUnavailable, "upstream status %d", resp.StatusCode())
	}

	entry := out.Data[assetID]
	if entry == nil || entry.Price == nil {
		c.log.WithFields(logrus.Fields{"asset": assetID, "failure": "not_found"}).Info("No price for asset")
		return decimal.Zero, errors.Wrapf(models.ErrPriceUnavailable, "no quote for %s", assetID)
	}
	price, err := decimal.NewFromString(*entry.Price)
	if err != nil || !price.IsPositive() {
		c.log.WithFields(logrus.Fields{"asset": assetID, "failure": "malformed", "price": *entry.Price}).Warn("Unusable price from API")
		return decimal.Zero, errors.Wrapf(models.ErrPriceUnavailable, "malformed price %q for %s", *entry.Price, assetID)
	}
	return price, nil
}
