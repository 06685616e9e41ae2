// Package ticker polls the price oracle for every asset that has been traded and
// publishes the quotes for live subscribers.
package ticker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is how often watched assets are re-quoted.
const DefaultInterval = 15 * time.Second

// PriceUpdate represents a single price update for an asset.
type PriceUpdate struct {
	AssetID string          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"` // SOL per token
	Ts      int64           `json:"ts"`    // Unix timestamp milliseconds
}

// Oracle quotes one asset.
type Oracle interface {
	Quote(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// Feed tracks watched assets and their latest quotes.
type Feed struct {
	oracle   Oracle
	interval time.Duration
	log      *logrus.Entry

	mu      sync.RWMutex
	watched map[string]struct{}
	latest  map[string]PriceUpdate

	updates chan PriceUpdate
}

// NewFeed creates a feed. Call Run to start polling.
func NewFeed(oracle Oracle, interval time.Duration, log *logrus.Entry) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Feed{
		oracle:   oracle,
		interval: interval,
		log:      log,
		watched:  make(map[string]struct{}),
		latest:   make(map[string]PriceUpdate),
		updates:  make(chan PriceUpdate, 100),
	}
}

// Watch adds an asset to the polling set.
func (f *Feed) Watch(assetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watched[assetID]; !ok {
		f.watched[assetID] = struct{}{}
		f.log.WithField("asset", assetID).Debug("Watching asset")
	}
}

// Updates delivers every successful quote. Updates are dropped when nobody keeps up.
func (f *Feed) Updates() <-chan PriceUpdate {
	return f.updates
}

// Latest returns a copy of the most recent quote per asset.
func (f *Feed) Latest() map[string]PriceUpdate {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]PriceUpdate, len(f.latest))
	for k, v := range f.latest {
		out[k] = v
	}
	return out
}

func (f *Feed) assets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	assets := make([]string, 0, len(f.watched))
	for a := range f.watched {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}

// Run polls until ctx is done, then closes the updates channel.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	defer close(f.updates)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll quotes every watched asset once.
func (f *Feed) Poll(ctx context.Context) {
	for _, asset := range f.assets() {
		price, err := f.oracle.Quote(ctx, asset)
		if err != nil {
			f.log.WithField("asset", asset).Debugf("Feed quote failed: %v", err)
			continue
		}
		update := PriceUpdate{AssetID: asset, Price: price, Ts: time.Now().UnixMilli()}

		f.mu.Lock()
		f.latest[asset] = update
		f.mu.Unlock()

		// Non-blocking send so a slow consumer never stalls polling
		select {
		case f.updates <- update:
		default:
			f.log.WithField("asset", asset).Warn("Price update channel full, dropping update")
		}
	}
}
