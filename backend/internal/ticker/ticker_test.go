package ticker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle map[string]decimal.Decimal

func (s stubOracle) Quote(_ context.Context, assetID string) (decimal.Decimal, error) {
	if p, ok := s[assetID]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("no price")
}

func TestPoll_PublishesWatchedAssets(t *testing.T) {
	feed := NewFeed(stubOracle{"a": decimal.NewFromInt(2)}, time.Hour, nil)
	feed.Watch("a")
	feed.Watch("a")
	feed.Watch("missing")

	feed.Poll(context.Background())

	select {
	case u := <-feed.Updates():
		assert.Equal(t, "a", u.AssetID)
		assert.True(t, u.Price.Equal(decimal.NewFromInt(2)))
	default:
		t.Fatal("expected an update")
	}
	select {
	case u := <-feed.Updates():
		t.Fatalf("unexpected update %+v", u)
	default:
	}

	latest := feed.Latest()
	require.Contains(t, latest, "a")
	assert.NotContains(t, latest, "missing")
}

func TestRun_ClosesUpdatesOnCancel(t *testing.T) {
	feed := NewFeed(stubOracle{"a": decimal.NewFromInt(1)}, 10*time.Millisecond, nil)
	feed.Watch("a")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	select {
	case <-feed.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no update from running feed")
	}
	cancel()
	<-done

	for range feed.Updates() {
		// drain buffered updates until closed
	}
}
