package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/papertrade/backend/internal/auth"
	"github.com/user/papertrade/backend/internal/memstore"
	"github.com/user/papertrade/backend/internal/models"
)

const (
	coin1 = "EqxkbawiqXvqbHbPPQK14o9Mn2ZHdujjq9xuS3V4pump"
	coin2 = "J8dRS5coBftCrhVcbH93cZq748jTBVp4ErtWgbnbpump"
)

type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
}

func (f *fakeOracle) Quote(ctx context.Context, assetID string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	price, ok := f.prices[assetID]
	if !ok {
		return decimal.Zero, models.ErrPriceUnavailable
	}
	return price, nil
}

type recordingWatcher struct {
	mu     sync.Mutex
	assets []string
}

func (w *recordingWatcher) Watch(assetID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.assets = append(w.assets, assetID)
}

type fixture struct {
	engine  *Engine
	store   *memstore.Store
	oracle  *fakeOracle
	watcher *recordingWatcher
	token   string
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	sessions, err := auth.NewSessionStore(store, []byte("secret"))
	require.NoError(t, err)
	oracle := &fakeOracle{prices: map[string]decimal.Decimal{
		coin1: d("0.0002"),
		coin2: d("0.5"),
	}}
	watcher := &recordingWatcher{}
	engine := NewEngine(sessions, store, store, oracle, Config{}, WithWatcher(watcher))

	ctx := context.Background()
	_, err = engine.CreateAccount(ctx, "testtrader", "testpassword123")
	require.NoError(t, err)
	login, err := engine.Login(ctx, "testtrader", "testpassword123")
	require.NoError(t, err)

	return &fixture{engine: engine, store: store, oracle: oracle, watcher: watcher, token: login.Token}
}

func (f *fixture) portfolio(t *testing.T) *models.Portfolio {
	t.Helper()
	p, err := f.engine.Portfolio(context.Background(), f.token)
	require.NoError(t, err)
	return p
}

func TestCreateAccountAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateAccount(ctx, "testtrader", "again")
	assert.ErrorIs(t, err, models.ErrAccountConflict)

	_, err = f.engine.CreateAccount(ctx, "  ", "pw")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.engine.Login(ctx, "testtrader", "wrong")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.engine.Login(ctx, "nobody", "testpassword123")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(DefaultStartingBalance))
	assert.Empty(t, p.Tokens)
}

func TestBuy_ConcreteScenario(t *testing.T) {
	f := newFixture(t)
	price := d("0.0002")

	out, err := f.engine.Buy(context.Background(), f.token, TradeRequest{
		AssetID: coin1, Amount: d("0.5"), Slippage: ptr(d("2")), Fee: ptr(d("0.1")),
	})
	require.NoError(t, err)

	effective := price.Mul(d("1.02"))
	assert.True(t, out.EffectivePrice.Equal(effective))
	assert.True(t, out.FeeAmount.Equal(d("0.0005")))
	assert.True(t, out.AssetAmount.Equal(d("0.4995").Div(effective)))

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(d("99.5")), p.Balance.String())
	assert.True(t, p.Tokens[coin1].Equal(out.AssetAmount))
	assert.Equal(t, []string{coin1}, f.watcher.assets)
}

func TestBuyThenSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bought, err := f.engine.Buy(ctx, f.token, TradeRequest{AssetID: coin2, Amount: d("10")})
	require.NoError(t, err)

	half := bought.AssetAmount.Div(decimal.NewFromInt(2))
	sold, err := f.engine.Sell(ctx, f.token, TradeRequest{AssetID: coin2, Amount: half, Slippage: ptr(d("1.5")), Fee: ptr(d("0.2"))})
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, sold.Side)

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(d("90").Add(sold.SettlementAmount)))
	assert.True(t, p.Tokens[coin2].Equal(bought.AssetAmount.Sub(half)))
}

func TestSell_InsufficientHoldings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.token, TradeRequest{AssetID: coin2, Amount: d("1")})
	require.NoError(t, err)
	before := f.portfolio(t)

	_, err = f.engine.Sell(ctx, f.token, TradeRequest{AssetID: coin2, Amount: before.Tokens[coin2].Add(d("0.000001"))})
	assert.ErrorIs(t, err, models.ErrInsufficientHoldings)

	after := f.portfolio(t)
	assert.True(t, after.Balance.Equal(before.Balance))
	assert.True(t, after.Tokens[coin2].Equal(before.Tokens[coin2]))
}

func TestBuy_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Buy(context.Background(), f.token, TradeRequest{AssetID: coin1, Amount: d("100.01")})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(DefaultStartingBalance))
	assert.Empty(t, p.Tokens)
	assert.Empty(t, f.watcher.assets)
}

func TestBuy_TwoConcurrentOverBalance(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Buy(context.Background(), f.token, TradeRequest{AssetID: coin1, Amount: d("60")})
		}(i)
	}
	wg.Wait()

	successes, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, models.ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)
	assert.True(t, f.portfolio(t).Balance.Equal(d("40")))
}

func TestBuy_ConcurrentNoLostUpdates(t *testing.T) {
	f := newFixture(t)
	const n = 40

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := decimal.Zero
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.Buy(context.Background(), f.token, TradeRequest{AssetID: coin2, Amount: d("0.5")})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total = total.Add(out.AssetAmount)
			mu.Unlock()
		}()
	}
	wg.Wait()

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(d("80")), p.Balance.String())
	assert.True(t, p.Tokens[coin2].Equal(total))
}

func TestTrade_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		token string
		req   TradeRequest
		want  error
	}{
		{"bad token", "nope", TradeRequest{AssetID: coin1, Amount: d("1")}, models.ErrUnauthorized},
		{"empty asset", f.token, TradeRequest{AssetID: " ", Amount: d("1")}, models.ErrInvalidRequest},
		{"zero amount", f.token, TradeRequest{AssetID: coin1, Amount: decimal.Zero}, models.ErrInvalidRequest},
		{"negative amount", f.token, TradeRequest{AssetID: coin1, Amount: d("-1")}, models.ErrInvalidRequest},
		{"negative fee", f.token, TradeRequest{AssetID: coin1, Amount: d("1"), Fee: ptr(d("-1"))}, models.ErrInvalidRequest},
		{"unknown asset", f.token, TradeRequest{AssetID: "unknown", Amount: d("1")}, models.ErrPriceUnavailable},
		{"fee eats everything", f.token, TradeRequest{AssetID: coin1, Amount: d("1"), Fee: ptr(d("100"))}, models.ErrInvalidOutcome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Buy(ctx, tc.token, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.engine.Sell(ctx, f.token, TradeRequest{AssetID: coin1, Amount: d("1"), Slippage: ptr(d("100"))})
	assert.ErrorIs(t, err, models.ErrInvalidOutcome)

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(DefaultStartingBalance))
	assert.Empty(t, p.Tokens)
}

func TestTrade_UnauthorizedSkipsQuote(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Buy(context.Background(), "", TradeRequest{AssetID: coin1, Amount: d("1")})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Zero(t, f.oracle.calls)
}

func TestBuy_CancelledContextDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Buy(ctx, f.token, TradeRequest{AssetID: coin1, Amount: d("1")})
	assert.ErrorIs(t, err, models.ErrPriceUnavailable)
	assert.True(t, f.portfolio(t).Balance.Equal(DefaultStartingBalance))
}

func TestResetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Buy(ctx, f.token, TradeRequest{AssetID: coin1, Amount: d("5")})
	require.NoError(t, err)

	reset, err := f.engine.Reset(ctx, f.token)
	require.NoError(t, err)
	assert.True(t, reset.Balance.Equal(DefaultStartingBalance))
	assert.Empty(t, reset.Tokens)

	p := f.portfolio(t)
	assert.True(t, p.Balance.Equal(DefaultStartingBalance))
	assert.Empty(t, p.Tokens)
}

func TestSetBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bal, err := f.engine.SetBalance(ctx, f.token, d("250"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("250")))
	assert.True(t, f.portfolio(t).Balance.Equal(d("250")))

	_, err = f.engine.SetBalance(ctx, f.token, d("-1"))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	_, err = f.engine.SetBalance(ctx, "bogus", d("1"))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestCheckSession_Expiry(t *testing.T) {
	store := memstore.New()
	now := time.Unix(1_760_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	sessions, err := auth.NewSessionStore(store, []byte("secret"), auth.WithClock(clock), auth.WithTTL(time.Hour))
	require.NoError(t, err)
	engine := NewEngine(sessions, store, store, &fakeOracle{}, Config{})

	ctx := context.Background()
	_, err = engine.CreateAccount(ctx, "u", "p")
	require.NoError(t, err)
	login, err := engine.Login(ctx, "u", "p")
	require.NoError(t, err)

	assert.True(t, engine.CheckSession(ctx, login.Token))
	assert.False(t, engine.CheckSession(ctx, ""))

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()
	assert.False(t, engine.CheckSession(ctx, login.Token))
	_, err = engine.Portfolio(ctx, login.Token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
