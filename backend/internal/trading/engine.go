// Package trading coordinates authentication, quoting, trade computation and ledger
// settlement for each request.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/user/papertrade/backend/internal/auth"
	"github.com/user/papertrade/backend/internal/ledger"
	"github.com/user/papertrade/backend/internal/models"
	"github.com/user/papertrade/backend/internal/trade"
)

// DefaultStartingBalance is the SOL balance of a new account and of a reset one.
var DefaultStartingBalance = decimal.NewFromInt(100)

// State is how far a trade got before it settled or was rejected.
type State string

const (
	StateReceived      State = "received"
	StateAuthenticated State = "authenticated"
	StateQuoted        State = "quoted"
	StateComputed      State = "computed"
	StateSettled       State = "settled"
)

// PriceOracle quotes the SOL price of one unit of an asset.
type PriceOracle interface {
	Quote(ctx context.Context, assetID string) (decimal.Decimal, error)
}

// Sessions issues and validates bearer tokens.
type Sessions interface {
	Issue(ctx context.Context, user *models.User) (string, time.Time, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
}

// UserRepository stores user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string, startingBalance decimal.Decimal) (*models.User, error)
	// GetUserByUsername returns nil, nil when the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Watcher is told about assets that have been traded.
type Watcher interface {
	Watch(assetID string)
}

// Config holds the engine's trading parameters.
type Config struct {
	StartingBalance decimal.Decimal
	// Defaults apply to requests that omit slippage or fee; nil means trade.DefaultParams.
	Defaults *trade.Params
}

// Engine is safe for concurrent use; all shared state lives in its collaborators.
type Engine struct {
	sessions Sessions
	users    UserRepository
	ledger   ledger.Ledger
	oracle   PriceOracle
	watcher  Watcher
	cfg      Config
	log      *logrus.Entry
}

// Option customizes an Engine.
type Option func(*Engine)

// WithWatcher registers traded assets with w.
func WithWatcher(w Watcher) Option {
	return func(e *Engine) { e.watcher = w }
}

// WithLogger sets the engine logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine wires an engine. Zero config values take the package defaults.
func NewEngine(sessions Sessions, users UserRepository, l ledger.Ledger, oracle PriceOracle, cfg Config, opts ...Option) *Engine {
	if cfg.StartingBalance.IsZero() {
		cfg.StartingBalance = DefaultStartingBalance
	}
	if cfg.Defaults == nil {
		defaults := trade.DefaultParams()
		cfg.Defaults = &defaults
	}
	e := &Engine{
		sessions: sessions,
		users:    users,
		ledger:   l,
		oracle:   oracle,
		cfg:      cfg,
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// CreateAccount registers a user with the starting balance and an empty portfolio.
func (e *Engine) CreateAccount(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password cannot be empty", models.ErrInvalidRequest)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := e.users.CreateUser(ctx, username, hash, e.cfg.StartingBalance)
	if err != nil {
		return nil, err
	}
	e.log.WithField("user_id", user.ID).Infof("Account created for %s", username)
	return user, nil
}

// Login checks credentials and opens a new session.
func (e *Engine) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := e.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("error finding user %s: %w", username, err)
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !auth.CheckPasswordHash(password, hash) || user == nil {
		return nil, models.ErrUnauthorized
	}

	token, expiresAt, err := e.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// CheckSession reports whether token currently authenticates.
func (e *Engine) CheckSession(ctx context.Context, token string) bool {
	_, err := e.sessions.Validate(ctx, token)
	if err != nil && !errors.Is(err, models.ErrUnauthorized) {
		e.log.Warnf("Session check failed: %v", err)
	}
	return err == nil
}

func (e *Engine) authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	session, err := e.sessions.Validate(ctx, token)
	if err != nil {
		if !errors.Is(err, models.ErrUnauthorized) {
			e.log.Errorf("Session lookup failed: %v", err)
		}
		return uuid.Nil, models.ErrUnauthorized
	}
	return session.UserID, nil
}

// TradeRequest is a validated buy or sell request. Amount is SOL for a buy and tokens
// for a sell. Nil Slippage or Fee take the engine defaults.
type TradeRequest struct {
	AssetID  string
	Amount   decimal.Decimal
	Slippage *decimal.Decimal
	Fee      *decimal.Decimal
}

func (e *Engine) params(req TradeRequest) (trade.Params, error) {
	p := *e.cfg.Defaults
	if req.Slippage != nil {
		p.SlippagePercent = *req.Slippage
	}
	if req.Fee != nil {
		p.FeePercent = *req.Fee
	}
	if p.SlippagePercent.IsNegative() || p.FeePercent.IsNegative() {
		return p, fmt.Errorf("%w: slippage and fee must not be negative", models.ErrInvalidRequest)
	}
	return p, nil
}

// Buy spends req.Amount SOL on req.AssetID.
func (e *Engine) Buy(ctx context.Context, token string, req TradeRequest) (*models.TradeOutcome, error) {
	return e.execute(ctx, token, models.SideBuy, req)
}

// Sell sells req.Amount tokens of req.AssetID.
func (e *Engine) Sell(ctx context.Context, token string, req TradeRequest) (*models.TradeOutcome, error) {
	return e.execute(ctx, token, models.SideSell, req)
}

func (e *Engine) execute(ctx context.Context, token string, side models.Side, req TradeRequest) (*models.TradeOutcome, error) {
	log := e.log.WithFields(logrus.Fields{"side": side, "asset": req.AssetID, "amount": req.Amount.String()})
	state := StateReceived
	reject := func(err error) (*models.TradeOutcome, error) {
		log.WithField("state", state).Infof("Trade rejected: %v", err)
		return nil, err
	}

	userID, err := e.authenticate(ctx, token)
	if err != nil {
		return reject(err)
	}
	state = StateAuthenticated
	log = log.WithField("user_id", userID)

	req.AssetID = strings.TrimSpace(req.AssetID)
	if req.AssetID == "" {
		return reject(fmt.Errorf("%w: token mint is required", models.ErrInvalidRequest))
	}
	if !req.Amount.IsPositive() {
		return reject(fmt.Errorf("%w: amount must be positive", models.ErrInvalidRequest))
	}
	params, err := e.params(req)
	if err != nil {
		return reject(err)
	}

	price, err := e.oracle.Quote(ctx, req.AssetID)
	if err != nil {
		log.WithField("state", state).Warnf("Quote failed: %v", err)
		if errors.Is(err, models.ErrInvalidRequest) {
			return reject(err)
		}
		return reject(fmt.Errorf("%w: %v", models.ErrPriceUnavailable, err))
	}
	state = StateQuoted

	var outcome models.TradeOutcome
	if side == models.SideBuy {
		outcome, err = trade.Buy(price, req.Amount, params)
	} else {
		outcome, err = trade.Sell(price, req.Amount, params)
	}
	if err != nil {
		return reject(err)
	}
	outcome.AssetID = req.AssetID
	if !outcome.AssetAmount.IsPositive() || !outcome.SettlementAmount.IsPositive() {
		return reject(fmt.Errorf("%w: slippage %s%% and fee %s%% leave nothing to settle",
			models.ErrInvalidOutcome, params.SlippagePercent, params.FeePercent))
	}
	state = StateComputed

	// Nothing has been written yet; a cancelled request stops here.
	if err := ctx.Err(); err != nil {
		return reject(fmt.Errorf("%w: %v", models.ErrPriceUnavailable, err))
	}

	err = e.ledger.Update(ctx, userID, func(acct ledger.Account) error {
		if side == models.SideBuy {
			if err := acct.Debit(ctx, outcome.SettlementAmount); err != nil {
				return err
			}
			return acct.AddHolding(ctx, outcome.AssetID, outcome.AssetAmount)
		}
		if err := acct.RemoveHolding(ctx, outcome.AssetID, outcome.AssetAmount); err != nil {
			return err
		}
		return acct.Credit(ctx, outcome.SettlementAmount)
	})
	if err != nil {
		return reject(err)
	}
	state = StateSettled

	log.WithFields(logrus.Fields{
		"state":      state,
		"price":      outcome.EffectivePrice.String(),
		"tokens":     outcome.AssetAmount.String(),
		"sol":        outcome.SettlementAmount.String(),
		"fee_amount": outcome.FeeAmount.String(),
	}).Info("Trade settled")

	if e.watcher != nil {
		e.watcher.Watch(outcome.AssetID)
	}
	return &outcome, nil
}

// Portfolio returns the caller's balance and holdings.
func (e *Engine) Portfolio(ctx context.Context, token string) (*models.Portfolio, error) {
	userID, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.ledger.Snapshot(ctx, userID)
}

// Reset clears the caller's holdings and restores the starting balance, then returns
// the resulting portfolio.
func (e *Engine) Reset(ctx context.Context, token string) (*models.Portfolio, error) {
	userID, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	err = e.ledger.Update(ctx, userID, func(acct ledger.Account) error {
		if err := acct.ClearHoldings(ctx); err != nil {
			return err
		}
		return acct.SetBalance(ctx, e.cfg.StartingBalance)
	})
	if err != nil {
		return nil, err
	}
	e.log.WithField("user_id", userID).Info("Portfolio reset")
	return e.ledger.Snapshot(ctx, userID)
}

// SetBalance overwrites the caller's SOL balance.
func (e *Engine) SetBalance(ctx context.Context, token string, amount decimal.Decimal) (decimal.Decimal, error) {
	userID, err := e.authenticate(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance must not be negative", models.ErrInvalidRequest)
	}
	err = e.ledger.Update(ctx, userID, func(acct ledger.Account) error {
		return acct.SetBalance(ctx, amount)
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.log.WithField("user_id", userID).Infof("Balance set to %s", amount)
	return amount, nil
}
