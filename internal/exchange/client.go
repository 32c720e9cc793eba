// Package exchange implements the CLOB REST and WebSocket clients.
//
// The REST client (Client) covers the calls the engines depend on:
//   - GetMarket:             GET /markets/{condition_id}
//   - GetOrderBook:          GET /book — L2 book for a token
//   - PlaceOrder:            POST /order — a single signed order
//   - GetBalance:            GET /balance-allowance — collateral balance
//   - DiscoverSeriesMarkets: Gamma events lookup for recurring series
//   - DeriveAPIKey:          GET /auth/derive-api-key — bootstrap L2 creds
//
// Every request is rate-limited via per-category TokenBuckets, automatically
// retried on 5xx errors, and authenticated with L2 HMAC headers where the
// endpoint requires it.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/pkg/types"
)

// ErrMarketNotFound is returned by GetMarket for unknown condition IDs.
var ErrMarketNotFound = errors.New("market not found")

// Client is the CLOB REST API client.
// It wraps resty HTTP clients with rate limiting, retry, and auth.
type Client struct {
	http   *resty.Client // CLOB API
	gamma  *resty.Client // Gamma discovery API
	auth   *Auth         // nil in paper mode; required for orders and balances
	rl     *RateLimiter
	dryRun bool // when true, mutating methods return fake success without HTTP calls
	logger *slog.Logger
}

// NewClient creates a REST client. auth may be nil for read-only use
// (paper trading, backtest discovery, tick collection).
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	newHTTP := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(3).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return r.StatusCode() >= 500
			}).
			SetHeader("Content-Type", "application/json")
	}

	return &Client{
		http:   newHTTP(cfg.API.CLOBBaseURL),
		gamma:  newHTTP(cfg.API.GammaBaseURL),
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "exchange"),
	}
}

// GetMarket fetches a market's metadata by condition ID.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (types.Market, error) {
	if err := c.rl.Data.Wait(ctx); err != nil {
		return types.Market{}, err
	}

	var result types.Market
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/markets/" + conditionID)
	if err != nil {
		return types.Market{}, fmt.Errorf("get market %s: %w", conditionID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return types.Market{}, fmt.Errorf("get market %s: %w", conditionID, ErrMarketNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Market{}, fmt.Errorf("get market %s: status %d: %s", conditionID, resp.StatusCode(), resp.String())
	}
	return result, nil
}

// bookLevel and bookResponse are the wire shape of GET /book.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type bookResponse struct {
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
}

// GetOrderBook fetches the order book for a single token. A market with no
// resting liquidity yields an empty book, not an error.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (types.OrderBook, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.OrderBook{}, err
	}

	var result bookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return types.NewOrderBook(tokenID, nil, nil), nil
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderBook{}, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}

	bids, err := parseLevels(result.Bids)
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("get book %s: %w", tokenID, err)
	}
	asks, err := parseLevels(result.Asks)
	if err != nil {
		return types.OrderBook{}, fmt.Errorf("get book %s: %w", tokenID, err)
	}
	return types.NewOrderBook(tokenID, bids, asks), nil
}

func parseLevels(raw []bookLevel) ([]types.PriceLevel, error) {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := types.SafeDecimal(lvl.Price)
		if err != nil {
			return nil, err
		}
		size, err := types.SafeDecimal(lvl.Size)
		if err != nil {
			return nil, err
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// gammaMarket is the slice of the Gamma events payload discovery needs.
type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	EndDate     string `json:"endDate"`
	Closed      bool   `json:"closed"`
}

type gammaEvent struct {
	Markets []gammaMarket `json:"markets"`
}

// DiscoverSeriesMarkets resolves recurring series slugs to their currently
// active market (and, with includeNext, the following window's market too).
// Transport errors surface to the caller; an empty result is valid.
func (c *Client) DiscoverSeriesMarkets(ctx context.Context, slugs []string, includeNext bool) ([]types.SeriesMarket, error) {
	var out []types.SeriesMarket
	for _, slug := range slugs {
		if err := c.rl.Data.Wait(ctx); err != nil {
			return nil, err
		}

		var events []gammaEvent
		resp, err := c.gamma.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"series_slug": slug,
				"closed":      "false",
				"active":      "true",
			}).
			SetResult(&events).
			Get("/events")
		if err != nil {
			return nil, fmt.Errorf("discover series %s: %w", slug, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("discover series %s: status %d: %s", slug, resp.StatusCode(), resp.String())
		}

		var open []gammaMarket
		for _, ev := range events {
			for _, m := range ev.Markets {
				if !m.Closed && m.ConditionID != "" {
					open = append(open, m)
				}
			}
		}
		// Earliest end date is the live window; the next one follows it.
		sort.SliceStable(open, func(i, j int) bool { return open[i].EndDate < open[j].EndDate })

		take := 1
		if includeNext {
			take = 2
		}
		for i := 0; i < len(open) && i < take; i++ {
			out = append(out, types.SeriesMarket{
				ConditionID: open[i].ConditionID,
				EndDate:     open[i].EndDate,
			})
		}
	}
	return out, nil
}

// balanceResponse is the wire shape of GET /balance-allowance.
// The balance is an integer scaled to 6 decimals (USDC).
type balanceResponse struct {
	Balance string `json:"balance"`
}

// GetBalance fetches the available balance for assetType ("COLLATERAL").
func (c *Client) GetBalance(ctx context.Context, assetType string) (types.Balance, error) {
	if c.auth == nil {
		return types.Balance{}, errors.New("get balance: auth not configured")
	}
	if err := c.rl.Data.Wait(ctx); err != nil {
		return types.Balance{}, err
	}

	path := "/balance-allowance"
	headers, err := c.auth.L2Headers("GET", path, "")
	if err != nil {
		return types.Balance{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetQueryParam("asset_type", assetType).
		SetResult(&result).
		Get(path)
	if err != nil {
		return types.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Balance{}, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}

	raw, err := types.SafeDecimal(result.Balance)
	if err != nil {
		return types.Balance{}, fmt.Errorf("get balance: %w", err)
	}
	return types.Balance{
		AssetType: assetType,
		Available: raw.Div(usdcScale),
	}, nil
}

// signedOrder and orderPayload are the wire shape of POST /order.
type signedOrder struct {
	Maker         string   `json:"maker"`
	Signer        string   `json:"signer"`
	Taker         string   `json:"taker"`
	TokenID       string   `json:"tokenId"`
	MakerAmount   *big.Int `json:"makerAmount"`
	TakerAmount   *big.Int `json:"takerAmount"`
	Side          string   `json:"side"`
	Expiration    string   `json:"expiration"`
	Nonce         string   `json:"nonce"`
	FeeRateBps    string   `json:"feeRateBps"`
	SignatureType int      `json:"signatureType"`
}

type orderPayload struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

// PlaceOrder submits a single order. Market orders go out FOK, limit orders
// GTC. Limit prices must lie in (0, 1).
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error) {
	if req.OrderType == types.OrderTypeLimit {
		if !req.Price.IsPositive() || req.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return types.OrderResponse{}, fmt.Errorf("place order: limit price %s outside (0,1)", req.Price)
		}
	}
	if !req.Size.IsPositive() {
		return types.OrderResponse{}, fmt.Errorf("place order: non-positive size %s", req.Size)
	}
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order",
			"token", req.TokenID, "side", req.Side, "price", req.Price, "size", req.Size)
		return types.OrderResponse{Success: true, OrderID: "dry-run", Status: "live", Filled: req.Size}, nil
	}
	if c.auth == nil {
		return types.OrderResponse{}, errors.New("place order: auth not configured")
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderResponse{}, err
	}

	payload := c.buildOrderPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderResponse{}, fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result, nil
}

// buildOrderPayload converts a high-level OrderRequest into the on-chain
// order + metadata the REST API expects. The maker is the funder wallet
// (proxy), the signer the EOA, and the taker the zero address (open order,
// anyone can fill).
func (c *Client) buildOrderPayload(req types.OrderRequest) orderPayload {
	makerAmt, takerAmt := PriceToAmounts(req.Price, req.Size, req.Side)

	orderType := "GTC"
	if req.OrderType == types.OrderTypeMarket {
		orderType = "FOK"
	}

	return orderPayload{
		Order: signedOrder{
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       req.TokenID,
			MakerAmount:   makerAmt,
			TakerAmount:   takerAmt,
			Side:          string(req.Side),
			Expiration:    "0",
			Nonce:         "0",
			FeeRateBps:    fmt.Sprintf("%d", req.FeeRateBps),
			SignatureType: c.auth.sigType,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: orderType,
	}
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	if c.auth == nil {
		return nil, errors.New("derive api key: auth not configured")
	}
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
