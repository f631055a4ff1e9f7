package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

// BybitVenue implements domain.Venue against the Bybit V5 linear API.
// The public ticker stream keeps a last-price cache so GetCurrentPrice
// can answer from the stream and only fall back to REST.
type BybitVenue struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	lastPrices map[string]float64 // venue-raw symbol -> last streamed price
}

func NewBybitVenue(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BybitVenue {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	return &BybitVenue{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		lastPrices: make(map[string]float64),
	}
}

func (b *BybitVenue) Name() string { return "bybit" }

func (b *BybitVenue) CanTrade() bool { return b.apiKey != "" && b.apiSecret != "" }

func (b *BybitVenue) Normalize(raw string) string { return domain.NormalizeBybitSymbol(raw) }

func (b *BybitVenue) Denormalize(canonical string) string { return domain.BybitSymbol(canonical) }

// --- REST API ---

func (b *BybitVenue) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitVenue) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, _ := json.Marshal(payload)
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == "GET" {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	signature := b.sign(paramsStr, timestamp, recvWindow)

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("bybit API error: %s", string(respBody))
	}

	return respBody, nil
}

func (b *BybitVenue) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	resp, err := b.sendRequest(ctx, "GET", "/v5/market/tickers?category=linear", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				Symbol      string `json:"symbol"`
				LastPrice   string `json:"lastPrice"`
				Turnover24h string `json:"turnover24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit tickers error: %s", result.RetMsg)
	}

	now := time.Now().UnixMilli()
	tickers := make([]domain.Ticker, 0, len(result.Result.List))
	for _, item := range result.Result.List {
		price, _ := strconv.ParseFloat(item.LastPrice, 64)
		turnover, _ := strconv.ParseFloat(item.Turnover24h, 64)
		tickers = append(tickers, domain.Ticker{
			Symbol:    item.Symbol,
			LastPrice: price,
			Volume24h: turnover,
			Time:      now,
		})
	}
	return tickers, nil
}

func (b *BybitVenue) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	raw := b.Denormalize(symbol)

	b.mu.Lock()
	price, ok := b.lastPrices[raw]
	b.mu.Unlock()
	if ok && price > 0 {
		return price, nil
	}

	resp, err := b.sendRequest(ctx, "GET", "/v5/market/tickers?category=linear&symbol="+raw, nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	if len(result.Result.List) == 0 {
		return 0, fmt.Errorf("bybit: symbol %s not found", raw)
	}
	return strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
}

func (b *BybitVenue) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	raw := b.Denormalize(symbol)
	path := fmt.Sprintf("/v5/market/orderbook?category=linear&symbol=%s&limit=%d", raw, depth)
	resp, err := b.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			S string     `json:"s"`
			B [][]string `json:"b"`
			A [][]string `json:"a"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit orderbook error: %d", result.RetCode)
	}

	ob := &domain.OrderBook{
		Symbol: symbol,
		Bids:   make([]domain.OrderBookEntry, 0, len(result.Result.B)),
		Asks:   make([]domain.OrderBookEntry, 0, len(result.Result.A)),
	}
	for _, bid := range result.Result.B {
		if len(bid) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(bid[0], 64)
		size, _ := strconv.ParseFloat(bid[1], 64)
		ob.Bids = append(ob.Bids, domain.OrderBookEntry{Price: price, Size: size})
	}
	for _, ask := range result.Result.A {
		if len(ask) < 2 {
			continue
		}
		price, _ := strconv.ParseFloat(ask[0], 64)
		size, _ := strconv.ParseFloat(ask[1], 64)
		ob.Asks = append(ob.Asks, domain.OrderBookEntry{Price: price, Size: size})
	}
	return ob, nil
}

func (b *BybitVenue) GetWalletBalance(ctx context.Context) (float64, error) {
	resp, err := b.sendRequest(ctx, "GET", "/v5/account/wallet-balance?accountType=UNIFIED", nil)
	if err != nil {
		return 0, err
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				TotalAvailableBalance string `json:"totalAvailableBalance"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, err
	}
	if result.RetCode != 0 {
		return 0, fmt.Errorf("bybit balance error: %s", result.RetMsg)
	}
	if len(result.Result.List) == 0 {
		return 0, nil
	}
	return strconv.ParseFloat(result.Result.List[0].TotalAvailableBalance, 64)
}

func (b *BybitVenue) MarketBuy(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	return b.placeOrder(ctx, symbol, "Buy", domain.SideLong, qty, reduceOnly)
}

func (b *BybitVenue) MarketSell(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	return b.placeOrder(ctx, symbol, "Sell", domain.SideShort, qty, reduceOnly)
}

func (b *BybitVenue) placeOrder(ctx context.Context, symbol, apiSide string, side domain.Side, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	raw := b.Denormalize(symbol)
	payload := map[string]interface{}{
		"category":    "linear",
		"symbol":      raw,
		"side":        apiSide,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', -1, 64),
		"timeInForce": "IOC",
	}
	if reduceOnly {
		payload["reduceOnly"] = true
	}

	resp, err := b.sendRequest(ctx, "POST", "/v5/order/create", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 {
		return nil, fmt.Errorf("bybit order error: %s", result.RetMsg)
	}

	// Bybit does not report the fill price on order creation; the
	// caller confirms it via GetPosition.
	return &domain.FillResult{
		OrderID: result.Result.OrderID,
		Symbol:  raw,
		Side:    side,
		Qty:     qty,
	}, nil
}

func (b *BybitVenue) GetPosition(ctx context.Context, symbol string) (*domain.VenuePosition, error) {
	raw := b.Denormalize(symbol)
	resp, err := b.sendRequest(ctx, "GET", "/v5/position/list?category=linear&symbol="+raw, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				Symbol   string `json:"symbol"`
				Side     string `json:"side"`
				Size     string `json:"size"`
				AvgPrice string `json:"avgPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	if len(result.Result.List) == 0 {
		return nil, nil
	}

	item := result.Result.List[0]
	size, _ := strconv.ParseFloat(item.Size, 64)
	if size == 0 {
		return nil, nil
	}
	entry, _ := strconv.ParseFloat(item.AvgPrice, 64)

	side := domain.SideLong
	if item.Side == "Sell" {
		side = domain.SideShort
	}
	return &domain.VenuePosition{
		Symbol:        item.Symbol,
		Side:          side,
		Size:          size,
		AvgEntryPrice: entry,
	}, nil
}

// --- WebSocket ---

// Subscribe attaches the public ticker stream for the given canonical
// symbols, dialing on first use.
func (b *BybitVenue) Subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
		if err != nil {
			return err
		}
		b.wsConn = conn
		go b.readLoop(conn)
	}

	args := make([]interface{}, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, "tickers."+b.Denormalize(s))
	}
	return b.wsConn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	})
}

func (b *BybitVenue) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		if b.wsConn == conn {
			b.wsConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("Bybit WS read error, falling back to REST prices", zap.Error(err))
			return
		}

		var event struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
			continue
		}
		price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}

		symbol := event.Data.Symbol
		if symbol == "" {
			symbol = strings.TrimPrefix(event.Topic, "tickers.")
		}

		b.mu.Lock()
		b.lastPrices[symbol] = price
		b.mu.Unlock()
	}
}
