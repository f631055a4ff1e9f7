package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_spread_arb/internal/domain"
	"go.uber.org/zap"
)

const (
	GateBaseURL = "https://api.gateio.ws"
	GateWSURL   = "wss://fx-ws.gateio.ws/v4/ws/usdt"

	gateAPIPrefix = "/api/v4"
)

// GateVenue implements domain.Venue against the Gate.io v4 USDT
// futures API. Order sizes are whole contracts; quantities are rounded
// to the nearest contract with a floor of one.
type GateVenue struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu         sync.Mutex
	wsConn     *websocket.Conn
	lastPrices map[string]float64 // venue-raw contract -> last streamed price
}

func NewGateVenue(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *GateVenue {
	if baseURL == "" {
		baseURL = GateBaseURL
	}
	if wsURL == "" {
		wsURL = GateWSURL
	}
	return &GateVenue{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		wsURL:      wsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		lastPrices: make(map[string]float64),
	}
}

func (g *GateVenue) Name() string { return "gateio" }

func (g *GateVenue) CanTrade() bool { return g.apiKey != "" && g.apiSecret != "" }

func (g *GateVenue) Normalize(raw string) string { return domain.NormalizeGateSymbol(raw) }

func (g *GateVenue) Denormalize(canonical string) string { return domain.GateSymbol(canonical) }

// --- REST API ---

// sign builds the Gate v4 signature: HMAC-SHA512 over
// method\npath\nquery\nSHA512(body)\ntimestamp.
func (g *GateVenue) sign(method, path, query, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	toSign := fmt.Sprintf("%s\n%s\n%s\n%s\n%d",
		method, path, query, hex.EncodeToString(bodyHash[:]), timestamp)
	h := hmac.New(sha512.New, []byte(g.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *GateVenue) sendRequest(ctx context.Context, method, path, query string, payload interface{}, signed bool) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	url := g.baseURL + gateAPIPrefix + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := time.Now().Unix()
		req.Header.Set("KEY", g.apiKey)
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("SIGN", g.sign(method, gateAPIPrefix+path, query, string(body), timestamp))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gate API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (g *GateVenue) GetTickers(ctx context.Context) ([]domain.Ticker, error) {
	resp, err := g.sendRequest(ctx, "GET", "/futures/usdt/tickers", "", nil, false)
	if err != nil {
		return nil, err
	}

	var list []struct {
		Contract      string `json:"contract"`
		Last          string `json:"last"`
		Volume24hSett string `json:"volume_24h_settle"`
	}
	if err := json.Unmarshal(resp, &list); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	tickers := make([]domain.Ticker, 0, len(list))
	for _, item := range list {
		price, _ := strconv.ParseFloat(item.Last, 64)
		volume, _ := strconv.ParseFloat(item.Volume24hSett, 64)
		tickers = append(tickers, domain.Ticker{
			Symbol:    item.Contract,
			LastPrice: price,
			Volume24h: volume,
			Time:      now,
		})
	}
	return tickers, nil
}

func (g *GateVenue) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	raw := g.Denormalize(symbol)

	g.mu.Lock()
	price, ok := g.lastPrices[raw]
	g.mu.Unlock()
	if ok && price > 0 {
		return price, nil
	}

	resp, err := g.sendRequest(ctx, "GET", "/futures/usdt/tickers", "contract="+raw, nil, false)
	if err != nil {
		return 0, err
	}
	var list []struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(resp, &list); err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, fmt.Errorf("gate: contract %s not found", raw)
	}
	return strconv.ParseFloat(list[0].Last, 64)
}

func (g *GateVenue) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	if depth <= 0 {
		depth = 50
	}
	raw := g.Denormalize(symbol)
	query := fmt.Sprintf("contract=%s&limit=%d", raw, depth)
	resp, err := g.sendRequest(ctx, "GET", "/futures/usdt/order_book", query, nil, false)
	if err != nil {
		return nil, err
	}

	var result struct {
		Asks []struct {
			Price string  `json:"p"`
			Size  float64 `json:"s"`
		} `json:"asks"`
		Bids []struct {
			Price string  `json:"p"`
			Size  float64 `json:"s"`
		} `json:"bids"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	ob := &domain.OrderBook{
		Symbol: symbol,
		Bids:   make([]domain.OrderBookEntry, 0, len(result.Bids)),
		Asks:   make([]domain.OrderBookEntry, 0, len(result.Asks)),
	}
	for _, bid := range result.Bids {
		price, _ := strconv.ParseFloat(bid.Price, 64)
		ob.Bids = append(ob.Bids, domain.OrderBookEntry{Price: price, Size: bid.Size})
	}
	for _, ask := range result.Asks {
		price, _ := strconv.ParseFloat(ask.Price, 64)
		ob.Asks = append(ob.Asks, domain.OrderBookEntry{Price: price, Size: ask.Size})
	}
	return ob, nil
}

func (g *GateVenue) GetWalletBalance(ctx context.Context) (float64, error) {
	resp, err := g.sendRequest(ctx, "GET", "/futures/usdt/accounts", "", nil, true)
	if err != nil {
		return 0, err
	}

	var account struct {
		Available string `json:"available"`
	}
	if err := json.Unmarshal(resp, &account); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(account.Available, 64)
}

func (g *GateVenue) MarketBuy(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	return g.placeOrder(ctx, symbol, domain.SideLong, qty, reduceOnly)
}

func (g *GateVenue) MarketSell(ctx context.Context, symbol string, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	return g.placeOrder(ctx, symbol, domain.SideShort, qty, reduceOnly)
}

func (g *GateVenue) placeOrder(ctx context.Context, symbol string, side domain.Side, qty float64, reduceOnly bool) (*domain.FillResult, error) {
	raw := g.Denormalize(symbol)

	size := int64(math.Round(qty))
	if size == 0 && qty > 0 {
		size = 1
	}
	filled := float64(size)
	if filled != qty {
		g.logger.Info("Rounded order quantity to whole contracts",
			zap.String("contract", raw),
			zap.Float64("requested", qty),
			zap.Float64("size", filled))
	}
	if side == domain.SideShort {
		size = -size
	}

	payload := map[string]interface{}{
		"contract":    raw,
		"size":        size,
		"price":       "0", // market order
		"tif":         "ioc",
		"reduce_only": reduceOnly,
	}
	resp, err := g.sendRequest(ctx, "POST", "/futures/usdt/orders", "", payload, true)
	if err != nil {
		return nil, err
	}

	var result struct {
		ID        int64  `json:"id"`
		FillPrice string `json:"fill_price"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	fillPrice, _ := strconv.ParseFloat(result.FillPrice, 64)
	return &domain.FillResult{
		OrderID:   strconv.FormatInt(result.ID, 10),
		Symbol:    raw,
		Side:      side,
		Qty:       filled,
		FillPrice: fillPrice,
	}, nil
}

func (g *GateVenue) GetPosition(ctx context.Context, symbol string) (*domain.VenuePosition, error) {
	raw := g.Denormalize(symbol)
	resp, err := g.sendRequest(ctx, "GET", "/futures/usdt/positions/"+raw, "", nil, true)
	if err != nil {
		return nil, err
	}

	var position struct {
		Contract   string `json:"contract"`
		Size       int64  `json:"size"`
		EntryPrice string `json:"entry_price"`
	}
	if err := json.Unmarshal(resp, &position); err != nil {
		return nil, err
	}
	if position.Size == 0 {
		return nil, nil
	}

	entry, _ := strconv.ParseFloat(position.EntryPrice, 64)
	side := domain.SideLong
	size := float64(position.Size)
	if size < 0 {
		side = domain.SideShort
		size = -size
	}
	return &domain.VenuePosition{
		Symbol:        position.Contract,
		Side:          side,
		Size:          size,
		AvgEntryPrice: entry,
	}, nil
}

// --- WebSocket ---

// Subscribe attaches the futures.tickers channel for the given
// canonical symbols, dialing on first use.
func (g *GateVenue) Subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(g.wsURL, nil)
		if err != nil {
			return err
		}
		g.wsConn = conn
		go g.readLoop(conn)
	}

	payload := make([]string, 0, len(symbols))
	for _, s := range symbols {
		payload = append(payload, g.Denormalize(s))
	}
	return g.wsConn.WriteJSON(map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": "futures.tickers",
		"event":   "subscribe",
		"payload": payload,
	})
}

func (g *GateVenue) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		g.mu.Lock()
		if g.wsConn == conn {
			g.wsConn = nil
		}
		g.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.logger.Warn("Gate WS read error, falling back to REST prices", zap.Error(err))
			return
		}

		var event struct {
			Channel string `json:"channel"`
			Event   string `json:"event"`
			Result  []struct {
				Contract string `json:"contract"`
				Last     string `json:"last"`
			} `json:"result"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		if event.Channel != "futures.tickers" || event.Event != "update" {
			continue
		}

		g.mu.Lock()
		for _, item := range event.Result {
			price, err := strconv.ParseFloat(item.Last, 64)
			if err != nil || price <= 0 || item.Contract == "" {
				continue
			}
			g.lastPrices[item.Contract] = price
		}
		g.mu.Unlock()
	}
}
