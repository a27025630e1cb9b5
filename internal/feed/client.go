package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"PriceSentinel/internal/model"
)

// Subscriber receives each accepted tick. Subscribers are invoked
// synchronously, in registration order, from the single ingest goroutine:
// they observe ticks in arrival order, never reordered or duplicated, and
// the window store is fully updated before they run.
type Subscriber func(model.Tick)

// Config holds feed client settings.
type Config struct {
	WSURL                string
	RestURL              string
	Symbols              []string
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
}

// Client maintains a Binance aggTrade stream for a symbol set and folds
// every accepted trade into the window store. On repeated connection
// failures it degrades permanently to REST polling until restart.
type Client struct {
	cfg   Config
	store *Store
	http  *http.Client

	mu      sync.Mutex
	symbols map[string]struct{}
	conn    *websocket.Conn
	polling bool
	subs    []Subscriber

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a feed client over the given window store.
func NewClient(cfg Config, store *Store) *Client {
	c := &Client{
		cfg:     cfg,
		store:   store,
		http:    &http.Client{Timeout: 5 * time.Second},
		symbols: make(map[string]struct{}),
	}
	for _, s := range cfg.Symbols {
		c.symbols[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return c
}

// Subscribe registers a tick subscriber. Must be called before Start.
func (c *Client) Subscribe(fn Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Start opens the stream and begins ingesting in a background goroutine.
func (c *Client) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop closes the stream, cancels pending reconnects and the polling
// loop, and waits for the ingest goroutine to exit. In-flight HTTP
// requests are not aborted; their results are ignored.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// AddSymbol adds a symbol to the subscription set. While streaming this
// forces a reconnect so the new stream list takes effect; in polling mode
// the next poll cycle simply covers it.
func (c *Client) AddSymbol(symbol string) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return
	}
	c.mu.Lock()
	if _, ok := c.symbols[s]; ok {
		c.mu.Unlock()
		return
	}
	c.symbols[s] = struct{}{}
	conn := c.conn
	polling := c.polling
	c.mu.Unlock()

	if !polling && conn != nil {
		log.Printf("[INFO] feed: added symbol %s, forcing reconnect", s)
		conn.Close()
	}
}

// CurrentPrice returns the latest observed price for the symbol.
func (c *Client) CurrentPrice(symbol string) (float64, bool) {
	return c.store.CurrentPrice(symbol)
}

// PriceHistory returns raw price points within the last windowMinutes.
func (c *Client) PriceHistory(symbol string, windowMinutes int) []model.PricePoint {
	return c.store.PriceHistory(symbol, windowMinutes)
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial()
		if err == nil {
			log.Printf("[INFO] feed: connected (%d symbols)", len(c.symbolList()))
			attempts = 0
			c.setConn(conn)
			c.readLoop(ctx, conn)
			c.setConn(nil)
			conn.Close()
		} else {
			log.Printf("[WARN] feed: dial failed: %v", err)
		}
		if ctx.Err() != nil {
			return
		}
		if attempts >= c.cfg.MaxReconnectAttempts {
			log.Printf("[WARN] feed: max reconnect attempts (%d) reached, switching to REST polling", c.cfg.MaxReconnectAttempts)
			c.setPolling(true)
			c.pollLoop(ctx)
			return
		}
		delay := c.cfg.ReconnectBase * time.Duration(1<<uint(attempts))
		attempts++
		log.Printf("[INFO] feed: reconnecting in %v (attempt %d)", delay, attempts)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	syms := c.symbolList()
	streams := make([]string, 0, len(syms))
	for _, s := range syms {
		streams = append(streams, s+"@aggTrade")
	}
	url := fmt.Sprintf("%s?streams=%s", c.cfg.WSURL, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[WARN] feed: connection lost: %v", err)
			}
			return
		}
		c.handleMessage(msg)
	}
}

// handleMessage parses one stream frame. Combined-stream frames wrap the
// trade in {stream, data}. Malformed trades are dropped, never propagated.
func (c *Client) handleMessage(msg []byte) {
	root := gjson.ParseBytes(msg)
	data := root.Get("data")
	if !data.Exists() {
		data = root
	}
	if e := data.Get("e"); e.Exists() && e.String() != "aggTrade" {
		return
	}
	symbol := data.Get("s").String()
	if symbol == "" {
		return
	}
	price, err := strconv.ParseFloat(data.Get("p").String(), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		log.Printf("[WARN] feed: dropping %s trade with unparsable price %q", symbol, data.Get("p").String())
		return
	}
	qty, _ := strconv.ParseFloat(data.Get("q").String(), 64)
	ts := time.Now()
	if ms := data.Get("T").Int(); ms > 0 {
		ts = time.UnixMilli(ms)
	}
	c.accept(model.Tick{
		Symbol:    strings.ToUpper(symbol),
		Price:     price,
		Quantity:  qty,
		Timestamp: ts,
	})
}

// accept updates the window store, then notifies subscribers in order.
func (c *Client) accept(t model.Tick) {
	c.store.Apply(t)

	c.mu.Lock()
	subs := make([]Subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(t)
	}
}

func (c *Client) pollLoop(ctx context.Context) {
	log.Printf("[INFO] feed: polling ticker prices every %v", c.cfg.PollInterval)
	c.pollOnce(ctx)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) {
	for _, symbol := range c.symbolList() {
		price, err := c.fetchPrice(ctx, symbol)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[WARN] feed: poll %s: %v", symbol, err)
			}
			continue
		}
		c.accept(model.Tick{
			Symbol:    strings.ToUpper(symbol),
			Price:     price,
			Timestamp: time.Now(),
		})
	}
}

func (c *Client) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", c.cfg.RestURL, strings.ToUpper(symbol))
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ticker fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("ticker read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker: status %d, body: %s", resp.StatusCode, string(body))
	}
	price, err := strconv.ParseFloat(gjson.GetBytes(body, "price").String(), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("ticker: unparsable price in %s", string(body))
	}
	return price, nil
}

func (c *Client) symbolList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setPolling(v bool) {
	c.mu.Lock()
	c.polling = v
	c.mu.Unlock()
}
