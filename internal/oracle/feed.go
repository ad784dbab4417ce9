package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/logger"
	"github.com/GoPolymarket/fundgate/internal/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second // Keep-alive interval
)

var ErrNotConnected = errors.New("oracle feed: not connected")

// Sink receives the price accounts decoded from the stream.
type Sink interface {
	PostPrice(ctx context.Context, acc model.PriceAccount) error
}

// Feed subscribes to a websocket price stream and posts every update to the
// ledger as a price account owned by the oracle program.
type Feed struct {
	url     string
	program model.Key
	sink    Sink
	clock   func() time.Time

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	subs      []model.Key
	connected bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFeed(url string, program model.Key, sink Sink) *Feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		url:     url,
		program: program,
		sink:    sink,
		clock:   time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the connection loop in a background goroutine
func (f *Feed) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.runLoop()
	}()
}

// Stop closes the connection and waits for the loop to exit.
func (f *Feed) Stop() {
	f.cancel()
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// Subscribe adds feeds to the subscription list and subscribes right away
// when connected.
func (f *Feed) Subscribe(feeds []model.Key) {
	f.mu.Lock()
	var added []model.Key
	for _, feed := range feeds {
		found := false
		for _, existing := range f.subs {
			if existing == feed {
				found = true
				break
			}
		}
		if !found {
			f.subs = append(f.subs, feed)
			added = append(added, feed)
		}
	}
	connected := f.connected
	f.mu.Unlock()

	if len(added) > 0 && connected {
		if err := f.sendSubscribe(added); err != nil {
			logger.Warn("oracle feed subscribe failed", "error", err)
		}
	}
}

func (f *Feed) Subscriptions() []model.Key {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]model.Key(nil), f.subs...)
}

func (f *Feed) runLoop() {
	delay := ReconnBaseDelay

	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, err := f.connect()
		if err != nil {
			logger.Error("oracle feed connection failed", "error", err, "retry_in", delay)
			select {
			case <-f.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, ReconnMaxDelay)
			continue
		}

		delay = ReconnBaseDelay
		f.mu.Lock()
		f.conn = conn
		f.connected = true
		all := append([]model.Key(nil), f.subs...)
		f.mu.Unlock()

		if len(all) > 0 {
			if err := f.sendSubscribe(all); err != nil {
				logger.Error("oracle feed resubscribe failed", "error", err)
				f.disconnect(conn)
				continue
			}
		}

		done := make(chan struct{})
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.ping(conn, done)
		}()
		f.readLoop(conn)
		close(done)
		f.disconnect(conn)
	}
}

func (f *Feed) connect() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(f.ctx, f.url, nil)
	if err != nil {
		return nil, err
	}
	// No data or pong within PingPeriod plus a buffer means the peer is gone.
	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	return conn, nil
}

func (f *Feed) disconnect(conn *websocket.Conn) {
	conn.Close()
	f.mu.Lock()
	if f.conn == conn {
		f.conn = nil
	}
	f.connected = false
	f.mu.Unlock()
}

func (f *Feed) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			f.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// PriceMessage is one update on the stream. Price and conf are decimal
// strings in quote units.
type PriceMessage struct {
	Type        string          `json:"type"`
	Feed        model.Key       `json:"feed"`
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime int64           `json:"publish_time"`
}

// Account converts the message into a price account at the finest exponent
// of price and conf.
func (m PriceMessage) Account(program model.Key) (model.PriceAccount, error) {
	if m.Feed.IsZero() {
		return model.PriceAccount{}, fmt.Errorf("price message without feed")
	}
	if m.Price.Sign() <= 0 {
		return model.PriceAccount{}, fmt.Errorf("feed %s: price %s is not positive", m.Feed, m.Price)
	}
	if m.Conf.Sign() < 0 {
		return model.PriceAccount{}, fmt.Errorf("feed %s: negative confidence %s", m.Feed, m.Conf)
	}
	expo := min(m.Price.Exponent(), m.Conf.Exponent(), 0)
	price := m.Price.Shift(-expo).BigInt()
	conf := m.Conf.Shift(-expo).BigInt()
	if !price.IsInt64() || !conf.IsUint64() {
		return model.PriceAccount{}, fmt.Errorf("feed %s: price %s overflows 64 bits", m.Feed, m.Price)
	}
	return model.PriceAccount{
		Key:         m.Feed,
		Owner:       program,
		Price:       price.Int64(),
		Conf:        conf.Uint64(),
		Expo:        expo,
		PublishTime: m.PublishTime,
	}, nil
}

// Handle decodes one frame, a single message or an array of them, and posts
// every price update. It returns how many were posted.
func (f *Feed) Handle(ctx context.Context, frame []byte) (int, error) {
	var msgs []PriceMessage
	if err := json.Unmarshal(frame, &msgs); err != nil {
		var single PriceMessage
		if err2 := json.Unmarshal(frame, &single); err2 != nil {
			return 0, fmt.Errorf("decode price frame: %w", err)
		}
		msgs = []PriceMessage{single}
	}

	posted := 0
	for _, m := range msgs {
		if m.Type != "price" {
			continue
		}
		if m.PublishTime == 0 {
			m.PublishTime = f.clock().Unix()
		}
		acc, err := m.Account(f.program)
		if err != nil {
			logger.Warn("oracle feed dropped update", "error", err)
			continue
		}
		if err := f.sink.PostPrice(ctx, acc); err != nil {
			logger.LogError(ctx, err, "failed to post oracle price", "feed", acc.Key.String())
			continue
		}
		metrics.OracleUpdates.WithLabelValues("feed").Inc()
		posted++
	}
	return posted, nil
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	readTimeout := PingPeriod + 10*time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				logger.Error("oracle feed read error", "error", err)
			}
			return
		}
		if _, err := f.Handle(f.ctx, frame); err != nil {
			// keep-alive or control frame
			logger.Debug("oracle feed skipped frame", "error", err)
		}
	}
}

func (f *Feed) sendSubscribe(feeds []model.Key) error {
	msg := map[string]any{
		"type":  "subscribe",
		"feeds": feeds,
	}

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(msg)
}
