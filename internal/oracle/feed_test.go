package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgram = model.NamedKey("oracle/program")
	testFeed    = model.NamedKey("feed/a")
)

type chanSink struct {
	mu      sync.Mutex
	fail    bool
	updates chan model.PriceAccount
}

func newChanSink() *chanSink {
	return &chanSink{updates: make(chan model.PriceAccount, 16)}
}

func (s *chanSink) PostPrice(_ context.Context, acc model.PriceAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.updates <- acc
	return nil
}

func TestPriceMessageAccount(t *testing.T) {
	msg := PriceMessage{
		Type:        "price",
		Feed:        testFeed,
		Price:       decimal.RequireFromString("1.5"),
		Conf:        decimal.RequireFromString("0.001"),
		PublishTime: 10,
	}
	acc, err := msg.Account(testProgram)
	require.NoError(t, err)
	assert.Equal(t, model.PriceAccount{Key: testFeed, Owner: testProgram, Price: 1_500, Conf: 1, Expo: -3, PublishTime: 10}, acc)

	msg.Price = decimal.RequireFromString("150")
	msg.Conf = decimal.Zero
	acc, err = msg.Account(testProgram)
	require.NoError(t, err)
	assert.Equal(t, int64(150), acc.Price)
	assert.Equal(t, int32(0), acc.Expo)

	msg.Price = decimal.RequireFromString("-1")
	_, err = msg.Account(testProgram)
	assert.Error(t, err)

	msg.Price = decimal.RequireFromString("1")
	msg.Conf = decimal.RequireFromString("-0.1")
	_, err = msg.Account(testProgram)
	assert.Error(t, err)

	msg.Conf = decimal.Zero
	msg.Price = decimal.RequireFromString("100000000000000000000")
	_, err = msg.Account(testProgram)
	assert.Error(t, err)

	_, err = PriceMessage{Price: decimal.NewFromInt(1)}.Account(testProgram)
	assert.Error(t, err)
}

func TestFeedHandle(t *testing.T) {
	sink := newChanSink()
	feed := NewFeed("ws://unused", testProgram, sink)
	feed.clock = func() time.Time { return time.Unix(1_700_000_000, 0) }
	defer feed.Stop()
	ctx := context.Background()

	frame := `[{"type":"price","feed":"` + testFeed.String() + `","price":"0.15","conf":"0.001","publish_time":42},` +
		`{"type":"heartbeat"},` +
		`{"type":"price","feed":"` + testFeed.String() + `","price":"-3","conf":"0"}]`
	n, err := feed.Handle(ctx, []byte(frame))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	acc := <-sink.updates
	assert.Equal(t, int64(150), acc.Price)
	assert.Equal(t, int32(-3), acc.Expo)
	assert.Equal(t, int64(42), acc.PublishTime)
	assert.Equal(t, testProgram, acc.Owner)

	n, err = feed.Handle(ctx, []byte(`{"type":"price","feed":"`+testFeed.String()+`","price":2,"conf":0}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	acc = <-sink.updates
	assert.Equal(t, int64(1_700_000_000), acc.PublishTime)

	_, err = feed.Handle(ctx, []byte(`not json`))
	assert.Error(t, err)

	sink.mu.Lock()
	sink.fail = true
	sink.mu.Unlock()
	n, err = feed.Handle(ctx, []byte(`{"type":"price","feed":"`+testFeed.String()+`","price":"2","conf":"0"}`))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeedSubscribeDeduplicates(t *testing.T) {
	feed := NewFeed("ws://unused", testProgram, newChanSink())
	defer feed.Stop()
	other := model.NamedKey("feed/b")
	feed.Subscribe([]model.Key{testFeed, other})
	feed.Subscribe([]model.Key{testFeed})
	assert.Equal(t, []model.Key{testFeed, other}, feed.Subscriptions())
}

func TestFeedStreamsPrices(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subscribed <- string(msg)
		frame := `{"type":"price","feed":"` + testFeed.String() + `","price":"1.25","conf":"0.01","publish_time":7}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newChanSink()
	feed := NewFeed("ws"+strings.TrimPrefix(srv.URL, "http"), testProgram, sink)
	feed.Subscribe([]model.Key{testFeed})
	feed.Start()

	select {
	case msg := <-subscribed:
		assert.Contains(t, msg, `"subscribe"`)
		assert.Contains(t, msg, testFeed.String())
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	select {
	case acc := <-sink.updates:
		assert.Equal(t, model.PriceAccount{Key: testFeed, Owner: testProgram, Price: 125, Conf: 1, Expo: -2, PublishTime: 7}, acc)
	case <-time.After(5 * time.Second):
		t.Fatal("no price posted")
	}

	feed.Stop()
}
