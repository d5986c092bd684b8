package bus

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsEndpoint + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestObserver_ReplaysHistoryThenStreams(t *testing.T) {
	feed := NewFeed(10)
	defer feed.Close()
	require.NoError(t, feed.Publish(NewEvent(EventChainTriggered, time.Now(), nil)))

	obs := NewObserver(feed, DefaultObserverConfig(), zerolog.Nop())
	defer obs.Close()
	srv := httptest.NewServer(obs)
	defer srv.Close()

	conn := dial(t, srv, "")
	defer conn.Close()

	assert.Equal(t, EventChainTriggered, readEvent(t, conn).Type)

	require.Eventually(t, func() bool { return obs.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, feed.Publish(NewEvent(EventBoredomThreshold, time.Now(), nil)))
	assert.Equal(t, EventBoredomThreshold, readEvent(t, conn).Type)
}

func TestObserver_ReplayDisabled(t *testing.T) {
	feed := NewFeed(10)
	defer feed.Close()
	require.NoError(t, feed.Publish(NewEvent(EventChainTriggered, time.Now(), nil)))

	obs := NewObserver(feed, DefaultObserverConfig(), zerolog.Nop())
	defer obs.Close()
	srv := httptest.NewServer(obs)
	defer srv.Close()

	conn := dial(t, srv, "?replay=false")
	defer conn.Close()

	require.Eventually(t, func() bool { return obs.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, feed.Publish(NewEvent(EventMemoryStored, time.Now(), nil)))
	assert.Equal(t, EventMemoryStored, readEvent(t, conn).Type)
}
