package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// EventsEndpoint is the path for WebSocket connections.
	EventsEndpoint = "/events"

	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the maximum inbound message size.
	MaxMessageSize = 512
)

// Source is what an Observer streams from.
type Source interface {
	Subscribe(eventType EventType, handler func(Event)) SubscriptionID
	Unsubscribe(id SubscriptionID) error
	HistorySlice(n int) []Event
}

// Observer streams bus events to WebSocket clients as JSON, one event per
// text frame. New clients receive recent history first unless they pass
// replay=false.
type Observer struct {
	source   Source
	cfg      ObserverConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger

	subID     SubscriptionID
	clients   map[*client]struct{}
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// ObserverConfig configures the WebSocket observer.
type ObserverConfig struct {
	Addr         string `mapstructure:"addr" yaml:"addr"` // empty disables the observer
	HistoryCount int    `mapstructure:"history_count" yaml:"history_count"`
}

// DefaultObserverConfig returns the default observer configuration.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{HistoryCount: 100}
}

// NewObserver attaches an observer to source.
func NewObserver(source Source, cfg ObserverConfig, log zerolog.Logger) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		source: source,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.With().Str("component", "observer").Logger(),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	o.subID = source.Subscribe(EventType(""), o.broadcast)
	return o
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (o *Observer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	count := o.cfg.HistoryCount
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		count = n
	}
	if r.URL.Query().Get("replay") == "false" {
		count = 0
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	for _, ev := range o.source.HistorySlice(count) {
		if data, err := json.Marshal(ev); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}
	}

	o.clientsMu.Lock()
	o.clients[c] = struct{}{}
	o.clientsMu.Unlock()
	o.log.Debug().Int("clients", o.ClientCount()).Msg("client connected")

	o.wg.Add(2)
	go o.writePump(c)
	go o.readPump(c)
}

// ClientCount returns the number of connected clients.
func (o *Observer) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

// Close disconnects every client and detaches from the source.
func (o *Observer) Close() error {
	o.cancel()
	o.clientsMu.Lock()
	for c := range o.clients {
		c.close()
		delete(o.clients, c)
	}
	o.clientsMu.Unlock()
	o.wg.Wait()
	return o.source.Unsubscribe(o.subID)
}

func (o *Observer) drop(c *client) {
	o.clientsMu.Lock()
	if _, ok := o.clients[c]; ok {
		delete(o.clients, c)
		c.close()
	}
	o.clientsMu.Unlock()
}

func (o *Observer) writePump(c *client) {
	defer o.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				o.drop(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.drop(c)
				return
			}

		case <-o.ctx.Done():
			return
		}
	}
}

// readPump only exists to process control frames and notice disconnects.
func (o *Observer) readPump(c *client) {
	defer o.wg.Done()
	defer o.drop(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				o.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}

func (o *Observer) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		o.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to marshal event")
		return
	}

	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	for c := range o.clients {
		select {
		case c.send <- data:
		default:
			// slow client; it will catch up or be dropped on write failure
		}
	}
}
