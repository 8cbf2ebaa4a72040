package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/equipedash/equipe-dash-go/internal/infra/resilience"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Feed maintains one websocket connection to the Supabase Realtime
// service and fans change notifications out per table. Handlers get no
// payload: any INSERT, UPDATE or DELETE on a table is a cue for the
// subscription layer to refetch the whole result set.
type Feed struct {
	wsURL     string
	heartbeat time.Duration
	cfg       resilience.Config
	logger    *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[int]func() // table -> handler id -> handler
	nextID   int
	ref      int
	closed   bool
	cancel   context.CancelFunc
}

// phoenixMessage is the frame format of the realtime protocol.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// NewFeed prepares a realtime feed for the given Supabase project.
// Nothing connects until Run is called.
func NewFeed(baseURL, apiKey string, heartbeat time.Duration, cfg resilience.Config, logger *zap.Logger) *Feed {
	ws := strings.Replace(baseURL, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)

	return &Feed{
		wsURL:     fmt.Sprintf("%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0", ws, apiKey),
		heartbeat: heartbeat,
		cfg:       cfg,
		logger:    logger,
		handlers:  make(map[string]map[int]func()),
	}
}

// Run connects and keeps the feed alive until ctx is cancelled or
// Close is called. Reconnects use exponential backoff; all joined
// topics are re-established after each reconnect.
func (f *Feed) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return
		}

		var conn *websocket.Conn
		err := resilience.RetryWithBackoff(ctx, f.cfg, func() error {
			c, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			f.logger.Error("realtime: connect failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		f.logger.Info("realtime: connected")

		f.mu.Lock()
		f.conn = conn
		tables := make([]string, 0, len(f.handlers))
		for table := range f.handlers {
			tables = append(tables, table)
		}
		f.mu.Unlock()

		for _, table := range tables {
			f.join(table)
		}

		stopHeartbeat := make(chan struct{})
		go f.heartbeatLoop(conn, stopHeartbeat)

		f.readLoop(ctx, conn)

		close(stopHeartbeat)
		conn.Close()

		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("realtime: connection lost, reconnecting")
	}
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Debug("realtime: read error", zap.Error(err))
			}
			return
		}

		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("realtime: undecodable frame", zap.Error(err))
			continue
		}

		switch msg.Event {
		case "INSERT", "UPDATE", "DELETE":
			f.dispatch(topicTable(msg.Topic))
		case "phx_reply", "phx_close", "presence_state", "presence_diff":
			// protocol chatter, nothing to do
		}
	}
}

func (f *Feed) heartbeatLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(f.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := f.send(conn, "phoenix", "heartbeat"); err != nil {
				return
			}
		}
	}
}

// dispatch invokes every handler registered for table. Handlers are
// copied out under the lock so a slow refetch never blocks the read
// loop's registry access.
func (f *Feed) dispatch(table string) {
	f.mu.Lock()
	hs := make([]func(), 0, len(f.handlers[table]))
	for _, h := range f.handlers[table] {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h()
	}
}

// OnTableChange registers handler for all changes on table. The
// returned stop function is idempotent.
func (f *Feed) OnTableChange(table string, handler func()) (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, fmt.Errorf("realtime feed is closed")
	}

	f.nextID++
	id := f.nextID
	first := len(f.handlers[table]) == 0
	if f.handlers[table] == nil {
		f.handlers[table] = make(map[int]func())
	}
	f.handlers[table][id] = handler
	f.mu.Unlock()

	if first {
		f.join(table)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers[table], id)
			last := len(f.handlers[table]) == 0
			f.mu.Unlock()
			if last {
				f.leave(table)
			}
		})
	}
	return stop, nil
}

// Close tears the connection down and stops the run loop.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (f *Feed) join(table string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return // joined on next (re)connect
	}
	if err := f.send(conn, "realtime:public:"+table, "phx_join"); err != nil {
		f.logger.Warn("realtime: join failed", zap.String("table", table), zap.Error(err))
	}
}

func (f *Feed) leave(table string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return
	}
	if err := f.send(conn, "realtime:public:"+table, "phx_leave"); err != nil {
		f.logger.Debug("realtime: leave failed", zap.String("table", table), zap.Error(err))
	}
}

// send writes one frame. The ref counter and the write itself share
// the feed mutex since gorilla allows a single concurrent writer.
func (f *Feed) send(conn *websocket.Conn, topic, event string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ref++
	msg := phoenixMessage{
		Topic:   topic,
		Event:   event,
		Payload: json.RawMessage("{}"),
		Ref:     strconv.Itoa(f.ref),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// topicTable extracts the table name from "realtime:public:events".
func topicTable(topic string) string {
	if i := strings.LastIndexByte(topic, ':'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}
