package handler

import (
	"net/http"
	"sync"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ============================================================
// Live streaming endpoint — repository subscriptions over websocket
// ============================================================

// Streamer exposes the four repositories' subscriptions to the SPA:
// GET /v1/stream/{table} upgrades to a websocket and pushes the full,
// current snapshot on connect and after every table change. Each
// connection owns its own subscription; equivalent subscriptions on
// the same table are acceptable duplication at team scale.
type Streamer struct {
	events        *repository.Events
	users         *repository.Users
	notifications *repository.Notifications
	meta          *repository.GroupMeta
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func NewStreamer(events *repository.Events, users *repository.Users, notifications *repository.Notifications, meta *repository.GroupMeta, logger *zap.Logger) *Streamer {
	return &Streamer{
		events:        events,
		users:         users,
		notifications: notifications,
		meta:          meta,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// snapshotFrame is one pushed message.
type snapshotFrame struct {
	Table string `json:"table"`
	Data  any    `json:"data"`
}

func (s *Streamer) Handle(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	// Connection id correlates the open/close log lines of one client.
	connID := uuid.NewString()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("stream: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Writes are serialized: the repository delivers snapshots one at
	// a time, but close frames race with them.
	var writeMu sync.Mutex
	push := func(data any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(snapshotFrame{Table: table, Data: data}); err != nil {
			s.logger.Debug("stream: write failed", zap.Error(err))
		}
	}

	var stop func()
	switch table {
	case "events":
		stop, err = s.events.Subscribe(r.Context(), eventFilterFromQuery(r), func(evs []domain.Event) {
			push(evs)
		})
	case "users":
		stop, err = s.users.Subscribe(r.Context(), func(us []domain.UserProfile) {
			push(us)
		})
	case "notifications":
		stop, err = s.notifications.Subscribe(r.Context(), func(ns []domain.Notification) {
			push(ns)
		})
	case "group_meta":
		stop, err = s.meta.Subscribe(r.Context(), func(m *domain.GroupMeta) {
			push(m)
		})
	default:
		writeMu.Lock()
		conn.WriteJSON(errorResponse{Error: "unknown table: " + table})
		writeMu.Unlock()
		return
	}
	if err != nil {
		s.logger.Warn("stream: subscribe failed",
			zap.String("table", table),
			zap.Error(err),
		)
		writeMu.Lock()
		conn.WriteJSON(errorResponse{Error: "subscription failed"})
		writeMu.Unlock()
		return
	}
	defer stop()

	s.logger.Info("stream: subscription opened",
		zap.String("table", table),
		zap.String("conn_id", connID),
	)
	defer s.logger.Info("stream: subscription closed",
		zap.String("table", table),
		zap.String("conn_id", connID),
	)

	// Block until the client goes away; inbound frames are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
