package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"orctorrent/internal/event"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

type WSHandler struct {
	bus    *event.Bus
	logger *zap.Logger
}

func NewWSHandler(bus *event.Bus, l *zap.Logger) *WSHandler {
	return &WSHandler{bus: bus, logger: l.With(zap.String("component", "websocket"))}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		h.logger.Debug("failed to accept connection", zap.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "closing")

	// The stream is one-way; CloseRead handles control frames and cancels
	// ctx when the client closes.
	ctx := c.CloseRead(r.Context())
	events := h.bus.Subscribe(typeFilter(r.URL.Query().Get(ParamTypes))...)
	defer func() {
		if n := h.bus.Dropped(events); n > 0 {
			h.logger.Debug("slow websocket client missed events", zap.Uint64("dropped", n))
		}
		h.bus.Unsubscribe(events)
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}

			ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = c.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
